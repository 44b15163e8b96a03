package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voltfleet/webhook-dispatcher/internal/domain"
	"github.com/voltfleet/webhook-dispatcher/internal/metrics"
)

// Scheduler drives the retry side of a delivery chain. The chain for one
// (event, subscriber) pair is strictly sequential: attempt N+1 is only
// dispatched after attempt N has settled and its delay has elapsed. Across
// chains there is no coordination at all.
type Scheduler struct {
	deliverer *Deliverer
	registry  Registry
	logger    *slog.Logger

	// after is time.After in production; tests swap it to observe delays
	// without waiting them out.
	after func(time.Duration) <-chan time.Time

	wg sync.WaitGroup
}

func NewScheduler(deliverer *Deliverer, registry Registry, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		deliverer: deliverer,
		registry:  registry,
		logger:    logger,
		after:     time.After,
	}
}

// OnOutcome applies the retry policy to a settled attempt.
//
// Success ends the chain. A failure below the attempt budget schedules one
// follow-up attempt after baseDelay × attemptNumber (linear backoff) without
// blocking the caller. A failure on the final attempt disables the subscriber
// entirely: the disable is endpoint-scoped, so it suppresses all future
// events, not just the one that exhausted its retries.
func (s *Scheduler) OnOutcome(ctx context.Context, sub domain.Subscriber, event domain.Event, attempt int, out Outcome) {
	if out.Success {
		return
	}

	if attempt >= sub.MaxAttempts {
		s.disable(ctx, sub, event)
		return
	}

	delay := time.Duration(attempt) * sub.BaseDelay()
	metrics.RetriesScheduledTotal.Inc()
	s.logger.Info("retry scheduled",
		"event_id", event.ID,
		"subscriber_id", sub.ID,
		"attempt", attempt,
		"delay", delay,
	)

	// The retry must outlive the triggering request, so it detaches from the
	// caller's cancellation while keeping its values.
	rctx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.after(delay)

		next := attempt + 1
		s.OnOutcome(rctx, sub, event, next, s.deliverer.Attempt(rctx, sub, event, next))
	}()
}

func (s *Scheduler) disable(ctx context.Context, sub domain.Subscriber, event domain.Event) {
	// SetStatus is idempotent: two chains exhausting retries for the same
	// subscriber around the same time both land on disabled without error.
	if err := s.registry.SetStatus(ctx, sub.ID, domain.StatusDisabled); err != nil {
		s.logger.Error("failed to disable subscriber",
			"error", err,
			"subscriber_id", sub.ID,
		)
		return
	}

	metrics.SubscribersDisabledTotal.Inc()
	s.logger.Warn("subscriber disabled after exhausting retries",
		"subscriber_id", sub.ID,
		"event_id", event.ID,
		"max_attempts", sub.MaxAttempts,
	)
}

// Wait blocks until every in-flight delivery chain has settled. Pending
// retries are in-process only; they do not survive a restart.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
