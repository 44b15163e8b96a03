package domain

import (
	"slices"
	"time"
)

// Subscriber statuses. A subscriber is created active and becomes disabled
// only when a delivery chain exhausts its retry budget. Reactivation is an
// administrative action via the management API.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

type Subscriber struct {
	ID                 string            `json:"id"`
	TenantID           *string           `json:"tenant_id,omitempty"`
	Name               string            `json:"name"`
	EndpointURL        string            `json:"endpoint_url"`
	Secret             string            `json:"secret,omitempty"`
	EventTypes         []string          `json:"event_types"`
	CustomHeaders      map[string]string `json:"custom_headers,omitempty"`
	RateLimitPerSecond int               `json:"rate_limit_per_second"`
	MaxAttempts        int               `json:"max_attempts"`
	BaseDelayMs        int               `json:"base_delay_ms"`
	Status             string            `json:"status"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// SubscribedTo reports whether the subscriber's event type set contains typ.
func (s *Subscriber) SubscribedTo(typ string) bool {
	return slices.Contains(s.EventTypes, typ)
}

// BaseDelay returns the retry policy's base delay as a duration.
func (s *Subscriber) BaseDelay() time.Duration {
	return time.Duration(s.BaseDelayMs) * time.Millisecond
}

type CreateSubscriberRequest struct {
	Name               string            `json:"name"`
	TenantID           *string           `json:"tenant_id,omitempty"`
	EndpointURL        string            `json:"endpoint_url"`
	EventTypes         []string          `json:"event_types"`
	CustomHeaders      map[string]string `json:"custom_headers,omitempty"`
	RateLimitPerSecond int               `json:"rate_limit_per_second"`
	MaxAttempts        int               `json:"max_attempts"`
	BaseDelayMs        int               `json:"base_delay_ms"`
}

type UpdateSubscriberRequest struct {
	Name               *string            `json:"name,omitempty"`
	EndpointURL        *string            `json:"endpoint_url,omitempty"`
	EventTypes         *[]string          `json:"event_types,omitempty"`
	CustomHeaders      *map[string]string `json:"custom_headers,omitempty"`
	RateLimitPerSecond *int               `json:"rate_limit_per_second,omitempty"`
	MaxAttempts        *int               `json:"max_attempts,omitempty"`
	BaseDelayMs        *int               `json:"base_delay_ms,omitempty"`
	Status             *string            `json:"status,omitempty"`
}

type CreateSubscriberResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Secret string `json:"secret"`
}
