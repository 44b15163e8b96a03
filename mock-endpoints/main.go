package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

// Simulated partner endpoints for local testing of the dispatcher: a
// well-behaved receiver, a slow one, one that always errors, one that
// recovers after a few failures, and one that verifies signatures.

var requestCount atomic.Int64

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	// Always returns 200.
	http.HandleFunc("/webhook/success", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logRequest(r, count, http.StatusOK)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	})

	// Delays 3 seconds before responding.
	http.HandleFunc("/webhook/slow", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		time.Sleep(3 * time.Second)
		logRequest(r, count, http.StatusOK)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received (slow)"})
	})

	// Always returns 500, for exercising retry chains and the disable path.
	http.HandleFunc("/webhook/error", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logRequest(r, count, http.StatusInternalServerError)

		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "charge point offline"})
	})

	// Fails the first FAIL_FIRST_N requests, then recovers.
	failFirstN := int64(2)
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			failFirstN = n
		}
	}
	var flakyCount atomic.Int64
	http.HandleFunc("/webhook/flaky", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		if flakyCount.Add(1) <= failFirstN {
			logRequest(r, count, http.StatusServiceUnavailable)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		logRequest(r, count, http.StatusOK)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "recovered"})
	})

	// Verifies the HMAC signature against ENDPOINT_SECRET before accepting.
	secret := os.Getenv("ENDPOINT_SECRET")
	http.HandleFunc("/webhook/verify", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if r.Header.Get("X-Webhook-Signature") != expected {
			logRequest(r, count, http.StatusUnauthorized)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "bad signature"})
			return
		}

		logRequest(r, count, http.StatusOK)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "verified"})
	})

	log.Printf("mock endpoints listening on :%s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}

func logRequest(r *http.Request, count int64, status int) {
	log.Printf("[%d] %s %s event=%s status=%d",
		count, r.Method, r.URL.Path, r.Header.Get("X-Webhook-Event"), status)
}
