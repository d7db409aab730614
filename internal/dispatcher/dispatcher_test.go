package dispatcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peoplehub/integration-gateway/internal/model"
	"github.com/peoplehub/integration-gateway/internal/signature"
)

func testEvent() model.Event {
	return model.Event{
		ID:         "01J8ZK3V9XQ4T5Y6W7E8R9T0A1",
		TenantID:   "tenant-1",
		Type:       "employee.created",
		OccurredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Payload:    json.RawMessage(`{"id":"42"}`),
	}
}

func testSubscription(url string) model.Subscription {
	return model.Subscription{
		ID:        "sub-1",
		TenantID:  "tenant-1",
		TargetURL: url,
		Secret:    "topsecret",
		Active:    true,
	}
}

func TestAttemptDelivered(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(3, time.Second)
	sub := testSubscription(srv.URL)
	sub.CustomHeaders = model.StringMap{
		"X-Team":      "people-ops",
		"X-Signature": "spoofed", // reserved, must be overridden
	}

	res := d.Attempt(context.Background(), testEvent(), sub)

	require.Equal(t, OutcomeDelivered, res.Outcome)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.NoError(t, res.Err)

	t.Run("signature verifies against exact body bytes", func(t *testing.T) {
		sig := gotHeaders.Get("X-Signature")
		assert.True(t, signature.Verify(sub.Secret, gotBody, sig))

		mutated := append([]byte(nil), gotBody...)
		mutated[0] ^= 0x01
		assert.False(t, signature.Verify(sub.Secret, mutated, sig))
	})

	t.Run("envelope shape", func(t *testing.T) {
		var env model.Envelope
		require.NoError(t, json.Unmarshal(gotBody, &env))
		assert.Equal(t, "01J8ZK3V9XQ4T5Y6W7E8R9T0A1", env.EventID)
		assert.Equal(t, "employee.created", env.EventType)
		assert.Equal(t, "2025-06-01T12:00:00Z", env.OccurredAt)
		assert.JSONEq(t, `{"id":"42"}`, string(env.Data))
	})

	t.Run("headers", func(t *testing.T) {
		assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
		assert.Equal(t, "people-ops", gotHeaders.Get("X-Team"))
		assert.NotEqual(t, "spoofed", gotHeaders.Get("X-Signature"))
		assert.NotEmpty(t, gotHeaders.Get("X-Timestamp"))
	})
}

func TestAttemptClassification(t *testing.T) {
	t.Run("5xx is retryable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		res := New(100, time.Second).Attempt(context.Background(), testEvent(), testSubscription(srv.URL))
		assert.Equal(t, OutcomeRetryable, res.Outcome)
		assert.Equal(t, http.StatusInternalServerError, res.HTTPStatus)
		assert.Error(t, res.Err)
	})

	t.Run("4xx is permanent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		res := New(100, time.Second).Attempt(context.Background(), testEvent(), testSubscription(srv.URL))
		assert.Equal(t, OutcomePermanent, res.Outcome)
		assert.Equal(t, http.StatusNotFound, res.HTTPStatus)
	})

	t.Run("429 is retryable and carries Retry-After", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		res := New(100, time.Second).Attempt(context.Background(), testEvent(), testSubscription(srv.URL))
		assert.Equal(t, OutcomeRetryable, res.Outcome)
		assert.Equal(t, 7*time.Second, res.RetryAfter)
	})

	t.Run("timeout is retryable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		sub := testSubscription(srv.URL)
		sub.TimeoutMs = 50

		res := New(100, time.Second).Attempt(context.Background(), testEvent(), sub)
		assert.Equal(t, OutcomeRetryable, res.Outcome)
		assert.Equal(t, 0, res.HTTPStatus)
		assert.Error(t, res.Err)
	})

	t.Run("connection refused is retryable", func(t *testing.T) {
		res := New(100, time.Second).Attempt(context.Background(), testEvent(),
			testSubscription("http://127.0.0.1:1")) // nothing listens there
		assert.Equal(t, OutcomeRetryable, res.Outcome)
		assert.Error(t, res.Err)
	})
}

func TestAttemptCircuitBreaker(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := New(2, time.Hour)
	sub := testSubscription(srv.URL)

	for i := 0; i < 2; i++ {
		res := d.Attempt(context.Background(), testEvent(), sub)
		assert.Equal(t, OutcomeRetryable, res.Outcome)
	}
	before := calls.Load()

	// Breaker tripped: next attempt short-circuits without hitting the endpoint.
	res := d.Attempt(context.Background(), testEvent(), sub)
	assert.Equal(t, OutcomeRetryable, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrEndpointSuspended)
	assert.Equal(t, before, calls.Load())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-5"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("not-a-date"))

	future := time.Now().Add(2 * time.Minute).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.InDelta(t, (2 * time.Minute).Seconds(), d.Seconds(), 5)
}
