package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/peoplehub/integration-gateway/internal/model"
	"github.com/peoplehub/integration-gateway/internal/signature"
)

// Outcome classifies a delivery attempt for the retry scheduler.
type Outcome int

const (
	OutcomeDelivered Outcome = iota + 1
	OutcomeRetryable
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRetryable:
		return "retryable"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Result is everything the scheduler needs to ledger one attempt and decide
// what happens next.
type Result struct {
	Outcome    Outcome
	HTTPStatus int // 0 when no response was received
	Err        error
	RetryAfter time.Duration // parsed from Retry-After on 429/503, 0 if absent
	Latency    time.Duration
}

var ErrEndpointSuspended = fmt.Errorf("endpoint circuit open")

const maxResponseDrain = int64(64 << 10)

// Dispatcher performs one signed HTTP POST to a subscriber endpoint. Each
// endpoint gets its own micro circuit breaker so a flapping subscriber is
// probed instead of hammered.
type Dispatcher struct {
	client   *http.Client
	breakers *breakerSet
}

func New(failThreshold int, openFor time.Duration) *Dispatcher {
	return &Dispatcher{
		// No client-level timeout: each request is bounded by the
		// subscription's own timeout via context.
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breakers: newBreakerSet(failThreshold, openFor),
	}
}

// Attempt builds the envelope, signs the exact body bytes with the
// subscription secret, POSTs within the subscription timeout, and classifies
// the response: 2xx delivered; connection errors, timeouts, 5xx and 429
// retryable; remaining 4xx permanent.
func (d *Dispatcher) Attempt(ctx context.Context, ev model.Event, sub model.Subscription) Result {
	body, err := json.Marshal(model.NewEnvelope(ev))
	if err != nil {
		// Payload was stored as valid JSON; failing here means the row is unusable.
		return Result{Outcome: OutcomePermanent, Err: fmt.Errorf("marshal envelope: %w", err)}
	}

	br := d.breakers.get(sub.ID)
	if !br.TryAcquire() {
		return Result{Outcome: OutcomeRetryable, Err: ErrEndpointSuspended}
	}

	ctx, cancel := context.WithTimeout(ctx, sub.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		br.OnSuccess() // config problem, not endpoint health
		return Result{Outcome: OutcomePermanent, Err: fmt.Errorf("build request: %w", err)}
	}

	for k, v := range sub.CustomHeaders {
		req.Header.Set(k, v)
	}
	// Reserved headers always win over custom ones.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature.Sign(sub.Secret, body))
	req.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	start := time.Now()
	res, err := d.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		br.OnFailure()
		return Result{Outcome: OutcomeRetryable, Err: err, Latency: latency}
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseDrain))

	switch {
	case res.StatusCode/100 == 2:
		br.OnSuccess()
		return Result{Outcome: OutcomeDelivered, HTTPStatus: res.StatusCode, Latency: latency}

	case res.StatusCode == http.StatusTooManyRequests:
		// Endpoint is alive, just throttling; don't count it against the breaker.
		br.OnSuccess()
		return Result{
			Outcome:    OutcomeRetryable,
			HTTPStatus: res.StatusCode,
			Err:        fmt.Errorf("subscriber throttled delivery (status=%d)", res.StatusCode),
			RetryAfter: parseRetryAfter(res.Header.Get("Retry-After")),
			Latency:    latency,
		}

	case res.StatusCode/100 == 5:
		br.OnFailure()
		return Result{
			Outcome:    OutcomeRetryable,
			HTTPStatus: res.StatusCode,
			Err:        fmt.Errorf("subscriber error (status=%d)", res.StatusCode),
			RetryAfter: parseRetryAfter(res.Header.Get("Retry-After")),
			Latency:    latency,
		}

	default:
		// Remaining 4xx: the receiver explicitly rejected the contract.
		br.OnSuccess()
		return Result{
			Outcome:    OutcomePermanent,
			HTTPStatus: res.StatusCode,
			Err:        fmt.Errorf("subscriber rejected delivery (status=%d)", res.StatusCode),
			Latency:    latency,
		}
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
