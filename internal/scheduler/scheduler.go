package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/peoplehub/integration-gateway/internal/dispatcher"
	"github.com/peoplehub/integration-gateway/internal/metrics"
	"github.com/peoplehub/integration-gateway/internal/model"
	"github.com/peoplehub/integration-gateway/internal/repository"
	"github.com/peoplehub/integration-gateway/internal/util"
)

// Attempter performs one delivery try. Satisfied by *dispatcher.Dispatcher.
type Attempter interface {
	Attempt(ctx context.Context, ev model.Event, sub model.Subscription) dispatcher.Result
}

// Scheduler polls due pending deliveries, claims each one with a
// compare-and-swap to in_flight, and fans the claimed work out to a fixed pool
// of workers over a bounded queue. When the queue is full, further claims wait
// instead of spawning goroutines.
type Scheduler struct {
	deliveries repository.DeliveriesRepository
	subs       repository.SubscriptionsRepository
	events     repository.EventsRepository
	dispatch   Attempter
	backoff    BackoffConfig

	Workers      int
	QueueSize    int
	PollInterval time.Duration
	ClaimBatch   int
	// StaleAfter is how long a claim may sit in_flight before the reaper
	// assumes its worker died and returns the row to pending.
	StaleAfter time.Duration
}

func New(
	deliveries repository.DeliveriesRepository,
	subs repository.SubscriptionsRepository,
	events repository.EventsRepository,
	dispatch Attempter,
	backoff BackoffConfig,
) *Scheduler {
	return &Scheduler{
		deliveries:   deliveries,
		subs:         subs,
		events:       events,
		dispatch:     dispatch,
		backoff:      backoff,
		Workers:      16,
		QueueSize:    64,
		PollInterval: time.Second,
		ClaimBatch:   100,
		StaleAfter:   5 * time.Minute,
	}
}

// Run starts the poll loop and worker pool, blocking until ctx is cancelled.
// Claimed attempts are drained to a terminal state before Run returns; nothing
// is left sitting in_flight by a clean shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Workers <= 0 {
		s.Workers = 16
	}
	if s.QueueSize <= 0 {
		s.QueueSize = 64
	}
	if s.PollInterval <= 0 {
		s.PollInterval = time.Second
	}
	if s.ClaimBatch <= 0 {
		s.ClaimBatch = 100
	}
	if s.StaleAfter <= 0 {
		s.StaleAfter = 5 * time.Minute
	}

	queue := make(chan model.DeliveryAttempt, s.QueueSize)

	// Workers run on a context that survives cancellation: a claimed row must
	// still reach a terminal state during shutdown, and each dispatch stays
	// bounded by the subscription timeout.
	drainCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < s.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runWorker(drainCtx, queue)
		}()
	}

	tick := time.NewTicker(s.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return nil
		case <-tick.C:
			s.pollOnce(ctx, queue)
		}
	}
}

// pollOnce claims due deliveries and enqueues them. Losing a claim race is
// silent: another worker owns that attempt. The blocking send sheds (delays)
// further claims while the pool is saturated.
func (s *Scheduler) pollOnce(ctx context.Context, queue chan<- model.DeliveryAttempt) {
	if n, err := s.deliveries.ReleaseStale(ctx, time.Now().Add(-s.StaleAfter)); err != nil {
		log.Printf("[deliver] release stale err: %v", err)
	} else if n > 0 {
		log.Printf("[deliver] released %d stale in-flight attempts", n)
	}

	due, err := s.deliveries.ListDue(ctx, time.Now(), s.ClaimBatch)
	if err != nil {
		log.Printf("[deliver] list due err: %v", err)
		return
	}

	for _, att := range due {
		claimed, err := s.deliveries.Claim(ctx, att.ID)
		if err != nil {
			log.Printf("[deliver] claim %s err: %v", att.ID, err)
			continue
		}
		if !claimed {
			continue
		}

		select {
		case queue <- att:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runWorker(ctx context.Context, in <-chan model.DeliveryAttempt) {
	for att := range in {
		s.process(ctx, att)
	}
}

// process runs one claimed attempt through the dispatcher and records the
// outcome: delivered and permanent failures terminate here; retryable failures
// append a fresh pending row on the backoff schedule until the subscription's
// attempt ceiling, after which the delivery goes dead and the subscription is
// flagged degraded for operators.
func (s *Scheduler) process(ctx context.Context, att model.DeliveryAttempt) {
	sub, err := s.subs.GetByID(ctx, att.SubscriptionID)
	if err != nil {
		log.Printf("[deliver] load subscription %s err: %v", att.SubscriptionID, err)
		s.dead(ctx, att, nil, "subscription lookup failed", 0)
		return
	}
	if sub == nil {
		s.dead(ctx, att, nil, "subscription missing", 0)
		return
	}
	// Deactivation checked at claim time; anything already in flight completes.
	if !sub.Active {
		s.dead(ctx, att, nil, "subscription deactivated", 0)
		return
	}

	ev, err := s.events.GetByID(ctx, att.EventID)
	if err != nil || ev == nil {
		if err != nil {
			log.Printf("[deliver] load event %s err: %v", att.EventID, err)
		}
		s.dead(ctx, att, nil, "event missing", 0)
		return
	}

	res := s.dispatch.Attempt(ctx, *ev, *sub)

	switch res.Outcome {
	case dispatcher.OutcomeDelivered:
		if err := s.deliveries.MarkDelivered(ctx, att.ID, res.HTTPStatus, res.Latency); err != nil {
			log.Printf("[deliver] mark delivered %s err: %v", att.ID, err)
			return
		}
		metrics.DeliveriesTotal.WithLabelValues("delivered").Inc()

	case dispatcher.OutcomePermanent:
		s.dead(ctx, att, statusPtr(res), causeOf(res), res.Latency)
		s.degrade(ctx, sub.ID)

	case dispatcher.OutcomeRetryable:
		if att.Attempt >= sub.AttemptCeiling() {
			s.dead(ctx, att, statusPtr(res), causeOf(res), res.Latency)
			s.degrade(ctx, sub.ID)
			return
		}

		if err := s.deliveries.MarkFailed(ctx, att.ID, statusPtr(res), causeOf(res), res.Latency); err != nil {
			log.Printf("[deliver] mark failed %s err: %v", att.ID, err)
			return
		}
		metrics.DeliveriesTotal.WithLabelValues("failed").Inc()

		next := model.DeliveryAttempt{
			ID:             util.New(),
			EventID:        att.EventID,
			SubscriptionID: att.SubscriptionID,
			Attempt:        att.Attempt + 1,
			Status:         model.DeliveryPending,
			ScheduledAt:    time.Now().Add(s.backoff.NextDelay(att.Attempt, res.RetryAfter)),
		}
		if err := s.deliveries.InsertPending(ctx, nil, next); err != nil {
			log.Printf("[deliver] schedule retry for %s err: %v", att.ID, err)
		}
	}
}

func (s *Scheduler) dead(ctx context.Context, att model.DeliveryAttempt, httpStatus *int, cause string, latency time.Duration) {
	if err := s.deliveries.MarkDead(ctx, att.ID, httpStatus, cause, latency); err != nil {
		log.Printf("[deliver] mark dead %s err: %v", att.ID, err)
		return
	}
	metrics.DeliveriesTotal.WithLabelValues("dead").Inc()
}

func (s *Scheduler) degrade(ctx context.Context, subscriptionID string) {
	if err := s.subs.MarkDegraded(ctx, subscriptionID); err != nil {
		log.Printf("[deliver] mark degraded %s err: %v", subscriptionID, err)
	}
}

func statusPtr(r dispatcher.Result) *int {
	if r.HTTPStatus == 0 {
		return nil
	}
	st := r.HTTPStatus
	return &st
}

func causeOf(r dispatcher.Result) string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}
