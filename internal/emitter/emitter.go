package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/peoplehub/integration-gateway/internal/logger"
	"github.com/peoplehub/integration-gateway/internal/metrics"
	"github.com/peoplehub/integration-gateway/internal/model"
	"github.com/peoplehub/integration-gateway/internal/repository"
	"github.com/peoplehub/integration-gateway/internal/util"
)

var ErrInvalidEvent = errors.New("invalid event")

const (
	scheduleTries     = 3
	scheduleRetryWait = 50 * time.Millisecond
)

// Service is the single entry point the rest of the platform uses to publish
// domain events. It persists the event, resolves matching subscriptions, and
// schedules one delivery job per match. Callers depend on Emit alone and never
// see delivery internals.
type Service struct {
	events     repository.EventsRepository
	subs       repository.SubscriptionsRepository
	deliveries repository.DeliveriesRepository
}

func New(
	events repository.EventsRepository,
	subs repository.SubscriptionsRepository,
	deliveries repository.DeliveriesRepository,
) *Service {
	return &Service{events: events, subs: subs, deliveries: deliveries}
}

// Emit persists the event and schedules attempt 1 for every active matching
// subscription. It returns once jobs are scheduled, never waiting on delivery.
// Event persistence failure is fatal and surfaced; a scheduling failure for
// one subscription is logged and counted without blocking the others.
func (s *Service) Emit(ctx context.Context, tenantID, eventType string, payload json.RawMessage) (string, error) {
	if tenantID == "" || eventType == "" {
		metrics.EventsTotal.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%w: tenant and type are required", ErrInvalidEvent)
	}
	if len(payload) == 0 || !json.Valid(payload) {
		metrics.EventsTotal.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%w: payload must be valid JSON", ErrInvalidEvent)
	}

	ev := model.Event{
		ID:         util.New(),
		TenantID:   tenantID,
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	if err := s.events.Insert(ctx, nil, ev); err != nil {
		metrics.EventsTotal.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("persist event: %w", err)
	}

	subs, err := s.subs.ResolveActive(ctx, tenantID, eventType)
	if err != nil {
		// Event is stored but nothing got scheduled; surface it so the caller
		// knows delivery is not on its way.
		return "", fmt.Errorf("resolve subscriptions: %w", err)
	}

	now := time.Now()
	for _, sub := range subs {
		att := model.DeliveryAttempt{
			ID:             util.New(),
			EventID:        ev.ID,
			SubscriptionID: sub.ID,
			Attempt:        1,
			Status:         model.DeliveryPending,
			ScheduledAt:    now,
		}
		if err := s.schedule(ctx, att); err != nil {
			// One bad subscriber never blocks the rest.
			logger.Log.Warn("schedule delivery failed",
				zap.String("event_id", ev.ID),
				zap.String("subscription_id", sub.ID),
				zap.Error(err),
			)
			metrics.ScheduleFailures.Inc()
		}
	}

	metrics.EventsTotal.WithLabelValues("emitted").Inc()
	return ev.ID, nil
}

// schedule inserts the first attempt for one subscription, retrying transient
// storage errors in place before giving up on that subscription alone.
func (s *Service) schedule(ctx context.Context, att model.DeliveryAttempt) error {
	var err error
	for try := 1; try <= scheduleTries; try++ {
		if err = s.deliveries.InsertPending(ctx, nil, att); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if try < scheduleTries {
			time.Sleep(time.Duration(try) * scheduleRetryWait)
		}
	}
	return err
}
