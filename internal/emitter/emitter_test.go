package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peoplehub/integration-gateway/internal/logger"
	"github.com/peoplehub/integration-gateway/internal/model"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	m.Run()
}

type fakeEvents struct {
	inserted []model.Event
	err      error
}

func (f *fakeEvents) Insert(_ context.Context, _ *sqlx.Tx, ev model.Event) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, ev)
	return nil
}

func (f *fakeEvents) GetByID(_ context.Context, _ string) (*model.Event, error) { return nil, nil }

type fakeSubs struct {
	resolved []model.Subscription
	err      error
	gotType  string
}

func (f *fakeSubs) ResolveActive(_ context.Context, _, eventType string) ([]model.Subscription, error) {
	f.gotType = eventType
	return f.resolved, f.err
}

func (f *fakeSubs) GetByID(_ context.Context, _ string) (*model.Subscription, error) {
	return nil, nil
}
func (f *fakeSubs) MarkDegraded(_ context.Context, _ string) error              { return nil }
func (f *fakeSubs) Insert(_ context.Context, _ *sqlx.Tx, _ model.Subscription) error { return nil }

type fakeDeliveries struct {
	inserted []model.DeliveryAttempt
	failFor  map[string]error // subscription_id -> error on every insert
	flaky    map[string]int   // subscription_id -> failures before success
	tries    map[string]int
}

func (f *fakeDeliveries) InsertPending(_ context.Context, _ *sqlx.Tx, a model.DeliveryAttempt) error {
	if err := f.failFor[a.SubscriptionID]; err != nil {
		return err
	}
	if n := f.flaky[a.SubscriptionID]; n > 0 {
		if f.tries == nil {
			f.tries = map[string]int{}
		}
		f.tries[a.SubscriptionID]++
		if f.tries[a.SubscriptionID] <= n {
			return errors.New("deadlock, try again")
		}
	}
	f.inserted = append(f.inserted, a)
	return nil
}

func (f *fakeDeliveries) ListDue(_ context.Context, _ time.Time, _ int) ([]model.DeliveryAttempt, error) {
	return nil, nil
}
func (f *fakeDeliveries) Claim(_ context.Context, _ string) (bool, error) { return false, nil }
func (f *fakeDeliveries) MarkDelivered(_ context.Context, _ string, _ int, _ time.Duration) error {
	return nil
}
func (f *fakeDeliveries) MarkFailed(_ context.Context, _ string, _ *int, _ string, _ time.Duration) error {
	return nil
}
func (f *fakeDeliveries) MarkDead(_ context.Context, _ string, _ *int, _ string, _ time.Duration) error {
	return nil
}
func (f *fakeDeliveries) ReleaseStale(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeDeliveries) ListByEventAndSubscription(_ context.Context, _, _ string) ([]model.DeliveryAttempt, error) {
	return nil, nil
}
func (f *fakeDeliveries) ListBySubscription(_ context.Context, _ string, _, _ int) ([]model.DeliveryAttempt, error) {
	return nil, nil
}

func TestEmit(t *testing.T) {
	ctx := context.Background()
	payload := json.RawMessage(`{"id":"42"}`)

	t.Run("schedules exactly one job per matching subscription", func(t *testing.T) {
		events := &fakeEvents{}
		subs := &fakeSubs{resolved: []model.Subscription{{ID: "s1"}, {ID: "s2"}, {ID: "s3"}}}
		deliveries := &fakeDeliveries{}
		svc := New(events, subs, deliveries)

		id, err := svc.Emit(ctx, "tenant-1", "employee.created", payload)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, "employee.created", subs.gotType)

		require.Len(t, events.inserted, 1)
		assert.Equal(t, id, events.inserted[0].ID)
		assert.JSONEq(t, `{"id":"42"}`, string(events.inserted[0].Payload))

		require.Len(t, deliveries.inserted, 3)
		seen := map[string]bool{}
		for _, a := range deliveries.inserted {
			assert.Equal(t, id, a.EventID)
			assert.Equal(t, 1, a.Attempt)
			assert.Equal(t, model.DeliveryPending, a.Status)
			seen[a.SubscriptionID] = true
		}
		assert.Len(t, seen, 3)
	})

	t.Run("no matching subscriptions is still a successful emit", func(t *testing.T) {
		svc := New(&fakeEvents{}, &fakeSubs{}, &fakeDeliveries{})
		id, err := svc.Emit(ctx, "tenant-1", "leave.approved", payload)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	})

	t.Run("one bad subscription never blocks the others", func(t *testing.T) {
		subs := &fakeSubs{resolved: []model.Subscription{{ID: "s1"}, {ID: "s2"}}}
		deliveries := &fakeDeliveries{failFor: map[string]error{"s1": errors.New("insert failed")}}
		svc := New(&fakeEvents{}, subs, deliveries)

		_, err := svc.Emit(ctx, "tenant-1", "employee.updated", payload)
		require.NoError(t, err)
		require.Len(t, deliveries.inserted, 1)
		assert.Equal(t, "s2", deliveries.inserted[0].SubscriptionID)
	})

	t.Run("transient scheduling failure is retried in place", func(t *testing.T) {
		subs := &fakeSubs{resolved: []model.Subscription{{ID: "s1"}}}
		deliveries := &fakeDeliveries{flaky: map[string]int{"s1": 2}}
		svc := New(&fakeEvents{}, subs, deliveries)

		_, err := svc.Emit(ctx, "tenant-1", "employee.updated", payload)
		require.NoError(t, err)
		require.Len(t, deliveries.inserted, 1)
		assert.Equal(t, "s1", deliveries.inserted[0].SubscriptionID)
		assert.Equal(t, 3, deliveries.tries["s1"], "two failures, then the insert lands")
	})

	t.Run("event persistence failure is fatal", func(t *testing.T) {
		svc := New(&fakeEvents{err: errors.New("db down")}, &fakeSubs{}, &fakeDeliveries{})
		_, err := svc.Emit(ctx, "tenant-1", "employee.created", payload)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "persist event")
	})

	t.Run("validation", func(t *testing.T) {
		svc := New(&fakeEvents{}, &fakeSubs{}, &fakeDeliveries{})

		_, err := svc.Emit(ctx, "", "employee.created", payload)
		assert.ErrorIs(t, err, ErrInvalidEvent)

		_, err = svc.Emit(ctx, "tenant-1", "", payload)
		assert.ErrorIs(t, err, ErrInvalidEvent)

		_, err = svc.Emit(ctx, "tenant-1", "employee.created", json.RawMessage(`{broken`))
		assert.ErrorIs(t, err, ErrInvalidEvent)

		_, err = svc.Emit(ctx, "tenant-1", "employee.created", nil)
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})
}
