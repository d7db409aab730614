package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/peoplehub/integration-gateway/internal/emitter"
	"github.com/peoplehub/integration-gateway/internal/kafka"
)

// platformEvent is the shape other services publish to the events topic:
// { "tenant_id": "...", "type": "...", "payload": {...} }
type platformEvent struct {
	TenantID string          `json:"tenant_id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
}

// Worker consumes platform events from Kafka and feeds them into the emitter,
// which persists and schedules deliveries exactly as the HTTP path does.
type Worker struct {
	Consumer *kafka.Consumer
	Emit     *emitter.Service

	Workers int
}

func New(consumer *kafka.Consumer, emit *emitter.Service) *Worker {
	return &Worker{Consumer: consumer, Emit: emit, Workers: 8}
}

// Run starts the fetch loop and processors, blocking until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 8
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				m, err := w.Consumer.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("[ingest] kafka fetch err: %v", err)
					time.Sleep(200 * time.Millisecond)
					continue
				}
				msgCh <- m
			}
		}
	}()

	for i := 0; i < w.Workers; i++ {
		go w.runProcessor(ctx, msgCh)
	}

	<-ctx.Done()
	return nil
}

func (w *Worker) runProcessor(ctx context.Context, in <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			w.processOne(ctx, m)
		}
	}
}

func (w *Worker) processOne(ctx context.Context, m kafka.Message) {
	var pe platformEvent
	if err := json.Unmarshal(m.Value, &pe); err != nil {
		_ = w.Consumer.Commit(ctx, m) // poison → commit, skip
		log.Printf("[ingest] bad event json: %v", err)
		return
	}

	if _, err := w.Emit.Emit(ctx, pe.TenantID, pe.Type, pe.Payload); err != nil {
		// Validation failures are poison too; commit so the group moves on.
		// Storage errors are retried by leaving the offset uncommitted.
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, emitter.ErrInvalidEvent) {
			_ = w.Consumer.Commit(ctx, m)
			log.Printf("[ingest] dropped invalid event: %v", err)
			return
		}
		log.Printf("[ingest] emit err (will refetch): %v", err)
		return
	}

	if err := w.Consumer.Commit(ctx, m); err != nil {
		log.Printf("[ingest] commit err: %v", err)
	}
}
