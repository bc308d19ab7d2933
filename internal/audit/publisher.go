package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"custos/pkg/domain"
	"custos/pkg/requestcontext"
)

// Publisher accepts events from domain logic and hands them to the worker
// through a buffered inbox. Emit never blocks: if the inbox is full the
// event is dropped and counted, because a slow audit sink must not stall
// settlement processing.
type Publisher struct {
	inbox  chan Event
	store  Store
	logger *slog.Logger
}

const defaultInboxSize = 1024

func NewPublisher(store Store, logger *slog.Logger) *Publisher {
	return &Publisher{
		inbox:  make(chan Event, defaultInboxSize),
		store:  store,
		logger: logger,
	}
}

// Emit enqueues an event, stamping ID, timestamp and request correlation.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit inbox full, event dropped",
			"kind", event.Kind, "action", event.Action)
	}
}

// List returns the trail for a subject.
func (p *Publisher) List(ctx context.Context, subject domain.Address) ([]Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

// Sink receives every drained event after it is persisted; the kafka
// producer implements it.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Worker drains the publisher inbox into the store and optional sinks.
type Worker struct {
	publisher *Publisher
	sinks     []Sink
	logger    *slog.Logger
}

func NewWorker(publisher *Publisher, logger *slog.Logger, sinks ...Sink) *Worker {
	return &Worker{publisher: publisher, sinks: sinks, logger: logger}
}

// Run processes events until ctx is cancelled. Sink failures are logged, not
// retried; the store append is the durable record.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.publisher.inbox:
			if err := w.publisher.store.Append(ctx, event); err != nil {
				return err
			}
			for _, sink := range w.sinks {
				if err := sink.Publish(ctx, event); err != nil {
					w.logger.ErrorContext(ctx, "audit sink publish failed",
						"error", err, "event", event.ID)
				}
			}
		}
	}
}
