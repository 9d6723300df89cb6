package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInboxFull is returned by ChannelPublisher.Emit when the worker has
// fallen behind and the event was dropped.
var ErrInboxFull = errors.New("audit inbox full, event dropped")

// ChannelPublisher is the async front services emit through: events go onto
// the inbox and a Worker writes them out, so sink latency (kafka produce,
// slow disk) never sits on the login path. Emit never blocks; when the inbox
// is full the event is dropped and the caller gets ErrInboxFull to log.
type ChannelPublisher struct {
	inbox chan<- Event
}

func NewChannelPublisher(inbox chan<- Event) *ChannelPublisher {
	return &ChannelPublisher{inbox: inbox}
}

func (p *ChannelPublisher) Emit(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		return ErrInboxFull
	}
}

// Worker drains the inbox through a Publisher, which fans each event out to
// the store and any sinks. A failing write is logged and skipped; the trail
// is best-effort and must not take the gateway down.
type Worker struct {
	pub    *Publisher
	inbox  <-chan Event
	logger *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

func NewWorker(pub *Publisher, inbox <-chan Event, opts ...WorkerOption) *Worker {
	w := &Worker{pub: pub, inbox: inbox}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes until ctx is cancelled and returns ctx.Err().
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.pub.Emit(ctx, event); err != nil && w.logger != nil {
				w.logger.WarnContext(ctx, "audit event write failed",
					"action", event.Action, "error", err)
			}
		}
	}
}
