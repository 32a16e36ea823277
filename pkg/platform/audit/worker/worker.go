package worker

import (
	"context"
	"log/slog"

	audit "medcred/pkg/platform/audit"
)

// Worker drains buffered audit events into a store. Append failures are
// logged and skipped so one bad sink write does not stall the queue.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run consumes until the inbox is closed. It does not stop on ctx
// cancellation so buffered events are drained on shutdown.
func (w *Worker) Run(ctx context.Context) {
	for event := range w.inbox {
		if err := w.store.Append(ctx, event); err != nil && w.logger != nil {
			w.logger.WarnContext(ctx, "failed to persist audit event",
				"action", event.Action,
				"error", err,
			)
		}
	}
}
