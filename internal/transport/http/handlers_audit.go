package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "medcred/pkg/domain-errors"
	"medcred/pkg/platform/audit"
	"medcred/pkg/platform/audit/publisher"
	"medcred/pkg/platform/httputil"
	"medcred/pkg/requestcontext"
)

// AuditReader lists recorded audit events for a subject.
type AuditReader interface {
	List(ctx context.Context, subject string) ([]audit.Event, error)
}

// AuditHandler exposes the audit trail of a subject to the calling service.
type AuditHandler struct {
	reader AuditReader
	logger *slog.Logger
}

func NewAuditHandler(reader AuditReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{reader: reader, logger: logger}
}

func (h *AuditHandler) Register(r chi.Router) {
	r.Get("/audit/subjects/{subject}/events", h.HandleList)
}

type auditEventResponse struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Action    string    `json:"action"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Caller    string    `json:"caller,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleList handles GET /audit/subjects/{subject}/events.
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := chi.URLParam(r, "subject")

	events, err := h.reader.List(ctx, subject)
	if errors.Is(err, publisher.ErrNotReadable) {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "audit trail is not readable in this deployment"))
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	out := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, auditEventResponse{
			ID:        e.ID.String(),
			Category:  string(e.Category),
			Action:    e.Action,
			Decision:  e.Decision,
			Reason:    e.Reason,
			RequestID: e.RequestID,
			Caller:    e.Caller,
			Timestamp: e.Timestamp,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"subject": subject, "events": out})
}
