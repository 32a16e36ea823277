// Package handler exposes verification sessions over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medcred/internal/verification"
	"medcred/pkg/platform/httputil"
	"medcred/pkg/requestcontext"
)

// Service is the subset of the session manager used by the handlers.
type Service interface {
	Start(ctx context.Context, req verification.StartRequest) (*verification.Handle, error)
	Get(id string) (verification.Session, error)
	Stop(ctx context.Context, id string) (verification.Session, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/verification/sessions", h.HandleStart)
	r.Get("/verification/sessions/{id}", h.HandleGet)
	r.Delete("/verification/sessions/{id}", h.HandleStop)
}

// HandleStart handles POST /verification/sessions and answers 201 with the
// capture URL the subject must be redirected to.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[StartSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	handle, err := h.service.Start(ctx, req.toDomain())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to start verification session",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	session, err := handle.Session()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromSession(session))
}

// HandleGet handles GET /verification/sessions/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}

// HandleStop handles DELETE /verification/sessions/{id}. Stopping a finished
// session returns its final state.
func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	session, err := h.service.Stop(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "verification session stopped",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", id,
		"state", session.State,
	)
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}
