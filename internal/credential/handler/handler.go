package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medcred/internal/credential"
	"medcred/pkg/platform/httputil"
	"medcred/pkg/requestcontext"
)

// Service defines the interface for credential operations.
type Service interface {
	Verify(ctx context.Context, req credential.Request) credential.Result
}

// Handler wires credential endpoints to the credential service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts credential endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials/verify", h.HandleVerify)
}

// HandleVerify handles POST /credentials/verify. Invalid documents are a
// 200 with is_valid=false; only malformed bodies are 4xx.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result := h.service.Verify(ctx, req.toDomain())

	h.logger.InfoContext(ctx, "credential verification served",
		"request_id", requestID,
		"source", result.VerificationSource,
		"verified", result.IsVerified,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}
