// Package webhook receives provider callbacks. Deliveries are at-least-once
// and may arrive out of order, so every accepted payload goes through the
// manager's terminal-guarded Apply.
package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"medcred/internal/verification"
	"medcred/internal/verification/metrics"
	"medcred/internal/verification/provider"
	dErrors "medcred/pkg/domain-errors"
	"medcred/pkg/platform/audit"
	"medcred/pkg/platform/httputil"
	"medcred/pkg/requestcontext"
)

const (
	HeaderSignature  = "X-Signature"
	HeaderTimestamp  = "X-Timestamp"
	HeaderDeliveryID = "X-Delivery-ID"

	maxPayloadBytes = 1 << 20
)

// Delivery outcomes reported in the response body and metrics.
const (
	OutcomeApplied   = "applied"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// Applier is the session manager's transition entry point.
type Applier interface {
	Apply(ctx context.Context, ev verification.Event) (verification.Session, bool)
}

// AuditPublisher records rejected and duplicate deliveries.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Handler struct {
	secret     []byte
	applier    Applier
	deliveries DeliveryStore
	auditor    AuditPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	maxSkew    time.Duration
	now        func() time.Time
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(h *Handler) {
		h.auditor = p
	}
}

func WithDeliveryStore(s DeliveryStore) Option {
	return func(h *Handler) {
		h.deliveries = s
	}
}

// WithMaxSkew sets the accepted X-Timestamp window. Zero disables the check.
func WithMaxSkew(d time.Duration) Option {
	return func(h *Handler) {
		h.maxSkew = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

func New(secret []byte, applier Applier, opts ...Option) (*Handler, error) {
	if len(secret) == 0 {
		return nil, errors.New("webhook secret is required")
	}
	if applier == nil {
		return nil, errors.New("applier is required")
	}
	h := &Handler{
		secret:     secret,
		applier:    applier,
		deliveries: NewMemoryDeliveryStore(24 * time.Hour),
		logger:     slog.Default(),
		maxSkew:    5 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/verification", h.HandleDelivery)
}

// DeliveryResponse acknowledges a webhook.
type DeliveryResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
	State     string `json:"state,omitempty"`
}

// HandleDelivery handles POST /webhooks/verification. Any 2xx tells the
// provider to stop retrying, so unknown and finished sessions are
// acknowledged as ignored.
func (h *Handler) HandleDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable body"))
		return
	}

	if err := VerifySignature(h.secret, body, r.Header.Get(HeaderSignature)); err != nil {
		h.reject(ctx, err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid webhook signature"))
		return
	}
	if err := CheckTimestamp(r.Header.Get(HeaderTimestamp), h.now(), h.maxSkew); err != nil {
		h.reject(ctx, err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "webhook timestamp outside tolerance"))
		return
	}

	var payload provider.Decision
	if err := json.Unmarshal(body, &payload); err != nil || payload.SessionID == "" {
		h.logger.WarnContext(ctx, "malformed webhook payload",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "payload must be a decision with session_id"))
		return
	}

	deliveryID := strings.TrimSpace(r.Header.Get(HeaderDeliveryID))
	if deliveryID == "" {
		sum := sha256.Sum256(body)
		deliveryID = hex.EncodeToString(sum[:])
	}
	first, err := h.deliveries.MarkDelivered(ctx, deliveryID)
	if err != nil {
		// Apply is idempotent, so a store outage only costs a redundant apply.
		h.logger.WarnContext(ctx, "webhook delivery store unavailable",
			"request_id", requestID,
			"error", err,
		)
		first = true
	}
	if !first {
		h.count(OutcomeDuplicate)
		h.emit(ctx, audit.EventWebhookDuplicate, payload.SessionID, OutcomeDuplicate, deliveryID)
		httputil.WriteJSON(w, http.StatusOK, DeliveryResponse{Status: OutcomeDuplicate, SessionID: payload.SessionID})
		return
	}

	session, applied := h.applier.Apply(ctx, verification.Event{
		SessionID: payload.SessionID,
		Source:    verification.SourceWebhook,
		Decision:  &payload,
		At:        h.now(),
	})

	if session.ID == "" {
		// Untracked so far: the provider may call back before the session is
		// registered, and its retry must not be dropped as a duplicate.
		if err := h.deliveries.Forget(ctx, deliveryID); err != nil {
			h.logger.WarnContext(ctx, "failed to release webhook delivery",
				"request_id", requestID,
				"error", err,
			)
		}
	}

	resp := DeliveryResponse{Status: OutcomeIgnored, SessionID: payload.SessionID, State: string(session.State)}
	if applied {
		resp.Status = OutcomeApplied
	}
	h.count(resp.Status)
	h.logger.InfoContext(ctx, "webhook delivery processed",
		"request_id", requestID,
		"session_id", payload.SessionID,
		"provider_status", payload.Status,
		"outcome", resp.Status,
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) reject(ctx context.Context, err error) {
	h.count(OutcomeRejected)
	h.logger.WarnContext(ctx, "webhook rejected",
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	h.emit(ctx, audit.EventWebhookRejected, "webhook", OutcomeRejected, err.Error())
}

func (h *Handler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.IncWebhook(outcome)
	}
}

func (h *Handler) emit(ctx context.Context, action audit.AuditEvent, subject, decision, reason string) {
	if h.auditor == nil {
		return
	}
	ev := audit.NewEvent(action, subject, h.now())
	ev.Decision = decision
	ev.Reason = reason
	ev.RequestID = requestcontext.RequestID(ctx)
	if err := h.auditor.Emit(ctx, ev); err != nil {
		h.logger.WarnContext(ctx, "failed to emit audit event",
			"action", action,
			"error", err,
		)
	}
}
