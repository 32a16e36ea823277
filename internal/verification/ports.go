package verification

import (
	"context"

	"medcred/internal/verification/provider"
	"medcred/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// Provider is the remote verification service.
type Provider interface {
	CreateSession(ctx context.Context, req provider.CreateSessionRequest) (*provider.SessionCreated, error)
	GetDecision(ctx context.Context, sessionID string) (*provider.Decision, error)
}

// AuditPublisher emits session lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
