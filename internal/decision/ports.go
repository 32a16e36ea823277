package decision

import (
	"context"

	"medcred/internal/credential"
	"medcred/internal/verification"
	"medcred/pkg/platform/audit"
)

// CredentialVerifier runs the document and registry pipeline.
type CredentialVerifier interface {
	Verify(ctx context.Context, req credential.Request) credential.Result
}

// SessionReader reads biometric session snapshots.
type SessionReader interface {
	Get(id string) (verification.Session, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
