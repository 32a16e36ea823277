package credential

import (
	"context"

	"medcred/internal/document"
	"medcred/internal/registry"
	"medcred/pkg/platform/audit"
)

// LicenseLookup searches the professional registry.
type LicenseLookup interface {
	Lookup(ctx context.Context, id document.Identifier) registry.Lookup
}

// AuditPublisher emits audit events for compliance-relevant checks.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
