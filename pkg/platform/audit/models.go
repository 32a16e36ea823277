package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// Categories drive retention and routing in downstream sinks.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: a
	// professional was (or was not) confirmed as licensed and present.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected webhooks and other integrity signals.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers lifecycle noise useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	// Subject is a non-PII handle: a verification session ID or the
	// caller-supplied subject reference.
	Subject  string
	Action   string
	Decision string
	Reason   string
	// SubjectIDHash is a SHA-256 of the document number being verified, so
	// compliance can correlate checks without storing the raw identifier.
	SubjectIDHash string
	RequestID     string
	Caller        string
}

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// SubjectLister is implemented by stores that can be read back.
type SubjectLister interface {
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}

type AuditEvent string

const (
	// Credential events
	EventCredentialVerified AuditEvent = "credential_verified"
	EventCredentialRejected AuditEvent = "credential_rejected"

	// Verification session events
	EventSessionStarted   AuditEvent = "verification_session_started"
	EventSessionCompleted AuditEvent = "verification_session_completed"
	EventSessionFailed    AuditEvent = "verification_session_failed"
	EventSessionExpired   AuditEvent = "verification_session_expired"
	EventSessionStopped   AuditEvent = "verification_session_stopped"

	// Webhook events
	EventWebhookRejected  AuditEvent = "verification_webhook_rejected"
	EventWebhookDuplicate AuditEvent = "verification_webhook_duplicate"

	// Decision events
	EventDecisionMade AuditEvent = "decision_made"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCredentialVerified: CategoryCompliance,
	EventCredentialRejected: CategoryCompliance,
	EventSessionCompleted:   CategoryCompliance,
	EventDecisionMade:       CategoryCompliance,

	EventWebhookRejected: CategorySecurity,

	EventSessionStarted:   CategoryOperations,
	EventSessionFailed:    CategoryOperations,
	EventSessionExpired:   CategoryOperations,
	EventSessionStopped:   CategoryOperations,
	EventWebhookDuplicate: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// NewEvent builds an event with its category, ID and timestamp filled in.
func NewEvent(action AuditEvent, subject string, now time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Category:  action.Category(),
		Timestamp: now,
		Subject:   subject,
		Action:    string(action),
	}
}

// HashSubjectID returns the hex SHA-256 of a document number.
func HashSubjectID(documentNumber string) string {
	if documentNumber == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(documentNumber))
	return hex.EncodeToString(sum[:])
}
