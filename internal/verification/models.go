// Package verification manages biometric identity verification sessions:
// creation at the provider, polling and webhook updates through one
// transition function, expiry detection and the final decision score.
package verification

import (
	"time"

	"medcred/internal/verification/provider"
)

// State is the lifecycle position of a session.
type State string

const (
	StateIdle       State = "idle"
	StateCreated    State = "created"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateExpired    State = "expired"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateExpired
}

// Failure reasons recorded on failed and expired sessions.
const (
	ReasonExpired        = "verification session expired, please restart"
	ReasonAbandoned      = "verification abandoned by the subject"
	ReasonStopped        = "stopped"
	ReasonMalformed      = "provider response malformed"
	ReasonRejected       = "provider rejected the session request"
	ReasonRetryExhausted = "provider unavailable after repeated attempts"
)

// Session is a point-in-time copy of a tracked verification session.
type Session struct {
	ID             string
	SubjectID      string
	State          State
	ProviderStatus string
	URL            string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Features       []string
	LastPolledAt   *time.Time
	Decision       *Decision
	FailureReason  string
}

// EventSource identifies which trigger delivered a status event.
type EventSource string

const (
	SourcePoll    EventSource = "poll"
	SourceWebhook EventSource = "webhook"
	SourceTimer   EventSource = "timer"
	SourceStop    EventSource = "stop"
)

// Event is a status update for one session. Exactly one of Decision, Err,
// Expired or Stopped describes what happened.
type Event struct {
	SessionID string
	Source    EventSource
	Decision  *provider.Decision
	Err       error
	Expired   bool
	Stopped   bool
	At        time.Time
}

// StartRequest opens a new session for a subject.
type StartRequest struct {
	SubjectID      string
	FirstName      string
	LastName       string
	DateOfBirth    *time.Time
	DocumentNumber string
}
