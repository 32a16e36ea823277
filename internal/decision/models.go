// Package decision combines the registry credential check and the biometric
// session into one pass, fail or pending outcome.
package decision

import (
	"time"

	"medcred/internal/credential"
	"medcred/internal/verification"
)

// Status is the overall outcome.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusPending Status = "pending"
)

// Reason names the rule that decided the outcome.
type Reason string

const (
	ReasonInvalidDocument     Reason = "invalid_document"
	ReasonNotRegistered       Reason = "not_registered"
	ReasonLicenseInactive     Reason = "license_inactive"
	ReasonRegistryUnavailable Reason = "registry_unavailable"
	ReasonBiometricPending    Reason = "biometric_pending"
	ReasonBiometricFailed     Reason = "biometric_failed"
	ReasonBiometricEnded      Reason = "biometric_session_ended"
	ReasonAllChecksPassed     Reason = "all_checks_passed"
)

// Conditions attached to an outcome for the caller to act on.
const (
	ConditionRetryRegistry     = "retry_registry_lookup"
	ConditionCompleteBiometric = "complete_biometric_verification"
	ConditionRestartBiometric  = "restart_biometric_verification"
	ConditionConfirmSpecialty  = "confirm_specialty"
	ConditionReviewName        = "review_name_mismatch"
)

// Outcome is the composite decision.
type Outcome struct {
	Status      Status
	Reason      Reason
	Conditions  []string
	EvaluatedAt time.Time
}

// EvaluateRequest asks for a decision on one professional. SessionID is
// optional; without it the biometric side is pending.
type EvaluateRequest struct {
	Credential credential.Request
	SessionID  string
}

// EvaluateResult carries the outcome with the evidence it was built from.
type EvaluateResult struct {
	Outcome
	Credential credential.Result
	Session    *verification.Session
}
