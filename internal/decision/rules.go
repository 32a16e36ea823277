package decision

import (
	"medcred/internal/credential"
	"medcred/internal/specialty"
	"medcred/internal/verification"
)

// Evaluate applies the rule chain. Pure domain logic, no I/O.
// Rule priority (fail-fast):
//  1. Document format
//  2. Registry availability (pending, never a false negative)
//  3. Registry match and license standing
//  4. Biometric decision present (pending otherwise)
//  5. Biometric score
func Evaluate(cred credential.Result, bio *verification.Decision) Outcome {
	out := Outcome{Conditions: []string{}}

	switch {
	case !cred.IsValid:
		return out.with(StatusFail, ReasonInvalidDocument)
	case cred.VerificationSource == credential.SourceError:
		out.Conditions = append(out.Conditions, ConditionRetryRegistry)
		return out.with(StatusPending, ReasonRegistryUnavailable)
	case cred.VerificationSource != credential.SourceRegistryScrape:
		return out.with(StatusFail, ReasonNotRegistered)
	case !cred.LicenseActive:
		return out.with(StatusFail, ReasonLicenseInactive)
	}

	if bio == nil {
		out.Conditions = append(out.Conditions, ConditionCompleteBiometric)
		return out.with(StatusPending, ReasonBiometricPending)
	}
	if !bio.Successful() {
		return out.with(StatusFail, ReasonBiometricFailed)
	}

	if cred.SpecialtyOutcome == specialty.OutcomeMultiple {
		out.Conditions = append(out.Conditions, ConditionConfirmSpecialty)
	}
	if cred.NameMatched != nil && !*cred.NameMatched {
		out.Conditions = append(out.Conditions, ConditionReviewName)
	}
	return out.with(StatusPass, ReasonAllChecksPassed)
}

// EvaluateSession is Evaluate for a session snapshot. A session that ended
// without a decision fails instead of staying pending forever.
func EvaluateSession(cred credential.Result, session *verification.Session) Outcome {
	var bio *verification.Decision
	if session != nil {
		bio = session.Decision
	}
	out := Evaluate(cred, bio)
	if out.Reason != ReasonBiometricPending || session == nil {
		return out
	}
	if session.State == verification.StateFailed || session.State == verification.StateExpired {
		out.Conditions = []string{ConditionRestartBiometric}
		return out.with(StatusFail, ReasonBiometricEnded)
	}
	return out
}

func (o Outcome) with(status Status, reason Reason) Outcome {
	o.Status = status
	o.Reason = reason
	return o
}
