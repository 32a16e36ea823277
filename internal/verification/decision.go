package verification

import (
	"strings"

	"medcred/internal/verification/provider"
)

// PassingScore is the minimum score for a successful verification.
const PassingScore = 75

// Decision is the scored outcome of a completed session.
type Decision struct {
	SessionID        string
	ProviderStatus   string
	DocumentVerified bool
	IdentityVerified bool
	LivenessVerified bool
	AMLCleared       bool
	Score            int
}

// Successful reports whether enough sub-verifications passed.
func (d Decision) Successful() bool {
	return d.Score >= PassingScore
}

// Score weighs each passed sub-verification at 25 points.
func Score(document, identity, liveness, aml bool) int {
	score := 0
	for _, ok := range []bool{document, identity, liveness, aml} {
		if ok {
			score += 25
		}
	}
	return score
}

// Evaluate derives the four flags from the provider's sub-statuses.
// Absent checks count as not passed.
func Evaluate(sessionID string, d *provider.Decision) Decision {
	out := Decision{SessionID: sessionID}
	if d == nil {
		return out
	}
	out.ProviderStatus = d.Status
	if d.IDVerification != nil {
		out.DocumentVerified = statusIn(d.IDVerification.Status, "approved", "verified")
	}
	if d.FaceMatch != nil {
		out.IdentityVerified = statusIn(d.FaceMatch.Status, "approved", "match")
	}
	if d.Liveness != nil {
		out.LivenessVerified = statusIn(d.Liveness.Status, "approved", "live")
	}
	if d.AML != nil {
		out.AMLCleared = statusIn(d.AML.Status, "approved", "clear", "low risk") ||
			(normalizeStatus(d.AML.Status) == "" && d.AML.TotalHits == 0)
	}
	out.Score = Score(out.DocumentVerified, out.IdentityVerified, out.LivenessVerified, out.AMLCleared)
	return out
}

func statusIn(status string, accepted ...string) bool {
	s := normalizeStatus(status)
	for _, a := range accepted {
		if s == a {
			return true
		}
	}
	return false
}

func normalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
