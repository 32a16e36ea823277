package handler

import (
	"strings"
	"time"

	"medcred/internal/verification"
	dErrors "medcred/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

// StartSessionRequest is the body of POST /verification/sessions.
type StartSessionRequest struct {
	SubjectID      string `json:"subject_id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	DateOfBirth    string `json:"date_of_birth"`
	DocumentNumber string `json:"document_number"`

	dateOfBirth *time.Time
}

func (r *StartSessionRequest) Validate() error {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	if len(r.SubjectID) > 128 {
		return dErrors.New(dErrors.CodeValidation, "subject_id is too long")
	}
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.DocumentNumber = strings.TrimSpace(r.DocumentNumber)
	if r.DateOfBirth != "" {
		t, err := time.Parse(dateLayout, r.DateOfBirth)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "date_of_birth must be YYYY-MM-DD")
		}
		r.dateOfBirth = &t
	}
	return nil
}

func (r *StartSessionRequest) toDomain() verification.StartRequest {
	return verification.StartRequest{
		SubjectID:      r.SubjectID,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		DateOfBirth:    r.dateOfBirth,
		DocumentNumber: r.DocumentNumber,
	}
}

// DecisionResponse is the scored outcome of a completed session.
type DecisionResponse struct {
	DocumentVerified bool `json:"document_verified"`
	IdentityVerified bool `json:"identity_verified"`
	LivenessVerified bool `json:"liveness_verified"`
	AMLCleared       bool `json:"aml_cleared"`
	Score            int  `json:"score"`
	Successful       bool `json:"successful"`
}

// SessionResponse is the JSON view of a session.
type SessionResponse struct {
	SessionID      string            `json:"session_id"`
	SubjectID      string            `json:"subject_id"`
	State          string            `json:"state"`
	ProviderStatus string            `json:"provider_status,omitempty"`
	URL            string            `json:"url"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
	LastPolledAt   *time.Time        `json:"last_polled_at,omitempty"`
	Features       []string          `json:"features"`
	Decision       *DecisionResponse `json:"decision,omitempty"`
	FailureReason  string            `json:"failure_reason,omitempty"`
}

func FromSession(s verification.Session) SessionResponse {
	out := SessionResponse{
		SessionID:      s.ID,
		SubjectID:      s.SubjectID,
		State:          string(s.State),
		ProviderStatus: s.ProviderStatus,
		URL:            s.URL,
		CreatedAt:      s.CreatedAt,
		ExpiresAt:      s.ExpiresAt,
		LastPolledAt:   s.LastPolledAt,
		Features:       s.Features,
		FailureReason:  s.FailureReason,
	}
	if out.Features == nil {
		out.Features = []string{}
	}
	if s.Decision != nil {
		out.Decision = &DecisionResponse{
			DocumentVerified: s.Decision.DocumentVerified,
			IdentityVerified: s.Decision.IdentityVerified,
			LivenessVerified: s.Decision.LivenessVerified,
			AMLCleared:       s.Decision.AMLCleared,
			Score:            s.Decision.Score,
			Successful:       s.Decision.Successful(),
		}
	}
	return out
}
