package handler

import (
	"strings"
	"time"

	"medcred/internal/credential"
	"medcred/internal/decision"
	dErrors "medcred/pkg/domain-errors"
)

// EvaluateRequest is the HTTP request body for POST /decision/evaluate.
type EvaluateRequest struct {
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	BirthDate      string `json:"birth_date"`
	SubjectRef     string `json:"subject_ref"`
	SessionID      string `json:"session_id"`

	// Parsed values (populated by Validate)
	birthDate *time.Time
}

// Validate implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *EvaluateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.DocumentNumber) > 64 {
		return dErrors.New(dErrors.CodeValidation, "document_number is too long")
	}
	if strings.TrimSpace(r.DocumentNumber) == "" {
		return dErrors.New(dErrors.CodeValidation, "document_number is required")
	}
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.SessionID = strings.TrimSpace(r.SessionID)
	if r.BirthDate != "" {
		t, err := time.Parse("2006-01-02", r.BirthDate)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "birth_date must be YYYY-MM-DD")
		}
		r.birthDate = &t
	}
	return nil
}

func (r *EvaluateRequest) toDomain() decision.EvaluateRequest {
	return decision.EvaluateRequest{
		Credential: credential.Request{
			DocumentType:   r.DocumentType,
			DocumentNumber: r.DocumentNumber,
			FirstName:      r.FirstName,
			LastName:       r.LastName,
			BirthDate:      r.birthDate,
			SubjectRef:     r.SubjectRef,
		},
		SessionID: r.SessionID,
	}
}
