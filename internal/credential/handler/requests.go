package handler

import (
	"strings"
	"time"

	"medcred/internal/credential"
	dErrors "medcred/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

// VerifyRequest is the body of POST /credentials/verify. Document problems
// are reported in the response, so only the birth date shape is checked here.
type VerifyRequest struct {
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	BirthDate      string `json:"birth_date"`
	SubjectRef     string `json:"subject_ref"`

	birthDate *time.Time
}

func (r *VerifyRequest) Validate() error {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if len(r.DocumentNumber) > 64 {
		return dErrors.New(dErrors.CodeValidation, "document_number is too long")
	}
	if r.BirthDate != "" {
		t, err := time.Parse(dateLayout, r.BirthDate)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "birth_date must be YYYY-MM-DD")
		}
		r.birthDate = &t
	}
	return nil
}

func (r *VerifyRequest) toDomain() credential.Request {
	return credential.Request{
		DocumentType:   r.DocumentType,
		DocumentNumber: r.DocumentNumber,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		BirthDate:      r.birthDate,
		SubjectRef:     r.SubjectRef,
	}
}
