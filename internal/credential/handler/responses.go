package handler

import (
	"time"

	"medcred/internal/credential"
)

// VerifyResponse is the HTTP response for POST /credentials/verify.
type VerifyResponse struct {
	IsValid            bool      `json:"is_valid"`
	IsVerified         bool      `json:"is_verified"`
	DocumentType       string    `json:"document_type"`
	Confidence         string    `json:"confidence"`
	DoctorName         string    `json:"doctor_name,omitempty"`
	Profession         string    `json:"profession,omitempty"`
	LicenseNumber      string    `json:"license_number,omitempty"`
	LicenseStatus      string    `json:"license_status,omitempty"`
	Specialty          string    `json:"specialty,omitempty"`
	Specialties        []string  `json:"specialties"`
	SpecialtyOutcome   string    `json:"specialty_outcome"`
	NameMatched        *bool     `json:"name_matched,omitempty"`
	VerificationSource string    `json:"verification_source"`
	RawMatchCount      int       `json:"raw_match_count"`
	Warnings           []string  `json:"warnings"`
	Errors             []string  `json:"errors"`
	CheckedAt          time.Time `json:"checked_at"`
}

func FromResult(r credential.Result) *VerifyResponse {
	return &VerifyResponse{
		IsValid:            r.IsValid,
		IsVerified:         r.IsVerified,
		DocumentType:       r.DocumentType.String(),
		Confidence:         string(r.Confidence),
		DoctorName:         r.DoctorName,
		Profession:         r.Profession,
		LicenseNumber:      r.LicenseNumber,
		LicenseStatus:      r.LicenseStatus,
		Specialty:          r.Specialty,
		Specialties:        r.Specialties,
		SpecialtyOutcome:   string(r.SpecialtyOutcome),
		NameMatched:        r.NameMatched,
		VerificationSource: string(r.VerificationSource),
		RawMatchCount:      r.RawMatchCount,
		Warnings:           r.Warnings,
		Errors:             r.Errors,
		CheckedAt:          r.CheckedAt,
	}
}
