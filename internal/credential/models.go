package credential

import (
	"time"

	"medcred/internal/document"
	"medcred/internal/specialty"
)

// Source extends the registry sources with the format short-circuit.
type Source string

const (
	SourceRegistryScrape Source = "registry_scrape"
	SourceNotFound       Source = "not_found"
	SourceError          Source = "error"
	SourceNotAttempted   Source = "not_attempted"
)

// Request is one credential check. Names and birth date are optional.
type Request struct {
	DocumentType   string
	DocumentNumber string
	FirstName      string
	LastName       string
	BirthDate      *time.Time
	// SubjectRef is the caller's opaque reference for the person; it is
	// only used to key audit events.
	SubjectRef string
}

// FullName joins the supplied name parts.
func (r Request) FullName() string {
	switch {
	case r.FirstName == "":
		return r.LastName
	case r.LastName == "":
		return r.FirstName
	default:
		return r.FirstName + " " + r.LastName
	}
}

// Result is produced fresh per request and never cached.
//
// Invariants:
//   - IsVerified implies IsValid
//   - Specialty is set only when exactly one specialty was found
//   - Source error carries no registry fields
type Result struct {
	IsValid            bool
	IsVerified         bool
	DocumentType       document.Type
	Confidence         document.Confidence
	DoctorName         string
	Profession         string
	LicenseNumber      string
	LicenseStatus      string
	LicenseActive      bool
	Specialty          string
	Specialties        []string
	SpecialtyOutcome   specialty.Outcome
	NameMatched        *bool
	VerificationSource Source
	RawMatchCount      int
	Warnings           []string
	Errors             []string
	CheckedAt          time.Time
}
