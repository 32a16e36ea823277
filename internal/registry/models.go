package registry

import (
	"time"

	"medcred/internal/specialty"
)

// Candidate is one result row from the registry. All fields are
// best-effort text; the registry guarantees no schema.
type Candidate struct {
	DocumentNumber string
	Name           string
	Profession     string
	LicenseNumber  string
	LicenseStatus  string
	SpecialtyText  string
}

// Source records where a lookup answer came from.
type Source string

const (
	SourceRegistryScrape Source = "registry_scrape"
	SourceNotFound       Source = "not_found"
	SourceError          Source = "error"
)

// Lookup is the outcome of one registry search. Match is nil unless
// Source is SourceRegistryScrape. On SourceError no partial data is kept.
type Lookup struct {
	Source        Source
	Match         *Candidate
	Specialties   specialty.Analysis
	LicenseActive bool
	RawMatchCount int
	Attempts      int
	Warnings      []string
	Err           error
	CheckedAt     time.Time
}

// Found reports whether an exact document match was returned.
func (l Lookup) Found() bool {
	return l.Source == SourceRegistryScrape && l.Match != nil
}
