package document

import (
	"fmt"
	"regexp"
	"strings"
)

// Type is a document kind. The zero value is not a valid type.
type Type int

const (
	NationalID Type = iota + 1
	ForeignNationalID
	Passport
	ProfessionalLicense
	DriverLicense
	BirthRecord
)

var typeNames = map[Type]string{
	NationalID:          "national_id",
	ForeignNationalID:   "foreign_national_id",
	Passport:            "passport",
	ProfessionalLicense: "professional_license",
	DriverLicense:       "driver_license",
	BirthRecord:         "birth_record",
}

var typeAliases = map[string]Type{
	"national_id": NationalID, "cedula": NationalID, "cédula": NationalID, "v": NationalID, "ci": NationalID,
	"foreign_national_id": ForeignNationalID, "e": ForeignNationalID, "extranjero": ForeignNationalID, "foreign": ForeignNationalID,
	"passport": Passport, "pasaporte": Passport, "ve": Passport,
	"professional_license": ProfessionalLicense, "mpps": ProfessionalLicense, "license": ProfessionalLicense, "licencia": ProfessionalLicense,
	"driver_license": DriverLicense, "lc": DriverLicense, "licencia_conducir": DriverLicense, "driver": DriverLicense,
	"birth_record": BirthRecord, "pn": BirthRecord, "partida_nacimiento": BirthRecord, "birth": BirthRecord,
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("document.Type(%d)", int(t))
}

// MarshalText renders the canonical name so JSON responses carry strings.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseType resolves a canonical name or a common alias, case-insensitively.
func ParseType(s string) (Type, bool) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// rule is the shape of one document type. digits is the capture group
// holding the numeric part.
type rule struct {
	pattern    *regexp.Regexp
	checkDigit func(digits string) bool
}

var rules = map[Type]rule{
	NationalID:          {pattern: regexp.MustCompile(`^(?:V-?)?(\d{7,8})$`), checkDigit: nationalCheckDigit},
	ForeignNationalID:   {pattern: regexp.MustCompile(`^E-?(\d{8})$`), checkDigit: foreignCheckDigit},
	Passport:            {pattern: regexp.MustCompile(`^VE(\d{7})$`), checkDigit: passportCheckDigit},
	ProfessionalLicense: {pattern: regexp.MustCompile(`^(?:MPPS-?)?(\d{4,8})$`)},
	DriverLicense:       {pattern: regexp.MustCompile(`^LC-?(\d{7,8})$`)},
	BirthRecord:         {pattern: regexp.MustCompile(`^PN-?(\d{6,12})$`)},
}

// Order matters: VE before E.
var prefixes = []struct {
	pattern *regexp.Regexp
	typ     Type
}{
	{regexp.MustCompile(`^VE\d`), Passport},
	{regexp.MustCompile(`^E-?\d`), ForeignNationalID},
	{regexp.MustCompile(`^LC-?\d`), DriverLicense},
	{regexp.MustCompile(`^MPPS-?\d`), ProfessionalLicense},
	{regexp.MustCompile(`^PN-?\d`), BirthRecord},
}

// InferType guesses a type from prefix conventions, defaulting to NationalID.
func InferType(normalized string) Type {
	for _, p := range prefixes {
		if p.pattern.MatchString(normalized) {
			return p.typ
		}
	}
	return NationalID
}

// Identifier is a normalized document number paired with its type.
//
// Invariants:
//   - Value is upper case with no surrounding or inner whitespace and no dots
//   - Type is one of the declared constants
type Identifier struct {
	typ   Type
	value string
}

var stripper = strings.NewReplacer(" ", "", "\t", "", ".", "", "\u00a0", "")

// Normalize upper-cases and strips whitespace and thousands dots.
func Normalize(raw string) string {
	return stripper.Replace(strings.ToUpper(strings.TrimSpace(raw)))
}

// NewIdentifier normalizes raw and pairs it with t.
func NewIdentifier(t Type, raw string) Identifier {
	return Identifier{typ: t, value: Normalize(raw)}
}

func (i Identifier) Type() Type { return i.typ }
func (i Identifier) Value() string { return i.value }
func (i Identifier) String() string { return i.value }

// Digits returns the numeric part of the value when it matches its type's
// shape, or "" otherwise.
func (i Identifier) Digits() string {
	r, ok := rules[i.typ]
	if !ok {
		return ""
	}
	m := r.pattern.FindStringSubmatch(i.value)
	if m == nil {
		return ""
	}
	return m[1]
}
