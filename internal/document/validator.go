package document

import (
	"fmt"
	"time"
)

// Confidence grades how much a Result can be trusted.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Age limits outside of which an age is suspicious.
const (
	MinAge = 0
	MaxAge = 120
)

const (
	WarnTypeInferred       = "document type inferred from prefix"
	WarnNationalCheckDigit = "national id check digit does not match; legacy series may not carry one"
	ErrMissingNumber       = "document number is required"
	ErrDocumentExpired     = "document expired"
)

// Result is derived, never persisted. Errors and Warnings are never nil.
type Result struct {
	Identifier      Identifier `json:"-"`
	DocumentType    Type       `json:"document_type"`
	Normalized      string     `json:"normalized"`
	TypeInferred    bool       `json:"type_inferred"`
	FormatValid     bool       `json:"format_valid"`
	IsValid         bool       `json:"is_valid"`
	CheckDigitValid bool       `json:"check_digit_valid"`
	Confidence      Confidence `json:"confidence"`
	Errors          []string   `json:"errors"`
	Warnings        []string   `json:"warnings"`
	Age             *int       `json:"age,omitempty"`
	IsExpired       bool       `json:"is_expired"`
}

type options struct {
	typ       Type
	typeName  string
	birthDate *time.Time
	expiry    *time.Time
	now       time.Time
}

// Option customizes a single Validate call.
type Option func(*options)

// WithType skips prefix inference.
func WithType(t Type) Option {
	return func(o *options) { o.typ = t }
}

// WithTypeName resolves a caller-supplied type string. Empty means infer;
// an unknown name falls back to NationalID with a warning.
func WithTypeName(name string) Option {
	return func(o *options) { o.typeName = name }
}

func WithBirthDate(t time.Time) Option {
	return func(o *options) { o.birthDate = &t }
}

func WithExpiryDate(t time.Time) Option {
	return func(o *options) { o.expiry = &t }
}

func WithNow(t time.Time) Option {
	return func(o *options) { o.now = t }
}

// Validate checks raw against its document type.
func Validate(raw string, opts ...Option) Result {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now.IsZero() {
		o.now = time.Now()
	}

	res := Result{Errors: []string{}, Warnings: []string{}}
	normalized := Normalize(raw)

	typ := o.typ
	if typ == 0 && o.typeName != "" {
		if parsed, ok := ParseType(o.typeName); ok {
			typ = parsed
		} else {
			typ = NationalID
			res.Warnings = append(res.Warnings, fmt.Sprintf("unknown document type %q, defaulting to national_id", o.typeName))
		}
	}
	if _, known := rules[typ]; !known {
		typ = InferType(normalized)
		res.TypeInferred = true
		res.Warnings = append(res.Warnings, WarnTypeInferred)
	}

	res.Identifier = NewIdentifier(typ, normalized)
	res.DocumentType = typ
	res.Normalized = normalized

	if normalized == "" {
		res.Errors = append(res.Errors, ErrMissingNumber)
	} else {
		digits := res.Identifier.Digits()
		res.FormatValid = digits != ""
		if !res.FormatValid {
			res.Errors = append(res.Errors, fmt.Sprintf("invalid format for %s", typ))
		} else {
			res.CheckDigitValid = checkDigit(typ, digits)
			if !res.CheckDigitValid {
				if typ == NationalID {
					res.Warnings = append(res.Warnings, WarnNationalCheckDigit)
				} else {
					res.Errors = append(res.Errors, fmt.Sprintf("invalid check digit for %s", typ))
				}
			}
		}
	}

	if o.birthDate != nil {
		age := AgeAt(*o.birthDate, o.now)
		res.Age = &age
		if age < MinAge || age > MaxAge {
			res.Warnings = append(res.Warnings, fmt.Sprintf("age %d outside expected range [%d,%d]", age, MinAge, MaxAge))
		}
	}
	if o.expiry != nil && o.expiry.Before(o.now) {
		res.IsExpired = true
		res.Errors = append(res.Errors, ErrDocumentExpired)
	}

	res.IsValid = len(res.Errors) == 0
	res.Confidence = Score(res)
	return res
}

func checkDigit(t Type, digits string) bool {
	fn := rules[t].checkDigit
	if fn == nil {
		return true
	}
	return fn(digits)
}

// AgeAt is the number of full years between birth and now. Negative when
// birth is in the future.
func AgeAt(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

// Score derives confidence from six positive conditions: format matched,
// check digit valid, no errors, no warnings, not expired, age absent or in
// range. All six is high, at least four is medium.
func Score(r Result) Confidence {
	conditions := []bool{
		r.FormatValid,
		r.CheckDigitValid,
		len(r.Errors) == 0,
		len(r.Warnings) == 0,
		!r.IsExpired,
		r.Age == nil || (*r.Age >= MinAge && *r.Age <= MaxAge),
	}
	held := 0
	for _, c := range conditions {
		if c {
			held++
		}
	}
	switch {
	case held == len(conditions):
		return ConfidenceHigh
	case held >= 4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
