package document

import (
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// =============================================================================
// Document Validator Test Suite
// =============================================================================
// Justification for unit tests: validation is pure and its check digit
// arithmetic and confidence grading are asserted exactly by callers, so
// fixed vectors and properties are tested here rather than through HTTP.

type ValidatorSuite struct {
	suite.Suite
	now time.Time
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) SetupTest() {
	s.now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func (s *ValidatorSuite) validate(raw string, opts ...Option) Result {
	return Validate(raw, append([]Option{WithNow(s.now)}, opts...)...)
}

// =============================================================================
// National ID
// =============================================================================

func (s *ValidatorSuite) TestNationalID_ValidCheckDigit() {
	for _, raw := range []string{"V-12345672", "V12345672", "12345672", "1234567", " v-12.345.672 "} {
		s.Run(raw, func() {
			res := s.validate(raw, WithType(NationalID))
			s.True(res.IsValid)
			s.True(res.CheckDigitValid)
			s.Empty(res.Errors)
			s.Empty(res.Warnings)
			s.Equal(ConfidenceHigh, res.Confidence)
		})
	}
}

func (s *ValidatorSuite) TestNationalID_CheckDigitMismatchIsWarning() {
	res := s.validate("V-13266929", WithType(NationalID))

	s.True(res.IsValid, "legacy series stay format-valid")
	s.False(res.CheckDigitValid)
	s.Empty(res.Errors)
	s.Contains(res.Warnings, WarnNationalCheckDigit)
	s.Equal(ConfidenceMedium, res.Confidence)
}

func (s *ValidatorSuite) TestNationalID_BadFormat() {
	for _, raw := range []string{"V-123456", "V-123456789", "X-1234567", "V--1234567", "12A45678"} {
		s.Run(raw, func() {
			res := s.validate(raw, WithType(NationalID))
			s.False(res.IsValid)
			s.False(res.FormatValid)
			s.Contains(res.Errors, "invalid format for national_id")
		})
	}
}

// =============================================================================
// Foreign National ID and Passport
// =============================================================================

func (s *ValidatorSuite) TestForeignNationalID() {
	// 1*1+2*2+...+7*7 = 140, check digit 0.
	valid := s.validate("E-12345670", WithType(ForeignNationalID))
	s.True(valid.IsValid)
	s.True(valid.CheckDigitValid)

	invalid := s.validate("E-12345678", WithType(ForeignNationalID))
	s.False(invalid.IsValid)
	s.False(invalid.CheckDigitValid)
	s.Contains(invalid.Errors, "invalid check digit for foreign_national_id")

	short := s.validate("E-1234567", WithType(ForeignNationalID))
	s.False(short.FormatValid)
}

func (s *ValidatorSuite) TestPassport_WeightedSumVectors() {
	// VE1234560: 1+4+9+16+25+36+0 = 91, not a multiple of 10.
	s.Equal(91, weightedAscending("1234560"))
	res := s.validate("VE1234560", WithType(Passport))
	s.False(res.CheckDigitValid)
	s.False(res.IsValid)
	s.Contains(res.Errors, "invalid check digit for passport")

	// VE1234567: 1+4+9+16+25+36+49 = 140.
	s.Equal(140, weightedAscending("1234567"))
	res = s.validate("VE1234567", WithType(Passport))
	s.True(res.CheckDigitValid)
	s.True(res.IsValid)
	s.Equal(ConfidenceHigh, res.Confidence)
}

// =============================================================================
// Format-only types
// =============================================================================

func (s *ValidatorSuite) TestFormatOnlyTypes() {
	cases := []struct {
		raw   string
		typ   Type
		valid bool
	}{
		{"MPPS-12345", ProfessionalLicense, true},
		{"98765", ProfessionalLicense, true},
		{"MPPS-123", ProfessionalLicense, false},
		{"LC-1234567", DriverLicense, true},
		{"LC12345678", DriverLicense, true},
		{"LC-123", DriverLicense, false},
		{"PN-123456", BirthRecord, true},
		{"PN123456789012", BirthRecord, true},
		{"PN-12345", BirthRecord, false},
	}
	for _, tc := range cases {
		s.Run(tc.raw, func() {
			res := s.validate(tc.raw, WithType(tc.typ))
			s.Equal(tc.valid, res.IsValid)
			s.Equal(tc.valid, res.CheckDigitValid, "format-only types have no check digit to fail")
		})
	}
}

// =============================================================================
// Type resolution
// =============================================================================

func (s *ValidatorSuite) TestInference() {
	cases := map[string]Type{
		"VE1234567":  Passport,
		"E-12345670": ForeignNationalID,
		"E12345670":  ForeignNationalID,
		"LC-1234567": DriverLicense,
		"MPPS-4455":  ProfessionalLicense,
		"PN-123456":  BirthRecord,
		"V-12345672": NationalID,
		"12345672":   NationalID,
		"EXAMPLE":    NationalID,
	}
	for raw, want := range cases {
		s.Run(raw, func() {
			res := s.validate(raw)
			s.Equal(want, res.DocumentType)
			s.True(res.TypeInferred)
			s.Contains(res.Warnings, WarnTypeInferred)
			s.NotEqual(ConfidenceHigh, res.Confidence, "inference lowers confidence")
		})
	}
}

func (s *ValidatorSuite) TestUnknownTypeNameDefaultsToNationalID() {
	res := s.validate("V-12345672", WithTypeName("library-card"))
	s.Equal(NationalID, res.DocumentType)
	s.False(res.TypeInferred)
	s.True(res.IsValid)
	s.Len(res.Warnings, 1)
	s.Contains(res.Warnings[0], "library-card")
}

func (s *ValidatorSuite) TestTypeNameAliases() {
	res := s.validate("VE1234567", WithTypeName("Pasaporte"))
	s.Equal(Passport, res.DocumentType)
	s.Empty(res.Warnings)
}

// =============================================================================
// Never panics
// =============================================================================

func (s *ValidatorSuite) TestGarbageInput() {
	for _, raw := range []string{"not-a-document", "", "   ", "V-", "🙂🙂🙂", "VE", "\x00\x01"} {
		s.Run(strconv.Quote(raw), func() {
			var res Result
			s.NotPanics(func() { res = s.validate(raw) })
			s.False(res.IsValid)
			s.NotEmpty(res.Errors)
			s.NotNil(res.Warnings)
			s.Equal(ConfidenceLow, res.Confidence)
		})
	}
}

// =============================================================================
// Age and expiry
// =============================================================================

func (s *ValidatorSuite) TestAge() {
	birth := time.Date(2000, 6, 16, 0, 0, 0, 0, time.UTC)
	res := s.validate("V-12345672", WithType(NationalID), WithBirthDate(birth))
	s.Require().NotNil(res.Age)
	s.Equal(24, *res.Age, "birthday not reached yet this year")

	birth = time.Date(2000, 6, 15, 0, 0, 0, 0, time.UTC)
	res = s.validate("V-12345672", WithType(NationalID), WithBirthDate(birth))
	s.Equal(25, *res.Age)
	s.Equal(ConfidenceHigh, res.Confidence)
}

func (s *ValidatorSuite) TestAgeOutOfRangeIsWarning() {
	future := s.now.AddDate(1, 0, 0)
	res := s.validate("V-12345672", WithType(NationalID), WithBirthDate(future))
	s.True(res.IsValid)
	s.Equal(-1, *res.Age)
	s.Len(res.Warnings, 1)
	s.Equal(ConfidenceMedium, res.Confidence)

	ancient := time.Date(1890, 1, 1, 0, 0, 0, 0, time.UTC)
	res = s.validate("V-12345672", WithType(NationalID), WithBirthDate(ancient))
	s.True(res.IsValid)
	s.Equal(135, *res.Age)
	s.Equal(ConfidenceMedium, res.Confidence)
}

func (s *ValidatorSuite) TestExpired() {
	res := s.validate("VE1234567", WithType(Passport), WithExpiryDate(s.now.Add(-time.Hour)))
	s.True(res.IsExpired)
	s.False(res.IsValid)
	s.Contains(res.Errors, ErrDocumentExpired)

	res = s.validate("VE1234567", WithType(Passport), WithExpiryDate(s.now.AddDate(1, 0, 0)))
	s.False(res.IsExpired)
	s.True(res.IsValid)
}

// =============================================================================
// Properties
// =============================================================================

// Every body extended with its computed check digit validates, and every
// other final digit fails, for both supported lengths.
func TestNationalCheckDigit_FlipLastDigit(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for _, length := range []int{7, 8} {
		for range 500 {
			body := make([]byte, length-1)
			for i := range body {
				body[i] = byte('0' + rng.IntN(10))
			}
			check := completeNationalID(string(body))
			doc := string(body) + string(check)

			res := Validate(doc, WithType(NationalID))
			require.True(t, res.CheckDigitValid, doc)

			for d := byte('0'); d <= '9'; d++ {
				if d == check {
					continue
				}
				flipped := string(body) + string(d)
				assert.False(t, Validate(flipped, WithType(NationalID)).CheckDigitValid, flipped)
			}
		}
	}
}

func TestScore(t *testing.T) {
	age := func(n int) *int { return &n }
	cases := []struct {
		name string
		res  Result
		want Confidence
	}{
		{"all six", Result{FormatValid: true, CheckDigitValid: true}, ConfidenceHigh},
		{"one warning", Result{FormatValid: true, CheckDigitValid: true, Warnings: []string{"w"}}, ConfidenceMedium},
		{"bad check digit and warning", Result{FormatValid: true, Warnings: []string{"w"}}, ConfidenceMedium},
		{"three failing", Result{FormatValid: true, Warnings: []string{"w"}, Errors: []string{"e"}}, ConfidenceLow},
		{"age out of range", Result{FormatValid: true, CheckDigitValid: true, Age: age(130)}, ConfidenceMedium},
		{"age in range", Result{FormatValid: true, CheckDigitValid: true, Age: age(40)}, ConfidenceHigh},
		{"nothing", Result{Errors: []string{"e"}, IsExpired: true}, ConfidenceLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.res))
		})
	}
}

func weightedAscending(digits string) int {
	sum := 0
	for i := range len(digits) {
		sum += int(digits[i]-'0') * (i + 1)
	}
	return sum
}

// completeNationalID returns the digit that makes body a valid national id.
func completeNationalID(body string) byte {
	n := len(body) + 1
	sum := 0
	for i := 0; i < len(body); i++ {
		sum += int(body[i]-'0') * (n - i)
	}
	return byte('0' + sum%10)
}
