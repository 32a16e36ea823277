// Package specialty extracts medical specialty labels from free-form
// registry profile text.
//
// A profile may list no specialty (general practice), one, or several, so
// the analyzer never assumes one per profile and reports which case it saw.
package specialty

import (
	"fmt"
	"regexp"
	"strings"

	pstrings "medcred/pkg/platform/strings"
)

// Outcome distinguishes "nothing registered" from "ambiguous" so callers
// never have to guess from an empty string.
type Outcome string

const (
	OutcomeNone     Outcome = "none"
	OutcomeSingle   Outcome = "single"
	OutcomeMultiple Outcome = "multiple"
)

// Analysis is the analyzer output. Specialties is never nil.
type Analysis struct {
	Specialties []string `json:"specialties"`
	Outcome     Outcome  `json:"outcome"`
	// Diagnostic is set when parsing failed and the empty result is a
	// fallback rather than a finding.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Primary returns the only specialty when exactly one was found.
func (a Analysis) Primary() (string, bool) {
	if a.Outcome != OutcomeSingle {
		return "", false
	}
	return a.Specialties[0], true
}

var (
	breakTag      = regexp.MustCompile(`(?i)<br\s*/?>`)
	lineSplit     = regexp.MustCompile(`[\r\n;]+`)
	sectionHeader = regexp.MustCompile(`^(?:ESPECIALIDAD(?:ES)?|POSTGRADOS?|ESPECIALIZACI[OÓ]N(?:ES)?)\s*:?\s*(.*)$`)
	otherHeader   = regexp.MustCompile(`^[\p{Lu}\s]{3,40}:`)
	specialistOf  = regexp.MustCompile(`ESPECIALISTA EN [\p{Lu} ]*\p{Lu}`)
	trailingPunct = " .,:-"
)

var placeholders = map[string]struct{}{
	"N/A":              {},
	"NA":               {},
	"NINGUNA":          {},
	"NINGUNO":          {},
	"NO POSEE":         {},
	"NO REGISTRA":      {},
	"SIN ESPECIALIDAD": {},
	"-":                {},
	"--":               {},
}

// Analyze returns the normalized, de-duplicated specialties found in text.
// It never panics: a failure degrades to the empty result with Diagnostic set.
func Analyze(text string) (a Analysis) {
	defer func() {
		if r := recover(); r != nil {
			a = Analysis{Specialties: []string{}, Outcome: OutcomeNone, Diagnostic: fmt.Sprintf("specialty parse failed: %v", r)}
		}
	}()

	found := extractFn(text)
	specialties := pstrings.DedupeBy(found, normalize)
	if specialties == nil {
		specialties = []string{}
	}
	return Analysis{Specialties: specialties, Outcome: outcomeOf(len(specialties))}
}

// extractFn is swapped in tests to exercise the recovery path.
var extractFn = extract

func extract(text string) []string {
	text = breakTag.ReplaceAllString(text, "\n")
	found := []string{}
	inSection := false

	for _, raw := range lineSplit.Split(text, -1) {
		line := strings.ToUpper(pstrings.CollapseSpace(raw))
		if line == "" {
			continue
		}

		if phrases := specialistOf.FindAllString(line, -1); len(phrases) > 0 {
			found = append(found, phrases...)
			if m := sectionHeader.FindStringSubmatch(line); m != nil {
				inSection = true
			}
			continue
		}

		if m := sectionHeader.FindStringSubmatch(line); m != nil {
			inSection = true
			if rest := m[1]; rest != "" {
				found = append(found, rest)
			}
			continue
		}
		if otherHeader.MatchString(line) {
			inSection = false
			continue
		}
		if inSection {
			found = append(found, line)
		}
	}
	return found
}

func normalize(s string) string {
	s = strings.Trim(strings.ToUpper(pstrings.CollapseSpace(s)), trailingPunct)
	if _, ok := placeholders[s]; ok {
		return ""
	}
	return s
}

func outcomeOf(n int) Outcome {
	switch n {
	case 0:
		return OutcomeNone
	case 1:
		return OutcomeSingle
	default:
		return OutcomeMultiple
	}
}
