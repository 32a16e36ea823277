package credential

import (
	"sort"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultNameThreshold is the Jaro-Winkler similarity above which two
// names are considered the same person.
const DefaultNameThreshold = 0.85

// foldName strips diacritics, upper-cases and splits into tokens.
func foldName(name string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	fields := strings.FieldsFunc(strings.ToUpper(folded), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	return fields
}

// NamesMatch compares a supplied name with the registry's. Registry names
// differ in order and in how many middle names they carry, so every
// supplied token found in the registry name is a match; otherwise the
// sorted token strings are compared with Jaro-Winkler.
func NamesMatch(supplied, registered string, threshold float64) (bool, float64) {
	a, b := foldName(supplied), foldName(registered)
	if len(a) == 0 || len(b) == 0 {
		return false, 0
	}

	have := make(map[string]struct{}, len(b))
	for _, tok := range b {
		have[tok] = struct{}{}
	}
	contained := true
	for _, tok := range a {
		if _, ok := have[tok]; !ok {
			contained = false
			break
		}
	}
	if contained {
		return true, 1
	}

	sort.Strings(a)
	sort.Strings(b)
	score := strutil.Similarity(strings.Join(a, " "), strings.Join(b, " "), metrics.NewJaroWinkler())
	return score >= threshold, score
}
