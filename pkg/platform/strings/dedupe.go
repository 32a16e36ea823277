// Package strings provides string normalization helpers for scraped text.
package strings

import (
	"strings"
)

// CollapseSpace trims s and folds every run of Unicode whitespace
// (including non-breaking spaces from scraped HTML) into a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// DedupeBy normalizes each value with fn, drops empties and keeps the first
// occurrence of each normalized value. Order is preserved. A nil input
// returns nil so callers can tell "nothing passed" from "nothing left".
func DedupeBy(values []string, fn func(string) string) []string {
	if values == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		normalized := fn(v)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}

	return result
}

// DedupeAndTrim removes duplicates and blanks after trimming.
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	return DedupeBy(values, strings.TrimSpace)
}

// DedupeAndCollapseUpper collapses whitespace and uppercases before
// de-duplicating. Registry labels are compared this way.
//
//	DedupeAndCollapseUpper([]string{"Medicina  Interna", "MEDICINA INTERNA"})
//	// Returns: []string{"MEDICINA INTERNA"}
func DedupeAndCollapseUpper(values []string) []string {
	return DedupeBy(values, func(v string) string {
		return strings.ToUpper(CollapseSpace(v))
	})
}
