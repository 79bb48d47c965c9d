// Package identity canonicalizes phone-number-like strings into the key
// every guest is merged under.
package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"hotel-messaging/internal/models"
)

// Normalize strips everything but ASCII digits. Full-width digits, as
// some spreadsheet exports produce, are folded first.
func Normalize(raw string) models.PhoneKey {
	folded := width.Fold.String(raw)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return models.PhoneKey(b.String())
}

// Compact removes whitespace from a raw phone value, keeping any other
// formatting so the value can still be shown as entered.
func Compact(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// AlternateForms returns the raw value with and without a leading "+".
// Upstream sources disagree about the prefix, so lookups try both.
func AlternateForms(raw string) (withPlus, withoutPlus string) {
	compact := Compact(raw)
	if compact == "" {
		return "", ""
	}
	if strings.HasPrefix(compact, "+") {
		return compact, strings.TrimPrefix(compact, "+")
	}
	return "+" + compact, compact
}

// Keys returns every lookup key for a raw value: the normalized key and
// both alternate raw forms, without duplicates or empties.
func Keys(raw string) []string {
	withPlus, withoutPlus := AlternateForms(raw)
	out := make([]string, 0, 3)
	seen := make(map[string]bool, 3)
	for _, k := range []string{string(Normalize(raw)), withPlus, withoutPlus} {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
