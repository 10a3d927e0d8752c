package engine

import (
	"regexp"
	"strings"
)

// variantSuffix matches the trailing "variant count" noise some systems append
// to a SKU: an optional hyphen, optional whitespace, then one or more '#'.
// e.g. "HAT-053-##" and "CUS-0028   ##" both carry it, "50002" does not.
var variantSuffix = regexp.MustCompile(`-?\s*#+$`)

// NormalizeSKU canonicalizes a raw SKU into the join key used across the
// report. Returns ok=false for empty or whitespace-only input. Suffixes are
// stripped repeatedly so normalization is idempotent even when stacked
// (e.g. "A-## ##").
func NormalizeSKU(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	for {
		stripped := strings.TrimSpace(variantSuffix.ReplaceAllString(s, ""))
		if stripped == s {
			return s, true
		}
		s = stripped
		if s == "" {
			// the whole SKU was suffix noise; fall back to the trimmed input
			return strings.TrimSpace(raw), true
		}
	}
}
