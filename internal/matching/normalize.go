// Package matching decides, for every (fingerprint, listing) pair, whether
// and how confidently they match, and ranks the resulting candidates.
package matching

import "strings"

// canon uppercases and trims a comparison field. All matching comparisons
// are case-insensitive and whitespace-insensitive.
func canon(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// fieldsAgree compares an optional refinement field (engine, drivetrain,
// transmission). The field only constrains the pair when both sides
// specify a value.
func fieldsAgree(spec, listing string) bool {
	spec, listing = canon(spec), canon(listing)
	if spec == "" || listing == "" {
		return true
	}
	return spec == listing
}

// familiesEqual compares pre-stored variant families. Families are never
// derived at match time; an empty side means no family information and the
// pair cannot family-match.
func familiesEqual(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	fa, fb := canon(*a), canon(*b)
	if fa == "" || fb == "" {
		return false
	}
	return fa == fb
}

// absInt returns |v|.
func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
