// Package reference decides whether two free-text payment references and
// two amounts designate the same money movement.
package reference

import (
	"math"
	"strings"
	"unicode"
)

// DefaultTolerance is the amount tolerance used when none is configured.
const DefaultTolerance = 0.01

// WindowSize is the number of digits considered enough to identify a reference.
const WindowSize = 8

// floatSlack absorbs binary rounding so that |100.01-100| <= 0.01 holds.
const floatSlack = 1e-9

// NormalizeReference strips whitespace and one run of leading zeros, then lowercases.
func NormalizeReference(ref string) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, ref)
	s = strings.TrimLeft(s, "0")
	return strings.ToLower(s)
}

// Digits returns only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// ReferencesMatch reports whether ref1 and ref2 identify the same transfer.
// Banks prefix, truncate and pad references inconsistently, so besides exact
// equality it accepts containment and any shared run of WindowSize digits.
func ReferencesMatch(ref1, ref2 string) bool {
	a := NormalizeReference(ref1)
	b := NormalizeReference(ref2)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	da, db := Digits(a), Digits(b)
	if len(da) < WindowSize && len(db) < WindowSize {
		return false
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}

	if len(da) < WindowSize || len(db) < WindowSize {
		return false
	}
	if da[len(da)-WindowSize:] == db[len(db)-WindowSize:] {
		return true
	}
	return sharesWindow(da, db) || sharesWindow(db, da)
}

// sharesWindow reports whether any WindowSize-digit run of a occurs in b.
func sharesWindow(a, b string) bool {
	for i := 0; i+WindowSize <= len(a); i++ {
		if strings.Contains(b, a[i:i+WindowSize]) {
			return true
		}
	}
	return false
}

// AmountsMatch reports whether |a-b| <= tolerance. NaN never matches.
func AmountsMatch(a, b, tolerance float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	return math.Abs(a-b) <= tolerance+floatSlack
}
