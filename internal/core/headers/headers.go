// Package headers resolves logical fields to the spreadsheet column that
// carries them. Exports name the same field "# Orden", "#Orden" or "Orden".
package headers

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/schollz/closestmatch"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9 ]+`)
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize folds accents and case, drops punctuation and collapses spaces.
func Normalize(str string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}))
	result, _, _ := transform.String(t, str)
	result = strings.ToLower(result)
	result = nonAlphanumericRegex.ReplaceAllString(result, " ")
	result = whitespaceRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// Resolver looks up columns in one header row.
type Resolver struct {
	headers    []string
	normalized []string
}

// NewResolver prepares headers for repeated lookups.
func NewResolver(headers []string) *Resolver {
	r := &Resolver{headers: headers, normalized: make([]string, len(headers))}
	for i, h := range headers {
		r.normalized[i] = Normalize(h)
	}
	return r
}

// Headers returns the original header row.
func (r *Resolver) Headers() []string { return r.headers }

// Exact returns the first header equal to one of the candidates after
// normalization, honoring candidate priority. It returns "" when none match.
func (r *Resolver) Exact(candidates ...string) string {
	for _, c := range candidates {
		nc := Normalize(c)
		if nc == "" {
			continue
		}
		for i, nh := range r.normalized {
			if nh == nc {
				return r.headers[i]
			}
		}
	}
	return ""
}

// Find tries Exact first and then falls back to the first header that
// contains a candidate as a substring.
func (r *Resolver) Find(candidates ...string) string {
	if h := r.Exact(candidates...); h != "" {
		return h
	}
	for _, c := range candidates {
		nc := Normalize(c)
		if nc == "" {
			continue
		}
		for i, nh := range r.normalized {
			if strings.Contains(nh, nc) {
				return r.headers[i]
			}
		}
	}
	return ""
}

// Suggest returns the header closest to candidate, for error messages.
func (r *Resolver) Suggest(candidate string) string {
	var keys []string
	byKey := make(map[string]string, len(r.headers))
	for i, nh := range r.normalized {
		if nh == "" {
			continue
		}
		if _, ok := byKey[nh]; !ok {
			byKey[nh] = r.headers[i]
			keys = append(keys, nh)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	cm := closestmatch.New(keys, []int{2, 3})
	if match := cm.Closest(Normalize(candidate)); match != "" {
		return byKey[match]
	}
	return ""
}

// Resolve is the one-shot form of Resolver.Find.
func Resolve(headers []string, candidates ...string) string {
	return NewResolver(headers).Find(candidates...)
}
