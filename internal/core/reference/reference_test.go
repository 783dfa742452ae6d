package reference

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeReference(t *testing.T) {
	assert.Equal(t, "18115088341384", NormalizeReference(" 0018115088341384 "))
	assert.Equal(t, "abc1", NormalizeReference("ABC 1"))
	assert.Equal(t, "", NormalizeReference("0000"))
	assert.Equal(t, "1020", NormalizeReference("001020"))
}

func TestReferencesMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "exact", a: "REF-1", b: "ref-1", want: true},
		{name: "leading zeros and bank prefix", a: "0018115088341384", b: "115088341384", want: true},
		{name: "different eight digit refs", a: "12345678", b: "87654321", want: false},
		{name: "bank prefixed containment", a: "555555551234", b: "99555555551234", want: true},
		{name: "same last eight digits", a: "11112345678", b: "9912345678", want: true},
		{name: "shared inner window", a: "7712345678900", b: "4412345678", want: true},
		{name: "short refs never fuzzy match", a: "1234", b: "91234", want: false},
		{name: "short contained in long", a: "1234", b: "AB12349999999", want: true},
		{name: "empty", a: "", b: "", want: false},
		{name: "empty against value", a: "", b: "12345678", want: false},
		{name: "seven shared digits are not enough", a: "99912345670", b: "1234567888", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReferencesMatch(tt.a, tt.b))
			assert.Equal(t, tt.want, ReferencesMatch(tt.b, tt.a), "symmetric")
		})
	}
}

func TestAmountsMatch(t *testing.T) {
	assert.True(t, AmountsMatch(100, 100, DefaultTolerance))
	assert.True(t, AmountsMatch(100.01, 100, DefaultTolerance))
	assert.False(t, AmountsMatch(100.02, 100, DefaultTolerance))
	assert.True(t, AmountsMatch(100.4, 100, 0.5))
	assert.False(t, AmountsMatch(math.NaN(), 100, DefaultTolerance))
	assert.False(t, AmountsMatch(100, math.NaN(), DefaultTolerance))
}

func TestIndexCandidatesAgreeWithLinearScan(t *testing.T) {
	refs := []string{
		"99555555551234",
		"12345678",
		"1234",
		"",
		"AB-000777",
		"0018115088341384",
		"55555555",
	}
	ix := NewIndex()
	for i, r := range refs {
		ix.Add(i, r)
	}
	assert.Equal(t, 6, ix.Len())

	queries := []string{"555555551234", "87654321", "1234", "115088341384", "ab-777", "x", ""}
	for _, q := range queries {
		var linear []int
		for i, r := range refs {
			if ReferencesMatch(q, r) {
				linear = append(linear, i)
			}
		}
		var indexed []int
		for _, pos := range ix.Candidates(q) {
			if ReferencesMatch(q, refs[pos]) {
				indexed = append(indexed, pos)
			}
		}
		assert.Equal(t, linear, indexed, "query %q", q)
	}
}
