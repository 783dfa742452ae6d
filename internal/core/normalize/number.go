// Package normalize parses locale-ambiguous spreadsheet numbers and dates.
package normalize

import (
	"math"
	"strconv"
	"strings"
)

// NormalizeNumber converts a cell value into a float64.
// Strings are disambiguated between "1.234,56" and "1,234.56" layouts.
// It returns NaN when the value cannot be read as a number.
func NormalizeNumber(value any) float64 {
	switch v := value.(type) {
	case nil:
		return math.NaN()
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case uint:
		return float64(v)
	case uint64:
		return float64(v)
	case string:
		return parseNumberString(v)
	case []byte:
		return parseNumberString(string(v))
	}
	return math.NaN()
}

// Valid reports whether f carries a value (not NaN, not infinite).
func Valid(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// OrZero returns f, or 0 when f carries no value.
func OrZero(f float64) float64 {
	if !Valid(f) {
		return 0
	}
	return f
}

func parseNumberString(raw string) float64 {
	s := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			return r
		}
		return -1
	}, raw)
	if s == "" {
		return math.NaN()
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots >= 2:
		s = strings.ReplaceAll(s, ".", "")
		if commas == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas >= 2:
		s = strings.ReplaceAll(s, ",", "")
	case dots == 1 && commas == 1:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.Replace(s, ".", "", 1)
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.Replace(s, ",", "", 1)
		}
	case dots == 1 || commas == 1:
		sep := "."
		if commas == 1 {
			sep = ","
		}
		s = resolveSingleSeparator(s, sep)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// resolveSingleSeparator decides whether a lone separator is a decimal point
// or a thousands mark and returns the string in ParseFloat layout.
func resolveSingleSeparator(s, sep string) string {
	idx := strings.Index(s, sep)
	before, after := s[:idx], s[idx+1:]

	asDecimal := before + "." + after
	asThousands := before + after

	if len(after) != 3 {
		return asDecimal
	}

	// Three trailing digits: "1.000" is a thousand, "57.375" is not.
	if after == "000" {
		return asThousands
	}
	lead := strings.TrimPrefix(before, "-")
	leadNum, err := strconv.Atoi(lead)
	if err != nil || leadNum == 0 {
		return asDecimal
	}
	if len(lead) <= 3 && leadNum >= 100 {
		return asThousands
	}
	return asDecimal
}
