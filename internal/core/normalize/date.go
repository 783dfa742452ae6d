package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// excelEpoch is the day before serial 1 (1900-01-01).
var excelEpoch = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)

// maxExcelSerial is 9999-12-31, the last date Excel can represent.
const maxExcelSerial = 2958465

var dayFirstRegex = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})(?:[ T](\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)

var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

// ParseExcelDate converts a cell value into a UTC time.
// Accepted inputs: time.Time, Excel serial numbers (numeric or numeric
// strings), "DD/MM/YYYY" strings and ISO-like layouts.
func ParseExcelDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v, true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return *v, true
	case float64:
		return fromSerial(v)
	case float32:
		return fromSerial(float64(v))
	case int:
		return fromSerial(float64(v))
	case int64:
		return fromSerial(float64(v))
	case string:
		return parseDateString(v)
	}
	return time.Time{}, false
}

// ParseDatePtr is ParseExcelDate returning nil on failure.
func ParseDatePtr(value any) *time.Time {
	t, ok := ParseExcelDate(value)
	if !ok {
		return nil
	}
	return &t
}

func fromSerial(serial float64) (time.Time, bool) {
	if !Valid(serial) || serial < 1 || serial > maxExcelSerial {
		return time.Time{}, false
	}
	days := math.Floor(serial)
	// Excel counts a fictitious 1900-02-29 as serial 60.
	if days >= 60 {
		days--
	}
	t := excelEpoch.AddDate(0, 0, int(days))
	if frac := serial - math.Floor(serial); frac > 0 {
		t = t.Add(time.Duration(math.Round(frac*86400)) * time.Second)
	}
	return t, true
}

func parseDateString(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if m := dayFirstRegex.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		var hour, minute, second int
		if m[4] != "" {
			hour, _ = strconv.Atoi(m[4])
			minute, _ = strconv.Atoi(m[5])
			if m[6] != "" {
				second, _ = strconv.Atoi(m[6])
			}
		}
		t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
		// time.Date normalizes 31/02 into March; reject it instead.
		if t.Day() != day || int(t.Month()) != month {
			return time.Time{}, false
		}
		return t, true
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromSerial(f)
	}
	return time.Time{}, false
}

// FormatDate renders t as DD/MM/YYYY, or "" when t is nil or zero.
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

// FormatISODate renders t as YYYY-MM-DD, or "" when t is nil or zero.
func FormatISODate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// Midnight truncates t to the start of its calendar day in its own location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GetMonday returns midnight of the Monday that starts t's ISO week.
func GetMonday(t time.Time) time.Time {
	day := Midnight(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// GetFriday returns midnight of the Friday in t's ISO week.
func GetFriday(t time.Time) time.Time {
	return GetMonday(t).AddDate(0, 0, 4)
}

// GetSunday returns midnight of the Sunday that closes t's ISO week.
func GetSunday(t time.Time) time.Time {
	return GetMonday(t).AddDate(0, 0, 6)
}
