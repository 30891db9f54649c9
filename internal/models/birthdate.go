package models

import (
	"strconv"
	"strings"
	"time"
)

// birthDateLayouts is the ladder of layouts tried in order, grounded on
// original_source/priority_calculation.py:parse_birth_date.
var birthDateLayouts = []string{
	"02.01.2006",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
}

// ParseBirthDate tries each known layout in turn, then falls back to a
// token-by-token salvage parse recognizing a plausible year/month/day
// triad. It never returns an error: unparseable input yields a nil time,
// and ComputeAge treats that as unknown.
func ParseBirthDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return salvageParse(raw)
}

// salvageParse scans whitespace/punctuation-separated tokens looking for
// a plausible year (> 1900), month (1-12) and day (1-31), in any order —
// the same best-effort fallback the original implementation uses for
// malformed free-text birth dates.
func salvageParse(raw string) *time.Time {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '.' || r == '/' || r == '-' || r == ' '
	})

	var year, month, day int
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		switch {
		case n > 1900 && year == 0:
			year = n
		case n >= 1 && n <= 12 && month == 0:
			month = n
		case n >= 1 && n <= 31 && day == 0:
			day = n
		}
	}
	if year == 0 {
		return nil
	}
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}

// ComputeAge derives an integer age from a birth date as of now, clamped
// to ≥ 0 (future dates clamp to 0). A nil birth date is "unknown" and is
// signalled by returning (0, false); callers treat unknown age as a
// fixed bracket per spec.md §4.F, not as age 0.
func ComputeAge(birthDate *time.Time, now time.Time) (age int, known bool) {
	if birthDate == nil {
		return 0, false
	}
	years := now.Year() - birthDate.Year()
	if now.Month() < birthDate.Month() || (now.Month() == birthDate.Month() && now.Day() < birthDate.Day()) {
		years--
	}
	if years < 0 {
		years = 0
	}
	return years, true
}
