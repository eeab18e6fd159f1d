package models

import (
	"strings"
	"time"
)

// flexibleDateLayouts lists the formats accepted in date cells, most common
// first. The first layout is also the canonical stored form.
var flexibleDateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"2006/01/02",
	"02-01-2006",
}

// CanonicalDateLayout is the form dates are normalized to before saving.
const CanonicalDateLayout = "2006-01-02"

// DisplayDateLayout is the form dates are rendered in for chat output.
const DisplayDateLayout = "02.01.2006"

// ParseFlexibleDate tries each accepted layout against the trimmed value.
func ParseFlexibleDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range flexibleDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CanonicalDate normalizes a date cell to YYYY-MM-DD. Unparseable values
// come back unchanged so user input is never silently dropped.
func CanonicalDate(value string) string {
	t, ok := ParseFlexibleDate(value)
	if !ok {
		return value
	}
	return t.Format(CanonicalDateLayout)
}

// FormatDisplayDate renders a date cell as DD.MM.YYYY, falling back to the
// raw value when it does not parse.
func FormatDisplayDate(value string) string {
	t, ok := ParseFlexibleDate(value)
	if !ok {
		return value
	}
	return t.Format(DisplayDateLayout)
}

// Age computes full years between the birth date and now, floored at zero.
func Age(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	anniversary := time.Date(now.Year(), birth.Month(), birth.Day(), 0, 0, 0, 0, now.Location())
	if now.Before(anniversary) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
