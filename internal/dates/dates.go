// Package dates parses the date shapes found in a Horos catalog.
//
// Study and birth dates arrive either as Core Data timestamps (seconds
// since 2001-01-01, usually with a fractional part) or as loosely
// formatted strings. Parsing is best effort: any shape we cannot
// recognize yields empty parts rather than an error.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// referenceEpoch is the Core Data zero date used by Horos timestamps.
var referenceEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

var (
	fullDateRe  = regexp.MustCompile(`(\d{4})[-/](\d{2})[-/](\d{2})`)
	yearMonthRe = regexp.MustCompile(`(\d{4})[-/](\d{2})`)
)

// Parts holds the zero-padded components of a parsed date. Unrecognized
// components are empty strings.
type Parts struct {
	Year  string
	Month string
	Day   string
}

// Complete reports whether all three components were recovered.
func (p Parts) Complete() bool {
	return p.Year != "" && p.Month != "" && p.Day != ""
}

// HasMonth reports whether at least year and month were recovered.
func (p Parts) HasMonth() bool {
	return p.Year != "" && p.Month != ""
}

// Parse converts a raw catalog value into date parts.
//
// Accepted shapes, tried in order:
//  1. a numeric value, taken as seconds since 2001-01-01 (Core Data);
//  2. an 8-digit YYYYMMDD string;
//  3. YYYY-MM-DD or YYYY/MM/DD anywhere in the string;
//  4. YYYY-MM or YYYY/MM anywhere in the string, day defaulting to 01.
//
// Anything else returns zero Parts.
func Parse(raw string) Parts {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Parts{}
	}

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		t := referenceEpoch.Add(time.Duration(secs * float64(time.Second)))
		return Parts{
			Year:  fmt.Sprintf("%04d", t.Year()),
			Month: fmt.Sprintf("%02d", int(t.Month())),
			Day:   fmt.Sprintf("%02d", t.Day()),
		}
	}

	if len(s) == 8 && isDigits(s) {
		return Parts{Year: s[0:4], Month: s[4:6], Day: s[6:8]}
	}

	if m := fullDateRe.FindStringSubmatch(s); m != nil {
		return Parts{Year: m[1], Month: m[2], Day: m[3]}
	}

	if m := yearMonthRe.FindStringSubmatch(s); m != nil {
		return Parts{Year: m[1], Month: m[2], Day: "01"}
	}

	return Parts{}
}

// Format renders a raw value as YYYY-MM-DD for use in archive names.
// A year-month-only value gets day 01; anything unparseable returns
// the fallback.
func Format(raw, fallback string) string {
	p := Parse(raw)
	switch {
	case p.Complete():
		return p.Year + "-" + p.Month + "-" + p.Day
	case p.HasMonth():
		return p.Year + "-" + p.Month + "-01"
	default:
		return fallback
	}
}

// UnknownMonthKey is the bucket for studies whose date cannot be parsed.
const UnknownMonthKey = "UNKNOWN_DATE"

// MonthKey derives the YYYY_MM output folder name for a raw study date.
func MonthKey(raw string) string {
	p := Parse(raw)
	if !p.HasMonth() {
		return UnknownMonthKey
	}
	return p.Year + "_" + p.Month
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
