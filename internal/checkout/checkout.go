// Package checkout parses the free-form checkout dates found in guest
// exports and decides whether a date has passed.
package checkout

import (
	"strings"
	"time"
)

// layouts are tried in order. The first three are the formats exports
// are known to use; the rest cover hand-edited sheets.
var layouts = []string{
	"02.01.2006",
	"2006-01-02",
	"01/02/2006",
	"2.1.2006",
	"1/2/2006",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"02.01.2006 15:04",
	"01/02/2006 15:04",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon, 02 Jan 2006",
	"02-Jan-2006",
	time.RFC1123,
	time.RFC1123Z,
}

// Parse returns the calendar date of raw, or false if no layout fits.
func Parse(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil(t), true
		}
	}
	return time.Time{}, false
}

// Passed reports whether raw is strictly before the calendar day of now.
// Unparseable or empty dates never count as passed.
func Passed(raw string, now time.Time) bool {
	d, ok := Parse(raw)
	if !ok {
		return false
	}
	return d.Before(civil(now))
}

// civil drops the time of day, keeping the wall-clock date.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
