// Package dates normalizes date strings to the canonical YYYY-MM-DD form
// used everywhere in persisted state and markdown tokens.
package dates

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Canonical is the wire format for all dates.
const Canonical = "2006-01-02"

// Parse parses a date string into a time.Time (UTC midnight). It accepts
// the canonical form, single-digit month/day variants, and datetime strings
// whose date part it truncates. Returns the zero time and false on failure.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Truncate datetime strings to their date part.
	if i := strings.IndexByte(s, 'T'); i > 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '+'); i > 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, "Z")

	if t, err := time.ParseInLocation(Canonical, s, time.UTC); err == nil {
		return t, true
	}
	// Tolerate single-digit month/day.
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range days (e.g. Feb 30); reject those.
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return t, true
}

// Format renders a time as the canonical date string.
func Format(t time.Time) string {
	return t.Format(Canonical)
}

// Normalize reparses an arbitrary date string and returns it in canonical
// form, or "" if it does not parse.
func Normalize(s string) string {
	t, ok := Parse(s)
	if !ok {
		return ""
	}
	return Format(t)
}

// DayDistance returns the absolute distance in days between two canonical
// date strings. The second return is false if either side does not parse.
func DayDistance(a, b string) (int, bool) {
	ta, okA := Parse(a)
	tb, okB := Parse(b)
	if !okA || !okB {
		return 0, false
	}
	d := int(ta.Sub(tb).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d, true
}

// Equal reports whether two canonical date strings denote the same day.
// Two empty strings are equal; one empty side is not.
func Equal(a, b string) bool {
	if a == "" && b == "" {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	return Normalize(a) == Normalize(b)
}

// Today returns today's date in canonical form.
func Today() string {
	return Format(time.Now())
}

// FromComponents builds a canonical date from y/m/d components as the
// reminders gateway transmits them. Zero components yield "".
func FromComponents(year, month, day int) string {
	if year == 0 || month == 0 || day == 0 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// Components splits a canonical date into y/m/d. Zeroes if s is empty or
// malformed.
func Components(s string) (year, month, day int) {
	t, ok := Parse(s)
	if !ok {
		return 0, 0, 0
	}
	return t.Year(), int(t.Month()), t.Day()
}

var humanParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

// ParseHuman parses natural-language input like "tomorrow" or "next friday"
// for CLI convenience, falling back to the canonical parser. Persisted state
// only ever sees the canonical form.
func ParseHuman(s string, base time.Time) (string, error) {
	if t, ok := Parse(s); ok {
		return Format(t), nil
	}
	r, err := humanParser.Parse(s, base)
	if err != nil {
		return "", fmt.Errorf("parsing date %q: %w", s, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized date %q", s)
	}
	return Format(r.Time), nil
}
