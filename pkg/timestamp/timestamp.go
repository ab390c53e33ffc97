// Package timestamp extracts encoded timestamps from dataset filenames.
//
// Two pattern shapes are supported: a single `ts` capture group holding a
// compact YYYYMMDDHHMM string, or separate named groups YYYY, MM, DD and
// optionally HH and mm. Calendar validation is strict: a filename whose
// digits form an impossible date (month 13, hour 25) is treated as a
// non-match, never rolled over into a neighboring date.
package timestamp

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Group names recognized in extraction patterns.
const (
	groupTS     = "ts"
	groupYear   = "YYYY"
	groupMonth  = "MM"
	groupDay    = "DD"
	groupHour   = "HH"
	groupMinute = "mm"
)

// Pattern is a compiled filename timestamp pattern.
type Pattern struct {
	re *regexp.Regexp

	// compact is true when the pattern carries a single `ts` group instead
	// of separate date-component groups.
	compact bool

	hasHour   bool
	hasMinute bool
}

// Compile parses and validates a timestamp extraction pattern.
// The expression must contain either a `ts` group or at least the
// YYYY, MM and DD groups.
func Compile(expr string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp pattern %q: %w", expr, err)
	}

	groups := make(map[string]bool)
	for _, name := range re.SubexpNames() {
		if name != "" {
			groups[name] = true
		}
	}

	p := &Pattern{
		re:        re,
		compact:   groups[groupTS],
		hasHour:   groups[groupHour],
		hasMinute: groups[groupMinute],
	}

	if !p.compact {
		for _, required := range []string{groupYear, groupMonth, groupDay} {
			if !groups[required] {
				return nil, fmt.Errorf("timestamp pattern %q must define a (?P<ts>...) group or the (?P<%s>...) group", expr, required)
			}
		}
	}
	return p, nil
}

// String returns the underlying regular expression.
func (p *Pattern) String() string {
	return p.re.String()
}

// Extract parses the timestamp encoded in name and interprets it in loc.
// The second return value is false when the name does not match the pattern
// or encodes an impossible calendar date. A non-match is not an error.
func (p *Pattern) Extract(name string, loc *time.Location) (time.Time, bool) {
	match := p.re.FindStringSubmatch(name)
	if match == nil {
		return time.Time{}, false
	}

	parts := make(map[string]string)
	for i, groupName := range p.re.SubexpNames() {
		if groupName != "" && i < len(match) {
			parts[groupName] = match[i]
		}
	}

	if p.compact {
		return parseCompact(parts[groupTS], loc)
	}

	year, ok := atoi(parts[groupYear])
	if !ok {
		return time.Time{}, false
	}
	month, ok := atoi(parts[groupMonth])
	if !ok {
		return time.Time{}, false
	}
	day, ok := atoi(parts[groupDay])
	if !ok {
		return time.Time{}, false
	}

	// HH and mm are optional and default to midnight.
	hour, minute := 0, 0
	if p.hasHour {
		if hour, ok = atoi(parts[groupHour]); !ok {
			return time.Time{}, false
		}
	}
	if p.hasMinute {
		if minute, ok = atoi(parts[groupMinute]); !ok {
			return time.Time{}, false
		}
	}

	return buildTime(year, month, day, hour, minute, loc)
}

// parseCompact handles the single-group YYYYMMDDHHMM shape.
func parseCompact(ts string, loc *time.Location) (time.Time, bool) {
	if len(ts) != 12 {
		return time.Time{}, false
	}
	year, ok1 := atoi(ts[0:4])
	month, ok2 := atoi(ts[4:6])
	day, ok3 := atoi(ts[6:8])
	hour, ok4 := atoi(ts[8:10])
	minute, ok5 := atoi(ts[10:12])
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return time.Time{}, false
	}
	return buildTime(year, month, day, hour, minute, loc)
}

// buildTime assembles a time.Time after strict range validation.
// time.Date would silently normalize out-of-range components, so the
// checks must happen before it is called.
func buildTime(year, month, day, hour, minute int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 {
		return time.Time{}, false
	}
	if day < 1 || day > daysInMonth(year, month) {
		return time.Time{}, false
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc), true
}

func daysInMonth(year, month int) int {
	// Day 0 of the following month is the last day of this month.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
