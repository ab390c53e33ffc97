// Package timewindow resolves the canonical time window for one run.
//
// A window is built once per invocation from the run mode, a reference
// instant and per-target options, and is immutable afterwards. Both window
// bounds are inclusive.
package timewindow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hydroworks/gridsync/pkg/util"
)

// Mode selects how the reference instant for a run is obtained.
type Mode int

const (
	// ModeNow anchors the window at the current system clock.
	ModeNow Mode = iota
	// ModeHistory anchors the window at an explicitly supplied instant.
	ModeHistory
)

var modeNames = map[Mode]string{
	ModeNow:     "now",
	ModeHistory: "history",
}

var modeValues = util.InvertMap(modeNames)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(m))
}

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	if m, ok := modeValues[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return ModeNow, fmt.Errorf("unknown run mode %q (expected now or history)", s)
}

// MarshalJSON writes the mode as its configuration name.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON reads the mode from its configuration name.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Clock is a time-of-day value (hour and minute) used for the start-of-day
// floor and the day-shift threshold.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses an "HH:MM" string. Both fields must be exactly two
// digits; trailing characters are rejected.
func ParseClock(s string) (Clock, error) {
	var c Clock
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return c, fmt.Errorf("invalid time-of-day %q (expected HH:MM)", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return c, fmt.Errorf("invalid time-of-day %q (expected HH:MM)", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return c, fmt.Errorf("invalid time-of-day %q (expected HH:MM)", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return c, fmt.Errorf("time-of-day %q out of range", s)
	}
	c.Hour = hour
	c.Minute = minute
	return c, nil
}

// minuteOfDay returns the clock value as minutes since midnight.
func (c Clock) minuteOfDay() int {
	return c.Hour*60 + c.Minute
}

// Spec carries everything needed to resolve a window.
// Reference must already be filled in by the caller: the system clock for
// ModeNow, the explicit history instant for ModeHistory.
type Spec struct {
	Mode      Mode
	Reference time.Time
	Location  *time.Location

	LookbackDays int

	// StartOfDayFloor, when set, replaces the start bound's time-of-day.
	StartOfDayFloor *Clock

	// DayShiftThreshold, when set and Mode is ModeNow, shifts the effective
	// date back one calendar day when the reference time-of-day is earlier
	// than the threshold. Handles "today's dataset not published yet".
	DayShiftThreshold *Clock

	// RoundToHour truncates the end bound to the top of its hour.
	RoundToHour bool
}

// Window is the resolved interval. Both bounds are inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// Resolve validates the spec and computes the window.
func Resolve(spec Spec) (Window, error) {
	if err := Validate(spec); err != nil {
		return Window{}, err
	}

	loc := spec.Location
	if loc == nil {
		loc = time.UTC
	}
	ref := spec.Reference.In(loc)

	end := ref
	if spec.RoundToHour {
		end = time.Date(end.Year(), end.Month(), end.Day(), end.Hour(), 0, 0, 0, loc)
	}

	if spec.DayShiftThreshold != nil && spec.Mode == ModeNow {
		refMinute := ref.Hour()*60 + ref.Minute()
		if refMinute < spec.DayShiftThreshold.minuteOfDay() {
			end = end.AddDate(0, 0, -1)
		}
	}

	start := end.AddDate(0, 0, -spec.LookbackDays)
	if spec.StartOfDayFloor != nil {
		start = time.Date(start.Year(), start.Month(), start.Day(),
			spec.StartOfDayFloor.Hour, spec.StartOfDayFloor.Minute, 0, 0, loc)
	}

	if start.After(end) {
		return Window{}, fmt.Errorf("resolved window start %s is after end %s", start, end)
	}
	return Window{Start: start, End: end}, nil
}

// Validate checks the spec without resolving it. The day-shift threshold and
// hour rounding interact ambiguously under a zone with DST transitions, so
// that combination is only accepted in UTC.
func Validate(spec Spec) error {
	if spec.LookbackDays < 0 {
		return fmt.Errorf("lookbackDays must not be negative, got %d", spec.LookbackDays)
	}
	if spec.Reference.IsZero() {
		return fmt.Errorf("reference instant is not set")
	}
	if spec.DayShiftThreshold != nil && spec.RoundToHour {
		loc := spec.Location
		if loc == nil {
			loc = time.UTC
		}
		if loc != time.UTC {
			return fmt.Errorf("dayShiftThreshold and roundToHour may only be combined in the UTC timezone, got %s", loc)
		}
	}
	return nil
}

// Contains reports whether t lies inside the window. Both bounds count.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// CapEnd lowers the end bound to cap when cap is earlier. Used for targets
// bounded by the newest available observation.
func (w Window) CapEnd(cap time.Time) Window {
	if cap.Before(w.End) {
		w.End = cap
	}
	return w
}

// Days lists the calendar days the window spans, oldest first, as midnight
// instants in the window's zone. Used to enumerate date partitions.
func (w Window) Days() []time.Time {
	loc := w.Start.Location()
	day := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, loc)
	last := time.Date(w.End.Year(), w.End.Month(), w.End.Day(), 0, 0, 0, 0, loc)

	var days []time.Time
	for !day.After(last) {
		days = append(days, day)
		day = day.AddDate(0, 0, 1)
	}
	return days
}

// String renders the window for log output.
func (w Window) String() string {
	const layout = "2006-01-02 15:04"
	return fmt.Sprintf("[%s, %s]", w.Start.Format(layout), w.End.Format(layout))
}
