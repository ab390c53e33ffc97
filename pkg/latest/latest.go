// Package latest picks exactly one entry from a set of same-day candidates.
//
// ByName relies on fixed-width, zero-padded timestamp names, where the
// lexicographically greatest name is the newest. ByModTime uses the
// modification time with the name as a deterministic tie-break.
package latest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hydroworks/gridsync/pkg/util"
)

// Mode selects the ordering criterion.
type Mode int

const (
	// ByName picks the lexicographically greatest name.
	ByName Mode = iota
	// ByModTime picks the most recently modified entry, ties broken by name.
	ByModTime
)

var modeNames = map[Mode]string{
	ByName:    "name",
	ByModTime: "modtime",
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
	return ByName, fmt.Errorf("unknown selection mode %q (expected name or modtime)", s)
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

// Entry is one selection candidate.
type Entry struct {
	Name    string
	ModTime time.Time
	IsDir   bool
}

// Select returns the single winning entry under the given mode.
// It fails when the candidate set is empty.
func Select(entries []Entry, mode Mode) (Entry, error) {
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("no candidates to select from")
	}

	best := entries[0]
	for _, e := range entries[1:] {
		if beats(e, best, mode) {
			best = e
		}
	}
	return best, nil
}

// beats reports whether a should win over b.
func beats(a, b Entry, mode Mode) bool {
	switch mode {
	case ByModTime:
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.After(b.ModTime)
		}
		return a.Name > b.Name
	default: // ByName
		return a.Name > b.Name
	}
}

// ListDir reads a directory into selection candidates. Entries whose metadata
// cannot be read are skipped rather than failing the whole listing.
func ListDir(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			ModTime: info.ModTime(),
			IsDir:   de.IsDir(),
		})
	}
	return entries, nil
}
