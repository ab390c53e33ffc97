package flagparse

import (
	"testing"
)

func TestParseCommand(t *testing.T) {
	testCases := []struct {
		input    string
		expected Command
		wantErr  bool
	}{
		{"sync", Sync, false},
		{"prune", Prune, false},
		{"organize", Organize, false},
		{"export", Export, false},
		{"init", Init, false},
		{"version", Version, false},
		{"bogus", None, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			command, err := ParseCommand(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected an error for %q", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if command != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, command)
			}
		})
	}
}

func TestParseReturnsOnlyExplicitFlags(t *testing.T) {
	command, flagMap, err := Parse([]string{"sync", "-mode", "history", "-when", "2025-06-20 05:00", "-dry-run"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if command != Sync {
		t.Fatalf("expected Sync, got %v", command)
	}

	if got, ok := flagMap["mode"].(string); !ok || got != "history" {
		t.Errorf("expected mode=history, got %v", flagMap["mode"])
	}
	if got, ok := flagMap["when"].(string); !ok || got != "2025-06-20 05:00" {
		t.Errorf("expected when to carry the reference time, got %v", flagMap["when"])
	}
	if got, ok := flagMap["dry-run"].(bool); !ok || !got {
		t.Errorf("expected dry-run=true, got %v", flagMap["dry-run"])
	}

	// log-level has a default but was not set, so it must not appear.
	if _, ok := flagMap["log-level"]; ok {
		t.Error("unset flags must not leak into the flag map")
	}
}

func TestParseUnknownCommand(t *testing.T) {
	if _, _, err := Parse([]string{"restore"}); err == nil {
		t.Error("expected an error for an unknown command")
	}
}

func TestParseVersionHasNoFlags(t *testing.T) {
	command, flagMap, err := Parse([]string{"version"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if command != Version {
		t.Errorf("expected Version, got %v", command)
	}
	if flagMap != nil {
		t.Errorf("expected nil flag map, got %v", flagMap)
	}
}
