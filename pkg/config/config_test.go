package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hydroworks/gridsync/pkg/flagparse"
)

func newValidConfig() Config {
	cfg := NewDefault()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	t.Run("Valid Config", func(t *testing.T) {
		cfg := newValidConfig()
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config to pass validation, but got error: %v", err)
		}
	})

	t.Run("Unknown Timezone", func(t *testing.T) {
		cfg := newValidConfig()
		cfg.Timezone = "Mars/Olympus"
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for unknown timezone, got %v", err)
		}
	})

	t.Run("Negative Workers", func(t *testing.T) {
		cfg := newValidConfig()
		cfg.Workers = -1
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for negative workers, got %v", err)
		}
	})

	t.Run("No Targets", func(t *testing.T) {
		cfg := newValidConfig()
		cfg.Targets = nil
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for missing targets, got %v", err)
		}
	})

	t.Run("History Mode Without Reference", func(t *testing.T) {
		cfg := newValidConfig()
		cfg.Runtime.Mode = "history"
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for history mode without -when, got %v", err)
		}
	})

	t.Run("History Mode With Reference", func(t *testing.T) {
		cfg := newValidConfig()
		cfg.Runtime.Mode = "history"
		cfg.Runtime.HistoryDate = "2025-06-20 05:00"
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Malformed History Reference", func(t *testing.T) {
		cfg := newValidConfig()
		cfg.Runtime.Mode = "history"
		cfg.Runtime.HistoryDate = "20.06.2025"
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for malformed reference time, got %v", err)
		}
	})

	t.Run("Invalid Timestamp Pattern", func(t *testing.T) {
		cfg := newValidConfig()
		target := cfg.Targets["rainfall"]
		target.Pattern = `Rain_(?P<ts>\d{12}` // unbalanced
		cfg.Targets["rainfall"] = target
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for bad pattern, got %v", err)
		}
	})

	t.Run("Pattern Without Timestamp Groups", func(t *testing.T) {
		cfg := newValidConfig()
		target := cfg.Targets["rainfall"]
		target.Pattern = `Rain_\d{12}\.tif`
		cfg.Targets["rainfall"] = target
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for pattern without groups, got %v", err)
		}
	})

	t.Run("Negative Lookback", func(t *testing.T) {
		cfg := newValidConfig()
		target := cfg.Targets["rainfall"]
		target.LookbackDays = -2
		cfg.Targets["rainfall"] = target
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for negative lookback, got %v", err)
		}
	})

	t.Run("Malformed Clock", func(t *testing.T) {
		cfg := newValidConfig()
		target := cfg.Targets["rainfall"]
		target.DayShiftThreshold = "25:99"
		cfg.Targets["rainfall"] = target
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for malformed clock, got %v", err)
		}
	})

	t.Run("Day Shift With Hour Rounding Outside UTC", func(t *testing.T) {
		cfg := newValidConfig()
		cfg.Timezone = "Europe/Vienna"
		target := cfg.Targets["rainfall"]
		target.DayShiftThreshold = "09:00"
		target.RoundToHour = true
		cfg.Targets["rainfall"] = target
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for day shift with rounding outside UTC, got %v", err)
		}
	})

	t.Run("Observation Target Must Exist", func(t *testing.T) {
		cfg := newValidConfig()
		target := cfg.Targets["soilmoisture"]
		target.ObservationTarget = "radar"
		cfg.Targets["soilmoisture"] = target
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for unknown observation target, got %v", err)
		}
	})

	t.Run("Observation Target Must Not Be Self", func(t *testing.T) {
		cfg := newValidConfig()
		target := cfg.Targets["soilmoisture"]
		target.ObservationTarget = "soilmoisture"
		cfg.Targets["soilmoisture"] = target
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for self-referencing observation target, got %v", err)
		}
	})

	t.Run("Domains Require Token In Source Root", func(t *testing.T) {
		cfg := newValidConfig()
		target := cfg.Targets["rainfall"]
		target.SourceRoot = "/data/incoming/rainfall"
		cfg.Targets["rainfall"] = target
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for domains without token, got %v", err)
		}
	})

	t.Run("Age Retention Requires MaxAgeDays", func(t *testing.T) {
		cfg := newValidConfig()
		rule := cfg.Retention["rainfall-age"]
		rule.MaxAgeDays = 0
		cfg.Retention["rainfall-age"] = rule
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for age rule without maxAgeDays, got %v", err)
		}
	})

	t.Run("Identity Retention Requires Pattern", func(t *testing.T) {
		cfg := newValidConfig()
		rule := cfg.Retention["rainfall-identity"]
		rule.Pattern = ""
		cfg.Retention["rainfall-identity"] = rule
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for identity rule without pattern, got %v", err)
		}
	})

	t.Run("Bad Export Format", func(t *testing.T) {
		cfg := newValidConfig()
		cfg.Export.Format = "zip"
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for unsupported export format, got %v", err)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("No Config File", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.json"))
		if err != nil {
			t.Fatalf("expected no error when config file is missing, but got: %v", err)
		}
		if _, ok := cfg.Targets["rainfall"]; !ok {
			t.Error("expected the default example targets")
		}
	})

	t.Run("Valid Config File", func(t *testing.T) {
		confPath := filepath.Join(t.TempDir(), ConfigFileName)
		content := `{
			"timezone": "Europe/Vienna",
			"targets": {
				"radar": {
					"sourceRoot": "/in/radar",
					"destRoot": "/ws/radar",
					"pattern": "Radar_(?P<ts>\\d{12})\\.tif",
					"lookbackDays": 1
				}
			}
		}`
		if err := os.WriteFile(confPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write test config file: %v", err)
		}

		cfg, err := Load(confPath)
		if err != nil {
			t.Fatalf("expected no error when loading valid config, but got: %v", err)
		}

		if cfg.Timezone != "Europe/Vienna" {
			t.Errorf("expected timezone from file, got %s", cfg.Timezone)
		}
		// Scalar defaults survive fields the file omits.
		if cfg.Workers != 4 {
			t.Errorf("expected default workers, got %d", cfg.Workers)
		}
		// The file's target map replaces the examples entirely.
		if len(cfg.Targets) != 1 {
			t.Errorf("expected exactly the file's targets, got %v", cfg.Targets)
		}
		if _, ok := cfg.Targets["radar"]; !ok {
			t.Error("expected target from file")
		}
	})

	t.Run("Malformed Config File", func(t *testing.T) {
		confPath := filepath.Join(t.TempDir(), ConfigFileName)
		if err := os.WriteFile(confPath, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(confPath); err == nil {
			t.Error("expected an error for malformed JSON")
		}
	})
}

func TestGenerateRoundTrip(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), ConfigFileName)

	if err := Generate(NewDefault(), confPath); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	cfg, err := Load(confPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("generated config must validate: %v", err)
	}
	if len(cfg.Targets) != 2 {
		t.Errorf("expected both example targets, got %d", len(cfg.Targets))
	}
}

func TestMergeConfigWithFlags(t *testing.T) {
	base := NewDefault()

	merged := MergeConfigWithFlags(flagparse.Sync, base, map[string]any{
		"mode":      "history",
		"when":      "2025-06-20 05:00",
		"dry-run":   true,
		"log-level": "debug",
		"workers":   8,
		"target":    "rainfall",
	})

	if merged.Runtime.Mode != "history" {
		t.Errorf("expected mode override, got %s", merged.Runtime.Mode)
	}
	if merged.Runtime.HistoryDate != "2025-06-20 05:00" {
		t.Errorf("expected reference time override, got %s", merged.Runtime.HistoryDate)
	}
	if !merged.Runtime.DryRun {
		t.Error("expected dry-run override")
	}
	if merged.LogLevel != "debug" {
		t.Errorf("expected log level override, got %s", merged.LogLevel)
	}
	if merged.Workers != 8 {
		t.Errorf("expected workers override, got %d", merged.Workers)
	}
	if merged.Runtime.Target != "rainfall" {
		t.Errorf("expected target selector, got %q", merged.Runtime.Target)
	}

	// The base must stay untouched.
	if base.Runtime.Mode != "now" || base.Workers != 4 {
		t.Error("merge must not mutate the base configuration")
	}
}
