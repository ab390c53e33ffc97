package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hydroworks/gridsync/pkg/buildinfo"
	"github.com/hydroworks/gridsync/pkg/flagparse"
	"github.com/hydroworks/gridsync/pkg/glog"
	"github.com/hydroworks/gridsync/pkg/latest"
	"github.com/hydroworks/gridsync/pkg/pathbundle"
	"github.com/hydroworks/gridsync/pkg/pathretention"
	"github.com/hydroworks/gridsync/pkg/timestamp"
	"github.com/hydroworks/gridsync/pkg/timewindow"
	"github.com/hydroworks/gridsync/pkg/util"
)

// ConfigFileName is the default name of the configuration file.
const ConfigFileName = "gridsync.config.json"

// HistoryTimeLayout is the layout for history reference times given on the
// command line and in the configuration.
const HistoryTimeLayout = "2006-01-02 15:04"

// ErrInvalid marks configuration validation failures. Callers can test for it
// with errors.Is to distinguish bad configuration from runtime failures.
var ErrInvalid = errors.New("invalid configuration")

// TargetConfig describes one ingest target: where its files arrive, where its
// date-partitioned workspace lives, and how its timestamps are interpreted.
type TargetConfig struct {
	// SourceRoot is the date-partitioned directory files are read from.
	// It may contain the literal token '{domain}' which is expanded once
	// per configured domain.
	SourceRoot string `json:"sourceRoot"`
	// DestRoot is the date-partitioned workspace files are copied into.
	DestRoot string `json:"destRoot"`
	// Pattern is a regular expression with a named group 'ts' (or the
	// component groups 'YYYY', 'MM', 'DD', 'HH', 'mm') that extracts the
	// timestamp from a file name.
	Pattern string `json:"pattern"`
	// Domains lists the '{domain}' expansions. Empty means a single run
	// with no expansion.
	Domains []string `json:"domains"`

	LookbackDays      int `json:"lookbackDays"`
	DecimationMinutes int `json:"decimationMinutes,omitempty"`

	// StartOfDayFloor replaces the window start's time of day, formatted
	// as 'HH:MM'. Empty keeps the end's time of day.
	StartOfDayFloor string `json:"startOfDayFloor,omitempty"`
	// DayShiftThreshold shifts the window end back one calendar day when
	// the run starts earlier than this time of day. Only honored in 'now'
	// mode.
	DayShiftThreshold string `json:"dayShiftThreshold,omitempty"`
	RoundToHour       bool   `json:"roundToHour,omitempty"`

	// BoundedByObservation caps the window end at the newest timestamp
	// found under ObservationTarget's workspace.
	BoundedByObservation bool   `json:"boundedByObservation,omitempty"`
	ObservationTarget    string `json:"observationTarget,omitempty"`

	// DropDir is a flat directory serviced by the organize command. Files
	// are placed from here into DestRoot's day partitions.
	DropDir      string `json:"dropDir,omitempty"`
	SelectLatest bool   `json:"selectLatest,omitempty"`
	SelectMode   string `json:"selectMode,omitempty"`
}

// RetentionConfig describes one retention rule applied by the prune command.
type RetentionConfig struct {
	// Kind selects the policy: 'age' deletes files older than MaxAgeDays,
	// 'identity' deletes files whose embedded timestamp disagrees with the
	// day partition they sit in.
	Kind       string `json:"kind"`
	Root       string `json:"root"`
	MaxAgeDays int    `json:"maxAgeDays,omitempty"`
	Pattern    string `json:"pattern,omitempty"`
}

// ExportConfig describes how day partitions are bundled by the export command.
type ExportConfig struct {
	DestDir string `json:"destDir"`
	Format  string `json:"format"`
	Level   string `json:"level"`
}

// RuntimeConfig carries per-invocation state that never lives in the config file.
type RuntimeConfig struct {
	Mode        string
	HistoryDate string
	DryRun      bool
	Target      string
	Rule        string
	ExportDay   string
}

type Config struct {
	Version        string                     `json:"version"`
	Timezone       string                     `json:"timezone"`
	LogLevel       string                     `json:"logLevel"`
	LockDir        string                     `json:"lockDir"`
	Workers        int                        `json:"workers"`
	MinFreeSpaceMB int                        `json:"minFreeSpaceMB"`
	Metrics        bool                       `json:"metrics"`
	Runtime        RuntimeConfig              `json:"-"` // Never added to config file
	Targets        map[string]TargetConfig    `json:"targets"`
	Retention      map[string]RetentionConfig `json:"retention"`
	Export         ExportConfig               `json:"export"`
}

// NewDefault creates and returns a Config struct with sensible default values
// and a pair of example targets demonstrating domain expansion and
// observation-bounded windows.
func NewDefault() Config {
	return Config{
		Version:        buildinfo.Version,
		Timezone:       "UTC",
		LogLevel:       "info", // Default log level.
		LockDir:        "",     // Empty resolves to the OS temp directory at run time.
		Workers:        4,      // Safe for HDDs, decent for SSDs.
		MinFreeSpaceMB: 0,      // 0 disables the free-space preflight check.
		Metrics:        true,   // Default to enabled for detailed file-counting metrics.
		Runtime: RuntimeConfig{
			Mode:   "now", // Default mode
			DryRun: false,
		},
		Targets: map[string]TargetConfig{
			"rainfall": {
				SourceRoot:        "/data/incoming/rainfall/{domain}",
				DestRoot:          "/data/workspace/rainfall/{domain}",
				Pattern:           `Rain_(?P<ts>\d{12})\.tif`,
				Domains:           []string{"alps", "plains"},
				LookbackDays:      2,
				DecimationMinutes: 0,       // Keep every file.
				StartOfDayFloor:   "00:00", // Window start begins at midnight.
				DayShiftThreshold: "09:00", // Runs before 09:00 target the previous day.
			},
			"soilmoisture": {
				SourceRoot:           "/data/incoming/soilmoisture",
				DestRoot:             "/data/workspace/soilmoisture",
				Pattern:              `SM_(?P<ts>\d{12})\.tif`,
				LookbackDays:         5,
				DecimationMinutes:    60, // Thin 10-minute files down to hourly.
				StartOfDayFloor:      "00:00",
				RoundToHour:          true,
				BoundedByObservation: true,       // Never ingest past the newest observation.
				ObservationTarget:    "rainfall", // The observation dataset that bounds this one.
			},
		},
		Retention: map[string]RetentionConfig{
			"rainfall-age": {
				Kind:       "age",
				Root:       "/data/workspace/rainfall",
				MaxAgeDays: 30,
			},
			"rainfall-identity": {
				Kind:    "identity",
				Root:    "/data/workspace/rainfall",
				Pattern: `Rain_(?P<ts>\d{12})\.tif`,
			},
		},
		Export: ExportConfig{
			DestDir: "/data/export",
			Format:  "tar.zst",
			Level:   "default",
		},
	}
}

// Load reads the configuration from path. A missing file is not an error; the
// defaults are returned so the CLI stays usable before 'init' has run. When
// the file exists, its contents are decoded over the scalar defaults, while
// the example target and retention maps are replaced wholesale.
func Load(path string) (Config, error) {
	if path == "" {
		path = ConfigFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			glog.Notice("No configuration file found, using defaults", "path", path)
			return NewDefault(), nil
		}
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := NewDefault()
	// json.Unmarshal merges into non-nil maps, which would leave the
	// example targets alongside the user's. The file's maps must win.
	cfg.Targets = nil
	cfg.Retention = nil

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	glog.Debug("Configuration file loaded", "path", path)
	return cfg, nil
}

// Generate writes cfg to path as indented JSON.
func Generate(cfg Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the whole configuration and returns the first problem
// found. Every returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q: %v", ErrInvalid, c.Timezone, err)
	}

	loc, _ := time.LoadLocation(c.Timezone)

	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalid, c.Workers)
	}
	if c.MinFreeSpaceMB < 0 {
		return fmt.Errorf("%w: minFreeSpaceMB must not be negative, got %d", ErrInvalid, c.MinFreeSpaceMB)
	}

	mode, err := timewindow.ParseMode(c.Runtime.Mode)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if mode == timewindow.ModeHistory {
		if c.Runtime.HistoryDate == "" {
			return fmt.Errorf("%w: 'history' mode requires a reference time (-when)", ErrInvalid)
		}
		if _, err := time.ParseInLocation(HistoryTimeLayout, c.Runtime.HistoryDate, loc); err != nil {
			return fmt.Errorf("%w: reference time %q must match '%s'", ErrInvalid, c.Runtime.HistoryDate, HistoryTimeLayout)
		}
	}

	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: no targets configured", ErrInvalid)
	}

	for name, target := range c.Targets {
		if err := validateTarget(name, target, c.Targets, loc); err != nil {
			return err
		}
	}

	for name, rule := range c.Retention {
		if err := validateRetention(name, rule); err != nil {
			return err
		}
	}

	if c.Export.Format != "" {
		if _, err := pathbundle.ParseFormat(c.Export.Format); err != nil {
			return fmt.Errorf("%w: export: %v", ErrInvalid, err)
		}
	}
	if c.Export.Level != "" {
		if _, err := pathbundle.ParseLevel(c.Export.Level); err != nil {
			return fmt.Errorf("%w: export: %v", ErrInvalid, err)
		}
	}

	return nil
}

func validateTarget(name string, target TargetConfig, all map[string]TargetConfig, loc *time.Location) error {
	if target.SourceRoot == "" {
		return fmt.Errorf("%w: target %q: sourceRoot must not be empty", ErrInvalid, name)
	}
	if target.DestRoot == "" {
		return fmt.Errorf("%w: target %q: destRoot must not be empty", ErrInvalid, name)
	}
	if target.Pattern == "" {
		return fmt.Errorf("%w: target %q: pattern must not be empty", ErrInvalid, name)
	}
	if _, err := timestamp.Compile(target.Pattern); err != nil {
		return fmt.Errorf("%w: target %q: %v", ErrInvalid, name, err)
	}
	if target.LookbackDays < 0 {
		return fmt.Errorf("%w: target %q: lookbackDays must not be negative, got %d", ErrInvalid, name, target.LookbackDays)
	}
	if target.DecimationMinutes < 0 {
		return fmt.Errorf("%w: target %q: decimationMinutes must not be negative, got %d", ErrInvalid, name, target.DecimationMinutes)
	}

	if target.StartOfDayFloor != "" {
		if _, err := timewindow.ParseClock(target.StartOfDayFloor); err != nil {
			return fmt.Errorf("%w: target %q: startOfDayFloor: %v", ErrInvalid, name, err)
		}
	}
	if target.DayShiftThreshold != "" {
		if _, err := timewindow.ParseClock(target.DayShiftThreshold); err != nil {
			return fmt.Errorf("%w: target %q: dayShiftThreshold: %v", ErrInvalid, name, err)
		}
		// Combining the calendar-day shift with hour rounding is only
		// well defined when the day has exactly 24 hours.
		if target.RoundToHour && loc != time.UTC {
			return fmt.Errorf("%w: target %q: dayShiftThreshold with roundToHour requires timezone UTC", ErrInvalid, name)
		}
	}

	if target.BoundedByObservation {
		if target.ObservationTarget == "" {
			return fmt.Errorf("%w: target %q: boundedByObservation requires observationTarget", ErrInvalid, name)
		}
		if target.ObservationTarget == name {
			return fmt.Errorf("%w: target %q: observationTarget must not reference itself", ErrInvalid, name)
		}
		if _, ok := all[target.ObservationTarget]; !ok {
			return fmt.Errorf("%w: target %q: observationTarget %q is not a configured target", ErrInvalid, name, target.ObservationTarget)
		}
	}

	if len(target.Domains) > 0 && !strings.Contains(target.SourceRoot, util.DomainToken) {
		return fmt.Errorf("%w: target %q: domains configured but sourceRoot has no '%s' token", ErrInvalid, name, util.DomainToken)
	}

	if target.SelectLatest {
		if target.DropDir == "" {
			return fmt.Errorf("%w: target %q: selectLatest requires dropDir", ErrInvalid, name)
		}
		if target.SelectMode != "" {
			if _, err := latest.ParseMode(target.SelectMode); err != nil {
				return fmt.Errorf("%w: target %q: %v", ErrInvalid, name, err)
			}
		}
	}

	return nil
}

func validateRetention(name string, rule RetentionConfig) error {
	kind, err := pathretention.ParseKind(rule.Kind)
	if err != nil {
		return fmt.Errorf("%w: retention %q: %v", ErrInvalid, name, err)
	}
	if rule.Root == "" {
		return fmt.Errorf("%w: retention %q: root must not be empty", ErrInvalid, name)
	}

	switch kind {
	case pathretention.Age:
		if rule.MaxAgeDays <= 0 {
			return fmt.Errorf("%w: retention %q: 'age' requires maxAgeDays > 0, got %d", ErrInvalid, name, rule.MaxAgeDays)
		}
	case pathretention.Identity:
		if rule.Pattern == "" {
			return fmt.Errorf("%w: retention %q: 'identity' requires a pattern", ErrInvalid, name)
		}
		if _, err := timestamp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("%w: retention %q: %v", ErrInvalid, name, err)
		}
	}

	return nil
}

// MergeConfigWithFlags applies the explicitly set command-line flags on top of
// the base configuration and returns the result.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "log-level":
			if v, ok := value.(string); ok {
				merged.LogLevel = v
			}
		case "dry-run":
			if v, ok := value.(bool); ok {
				merged.Runtime.DryRun = v
			}
		case "metrics":
			if v, ok := value.(bool); ok {
				merged.Metrics = v
			}
		case "lock-dir":
			if v, ok := value.(string); ok {
				merged.LockDir = v
			}
		case "workers":
			if v, ok := value.(int); ok {
				merged.Workers = v
			}
		case "mode":
			if v, ok := value.(string); ok {
				merged.Runtime.Mode = v
			}
		case "when":
			if v, ok := value.(string); ok {
				merged.Runtime.HistoryDate = v
			}
		case "target":
			if v, ok := value.(string); ok {
				merged.Runtime.Target = v
			}
		case "rule":
			if v, ok := value.(string); ok {
				merged.Runtime.Rule = v
			}
		case "day":
			if v, ok := value.(string); ok {
				merged.Runtime.ExportDay = v
			}
		case "dest":
			if v, ok := value.(string); ok {
				merged.Export.DestDir = v
			}
		case "format":
			if v, ok := value.(string); ok {
				merged.Export.Format = v
			}
		case "level":
			if v, ok := value.(string); ok {
				merged.Export.Level = v
			}
		case "config", "force", "default":
			// Handled by the caller before merging.
		default:
			glog.Debug("unhandled flag in MergeConfigWithFlags", "command", command, "flag", name)
		}
	}

	return merged
}

// LogSummary logs the effective configuration at info level.
func (c *Config) LogSummary() {
	logArgs := []interface{}{
		"timezone", c.Timezone,
		"logLevel", c.LogLevel,
		"mode", c.Runtime.Mode,
		"dryRun", c.Runtime.DryRun,
		"metrics", c.Metrics,
		"workers", c.Workers,
		"targets", len(c.Targets),
		"retentionRules", len(c.Retention),
	}
	if c.Runtime.HistoryDate != "" {
		logArgs = append(logArgs, "historyDate", c.Runtime.HistoryDate)
	}
	if c.Runtime.Target != "" {
		logArgs = append(logArgs, "target", c.Runtime.Target)
	}
	glog.Info("Configuration loaded", logArgs...)
}
