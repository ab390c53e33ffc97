// Package planner turns the validated configuration into the immutable plans
// executed by the engine. All path expansion, window resolution and pattern
// compilation happens here, so the executing packages never see raw
// configuration strings.
package planner

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/hydroworks/gridsync/pkg/config"
	"github.com/hydroworks/gridsync/pkg/latest"
	"github.com/hydroworks/gridsync/pkg/pathbundle"
	"github.com/hydroworks/gridsync/pkg/pathorganize"
	"github.com/hydroworks/gridsync/pkg/pathretention"
	"github.com/hydroworks/gridsync/pkg/pathsync"
	"github.com/hydroworks/gridsync/pkg/timestamp"
	"github.com/hydroworks/gridsync/pkg/timewindow"
	"github.com/hydroworks/gridsync/pkg/util"
)

// SyncPlan couples an executable pathsync.Plan with its observation bound.
// For bounded targets the engine caps the window end at the newest timestamp
// found under the observation roots before execution.
type SyncPlan struct {
	pathsync.Plan

	BoundedByObservation bool
	ObservationRoots     []string
	ObservationPattern   *timestamp.Pattern
}

// Location resolves the configured timezone.
func Location(cfg config.Config) (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", config.ErrInvalid, cfg.Timezone)
	}
	return loc, nil
}

// ReferenceTime returns the instant a run is anchored at: the system clock in
// 'now' mode, the explicit -when instant in 'history' mode.
func ReferenceTime(cfg config.Config, loc *time.Location) (time.Time, timewindow.Mode, error) {
	mode, err := timewindow.ParseMode(cfg.Runtime.Mode)
	if err != nil {
		return time.Time{}, mode, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	if mode == timewindow.ModeHistory {
		ref, err := time.ParseInLocation(config.HistoryTimeLayout, cfg.Runtime.HistoryDate, loc)
		if err != nil {
			return time.Time{}, mode, fmt.Errorf("%w: reference time %q must match '%s'", config.ErrInvalid, cfg.Runtime.HistoryDate, config.HistoryTimeLayout)
		}
		return ref, mode, nil
	}
	return time.Now().In(loc), mode, nil
}

// selectTargets returns the configured target names this run applies to,
// sorted for deterministic plan order. The -target flag narrows the run to a
// single target.
func selectTargets(cfg config.Config) ([]string, error) {
	if cfg.Runtime.Target != "" {
		if _, ok := cfg.Targets[cfg.Runtime.Target]; !ok {
			return nil, fmt.Errorf("%w: unknown target %q", config.ErrInvalid, cfg.Runtime.Target)
		}
		return []string{cfg.Runtime.Target}, nil
	}

	names := make([]string, 0, len(cfg.Targets))
	for name := range cfg.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GenerateSyncPlans builds one plan per target and domain. Unbounded targets
// come first so their workspaces are current before any observation-bounded
// target reads them to cap its window.
func GenerateSyncPlans(cfg config.Config, ref time.Time) ([]SyncPlan, error) {
	loc, err := Location(cfg)
	if err != nil {
		return nil, err
	}
	mode, err := timewindow.ParseMode(cfg.Runtime.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	names, err := selectTargets(cfg)
	if err != nil {
		return nil, err
	}

	var plans []SyncPlan
	for _, name := range names {
		target := cfg.Targets[name]

		window, err := resolveWindow(name, target, mode, ref, loc)
		if err != nil {
			return nil, err
		}
		pattern, err := compilePattern(name, target.Pattern)
		if err != nil {
			return nil, err
		}

		var obsRoots []string
		var obsPattern *timestamp.Pattern
		if target.BoundedByObservation {
			obs, ok := cfg.Targets[target.ObservationTarget]
			if !ok {
				return nil, fmt.Errorf("%w: target %q: observationTarget %q is not a configured target", config.ErrInvalid, name, target.ObservationTarget)
			}
			obsPattern, err = compilePattern(target.ObservationTarget, obs.Pattern)
			if err != nil {
				return nil, err
			}
			for _, domain := range domainsOf(obs) {
				root, err := absPath(util.ExpandDomainToken(obs.DestRoot, domain))
				if err != nil {
					return nil, err
				}
				obsRoots = append(obsRoots, root)
			}
			// A workspace template without the domain token expands to the
			// same root once per domain.
			obsRoots = util.MergeAndDeduplicate(obsRoots)
		}

		for _, domain := range domainsOf(target) {
			srcRoot, err := absPath(util.ExpandDomainToken(target.SourceRoot, domain))
			if err != nil {
				return nil, err
			}
			destRoot, err := absPath(util.ExpandDomainToken(target.DestRoot, domain))
			if err != nil {
				return nil, err
			}

			plans = append(plans, SyncPlan{
				Plan: pathsync.Plan{
					Target:            name,
					Domain:            domain,
					AbsSourceRoot:     srcRoot,
					AbsDestRoot:       destRoot,
					Pattern:           pattern,
					Window:            window,
					Location:          loc,
					DecimationMinutes: target.DecimationMinutes,
					DryRun:            cfg.Runtime.DryRun,
					Metrics:           cfg.Metrics,
				},
				BoundedByObservation: target.BoundedByObservation,
				ObservationRoots:     obsRoots,
				ObservationPattern:   obsPattern,
			})
		}
	}

	// Stable partition: unbounded targets keep their order and run first.
	sort.SliceStable(plans, func(i, j int) bool {
		return !plans[i].BoundedByObservation && plans[j].BoundedByObservation
	})

	return plans, nil
}

// GeneratePrunePlans builds one plan per retention rule, all sharing the same
// reference instant. The -rule flag narrows the run to a single rule.
func GeneratePrunePlans(cfg config.Config, now time.Time) ([]pathretention.Plan, error) {
	loc, err := Location(cfg)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cfg.Retention))
	for name := range cfg.Retention {
		names = append(names, name)
	}
	sort.Strings(names)

	if cfg.Runtime.Rule != "" {
		if _, ok := cfg.Retention[cfg.Runtime.Rule]; !ok {
			return nil, fmt.Errorf("%w: unknown retention rule %q", config.ErrInvalid, cfg.Runtime.Rule)
		}
		names = []string{cfg.Runtime.Rule}
	}

	var plans []pathretention.Plan
	for _, name := range names {
		rule := cfg.Retention[name]

		kind, err := pathretention.ParseKind(rule.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: retention %q: %v", config.ErrInvalid, name, err)
		}
		root, err := absPath(rule.Root)
		if err != nil {
			return nil, err
		}

		plan := pathretention.Plan{
			Rule:       name,
			Kind:       kind,
			AbsRoot:    root,
			MaxAgeDays: rule.MaxAgeDays,
			Location:   loc,
			Reference:  now,
			DryRun:     cfg.Runtime.DryRun,
			Metrics:    cfg.Metrics,
		}
		if kind == pathretention.Identity {
			plan.Pattern, err = compilePattern(name, rule.Pattern)
			if err != nil {
				return nil, err
			}
		}
		plans = append(plans, plan)
	}

	return plans, nil
}

// GenerateOrganizePlans builds one plan per target that has a drop directory
// configured, expanded per domain.
func GenerateOrganizePlans(cfg config.Config, ref time.Time) ([]pathorganize.Plan, error) {
	loc, err := Location(cfg)
	if err != nil {
		return nil, err
	}
	mode, err := timewindow.ParseMode(cfg.Runtime.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	names, err := selectTargets(cfg)
	if err != nil {
		return nil, err
	}

	var plans []pathorganize.Plan
	for _, name := range names {
		target := cfg.Targets[name]
		if target.DropDir == "" {
			continue
		}

		window, err := resolveWindow(name, target, mode, ref, loc)
		if err != nil {
			return nil, err
		}
		pattern, err := compilePattern(name, target.Pattern)
		if err != nil {
			return nil, err
		}

		selectMode := latest.ByModTime
		if target.SelectMode != "" {
			selectMode, err = latest.ParseMode(target.SelectMode)
			if err != nil {
				return nil, fmt.Errorf("%w: target %q: %v", config.ErrInvalid, name, err)
			}
		}

		for _, domain := range domainsOf(target) {
			dropDir, err := absPath(util.ExpandDomainToken(target.DropDir, domain))
			if err != nil {
				return nil, err
			}
			destRoot, err := absPath(util.ExpandDomainToken(target.DestRoot, domain))
			if err != nil {
				return nil, err
			}

			plans = append(plans, pathorganize.Plan{
				Target:       name,
				Domain:       domain,
				AbsSourceDir: dropDir,
				AbsDestRoot:  destRoot,
				Pattern:      pattern,
				Window:       window,
				Location:     loc,
				SelectLatest: target.SelectLatest,
				SelectMode:   selectMode,
				DryRun:       cfg.Runtime.DryRun,
				Metrics:      cfg.Metrics,
			})
		}
	}

	return plans, nil
}

// GenerateExportPlans builds one bundle plan per domain of the selected
// target for the day named by the -day flag.
func GenerateExportPlans(cfg config.Config) ([]pathbundle.Plan, error) {
	loc, err := Location(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Runtime.Target == "" {
		return nil, fmt.Errorf("%w: export requires a target (-target)", config.ErrInvalid)
	}
	target, ok := cfg.Targets[cfg.Runtime.Target]
	if !ok {
		return nil, fmt.Errorf("%w: unknown target %q", config.ErrInvalid, cfg.Runtime.Target)
	}

	if cfg.Runtime.ExportDay == "" {
		return nil, fmt.Errorf("%w: export requires a day (-day)", config.ErrInvalid)
	}
	day, err := time.ParseInLocation("2006-01-02", cfg.Runtime.ExportDay, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: day %q must match '2006-01-02'", config.ErrInvalid, cfg.Runtime.ExportDay)
	}

	format := pathbundle.TarZst
	if cfg.Export.Format != "" {
		format, err = pathbundle.ParseFormat(cfg.Export.Format)
		if err != nil {
			return nil, fmt.Errorf("%w: export: %v", config.ErrInvalid, err)
		}
	}
	level := pathbundle.Default
	if cfg.Export.Level != "" {
		level, err = pathbundle.ParseLevel(cfg.Export.Level)
		if err != nil {
			return nil, fmt.Errorf("%w: export: %v", config.ErrInvalid, err)
		}
	}

	if cfg.Export.DestDir == "" {
		return nil, fmt.Errorf("%w: export requires a destination directory", config.ErrInvalid)
	}
	destDir, err := absPath(cfg.Export.DestDir)
	if err != nil {
		return nil, err
	}

	var plans []pathbundle.Plan
	for _, domain := range domainsOf(target) {
		destRoot, err := absPath(util.ExpandDomainToken(target.DestRoot, domain))
		if err != nil {
			return nil, err
		}

		bundleTarget := cfg.Runtime.Target
		if domain != "" {
			bundleTarget += "-" + domain
		}

		plans = append(plans, pathbundle.Plan{
			Target:       bundleTarget,
			Day:          day,
			AbsSourceDir: filepath.Join(destRoot, day.Format("2006/01/02")),
			AbsDestDir:   destDir,
			Format:       format,
			Level:        level,
			DryRun:       cfg.Runtime.DryRun,
		})
	}

	return plans, nil
}

func resolveWindow(name string, target config.TargetConfig, mode timewindow.Mode, ref time.Time, loc *time.Location) (timewindow.Window, error) {
	spec := timewindow.Spec{
		Mode:         mode,
		Reference:    ref,
		Location:     loc,
		LookbackDays: target.LookbackDays,
		RoundToHour:  target.RoundToHour,
	}

	if target.StartOfDayFloor != "" {
		clock, err := timewindow.ParseClock(target.StartOfDayFloor)
		if err != nil {
			return timewindow.Window{}, fmt.Errorf("%w: target %q: %v", config.ErrInvalid, name, err)
		}
		spec.StartOfDayFloor = &clock
	}
	if target.DayShiftThreshold != "" {
		clock, err := timewindow.ParseClock(target.DayShiftThreshold)
		if err != nil {
			return timewindow.Window{}, fmt.Errorf("%w: target %q: %v", config.ErrInvalid, name, err)
		}
		spec.DayShiftThreshold = &clock
	}

	window, err := timewindow.Resolve(spec)
	if err != nil {
		return timewindow.Window{}, fmt.Errorf("%w: target %q: %v", config.ErrInvalid, name, err)
	}
	return window, nil
}

func compilePattern(name, expr string) (*timestamp.Pattern, error) {
	pattern, err := timestamp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", config.ErrInvalid, name, err)
	}
	return pattern, nil
}

func domainsOf(target config.TargetConfig) []string {
	if len(target.Domains) == 0 {
		return []string{""}
	}
	return target.Domains
}

func absPath(path string) (string, error) {
	expanded, err := util.ExpandPath(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s: %w", path, err)
	}
	return abs, nil
}
