package cmd

import (
	"context"
	"time"

	"github.com/hydroworks/gridsync/pkg/buildinfo"
	"github.com/hydroworks/gridsync/pkg/engine"
	"github.com/hydroworks/gridsync/pkg/flagparse"
	"github.com/hydroworks/gridsync/pkg/glog"
	"github.com/hydroworks/gridsync/pkg/planner"
)

// RunOrganize handles the logic for the 'organize' command.
func RunOrganize(ctx context.Context, flagMap map[string]interface{}) error {
	runConfig, err := loadRunConfig(flagparse.Organize, flagMap)
	if err != nil {
		return err
	}

	loc, err := planner.Location(runConfig)
	if err != nil {
		return err
	}
	ref, _, err := planner.ReferenceTime(runConfig, loc)
	if err != nil {
		return err
	}

	plans, err := planner.GenerateOrganizePlans(runConfig, ref)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		glog.Info("No targets with a drop directory configured, nothing to organize.")
		return nil
	}

	runner := engine.NewRunner(runConfig)

	startTime := time.Now()
	err = runner.ExecuteOrganize(ctx, plans)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	glog.Info(buildinfo.Name+" organize finished successfully.", "duration", duration)
	return nil
}
