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

// RunSync handles the logic for the main sync execution.
func RunSync(ctx context.Context, flagMap map[string]interface{}) error {
	runConfig, err := loadRunConfig(flagparse.Sync, flagMap)
	if err != nil {
		return err
	}

	loc, err := planner.Location(runConfig)
	if err != nil {
		return err
	}
	ref, mode, err := planner.ReferenceTime(runConfig, loc)
	if err != nil {
		return err
	}
	glog.Info("Run anchored", "mode", mode, "reference", ref.Format("2006-01-02 15:04"))

	plans, err := planner.GenerateSyncPlans(runConfig, ref)
	if err != nil {
		return err
	}

	runner := engine.NewRunner(runConfig)

	startTime := time.Now()
	err = runner.ExecuteSync(ctx, plans)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	glog.Info(buildinfo.Name+" sync finished successfully.", "duration", duration)
	return nil
}
