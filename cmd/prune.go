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

// RunPrune handles the logic for the 'prune' command.
func RunPrune(ctx context.Context, flagMap map[string]interface{}) error {
	runConfig, err := loadRunConfig(flagparse.Prune, flagMap)
	if err != nil {
		return err
	}

	plans, err := planner.GeneratePrunePlans(runConfig, time.Now())
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		glog.Info("No retention rules configured, nothing to prune.")
		return nil
	}

	runner := engine.NewRunner(runConfig)

	startTime := time.Now()
	err = runner.ExecutePrune(ctx, plans)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	glog.Info(buildinfo.Name+" prune finished successfully.", "duration", duration)
	return nil
}
