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

// RunExport handles the logic for the 'export' command.
func RunExport(ctx context.Context, flagMap map[string]interface{}) error {
	runConfig, err := loadRunConfig(flagparse.Export, flagMap)
	if err != nil {
		return err
	}

	plans, err := planner.GenerateExportPlans(runConfig)
	if err != nil {
		return err
	}

	runner := engine.NewRunner(runConfig)

	startTime := time.Now()
	err = runner.ExecuteExport(ctx, plans)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	glog.Info(buildinfo.Name+" export finished successfully.", "duration", duration)
	return nil
}
