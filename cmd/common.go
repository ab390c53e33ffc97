package cmd

import (
	"fmt"

	"github.com/hydroworks/gridsync/pkg/config"
	"github.com/hydroworks/gridsync/pkg/flagparse"
	"github.com/hydroworks/gridsync/pkg/glog"
)

// loadRunConfig loads the configuration file, merges the explicitly set flags
// over it and validates the result. Every command starts here.
func loadRunConfig(command flagparse.Command, flagMap map[string]interface{}) (config.Config, error) {
	configPath, _ := flagMap["config"].(string)

	loadedConfig, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Merge the flag values over the loaded config to get the final run config.
	runConfig := config.MergeConfigWithFlags(command, loadedConfig, flagMap)

	if err := runConfig.Validate(); err != nil {
		return config.Config{}, err
	}

	// Set the global log level based on the final configuration.
	glog.SetLevel(glog.LevelFromString(runConfig.LogLevel))

	runConfig.LogSummary()
	return runConfig, nil
}
