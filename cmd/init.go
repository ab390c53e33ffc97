package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hydroworks/gridsync/pkg/buildinfo"
	"github.com/hydroworks/gridsync/pkg/config"
	"github.com/hydroworks/gridsync/pkg/glog"
)

// RunInit handles the logic for the 'init' command. It writes a configuration
// file at the -config path (or the default name in the working directory),
// preserving an existing file's settings unless -default is given.
func RunInit(ctx context.Context, flagMap map[string]interface{}) error {
	configPath, _ := flagMap["config"].(string)
	if configPath == "" {
		configPath = config.ConfigFileName
	}

	initDefault := false
	if v, ok := flagMap["default"]; ok {
		initDefault = v.(bool)
	}

	var baseConfig config.Config
	if initDefault {
		// Check for force flag to bypass confirmation
		force := false
		if f, ok := flagMap["force"]; ok {
			force = f.(bool)
		}

		if !force {
			if _, err := os.Stat(configPath); err == nil {
				fmt.Printf("WARNING: Configuration file already exists at %s.\n", configPath)
				fmt.Printf("Using -default will overwrite it with default values. All custom settings will be lost.\n")
				if !PromptForConfirmation("Are you sure you want to continue?", false) {
					glog.Info(buildinfo.Name + " init operation canceled.")
					return nil
				}
			}
		}
		baseConfig = config.NewDefault()
	} else {
		// Try to load the existing config to preserve settings. If it fails
		// (e.g. corrupt JSON), we fall back to defaults.
		// Note: config.Load returns NewDefault() if the file simply doesn't exist.
		var err error
		baseConfig, err = config.Load(configPath)
		if err != nil {
			glog.Warn("Could not load existing configuration, starting with defaults.", "reason", err)
			baseConfig = config.NewDefault()
		}
	}

	if err := baseConfig.Validate(); err != nil {
		return err
	}

	startTime := time.Now()
	if err := config.Generate(baseConfig, configPath); err != nil {
		return fmt.Errorf("failed to generate config file: %w", err)
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	glog.Info(buildinfo.Name+" configuration written.", "path", configPath, "duration", duration)
	return nil
}

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
