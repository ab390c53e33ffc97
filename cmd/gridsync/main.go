package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/hydroworks/gridsync/cmd"
	"github.com/hydroworks/gridsync/pkg/buildinfo"
	"github.com/hydroworks/gridsync/pkg/config"
	"github.com/hydroworks/gridsync/pkg/flagparse"
	"github.com/hydroworks/gridsync/pkg/glog"
	"github.com/hydroworks/gridsync/pkg/lockfile"
)

// Exit statuses are part of the CLI contract: schedulers distinguish a bad
// configuration from an already-running unit without parsing log output.
const (
	exitOK            = 0
	exitFailure       = 1
	exitInvalidConfig = 2
	exitLockActive    = 3
)

// run dispatches the parsed command and returns the process exit status.
func run(ctx context.Context) int {
	command, flagMap, err := flagparse.Parse(os.Args[1:])
	if err != nil {
		glog.Error("Invalid command line", "error", err)
		return exitInvalidConfig
	}

	switch command {
	case flagparse.None:
		return exitOK // Help was printed.
	case flagparse.Version:
		_ = cmd.RunVersion(buildinfo.Name, buildinfo.Version)
		return exitOK
	}

	// Honor an explicit -log-level before the config is loaded, so early
	// debug output from loading itself is visible.
	if level, ok := flagMap["log-level"].(string); ok {
		glog.SetLevel(glog.LevelFromString(level))
	}

	glog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "command", command, "pid", os.Getpid())

	switch command {
	case flagparse.Sync:
		err = cmd.RunSync(ctx, flagMap)
	case flagparse.Prune:
		err = cmd.RunPrune(ctx, flagMap)
	case flagparse.Organize:
		err = cmd.RunOrganize(ctx, flagMap)
	case flagparse.Export:
		err = cmd.RunExport(ctx, flagMap)
	case flagparse.Init:
		err = cmd.RunInit(ctx, flagMap)
	}

	if err != nil {
		glog.Error(buildinfo.Name+" exited with error", "error", err)
		return exitStatus(err)
	}
	return exitOK
}

// exitStatus maps an error to the documented exit codes.
func exitStatus(err error) int {
	var lockErr *lockfile.ErrLockActive
	switch {
	case errors.Is(err, config.ErrInvalid):
		return exitInvalidConfig
	case errors.As(err, &lockErr):
		return exitLockActive
	default:
		return exitFailure
	}
}

func main() {
	// Set up a context that is canceled when an interrupt signal is received.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for interrupt signals (like Ctrl+C) in a separate goroutine.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	os.Exit(run(ctx))
}
