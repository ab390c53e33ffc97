package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hydroworks/gridsync/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	Config   *string
	LogLevel *string
	DryRun   *bool
	Metrics  *bool

	// Shared: Sync / Prune / Organize
	Target  *string
	LockDir *string
	Workers *int

	// Sync specific
	Mode *string
	When *string

	// Prune specific
	Rule *string

	// Export specific
	Day    *string
	Dest   *string
	Format *string
	Level  *string

	// Init specific
	Force   *bool
	Default *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Config = fs.String("config", "", "Path to the configuration file.")
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.DryRun = fs.Bool("dry-run", false, "Show what would be done without making any changes.")
	f.Metrics = fs.Bool("metrics", false, "Enable detailed performance and file-counting metrics.")
}

func registerSyncFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Mode = fs.String("mode", "", "Window mode: 'now' or 'history'.")
	f.When = fs.String("when", "", "Reference time for 'history' mode, formatted as '2006-01-02 15:04'.")
	f.Target = fs.String("target", "", "Restrict the run to a single configured target.")
	f.LockDir = fs.String("lock-dir", "", "Directory for run lock files.")
	f.Workers = fs.Int("workers", 0, "Number of worker goroutines for file copies.")
}

func registerPruneFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Rule = fs.String("rule", "", "Restrict the run to a single configured retention rule.")
	f.LockDir = fs.String("lock-dir", "", "Directory for run lock files.")
	f.Workers = fs.Int("workers", 0, "Number of worker goroutines for file deletions.")
}

func registerOrganizeFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Target = fs.String("target", "", "Restrict the run to a single configured target.")
	f.LockDir = fs.String("lock-dir", "", "Directory for run lock files.")
}

func registerExportFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Target = fs.String("target", "", "Configured target whose partitions should be exported. (Required)")
	f.Day = fs.String("day", "", "Day partition to export, formatted as '2006-01-02'. (Required)")
	f.Dest = fs.String("dest", "", "Destination directory for the bundle.")
	f.Format = fs.String("format", "", "Bundle format: 'tar.gz' or 'tar.zst'.")
	f.Level = fs.String("level", "", "Compression level: 'fastest', 'default', or 'best'.")
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Force = fs.Bool("force", false, "Bypass confirmation prompts.")
	f.Default = fs.Bool("default", false, "Overwrite existing configuration with defaults.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the command and flag map.
func Parse(args []string) (Command, map[string]interface{}, error) {
	// If no arguments provided, print help and exit.
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])

	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	f := &cliFlags{}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}

	switch command {
	case Sync:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerSyncFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Ingest dataset files into the date-partitioned workspace.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case Prune:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerPruneFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Apply retention rules to clean up the workspace.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case Organize:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerOrganizeFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Move files from a flat drop directory into day partitions.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case Export:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerExportFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Bundle a day partition into a compressed archive.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case Init:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerInitFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Write a fresh configuration file.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return Init, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return Init, flagMap, err

	case Version:
		return command, nil, nil

	default:
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) (map[string]interface{}, error) {
	// Create a map of the flags that were explicitly set by the user, along with their values.
	// This map is used to selectively override the base configuration.
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "config", f.Config)
	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)
	addIfUsed(flagMap, usedFlags, "metrics", f.Metrics)

	addIfUsed(flagMap, usedFlags, "target", f.Target)
	addIfUsed(flagMap, usedFlags, "lock-dir", f.LockDir)
	addIfUsed(flagMap, usedFlags, "workers", f.Workers)

	addIfUsed(flagMap, usedFlags, "mode", f.Mode)
	addIfUsed(flagMap, usedFlags, "when", f.When)

	addIfUsed(flagMap, usedFlags, "rule", f.Rule)

	addIfUsed(flagMap, usedFlags, "day", f.Day)
	addIfUsed(flagMap, usedFlags, "dest", f.Dest)
	addIfUsed(flagMap, usedFlags, "format", f.Format)
	addIfUsed(flagMap, usedFlags, "level", f.Level)

	addIfUsed(flagMap, usedFlags, "force", f.Force)
	addIfUsed(flagMap, usedFlags, "default", f.Default)

	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {

	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "A temporal synchronization and retention engine for dataset workspaces.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  sync        Ingest dataset files into the date-partitioned workspace\n")
	fmt.Fprintf(fs.Output(), "  prune       Apply retention rules to clean up the workspace\n")
	fmt.Fprintf(fs.Output(), "  organize    Move files from a flat drop directory into day partitions\n")
	fmt.Fprintf(fs.Output(), "  export      Bundle a day partition into a compressed archive\n")
	fmt.Fprintf(fs.Output(), "  init        Initialize a new configuration\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {

	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "A temporal synchronization and retention engine for dataset workspaces.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}
