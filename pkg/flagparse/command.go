package flagparse

import (
	"fmt"

	"github.com/hydroworks/gridsync/pkg/util"
)

// Command defines the subcommand to execute.
type Command int

const (
	None = iota
	Sync
	Version
	Init
	Prune
	Organize
	Export
)

var commandToString = map[Command]string{
	None:     "none",
	Sync:     "sync",
	Version:  "version",
	Init:     "init",
	Prune:    "prune",
	Organize: "organize",
	Export:   "export",
}

var stringToCommand map[string]Command

func init() {
	stringToCommand = util.InvertMap(commandToString)
}

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", c)
}

func ParseCommand(s string) (Command, error) {
	if command, ok := stringToCommand[s]; ok {
		return command, nil
	}
	return None, fmt.Errorf("invalid command: %q. Must be 'sync', 'prune', 'organize', 'export', 'version', or 'init'", s)
}
