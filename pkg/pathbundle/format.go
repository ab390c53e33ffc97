package pathbundle

import (
	"encoding/json"
	"fmt"

	"github.com/hydroworks/gridsync/pkg/util"
)

// Format represents the archive format for export bundles.
type Format string

const (
	TarGz  Format = "tar.gz"
	TarZst Format = "tar.zst"
)

var formatToString = map[Format]string{
	TarGz:  "tar.gz",
	TarZst: "tar.zst",
}

var stringToFormat = util.InvertMap(formatToString)

func (f Format) String() string {
	if str, ok := formatToString[f]; ok {
		return str
	}
	return fmt.Sprintf("unknown_bundle_format(%s)", string(f))
}

// Extension returns the file suffix for the format, including the dot.
func (f Format) Extension() string {
	return "." + f.String()
}

func ParseFormat(s string) (Format, error) {
	if format, ok := stringToFormat[s]; ok {
		return format, nil
	}
	return "", fmt.Errorf("invalid bundle format: %q. Must be 'tar.gz' or 'tar.zst'", s)
}

// MarshalJSON implements the json.Marshaler interface for Format.
func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Format.
func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("bundle format should be a string, got %s", data)
	}
	format, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = format
	return nil
}

// Level represents the compression effort for export bundles.
type Level string

const (
	Fastest Level = "fastest"
	Default Level = "default"
	Best    Level = "best"
)

var levelToString = map[Level]string{
	Fastest: "fastest",
	Default: "default",
	Best:    "best",
}

var stringToLevel = util.InvertMap(levelToString)

func (l Level) String() string {
	if str, ok := levelToString[l]; ok {
		return str
	}
	return fmt.Sprintf("unknown_bundle_level(%s)", string(l))
}

func ParseLevel(s string) (Level, error) {
	if level, ok := stringToLevel[s]; ok {
		return level, nil
	}
	return "", fmt.Errorf("invalid bundle level: %q. Must be 'fastest', 'default' or 'best'", s)
}

// MarshalJSON implements the json.Marshaler interface for Level.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Level.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("bundle level should be a string, got %s", data)
	}
	level, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}
