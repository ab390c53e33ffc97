package pathretention

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hydroworks/gridsync/pkg/timestamp"
	"github.com/hydroworks/gridsync/pkg/util"
)

// Kind selects the retention policy.
type Kind int

const (
	// Age deletes files older than a maximum age and prunes emptied
	// directories bottom-up.
	Age Kind = iota
	// Identity deletes files whose embedded timestamp disagrees with the
	// calendar date of the partition directory holding them.
	Identity
)

var kindNames = map[Kind]string{
	Age:      "age",
	Identity: "identity",
}

var kindValues = util.InvertMap(kindNames)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindValues[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return Age, fmt.Errorf("unknown retention kind %q (expected age or identity)", s)
}

// MarshalJSON writes the kind as its configuration name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON reads the kind from its configuration name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Plan describes one retention pass over one root. Plans are built by the
// planner and are immutable during execution.
type Plan struct {
	Rule string
	Kind Kind

	AbsRoot string

	// MaxAgeDays applies to Age rules.
	MaxAgeDays int

	// Pattern and Location apply to Identity rules.
	Pattern  *timestamp.Pattern
	Location *time.Location

	// Reference is the instant "now" for age comparison. The planner fills
	// it in once per run so every rule shares the same cutoff.
	Reference time.Time

	// Global Flags
	DryRun  bool
	Metrics bool
}
