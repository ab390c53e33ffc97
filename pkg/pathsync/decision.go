package pathsync

import (
	"fmt"
	"os"
	"time"

	"github.com/hydroworks/gridsync/pkg/timewindow"
)

// Decision classifies one candidate file.
type Decision int

const (
	// Copy means the candidate is eligible and absent from the destination.
	Copy Decision = iota
	// SkipWindow means the extracted timestamp lies outside the run window.
	SkipWindow
	// SkipDecimated means the timestamp falls between decimation slots.
	SkipDecimated
	// SkipExists means the destination file already exists.
	SkipExists
	// SkipUnparsed means no timestamp could be extracted from the name.
	SkipUnparsed
)

var decisionNames = map[Decision]string{
	Copy:          "COPY",
	SkipWindow:    "SKIP_WINDOW",
	SkipDecimated: "SKIP_DECIMATED",
	SkipExists:    "SKIP_EXISTS",
	SkipUnparsed:  "SKIP_UNPARSED",
}

// String returns the reason code used in decision logs.
func (d Decision) String() string {
	if name, ok := decisionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(d))
}

// Candidate is one source file under consideration, with its extracted
// timestamp when parsing succeeded.
type Candidate struct {
	SourcePath string
	Name       string
	DestPath   string

	Timestamp time.Time
	Parsed    bool
}

// evaluate runs the gate for one candidate. Checks are ordered cheapest
// first: parse, window, decimation, destination existence.
func evaluate(c Candidate, window timewindow.Window, decimationMinutes int) Decision {
	if !c.Parsed {
		return SkipUnparsed
	}
	if !window.Contains(c.Timestamp) {
		return SkipWindow
	}
	if decimationMinutes > 0 {
		// Decimation is keyed on absolute minute-of-day, so the same file
		// set decimates identically regardless of scan order.
		minuteOfDay := c.Timestamp.Hour()*60 + c.Timestamp.Minute()
		if minuteOfDay%decimationMinutes != 0 {
			return SkipDecimated
		}
	}
	if _, err := os.Stat(c.DestPath); err == nil {
		return SkipExists
	}
	return Copy
}
