package pathbundle

import "time"

// Plan describes one export: a single day partition of a target, bundled
// into one compressed tarball in the export directory.
type Plan struct {
	Target string
	Day    time.Time

	// AbsSourceDir is the day partition to bundle.
	AbsSourceDir string
	// AbsDestDir is the directory receiving the bundle file.
	AbsDestDir string

	Format Format
	Level  Level

	// Global Flags
	DryRun bool
}

// BundleName returns the file name of the resulting archive.
func (p Plan) BundleName() string {
	return p.Target + "-" + p.Day.Format("20060102") + p.Format.Extension()
}
