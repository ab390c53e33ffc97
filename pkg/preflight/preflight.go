// Package preflight provides validation checks that run before a main
// operation begins. The checks are designed to fail with friendlier errors
// than letting the engine's first filesystem call fail mid-run.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckSourceAccessible validates that the source path exists and is a directory.
func CheckSourceAccessible(srcPath string) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}

	if !srcInfo.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}

	return nil
}

// CheckDestWritable ensures the destination directory can be created and is
// writable by performing filesystem modifications.
func CheckDestWritable(destPath string) error {
	// Ensure the destination directory can be created.
	if err := os.MkdirAll(destPath, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory %s: %w", destPath, err)
	}

	// Perform a thorough write check by creating and deleting a temporary file.
	tempFile := filepath.Join(destPath, ".gridsync-writetest.tmp")
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("destination directory %s is not writable: %w", destPath, err)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}

// CheckFreeSpace verifies the filesystem holding path has at least minBytes
// available. A zero minimum disables the check.
func CheckFreeSpace(path string, minBytes uint64) error {
	if minBytes == 0 {
		return nil
	}
	free, err := freeSpace(path)
	if err != nil {
		return fmt.Errorf("failed to determine free space for %s: %w", path, err)
	}
	if free < minBytes {
		return fmt.Errorf("insufficient free space on %s: %d bytes available, %d required", path, free, minBytes)
	}
	return nil
}
