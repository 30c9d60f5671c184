// Package image handles disk image files themselves: raw allocation
// for provisioning, format detection and conversion for inspection of
// foreign images.
package image

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/sigreer/imageforge/internal/cmdutil"
)

// AllocateRaw creates an empty raw disk image of sizeMB MiB in dir and
// verifies the allocated size matches exactly.
func AllocateRaw(dir string, sizeMB int) (string, error) {
	f, err := os.CreateTemp(dir, "disk_*.raw")
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	path := f.Name()
	f.Close()

	expected := int64(sizeMB) * 1024 * 1024
	logrus.Infof("Creating %s raw disk image at %s", humanize.IBytes(uint64(expected)), path)

	if _, err := cmdutil.Run("fallocate", "-l", fmt.Sprintf("%dM", sizeMB), path); err != nil {
		os.Remove(path)
		return "", err
	}

	st, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to create image file %s: %w", path, err)
	}
	if st.Size() != expected {
		os.Remove(path)
		return "", fmt.Errorf("created image has wrong size: expected %d, got %d", expected, st.Size())
	}
	return path, nil
}
