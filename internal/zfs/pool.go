// Package zfs manages the throwaway pools behind provisioned and
// inspected ZFS images. The provisioning pool lives under a fixed name
// and an isolated altroot so a partially cleaned previous run cannot
// collide with the live one.
package zfs

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/imageforge/internal/cmdutil"
)

// CreatePool creates a pool on the given partition, mounted under the
// isolated altroot. Creation is verified against the pool list; a pool
// that cannot be verified is destroyed before the error propagates, so
// no half-created pool stays importable.
func CreatePool(name, altroot, partition string) error {
	if err := os.MkdirAll(altroot, 0o755); err != nil {
		return fmt.Errorf("failed to create altroot %s: %w", altroot, err)
	}

	_, err := cmdutil.Run("zpool", "create", "-f",
		"-o", "ashift=12",
		"-o", "altroot="+altroot,
		"-O", "mountpoint=/",
		"-O", "compression=on",
		"-O", "atime=off",
		name, partition)
	if err != nil {
		cmdutil.Run("zpool", "destroy", "-f", name)
		return err
	}

	out, err := cmdutil.Run("zpool", "list", name)
	if err != nil || !strings.Contains(out, name) {
		cmdutil.Run("zpool", "destroy", "-f", name)
		return fmt.Errorf("failed to verify ZFS pool %s after creation", name)
	}
	return nil
}

// Exists checks if a pool is currently imported
func Exists(name string) bool {
	_, err := cmdutil.Run("zpool", "list", name)
	return err == nil
}

// ListPools returns the names of all imported pools
func ListPools() []string {
	out, err := cmdutil.Output("zpool", "list", "-H", "-o", "name")
	if err != nil {
		return nil
	}
	var pools []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			pools = append(pools, name)
		}
	}
	return pools
}

// FindImportable scans a partition for an importable pool and returns
// its name, parsed from the scan report's "pool:" line.
func FindImportable(partition string) (string, error) {
	logrus.Infof("Attempting to import ZFS pool from %s", partition)

	out, err := cmdutil.Run("zpool", "import", "-d", partition)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "pool:") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "pool:")), nil
		}
	}
	return "", fmt.Errorf("no ZFS pool found in %s", partition)
}

// ImportReadOnly imports a pool read-only with mountPoint as its
// altroot, so inspection never dirties the image.
func ImportReadOnly(partition, name, mountPoint string) error {
	logrus.Infof("Found ZFS pool: %s", name)
	_, err := cmdutil.Run("zpool", "import", "-f", "-d", partition,
		"-R", mountPoint, "-o", "readonly=on", name)
	return err
}

// Export safely exports a pool with sync
func Export(name string) error {
	// Flush filesystem buffers before the pool goes away
	if _, err := cmdutil.Run("sync"); err != nil {
		return err
	}
	if _, err := cmdutil.Run("zpool", "sync", name); err != nil {
		return err
	}
	if _, err := cmdutil.Run("zpool", "export", name); err != nil {
		return err
	}
	return nil
}

// ExportAll exports every imported pool, best effort. Used by the
// inspection teardown, which may have imported a foreign pool under an
// unknown name.
func ExportAll() {
	for _, name := range ListPools() {
		logrus.Infof("Exporting ZFS pool %s", name)
		if _, err := cmdutil.Run("zpool", "export", name); err != nil {
			logrus.Debugf("Export of %s failed: %v", name, err)
		}
	}
}

// CleanupPrefixed tears down every pool whose name carries the given
// prefix: datasets are unmounted deepest first, the pool exported, and
// force-destroyed if it still exists afterwards. Only prefixed pools
// are touched so host pools survive a run on a shared machine.
func CleanupPrefixed(prefix string) {
	for _, name := range ListPools() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		logrus.Infof("Cleaning up ZFS pool %s", name)

		if out, err := cmdutil.Output("zfs", "list", "-H", "-o", "name", "-r", name); err == nil {
			datasets := strings.Fields(out)
			for i := len(datasets) - 1; i >= 0; i-- {
				logrus.Debugf("Unmounting dataset %s", datasets[i])
				cmdutil.Run("zfs", "unmount", datasets[i])
			}
		}

		if err := Export(name); err != nil {
			logrus.Warnf("Error during clean export of %s: %v", name, err)
		}
		if Exists(name) {
			logrus.Warnf("Forcing destruction of pool %s", name)
			cmdutil.Run("zpool", "destroy", "-f", name)
		}
	}
}
