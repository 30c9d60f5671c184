// Package container populates a mounted filesystem from a container
// image's exported rootfs.
package container

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/imageforge/internal/cmdutil"
)

// Populate pulls ref, exports a stopped instance's filesystem archive
// into mountPoint, and extracts it in place. The instance is removed
// whatever the extraction outcome. Ownership and permissions are
// whatever the archive carries.
func Populate(mountPoint, ref string) error {
	logrus.Infof("Populating root filesystem from container %s", ref)

	if _, err := cmdutil.Run("docker", "info"); err != nil {
		return fmt.Errorf("docker daemon is not running: %w", err)
	}

	logrus.Infof("Pulling container %s", ref)
	if _, err := cmdutil.Run("docker", "pull", ref); err != nil {
		return err
	}

	logrus.Info("Creating temporary container")
	out, err := cmdutil.Output("docker", "create", ref)
	if err != nil {
		return err
	}
	containerID := strings.TrimSpace(out)

	defer func() {
		logrus.Info("Cleaning up temporary container")
		if _, err := cmdutil.Run("docker", "rm", containerID); err != nil {
			logrus.Warnf("Failed to remove container %s: %v", containerID, err)
		}
	}()

	logrus.Info("Exporting container filesystem")
	tarPath := filepath.Join(mountPoint, "rootfs.tar")
	f, err := os.Create(tarPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tarPath, err)
	}
	if err := cmdutil.RunTo(f, "docker", "export", containerID); err != nil {
		f.Close()
		return err
	}
	f.Close()

	st, err := os.Stat(tarPath)
	if err != nil || st.Size() == 0 {
		return fmt.Errorf("failed to export container filesystem to %s", tarPath)
	}

	logrus.Info("Extracting rootfs")
	if _, err := cmdutil.Run("tar", "xf", tarPath, "-C", mountPoint); err != nil {
		return err
	}
	return os.Remove(tarPath)
}
