// Package partition writes GPT layouts for provisioned images and
// scans existing images for a mountable filesystem partition. The
// scanner trusts nothing the writer did: inspected images are usually
// foreign, so classification always starts from the live table.
package partition

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/imageforge/internal/blockdev"
	"github.com/sigreer/imageforge/internal/cmdutil"
	"github.com/sigreer/imageforge/internal/fspec"
)

// Pause between destructive parted operations so the kernel can re-read
// table state before the next mutation lands.
const mutationSettle = 500 * time.Millisecond

// WriteTable lays out a GPT partition table for the given filesystem.
// ZFS gets a single type-tagged partition spanning the disk; everything
// else gets a 500MiB ESP followed by a root partition typed per
// filesystem.
func WriteTable(imagePath string, fsType fspec.Type) error {
	logrus.Infof("Creating partition table for %s on %s", fsType, imagePath)

	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("image file not found: %s: %w", imagePath, err)
	}

	var steps [][]string
	if fsType == fspec.ZFS {
		steps = [][]string{
			{"mklabel", "gpt"},
			{"mkpart", "zfs", "1MiB", "100%"},
			{"set", "1", "raid", "on"},
		}
	} else {
		steps = [][]string{
			{"mklabel", "gpt"},
			{"mkpart", "ESP", "fat32", "1MiB", "501MiB"},
			{"set", "1", "esp", "on"},
			{"mkpart", "primary", string(fsType), "501MiB", "100%"},
		}
	}

	for _, step := range steps {
		args := append([]string{"-s", imagePath}, step...)
		if _, err := cmdutil.Run("parted", args...); err != nil {
			return err
		}
		time.Sleep(mutationSettle)
	}
	return nil
}

// Format creates the filesystems for a non-pool catalog entry:
// partition 1 becomes the FAT32 ESP, partition 2 gets the type-specific
// creation command. Missing partition nodes at this point mean the
// attach settle window was not enough; that is fatal for the run.
func Format(dev blockdev.Device, spec fspec.Spec) error {
	logrus.Infof("Creating %s filesystem", spec.Type)

	esp := dev.Partition(1)
	root := dev.Partition(2)
	for _, node := range []string{esp, root} {
		if _, err := os.Stat(node); err != nil {
			return fmt.Errorf("partition device %s not found after attach: %w", node, err)
		}
	}

	if _, err := cmdutil.Run("mkfs.fat", "-F32", esp); err != nil {
		return err
	}
	args := append(append([]string{}, spec.MkfsCommand[1:]...), root)
	if _, err := cmdutil.Run(spec.MkfsCommand[0], args...); err != nil {
		return err
	}
	return nil
}
