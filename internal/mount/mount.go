// Package mount dispatches filesystem-specific mount behavior and
// guarantees mount points come back down. ZFS never passes through
// here: pools mount themselves at their altroot on creation and are
// imported read-only on inspection (see internal/zfs).
package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/sigreer/imageforge/internal/cmdutil"
	"github.com/sigreer/imageforge/internal/fspec"
	"github.com/sigreer/imageforge/internal/retry"
)

// entry carries the type-specific quirks: an explicit -t hint where
// autodetection is unreliable, extra options, and a driver module that
// must be loaded first.
type entry struct {
	fstype    string
	extraOpts []string
	modprobe  string
}

var dispatch = map[fspec.Type]entry{
	fspec.Btrfs:   {fstype: "btrfs"},
	fspec.NTFS:    {fstype: "ntfs"},
	fspec.VFAT:    {fstype: "vfat"},
	fspec.UFS:     {fstype: "ufs"},
	fspec.HFSPlus: {fstype: "hfsplus", extraOpts: []string{"force"}},
	fspec.APFS:    {fstype: "apfs", modprobe: "apfs"},
}

// Mount attaches the partition at mountPoint. readOnly is set by the
// inspection pipeline; provisioning mounts writable.
func Mount(device string, fsType fspec.Type, mountPoint string, readOnly bool) error {
	if fsType == fspec.ZFS {
		return fmt.Errorf("zfs is not mounted directly, import the pool instead")
	}

	logrus.Infof("Mounting %s filesystem", fsType)

	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return fmt.Errorf("failed to create mount point %s: %w", mountPoint, err)
	}

	e := dispatch[fsType]
	if e.modprobe != "" {
		// Best effort; the driver may be built in
		cmdutil.Run("modprobe", e.modprobe)
	}

	var args []string
	if e.fstype != "" {
		args = append(args, "-t", e.fstype)
	}
	var opts []string
	if readOnly {
		opts = append(opts, "ro")
	}
	opts = append(opts, e.extraOpts...)
	if len(opts) > 0 {
		args = append(args, "-o", strings.Join(opts, ","))
	}
	args = append(args, device, mountPoint)

	if _, err := cmdutil.Run("mount", args...); err != nil {
		return err
	}
	if !IsMountPoint(mountPoint) {
		return fmt.Errorf("failed to mount filesystem at %s", mountPoint)
	}
	return nil
}

// IsMountPoint reports whether path is the root of a mounted
// filesystem, by comparing its device id with its parent's (the
// mountpoint(1) check). Symlinks are followed, so a link to a ZFS
// altroot answers for the altroot.
func IsMountPoint(path string) bool {
	var st, parent unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false
	}
	if err := unix.Stat(filepath.Join(path, ".."), &parent); err != nil {
		return false
	}
	return st.Dev != parent.Dev || st.Ino == parent.Ino
}

// Unmount forces the mount point down, polling and retrying while it
// stays busy. Idempotent: an already-unmounted path succeeds on the
// first poll. Reports whether the path ended unmounted; a false return
// means the caller must not detach the underlying device.
func Unmount(mountPoint string, policy retry.Policy) bool {
	attempt := 0
	done := retry.Until(policy, func() bool {
		attempt++
		if attempt > 1 {
			logrus.Infof("Mount point still busy, attempt %d/%d", attempt, policy.Attempts)
		}
		return !IsMountPoint(mountPoint)
	}, func() {
		cmdutil.Run("umount", "-f", mountPoint)
	})
	return done || !IsMountPoint(mountPoint)
}
