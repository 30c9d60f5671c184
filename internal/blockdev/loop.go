// Package blockdev attaches disk images to block device nodes (loop
// for provisioning, NBD for inspecting converted images) and guarantees
// they come back off. Attachment is followed by a partition rescan and
// a settle pause: new partition device nodes appear asynchronously, so
// their absence right after attach is kernel timing, not an error.
package blockdev

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/imageforge/internal/cmdutil"
	"github.com/sigreer/imageforge/internal/retry"
)

// Device is an attached block device backed by an image file
type Device interface {
	// Node returns the device node path, e.g. /dev/loop3
	Node() string
	// Partition returns the device node of partition n (1-based)
	Partition(n int) string
	// Detach releases the device, retrying while the kernel still
	// holds references. Idempotent; reports whether the device ended
	// detached.
	Detach() bool
}

// LoopDevice is a dynamically allocated loop attachment
type LoopDevice struct {
	device string
	policy retry.Policy
}

// AttachLoop binds an image file to the next free loop device, rescans
// its partition table, and waits for the partition nodes to settle.
func AttachLoop(imagePath string, policy retry.Policy) (*LoopDevice, error) {
	logrus.Infof("Setting up loop device for %s", imagePath)

	if _, err := os.Stat(imagePath); err != nil {
		return nil, fmt.Errorf("image file not found: %s: %w", imagePath, err)
	}

	out, err := cmdutil.Output("losetup", "--show", "-f", imagePath)
	if err != nil {
		return nil, err
	}
	device := strings.TrimSpace(out)
	if _, err := os.Stat(device); err != nil {
		return nil, fmt.Errorf("loop device %s missing after attach: %w", device, err)
	}

	// Partition nodes appear asynchronously after the rescan
	time.Sleep(time.Second)
	if _, err := cmdutil.Run("partprobe", device); err != nil {
		cmdutil.Run("losetup", "-d", device)
		return nil, err
	}
	time.Sleep(time.Second)

	return &LoopDevice{device: device, policy: policy}, nil
}

func (d *LoopDevice) Node() string { return d.device }

func (d *LoopDevice) Partition(n int) string {
	return d.device + "p" + strconv.Itoa(n)
}

// Detach polls whether the loop device is still bound and nudges it
// loose with a detach between polls. A device that is already gone, or
// no longer bound to any backing file, counts as detached immediately.
func (d *LoopDevice) Detach() bool {
	// Give outstanding unmounts a moment to drop their references
	time.Sleep(time.Second)

	attempt := 0
	detached := retry.Until(d.policy, func() bool {
		attempt++
		if attempt > 1 {
			logrus.Infof("Loop device still busy, attempt %d/%d", attempt, d.policy.Attempts)
		}
		return !d.attached()
	}, func() {
		cmdutil.Run("losetup", "-d", d.device)
	})
	return detached || !d.attached()
}

// attached checks sysfs for a backing file; a loop device without one
// has been released by the kernel.
func (d *LoopDevice) attached() bool {
	if _, err := os.Stat(d.device); err != nil {
		return false
	}
	name := strings.TrimPrefix(d.device, "/dev/")
	_, err := os.Stat(filepath.Join("/sys/block", name, "loop", "backing_file"))
	return err == nil
}
