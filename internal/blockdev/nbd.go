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

// NBDDevice is an attachment of an image to the fixed NBD node via
// qemu-nbd. Unlike loop devices the node is pre-agreed, so at most one
// attachment can exist; AttachNBD refuses an occupied node rather than
// stealing it.
type NBDDevice struct {
	device string
	policy retry.Policy
}

// LoadNBDModule loads the nbd kernel module with partition support and
// waits for the device nodes to appear.
func LoadNBDModule(maxPart int) error {
	logrus.Info("Loading NBD kernel module")
	if _, err := cmdutil.Run("modprobe", "nbd", fmt.Sprintf("max_part=%d", maxPart)); err != nil {
		return err
	}
	time.Sleep(time.Second)
	return nil
}

// UnloadNBDModule removes the nbd kernel module, best effort
func UnloadNBDModule() {
	logrus.Info("Removing NBD kernel module")
	cmdutil.Run("rmmod", "nbd")
}

// AttachNBD connects an image to the given NBD node, rescans its
// partition table, and waits for the nodes to settle.
func AttachNBD(imagePath, device string, policy retry.Policy) (*NBDDevice, error) {
	logrus.Infof("Connecting image %s to NBD device %s", imagePath, device)

	if nbdOccupied(device) {
		return nil, fmt.Errorf("NBD device %s is already connected, detach it first", device)
	}
	if _, err := cmdutil.Run("qemu-nbd", "--connect", device, imagePath); err != nil {
		return nil, err
	}
	// NBD needs longer than loop to stabilize before the rescan
	time.Sleep(2 * time.Second)
	if _, err := cmdutil.Run("partprobe", device); err != nil {
		cmdutil.Run("qemu-nbd", "--disconnect", device)
		return nil, err
	}
	time.Sleep(time.Second)

	return &NBDDevice{device: device, policy: policy}, nil
}

func (d *NBDDevice) Node() string { return d.device }

func (d *NBDDevice) Partition(n int) string {
	return d.device + "p" + strconv.Itoa(n)
}

// Detach disconnects the NBD device, retrying while the kernel still
// reports a serving process. Idempotent on an already-disconnected
// node.
func (d *NBDDevice) Detach() bool {
	attempt := 0
	detached := retry.Until(d.policy, func() bool {
		attempt++
		if attempt > 1 {
			logrus.Infof("NBD device still busy, attempt %d/%d", attempt, d.policy.Attempts)
		}
		return !nbdOccupied(d.device)
	}, func() {
		cmdutil.Run("qemu-nbd", "--disconnect", d.device)
	})
	return detached || !nbdOccupied(d.device)
}

// nbdOccupied reports whether a qemu-nbd process is serving the node.
// The kernel exposes its pid under /sys/block while connected.
func nbdOccupied(device string) bool {
	name := strings.TrimPrefix(device, "/dev/")
	_, err := os.Stat(filepath.Join("/sys/block", name, "pid"))
	return err == nil
}
