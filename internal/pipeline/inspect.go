package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/imageforge/internal/blockdev"
	"github.com/sigreer/imageforge/internal/cmdutil"
	"github.com/sigreer/imageforge/internal/config"
	"github.com/sigreer/imageforge/internal/fspec"
	"github.com/sigreer/imageforge/internal/image"
	"github.com/sigreer/imageforge/internal/ledger"
	"github.com/sigreer/imageforge/internal/mount"
	"github.com/sigreer/imageforge/internal/partition"
	"github.com/sigreer/imageforge/internal/retry"
	"github.com/sigreer/imageforge/internal/teardown"
	"github.com/sigreer/imageforge/internal/zfs"
)

var inspectCommands = map[string]string{
	"qemu-img":  "qemu-utils",
	"qemu-nbd":  "qemu-utils",
	"modprobe":  "kmod",
	"partprobe": "util-linux",
	"parted":    "parted",
	"blkid":     "util-linux",
	"mount":     "util-linux",
	"umount":    "util-linux",
	"gunzip":    "gzip",
	"syft":      "syft",
	"zpool":     "zfsutils-linux",
}

// scanPolicy bounds the partition-table read right after NBD attach
var scanPolicy = retry.Policy{Attempts: 3, Interval: 2 * time.Second}

// Inspector mounts a pre-built image read-only and runs the SBOM
// scanner over its best root-like partition.
type Inspector struct {
	cfg *config.Config
	led *ledger.Ledger
}

func NewInspector(cfg *config.Config, led *ledger.Ledger) *Inspector {
	return &Inspector{cfg: cfg, led: led}
}

// Run inspects one image file. Teardown runs whatever happened: pool
// export / unmount, then NBD disconnect, then module unload, then
// temporary file removal.
func (ins *Inspector) Run(imagePath string) error {
	if err := cmdutil.Verify(inspectCommands); err != nil {
		return err
	}

	slot, err := blockdev.AcquireSlot(ins.cfg.LockFile)
	if err != nil {
		return err
	}
	defer slot.Release()

	runID := ins.led.StartRun("inspect", imagePath)

	stack := teardown.NewStack()
	err = ins.inspect(imagePath, runID, stack)

	logrus.Info("Starting cleanup")
	stack.Drain()

	if err != nil {
		ins.led.FinishRun(runID, "failed", err)
		return err
	}
	ins.led.FinishRun(runID, "succeeded", nil)
	return nil
}

func (ins *Inspector) inspect(imagePath, runID string, stack *teardown.Stack) error {
	policy := retry.Policy{Attempts: ins.cfg.Retry.Attempts, Interval: ins.cfg.RetryDelay()}

	prepared, err := image.Prepare(imagePath)
	if err != nil {
		return err
	}
	stack.Push("temporary image files", prepared.Cleanup)

	if err := blockdev.LoadNBDModule(ins.cfg.NBD.MaxPart); err != nil {
		return err
	}
	stack.Push("nbd kernel module", func() error {
		blockdev.UnloadNBDModule()
		return nil
	})

	dev, err := blockdev.AttachNBD(prepared.Path, ins.cfg.NBD.Device, policy)
	if err != nil {
		return err
	}
	stack.Push("nbd device "+dev.Node(), func() error {
		logrus.Info("Disconnecting NBD device")
		if !dev.Detach() {
			return fmt.Errorf("failed to disconnect %s", dev.Node())
		}
		return nil
	})

	scanner := partition.NewScanner(scanPolicy)
	infos, err := scanner.Scan(dev)
	if err != nil {
		return err
	}
	selected, err := partition.Select(infos)
	if err != nil {
		return err
	}

	fsToken := ins.probeType(selected)
	fsType, ok := fspec.Parse(fsToken)
	if !ok {
		fsType = selected.Type
	}

	mountPoint := ins.cfg.MountPoint
	if fsType == fspec.ZFS {
		poolName, err := zfs.FindImportable(selected.Device)
		if err != nil {
			return err
		}
		if err := zfs.ImportReadOnly(selected.Device, poolName, mountPoint); err != nil {
			return err
		}
		stack.Push("zfs pool "+poolName, func() error {
			zfs.ExportAll()
			return nil
		})
	} else {
		if err := mount.Mount(selected.Device, fsType, mountPoint, true); err != nil {
			return err
		}
		stack.Push("mount "+mountPoint, func() error {
			logrus.Infof("Unmounting %s", mountPoint)
			if !mount.Unmount(mountPoint, policy) {
				return fmt.Errorf("failed to unmount %s", mountPoint)
			}
			return nil
		})
	}

	sbomFile, err := ins.generateSBOM(imagePath, mountPoint, selected.Device, fsToken)
	if err != nil {
		return err
	}
	ins.led.RecordArtifact(runID, sbomFile, fsToken, selected.Device)
	return nil
}

// probeType asks the identification tool for the partition's type
// token, falling back to the scanner's classification, then "unknown".
// The raw token (e.g. zfs_member) also lands in the SBOM filename.
func (ins *Inspector) probeType(selected partition.Info) string {
	out, err := cmdutil.Output("blkid", "-o", "value", "-s", "TYPE", selected.Device)
	if err == nil {
		if token := strings.ToLower(strings.TrimSpace(out)); token != "" {
			return token
		}
	}
	if selected.Type != "" {
		return string(selected.Type)
	}
	return "unknown"
}

// generateSBOM shells out to the scanner against the mounted tree. The
// scanner writes the artifact itself; we only name it.
func (ins *Inspector) generateSBOM(imagePath, mountPoint, partDevice, fsToken string) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	output := fmt.Sprintf("%s_sbom_%s_%s_%s.json",
		timestamp, image.Stem(imagePath), filepath.Base(partDevice), fsToken)

	logrus.Infof("Generating SBOM for mounted filesystem at %s", mountPoint)
	logrus.Infof("Filesystem type: %s", fsToken)

	if _, err := cmdutil.Run("syft",
		"--override-default-catalogers", "image",
		mountPoint,
		"-o", "syft-json=./"+output); err != nil {
		return "", err
	}

	logrus.Infof("SBOM generated: %s", output)
	return output, nil
}
