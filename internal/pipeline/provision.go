// Package pipeline wires the stages together: provisioning builds one
// distributable image per catalog entry, inspection mounts an arbitrary
// image and hands it to the SBOM scanner. Both run strictly
// top-to-bottom; every acquired resource is pushed onto a teardown
// stack the moment it exists, so a failure anywhere unwinds in reverse
// acquisition order.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/sigreer/imageforge/internal/blockdev"
	"github.com/sigreer/imageforge/internal/cmdutil"
	"github.com/sigreer/imageforge/internal/config"
	"github.com/sigreer/imageforge/internal/container"
	"github.com/sigreer/imageforge/internal/fspec"
	"github.com/sigreer/imageforge/internal/image"
	"github.com/sigreer/imageforge/internal/ledger"
	"github.com/sigreer/imageforge/internal/mount"
	"github.com/sigreer/imageforge/internal/partition"
	"github.com/sigreer/imageforge/internal/retry"
	"github.com/sigreer/imageforge/internal/teardown"
	"github.com/sigreer/imageforge/internal/zfs"
)

// provisionCommands is the base tool set the provisioning pipeline
// shells out to; per-type mkfs tools are added from the catalog.
var provisionCommands = map[string]string{
	"fallocate": "util-linux",
	"parted":    "parted",
	"losetup":   "util-linux",
	"partprobe": "util-linux",
	"mkfs.fat":  "dosfstools",
	"mount":     "util-linux",
	"umount":    "util-linux",
	"docker":    "docker.io",
	"tar":       "tar",
	"qemu-img":  "qemu-utils",
	"zpool":     "zfsutils-linux",
	"zfs":       "zfsutils-linux",
}

// Provisioner generates one distributable disk image per catalog entry
type Provisioner struct {
	cfg *config.Config
	led *ledger.Ledger
}

func NewProvisioner(cfg *config.Config, led *ledger.Ledger) *Provisioner {
	return &Provisioner{cfg: cfg, led: led}
}

// Run iterates the catalog in priority order. A failed entry is logged
// and recorded, and the remaining entries still run; the returned error
// reflects whether any entry failed.
func (p *Provisioner) Run() error {
	required := map[string]string{}
	for cmd, pkg := range provisionCommands {
		required[cmd] = pkg
	}
	for _, spec := range fspec.Catalog() {
		if spec.RequiredTool != "" {
			required[spec.RequiredTool] = spec.ToolPackage
		}
	}
	if err := cmdutil.Verify(required); err != nil {
		return err
	}

	logrus.Infof("Creating output directory at %s", p.cfg.OutputDir)
	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := unix.Access(p.cfg.OutputDir, unix.W_OK); err != nil {
		return fmt.Errorf("cannot write to output directory %s: %w", p.cfg.OutputDir, err)
	}

	slot, err := blockdev.AcquireSlot(p.cfg.LockFile)
	if err != nil {
		return err
	}
	defer slot.Release()

	failed := 0
	for _, spec := range fspec.Catalog() {
		if err := p.generate(spec); err != nil {
			logrus.Errorf("Failed to generate %s image: %v", spec.Type, err)
			failed++
			continue
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d catalog entries failed", failed, len(fspec.Catalog()))
	}
	return nil
}

// generate builds one image: allocate, partition, attach, format,
// mount, populate, then tear everything down before converting the raw
// disk into the distribution artifact.
func (p *Provisioner) generate(spec fspec.Spec) error {
	artifact := filepath.Join(p.cfg.OutputDir, spec.ArtifactName())
	if _, err := os.Stat(artifact); err == nil {
		logrus.Infof("Image %s already exists, skipping generation", artifact)
		return nil
	}

	logrus.Infof("Generating %s image from %s", spec.Type, spec.BaseImage)

	runID := p.led.StartRun("generate", string(spec.Type))

	raw, err := image.AllocateRaw(p.cfg.OutputDir, p.cfg.DiskSizeMB)
	if err != nil {
		p.led.FinishRun(runID, "failed", err)
		return err
	}

	stack := teardown.NewStack()
	buildErr := p.build(spec, raw, stack)
	released := stack.Drain()

	if buildErr != nil {
		os.Remove(raw)
		p.led.FinishRun(runID, "failed", buildErr)
		return buildErr
	}
	if !released {
		os.Remove(raw)
		err := fmt.Errorf("teardown incomplete for %s image, not converting", spec.Type)
		p.led.FinishRun(runID, "failed", err)
		return err
	}

	if err := image.ConvertToQCow2(raw, artifact); err != nil {
		os.Remove(raw)
		p.led.FinishRun(runID, "failed", err)
		return err
	}
	os.Remove(raw)

	logrus.Infof("Successfully generated %s image: %s", spec.Type, artifact)
	p.led.RecordArtifact(runID, artifact, string(spec.Type), "")
	p.led.FinishRun(runID, "succeeded", nil)
	return nil
}

// build runs the acquisition phase. Every resource is pushed onto the
// stack as soon as it exists; the caller drains the stack whether build
// returned an error or not.
func (p *Provisioner) build(spec fspec.Spec, raw string, stack *teardown.Stack) error {
	policy := retry.Policy{Attempts: p.cfg.Retry.Attempts, Interval: p.cfg.RetryDelay()}

	workDir, err := os.MkdirTemp("", "imageforge_")
	if err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	stack.Push("work directory", func() error {
		return os.RemoveAll(workDir)
	})
	mountPoint := filepath.Join(workDir, "mnt")

	if err := partition.WriteTable(raw, spec.Type); err != nil {
		return err
	}

	dev, err := blockdev.AttachLoop(raw, policy)
	if err != nil {
		return err
	}
	stack.Push("loop device "+dev.Node(), func() error {
		logrus.Infof("Detaching loop device %s", dev.Node())
		if !dev.Detach() {
			return fmt.Errorf("failed to detach loop device %s", dev.Node())
		}
		return nil
	})

	if spec.NeedsPool {
		if err := p.buildPool(spec, dev, mountPoint, stack); err != nil {
			return err
		}
	} else {
		if err := partition.Format(dev, spec); err != nil {
			return err
		}
		logrus.Infof("Mounting root partition to %s", mountPoint)
		if err := mount.Mount(dev.Partition(2), spec.Type, mountPoint, false); err != nil {
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

	return container.Populate(mountPoint, spec.BaseImage)
}

// buildPool creates the ZFS pool on partition 1. The pool mounts itself
// at its altroot; the mount point becomes a link to that altroot so the
// populate stage sees the same path shape as every other filesystem.
func (p *Provisioner) buildPool(spec fspec.Spec, dev blockdev.Device, mountPoint string, stack *teardown.Stack) error {
	logrus.Infof("Creating %s filesystem", spec.Type)

	part := dev.Partition(1)
	if _, err := os.Stat(part); err != nil {
		return fmt.Errorf("partition device %s not found after attach: %w", part, err)
	}

	poolName := p.cfg.ZFS.PoolName
	altroot := p.cfg.ZFS.Altroot
	if err := zfs.CreatePool(poolName, altroot, part); err != nil {
		return err
	}
	stack.Push("zfs pool "+poolName, func() error {
		zfs.CleanupPrefixed(poolName)
		return nil
	})

	if !mount.IsMountPoint(altroot) {
		return fmt.Errorf("ZFS pool not mounted at expected location: %s", altroot)
	}

	if err := os.RemoveAll(mountPoint); err != nil {
		return fmt.Errorf("failed to clear mount point %s: %w", mountPoint, err)
	}
	if err := os.Symlink(altroot, mountPoint); err != nil {
		return fmt.Errorf("failed to link mount point to altroot: %w", err)
	}
	return nil
}
