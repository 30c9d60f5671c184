// Package fspec is the static catalog of supported filesystems: one
// entry per type carrying the creation command, mount behavior, scan
// priority, and (for provisioned images) the container image whose
// rootfs seeds the filesystem.
package fspec

import (
	"sort"
	"strings"
)

// Type identifies a supported filesystem
type Type string

const (
	Ext4    Type = "ext4"
	XFS     Type = "xfs"
	Btrfs   Type = "btrfs"
	ZFS     Type = "zfs"
	VFAT    Type = "vfat"
	NTFS    Type = "ntfs"
	HFSPlus Type = "hfsplus"
	APFS    Type = "apfs"
	UFS     Type = "ufs"
)

// Spec describes one catalog entry. MkfsCommand is the argv prefix; the
// target partition device is appended at format time.
type Spec struct {
	Type             Type
	BaseImage        string
	RequiredPackages []string
	Priority         int
	MkfsCommand      []string
	MountOptions     []string
	NeedsPool        bool
	RequiredTool     string
	ToolPackage      string
}

// catalog holds the provisioning set. Inspection recognizes more types
// (see Parse) but only these are generated.
var catalog = map[Type]Spec{
	ZFS: {
		Type:             ZFS,
		BaseImage:        "ubuntu:22.04",
		RequiredPackages: []string{"zfsutils-linux"},
		Priority:         1,
		NeedsPool:        true,
		RequiredTool:     "zpool",
		ToolPackage:      "zfsutils-linux",
	},
	Ext4: {
		Type:             Ext4,
		BaseImage:        "debian:12",
		RequiredPackages: []string{"e2fsprogs"},
		Priority:         1,
		MkfsCommand:      []string{"mkfs.ext4", "-F"},
		RequiredTool:     "mkfs.ext4",
		ToolPackage:      "e2fsprogs",
	},
	XFS: {
		Type:             XFS,
		BaseImage:        "fedora:latest",
		RequiredPackages: []string{"xfsprogs"},
		Priority:         1,
		MkfsCommand:      []string{"mkfs.xfs", "-f"},
		RequiredTool:     "mkfs.xfs",
		ToolPackage:      "xfsprogs",
	},
	Btrfs: {
		Type:             Btrfs,
		BaseImage:        "opensuse/leap:latest",
		RequiredPackages: []string{"btrfs-progs"},
		Priority:         1,
		MkfsCommand:      []string{"mkfs.btrfs", "-f"},
		RequiredTool:     "mkfs.btrfs",
		ToolPackage:      "btrfs-progs",
	},
}

// Catalog returns the provisioning entries ordered by priority, then
// name, so the most important filesystems are generated first.
func Catalog() []Spec {
	specs := make([]Spec, 0, len(catalog))
	for _, s := range catalog {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Priority != specs[j].Priority {
			return specs[i].Priority < specs[j].Priority
		}
		return specs[i].Type < specs[j].Type
	})
	return specs
}

// Lookup returns the provisioning spec for a type
func Lookup(t Type) (Spec, bool) {
	s, ok := catalog[t]
	return s, ok
}

// ArtifactName derives the distributable image filename for a catalog
// entry: the base image reference with ':' and '/' flattened, suffixed
// with the filesystem type.
func (s Spec) ArtifactName() string {
	safe := strings.NewReplacer(":", "_", "/", "_").Replace(s.BaseImage)
	return safe + "_" + string(s.Type) + ".qcow2"
}

// Parse maps a filesystem token from tool output (parted, blkid) to a
// supported type. fat32 folds into vfat, zfs_member into zfs. Unknown
// tokens report false so callers can exclude the partition rather than
// guess.
func Parse(token string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "ext4":
		return Ext4, true
	case "xfs":
		return XFS, true
	case "btrfs":
		return Btrfs, true
	case "zfs", "zfs_member":
		return ZFS, true
	case "vfat", "fat32":
		return VFAT, true
	case "ntfs":
		return NTFS, true
	case "hfsplus":
		return HFSPlus, true
	case "apfs":
		return APFS, true
	case "ufs":
		return UFS, true
	}
	return "", false
}

// ScanPriority orders inspection candidates: Linux root filesystems
// first, other OS roots next, removable/boot filesystems last. Types
// with priority 0 are never selected unless nothing else qualifies.
func (t Type) ScanPriority() int {
	switch t {
	case Ext4, Btrfs, XFS:
		return 3
	case NTFS, HFSPlus, APFS:
		return 2
	case VFAT, ZFS:
		return 1
	}
	return 0
}
