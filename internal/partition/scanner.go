package partition

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/imageforge/internal/blockdev"
	"github.com/sigreer/imageforge/internal/cmdutil"
	"github.com/sigreer/imageforge/internal/fspec"
	"github.com/sigreer/imageforge/internal/retry"
)

// ErrNoUsablePartition is returned when an image holds nothing we can
// mount. This is terminal for the image: it is unsupported or corrupt,
// not transient.
var ErrNoUsablePartition = errors.New("no supported filesystem partitions found")

// Info describes one candidate partition found during a scan
type Info struct {
	// Device is the partition device node, e.g. /dev/nbd0p2
	Device string
	// Type is the classified filesystem type
	Type fspec.Type
	// Size as reported by the partition table tool, e.g. "10.7GB"
	Size string
	// Priority ranks the candidate; higher is preferred
	Priority int
}

// Scanner classifies the partitions of an attached device. Probe is the
// secondary filesystem-identification hook used when the table itself
// carries no type token; it returns raw tool output, or "" when the
// partition cannot be probed. Tests substitute it to avoid hitting
// blkid.
type Scanner struct {
	// Policy bounds the table-read retry: right after an attach the
	// table tool can fail while the kernel is still settling.
	Policy retry.Policy
	Probe  func(device string) string
}

func NewScanner(policy retry.Policy) *Scanner {
	return &Scanner{Policy: policy, Probe: blkidProbe}
}

func blkidProbe(device string) string {
	out, err := cmdutil.Output("blkid", device)
	if err != nil {
		return ""
	}
	return out
}

// Scan re-reads the live partition table and returns every candidate
// partition with its classification. Inconsistent or partial report
// lines degrade to "partition excluded", never to a scan failure.
func (s *Scanner) Scan(dev blockdev.Device) ([]Info, error) {
	logrus.Info("Analyzing partitions")

	report, err := retry.Do(s.Policy, func() (string, error) {
		return cmdutil.Output("parted", "-s", dev.Node(), "print")
	})
	if err != nil {
		return nil, err
	}
	logrus.Debugf("parted output:\n%s", report)

	return s.parse(report, dev.Partition), nil
}

// parse walks the table report line by line. Header and summary lines
// are skipped, reserved/hidden/swap partitions are excluded, and
// EFI-marked partitions survive only when FAT-typed, at the lowest
// priority, so a data root always beats a boot partition.
func (s *Scanner) parse(report string, partDev func(int) string) []Info {
	var infos []Info

	for _, line := range strings.Split(report, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.Contains(line, "Number") || strings.Contains(line, "Disk") ||
			strings.Contains(line, "Model:") || strings.Contains(line, "Partition Table:") {
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) < 4 {
			continue
		}
		num, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		device := partDev(num)
		size := fields[3]

		var fsType fspec.Type
		var classified bool
		for _, f := range fields {
			if t, ok := fspec.Parse(f); ok {
				fsType, classified = t, true
				break
			}
		}

		if strings.Contains(line, "Microsoft reserved") || strings.Contains(line, "hidden, diag") {
			logrus.Infof("Skipping system partition %s", device)
			continue
		}

		lower := strings.ToLower(line)
		if strings.Contains(lower, "esp") || strings.Contains(line, "EFI") {
			logrus.Infof("Found EFI system partition %s", device)
			if classified && fsType == fspec.VFAT {
				infos = append(infos, Info{Device: device, Type: fsType, Size: size, Priority: 0})
			}
			continue
		}

		if strings.Contains(lower, "swap") {
			logrus.Infof("Skipping swap partition %s", device)
			continue
		}

		if classified {
			infos = append(infos, Info{Device: device, Type: fsType, Size: size, Priority: fsType.ScanPriority()})
			logrus.Infof("Found usable partition %s of type %s", device, fsType)
			continue
		}

		// No type token in the table; fall back to the probe tool
		if t, ok := s.probeType(device); ok {
			infos = append(infos, Info{Device: device, Type: t, Size: size, Priority: t.ScanPriority()})
			logrus.Infof("Found usable partition %s of type %s (via probe)", device, t)
		}
	}

	return infos
}

// probeType extracts a filesystem token from the identification tool's
// output.
func (s *Scanner) probeType(device string) (fspec.Type, bool) {
	out := strings.ToLower(s.Probe(device))
	if out == "" {
		return "", false
	}
	for _, token := range []string{"ntfs", "hfsplus", "apfs", "ext4", "xfs", "vfat", "zfs_member", "btrfs"} {
		if strings.Contains(out, token) {
			return fspec.Parse(token)
		}
	}
	return "", false
}

// Select picks the highest-priority candidate, breaking ties by the
// largest normalized size. An empty candidate set is fatal for the
// image.
func Select(infos []Info) (Info, error) {
	if len(infos) == 0 {
		return Info{}, ErrNoUsablePartition
	}

	var found []string
	for _, p := range infos {
		found = append(found, fmt.Sprintf("%s (%s)", p.Device, p.Type))
	}
	logrus.Infof("Found filesystem partition(s): %s", strings.Join(found, ", "))

	sorted := append([]Info(nil), infos...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return ParseSizeMB(sorted[i].Size) > ParseSizeMB(sorted[j].Size)
	})

	selected := sorted[0]
	logrus.Infof("Selected partition %s (priority: %d, size: %s)", selected.Device, selected.Priority, selected.Size)
	return selected, nil
}
