package partition

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/imageforge/internal/fspec"
	"github.com/sigreer/imageforge/internal/retry"
)

func testScanner(probe func(string) string) *Scanner {
	if probe == nil {
		probe = func(string) string { return "" }
	}
	return &Scanner{
		Policy: retry.Policy{Attempts: 1, Interval: time.Millisecond},
		Probe:  probe,
	}
}

func nbdPart(n int) string { return fmt.Sprintf("/dev/nbd0p%d", n) }

const espAndRootReport = `Model: Loopback device (loopback)
Disk /dev/nbd0: 1074MB
Sector size (logical/physical): 512B/512B
Partition Table: gpt
Disk Flags:

Number  Start   End     Size    File system  Name     Flags
 1      1049kB  525MB   524MB   fat32        ESP      boot, esp
 2      525MB   1074MB  549MB   ext4         primary
`

func TestParseESPAndRoot(t *testing.T) {
	infos := testScanner(nil).parse(espAndRootReport, nbdPart)
	require.Len(t, infos, 2)

	assert.Equal(t, "/dev/nbd0p1", infos[0].Device)
	assert.Equal(t, fspec.VFAT, infos[0].Type)
	assert.Equal(t, 0, infos[0].Priority)

	assert.Equal(t, "/dev/nbd0p2", infos[1].Device)
	assert.Equal(t, fspec.Ext4, infos[1].Type)
	assert.Equal(t, 3, infos[1].Priority)
}

func TestSelectPrefersRootOverESP(t *testing.T) {
	infos := testScanner(nil).parse(espAndRootReport, nbdPart)
	selected, err := Select(infos)
	require.NoError(t, err)
	assert.Equal(t, "/dev/nbd0p2", selected.Device)
	assert.Equal(t, 3, selected.Priority)
}

func TestSelectExt4BeatsVFATRegardlessOfOrder(t *testing.T) {
	ext4 := Info{Device: "/dev/nbd0p2", Type: fspec.Ext4, Size: "549MB", Priority: 3}
	vfat := Info{Device: "/dev/nbd0p1", Type: fspec.VFAT, Size: "524MB", Priority: 1}

	for _, infos := range [][]Info{{ext4, vfat}, {vfat, ext4}} {
		selected, err := Select(infos)
		require.NoError(t, err)
		assert.Equal(t, ext4.Device, selected.Device)
	}
}

func TestSelectBreaksTiesByNormalizedSize(t *testing.T) {
	small := Info{Device: "/dev/nbd0p1", Type: fspec.NTFS, Size: "500MB", Priority: 2}
	large := Info{Device: "/dev/nbd0p2", Type: fspec.NTFS, Size: "1.2GB", Priority: 2}

	selected, err := Select([]Info{small, large})
	require.NoError(t, err)
	assert.Equal(t, large.Device, selected.Device)
}

func TestSelectEmptyIsFatal(t *testing.T) {
	_, err := Select(nil)
	assert.ErrorIs(t, err, ErrNoUsablePartition)
}

func TestParseExcludesReservedAndSwap(t *testing.T) {
	report := `Number  Start   End     Size    File system     Name                          Flags
 1      1049kB  17.8MB  16.8MB                  Microsoft reserved partition  msftres
 2      17.8MB  500MB   482MB   linux-swap(v1)  swap
`
	infos := testScanner(nil).parse(report, nbdPart)
	assert.Empty(t, infos)

	_, err := Select(infos)
	assert.ErrorIs(t, err, ErrNoUsablePartition)
}

func TestParseProbeFallback(t *testing.T) {
	// No type token in the table; the probe identifies a pool member
	report := `Number  Start   End     Size    File system  Name  Flags
 1      1049kB  1073MB  1072MB                      raid
`
	probed := map[string]bool{}
	s := testScanner(func(device string) string {
		probed[device] = true
		return `/dev/nbd0p1: LABEL="sbomtmp" TYPE="zfs_member" PARTLABEL="zfs"`
	})

	infos := s.parse(report, nbdPart)
	require.Len(t, infos, 1)
	assert.True(t, probed["/dev/nbd0p1"])
	assert.Equal(t, fspec.ZFS, infos[0].Type)
	assert.Equal(t, 1, infos[0].Priority)
}

func TestParseToleratesMalformedOutput(t *testing.T) {
	report := `Model: QEMU (nbd)
Disk /dev/nbd0: 10.7GB
Sector size (logical/physical): 512B/512B

 not-a-number  1049kB  525MB  524MB  ext4
 3      525MB
 4      525MB   10.7GB	10.2GB	 ext4   	 primary
`
	// Extra whitespace, missing columns, and junk first fields must
	// degrade to exclusion, never a panic
	infos := testScanner(nil).parse(report, nbdPart)
	require.Len(t, infos, 1)
	assert.Equal(t, "/dev/nbd0p4", infos[0].Device)
	assert.Equal(t, fspec.Ext4, infos[0].Type)
}

func TestParseLoneESPStillSelectable(t *testing.T) {
	report := `Number  Start   End    Size   File system  Name  Flags
 1      1049kB  525MB  524MB  fat32        ESP   boot, esp
`
	infos := testScanner(nil).parse(report, nbdPart)
	require.Len(t, infos, 1)

	selected, err := Select(infos)
	require.NoError(t, err)
	assert.Equal(t, "/dev/nbd0p1", selected.Device)
	assert.Equal(t, 0, selected.Priority)
}

func TestParseNonFATESPExcluded(t *testing.T) {
	report := `Number  Start   End    Size   File system  Name  Flags
 1      1049kB  525MB  524MB  ext4         EFI   boot, esp
`
	infos := testScanner(nil).parse(report, nbdPart)
	assert.Empty(t, infos)
}
