package blockdev

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/imageforge/internal/retry"
)

var fast = retry.Policy{Attempts: 2, Interval: time.Millisecond}

func TestLoopDetachIdempotent(t *testing.T) {
	// A device node that no longer exists counts as detached on the
	// first poll
	d := &LoopDevice{device: "/dev/loop-imageforge-gone", policy: fast}
	assert.True(t, d.Detach())
	assert.True(t, d.Detach())
}

func TestNBDDetachIdempotent(t *testing.T) {
	d := &NBDDevice{device: "/dev/nbd-imageforge-gone", policy: fast}
	assert.True(t, d.Detach())
	assert.True(t, d.Detach())
}

func TestNBDOccupiedMissingNode(t *testing.T) {
	assert.False(t, nbdOccupied("/dev/nbd-imageforge-gone"))
}

func TestPartitionNaming(t *testing.T) {
	l := &LoopDevice{device: "/dev/loop7"}
	assert.Equal(t, "/dev/loop7p1", l.Partition(1))
	assert.Equal(t, "/dev/loop7p2", l.Partition(2))

	n := &NBDDevice{device: "/dev/nbd0"}
	assert.Equal(t, "/dev/nbd0", n.Node())
	assert.Equal(t, "/dev/nbd0p3", n.Partition(3))
}

func TestAttachLoopMissingImage(t *testing.T) {
	_, err := AttachLoop("/definitely/not/an/image.raw", fast)
	assert.Error(t, err)
}

func TestSlotExclusive(t *testing.T) {
	lock := filepath.Join(t.TempDir(), "slot.lock")

	first, err := AcquireSlot(lock)
	require.NoError(t, err)

	_, err = AcquireSlot(lock)
	assert.Error(t, err, "second acquisition must fail while the slot is held")

	require.NoError(t, first.Release())

	second, err := AcquireSlot(lock)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestSlotReleaseIdempotent(t *testing.T) {
	lock := filepath.Join(t.TempDir(), "slot.lock")
	s, err := AcquireSlot(lock)
	require.NoError(t, err)
	require.NoError(t, s.Release())
	require.NoError(t, s.Release())
}
