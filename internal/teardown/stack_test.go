package teardown

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrainReleasesInReverseOrder(t *testing.T) {
	var events []string
	s := NewStack()
	// Acquisition order: device first, then the mount on top of it
	s.Push("detach device", func() error {
		events = append(events, "detach")
		return nil
	})
	s.Push("unmount", func() error {
		events = append(events, "unmount")
		return nil
	})

	assert.True(t, s.Drain())
	assert.Equal(t, []string{"unmount", "detach"}, events)
	assert.Equal(t, 0, s.Len())
}

func TestDrainContinuesPastFailures(t *testing.T) {
	var events []string
	s := NewStack()
	s.Push("temp files", func() error {
		events = append(events, "temp")
		return nil
	})
	s.Push("device", func() error {
		events = append(events, "device")
		return errors.New("device busy")
	})
	s.Push("mount", func() error {
		events = append(events, "mount")
		return nil
	})

	assert.False(t, s.Drain())
	// The failed release must not block the ones below it
	assert.Equal(t, []string{"mount", "device", "temp"}, events)
}

func TestDrainAfterFailedStageUnmountsBeforeDetach(t *testing.T) {
	// Simulates a pipeline dying after mount but before population:
	// the recorded teardown sequence must unmount before detaching.
	var events []string
	s := NewStack()
	s.Push("work directory", func() error {
		events = append(events, "workdir")
		return nil
	})
	s.Push("loop device", func() error {
		events = append(events, "detach")
		return nil
	})
	s.Push("mount", func() error {
		events = append(events, "unmount")
		return nil
	})

	populate := func() error { return errors.New("docker daemon is not running") }
	err := populate()
	assert.Error(t, err)

	s.Drain()
	assert.Equal(t, []string{"unmount", "detach", "workdir"}, events)
}

func TestEmptyStackDrains(t *testing.T) {
	s := NewStack()
	assert.True(t, s.Drain())
}
