package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{Attempts: 3, Interval: time.Millisecond}

func TestUntilAlreadySatisfiedSkipsKick(t *testing.T) {
	kicks := 0
	ok := Until(fast, func() bool { return true }, func() { kicks++ })
	assert.True(t, ok)
	// An already-released resource must succeed on the first poll
	// without invoking the forced-release path
	assert.Equal(t, 0, kicks)
}

func TestUntilKicksUntilSatisfied(t *testing.T) {
	kicks := 0
	ok := Until(fast, func() bool { return kicks >= 2 }, func() { kicks++ })
	assert.True(t, ok)
	assert.Equal(t, 2, kicks)
}

func TestUntilExhaustsAttempts(t *testing.T) {
	polls, kicks := 0, 0
	ok := Until(fast, func() bool { polls++; return false }, func() { kicks++ })
	assert.False(t, ok)
	assert.Equal(t, fast.Attempts, polls)
	assert.Equal(t, fast.Attempts, kicks)
}

func TestUntilNilKick(t *testing.T) {
	calls := 0
	ok := Until(fast, func() bool { calls++; return calls == 2 }, nil)
	assert.True(t, ok)
}

func TestDoReturnsFirstSuccess(t *testing.T) {
	calls := 0
	out, err := Do(fast, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("not yet")
		}
		return "report", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "report", out)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(fast, func() (int, error) {
		calls++
		return 0, errors.New("still failing")
	})
	assert.Error(t, err)
	assert.Equal(t, fast.Attempts, calls)
}
