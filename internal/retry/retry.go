// Package retry wraps bounded constant-interval retries around the
// kernel-settling operations (device detach, unmount, partition scans)
// so the retry policy is one configurable value instead of scattered
// sleeps.
package retry

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation: Attempts total tries with a fixed
// Interval between them.
type Policy struct {
	Attempts int
	Interval time.Duration
}

var errNotSettled = errors.New("condition not yet satisfied")

// Until polls check until it reports true, invoking kick after each
// failed poll. Returns whether the condition held within the policy
// bounds. kick may be nil for a pure wait.
func Until(p Policy, check func() bool, kick func()) bool {
	op := func() error {
		if check() {
			return nil
		}
		if kick != nil {
			kick()
		}
		return errNotSettled
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(p.Attempts-1))
	return backoff.Retry(op, b) == nil
}

// Do runs op until it succeeds, within the policy bounds, returning the
// last result.
func Do[T any](p Policy, op func() (T, error)) (T, error) {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(p.Attempts-1))
	return backoff.RetryWithData(op, b)
}
