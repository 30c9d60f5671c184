// Package teardown tracks acquired OS resources as a stack of release
// closures. Each pipeline stage pushes a release as soon as its
// resource exists; draining the stack releases everything in reverse
// acquisition order, so mounts go before device detach and device
// detach before temp-file deletion, whether the pipeline succeeded or
// died halfway.
package teardown

import (
	"github.com/sirupsen/logrus"
)

// Stack is a LIFO of named release closures. Not safe for concurrent
// use; the pipelines are strictly sequential.
type Stack struct {
	releases []release
}

type release struct {
	name string
	fn   func() error
}

func NewStack() *Stack {
	return &Stack{}
}

// Push registers a release closure. name appears in teardown logs.
func (s *Stack) Push(name string, fn func() error) {
	s.releases = append(s.releases, release{name: name, fn: fn})
}

// Drain releases everything in reverse order. Each release is fault
// isolated: a failure is logged and the drain continues, so one stuck
// resource cannot strand the rest. Reports whether every release
// succeeded. The stack is empty afterwards and may be reused.
func (s *Stack) Drain() bool {
	ok := true
	for i := len(s.releases) - 1; i >= 0; i-- {
		r := s.releases[i]
		logrus.Debugf("Releasing %s", r.name)
		if err := r.fn(); err != nil {
			logrus.Warnf("Failed to release %s: %v", r.name, err)
			ok = false
		}
	}
	s.releases = nil
	return ok
}

// Len reports how many releases are pending
func (s *Stack) Len() int {
	return len(s.releases)
}
