package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Slot is the host-global device slot guard. The fixed NBD node and the
// fixed ZFS pool name are singletons per host, so two concurrent runs
// would corrupt each other's state; an exclusive flock on the lock file
// makes the single-instance assumption explicit and fails the second
// run at startup instead.
type Slot struct {
	file *os.File
	path string
}

// AcquireSlot takes the exclusive lock, without blocking. A held lock
// is an environment error: another instance owns the host's devices.
func AcquireSlot(path string) (*Slot, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another imageforge instance is running (lock %s held): %w", path, err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return &Slot{file: f, path: path}, nil
}

// Release drops the lock
func (s *Slot) Release() error {
	if s.file == nil {
		return nil
	}
	if err := unix.Flock(int(s.file.Fd()), unix.LOCK_UN); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to unlock %s: %w", s.path, err)
	}
	err := s.file.Close()
	s.file = nil
	return err
}
