// Package quiet silences process stdout/stderr at the file-descriptor level
// while a noisy operation runs (native model loads write progress straight
// to fd 1/2, bypassing Go writers). The discard handle is opened once and
// held for the process lifetime rather than reopened per use.
package quiet

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	stdoutFd = 1
	stderrFd = 2
)

// Suppressor redirects fds 1 and 2 to /dev/null and restores them on
// Restore. Acquire one at startup and Close it at shutdown.
type Suppressor struct {
	mu      sync.Mutex
	devnull *os.File

	savedStdout int
	savedStderr int
	active      bool
}

// New opens the shared discard handle.
func New() (*Suppressor, error) {
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	return &Suppressor{devnull: devnull, savedStdout: -1, savedStderr: -1}, nil
}

// Suppress points fds 1 and 2 at /dev/null, saving the originals. Nested
// calls are no-ops until Restore.
func (s *Suppressor) Suppress() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return nil
	}

	savedStdout, err := unix.Dup(stdoutFd)
	if err != nil {
		return fmt.Errorf("failed to save stdout: %w", err)
	}
	savedStderr, err := unix.Dup(stderrFd)
	if err != nil {
		unix.Close(savedStdout)
		return fmt.Errorf("failed to save stderr: %w", err)
	}

	null := int(s.devnull.Fd())
	if err := unix.Dup3(null, stdoutFd, 0); err != nil {
		unix.Close(savedStdout)
		unix.Close(savedStderr)
		return fmt.Errorf("failed to redirect stdout: %w", err)
	}
	if err := unix.Dup3(null, stderrFd, 0); err != nil {
		unix.Dup3(savedStdout, stdoutFd, 0)
		unix.Close(savedStdout)
		unix.Close(savedStderr)
		return fmt.Errorf("failed to redirect stderr: %w", err)
	}

	s.savedStdout = savedStdout
	s.savedStderr = savedStderr
	s.active = true
	return nil
}

// Restore reattaches the original fds 1 and 2.
func (s *Suppressor) Restore() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}

	if err := unix.Dup3(s.savedStdout, stdoutFd, 0); err != nil {
		return fmt.Errorf("failed to restore stdout: %w", err)
	}
	if err := unix.Dup3(s.savedStderr, stderrFd, 0); err != nil {
		return fmt.Errorf("failed to restore stderr: %w", err)
	}

	unix.Close(s.savedStdout)
	unix.Close(s.savedStderr)
	s.savedStdout = -1
	s.savedStderr = -1
	s.active = false
	return nil
}

// Close restores the descriptors if still suppressed and releases the
// discard handle.
func (s *Suppressor) Close() error {
	if err := s.Restore(); err != nil {
		return err
	}
	return s.devnull.Close()
}
