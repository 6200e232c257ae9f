package quiet

import (
	"testing"

	"golang.org/x/sys/unix"
)

// fdIdentity returns the (device, inode) pair of an open descriptor.
func fdIdentity(t *testing.T, fd int) (uint64, uint64) {
	t.Helper()

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		t.Fatalf("Fstat(%d) error: %v", fd, err)
	}
	return uint64(st.Dev), uint64(st.Ino)
}

func TestSuppressRedirectsAndRestores(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	origDev, origIno := fdIdentity(t, 1)
	nullDev, nullIno := fdIdentity(t, int(s.devnull.Fd()))

	if err := s.Suppress(); err != nil {
		t.Fatalf("Suppress() error: %v", err)
	}

	dev, ino := fdIdentity(t, 1)
	if dev != nullDev || ino != nullIno {
		t.Error("stdout not pointing at /dev/null while suppressed")
	}
	dev, ino = fdIdentity(t, 2)
	if dev != nullDev || ino != nullIno {
		t.Error("stderr not pointing at /dev/null while suppressed")
	}

	if err := s.Restore(); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	dev, ino = fdIdentity(t, 1)
	if dev != origDev || ino != origIno {
		t.Error("stdout not restored to original descriptor")
	}
}

func TestSuppressIsIdempotent(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	if err := s.Suppress(); err != nil {
		t.Fatalf("Suppress() error: %v", err)
	}
	if err := s.Suppress(); err != nil {
		t.Fatalf("second Suppress() error: %v", err)
	}
	if err := s.Restore(); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	// Restore with nothing suppressed is a no-op.
	if err := s.Restore(); err != nil {
		t.Fatalf("second Restore() error: %v", err)
	}
}

func TestCloseRestores(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	origDev, origIno := fdIdentity(t, 1)
	if err := s.Suppress(); err != nil {
		t.Fatalf("Suppress() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	dev, ino := fdIdentity(t, 1)
	if dev != origDev || ino != origIno {
		t.Error("Close() left stdout suppressed")
	}
}
