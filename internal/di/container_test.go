package di

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chronodb/oplogd/apply"
	"github.com/chronodb/oplogd/config"
	"github.com/chronodb/oplogd/internal/testdoc"
)

func TestContainer_SelfMemberIDIsStableAndNonEmpty(t *testing.T) {
	t.Parallel()
	c := NewContainer(config.Default())
	id1 := c.SelfMemberID()
	if id1 == "" {
		t.Fatal("SelfMemberID returned empty string")
	}
	if id2 := c.SelfMemberID(); id2 != id1 {
		t.Fatalf("SelfMemberID changed across calls: %q then %q", id1, id2)
	}
}

func TestContainer_LockManagerIsMemoized(t *testing.T) {
	t.Parallel()
	c := NewContainer(config.Default())
	if c.LockManager() != c.LockManager() {
		t.Fatal("LockManager returned a different instance on the second call")
	}
}

func TestContainer_RegistryIsMemoized(t *testing.T) {
	t.Parallel()
	c := NewContainer(config.Default())
	if c.Registry() != c.Registry() {
		t.Fatal("Registry returned a different instance on the second call")
	}
}

func TestContainer_GhostTrackerDefaultOpenerRefusesWithoutTransport(t *testing.T) {
	t.Parallel()
	c := NewContainer(config.Default())
	tracker := c.GhostTracker()
	tracker.Associate("rid1", "member1")

	err := tracker.Percolate(context.Background(), "rid1", "upstream", apply.OpTime{Seconds: 1})
	if err == nil {
		t.Fatal("expected an error from the default no-transport cursor opener")
	}
	if !errors.Is(err, apply.ErrNoCursorTransport) {
		t.Fatalf("err = %v, want wrapping ErrNoCursorTransport", err)
	}
}

func TestContainer_HTTPHandlerBeforeDriverFails(t *testing.T) {
	t.Parallel()
	c := NewContainer(config.Default())
	if _, err := c.HTTPHandler(nil, false); !errors.Is(err, apply.ErrDriverNotBuilt) {
		t.Fatalf("err = %v, want ErrDriverNotBuilt", err)
	}
}

// Driver construction uses a process-wide singleton in apply/driver.go, so
// only one test in this package may build one.
func TestContainer_DriverWiringBuildsOnceAndMemoizes(t *testing.T) {
	cfg := config.Default()
	cfg.DataDirectory = t.TempDir()
	c := NewContainer(cfg)
	leaf := testdoc.NewStore()

	driver1, err := c.Driver(leaf, nil, nil)
	if err != nil {
		t.Fatalf("Driver: %v", err)
	}
	driver2, err := c.Driver(leaf, nil, nil)
	if err != nil {
		t.Fatalf("Driver (memoized call): %v", err)
	}
	if driver1 != driver2 {
		t.Fatal("Driver returned a different instance on the second call")
	}

	h, err := c.HTTPHandler(nil, false)
	if err != nil {
		t.Fatalf("HTTPHandler: %v", err)
	}
	if h.Driver != driver1 {
		t.Fatal("HTTPHandler wired to a different Driver than Driver() returned")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = filepath.Join(cfg.DataDirectory, "oplogd.db")
}
