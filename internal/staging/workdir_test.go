package staging

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sieve/internal/services"
)

func TestAcquireIsExclusive(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, "run-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if first.Path != filepath.Join(dir, "run-1") {
		t.Fatalf("unexpected path %q", first.Path)
	}
	if !Locked(dir, "run-1") {
		t.Fatal("expected run-1 to be locked")
	}

	if _, err := Acquire(dir, "run-1"); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error for held dir, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if Locked(dir, "run-1") {
		t.Fatal("expected run-1 unlocked after release")
	}
	if _, err := os.Stat(first.Path); err != nil {
		t.Fatal("release must keep the work dir")
	}

	second, err := Acquire(dir, "run-1")
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	if err := second.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(second.Path); !os.IsNotExist(err) {
		t.Fatal("expected work dir removed")
	}
}

func TestAcquireRejectsInvalidRunID(t *testing.T) {
	for _, id := range []string{"", " ", "..", "a/b"} {
		if _, err := Acquire(t.TempDir(), id); err == nil {
			t.Errorf("expected error for run id %q", id)
		}
	}
}
