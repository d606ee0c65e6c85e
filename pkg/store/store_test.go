package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// exerciseStore runs the common contract against a string store.
func exerciseStore(t *testing.T, s Store[string]) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, err := s.Contains(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key to be absent, got %v %v", ok, err)
	}

	if err := s.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "b/c", "2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get(ctx, "a")
	if err != nil || got != "1" {
		t.Fatalf("expected 1, got %q %v", got, err)
	}
	if ok, _ := s.Contains(ctx, "b/c"); !ok {
		t.Error("expected b/c to be present")
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %v", keys)
	}

	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := s.Remove(ctx, "a"); err != nil {
		t.Errorf("removing a missing key should be a no-op, got %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected removed key to be gone, got %v", err)
	}
}

func TestMemory(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemory[string](10))
}

func TestMemory_EvictsOldest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory[int](2)

	_ = m.Set(ctx, "a", 1)
	_ = m.Set(ctx, "b", 2)
	_ = m.Set(ctx, "c", 3)

	if m.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Len())
	}
	if ok, _ := m.Contains(ctx, "a"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	keys, _ := m.Keys(ctx)
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "c" {
		t.Errorf("expected [b c], got %v", keys)
	}
}

func TestMemory_DefaultCapacity(t *testing.T) {
	t.Parallel()
	m := NewMemory[string](0)
	for i := 0; i < DefaultMemoryCapacity+5; i++ {
		_ = m.Set(context.Background(), "k"+strconv.Itoa(i), "v")
	}
	if m.Len() != DefaultMemoryCapacity {
		t.Errorf("expected %d entries, got %d", DefaultMemoryCapacity, m.Len())
	}
}

func TestFile(t *testing.T) {
	t.Parallel()
	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	exerciseStore(t, f)
}

func TestFile_SurvivesReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if err := f.Set(ctx, "batch", "payload"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	reopened, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	got, err := reopened.Get(ctx, "batch")
	if err != nil || got != "payload" {
		t.Errorf("expected payload after reopen, got %q %v", got, err)
	}
}

func TestFile_CleansTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	stale := filepath.Join(dir, "x.entry.tmp")
	if err := os.WriteFile(stale, []byte("partial"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("expected temp file to be removed")
	}
	keys, _ := f.Keys(context.Background())
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}
