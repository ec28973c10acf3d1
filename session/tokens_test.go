package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileTokenStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	store := NewFileTokenStore(path)

	if got, err := store.Load(); err != nil || got != "" {
		t.Fatalf("Load() before save = %q, %v", got, err)
	}

	if err := store.Save("tok-abc"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if got, err := store.Load(); err != nil || got != "tok-abc" {
		t.Fatalf("Load() = %q, %v", got, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if got, _ := store.Load(); got != "" {
		t.Errorf("Load() after clear = %q", got)
	}
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear() error: %v", err)
	}
}

func TestMemoryTokenStore(t *testing.T) {
	store := &MemoryTokenStore{}
	if err := store.Save("x"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if got, _ := store.Load(); got != "x" {
		t.Errorf("Load() = %q", got)
	}
	store.Clear()
	if got, _ := store.Load(); got != "" {
		t.Errorf("Load() after clear = %q", got)
	}
}
