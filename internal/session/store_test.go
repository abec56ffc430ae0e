package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if !rec.Empty() {
		t.Fatalf("expected empty record before first save, got %+v", rec)
	}

	want := Record{Token: "tok-1", Profile: json.RawMessage(`{"role":"official"}`)}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Token != want.Token {
		t.Fatalf("unexpected token: %s", got.Token)
	}
	if string(got.Profile) != string(want.Profile) {
		t.Fatalf("unexpected profile: %s", got.Profile)
	}

	info, err := os.Stat(filepath.Join(dir, stateFile))
	if err != nil {
		t.Fatalf("stat state file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("state file permissions too open: %v", perm)
	}
}

func TestFileStoreClear(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Save(Record{Token: "tok"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	rec, err := store.Load()
	if err != nil {
		t.Fatalf("Load after clear: %v", err)
	}
	if !rec.Empty() {
		t.Fatalf("expected empty record after clear, got %+v", rec)
	}
	// Clearing an already empty store is a no-op.
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestFileStoreCorruptState(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stateFile), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt state: %v", err)
	}
	if _, err := store.Load(); err == nil {
		t.Fatalf("expected error loading corrupt state")
	}
}
