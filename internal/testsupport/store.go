package testsupport

import (
	"context"
	"testing"

	"factsheet/internal/config"
	"factsheet/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// NewFile creates a file record for tests using the provided store.
func NewFile(t testing.TB, st *store.Store, filename, storagePath string) *store.File {
	t.Helper()

	file := &store.File{
		OriginalFilename:    filename,
		StoragePathOriginal: storagePath,
	}
	if err := st.CreateFile(context.Background(), file); err != nil {
		t.Fatalf("store.CreateFile: %v", err)
	}
	return file
}
