package testsupport

import (
	"testing"

	"casework/internal/config"
	"casework/internal/storage"
)

// MustOpenDB opens the shared SQLite database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *storage.DB {
	t.Helper()

	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
