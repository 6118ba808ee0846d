package testsupport

import (
	"context"
	"testing"

	"sieve/internal/config"
	"sieve/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue adds a pending item for source using the provided store.
func Enqueue(t testing.TB, store *queue.Store, runID, source string) *queue.Item {
	t.Helper()

	item, _, err := store.Enqueue(context.Background(), runID, source)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return item
}
