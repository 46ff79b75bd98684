// Package store provides the storage-cleanup capability used between test
// runs: listing the collections a run created and deleting their entries.
// The daemon only ever clears data; it never reads it.
package store

import "context"

// Collection names one group of persisted test data.
type Collection struct {
	Name string `json:"name"`
}

// Cleaner is the inter-run cleanup capability. Callers skip collections
// whose name is prefixed "system.".
type Cleaner interface {
	ListCollections(ctx context.Context) ([]Collection, error)
	DeleteEntries(ctx context.Context, name string) error
}

// NoopCleaner is used when no storage backend is configured.
type NoopCleaner struct{}

func (NoopCleaner) ListCollections(ctx context.Context) ([]Collection, error) {
	return nil, nil
}

func (NoopCleaner) DeleteEntries(ctx context.Context, name string) error {
	return nil
}
