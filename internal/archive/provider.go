// Package archive defines the interfaces for storing raw API response
// snapshots. This abstraction keeps the pipeline independent of a specific
// storage implementation (Google Cloud Storage, the local filesystem, or
// nothing at all).
package archive

import "context"

// Provider defines the common interface for a snapshot store.
type Provider interface {
	// Save uploads data to a specified object path/key in the store.
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider is a provider that performs no operations. It is the default:
// raw responses are only archived when a real backend is configured.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}
