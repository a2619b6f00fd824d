// Package notify defines the interface for announcing newly stored reports
// to downstream consumers.
package notify

import "context"

// Provider defines the common interface for our notification layer.
type Provider interface {
	// Publish announces that a report with the given id was stored.
	Publish(ctx context.Context, reportID string) error

	// Close terminates the underlying client and releases any resources.
	Close() error
}

// NoOpProvider is a provider that performs no operations. It is the default;
// notifications only flow when a real backend is configured.
type NoOpProvider struct{}

// Publish for NoOpProvider does nothing and returns no error.
func (n *NoOpProvider) Publish(_ context.Context, _ string) error { return nil }

// Close for NoOpProvider does nothing and returns no error.
func (n *NoOpProvider) Close() error { return nil }
