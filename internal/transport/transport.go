// Package transport defines the interface for pluggable request transports.
//
// Each transport (FastAGI, HTTP, gRPC) accepts requests its own way and
// hands them to the speech pipeline. main starts every enabled transport
// and closes them on shutdown.
package transport

import "context"

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "agi", "http", "grpc").
	Name() string

	// Listen starts accepting requests. It blocks until the context is
	// cancelled or the listener fails.
	Listen(ctx context.Context) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
