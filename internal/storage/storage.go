// Package storage holds the persisted key-value mirror the stores write
// through to. Every backend stores opaque strings under plain keys.
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("storage: closed")

// KV is a string key-value store.
type KV interface {
	// Get reports whether key is present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
	// Backend names the implementation for logs and metrics.
	Backend() string
}
