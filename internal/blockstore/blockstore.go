// ABOUTME: BlockStore interface for key-addressed byte buffers
// ABOUTME: Shared contract for the SQLite-backed and in-memory block stores

package blockstore

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed block store.
var ErrClosed = errors.New("block store closed")

// BlockStore is durable key-addressed byte storage.
type BlockStore interface {
	// Get returns the bytes stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// List returns the keys starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store
	Close() error
}
