package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by KV.Get when nothing was stored under a key.
var ErrKeyNotFound = errors.New("key not found")

// KV is a string keyed store of serialized values.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetMany writes all entries or none of them.
	SetMany(ctx context.Context, entries map[string]string) error
	Close() error
}
