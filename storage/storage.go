package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("storage: key not found")
	// ErrCorrupt is returned by Get when a stored value cannot be read back.
	ErrCorrupt = errors.New("storage: value corrupt")
	// ErrEmptyKey is returned when an operation is given an empty key.
	ErrEmptyKey = errors.New("storage: empty key")
)

// KV is the persistence collaborator: a flat string-keyed store.
//
// Remove of a missing key is not an error. Implementations must be safe for
// concurrent use.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
