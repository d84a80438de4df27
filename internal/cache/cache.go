// Package cache provides the key-value caches behind named views, named
// operations and job tracking.
package cache

import (
	"context"
	stderrors "errors"

	"github.com/rohankatakam/elemgraph/internal/errors"
)

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = stderrors.New("not found")
	// ErrAlreadyExists is returned by Add for an existing key without overwrite.
	ErrAlreadyExists = stderrors.New("key already exists")
)

// Cache is a keyed store of values. Implementations are safe for
// concurrent use and atomic per key. Backend failures are returned as
// CacheOperationFailed errors.
type Cache[V any] interface {
	Add(ctx context.Context, key string, value V, overwrite bool) error
	Get(ctx context.Context, key string) (V, error)
	// GetAll returns every value ordered by key.
	GetAll(ctx context.Context) ([]V, error)
	// Remove deletes key; removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// AlreadyExists reports a rejected Add of an existing key.
func AlreadyExists(key string) error {
	return errors.Wrap(ErrAlreadyExists, errors.ErrorTypeValidation, errors.SeverityHigh,
		"cache entry already exists and overwrite was not requested").WithContext("key", key)
}

// NotFound reports a missing key.
func NotFound(key string) error {
	return errors.Wrap(ErrNotFound, errors.ErrorTypeValidation, errors.SeverityMedium, "cache entry not found").
		WithContext("key", key)
}
