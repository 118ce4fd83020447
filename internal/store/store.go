// Package store provides the local key/value persistence used for engagement
// state. Values are opaque byte strings; callers own their encoding.
package store

import "errors"

// ErrNotFound is returned by Get when a key has never been written.
var ErrNotFound = errors.New("key not found")

// Store is a durable string-keyed value store. Implementations must be safe
// for concurrent use. Other writers may change a value between a Get and a
// later Set; callers that merge must re-read before writing.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}
