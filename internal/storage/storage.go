// Package storage defines the device persistence capabilities consumed by the
// token store and the local caches, and the backends that provide them.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies storage failures.
type ErrorKind string

const (
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindSerialization      ErrorKind = "serialization"
	KindNotFound           ErrorKind = "not_found"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrBackendUnavailable = &Error{Kind: KindBackendUnavailable}
	ErrSerialization      = &Error{Kind: KindSerialization}
	ErrNotFound           = &Error{Kind: KindNotFound}
)

// Error is the single error type returned across the storage boundary.
type Error struct {
	Kind    ErrorKind
	Op      string
	Key     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" (key %q)", e.Key)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Unavailable wraps a backend failure for op on key.
func Unavailable(op, key string, err error) *Error {
	return &Error{Kind: KindBackendUnavailable, Op: op, Key: key, Err: err}
}

// Corrupted reports that the value stored under key could not be decoded.
func Corrupted(op, key string, err error) *Error {
	return &Error{Kind: KindSerialization, Op: op, Key: key, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// SecureStore holds a few small secrets with strong at-rest protection.
// It has no enumeration or bulk operations.
type SecureStore interface {
	SetValue(ctx context.Context, key, value string) error
	// GetValue returns found=false when nothing is stored under key.
	GetValue(ctx context.Context, key string) (value string, found bool, err error)
	// DeleteValue is a no-op when key is absent.
	DeleteValue(ctx context.Context, key string) error
}

// Pair is one key/value entry of a bulk write.
type Pair struct {
	Key   string
	Value string
}

// Item is one result of a bulk read.
type Item struct {
	Key   string
	Value string
	Found bool
}

// KeyValueStore is the general-purpose store used for cache data and settings.
type KeyValueStore interface {
	SetItem(ctx context.Context, key, value string) error
	GetItem(ctx context.Context, key string) (value string, found bool, err error)
	RemoveItem(ctx context.Context, key string) error

	SetMany(ctx context.Context, pairs []Pair) error
	// GetMany returns one Item per requested key, in request order.
	GetMany(ctx context.Context, keys []string) ([]Item, error)
	RemoveMany(ctx context.Context, keys []string) error
	ListKeys(ctx context.Context) ([]string, error)
}
