// Package store defines the key-value contract the booking indexes are
// maintained through, and its Redis implementation.
package store

import (
	"context"
	"errors"
)

// ErrNil is returned by single-key reads when the key or field is absent.
var ErrNil = errors.New("store: nil")

// ErrUnavailable wraps every transport or server failure.
var ErrUnavailable = errors.New("store unavailable")

// ErrTxContention is returned by Update when the watched keys kept changing
// for every allowed attempt.
var ErrTxContention = errors.New("store: transaction contention")

// Reader is the read side of the store.
type Reader interface {
	Get(ctx context.Context, key string) (string, error)
	// MGet returns one entry per key, nil where the key is absent.
	MGet(ctx context.Context, keys ...string) ([]*string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	HGet(ctx context.Context, key, field string) (string, error)
	// HMGet returns one entry per field, nil where the field is absent.
	HMGet(ctx context.Context, key string, fields ...string) ([]*string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Batch queues writes. Nothing is applied until the surrounding
// transaction executes, and then everything is applied at once.
type Batch interface {
	Set(key, value string)
	Del(keys ...string)
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
	HSet(key, field, value string)
	HDel(key string, fields ...string)
}

// Txn is handed to Update callbacks. Reads go through the watched
// connection; Commit submits the queued writes as one transaction that
// fails if any watched key changed since it was watched.
type Txn interface {
	Reader
	Commit(ctx context.Context, fn func(Batch)) error
}

// Store is the contract consumed by the booking repository.
type Store interface {
	Reader

	// Exec applies every write queued by fn in a single MULTI/EXEC.
	Exec(ctx context.Context, fn func(Batch)) error

	// Update watches keys, runs fn and retries it when a concurrent writer
	// touched a watched key before fn committed. Errors returned by fn are
	// passed back unchanged.
	Update(ctx context.Context, fn func(Txn) error, watch ...string) error

	Ping(ctx context.Context) error
	Close() error
}
