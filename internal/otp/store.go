package otp

import (
	"context"
	"errors"
	"time"
)

// StoreType selects a Store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// ErrInvalidStoreType is returned by NewStore for an unknown driver.
var ErrInvalidStoreType = errors.New("invalid otp store type")

// Entry is one outstanding code.
type Entry struct {
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
}

// Store keeps at most one entry per phone number.
type Store interface {
	// Put stores e for phone, replacing any previous entry. The store may
	// drop the entry once ttl has passed.
	Put(ctx context.Context, phone string, e Entry, ttl time.Duration) error

	// Get returns the entry for phone. A missing entry is not an error.
	Get(ctx context.Context, phone string) (Entry, bool, error)

	// Delete removes the entry for phone, if any.
	Delete(ctx context.Context, phone string) error

	// Close releases any resources.
	Close() error
}
