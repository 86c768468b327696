// Package otp issues and checks short-lived one-time codes keyed by phone
// number.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/internal/phone"
)

const (
	// DefaultTTL is how long a code stays valid.
	DefaultTTL = 10 * time.Minute

	// CodeLength is the number of digits in a code.
	CodeLength = 6
)

var (
	ErrNotFound = errors.New("no verification code found")
	ErrExpired  = errors.New("verification code expired")
	ErrMismatch = errors.New("invalid verification code")
)

var codeSpace = big.NewInt(1_000_000)

// Option configures a Registry.
type Option func(*Registry)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithRandom replaces crypto/rand as the source of codes.
func WithRandom(src io.Reader) Option {
	return func(r *Registry) {
		r.random = src
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// Registry maps normalized phone numbers to their outstanding code. Issuing
// a new code replaces the old one; expiry is enforced on every read against
// the registry clock, independent of when the store sweeps.
type Registry struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
	logger *log.Logger
}

// NewRegistry creates a registry on top of store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		random: rand.Reader,
		logger: log.Default().WithPrefix("otp"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL returns how long issued codes stay valid.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Issue generates a fresh code for number and stores it, replacing any
// previous code.
func (r *Registry) Issue(ctx context.Context, number string) (string, error) {
	key, err := phone.Normalize(number)
	if err != nil {
		return "", err
	}

	code, err := GenerateCode(r.random)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	entry := Entry{Code: code, IssuedAt: r.now()}
	if err := r.store.Put(ctx, key, entry, r.ttl); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}

	r.logger.Debug("Issued code", "phone", phone.Mask(key), "ttl", r.ttl)
	return code, nil
}

// Check returns the live code for number. Expired codes are removed and
// reported as absent.
func (r *Registry) Check(ctx context.Context, number string) (string, bool, error) {
	key, err := phone.Normalize(number)
	if err != nil {
		return "", false, err
	}

	entry, ok, err := r.lookup(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return entry.Code, true, nil
}

// Consume removes the code for number unconditionally.
func (r *Registry) Consume(ctx context.Context, number string) error {
	key, err := phone.Normalize(number)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

// Verify compares code against the stored one and consumes it on a match.
// A mismatch leaves the code in place.
func (r *Registry) Verify(ctx context.Context, number, code string) error {
	key, err := phone.Normalize(number)
	if err != nil {
		return err
	}

	entry, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load code: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if r.expired(entry) {
		if err := r.store.Delete(ctx, key); err != nil {
			r.logger.Warn("Could not remove expired code", "phone", phone.Mask(key), "err", err)
		}
		return ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(entry.Code), []byte(code)) != 1 {
		return ErrMismatch
	}

	if err := r.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	r.logger.Debug("Verified code", "phone", phone.Mask(key))
	return nil
}

func (r *Registry) lookup(ctx context.Context, key string) (Entry, bool, error) {
	entry, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("load code: %w", err)
	}
	if !ok {
		return Entry{}, false, nil
	}
	if r.expired(entry) {
		if err := r.store.Delete(ctx, key); err != nil {
			return Entry{}, false, fmt.Errorf("delete expired code: %w", err)
		}
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// expired is strict: a code read exactly ttl after issue is still valid.
func (r *Registry) expired(e Entry) bool {
	return r.now().Sub(e.IssuedAt) > r.ttl
}

// GenerateCode returns a uniformly random CodeLength-digit code. Leading
// zeros are kept.
func GenerateCode(src io.Reader) (string, error) {
	n, err := rand.Int(src, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}
