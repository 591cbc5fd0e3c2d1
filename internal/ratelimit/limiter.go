// Package ratelimit counts attempts per key and locks the key for a
// cooldown once too many pile up. Counters live behind a Storage port so the
// same limiter runs on memory in tests and on Redis in production.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultCooldown    = 15 * time.Minute
)

var ErrLocked = errors.New("ratelimit: locked")

// LockedError carries the time left until the key unlocks.
type LockedError struct {
	Wait time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("ratelimit: locked, retry in %s", e.Wait.Round(time.Second))
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Storage keeps one expiring counter per key. Incr must be atomic: two
// concurrent calls never observe the same count.
type Storage interface {
	// Incr adds one to the counter and returns the new value and the time
	// left until the key expires. A new key expires after ttl.
	Incr(ctx context.Context, key string, ttl time.Duration) (int, time.Duration, error)
	// Expire restarts the key's expiry at ttl from now.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Clear(ctx context.Context, key string) error
}

type Limiter struct {
	store       Storage
	maxAttempts int
	cooldown    time.Duration
}

type Option func(*Limiter)

func WithMaxAttempts(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

func WithCooldown(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.cooldown = d
		}
	}
}

func New(store Storage, opts ...Option) *Limiter {
	l := &Limiter{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		cooldown:    DefaultCooldown,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Limiter) MaxAttempts() int { return l.maxAttempts }

// Reserve claims one attempt before the caller does the guarded work and
// returns its number, counting from 1. Past the limit it returns a
// *LockedError and the work must not run. The last allowed attempt starts
// the cooldown; attempts made while locked do not extend it.
func (l *Limiter) Reserve(ctx context.Context, key string) (int, error) {
	n, left, err := l.store.Incr(ctx, key, l.cooldown)
	if err != nil {
		return 0, err
	}
	if n > l.maxAttempts {
		return n, &LockedError{Wait: left}
	}
	if n == l.maxAttempts {
		if err := l.store.Expire(ctx, key, l.cooldown); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// Remaining is the number of attempts left after attempt n.
func (l *Limiter) Remaining(n int) int {
	if r := l.maxAttempts - n; r > 0 {
		return r
	}
	return 0
}

// Reset forgets every attempt on key, typically after a success.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Clear(ctx, key)
}
