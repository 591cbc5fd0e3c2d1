package business

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("business: not found")
	ErrPaused              = errors.New("business: account is paused")
	ErrSubscriptionExpired = errors.New("business: subscription expired")
)

// Business is the account that owns members and plans. Its own subscription
// to the service decides whether staff may use it at all.
type Business struct {
	ID                    uuid.UUID
	Name                  string
	SubscriptionExpiresAt *time.Time
	IsPaused              bool
	PINHash               string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Access reports why the account cannot be used right now, if it cannot.
// A pause wins over expiry. No expiry means no limit.
func Access(b Business, now time.Time) error {
	if b.IsPaused {
		return ErrPaused
	}
	if b.SubscriptionExpiresAt != nil && !b.SubscriptionExpiresAt.After(now) {
		return ErrSubscriptionExpired
	}
	return nil
}
