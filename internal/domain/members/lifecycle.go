package members

import (
	"time"
)

const (
	Day = 24 * time.Hour

	// ExpiringSoonDays is the warning window for time-based plans.
	ExpiringSoonDays = 7
	// UnlimitedDays marks an expiry so far away (~50 years) that it is shown
	// as unlimited. Status derivation does not look at it.
	UnlimitedDays = 18250
)

// ResolvePlanType returns the stored plan type, or infers it from the
// session count for legacy records.
func ResolvePlanType(m Member) PlanType {
	if m.PlanType != "" {
		return m.PlanType
	}
	switch {
	case m.SessionsTotal == 1:
		return PlanSingle
	case m.SessionsTotal > 1:
		return PlanPackage
	default:
		return PlanSubscription
	}
}

// SessionsRemaining is always 0 for time-based plans.
func SessionsRemaining(m Member) int {
	if ResolvePlanType(m) == PlanSubscription {
		return 0
	}
	left := m.SessionsTotal - m.SessionsUsed
	if left < 0 {
		return 0
	}
	return left
}

func IsSingleSessionUsed(m Member) bool {
	if ResolvePlanType(m) != PlanSingle {
		return false
	}
	total := m.SessionsTotal
	if total <= 0 {
		total = 1
	}
	return m.SessionsUsed >= total
}

// DaysRemaining returns the ceiling number of days until ExpiresAt. ok is
// false when no expiry is tracked.
func DaysRemaining(m Member, now time.Time) (days int, ok bool) {
	if m.ExpiresAt == nil {
		return 0, false
	}
	delta := m.ExpiresAt.Sub(now)
	if delta <= 0 {
		return 0, true
	}
	return int((delta + Day - 1) / Day), true
}

// IsUnlimited reports an expiry far enough out to render as "unlimited".
func IsUnlimited(m Member, now time.Time) bool {
	days, ok := DaysRemaining(m, now)
	return ok && days > UnlimitedDays
}

// StatusAt derives the lifecycle status from stored fields. It is never
// persisted.
func StatusAt(m Member, now time.Time) Status {
	if m.IsFrozen {
		return StatusFrozen
	}

	switch ResolvePlanType(m) {
	case PlanSingle:
		// Used single sessions stay active; see IsSingleSessionUsed.
		return StatusActive

	case PlanPackage:
		switch SessionsRemaining(m) {
		case 0:
			return StatusExpired
		case 1:
			return StatusExpiringSoon
		default:
			return StatusActive
		}

	default:
		if m.ExpiresAt == nil {
			return StatusActive
		}
		if !m.ExpiresAt.After(now) {
			return StatusExpired
		}
		days, _ := DaysRemaining(m, now)
		if days <= ExpiringSoonDays {
			return StatusExpiringSoon
		}
		return StatusActive
	}
}

// CheckIn is a read-side gate: it never mutates the member. Contact-only
// members have nothing to check in against.
func CheckIn(m Member, now time.Time) error {
	if !m.HasPlan() {
		return ErrNoPlan
	}
	switch StatusAt(m, now) {
	case StatusActive, StatusExpiringSoon:
		return nil
	case StatusFrozen:
		return ErrFrozen
	default:
		return ErrCheckInDenied
	}
}

// View is a member together with everything derived from it at one instant.
type View struct {
	Member
	ResolvedPlan      PlanType
	Status            Status
	SessionsRemaining int
	DaysRemaining     *int
	Unlimited         bool
	SingleSessionUsed bool
}

func NewView(m Member, now time.Time) View {
	v := View{
		Member:            m,
		ResolvedPlan:      ResolvePlanType(m),
		Status:            StatusAt(m, now),
		SessionsRemaining: SessionsRemaining(m),
		Unlimited:         IsUnlimited(m, now),
		SingleSessionUsed: IsSingleSessionUsed(m),
	}
	if days, ok := DaysRemaining(m, now); ok {
		v.DaysRemaining = &days
	}
	return v
}
