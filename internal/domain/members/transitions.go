package members

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment describes how a sale was settled. A zero Amount records nothing.
type Payment struct {
	Amount decimal.Decimal
	Method PaymentMethod
}

func (p Payment) validate() error {
	if p.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if p.Method != "" && !p.Method.Valid() {
		return ErrInvalidPaymentMethod
	}
	return nil
}

func (p Payment) method() PaymentMethod {
	if p.Method == "" {
		return PaymentCash
	}
	return p.Method
}

type DebtPaymentMode string

const (
	DebtPaymentFull    DebtPaymentMode = "full"
	DebtPaymentPartial DebtPaymentMode = "partial"
)

// NewMember builds a contact-only member. Plans are attached with Renew.
func NewMember(businessID uuid.UUID, code, name, phone string, now time.Time) Member {
	return Member{
		ID:         uuid.New(),
		BusinessID: businessID,
		Code:       strings.TrimSpace(code),
		Name:       strings.TrimSpace(name),
		Phone:      strings.TrimSpace(phone),
		Debt:       decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func newHistory(before, after Member, typ HistoryType, now time.Time) HistoryItem {
	return HistoryItem{
		ID:             uuid.New(),
		MemberID:       after.ID,
		BusinessID:     after.BusinessID,
		Type:           typ,
		SessionsBefore: SessionsRemaining(before),
		SessionsAfter:  SessionsRemaining(after),
		Amount:         decimal.Zero,
		CreatedAt:      now,
	}
}

// settle books a sale. Sales on credit grow the member's debt.
func settle(after *Member, h *HistoryItem, p Payment, notes string, now time.Time) *Transaction {
	if !p.Amount.IsPositive() {
		return nil
	}
	h.Amount = p.Amount
	h.PaymentMethod = p.method()
	if p.method() == PaymentDebt {
		after.Debt = after.Debt.Add(p.Amount)
	}
	return &Transaction{
		ID:            uuid.New(),
		BusinessID:    after.BusinessID,
		MemberID:      after.ID,
		Type:          TxSale,
		Amount:        p.Amount,
		PaymentMethod: p.method(),
		Notes:         notes,
		CreatedAt:     now,
	}
}

func UseSession(m Member, now time.Time) (Change, error) {
	if SessionsRemaining(m) <= 0 {
		return Change{}, ErrNoSessionsLeft
	}
	after := m
	after.SessionsUsed++
	after.UpdatedAt = now

	return Change{
		Action:          ActionUseSession,
		Before:          m,
		After:           after,
		History:         newHistory(m, after, HistorySessionUse, now),
		ConsumesSession: true,
	}, nil
}

// AddSessions tops up a session-based plan. A single plan is one-shot, so a
// top-up issues a fresh single session instead of growing the count.
func AddSessions(m Member, n int, p Payment, notes string, now time.Time) (Change, error) {
	if n <= 0 {
		return Change{}, ErrInvalidCount
	}
	if err := p.validate(); err != nil {
		return Change{}, err
	}
	if !m.HasPlan() {
		return Change{}, ErrNoPlan
	}

	after := m
	after.UpdatedAt = now
	switch ResolvePlanType(m) {
	case PlanSingle:
		after.PlanType = PlanSingle
		after.SessionsTotal = 1
		after.SessionsUsed = 0
		after.PlanStartAt = &now
	case PlanPackage:
		after.PlanType = PlanPackage
		after.SessionsTotal += n
	default:
		return Change{}, ErrWrongPlanType
	}

	h := newHistory(m, after, HistorySessionAdd, now)
	h.Notes = strings.TrimSpace(notes)
	issued := after.SessionsTotal - m.SessionsTotal
	if after.PlanType == PlanSingle {
		issued = 1
	}
	tx := settle(&after, &h, p, fmt.Sprintf("%d session(s)", issued), now)

	return Change{
		Action:      ActionAddSessions,
		Before:      m,
		After:       after,
		History:     h,
		Transaction: tx,
	}, nil
}

// Renew applies a catalog plan. Same-type renewals extend the current plan
// (later expiry, more sessions); a different type replaces it.
func Renew(m Member, plan Plan, p Payment, now time.Time) (Change, error) {
	if !plan.Active {
		return Change{}, ErrPlanUnavailable
	}
	if !plan.PlanType.Valid() {
		return Change{}, fmt.Errorf("%w: plan type %q", ErrInvalidInput, plan.PlanType)
	}
	if err := p.validate(); err != nil {
		return Change{}, err
	}

	had := m.HasPlan()
	prev := ResolvePlanType(m)
	sameType := had && prev == plan.PlanType

	after := m
	after.PlanType = plan.PlanType
	after.PlanName = plan.Name
	after.UpdatedAt = now

	typ := HistorySessionAdd
	switch plan.PlanType {
	case PlanSubscription:
		if plan.DurationDays <= 0 {
			return Change{}, fmt.Errorf("%w: plan has no duration", ErrInvalidInput)
		}
		switch {
		case sameType && m.ExpiresAt == nil:
			// An unlimited subscription stays unlimited.
		case sameType && m.ExpiresAt.After(now):
			exp := m.ExpiresAt.AddDate(0, 0, plan.DurationDays)
			after.ExpiresAt = &exp
		default:
			exp := now.AddDate(0, 0, plan.DurationDays)
			after.ExpiresAt = &exp
			after.PlanStartAt = &now
		}
		after.SessionsTotal = 0
		after.SessionsUsed = 0
		typ = HistorySubscription

	case PlanPackage:
		if plan.Sessions <= 0 {
			return Change{}, fmt.Errorf("%w: plan has no sessions", ErrInvalidInput)
		}
		if sameType {
			after.SessionsTotal += plan.Sessions
		} else {
			after.SessionsTotal = plan.Sessions
			after.SessionsUsed = 0
			after.PlanStartAt = &now
			after.ExpiresAt = nil
		}

	case PlanSingle:
		after.SessionsTotal = 1
		after.SessionsUsed = 0
		after.PlanStartAt = &now
		after.ExpiresAt = nil
	}

	if had && !sameType {
		typ = HistoryPlanChange
	}

	h := newHistory(m, after, typ, now)
	h.Notes = plan.Name
	tx := settle(&after, &h, p, plan.Name, now)

	return Change{
		Action:      ActionRenew,
		Before:      m,
		After:       after,
		History:     h,
		Transaction: tx,
	}, nil
}

// Freeze overlays the frozen status. ExpiresAt is left alone.
func Freeze(m Member, reason string, now time.Time) (Change, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Change{}, ErrReasonRequired
	}
	if m.IsFrozen {
		return Change{}, ErrAlreadyFrozen
	}
	if !m.HasPlan() {
		return Change{}, ErrNoPlan
	}

	after := m
	after.IsFrozen = true
	after.FrozenAt = &now
	after.UpdatedAt = now

	h := newHistory(m, after, HistoryFreeze, now)
	h.Notes = reason
	return Change{Action: ActionFreeze, Before: m, After: after, History: h}, nil
}

// Unfreeze lifts the freeze and adds the frozen days to FreezeDays. It does
// not move ExpiresAt.
func Unfreeze(m Member, now time.Time) (Change, error) {
	if !m.IsFrozen {
		return Change{}, ErrNotFrozen
	}

	after := m
	after.IsFrozen = false
	after.FrozenAt = nil
	after.UpdatedAt = now

	days := 0
	if m.FrozenAt != nil && now.After(*m.FrozenAt) {
		days = int((now.Sub(*m.FrozenAt) + Day - 1) / Day)
	}
	after.FreezeDays += days

	h := newHistory(m, after, HistoryUnfreeze, now)
	h.Notes = fmt.Sprintf("frozen for %d day(s)", days)
	return Change{Action: ActionUnfreeze, Before: m, After: after, History: h}, nil
}

// PayDebt settles all (full) or part (partial) of the member's debt. Debt
// never goes below zero.
func PayDebt(m Member, mode DebtPaymentMode, amount decimal.Decimal, now time.Time) (Change, error) {
	if !m.Debt.IsPositive() {
		return Change{}, ErrNoDebt
	}
	switch mode {
	case DebtPaymentFull:
		amount = m.Debt
	case DebtPaymentPartial:
		if !amount.IsPositive() {
			return Change{}, ErrInvalidAmount
		}
	default:
		return Change{}, fmt.Errorf("%w: payment mode %q", ErrInvalidInput, mode)
	}

	after := m
	after.Debt = decimal.Max(decimal.Zero, m.Debt.Sub(amount))
	after.UpdatedAt = now

	h := newHistory(m, after, HistoryService, now)
	h.Amount = amount
	h.PaymentMethod = PaymentCash
	h.Notes = fmt.Sprintf("debt payment (%s), remaining %s", mode, after.Debt.StringFixed(2))

	return Change{
		Action:  ActionPayDebt,
		Before:  m,
		After:   after,
		History: h,
		Transaction: &Transaction{
			ID:            uuid.New(),
			BusinessID:    m.BusinessID,
			MemberID:      m.ID,
			Type:          TxDebtPayment,
			Amount:        amount,
			PaymentMethod: PaymentCash,
			Notes:         string(mode),
			CreatedAt:     now,
		},
	}, nil
}

// Cancel ends the current plan now. The plan type is pinned so a shrunk
// session count cannot change the inferred type of a legacy record.
func Cancel(m Member, reason string, now time.Time) (Change, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Change{}, ErrReasonRequired
	}
	if !m.HasPlan() {
		return Change{}, ErrNoPlan
	}

	after := m
	after.PlanType = ResolvePlanType(m)
	after.UpdatedAt = now
	switch after.PlanType {
	case PlanSubscription:
		if after.ExpiresAt == nil || after.ExpiresAt.After(now) {
			after.ExpiresAt = &now
		}
	case PlanSingle:
		total := max(after.SessionsTotal, 1)
		after.SessionsTotal = total
		after.SessionsUsed = total
	case PlanPackage:
		if after.SessionsUsed < after.SessionsTotal {
			after.SessionsTotal = after.SessionsUsed
		}
	}

	h := newHistory(m, after, HistoryCancellation, now)
	h.Notes = reason
	return Change{Action: ActionCancel, Before: m, After: after, History: h}, nil
}
