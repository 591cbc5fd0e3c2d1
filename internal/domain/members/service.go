package members

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/NEXESMISSION/kestiv2-sub001/internal/infra/metrics"
)

// Store persists members. Apply and Create must be all-or-nothing.
type Store interface {
	Get(ctx context.Context, businessID, id uuid.UUID) (*Member, error)
	List(ctx context.Context, businessID uuid.UUID) ([]Member, error)
	Create(ctx context.Context, m Member, h *HistoryItem, t *Transaction) error
	Apply(ctx context.Context, c Change) (*Member, error)
	History(ctx context.Context, businessID, memberID uuid.UUID) ([]HistoryItem, error)
}

type PlanCatalog interface {
	Get(ctx context.Context, businessID, id uuid.UUID) (*Plan, error)
}

type Service struct {
	store Store
	plans PlanCatalog
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store Store, plans PlanCatalog, log *slog.Logger) *Service {
	return &Service{store: store, plans: plans, log: log, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Now() time.Time { return s.now() }

type RegisterInput struct {
	Code  string
	Name  string
	Phone string
	// PlanID is nil for a contact-only registration.
	PlanID *uuid.UUID
	// A zero Payment.Amount charges the plan price.
	Payment Payment
}

func (s *Service) Register(ctx context.Context, businessID uuid.UUID, in RegisterInput) (*Member, error) {
	start := time.Now()
	m, err := s.register(ctx, businessID, in)
	s.observe(ActionRegister, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	s.log.Info("member registered", "member_id", m.ID, "business_id", businessID, "plan", m.PlanName)
	return m, nil
}

func (s *Service) register(ctx context.Context, businessID uuid.UUID, in RegisterInput) (*Member, error) {
	now := s.now()
	m := NewMember(businessID, in.Code, in.Name, in.Phone, now)
	if m.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	var (
		h  *HistoryItem
		tx *Transaction
	)
	if in.PlanID != nil {
		plan, err := s.plans.Get(ctx, businessID, *in.PlanID)
		if err != nil {
			return nil, err
		}
		pay := in.Payment
		if pay.Amount.IsZero() {
			pay.Amount = plan.Price
		}
		c, err := Renew(m, *plan, pay, now)
		if err != nil {
			return nil, err
		}
		m, h, tx = c.After, &c.History, c.Transaction
	}

	if err := s.store.Create(ctx, m, h, tx); err != nil {
		return nil, err
	}
	m.Version = 1
	return &m, nil
}

// Import creates members from untyped records, e.g. an export of the
// previous backend. It stops at the first invalid record and reports how
// many were stored before it.
func (s *Service) Import(ctx context.Context, businessID uuid.UUID, records []Record) (int, error) {
	now := s.now()
	for i, r := range records {
		m, err := ParseMember(r)
		if err != nil {
			return i, fmt.Errorf("record %d: %w", i, err)
		}
		if m.BusinessID != businessID {
			return i, fmt.Errorf("record %d: %w: business_id does not match", i, ErrInvalidInput)
		}
		if m.SessionsUsed > m.SessionsTotal {
			return i, fmt.Errorf("record %d: %w: sessions_used exceeds sessions_total", i, ErrInvalidInput)
		}
		m.CreatedAt, m.UpdatedAt = now, now
		if err := s.store.Create(ctx, m, nil, nil); err != nil {
			return i, fmt.Errorf("record %d: %w", i, err)
		}
	}
	s.log.Info("members imported", "business_id", businessID, "count", len(records))
	return len(records), nil
}

func (s *Service) Get(ctx context.Context, businessID, id uuid.UUID) (*View, error) {
	m, err := s.store.Get(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	v := NewView(*m, s.now())
	return &v, nil
}

func (s *Service) List(ctx context.Context, businessID uuid.UUID) ([]View, error) {
	ms, err := s.store.List(ctx, businessID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]View, 0, len(ms))
	for _, m := range ms {
		out = append(out, NewView(m, now))
	}
	return out, nil
}

func (s *Service) History(ctx context.Context, businessID, id uuid.UUID) ([]HistoryItem, error) {
	if _, err := s.store.Get(ctx, businessID, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, businessID, id)
}

// CheckIn gates access without recording anything.
func (s *Service) CheckIn(ctx context.Context, businessID, id uuid.UUID) (*View, error) {
	start := time.Now()
	m, err := s.store.Get(ctx, businessID, id)
	if err == nil {
		err = CheckIn(*m, s.now())
	}
	s.observe(ActionCheckIn, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	v := NewView(*m, s.now())
	return &v, nil
}

func (s *Service) UseSession(ctx context.Context, businessID, id uuid.UUID) (*View, error) {
	return s.transition(ctx, businessID, id, ActionUseSession, UseSession)
}

func (s *Service) AddSessions(ctx context.Context, businessID, id uuid.UUID, n int, p Payment, notes string) (*View, error) {
	return s.transition(ctx, businessID, id, ActionAddSessions, func(m Member, now time.Time) (Change, error) {
		return AddSessions(m, n, p, notes, now)
	})
}

// Renew applies a catalog plan. A zero Payment.Amount charges the plan price.
func (s *Service) Renew(ctx context.Context, businessID, id, planID uuid.UUID, p Payment) (*View, error) {
	plan, err := s.plans.Get(ctx, businessID, planID)
	if err != nil {
		s.observe(ActionRenew, err, 0)
		return nil, err
	}
	if p.Amount.IsZero() {
		p.Amount = plan.Price
	}
	return s.transition(ctx, businessID, id, ActionRenew, func(m Member, now time.Time) (Change, error) {
		return Renew(m, *plan, p, now)
	})
}

func (s *Service) Freeze(ctx context.Context, businessID, id uuid.UUID, reason string) (*View, error) {
	return s.transition(ctx, businessID, id, ActionFreeze, func(m Member, now time.Time) (Change, error) {
		return Freeze(m, reason, now)
	})
}

func (s *Service) Unfreeze(ctx context.Context, businessID, id uuid.UUID) (*View, error) {
	return s.transition(ctx, businessID, id, ActionUnfreeze, Unfreeze)
}

func (s *Service) PayDebt(ctx context.Context, businessID, id uuid.UUID, mode DebtPaymentMode, amount decimal.Decimal) (*View, error) {
	return s.transition(ctx, businessID, id, ActionPayDebt, func(m Member, now time.Time) (Change, error) {
		return PayDebt(m, mode, amount, now)
	})
}

func (s *Service) Cancel(ctx context.Context, businessID, id uuid.UUID, reason string) (*View, error) {
	return s.transition(ctx, businessID, id, ActionCancel, func(m Member, now time.Time) (Change, error) {
		return Cancel(m, reason, now)
	})
}

func (s *Service) transition(ctx context.Context, businessID, id uuid.UUID, action Action,
	fn func(Member, time.Time) (Change, error)) (*View, error) {

	start := time.Now()
	out, err := s.run(ctx, businessID, id, fn)
	s.observe(action, err, time.Since(start))
	if err != nil {
		if !IsValidation(err) && !IsPrecondition(err) && !errors.Is(err, ErrNotFound) {
			s.log.Error("member transition failed", "action", action, "member_id", id, "err", err)
		}
		return nil, err
	}

	s.log.Info("member transition", "action", action, "member_id", id, "version", out.Version)
	v := NewView(*out, s.now())
	return &v, nil
}

func (s *Service) run(ctx context.Context, businessID, id uuid.UUID, fn func(Member, time.Time) (Change, error)) (*Member, error) {
	m, err := s.store.Get(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	c, err := fn(*m, s.now())
	if err != nil {
		return nil, err
	}
	return s.store.Apply(ctx, c)
}

func (s *Service) observe(action Action, err error, took time.Duration) {
	result := metrics.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, ErrVersionConflict):
		result = metrics.ResultConflict
	case IsValidation(err), IsPrecondition(err), errors.Is(err, ErrNotFound):
		result = metrics.ResultRejected
	default:
		result = metrics.ResultError
	}
	metrics.ObserveTransition(string(action), result, took)
}
