package members

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore mimics the SQL guards of Repo: version compare-and-swap and the
// session balance check.
type memStore struct {
	mu      sync.Mutex
	members map[uuid.UUID]Member
	history []HistoryItem
	txs     []Transaction

	// afterGet runs between a read and the caller's write.
	afterGet func()
}

func newMemStore() *memStore {
	return &memStore{members: map[uuid.UUID]Member{}}
}

func (s *memStore) Get(_ context.Context, businessID, id uuid.UUID) (*Member, error) {
	s.mu.Lock()
	m, ok := s.members[id]
	s.mu.Unlock()
	if !ok || m.BusinessID != businessID {
		return nil, ErrNotFound
	}
	if s.afterGet != nil {
		s.afterGet()
	}
	return &m, nil
}

func (s *memStore) List(_ context.Context, businessID uuid.UUID) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Member
	for _, m := range s.members {
		if m.BusinessID == businessID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) Create(_ context.Context, m Member, h *HistoryItem, t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.members {
		if m.Code != "" && other.BusinessID == m.BusinessID && other.Code == m.Code {
			return ErrDuplicateCode
		}
	}
	m.Version = 1
	s.members[m.ID] = m
	if h != nil {
		s.history = append(s.history, *h)
	}
	if t != nil {
		s.txs = append(s.txs, *t)
	}
	return nil
}

func (s *memStore) Apply(_ context.Context, c Change) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.members[c.After.ID]
	if !ok || cur.Version != c.Before.Version {
		return nil, ErrVersionConflict
	}
	if c.ConsumesSession && cur.SessionsUsed+1 > cur.SessionsTotal {
		return nil, ErrVersionConflict
	}
	a := c.After
	a.Version = cur.Version + 1
	s.members[a.ID] = a
	s.history = append(s.history, c.History)
	if c.Transaction != nil {
		s.txs = append(s.txs, *c.Transaction)
	}
	return &a, nil
}

func (s *memStore) History(_ context.Context, businessID, memberID uuid.UUID) ([]HistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []HistoryItem
	for i := len(s.history) - 1; i >= 0; i-- {
		h := s.history[i]
		if h.BusinessID == businessID && h.MemberID == memberID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *memStore) put(m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Version == 0 {
		m.Version = 1
	}
	s.members[m.ID] = m
}

type planMap map[uuid.UUID]Plan

func (p planMap) Get(_ context.Context, businessID, id uuid.UUID) (*Plan, error) {
	plan, ok := p[id]
	if !ok || plan.BusinessID != businessID {
		return nil, ErrPlanUnavailable
	}
	return &plan, nil
}

type serviceFixture struct {
	svc     *Service
	store   *memStore
	biz     uuid.UUID
	monthly Plan
	visits  Plan
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	biz := uuid.New()
	monthly := Plan{ID: uuid.New(), BusinessID: biz, Name: "Monthly", PlanType: PlanSubscription, Price: decimal.NewFromInt(90), DurationDays: 30, Active: true}
	visits := Plan{ID: uuid.New(), BusinessID: biz, Name: "10 visits", PlanType: PlanPackage, Price: decimal.NewFromInt(70), Sessions: 10, Active: true}

	store := newMemStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, planMap{monthly.ID: monthly, visits.ID: visits}, log).
		WithClock(func() time.Time { return testNow })
	return &serviceFixture{svc: svc, store: store, biz: biz, monthly: monthly, visits: visits}
}

func TestServiceRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("with plan charges the catalog price", func(t *testing.T) {
		f := newFixture(t)
		m, err := f.svc.Register(ctx, f.biz, RegisterInput{Code: "7", Name: " Lee ", PlanID: &f.monthly.ID})
		require.NoError(t, err)
		assert.Equal(t, "Lee", m.Name)
		assert.Equal(t, 1, m.Version)
		assert.True(t, m.ExpiresAt.Equal(testNow.Add(30*Day)))

		require.Len(t, f.store.txs, 1)
		assert.True(t, f.store.txs[0].Amount.Equal(decimal.NewFromInt(90)))
		require.Len(t, f.store.history, 1)
		assert.Equal(t, HistorySubscription, f.store.history[0].Type)
	})

	t.Run("contact only", func(t *testing.T) {
		f := newFixture(t)
		m, err := f.svc.Register(ctx, f.biz, RegisterInput{Name: "Walk-in"})
		require.NoError(t, err)
		assert.False(t, m.HasPlan())
		assert.Empty(t, f.store.history)
		assert.Empty(t, f.store.txs)
	})

	t.Run("rejections", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, f.biz, RegisterInput{Name: "  "})
		assert.ErrorIs(t, err, ErrInvalidInput)

		missing := uuid.New()
		_, err = f.svc.Register(ctx, f.biz, RegisterInput{Name: "Kim", PlanID: &missing})
		assert.ErrorIs(t, err, ErrPlanUnavailable)

		_, err = f.svc.Register(ctx, f.biz, RegisterInput{Code: "9", Name: "Kim"})
		require.NoError(t, err)
		_, err = f.svc.Register(ctx, f.biz, RegisterInput{Code: "9", Name: "Kai"})
		assert.ErrorIs(t, err, ErrDuplicateCode)
	})
}

func TestServiceSessionFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.svc.Register(ctx, f.biz, RegisterInput{Name: "Ana", PlanID: &f.visits.ID})
	require.NoError(t, err)

	v, err := f.svc.CheckIn(ctx, f.biz, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, v.SessionsRemaining)

	for i := 0; i < 9; i++ {
		v, err = f.svc.UseSession(ctx, f.biz, m.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, StatusExpiringSoon, v.Status)
	assert.Equal(t, 10, v.Version)

	v, err = f.svc.UseSession(ctx, f.biz, m.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, v.Status)

	_, err = f.svc.CheckIn(ctx, f.biz, m.ID)
	assert.ErrorIs(t, err, ErrCheckInDenied)
	_, err = f.svc.UseSession(ctx, f.biz, m.ID)
	assert.ErrorIs(t, err, ErrNoSessionsLeft)

	v, err = f.svc.Renew(ctx, f.biz, m.ID, f.visits.ID, Payment{Amount: decimal.NewFromInt(60), Method: PaymentDebt})
	require.NoError(t, err)
	assert.Equal(t, 10, v.SessionsRemaining)
	assert.True(t, v.Debt.Equal(decimal.NewFromInt(60)))

	v, err = f.svc.PayDebt(ctx, f.biz, m.ID, DebtPaymentPartial, decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.True(t, v.Debt.Equal(decimal.NewFromInt(35)))

	items, err := f.svc.History(ctx, f.biz, m.ID)
	require.NoError(t, err)
	require.Len(t, items, 13)
	assert.Equal(t, HistoryService, items[0].Type)
	assert.Equal(t, HistorySessionAdd, items[len(items)-1].Type)
}

func TestServiceFreeze(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.svc.Register(ctx, f.biz, RegisterInput{Name: "Ola", PlanID: &f.monthly.ID})
	require.NoError(t, err)

	_, err = f.svc.Freeze(ctx, f.biz, m.ID, "")
	assert.ErrorIs(t, err, ErrReasonRequired)

	v, err := f.svc.Freeze(ctx, f.biz, m.ID, "surgery")
	require.NoError(t, err)
	assert.Equal(t, StatusFrozen, v.Status)

	_, err = f.svc.CheckIn(ctx, f.biz, m.ID)
	assert.ErrorIs(t, err, ErrFrozen)

	v, err = f.svc.Unfreeze(ctx, f.biz, m.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, v.Status)
}

func TestServiceDetectsConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m := newTestMember(func(m *Member) {
		m.BusinessID = f.biz
		m.PlanType, m.SessionsTotal, m.SessionsUsed = PlanPackage, 5, 4
	})
	f.store.put(m)

	// Another desk writes between our read and our write.
	f.store.afterGet = func() {
		f.store.afterGet = nil
		_, err := f.svc.UseSession(ctx, f.biz, m.ID)
		require.NoError(t, err)
	}

	_, err := f.svc.UseSession(ctx, f.biz, m.ID)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := f.store.Get(ctx, f.biz, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.SessionsUsed)
}

func TestServiceParallelLastSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m := newTestMember(func(m *Member) {
		m.BusinessID = f.biz
		m.PlanType, m.SessionsTotal, m.SessionsUsed = PlanPackage, 3, 2
	})
	f.store.put(m)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UseSession(ctx, f.biz, m.ID)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrVersionConflict) && !errors.Is(err, ErrNoSessionsLeft) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	got, err := f.store.Get(ctx, f.biz, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.SessionsUsed)
}

func TestServiceImport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	good := Record{"id": uuid.NewString(), "business_id": f.biz.String(), "name": "Imported", "sessions_total": float64(8), "sessions_used": float64(2)}
	foreign := Record{"id": uuid.NewString(), "business_id": uuid.NewString(), "name": "Elsewhere"}
	overdrawn := Record{"id": uuid.NewString(), "business_id": f.biz.String(), "name": "Over", "plan_type": "package", "sessions_total": float64(2), "sessions_used": float64(3)}

	n, err := f.svc.Import(ctx, f.biz, []Record{good})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.Import(ctx, f.biz, []Record{{"id": uuid.NewString(), "business_id": f.biz.String(), "name": "B"}, foreign})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 1, n)

	_, err = f.svc.Import(ctx, f.biz, []Record{overdrawn})
	assert.ErrorIs(t, err, ErrInvalidInput)

	list, err := f.svc.List(ctx, f.biz)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "B", list[0].Name)
	assert.Equal(t, PlanPackage, list[1].ResolvedPlan)
	assert.Equal(t, 6, list[1].SessionsRemaining)
}

func TestServiceNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Get(ctx, f.biz, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.History(ctx, f.biz, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Cancel(ctx, f.biz, uuid.New(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}
