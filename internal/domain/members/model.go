package members

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PlanType string

const (
	PlanSubscription PlanType = "subscription" // calendar time
	PlanPackage      PlanType = "package"      // bundle of sessions
	PlanSingle       PlanType = "single"       // one session
)

func (p PlanType) Valid() bool {
	switch p {
	case PlanSubscription, PlanPackage, PlanSingle:
		return true
	}
	return false
}

type Status string

const (
	StatusActive       Status = "active"
	StatusExpiringSoon Status = "expiring_soon"
	StatusExpired      Status = "expired"
	StatusFrozen       Status = "frozen"
)

type Member struct {
	ID         uuid.UUID
	BusinessID uuid.UUID
	Code       string
	Name       string
	Phone      string

	// PlanType is empty on records created before the column existed.
	PlanType    PlanType
	PlanName    string
	PlanStartAt *time.Time
	ExpiresAt   *time.Time

	SessionsTotal int
	SessionsUsed  int

	IsFrozen   bool
	FrozenAt   *time.Time
	FreezeDays int

	Debt decimal.Decimal

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPlan is false for contact-only members.
func (m Member) HasPlan() bool {
	return m.PlanType != "" || m.PlanName != "" || m.SessionsTotal > 0 || m.ExpiresAt != nil
}

type HistoryType string

const (
	HistorySubscription HistoryType = "subscription"
	HistorySessionAdd   HistoryType = "session_add"
	HistorySessionUse   HistoryType = "session_use"
	HistoryPlanChange   HistoryType = "plan_change"
	HistoryService      HistoryType = "service"
	HistoryFreeze       HistoryType = "freeze"
	HistoryUnfreeze     HistoryType = "unfreeze"
	HistoryCancellation HistoryType = "cancellation"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentDebt PaymentMethod = "debt"
)

func (p PaymentMethod) Valid() bool { return p == PaymentCash || p == PaymentDebt }

// HistoryItem is an append-only audit row. SessionsBefore/After carry the
// remaining session balance around the action.
type HistoryItem struct {
	ID             uuid.UUID
	MemberID       uuid.UUID
	BusinessID     uuid.UUID
	Type           HistoryType
	SessionsBefore int
	SessionsAfter  int
	Amount         decimal.Decimal
	PaymentMethod  PaymentMethod
	Notes          string
	CreatedAt      time.Time
}

type TransactionType string

const (
	TxSale        TransactionType = "sale"
	TxDebtPayment TransactionType = "debt_payment"
)

type Transaction struct {
	ID            uuid.UUID
	BusinessID    uuid.UUID
	MemberID      uuid.UUID
	Type          TransactionType
	Amount        decimal.Decimal
	PaymentMethod PaymentMethod
	Notes         string
	CreatedAt     time.Time
}

type Action string

const (
	ActionRegister    Action = "register"
	ActionCheckIn     Action = "checkin"
	ActionUseSession  Action = "use_session"
	ActionAddSessions Action = "add_sessions"
	ActionRenew       Action = "renew"
	ActionFreeze      Action = "freeze"
	ActionUnfreeze    Action = "unfreeze"
	ActionPayDebt     Action = "pay_debt"
	ActionCancel      Action = "cancel"
)

// Change is the full effect of one transition: the member as read, the
// member to write, and the rows that document it. A store must persist all
// of it or none of it.
type Change struct {
	Action      Action
	Before      Member
	After       Member
	History     HistoryItem
	Transaction *Transaction

	// ConsumesSession asks the store to re-check the session balance
	// against the stored row.
	ConsumesSession bool
}

// Plan is a catalog entry defined by the business. Time-based plans carry
// DurationDays, session-based plans carry Sessions.
type Plan struct {
	ID           uuid.UUID
	BusinessID   uuid.UUID
	Name         string
	PlanType     PlanType
	Price        decimal.Decimal
	DurationDays int
	Sessions     int
	Active       bool
}
