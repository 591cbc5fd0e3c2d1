package members

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Record is a loosely typed row as exported by the hosted backend or sent by
// a client. It is only ever turned into a Member through ParseMember.
type Record map[string]any

// ParseMember validates an untyped record field by field. Unknown keys are
// ignored; wrong types and out-of-range values are rejected.
func ParseMember(r Record) (Member, error) {
	var (
		m   Member
		err error
	)
	if m.ID, err = uuidField(r, "id", true); err != nil {
		return Member{}, err
	}
	if m.BusinessID, err = uuidField(r, "business_id", true); err != nil {
		return Member{}, err
	}
	if m.Code, err = stringField(r, "code"); err != nil {
		return Member{}, err
	}
	if m.Name, err = stringField(r, "name"); err != nil {
		return Member{}, err
	}
	if m.Phone, err = stringField(r, "phone"); err != nil {
		return Member{}, err
	}

	pt, err := stringField(r, "plan_type")
	if err != nil {
		return Member{}, err
	}
	if pt != "" && !PlanType(pt).Valid() {
		return Member{}, fieldErr("plan_type", "unknown plan type %q", pt)
	}
	m.PlanType = PlanType(pt)

	if m.PlanName, err = stringField(r, "plan_name"); err != nil {
		return Member{}, err
	}
	if m.PlanStartAt, err = timeField(r, "plan_start_at"); err != nil {
		return Member{}, err
	}
	if m.ExpiresAt, err = timeField(r, "expires_at"); err != nil {
		return Member{}, err
	}
	if m.SessionsTotal, err = countField(r, "sessions_total"); err != nil {
		return Member{}, err
	}
	if m.SessionsUsed, err = countField(r, "sessions_used"); err != nil {
		return Member{}, err
	}
	if m.IsFrozen, err = boolField(r, "is_frozen"); err != nil {
		return Member{}, err
	}
	if m.FrozenAt, err = timeField(r, "frozen_at"); err != nil {
		return Member{}, err
	}
	if m.FreezeDays, err = countField(r, "freeze_days"); err != nil {
		return Member{}, err
	}
	if m.Debt, err = moneyField(r, "debt"); err != nil {
		return Member{}, err
	}
	return m, nil
}

func fieldErr(key, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidInput, key, fmt.Sprintf(format, args...))
}

func uuidField(r Record, key string, required bool) (uuid.UUID, error) {
	v, ok := r[key]
	if !ok || v == nil {
		if required {
			return uuid.Nil, fieldErr(key, "missing")
		}
		return uuid.Nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return uuid.Nil, fieldErr(key, "want string, got %T", v)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fieldErr(key, "%v", err)
	}
	return id, nil
}

func stringField(r Record, key string) (string, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldErr(key, "want string, got %T", v)
	}
	return strings.TrimSpace(s), nil
}

func boolField(r Record, key string) (bool, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fieldErr(key, "want bool, got %T", v)
	}
	return b, nil
}

// countField accepts JSON numbers (float64 or json.Number) holding a
// non-negative integer.
func countField(r Record, key string) (int, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0, fieldErr(key, "%v", err)
		}
		f = x
	default:
		return 0, fieldErr(key, "want number, got %T", v)
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fieldErr(key, "want non-negative integer, got %v", f)
	}
	return int(f), nil
}

func timeField(r Record, key string) (*time.Time, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fieldErr(key, "want RFC 3339 string, got %T", v)
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fieldErr(key, "%v", err)
	}
	return &t, nil
}

func moneyField(r Record, key string) (decimal.Decimal, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return decimal.Zero, nil
	}
	var (
		d   decimal.Decimal
		err error
	)
	switch n := v.(type) {
	case float64:
		d = decimal.NewFromFloat(n)
	case string:
		d, err = decimal.NewFromString(n)
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	default:
		return decimal.Zero, fieldErr(key, "want number, got %T", v)
	}
	if err != nil {
		return decimal.Zero, fieldErr(key, "%v", err)
	}
	if d.IsNegative() {
		return decimal.Zero, fieldErr(key, "must not be negative")
	}
	return d, nil
}
