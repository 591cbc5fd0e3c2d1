package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/NEXESMISSION/kestiv2-sub001/internal/auth"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/members"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/ratelimit"
)

type memberJSON struct {
	ID                uuid.UUID        `json:"id"`
	BusinessID        uuid.UUID        `json:"business_id"`
	Code              string           `json:"code,omitempty"`
	Name              string           `json:"name"`
	Phone             string           `json:"phone,omitempty"`
	PlanType          members.PlanType `json:"plan_type,omitempty"`
	PlanName          string           `json:"plan_name,omitempty"`
	PlanStartAt       *time.Time       `json:"plan_start_at,omitempty"`
	ExpiresAt         *time.Time       `json:"expires_at,omitempty"`
	SessionsTotal     int              `json:"sessions_total"`
	SessionsUsed      int              `json:"sessions_used"`
	SessionsRemaining int              `json:"sessions_remaining"`
	DaysRemaining     *int             `json:"days_remaining,omitempty"`
	Unlimited         bool             `json:"unlimited"`
	SingleSessionUsed bool             `json:"single_session_used"`
	Status            members.Status   `json:"status"`
	IsFrozen          bool             `json:"is_frozen"`
	FrozenAt          *time.Time       `json:"frozen_at,omitempty"`
	FreezeDays        int              `json:"freeze_days"`
	Debt              decimal.Decimal  `json:"debt"`
	Version           int              `json:"version"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func toMemberJSON(v members.View) memberJSON {
	out := memberJSON{
		ID:                v.ID,
		BusinessID:        v.BusinessID,
		Code:              v.Code,
		Name:              v.Name,
		Phone:             v.Phone,
		PlanName:          v.PlanName,
		PlanStartAt:       v.PlanStartAt,
		ExpiresAt:         v.ExpiresAt,
		SessionsTotal:     v.SessionsTotal,
		SessionsUsed:      v.SessionsUsed,
		SessionsRemaining: v.SessionsRemaining,
		DaysRemaining:     v.DaysRemaining,
		Unlimited:         v.Unlimited,
		SingleSessionUsed: v.SingleSessionUsed,
		Status:            v.Status,
		IsFrozen:          v.IsFrozen,
		FrozenAt:          v.FrozenAt,
		FreezeDays:        v.FreezeDays,
		Debt:              v.Debt,
		Version:           v.Version,
		CreatedAt:         v.CreatedAt,
		UpdatedAt:         v.UpdatedAt,
	}
	if v.HasPlan() {
		out.PlanType = v.ResolvedPlan
	}
	return out
}

type historyJSON struct {
	ID             uuid.UUID             `json:"id"`
	Type           members.HistoryType   `json:"type"`
	SessionsBefore int                   `json:"sessions_before"`
	SessionsAfter  int                   `json:"sessions_after"`
	Amount         decimal.Decimal       `json:"amount"`
	PaymentMethod  members.PaymentMethod `json:"payment_method,omitempty"`
	Notes          string                `json:"notes,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

type planJSON struct {
	ID           uuid.UUID        `json:"id"`
	Name         string           `json:"name"`
	PlanType     members.PlanType `json:"plan_type"`
	Price        decimal.Decimal  `json:"price"`
	DurationDays int              `json:"duration_days,omitempty"`
	Sessions     int              `json:"sessions,omitempty"`
	Active       bool             `json:"active"`
}

type errorBody struct {
	Error     string `json:"error"`
	Remaining *int   `json:"remaining_attempts,omitempty"`
	Imported  *int   `json:"imported,omitempty"`
}

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(members.ErrInvalidInput, err)
	}
	return nil
}

// statusFor maps domain errors onto HTTP. Anything unrecognised is a 500.
func statusFor(err error) int {
	var locked *ratelimit.LockedError
	switch {
	case errors.As(err, &locked):
		return http.StatusTooManyRequests
	case errors.Is(err, auth.ErrWrongPIN):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrNoPIN):
		return http.StatusConflict
	case members.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, members.ErrNotFound):
		return http.StatusNotFound
	case members.IsPrecondition(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var (
		locked *ratelimit.LockedError
		wrong  *auth.WrongPINError
	)
	switch {
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.Itoa(int(locked.Wait.Round(time.Second).Seconds())))
	case errors.As(err, &wrong):
		body.Remaining = &wrong.Remaining
	}

	if status == http.StatusInternalServerError {
		a.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		body.Error = "an error occurred, try again"
	}
	writeJSON(w, status, body)
}
