package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/business"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/members"
	"github.com/NEXESMISSION/kestiv2-sub001/internal/export"
)

type PlanLister interface {
	List(ctx context.Context, businessID uuid.UUID, all bool) ([]members.Plan, error)
}

type PINChecker interface {
	Verify(ctx context.Context, key, pin, encodedHash string) error
}

// API serves the member desk for one business at a time.
type API struct {
	members *members.Service
	plans   PlanLister
	pins    PINChecker
	log     *slog.Logger
}

func NewAPI(svc *members.Service, plans PlanLister, pins PINChecker, log *slog.Logger) *API {
	return &API{members: svc, plans: plans, pins: pins, log: log}
}

func (a *API) Routes(r chi.Router) {
	r.Get("/plans", a.listPlans)
	r.Post("/pin/verify", a.verifyPIN)

	r.Route("/members", func(r chi.Router) {
		r.Get("/", a.listMembers)
		r.Post("/", a.registerMember)
		r.Post("/import", a.importMembers)
		r.Get("/export", a.exportMembers)

		r.Route("/{memberID}", func(r chi.Router) {
			r.Get("/", a.getMember)
			r.Get("/history", a.history)
			r.Post("/checkin", a.checkIn)
			r.Post("/use-session", a.useSession)
			r.Post("/add-sessions", a.addSessions)
			r.Post("/renew", a.renew)
			r.Post("/freeze", a.freeze)
			r.Post("/unfreeze", a.unfreeze)
			r.Post("/pay-debt", a.payDebt)
			r.Post("/cancel", a.cancel)
		})
	})
}

func (a *API) ids(r *http.Request) (businessID, memberID uuid.UUID, err error) {
	if businessID, err = uuid.Parse(chi.URLParam(r, "businessID")); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: business id", members.ErrInvalidInput)
	}
	if p := chi.URLParam(r, "memberID"); p != "" {
		if memberID, err = uuid.Parse(p); err != nil {
			return uuid.Nil, uuid.Nil, fmt.Errorf("%w: member id", members.ErrInvalidInput)
		}
	}
	return businessID, memberID, nil
}

func (a *API) listPlans(w http.ResponseWriter, r *http.Request) {
	bid, _, err := a.ids(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, err := a.plans.List(r.Context(), bid, r.URL.Query().Get("all") == "true")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]planJSON, 0, len(list))
	for _, p := range list {
		out = append(out, planJSON{
			ID:           p.ID,
			Name:         p.Name,
			PlanType:     p.PlanType,
			Price:        p.Price,
			DurationDays: p.DurationDays,
			Sessions:     p.Sessions,
			Active:       p.Active,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) verifyPIN(w http.ResponseWriter, r *http.Request) {
	bid, _, err := a.ids(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req struct {
		PIN string `json:"pin"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	var hash string
	if b, ok := business.FromContext(r.Context()); ok {
		hash = b.PINHash
	}
	if err := a.pins.Verify(r.Context(), "pin:"+bid.String(), req.PIN, hash); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request) {
	bid, _, err := a.ids(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	views, err := a.members.List(r.Context(), bid)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	status := members.Status(r.URL.Query().Get("status"))
	out := make([]memberJSON, 0, len(views))
	for _, v := range views {
		if status != "" && v.Status != status {
			continue
		}
		out = append(out, toMemberJSON(v))
	}
	writeJSON(w, http.StatusOK, out)
}

type paymentRequest struct {
	Amount        decimal.Decimal       `json:"amount"`
	PaymentMethod members.PaymentMethod `json:"payment_method"`
}

func (p paymentRequest) payment() members.Payment {
	return members.Payment{Amount: p.Amount, Method: p.PaymentMethod}
}

func (a *API) registerMember(w http.ResponseWriter, r *http.Request) {
	bid, _, err := a.ids(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req struct {
		Code   string     `json:"code"`
		Name   string     `json:"name"`
		Phone  string     `json:"phone"`
		PlanID *uuid.UUID `json:"plan_id"`
		paymentRequest
	}
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	m, err := a.members.Register(r.Context(), bid, members.RegisterInput{
		Code:    req.Code,
		Name:    req.Name,
		Phone:   req.Phone,
		PlanID:  req.PlanID,
		Payment: req.payment(),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberJSON(members.NewView(*m, a.members.Now())))
}

func (a *API) importMembers(w http.ResponseWriter, r *http.Request) {
	bid, _, err := a.ids(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var records []members.Record
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16*maxBody))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		a.fail(w, r, errors.Join(members.ErrInvalidInput, err))
		return
	}

	n, err := a.members.Import(r.Context(), bid, records)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, status, errorBody{Error: err.Error(), Imported: &n})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"imported": n})
}

func (a *API) exportMembers(w http.ResponseWriter, r *http.Request) {
	bid, _, err := a.ids(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	views, err := a.members.List(r.Context(), bid)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Members(&buf, views); err != nil {
		a.fail(w, r, err)
		return
	}
	name := fmt.Sprintf("members-%s.xlsx", a.members.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	_, _ = buf.WriteTo(w)
}

func (a *API) getMember(w http.ResponseWriter, r *http.Request) {
	bid, mid, err := a.ids(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	v, err := a.members.Get(r.Context(), bid, mid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberJSON(*v))
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	bid, mid, err := a.ids(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items, err := a.members.History(r.Context(), bid, mid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]historyJSON, 0, len(items))
	for _, h := range items {
		out = append(out, historyJSON{
			ID:             h.ID,
			Type:           h.Type,
			SessionsBefore: h.SessionsBefore,
			SessionsAfter:  h.SessionsAfter,
			Amount:         h.Amount,
			PaymentMethod:  h.PaymentMethod,
			Notes:          h.Notes,
			CreatedAt:      h.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// member runs one member operation and replies with the resulting view.
func (a *API) member(w http.ResponseWriter, r *http.Request, req any,
	op func(ctx context.Context, bid, mid uuid.UUID) (*members.View, error)) {

	bid, mid, err := a.ids(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if req != nil {
		if err := decodeJSON(w, r, req); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	v, err := op(r.Context(), bid, mid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberJSON(*v))
}

func (a *API) checkIn(w http.ResponseWriter, r *http.Request) {
	a.member(w, r, nil, a.members.CheckIn)
}

func (a *API) useSession(w http.ResponseWriter, r *http.Request) {
	a.member(w, r, nil, a.members.UseSession)
}

func (a *API) addSessions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int    `json:"count"`
		Notes string `json:"notes"`
		paymentRequest
	}
	a.member(w, r, &req, func(ctx context.Context, bid, mid uuid.UUID) (*members.View, error) {
		return a.members.AddSessions(ctx, bid, mid, req.Count, req.payment(), req.Notes)
	})
}

func (a *API) renew(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID uuid.UUID `json:"plan_id"`
		paymentRequest
	}
	a.member(w, r, &req, func(ctx context.Context, bid, mid uuid.UUID) (*members.View, error) {
		return a.members.Renew(ctx, bid, mid, req.PlanID, req.payment())
	})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (a *API) freeze(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	a.member(w, r, &req, func(ctx context.Context, bid, mid uuid.UUID) (*members.View, error) {
		return a.members.Freeze(ctx, bid, mid, req.Reason)
	})
}

func (a *API) unfreeze(w http.ResponseWriter, r *http.Request) {
	a.member(w, r, nil, a.members.Unfreeze)
}

func (a *API) payDebt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode   members.DebtPaymentMode `json:"mode"`
		Amount decimal.Decimal         `json:"amount"`
	}
	a.member(w, r, &req, func(ctx context.Context, bid, mid uuid.UUID) (*members.View, error) {
		return a.members.PayDebt(ctx, bid, mid, req.Mode, req.Amount)
	})
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	a.member(w, r, &req, func(ctx context.Context, bid, mid uuid.UUID) (*members.View, error) {
		return a.members.Cancel(ctx, bid, mid, req.Reason)
	})
}
