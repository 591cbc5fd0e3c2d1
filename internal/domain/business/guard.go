package business

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Lookup interface {
	Get(ctx context.Context, id uuid.UUID) (*Business, error)
}

// Guard gates every business-scoped route by the account's own
// subscription and pause state.
type Guard struct {
	lookup Lookup
	log    *slog.Logger
	now    func() time.Time
	param  string
}

func NewGuard(lookup Lookup, log *slog.Logger) *Guard {
	return &Guard{lookup: lookup, log: log, now: time.Now, param: "businessID"}
}

func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

type ctxKey struct{}

// FromContext returns the business admitted by the guard.
func FromContext(ctx context.Context) (*Business, bool) {
	b, ok := ctx.Value(ctxKey{}).(*Business)
	return b, ok
}

func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, g.param))
		if err != nil {
			http.Error(w, "invalid business id", http.StatusBadRequest)
			return
		}

		b, err := g.lookup.Get(r.Context(), id)
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, "business not found", http.StatusNotFound)
			return
		case err != nil:
			g.log.Error("business lookup failed", "business_id", id, "err", err)
			http.Error(w, "an error occurred, try again", http.StatusInternalServerError)
			return
		}

		switch err := Access(*b, g.now()); {
		case errors.Is(err, ErrPaused):
			http.Error(w, err.Error(), http.StatusLocked)
			return
		case errors.Is(err, ErrSubscriptionExpired):
			http.Error(w, err.Error(), http.StatusPaymentRequired)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, b)))
	})
}
