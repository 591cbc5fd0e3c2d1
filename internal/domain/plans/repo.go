package plans

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/members"
)

// Repo reads the plan catalog. Catalog editing lives outside this service.
type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const planColumns = `id, business_id, name, plan_type, price, duration_days, sessions, active`

func scanPlan(row pgx.Row) (*members.Plan, error) {
	var (
		p  members.Plan
		pt string
	)
	if err := row.Scan(&p.ID, &p.BusinessID, &p.Name, &pt, &p.Price, &p.DurationDays, &p.Sessions, &p.Active); err != nil {
		return nil, err
	}
	p.PlanType = members.PlanType(pt)
	return &p, nil
}

// Get returns members.ErrPlanUnavailable when the plan does not exist for
// this business.
func (r *Repo) Get(ctx context.Context, businessID, id uuid.UUID) (*members.Plan, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE business_id = $1 AND id = $2`, businessID, id)
	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", members.ErrPlanUnavailable, id)
	}
	return p, err
}

// List returns the business catalog; inactive plans only when all is set.
func (r *Repo) List(ctx context.Context, businessID uuid.UUID, all bool) ([]members.Plan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+planColumns+`
		FROM subscription_plans
		WHERE business_id = $1 AND ($2 OR active)
		ORDER BY plan_type, price, name
	`, businessID, all)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []members.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
