package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Repo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool, tracer: otel.Tracer("clubdesk/members")}
}

const memberColumns = `id, business_id, code, name, phone, plan_type, plan_name, plan_start_at, expires_at,
	sessions_total, sessions_used, is_frozen, frozen_at, freeze_days, debt, version, created_at, updated_at`

func scanMember(row pgx.Row) (*Member, error) {
	var (
		m        Member
		code     *string
		planType *string
	)
	if err := row.Scan(
		&m.ID,
		&m.BusinessID,
		&code,
		&m.Name,
		&m.Phone,
		&planType,
		&m.PlanName,
		&m.PlanStartAt,
		&m.ExpiresAt,
		&m.SessionsTotal,
		&m.SessionsUsed,
		&m.IsFrozen,
		&m.FrozenAt,
		&m.FreezeDays,
		&m.Debt,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if code != nil {
		m.Code = *code
	}
	if planType != nil {
		m.PlanType = PlanType(*planType)
	}
	return &m, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Repo) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (r *Repo) Get(ctx context.Context, businessID, id uuid.UUID) (m *Member, err error) {
	ctx, span := r.tracer.Start(ctx, "members.get", trace.WithAttributes(
		attribute.String("member.id", id.String()),
	))
	defer func() { r.finish(span, err) }()

	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE business_id = $1 AND id = $2`, businessID, id)
	m, err = scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *Repo) List(ctx context.Context, businessID uuid.UUID) (out []Member, err error) {
	ctx, span := r.tracer.Start(ctx, "members.list", trace.WithAttributes(
		attribute.String("business.id", businessID.String()),
	))
	defer func() { r.finish(span, err) }()

	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+` FROM members WHERE business_id = $1 ORDER BY name, created_at`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	span.SetAttributes(attribute.Int("members.count", len(out)))
	return out, rows.Err()
}

// ListActive returns every unfrozen member with a plan, across businesses.
func (r *Repo) ListActive(ctx context.Context) (out []Member, err error) {
	ctx, span := r.tracer.Start(ctx, "members.list_active")
	defer func() { r.finish(span, err) }()

	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+` FROM members
		WHERE is_frozen = FALSE AND (plan_type IS NOT NULL OR sessions_total > 0 OR expires_at IS NOT NULL)
		ORDER BY business_id, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Create inserts a new member with its opening history and sale, if any, in
// one transaction.
func (r *Repo) Create(ctx context.Context, m Member, h *HistoryItem, t *Transaction) (err error) {
	ctx, span := r.tracer.Start(ctx, "members.create", trace.WithAttributes(
		attribute.String("member.id", m.ID.String()),
		attribute.String("business.id", m.BusinessID.String()),
	))
	defer func() { r.finish(span, err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `
		INSERT INTO members (id, business_id, code, name, phone, plan_type, plan_name, plan_start_at, expires_at,
		                     sessions_total, sessions_used, is_frozen, frozen_at, freeze_days, debt, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,1)
	`, m.ID, m.BusinessID, nullString(m.Code), m.Name, m.Phone, nullString(string(m.PlanType)), m.PlanName,
		m.PlanStartAt, m.ExpiresAt, m.SessionsTotal, m.SessionsUsed, m.IsFrozen, m.FrozenAt, m.FreezeDays, m.Debt,
	); err != nil {
		return insertMemberErr(err)
	}
	if h != nil {
		if err = insertHistory(ctx, tx, *h); err != nil {
			return err
		}
	}
	if t != nil {
		if err = insertTransaction(ctx, tx, *t); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Apply writes a transition. The member update only matches the version that
// was read, and session use re-checks the balance in SQL, so two concurrent
// writers cannot both succeed. History and payment rows commit with it.
func (r *Repo) Apply(ctx context.Context, c Change) (m *Member, err error) {
	ctx, span := r.tracer.Start(ctx, "members.apply", trace.WithAttributes(
		attribute.String("member.id", c.After.ID.String()),
		attribute.String("member.action", string(c.Action)),
		attribute.Int("expected.version", c.Before.Version),
	))
	defer func() { r.finish(span, err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a := c.After
	tag, err := tx.Exec(ctx, `
		UPDATE members
		SET plan_type = $3, plan_name = $4, plan_start_at = $5, expires_at = $6,
		    sessions_total = $7, sessions_used = $8,
		    is_frozen = $9, frozen_at = $10, freeze_days = $11,
		    debt = $12,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND business_id = $2 AND version = $13
		  AND ($14 = FALSE OR sessions_used + 1 <= sessions_total)
	`, a.ID, a.BusinessID, nullString(string(a.PlanType)), a.PlanName, a.PlanStartAt, a.ExpiresAt,
		a.SessionsTotal, a.SessionsUsed, a.IsFrozen, a.FrozenAt, a.FreezeDays, a.Debt,
		c.Before.Version, c.ConsumesSession)
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetAttributes(attribute.Bool("conflict.detected", true))
		return nil, ErrVersionConflict
	}

	if err = insertHistory(ctx, tx, c.History); err != nil {
		return nil, err
	}
	if c.Transaction != nil {
		if err = insertTransaction(ctx, tx, *c.Transaction); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	a.Version = c.Before.Version + 1
	return &a, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, h HistoryItem) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO subscription_history (id, member_id, business_id, type, sessions_before, sessions_after,
		                                  amount, payment_method, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, h.ID, h.MemberID, h.BusinessID, string(h.Type), h.SessionsBefore, h.SessionsAfter,
		h.Amount, nullString(string(h.PaymentMethod)), h.Notes, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, business_id, member_id, type, amount, payment_method, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, t.ID, t.BusinessID, t.MemberID, string(t.Type), t.Amount, string(t.PaymentMethod), t.Notes, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *Repo) History(ctx context.Context, businessID, memberID uuid.UUID) (out []HistoryItem, err error) {
	ctx, span := r.tracer.Start(ctx, "members.history", trace.WithAttributes(
		attribute.String("member.id", memberID.String()),
	))
	defer func() { r.finish(span, err) }()

	rows, err := r.pool.Query(ctx, `
		SELECT id, member_id, business_id, type, sessions_before, sessions_after, amount,
		       COALESCE(payment_method, ''), notes, created_at
		FROM subscription_history
		WHERE business_id = $1 AND member_id = $2
		ORDER BY created_at DESC
	`, businessID, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			h      HistoryItem
			typ    string
			method string
		)
		if err := rows.Scan(&h.ID, &h.MemberID, &h.BusinessID, &typ, &h.SessionsBefore, &h.SessionsAfter,
			&h.Amount, &method, &h.Notes, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Type = HistoryType(typ)
		h.PaymentMethod = PaymentMethod(method)
		out = append(out, h)
	}
	return out, rows.Err()
}

const codeUniqueConstraint = "members_business_code_uq"

// insertMemberErr tells a taken member code apart from any other unique
// violation on insert.
func insertMemberErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == codeUniqueConstraint {
			return ErrDuplicateCode
		}
		return fmt.Errorf("%w: %s", ErrDuplicateID, pgErr.ConstraintName)
	}
	return fmt.Errorf("insert member: %w", err)
}
