package subscriptions

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const planColumns = `id, name, price::float8, tokens_included, max_uploads_per_month, max_file_size_mb,
	priority_support, advanced_voices, custom_voices, is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.TokensIncluded,
		&p.Features.MaxUploadsPerMonth, &p.Features.MaxFileSizeMB,
		&p.Features.PrioritySupport, &p.Features.AdvancedVoices, &p.Features.CustomVoices, &p.IsActive)
	return p, err
}

func (r *PGRepo) ListActivePlans(ctx context.Context) ([]Plan, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+planColumns+`
FROM subscription_plans WHERE is_active ORDER BY price ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PGRepo) GetPlan(ctx context.Context, planID string) (Plan, error) {
	p, err := scanPlan(r.DB.QueryRowContext(ctx, `SELECT `+planColumns+`
FROM subscription_plans WHERE id = $1`, planID))
	if errors.Is(err, sql.ErrNoRows) {
		return Plan{}, ErrPlanNotFound
	}
	return p, err
}

func (r *PGRepo) Activate(ctx context.Context, sub Subscription) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
UPDATE user_subscriptions SET status = 'cancelled' WHERE user_id = $1 AND status = 'active'`, sub.UserID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO user_subscriptions (id, user_id, plan_id, status, current_period_start, current_period_end, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.UserID, sub.PlanID, string(sub.Status), sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PGRepo) GetActive(ctx context.Context, userID string) (Subscription, error) {
	var s Subscription
	var status string
	err := r.DB.QueryRowContext(ctx, `
SELECT id, user_id, plan_id, status, current_period_start, current_period_end, created_at
FROM user_subscriptions
WHERE user_id = $1 AND status = 'active'
ORDER BY created_at DESC
LIMIT 1`, userID).Scan(&s.ID, &s.UserID, &s.PlanID, &status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, ErrSubscriptionNotFound
	}
	if err != nil {
		return Subscription{}, err
	}
	s.Status = Status(status)
	return s, nil
}
