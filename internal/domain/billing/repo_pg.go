package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/desthealth/claims/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const subCols = `id, user_id, stripe_subscription_id, stripe_customer_id, tier, status,
	current_period_start, current_period_end, cancel_at_period_end, last_event_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.StripeSubscriptionID, &s.StripeCustomerID, &s.Tier, &s.Status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.LastEventAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) UpsertSubscription(ctx context.Context, s *Subscription) (bool, error) {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO subscription (id, user_id, stripe_subscription_id, stripe_customer_id, tier, status,
			current_period_start, current_period_end, cancel_at_period_end, last_event_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (user_id) DO UPDATE SET
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			last_event_at = EXCLUDED.last_event_at,
			updated_at = NOW()
		WHERE (subscription.stripe_subscription_id = EXCLUDED.stripe_subscription_id
				AND subscription.last_event_at <= EXCLUDED.last_event_at)
			OR (subscription.stripe_subscription_id <> EXCLUDED.stripe_subscription_id
				AND (EXCLUDED.status <> 'cancelled' OR subscription.status = 'cancelled'))
		RETURNING id, created_at, updated_at`,
		uuid.New(), s.UserID, s.StripeSubscriptionID, s.StripeCustomerID, s.Tier, s.Status,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd, s.LastEventAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repoPG) GetSubscriptionByUser(ctx context.Context, userID string) (*Subscription, error) {
	return scanSubscription(r.conn(ctx).QueryRow(ctx, `SELECT `+subCols+` FROM subscription WHERE user_id = $1`, userID))
}

func (r *repoPG) GetSubscriptionByStripeID(ctx context.Context, id string) (*Subscription, error) {
	return scanSubscription(r.conn(ctx).QueryRow(ctx, `SELECT `+subCols+` FROM subscription WHERE stripe_subscription_id = $1`, id))
}

func (r *repoPG) UpdateSubscription(ctx context.Context, s *Subscription) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE subscription SET stripe_customer_id=$2, tier=$3, status=$4, current_period_start=$5,
			current_period_end=$6, cancel_at_period_end=$7, last_event_at=$8, updated_at=NOW()
		WHERE stripe_subscription_id = $1 AND status <> 'cancelled' AND last_event_at <= $8`,
		s.StripeSubscriptionID, s.StripeCustomerID, s.Tier, s.Status, s.CurrentPeriodStart,
		s.CurrentPeriodEnd, s.CancelAtPeriodEnd, s.LastEventAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) MarkPastDue(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE subscription SET status='past_due', last_event_at=$2, updated_at=NOW()
		WHERE stripe_subscription_id = $1 AND status <> 'cancelled' AND last_event_at <= $2`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) InsertPayment(ctx context.Context, p *PaymentHistory) (bool, error) {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payment_history (id, stripe_invoice_id, user_id, stripe_subscription_id, amount_paid,
			amount_due, currency, status, attempt_count, period_start, period_end)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (stripe_invoice_id, status, attempt_count) DO NOTHING
		RETURNING created_at`,
		p.ID, p.StripeInvoiceID, p.UserID, p.StripeSubscriptionID, p.AmountPaid,
		p.AmountDue, p.Currency, p.Status, p.AttemptCount, p.PeriodStart, p.PeriodEnd,
	).Scan(&p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repoPG) ListPayments(ctx context.Context, userID string, limit, offset int) ([]*PaymentHistory, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payment_history WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, stripe_invoice_id, user_id, stripe_subscription_id, amount_paid, amount_due, currency,
			status, attempt_count, period_start, period_end, created_at
		FROM payment_history WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*PaymentHistory
	for rows.Next() {
		var p PaymentHistory
		if err := rows.Scan(&p.ID, &p.StripeInvoiceID, &p.UserID, &p.StripeSubscriptionID, &p.AmountPaid, &p.AmountDue,
			&p.Currency, &p.Status, &p.AttemptCount, &p.PeriodStart, &p.PeriodEnd, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &p)
	}
	return out, total, rows.Err()
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.UserID, &c.StripeCustomerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) GetCustomer(ctx context.Context, userID string) (*Customer, error) {
	return scanCustomer(r.conn(ctx).QueryRow(ctx,
		`SELECT user_id, stripe_customer_id, created_at FROM billing_customer WHERE user_id = $1`, userID))
}

func (r *repoPG) GetCustomerByStripeID(ctx context.Context, id string) (*Customer, error) {
	return scanCustomer(r.conn(ctx).QueryRow(ctx,
		`SELECT user_id, stripe_customer_id, created_at FROM billing_customer WHERE stripe_customer_id = $1`, id))
}

func (r *repoPG) SaveCustomer(ctx context.Context, c *Customer) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO billing_customer (user_id, stripe_customer_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, c.UserID, c.StripeCustomerID)
	return err
}

func (r *repoPG) GetEvent(ctx context.Context, eventID string) (*WebhookEvent, error) {
	var e WebhookEvent
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT event_id, event_type, outcome, processed_at FROM webhook_event WHERE event_id = $1`, eventID,
	).Scan(&e.EventID, &e.EventType, &e.Outcome, &e.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repoPG) RecordEvent(ctx context.Context, e *WebhookEvent) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO webhook_event (event_id, event_type, outcome, processed_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING`, e.EventID, e.EventType, string(e.Outcome), e.ProcessedAt)
	return err
}
