package dispute

import (
	"context"
	"errors"

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

const caseCols = `id, claim_id, status, idr_entity, qpa_amount, provider_offer_amount, payer_offer_amount,
	decision_amount, prevailing_party, initiated_at, offers_due_date, decision_due_date,
	idr_fee_amount, idr_fee_paid_by, created_at, updated_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.ClaimID, &c.Status, &c.IDREntity, &c.QPAAmount, &c.ProviderOfferAmount, &c.PayerOfferAmount,
		&c.DecisionAmount, &c.PrevailingParty, &c.InitiatedAt, &c.OffersDueDate, &c.DecisionDueDate,
		&c.IDRFeeAmount, &c.IDRFeePaidBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Case) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO idr_case (id, claim_id, status, qpa_amount)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		c.ID, c.ClaimID, c.Status, c.QPAAmount,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrCaseExists
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM idr_case WHERE id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM idr_case WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) GetByClaimID(ctx context.Context, claimID uuid.UUID) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM idr_case WHERE claim_id = $1`, claimID))
}

func (r *repoPG) ListByClaimIDs(ctx context.Context, claimIDs []uuid.UUID) ([]*Case, error) {
	if len(claimIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+caseCols+` FROM idr_case WHERE claim_id = ANY($1)`, claimIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, c *Case) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE idr_case SET status=$2, idr_entity=$3, provider_offer_amount=$4, payer_offer_amount=$5,
			decision_amount=$6, prevailing_party=$7, initiated_at=$8, offers_due_date=$9,
			decision_due_date=$10, idr_fee_amount=$11, idr_fee_paid_by=$12, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Status, c.IDREntity, c.ProviderOfferAmount, c.PayerOfferAmount,
		c.DecisionAmount, c.PrevailingParty, c.InitiatedAt, c.OffersDueDate,
		c.DecisionDueDate, c.IDRFeeAmount, c.IDRFeePaidBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}
