package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

const claimCols = `id, patient_id, benefits_id, payer_name, payer_claim_number, provider_name, service_date,
	billed_amount, qpa_amount, allowed_amount, paid_amount, patient_responsibility,
	claim_status, idr_eligible, appeal_deadline, denial_reason, submitted_at,
	appeal_1_submitted_at, appeal_2_submitted_at, external_review_requested_at, created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.PatientID, &c.BenefitsID, &c.PayerName, &c.PayerClaimNumber, &c.ProviderName, &c.ServiceDate,
		&c.BilledAmount, &c.QPAAmount, &c.AllowedAmount, &c.PaidAmount, &c.PatientResponsibility,
		&c.Status, &c.IDREligible, &c.AppealDeadline, &c.DenialReason, &c.SubmittedAt,
		&c.Appeal1SubmittedAt, &c.Appeal2SubmittedAt, &c.ExternalReviewRequestedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO claim (id, patient_id, benefits_id, payer_name, payer_claim_number, provider_name,
			service_date, claim_status, idr_eligible)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		c.ID, c.PatientID, c.BenefitsID, c.PayerName, c.PayerClaimNumber, c.ProviderName,
		c.ServiceDate, c.Status, c.IDREligible,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claim WHERE id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claim WHERE id = $1 FOR UPDATE`, id))
}

func whereClause(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.PatientID != "" {
		args = append(args, f.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		args = append(args, f.Statuses)
		conds = append(conds, fmt.Sprintf("claim_status = ANY($%d)", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	where, args := whereClause(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claim`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM claim%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		claimCols, where, len(args)-1, len(args))
	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *repoPG) ListAll(ctx context.Context, f Filter) ([]*Claim, error) {
	where, args := whereClause(f)
	return r.query(ctx, `SELECT `+claimCols+` FROM claim`+where+` ORDER BY created_at`, args...)
}

func (r *repoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Claim, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, c *Claim) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim SET claim_status=$2, idr_eligible=$3, appeal_deadline=$4, denial_reason=$5,
			patient_responsibility=$6, payer_claim_number=$7, submitted_at=$8,
			appeal_1_submitted_at=$9, appeal_2_submitted_at=$10, external_review_requested_at=$11,
			updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Status, c.IDREligible, c.AppealDeadline, c.DenialReason,
		c.PatientResponsibility, c.PayerClaimNumber, c.SubmittedAt,
		c.Appeal1SubmittedAt, c.Appeal2SubmittedAt, c.ExternalReviewRequestedAt)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) UpdateTotals(ctx context.Context, id uuid.UUID, t Totals) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim SET billed_amount=$2, qpa_amount=$3, allowed_amount=$4, paid_amount=$5, updated_at=NOW()
		WHERE id = $1`,
		id, t.TotalCharged, t.TotalQPA, t.TotalAllowed, t.TotalPaid)
	if err != nil {
		return fmt.Errorf("update claim totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) AddLineItem(ctx context.Context, item *LineItem) error {
	item.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO claim_line_item (id, claim_id, procedure_code, modifier, units,
			charge_amount, qpa_amount, allowed_amount, paid_amount, denial_reason_code)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		item.ID, item.ClaimID, item.ProcedureCode, item.Modifier, item.Units,
		item.ChargeAmount, item.QPAAmount, item.AllowedAmount, item.PaidAmount, item.DenialReasonCode,
	).Scan(&item.CreatedAt)
}

func (r *repoPG) UpdateLineItemPayment(ctx context.Context, item *LineItem) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim_line_item SET allowed_amount=$3, paid_amount=$4, denial_reason_code=$5
		WHERE id = $1 AND claim_id = $2`,
		item.ID, item.ClaimID, item.AllowedAmount, item.PaidAmount, item.DenialReasonCode)
	if err != nil {
		return fmt.Errorf("update line item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLineItemNotFound
	}
	return nil
}

func (r *repoPG) ListLineItems(ctx context.Context, claimID uuid.UUID) ([]LineItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, claim_id, procedure_code, modifier, units, charge_amount, qpa_amount,
			allowed_amount, paid_amount, denial_reason_code, created_at
		FROM claim_line_item WHERE claim_id = $1 ORDER BY created_at, id`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ID, &it.ClaimID, &it.ProcedureCode, &it.Modifier, &it.Units,
			&it.ChargeAmount, &it.QPAAmount, &it.AllowedAmount, &it.PaidAmount, &it.DenialReasonCode,
			&it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
