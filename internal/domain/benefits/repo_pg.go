package benefits

import (
	"context"
	"errors"
	"fmt"

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

const verificationCols = `id, patient_id, payer_name, payer_id, member_id, group_number, plan_type, notes,
	verification_status,
	inn_deductible_individual, inn_deductible_family, inn_deductible_met, inn_coinsurance_pct, inn_oop_max, inn_oop_met,
	oon_deductible_individual, oon_deductible_family, oon_deductible_met, oon_coinsurance_pct, oon_oop_max, oon_oop_met,
	estimated_allowed_amount, failure_reason, verified_at, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Verification, error) {
	var v Verification
	in, oon := &v.InNetwork, &v.OutOfNetwork
	err := row.Scan(&v.ID, &v.PatientID, &v.PayerName, &v.PayerID, &v.MemberID, &v.GroupNumber, &v.PlanType, &v.Notes,
		&v.Status,
		&in.DeductibleIndividual, &in.DeductibleFamily, &in.DeductibleMet, &in.CoinsurancePct, &in.OOPMax, &in.OOPMet,
		&oon.DeductibleIndividual, &oon.DeductibleFamily, &oon.DeductibleMet, &oon.CoinsurancePct, &oon.OOPMax, &oon.OOPMet,
		&v.EstimatedAllowedAmount, &v.FailureReason, &v.VerifiedAt, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) Create(ctx context.Context, v *Verification) error {
	v.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO benefits_verification (id, patient_id, payer_name, payer_id, member_id,
			group_number, plan_type, notes, verification_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		v.ID, v.PatientID, v.PayerName, v.PayerID, v.MemberID,
		v.GroupNumber, v.PlanType, v.Notes, v.Status,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Verification, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+verificationCols+` FROM benefits_verification WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Verification, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM benefits_verification WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+verificationCols+` FROM benefits_verification
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Verification
	for rows.Next() {
		v, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Complete(ctx context.Context, v *Verification) error {
	in, oon := v.InNetwork, v.OutOfNetwork
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE benefits_verification SET verification_status=$2,
			inn_deductible_individual=$3, inn_deductible_family=$4, inn_deductible_met=$5,
			inn_coinsurance_pct=$6, inn_oop_max=$7, inn_oop_met=$8,
			oon_deductible_individual=$9, oon_deductible_family=$10, oon_deductible_met=$11,
			oon_coinsurance_pct=$12, oon_oop_max=$13, oon_oop_met=$14,
			estimated_allowed_amount=$15, failure_reason=$16, verified_at=$17, updated_at=NOW()
		WHERE id = $1 AND verification_status = 'pending'`,
		v.ID, v.Status,
		in.DeductibleIndividual, in.DeductibleFamily, in.DeductibleMet, in.CoinsurancePct, in.OOPMax, in.OOPMet,
		oon.DeductibleIndividual, oon.DeductibleFamily, oon.DeductibleMet, oon.CoinsurancePct, oon.OOPMax, oon.OOPMet,
		v.EstimatedAllowedAmount, v.FailureReason, v.VerifiedAt)
	if err != nil {
		return fmt.Errorf("complete benefits verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, v.ID); err != nil {
			return err
		}
		return ErrNotPending
	}
	return nil
}
