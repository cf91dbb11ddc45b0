package benefits

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("benefits verification not found")
	ErrNotPending = errors.New("benefits verification is no longer pending")
	// ErrInvalidRequest marks input the caller can fix.
	ErrInvalidRequest = errors.New("invalid benefits request")
)

type Repository interface {
	Create(ctx context.Context, v *Verification) error
	GetByID(ctx context.Context, id uuid.UUID) (*Verification, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Verification, int, error)
	// Complete writes the outcome of a pending verification. It returns
	// ErrNotPending when the row exists but has already been completed.
	Complete(ctx context.Context, v *Verification) error
}
