package dispute

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrCaseNotFound      = errors.New("idr case not found")
	ErrCaseExists        = errors.New("claim already has an idr case")
	ErrInvalidTransition = errors.New("invalid idr case transition")
	ErrNotEligible       = errors.New("claim is not eligible for idr")
	ErrInvalidRequest    = errors.New("invalid idr request")
)

type Repository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Case, error)
	GetByClaimID(ctx context.Context, claimID uuid.UUID) (*Case, error)
	ListByClaimIDs(ctx context.Context, claimIDs []uuid.UUID) ([]*Case, error)
	Update(ctx context.Context, c *Case) error
}
