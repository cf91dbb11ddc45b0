package claims

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("claim not found")
	ErrLineItemNotFound = errors.New("claim line item not found")
	// ErrInvalidRequest marks input the caller can fix.
	ErrInvalidRequest = errors.New("invalid claim request")
)

type Repository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	// GetForUpdate locks the claim row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error)
	ListAll(ctx context.Context, f Filter) ([]*Claim, error)
	// Update writes status, appeal and denial fields. Money totals are
	// written only through UpdateTotals.
	Update(ctx context.Context, c *Claim) error
	UpdateTotals(ctx context.Context, id uuid.UUID, t Totals) error

	AddLineItem(ctx context.Context, item *LineItem) error
	// UpdateLineItemPayment writes the payer's adjudication of one line.
	UpdateLineItemPayment(ctx context.Context, item *LineItem) error
	ListLineItems(ctx context.Context, claimID uuid.UUID) ([]LineItem, error)
}
