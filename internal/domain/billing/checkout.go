package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/desthealth/claims/internal/domain/claims"
	"github.com/desthealth/claims/internal/platform/processor"
	"github.com/desthealth/claims/pkg/money"
)

var (
	ErrUnknownTier = errors.New("unknown subscription tier")
	ErrNothingDue  = errors.New("claim has no patient balance due")
	ErrBadRequest  = errors.New("exactly one of tier or claim_id is required")
)

// ClaimLookup is the part of the claims service checkout needs.
type ClaimLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*claims.Claim, error)
}

// CheckoutRequest names either a subscription tier or a claim whose patient
// balance is to be paid.
type CheckoutRequest struct {
	Tier    string     `json:"tier,omitempty"`
	ClaimID *uuid.UUID `json:"claim_id,omitempty"`
	Email   string     `json:"email,omitempty"`
}

type CheckoutURLs struct {
	Success string
	Cancel  string
}

// Service proxies hosted checkout and serves the read side of the ledger.
type Service struct {
	repo      Repository
	processor Processor
	claims    ClaimLookup
	tiers     map[string]money.Cents
	urls      CheckoutURLs
	logger    zerolog.Logger
}

func NewService(repo Repository, proc Processor, cl ClaimLookup, tiers map[string]money.Cents, urls CheckoutURLs, logger zerolog.Logger) *Service {
	return &Service{repo: repo, processor: proc, claims: cl, tiers: tiers, urls: urls, logger: logger}
}

// Tiers lists the configured tier names.
func (s *Service) Tiers() []string {
	out := make([]string, 0, len(s.tiers))
	for name := range s.tiers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Service) customerFor(ctx context.Context, userID, email string) (string, error) {
	c, err := s.repo.GetCustomer(ctx, userID)
	if err == nil {
		return c.StripeCustomerID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	id, err := s.processor.CreateCustomer(ctx, userID, email)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	if err := s.repo.SaveCustomer(ctx, &Customer{UserID: userID, StripeCustomerID: id}); err != nil {
		return "", fmt.Errorf("save customer: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Msg("processor customer created")
	return id, nil
}

// Checkout opens a hosted checkout session and returns its URL.
func (s *Service) Checkout(ctx context.Context, userID string, req CheckoutRequest) (string, error) {
	tier := strings.TrimSpace(req.Tier)
	if (tier == "") == (req.ClaimID == nil) {
		return "", ErrBadRequest
	}

	params := processor.CheckoutParams{
		UserID:     userID,
		SuccessURL: s.urls.Success,
		CancelURL:  s.urls.Cancel,
	}
	if tier != "" {
		price, ok := s.tiers[tier]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownTier, tier)
		}
		params.Mode = processor.ModeSubscription
		params.ProductName = tier + " plan"
		params.AmountCents = int64(price)
		params.Metadata = map[string]string{"tier": tier}
	} else {
		c, err := s.claims.Get(ctx, *req.ClaimID)
		if err != nil {
			return "", err
		}
		if c.PatientID != userID {
			return "", claims.ErrNotFound
		}
		due := money.ValueOr(c.PatientResponsibility, 0)
		if due <= 0 {
			return "", ErrNothingDue
		}
		params.Mode = processor.ModePayment
		params.ProductName = "Claim balance " + c.PayerName
		params.AmountCents = int64(due)
		params.Metadata = map[string]string{"claim_id": c.ID.String()}
	}

	customerID, err := s.customerFor(ctx, userID, req.Email)
	if err != nil {
		return "", err
	}
	params.CustomerID = customerID

	session, err := s.processor.CreateCheckoutSession(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return session.URL, nil
}

func (s *Service) Subscription(ctx context.Context, userID string) (*Subscription, error) {
	return s.repo.GetSubscriptionByUser(ctx, userID)
}

func (s *Service) Payments(ctx context.Context, userID string, limit, offset int) ([]*PaymentHistory, int, error) {
	return s.repo.ListPayments(ctx, userID, limit, offset)
}
