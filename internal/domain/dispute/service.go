package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/desthealth/claims/internal/domain/claims"
	"github.com/desthealth/claims/internal/platform/db"
	"github.com/desthealth/claims/pkg/money"
)

// ClaimStore is the part of the claims service disputes depend on.
type ClaimStore interface {
	Get(ctx context.Context, id uuid.UUID) (*claims.Claim, error)
	ListAll(ctx context.Context, f claims.Filter) ([]*claims.Claim, error)
	RecordAppeal(ctx context.Context, id uuid.UUID, level string) (*claims.Claim, error)
	MarkIDR(ctx context.Context, id uuid.UUID, status string) (*claims.Claim, error)
}

type Service struct {
	repo        Repository
	claims      ClaimStore
	inTx        db.TxRunner
	warningDays int
	now         func() time.Time
	logger      zerolog.Logger
}

func NewService(repo Repository, cs ClaimStore, inTx db.TxRunner, warningDays int, logger zerolog.Logger) *Service {
	return &Service{repo: repo, claims: cs, inTx: inTx, warningDays: warningDays, now: time.Now, logger: logger}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Deadlines returns a classifier pinned to the current time.
func (s *Service) Deadlines() Deadlines {
	return NewDeadlines(s.now(), s.warningDays)
}

func (s *Service) RecordAppeal(ctx context.Context, claimID uuid.UUID, level string) (*claims.Claim, error) {
	return s.claims.RecordAppeal(ctx, claimID, level)
}

// Open starts the open-negotiation period for an eligible disputed claim and
// moves the claim to idr_initiated.
func (s *Service) Open(ctx context.Context, claimID uuid.UUID) (*Case, error) {
	var out *Case
	err := s.inTx(ctx, func(ctx context.Context) error {
		c, err := s.claims.Get(ctx, claimID)
		if err != nil {
			return err
		}
		if !c.IDREligible {
			return fmt.Errorf("%w: claim is not marked idr eligible", ErrNotEligible)
		}
		if !claims.Disputable(c.Status) {
			return fmt.Errorf("%w: a %s claim cannot enter idr", ErrNotEligible, c.Status)
		}
		ic := &Case{
			ClaimID:   claimID,
			Status:    CaseNegotiation,
			QPAAmount: c.QPAAmount,
		}
		if err := s.repo.Create(ctx, ic); err != nil {
			return err
		}
		if _, err := s.claims.MarkIDR(ctx, claimID, claims.StatusIDRInitiated); err != nil {
			return err
		}
		s.logger.Info().Str("claim_id", claimID.String()).Str("idr_case_id", ic.ID.String()).Msg("idr case opened")
		out = ic
		return nil
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.repo.GetByID(ctx, id)
}

// ClaimOf returns the claim behind a case, for ownership checks.
func (s *Service) ClaimOf(ctx context.Context, ic *Case) (*claims.Claim, error) {
	return s.claims.Get(ctx, ic.ClaimID)
}

// advance moves a case forward. Status never goes backwards and never leaves
// a terminal state.
func advance(ic *Case, to string) error {
	if ic.Terminal() {
		return fmt.Errorf("%w: case is %s", ErrInvalidTransition, ic.Status)
	}
	if caseOrder[to] <= caseOrder[ic.Status] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ic.Status, to)
	}
	ic.Status = to
	return nil
}

func (s *Service) update(ctx context.Context, id uuid.UUID, fn func(ic *Case) error) (*Case, error) {
	var out *Case
	err := s.inTx(ctx, func(ctx context.Context) error {
		ic, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from := ic.Status
		if err := fn(ic); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, ic); err != nil {
			return err
		}
		if from != ic.Status {
			s.logger.Info().Str("idr_case_id", id.String()).Str("from", from).Str("to", ic.Status).Msg("idr case status changed")
		}
		out = ic
		return nil
	})
	return out, err
}

// Initiate ends open negotiation and files for arbitration.
func (s *Service) Initiate(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.update(ctx, id, func(ic *Case) error {
		if ic.Status != CaseNegotiation {
			return fmt.Errorf("%w: only a case in negotiation can be initiated", ErrInvalidTransition)
		}
		now := s.now().UTC()
		ic.InitiatedAt = &now
		return advance(ic, CaseInitiated)
	})
}

func (s *Service) SelectEntity(ctx context.Context, id uuid.UUID, req EntityRequest) (*Case, error) {
	entity := strings.TrimSpace(req.IDREntity)
	if entity == "" {
		return nil, fmt.Errorf("%w: idr_entity is required", ErrInvalidRequest)
	}
	if req.IDRFeeAmount != nil && *req.IDRFeeAmount < 0 {
		return nil, fmt.Errorf("%w: idr_fee_amount must not be negative", money.ErrInvalidAmount)
	}
	return s.update(ctx, id, func(ic *Case) error {
		if ic.Status != CaseInitiated {
			return fmt.Errorf("%w: an entity is selected after initiation", ErrInvalidTransition)
		}
		ic.IDREntity = &entity
		if req.OffersDueDate != nil {
			ic.OffersDueDate = req.OffersDueDate
		}
		if req.IDRFeeAmount != nil {
			ic.IDRFeeAmount = req.IDRFeeAmount
		}
		return advance(ic, CaseEntitySelected)
	})
}

// SubmitOffers records either or both final offers. An offer, once on file,
// cannot be replaced. The case reaches offers_submitted when both are in.
func (s *Service) SubmitOffers(ctx context.Context, id uuid.UUID, req OffersRequest) (*Case, error) {
	if req.ProviderOfferAmount == nil && req.PayerOfferAmount == nil {
		return nil, fmt.Errorf("%w: at least one offer is required", ErrInvalidRequest)
	}
	for _, o := range []*money.Cents{req.ProviderOfferAmount, req.PayerOfferAmount} {
		if o != nil && *o <= 0 {
			return nil, fmt.Errorf("%w: offers must be positive", money.ErrInvalidAmount)
		}
	}
	return s.update(ctx, id, func(ic *Case) error {
		if ic.Status != CaseEntitySelected {
			return fmt.Errorf("%w: offers are accepted only after entity selection", ErrInvalidTransition)
		}
		if req.ProviderOfferAmount != nil {
			if ic.ProviderOfferAmount != nil {
				return fmt.Errorf("%w: provider offer already submitted", ErrInvalidTransition)
			}
			ic.ProviderOfferAmount = req.ProviderOfferAmount
		}
		if req.PayerOfferAmount != nil {
			if ic.PayerOfferAmount != nil {
				return fmt.Errorf("%w: payer offer already submitted", ErrInvalidTransition)
			}
			ic.PayerOfferAmount = req.PayerOfferAmount
		}
		if req.DecisionDueDate != nil {
			ic.DecisionDueDate = req.DecisionDueDate
		}
		if ic.ProviderOfferAmount != nil && ic.PayerOfferAmount != nil {
			return advance(ic, CaseOffersSubmitted)
		}
		return nil
	})
}

// RecordDecision resolves the case. The prevailing party is derived from the
// offers and the non-prevailing party is charged the entity fee. The claim
// moves to idr_resolved in the same transaction.
func (s *Service) RecordDecision(ctx context.Context, id uuid.UUID, req DecisionRequest) (*Case, error) {
	if req.DecisionAmount <= 0 {
		return nil, fmt.Errorf("%w: decision_amount must be positive", money.ErrInvalidAmount)
	}
	var out *Case
	err := s.inTx(ctx, func(ctx context.Context) error {
		ic, err := s.update(ctx, id, func(ic *Case) error {
			if ic.Status != CaseOffersSubmitted {
				return fmt.Errorf("%w: a decision needs both offers on file", ErrInvalidTransition)
			}
			ic.DecisionAmount = money.Ptr(req.DecisionAmount)
			party := PrevailingParty(*ic.ProviderOfferAmount, *ic.PayerOfferAmount, ic.QPAAmount, req.DecisionAmount)
			ic.PrevailingParty = &party
			loser := PartyPayer
			if party == PartyPayer {
				loser = PartyProvider
			}
			ic.IDRFeePaidBy = &loser
			return advance(ic, CaseResolved)
		})
		if err != nil {
			return err
		}
		if _, err := s.claims.MarkIDR(ctx, ic.ClaimID, claims.StatusIDRResolved); err != nil {
			return err
		}
		out = ic
		return nil
	})
	return out, err
}

// Withdraw abandons an unresolved case. The claim keeps its status.
func (s *Service) Withdraw(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.update(ctx, id, func(ic *Case) error {
		if ic.Terminal() {
			return fmt.Errorf("%w: case is %s", ErrInvalidTransition, ic.Status)
		}
		ic.Status = CaseWithdrawn
		return nil
	})
}

// Board lists every claim in the dispute pipeline with its stage, offers and
// deadline flags. patientID scopes the board; empty means all patients.
func (s *Service) Board(ctx context.Context, patientID string) (*Board, error) {
	list, err := s.claims.ListAll(ctx, claims.Filter{PatientID: patientID, Statuses: BoardStatuses})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(list))
	for i, c := range list {
		ids[i] = c.ID
	}
	cases, err := s.repo.ListByClaimIDs(ctx, ids)
	if err != nil && !errors.Is(err, ErrCaseNotFound) {
		return nil, err
	}
	return BuildBoard(list, cases, s.Deadlines()), nil
}
