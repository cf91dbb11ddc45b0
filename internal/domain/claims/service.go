package claims

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/desthealth/claims/internal/platform/db"
	"github.com/desthealth/claims/pkg/money"
)

// Appeal levels recorded against a claim.
const (
	AppealLevel1   = "appeal_1"
	AppealLevel2   = "appeal_2"
	ExternalReview = "external_review"
)

type Service struct {
	repo   Repository
	inTx   db.TxRunner
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(repo Repository, inTx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, inTx: inTx, now: time.Now, logger: logger}
}

// SetClock replaces the wall clock used for submission and appeal timestamps.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) Create(ctx context.Context, patientID string, req CreateRequest) (*Claim, error) {
	if patientID == "" {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.PayerName) == "" {
		return nil, fmt.Errorf("%w: payer_name is required", ErrInvalidRequest)
	}
	c := &Claim{
		PatientID:        patientID,
		BenefitsID:       req.BenefitsID,
		PayerName:        strings.TrimSpace(req.PayerName),
		PayerClaimNumber: req.PayerClaimNumber,
		ProviderName:     req.ProviderName,
		ServiceDate:      req.ServiceDate,
		IDREligible:      req.IDREligible,
		Status:           StatusDraft,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.repo.GetByID(ctx, id)
}

// Detail returns the claim with its line items, live totals and warnings.
func (s *Service) Detail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildDetail(c, items), nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	for _, st := range f.Statuses {
		if !ValidStatus(st) {
			return nil, 0, fmt.Errorf("%w: unknown claim status %q", ErrInvalidRequest, st)
		}
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, f Filter) ([]*Claim, error) {
	return s.repo.ListAll(ctx, f)
}

func (s *Service) Summary(ctx context.Context, f Filter) (PipelineSummary, error) {
	list, err := s.repo.ListAll(ctx, f)
	if err != nil {
		return PipelineSummary{}, err
	}
	return Summarize(list), nil
}

func validateLineItem(it *LineItem) error {
	it.ProcedureCode = strings.TrimSpace(it.ProcedureCode)
	if it.ProcedureCode == "" {
		return fmt.Errorf("%w: procedure_code is required", ErrInvalidRequest)
	}
	if it.Units == 0 {
		it.Units = 1
	}
	if it.Units < 0 {
		return fmt.Errorf("%w: units must be positive", ErrInvalidRequest)
	}
	if it.ChargeAmount < 0 || it.QPAAmount < 0 || it.AllowedAmount < 0 || it.PaidAmount < 0 {
		return fmt.Errorf("%w: line item amounts must not be negative", money.ErrInvalidAmount)
	}
	return nil
}

// AddLineItems appends items to a claim and rewrites the claim totals in the
// same transaction, so stored totals always equal the line-item sums.
func (s *Service) AddLineItems(ctx context.Context, claimID uuid.UUID, items []LineItem) (*Detail, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one line item is required", ErrInvalidRequest)
	}
	for i := range items {
		if err := validateLineItem(&items[i]); err != nil {
			return nil, fmt.Errorf("line item %d: %w", i, err)
		}
	}

	var detail *Detail
	err := s.inTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if c.Status == StatusClosed {
			return fmt.Errorf("%w: claim is closed", ErrInvalidTransition)
		}
		for i := range items {
			items[i].ClaimID = claimID
			if err := s.repo.AddLineItem(ctx, &items[i]); err != nil {
				return fmt.Errorf("add line item: %w", err)
			}
		}
		detail, err = s.rewriteTotals(ctx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.warnIfFlagged(claimID, detail)
	return detail, nil
}

// rewriteTotals re-aggregates the claim's line items and stores the result.
// Callers hold the claim row lock.
func (s *Service) rewriteTotals(ctx context.Context, c *Claim) (*Detail, error) {
	all, err := s.repo.ListLineItems(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	t := Aggregate(all)
	if err := s.repo.UpdateTotals(ctx, c.ID, t); err != nil {
		return nil, err
	}
	c.ApplyTotals(t)
	return BuildDetail(c, all), nil
}

func (s *Service) warnIfFlagged(id uuid.UUID, d *Detail) {
	if len(d.Warnings) > 0 {
		s.logger.Warn().Str("claim_id", id.String()).Strs("warnings", d.Warnings).Msg("claim totals flagged")
	}
}

// Adjudicate posts the payer's allowed and paid amounts for one line item and
// rewrites the claim totals in the same transaction.
func (s *Service) Adjudicate(ctx context.Context, claimID, itemID uuid.UUID, adj Adjudication) (*Detail, error) {
	if adj.AllowedAmount < 0 || adj.PaidAmount < 0 {
		return nil, fmt.Errorf("%w: adjudicated amounts must not be negative", money.ErrInvalidAmount)
	}

	var detail *Detail
	err := s.inTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if c.Status == StatusClosed {
			return fmt.Errorf("%w: claim is closed", ErrInvalidTransition)
		}
		item := &LineItem{
			ID:               itemID,
			ClaimID:          claimID,
			AllowedAmount:    adj.AllowedAmount,
			PaidAmount:       adj.PaidAmount,
			DenialReasonCode: adj.DenialReasonCode,
		}
		if err := s.repo.UpdateLineItemPayment(ctx, item); err != nil {
			return err
		}
		detail, err = s.rewriteTotals(ctx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.warnIfFlagged(claimID, detail)
	return detail, nil
}

// Transition moves a claim along its lifecycle. The IDR statuses are refused
// here; a dispute case sets them through MarkIDR.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, change StatusChange) (*Claim, error) {
	if idrStatus(change.Status) {
		return nil, fmt.Errorf("%w: %s is set by the claim's IDR case", ErrInvalidTransition, change.Status)
	}
	return s.transition(ctx, id, change)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, change StatusChange) (*Claim, error) {
	var out *Claim
	err := s.inTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(c.Status, change.Status); err != nil {
			return err
		}

		switch change.Status {
		case StatusSubmitted:
			now := s.now().UTC()
			c.SubmittedAt = &now
		case StatusDenied:
			if change.DenialReason == nil || strings.TrimSpace(*change.DenialReason) == "" {
				return fmt.Errorf("%w: denial_reason is required when a claim is denied", ErrInvalidRequest)
			}
		}
		if change.DenialReason != nil {
			c.DenialReason = change.DenialReason
		}
		if change.AppealDeadline != nil {
			c.AppealDeadline = change.AppealDeadline
		}
		if change.PatientResponsibility != nil {
			if *change.PatientResponsibility < 0 {
				return fmt.Errorf("%w: patient_responsibility must not be negative", money.ErrInvalidAmount)
			}
			c.PatientResponsibility = change.PatientResponsibility
		}
		if change.IDREligible != nil {
			c.IDREligible = *change.IDREligible
		}
		if change.PayerClaimNumber != nil {
			c.PayerClaimNumber = change.PayerClaimNumber
		}

		from := c.Status
		c.Status = change.Status
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		s.logger.Info().Str("claim_id", id.String()).Str("from", from).Str("to", c.Status).Msg("claim status changed")
		out = c
		return nil
	})
	return out, err
}

// RecordAppeal stamps an appeal level on a disputable claim and moves it to
// appealed. A second-level appeal or external review needs a first-level
// appeal on file, and each level can be recorded once.
func (s *Service) RecordAppeal(ctx context.Context, id uuid.UUID, level string) (*Claim, error) {
	var out *Claim
	err := s.inTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !Disputable(c.Status) {
			return fmt.Errorf("%w: a %s claim cannot be appealed", ErrInvalidTransition, c.Status)
		}

		now := s.now().UTC()
		switch level {
		case AppealLevel1:
			if c.Appeal1SubmittedAt != nil {
				return fmt.Errorf("%w: first-level appeal already recorded", ErrInvalidTransition)
			}
			c.Appeal1SubmittedAt = &now
		case AppealLevel2:
			if c.Appeal1SubmittedAt == nil || c.Appeal2SubmittedAt != nil {
				return fmt.Errorf("%w: second-level appeal needs exactly one prior appeal", ErrInvalidTransition)
			}
			c.Appeal2SubmittedAt = &now
		case ExternalReview:
			if c.Appeal1SubmittedAt == nil || c.ExternalReviewRequestedAt != nil {
				return fmt.Errorf("%w: external review needs an internal appeal and can be requested once", ErrInvalidTransition)
			}
			c.ExternalReviewRequestedAt = &now
		default:
			return fmt.Errorf("%w: unknown appeal level %q", ErrInvalidRequest, level)
		}

		c.Status = StatusAppealed
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		s.logger.Info().Str("claim_id", id.String()).Str("level", level).Msg("appeal recorded")
		out = c
		return nil
	})
	return out, err
}

// MarkIDR moves a claim into or out of arbitration. It runs inside the caller's
// transaction when there is one.
func (s *Service) MarkIDR(ctx context.Context, id uuid.UUID, status string) (*Claim, error) {
	if !idrStatus(status) {
		return nil, fmt.Errorf("%w: %s is not an IDR status", ErrInvalidRequest, status)
	}
	return s.transition(ctx, id, StatusChange{Status: status})
}
