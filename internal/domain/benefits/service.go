package benefits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo     Repository
	validity time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService builds the verification service. validityDays is the window after
// which a verified snapshot reads as expired.
func NewService(repo Repository, validityDays int, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		validity: time.Duration(validityDays) * 24 * time.Hour,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock replaces the wall clock used for expiry.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Validity returns the configured snapshot validity window.
func (s *Service) Validity() time.Duration { return s.validity }

// Request records a new pending verification for patientID.
func (s *Service) Request(ctx context.Context, patientID string, req IntakeRequest) (*Verification, error) {
	if patientID == "" {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidRequest)
	}
	req.PayerName = strings.TrimSpace(req.PayerName)
	req.MemberID = strings.TrimSpace(req.MemberID)
	if req.PayerName == "" {
		return nil, fmt.Errorf("%w: payer_name is required", ErrInvalidRequest)
	}
	if req.MemberID == "" {
		return nil, fmt.Errorf("%w: member_id is required", ErrInvalidRequest)
	}

	v := &Verification{
		PatientID:   patientID,
		PayerName:   req.PayerName,
		PayerID:     req.PayerID,
		MemberID:    req.MemberID,
		GroupNumber: req.GroupNumber,
		PlanType:    req.PlanType,
		Notes:       req.Notes,
		Status:      StatusPending,
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info().Str("verification_id", v.ID.String()).Str("payer", v.PayerName).Msg("benefits verification requested")
	return v, nil
}

// Complete records the administrative outcome. Only pending records can be
// completed, and only to verified or failed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, req CompletionRequest) (*Verification, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Status != StatusPending {
		return nil, ErrNotPending
	}

	switch req.Status {
	case StatusVerified:
		if err := req.InNetwork.Validate("in_network"); err != nil {
			return nil, err
		}
		if err := req.OutOfNetwork.Validate("out_of_network"); err != nil {
			return nil, err
		}
		if req.EstimatedAllowedAmount != nil && *req.EstimatedAllowedAmount <= 0 {
			return nil, fmt.Errorf("%w: estimated_allowed_amount must be positive", ErrInvalidRequest)
		}
		now := s.now().UTC()
		v.InNetwork = req.InNetwork
		v.OutOfNetwork = req.OutOfNetwork
		v.EstimatedAllowedAmount = req.EstimatedAllowedAmount
		v.VerifiedAt = &now
		v.FailureReason = nil
	case StatusFailed:
		if req.FailureReason == nil || strings.TrimSpace(*req.FailureReason) == "" {
			return nil, fmt.Errorf("%w: failure_reason is required when verification fails", ErrInvalidRequest)
		}
		v.FailureReason = req.FailureReason
	default:
		return nil, fmt.Errorf("%w: verification_status must be %q or %q, got %q", ErrInvalidRequest, StatusVerified, StatusFailed, req.Status)
	}
	v.Status = req.Status

	if err := s.repo.Complete(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info().Str("verification_id", v.ID.String()).Str("status", v.Status).Msg("benefits verification completed")
	v.applyExpiry(s.now(), s.validity)
	return v, nil
}

// Get returns a verification with its effective status as of now.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Verification, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v.applyExpiry(s.now(), s.validity)
	return v, nil
}

// GetRaw returns the stored record without applying expiry. The estimator
// evaluates expiry itself against its own clock.
func (s *Service) GetRaw(ctx context.Context, id uuid.UUID) (*Verification, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Verification, int, error) {
	items, total, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for _, v := range items {
		v.applyExpiry(now, s.validity)
	}
	return items, total, nil
}
