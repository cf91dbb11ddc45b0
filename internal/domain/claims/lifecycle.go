package claims

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid claim status transition")

// transitions lists the statuses reachable from each status. An appealed claim
// goes back to the payer and can come out paid, partially paid or denied again.
var transitions = map[string][]string{
	StatusDraft:         {StatusSubmitted, StatusClosed},
	StatusSubmitted:     {StatusAcknowledged, StatusInReview, StatusDenied, StatusClosed},
	StatusAcknowledged:  {StatusInReview, StatusDenied, StatusClosed},
	StatusInReview:      {StatusPaid, StatusPartiallyPaid, StatusDenied},
	StatusPaid:          {StatusClosed},
	StatusPartiallyPaid: {StatusAppealed, StatusIDRInitiated, StatusClosed},
	StatusDenied:        {StatusAppealed, StatusIDRInitiated, StatusClosed},
	StatusAppealed:      {StatusPaid, StatusPartiallyPaid, StatusDenied, StatusIDRInitiated, StatusClosed},
	StatusIDRInitiated:  {StatusIDRResolved, StatusClosed},
	StatusIDRResolved:   {StatusClosed},
	StatusClosed:        nil,
}

// ValidStatus reports whether s is a known claim status.
func ValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a claim may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to string) error {
	if !ValidStatus(to) {
		return fmt.Errorf("%w: unknown claim status %q", ErrInvalidRequest, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// idrStatus reports whether s is one of the arbitration statuses, which only
// an IDR case may set.
func idrStatus(s string) bool {
	return s == StatusIDRInitiated || s == StatusIDRResolved
}

// Disputable reports whether a claim is in a status from which an appeal or
// IDR can start.
func Disputable(status string) bool {
	switch status {
	case StatusDenied, StatusPartiallyPaid, StatusAppealed:
		return true
	}
	return false
}
