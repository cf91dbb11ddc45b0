package dispute

import (
	"github.com/google/uuid"

	"github.com/desthealth/claims/internal/domain/claims"
)

// BoardStatuses are the claim statuses that put a claim on the dispute board.
var BoardStatuses = []string{
	claims.StatusDenied,
	claims.StatusPartiallyPaid,
	claims.StatusAppealed,
	claims.StatusIDRInitiated,
	claims.StatusIDRResolved,
}

type BoardEntry struct {
	Claim     *claims.Claim  `json:"claim"`
	Stage     Stage          `json:"stage"`
	Case      *Case          `json:"idr_case,omitempty"`
	Offers    *OfferAnalysis `json:"offers,omitempty"`
	Deadlines []DeadlineFlag `json:"deadlines"`
}

type Board struct {
	Entries []BoardEntry  `json:"entries"`
	Total   int           `json:"total"`
	Counts  map[Stage]int `json:"counts"`
	// Approaching and Overdue count entries with at least one such deadline.
	Approaching int `json:"approaching"`
	Overdue     int `json:"overdue"`
}

// BuildBoard classifies every claim against one Deadlines value.
func BuildBoard(list []*claims.Claim, cases []*Case, d Deadlines) *Board {
	byClaim := make(map[uuid.UUID]*Case, len(cases))
	for _, ic := range cases {
		byClaim[ic.ClaimID] = ic
	}

	b := &Board{Entries: make([]BoardEntry, 0, len(list)), Counts: make(map[Stage]int, len(Stages))}
	for _, st := range Stages {
		b.Counts[st] = 0
	}
	for _, c := range list {
		ic := byClaim[c.ID]
		e := BoardEntry{Claim: c, Stage: ClassifyStage(c, ic), Case: ic, Deadlines: []DeadlineFlag{}}

		var flags []*DeadlineFlag
		if e.Stage != StageResolved && c.Status != claims.StatusIDRResolved {
			flags = append(flags, d.Flag("appeal_deadline", c.AppealDeadline))
		}
		if ic != nil {
			a := ic.Analyze()
			e.Offers = &a
			if ic.Status != CaseResolved && ic.Status != CaseWithdrawn {
				flags = append(flags, d.Flag("offers_due_date", ic.OffersDueDate), d.Flag("decision_due_date", ic.DecisionDueDate))
			}
		}
		var approaching, overdue bool
		for _, f := range flags {
			if f == nil {
				continue
			}
			e.Deadlines = append(e.Deadlines, *f)
			approaching = approaching || f.Approaching
			overdue = overdue || f.Overdue
		}
		if approaching {
			b.Approaching++
		}
		if overdue {
			b.Overdue++
		}
		b.Counts[e.Stage]++
		b.Entries = append(b.Entries, e)
	}
	return b
}
