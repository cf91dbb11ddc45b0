package dispute

import "github.com/desthealth/claims/internal/domain/claims"

// Stage is where a disputed claim sits in the escalation path. It is derived
// from claim and case fields on every read and never stored.
type Stage string

const (
	StageDenied         Stage = "denied"
	StageAppeal1        Stage = "appeal_1"
	StageAppeal2        Stage = "appeal_2"
	StageExternalReview Stage = "external_review"
	StageIDR            Stage = "idr"
	StageResolved       Stage = "resolved"
)

// Stages lists every stage in escalation order.
var Stages = []Stage{StageDenied, StageAppeal1, StageAppeal2, StageExternalReview, StageIDR, StageResolved}

// ClassifyStage picks the furthest stage the evidence supports. idrCase may be nil.
func ClassifyStage(c *claims.Claim, idrCase *Case) Stage {
	if idrCase != nil {
		if idrCase.DecisionAmount != nil {
			return StageResolved
		}
		if idrCase.IDREntity != nil || idrCase.HasOffer() {
			return StageIDR
		}
	}
	switch {
	case c.ExternalReviewRequestedAt != nil:
		return StageExternalReview
	case c.Appeal2SubmittedAt != nil:
		return StageAppeal2
	case c.Appeal1SubmittedAt != nil:
		return StageAppeal1
	}
	return StageDenied
}
