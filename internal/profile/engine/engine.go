// Package engine holds the review state machine for sections, items and the
// identity record. Every function is pure: it takes values and a clock
// reading and returns new values or a coded error. Inputs are never mutated;
// results share unchanged items with their input.
package engine

import (
	"strings"
	"time"

	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
)

// CanSubmitSection reports whether section may be sent for review.
func CanSubmitSection(section *models.ProfileSection) bool {
	return CheckSubmitSection(section) == nil
}

// CheckSubmitSection explains why section cannot be submitted, or returns nil.
func CheckSubmitSection(section *models.ProfileSection) error {
	if !section.State.CanTransitionTo(models.SectionInReview) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "section in state %s cannot be submitted", section.State)
	}
	if len(section.Items) == 0 {
		return dErrors.New(dErrors.CodePreconditionFailed, "section has no items")
	}
	for _, it := range section.Items {
		if len(it.Evidence) == 0 {
			return dErrors.Newf(dErrors.CodePreconditionFailed, "item %q has no evidence", it.Title)
		}
	}
	return nil
}

// SubmitSection moves section to IN_REVIEW and opens a new review pass.
//
// Items already APPROVED keep their state and carry an APPROVED decision into
// the new pass. Every other item moves to IN_REVIEW with no decision.
func SubmitSection(section *models.ProfileSection, now time.Time) (*models.ProfileSection, error) {
	if err := CheckSubmitSection(section); err != nil {
		return nil, err
	}

	next := section.ShallowCopy()
	next.State = models.SectionInReview
	next.SubmittedAt = timePtr(now)
	next.ReviewedAt = nil
	next.ValidatedAt = nil

	for i, it := range section.Items {
		if it.State == models.ItemApproved {
			if it.Decision == nil || it.Decision.Outcome != models.OutcomeApproved {
				carried := it.ShallowCopy()
				carried.Decision = &models.ItemDecision{Outcome: models.OutcomeApproved, DecidedAt: now}
				next.Items[i] = carried
			}
			continue
		}
		reviewed := it.ShallowCopy()
		reviewed.State = models.ItemInReview
		reviewed.Decision = nil
		next.Items[i] = reviewed
	}
	return next, nil
}

// DecideItem records the reviewer's pending verdict on item. The item's state
// changes only when the pass is finalized by ResolveSection. A decision may
// be replaced until then.
func DecideItem(section *models.ProfileSection, item *models.Item, outcome models.Outcome, remark string, reviewer id.UserID, now time.Time) (*models.Item, error) {
	if section.State != models.SectionInReview {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "items can only be decided while the section is %s, not %s", models.SectionInReview, section.State)
	}
	if !outcome.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown decision %q", outcome)
	}
	remark = strings.TrimSpace(remark)
	if outcome.RequiresRemark() && remark == "" {
		return nil, dErrors.Newf(dErrors.CodeMissingRemark, "a remark is required to mark an item %s", outcome)
	}

	next := item.ShallowCopy()
	next.Decision = &models.ItemDecision{
		Outcome:    outcome,
		Remark:     remark,
		ReviewerID: reviewer,
		DecidedAt:  now,
	}
	return next, nil
}

// Resolution summarizes the outcome of a finalized review pass.
type Resolution struct {
	Approved  int
	Flagged   int
	Rejected  int
	Undecided int
}

// Tally counts the pending decisions in section.
func Tally(section *models.ProfileSection) Resolution {
	var r Resolution
	for _, it := range section.Items {
		if it.Decision == nil {
			r.Undecided++
			continue
		}
		switch it.Decision.Outcome {
		case models.OutcomeApproved:
			r.Approved++
		case models.OutcomeFlagged:
			r.Flagged++
		case models.OutcomeRejected:
			r.Rejected++
		}
	}
	return r
}

// Returned reports whether the pass sends the section back to the subject.
func (r Resolution) Returned() bool { return r.Flagged+r.Rejected > 0 }

// ResolveSection finalizes the current review pass.
//
// If every item is APPROVED the section becomes VALIDATED. If any item is
// FLAGGED or REJECTED the section becomes FLAGGED, which needs a remark;
// decided items take their decision and undecided ones stay IN_REVIEW.
// Validating with an undecided item fails with IncompleteReview.
func ResolveSection(section *models.ProfileSection, remark string, now time.Time) (*models.ProfileSection, Resolution, error) {
	if section.State != models.SectionInReview {
		return nil, Resolution{}, dErrors.Newf(dErrors.CodeInvalidTransition, "section in state %s has no open review", section.State)
	}
	tally := Tally(section)
	remark = strings.TrimSpace(remark)

	next := section.ShallowCopy()
	next.ReviewedAt = timePtr(now)

	if tally.Returned() {
		if remark == "" {
			return nil, tally, dErrors.New(dErrors.CodeMissingRemark, "a section remark is required to return the section")
		}
		next.State = models.SectionFlagged
		next.Remark = remark
		next.ValidatedAt = nil
		for i, it := range section.Items {
			if it.Decision == nil {
				continue
			}
			next.Items[i] = applyDecision(it)
		}
		return next, tally, nil
	}

	if tally.Undecided > 0 {
		return nil, tally, dErrors.Newf(dErrors.CodeIncompleteReview, "%d item(s) have no decision", tally.Undecided)
	}
	next.State = models.SectionValidated
	next.Remark = remark
	next.ValidatedAt = timePtr(now)
	for i, it := range section.Items {
		next.Items[i] = applyDecision(it)
	}
	return next, tally, nil
}

func applyDecision(it *models.Item) *models.Item {
	state := it.Decision.Outcome.ItemState()
	if it.State == state && it.Remark == it.Decision.Remark {
		return it
	}
	next := it.ShallowCopy()
	next.State = state
	next.Remark = it.Decision.Remark
	return next
}

// Touch returns a copy of item stamped with now and reset to DRAFT after the
// subject edits it in a returned section. DRAFT items keep their state.
func Touch(item *models.Item, now time.Time) *models.Item {
	next := item.ShallowCopy()
	next.UpdatedAt = now
	if item.State != models.ItemStateDraft {
		next.State = models.ItemStateDraft
		next.Decision = nil
	}
	return next
}

// SubmitIdentity sends a saved identity for review.
func SubmitIdentity(identity *models.Identity, now time.Time) (*models.Identity, error) {
	if identity == nil {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "identity has not been saved")
	}
	if identity.State != models.IdentityPending {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "identity in state %s cannot be submitted", identity.State)
	}
	if len(identity.Evidence) == 0 {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "identity needs at least one evidence file")
	}
	draft := models.IdentityDraft{
		WorkerNumber:     identity.WorkerNumber,
		TaxID:            identity.TaxID,
		Affiliation:      identity.Affiliation,
		DisciplinaryArea: identity.DisciplinaryArea,
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	next := identity.ShallowCopy()
	next.State = models.IdentityInReview
	next.SubmittedAt = timePtr(now)
	next.UpdatedAt = now
	return next, nil
}

// ResolveIdentity approves or rejects an identity under review. Rejection
// needs a remark.
func ResolveIdentity(identity *models.Identity, approved bool, remark string, now time.Time) (*models.Identity, error) {
	if identity == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
	}
	if identity.State != models.IdentityInReview {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "identity in state %s is not under review", identity.State)
	}
	remark = strings.TrimSpace(remark)
	if !approved && remark == "" {
		return nil, dErrors.New(dErrors.CodeMissingRemark, "a remark is required to reject the identity")
	}

	next := identity.ShallowCopy()
	next.Remark = remark
	next.UpdatedAt = now
	if approved {
		next.State = models.IdentityValidated
	} else {
		next.State = models.IdentityRejected
	}
	return next, nil
}

func timePtr(t time.Time) *time.Time { return &t }
