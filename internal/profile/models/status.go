package models

// SectionState is the review state of a profile section.
type SectionState string

const (
	SectionDraft     SectionState = "DRAFT"
	SectionInReview  SectionState = "IN_REVIEW"
	SectionValidated SectionState = "VALIDATED"
	SectionFlagged   SectionState = "FLAGGED"
)

var sectionTransitions = map[SectionState][]SectionState{
	SectionDraft:     {SectionInReview},
	SectionInReview:  {SectionValidated, SectionFlagged},
	SectionFlagged:   {SectionInReview},
	SectionValidated: nil,
}

func (s SectionState) IsValid() bool {
	_, ok := sectionTransitions[s]
	return ok
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s SectionState) CanTransitionTo(next SectionState) bool {
	for _, allowed := range sectionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Editable reports whether items in a section in this state may be added,
// changed or removed.
func (s SectionState) Editable() bool {
	return s == SectionDraft || s == SectionFlagged
}

func (s SectionState) String() string { return string(s) }

// ItemState is the review state of a single item.
type ItemState string

const (
	ItemStateDraft ItemState = "DRAFT"
	ItemInReview   ItemState = "IN_REVIEW"
	ItemApproved   ItemState = "APPROVED"
	ItemRejected   ItemState = "REJECTED"
	ItemFlagged    ItemState = "FLAGGED"
)

func (s ItemState) IsValid() bool {
	switch s {
	case ItemStateDraft, ItemInReview, ItemApproved, ItemRejected, ItemFlagged:
		return true
	}
	return false
}

// Returned reports whether the item was sent back to the subject.
func (s ItemState) Returned() bool {
	return s == ItemRejected || s == ItemFlagged
}

func (s ItemState) String() string { return string(s) }

// IdentityState is the review state of the identity record.
type IdentityState string

const (
	IdentityPending   IdentityState = "PENDING"
	IdentityInReview  IdentityState = "IN_REVIEW"
	IdentityValidated IdentityState = "VALIDATED"
	IdentityRejected  IdentityState = "REJECTED"
)

var identityTransitions = map[IdentityState][]IdentityState{
	IdentityPending:   {IdentityInReview},
	IdentityInReview:  {IdentityValidated, IdentityRejected},
	IdentityRejected:  {IdentityPending},
	IdentityValidated: nil,
}

func (s IdentityState) IsValid() bool {
	_, ok := identityTransitions[s]
	return ok
}

func (s IdentityState) CanTransitionTo(next IdentityState) bool {
	for _, allowed := range identityTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Editable reports whether the identity fields and evidence may change.
func (s IdentityState) Editable() bool {
	return s == IdentityPending || s == IdentityRejected
}

func (s IdentityState) String() string { return string(s) }

// Outcome is a reviewer's verdict on one item.
type Outcome string

const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomeFlagged  Outcome = "FLAGGED"
	OutcomeRejected Outcome = "REJECTED"
)

func (o Outcome) IsValid() bool {
	return o == OutcomeApproved || o == OutcomeFlagged || o == OutcomeRejected
}

// RequiresRemark reports whether the reviewer must explain the outcome.
func (o Outcome) RequiresRemark() bool {
	return o == OutcomeFlagged || o == OutcomeRejected
}

// ItemState maps the outcome to the state the item takes when the review
// pass is finalized.
func (o Outcome) ItemState() ItemState {
	switch o {
	case OutcomeApproved:
		return ItemApproved
	case OutcomeFlagged:
		return ItemFlagged
	case OutcomeRejected:
		return ItemRejected
	}
	return ItemInReview
}

func (o Outcome) String() string { return string(o) }
