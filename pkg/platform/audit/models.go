package audit

import (
	"context"
	"time"

	id "dossier/pkg/domain"
)

// EventCategory classifies audit entries by their primary purpose.
// This enables different retention policies and routing per sink.
type EventCategory string

const (
	// CategoryReview covers decisions made by reviewers. These carry the
	// outcome of an evaluation and are kept for the lifetime of the profile.
	CategoryReview EventCategory = "review"

	// CategorySubmission covers content changes made by the profile subject.
	CategorySubmission EventCategory = "submission"

	// CategoryOperations covers everything else (role switches, seeding).
	CategoryOperations EventCategory = "operations"
)

// Action is the kind of activity an entry records.
type Action string

const (
	// Subject activity
	ActionItemCreated       Action = "item_created"
	ActionItemUpdated       Action = "item_updated"
	ActionItemDeleted       Action = "item_deleted"
	ActionEvidenceUploaded  Action = "evidence_uploaded"
	ActionEvidenceRemoved   Action = "evidence_removed"
	ActionSectionSubmitted  Action = "section_submitted"
	ActionIdentityUpdated   Action = "identity_updated"
	ActionIdentitySubmitted Action = "identity_submitted"

	// Reviewer activity
	ActionItemApproved      Action = "item_approved"
	ActionItemRejected      Action = "item_rejected"
	ActionItemFlagged       Action = "item_flagged"
	ActionSectionValidated  Action = "section_validated"
	ActionSectionFlagged    Action = "section_flagged"
	ActionIdentityValidated Action = "identity_validated"
	ActionIdentityRejected  Action = "identity_rejected"

	// Operational activity
	ActionProfileCreated Action = "profile_created"
	ActionRoleSelected   Action = "role_selected"
)

var actionCategories = map[Action]EventCategory{
	ActionItemCreated:       CategorySubmission,
	ActionItemUpdated:       CategorySubmission,
	ActionItemDeleted:       CategorySubmission,
	ActionEvidenceUploaded:  CategorySubmission,
	ActionEvidenceRemoved:   CategorySubmission,
	ActionSectionSubmitted:  CategorySubmission,
	ActionIdentityUpdated:   CategorySubmission,
	ActionIdentitySubmitted: CategorySubmission,

	ActionItemApproved:      CategoryReview,
	ActionItemRejected:      CategoryReview,
	ActionItemFlagged:       CategoryReview,
	ActionSectionValidated:  CategoryReview,
	ActionSectionFlagged:    CategoryReview,
	ActionIdentityValidated: CategoryReview,
	ActionIdentityRejected:  CategoryReview,

	ActionProfileCreated: CategoryOperations,
	ActionRoleSelected:   CategoryOperations,
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

func (a Action) String() string { return string(a) }

// IsKnown reports whether a is one of the declared actions.
func (a Action) IsKnown() bool {
	_, ok := actionCategories[a]
	return ok
}

// TargetKind names the entity an entry is about.
type TargetKind string

const (
	TargetProfile  TargetKind = "profile"
	TargetSection  TargetKind = "section"
	TargetItem     TargetKind = "item"
	TargetEvidence TargetKind = "evidence"
	TargetIdentity TargetKind = "identity"
	TargetSession  TargetKind = "session"
)

// ActorSnapshot freezes who the actor was when the entry was written, so
// later renames do not rewrite history.
type ActorSnapshot struct {
	Name string  `json:"name"`
	Role id.Role `json:"role"`
}

// Entry is one append-only activity record. Keep it transport-agnostic so
// stores and sinks can fan out.
type Entry struct {
	ID            id.EntryID        `json:"id"`
	ActorID       id.UserID         `json:"actor_id"`
	ActorSnapshot ActorSnapshot     `json:"actor"`
	Action        Action            `json:"action"`
	TargetKind    TargetKind        `json:"target_kind"`
	TargetID      string            `json:"target_id"`
	Details       map[string]string `json:"details,omitempty"`
	Category      EventCategory     `json:"category"`
	RequestID     string            `json:"request_id,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Filter narrows a List call. Zero fields match everything.
type Filter struct {
	ActorID    id.UserID
	Action     Action
	TargetKind TargetKind
	TargetID   string
	Limit      int
}

// DefaultListLimit bounds List when the caller passes no limit.
const DefaultListLimit = 100

// Matches reports whether e satisfies every non-zero field of f.
func (f Filter) Matches(e Entry) bool {
	if !f.ActorID.IsNil() && e.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.TargetKind != "" && e.TargetKind != f.TargetKind {
		return false
	}
	if f.TargetID != "" && e.TargetID != f.TargetID {
		return false
	}
	return true
}

// EffectiveLimit returns Limit, or DefaultListLimit when Limit is not positive.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store persists entries and lists them newest-first.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// Sink is a write-only destination, such as a stream topic.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}
