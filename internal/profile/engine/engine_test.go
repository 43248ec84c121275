package engine

import (
	"fmt"
	"testing"
	"time"

	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

var (
	t0       = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	reviewer = id.UserID(uuid.New())
)

func newItem(title string, evidence int, state models.ItemState) *models.Item {
	it := &models.Item{
		ID:         id.ItemID(uuid.New()),
		Title:      title,
		State:      state,
		Attributes: models.NewAttributeSet(models.TeachingAttributes{}),
		CreatedAt:  t0,
	}
	for i := range evidence {
		it.Evidence = append(it.Evidence, &models.Evidence{
			ID:       id.EvidenceID(uuid.New()),
			ItemID:   it.ID,
			Filename: fmt.Sprintf("%s-%d.pdf", title, i),
		})
	}
	return it
}

func newSection(state models.SectionState, items ...*models.Item) *models.ProfileSection {
	return &models.ProfileSection{
		ID:        id.SectionID(uuid.New()),
		CatalogID: models.CatalogTeaching,
		State:     state,
		Items:     items,
	}
}

type EngineSuite struct {
	suite.Suite
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) decide(section *models.ProfileSection, idx int, outcome models.Outcome, remark string) *models.ProfileSection {
	item, err := DecideItem(section, section.Items[idx], outcome, remark, reviewer, t0)
	s.Require().NoError(err)
	next := section.ShallowCopy()
	next.Items[idx] = item
	return next
}

func (s *EngineSuite) TestSubmitSection() {
	s.Run("empty section fails precondition", func() {
		_, err := SubmitSection(newSection(models.SectionDraft), t0)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("item without evidence fails precondition", func() {
		section := newSection(models.SectionDraft, newItem("a", 1, models.ItemStateDraft), newItem("b", 0, models.ItemStateDraft))
		s.False(CanSubmitSection(section))
		_, err := SubmitSection(section, t0)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("two items with evidence move to review", func() {
		section := newSection(models.SectionDraft, newItem("a", 1, models.ItemStateDraft), newItem("b", 1, models.ItemStateDraft))
		s.True(CanSubmitSection(section))

		next, err := SubmitSection(section, t0)
		s.Require().NoError(err)
		s.Equal(models.SectionInReview, next.State)
		s.Require().NotNil(next.SubmittedAt)
		s.Equal(t0, *next.SubmittedAt)
		for _, it := range next.Items {
			s.Equal(models.ItemInReview, it.State)
		}
		s.Equal(models.SectionDraft, section.State, "input must not be mutated")
		s.Equal(models.ItemStateDraft, section.Items[0].State)
	})

	s.Run("in review and validated sections cannot be resubmitted", func() {
		for _, state := range []models.SectionState{models.SectionInReview, models.SectionValidated} {
			_, err := SubmitSection(newSection(state, newItem("a", 1, models.ItemInReview)), t0)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition), state)
		}
	})

	s.Run("resubmission keeps approved items and reopens the rest", func() {
		approved := newItem("kept", 1, models.ItemApproved)
		approved.Decision = &models.ItemDecision{Outcome: models.OutcomeApproved, ReviewerID: reviewer, DecidedAt: t0}
		rejected := newItem("fixed", 1, models.ItemRejected)
		rejected.Decision = &models.ItemDecision{Outcome: models.OutcomeRejected, Remark: "missing syllabus"}
		section := newSection(models.SectionFlagged, approved, rejected)

		next, err := SubmitSection(section, t0.Add(time.Hour))
		s.Require().NoError(err)
		s.Same(approved, next.Items[0], "untouched approved item is shared")
		s.Equal(models.ItemApproved, next.Items[0].State)
		s.Equal(models.ItemInReview, next.Items[1].State)
		s.Nil(next.Items[1].Decision)
	})
}

func (s *EngineSuite) TestDecideItem() {
	section := newSection(models.SectionInReview, newItem("a", 1, models.ItemInReview))

	s.Run("requires an open review", func() {
		draft := newSection(models.SectionDraft, newItem("a", 1, models.ItemStateDraft))
		_, err := DecideItem(draft, draft.Items[0], models.OutcomeApproved, "", reviewer, t0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("flag and reject need a remark", func() {
		for _, outcome := range []models.Outcome{models.OutcomeFlagged, models.OutcomeRejected} {
			_, err := DecideItem(section, section.Items[0], outcome, "   ", reviewer, t0)
			s.True(dErrors.HasCode(err, dErrors.CodeMissingRemark), outcome)
		}
	})

	s.Run("unknown outcome", func() {
		_, err := DecideItem(section, section.Items[0], models.Outcome("MAYBE"), "", reviewer, t0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("records a pending decision without changing state", func() {
		item, err := DecideItem(section, section.Items[0], models.OutcomeRejected, " missing syllabus ", reviewer, t0)
		s.Require().NoError(err)
		s.Equal(models.ItemInReview, item.State)
		s.Require().NotNil(item.Decision)
		s.Equal("missing syllabus", item.Decision.Remark)
		s.Equal(reviewer, item.Decision.ReviewerID)
		s.Nil(section.Items[0].Decision)
	})
}

func (s *EngineSuite) TestResolveSection() {
	s.Run("mixed decisions flag the section", func() {
		section := newSection(models.SectionInReview, newItem("item1", 1, models.ItemInReview), newItem("item2", 1, models.ItemInReview))
		section = s.decide(section, 0, models.OutcomeApproved, "")
		section = s.decide(section, 1, models.OutcomeRejected, "missing syllabus")

		next, tally, err := ResolveSection(section, "incomplete", t0)
		s.Require().NoError(err)
		s.Equal(models.SectionFlagged, next.State)
		s.Equal("incomplete", next.Remark)
		s.Equal(models.ItemApproved, next.Items[0].State)
		s.Equal(models.ItemRejected, next.Items[1].State)
		s.Equal("missing syllabus", next.Items[1].Remark)
		s.Nil(next.ValidatedAt)
		s.Equal(Resolution{Approved: 1, Rejected: 1}, tally)
	})

	s.Run("all approved validates", func() {
		section := newSection(models.SectionInReview, newItem("item1", 1, models.ItemInReview), newItem("item2", 1, models.ItemInReview))
		section = s.decide(section, 0, models.OutcomeApproved, "")
		section = s.decide(section, 1, models.OutcomeApproved, "")

		next, _, err := ResolveSection(section, "", t0)
		s.Require().NoError(err)
		s.Equal(models.SectionValidated, next.State)
		s.Require().NotNil(next.ValidatedAt)
		s.Equal(t0, *next.ValidatedAt)
		for _, it := range next.Items {
			s.Equal(models.ItemApproved, it.State)
		}
	})

	s.Run("undecided item blocks validation", func() {
		section := newSection(models.SectionInReview, newItem("item1", 1, models.ItemInReview), newItem("item2", 1, models.ItemInReview))
		section = s.decide(section, 0, models.OutcomeApproved, "")

		_, tally, err := ResolveSection(section, "", t0)
		s.True(dErrors.HasCode(err, dErrors.CodeIncompleteReview))
		s.Equal(1, tally.Undecided)
	})

	s.Run("returning without remark fails", func() {
		section := newSection(models.SectionInReview, newItem("item1", 1, models.ItemInReview))
		section = s.decide(section, 0, models.OutcomeFlagged, "blurry scan")

		_, _, err := ResolveSection(section, "  ", t0)
		s.True(dErrors.HasCode(err, dErrors.CodeMissingRemark))
	})

	s.Run("undecided items stay in review on the flagged path", func() {
		section := newSection(models.SectionInReview, newItem("item1", 1, models.ItemInReview), newItem("item2", 1, models.ItemInReview))
		section = s.decide(section, 0, models.OutcomeFlagged, "blurry scan")

		next, _, err := ResolveSection(section, "please rescan", t0)
		s.Require().NoError(err)
		s.Equal(models.ItemFlagged, next.Items[0].State)
		s.Equal(models.ItemInReview, next.Items[1].State)
		s.Same(section.Items[1], next.Items[1])
	})

	s.Run("no open review", func() {
		_, _, err := ResolveSection(newSection(models.SectionDraft, newItem("a", 1, models.ItemStateDraft)), "x", t0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *EngineSuite) TestIdentity() {
	saved := &models.Identity{
		WorkerNumber:     "48213",
		TaxID:            "RUEA800101AB1",
		Affiliation:      "Faculty of Science",
		DisciplinaryArea: "Mathematics",
		State:            models.IdentityPending,
	}

	s.Run("submission requires evidence", func() {
		_, err := SubmitIdentity(saved, t0)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	s.Run("unsaved identity cannot be submitted", func() {
		_, err := SubmitIdentity(nil, t0)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})

	withEvidence := saved.ShallowCopy()
	withEvidence.Evidence = []*models.Evidence{{ID: id.EvidenceID(uuid.New()), Filename: "ine.pdf"}}

	submitted, err := SubmitIdentity(withEvidence, t0)
	s.Require().NoError(err)
	s.Equal(models.IdentityInReview, submitted.State)

	s.Run("cannot submit twice", func() {
		_, err := SubmitIdentity(submitted, t0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("rejection needs remark", func() {
		_, err := ResolveIdentity(submitted, false, "", t0)
		s.True(dErrors.HasCode(err, dErrors.CodeMissingRemark))

		rejected, err := ResolveIdentity(submitted, false, "tax id does not match", t0)
		s.Require().NoError(err)
		s.Equal(models.IdentityRejected, rejected.State)
		s.Equal("tax id does not match", rejected.Remark)
	})

	s.Run("approval validates", func() {
		validated, err := ResolveIdentity(submitted, true, "", t0)
		s.Require().NoError(err)
		s.Equal(models.IdentityValidated, validated.State)

		_, err = ResolveIdentity(validated, true, "", t0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *EngineSuite) TestTouch() {
	approved := newItem("a", 1, models.ItemApproved)
	approved.Decision = &models.ItemDecision{Outcome: models.OutcomeApproved}

	touched := Touch(approved, t0)
	s.Equal(models.ItemStateDraft, touched.State)
	s.Nil(touched.Decision)
	s.Equal(models.ItemApproved, approved.State)

	draft := newItem("b", 0, models.ItemStateDraft)
	later := t0.Add(time.Hour)
	touchedDraft := Touch(draft, later)
	s.NotSame(draft, touchedDraft)
	s.Equal(models.ItemStateDraft, touchedDraft.State)
	s.Equal(later, touchedDraft.UpdatedAt)
}
