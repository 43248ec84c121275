package models

import (
	"testing"
	"time"

	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionStateTransitions(t *testing.T) {
	assert.True(t, SectionDraft.CanTransitionTo(SectionInReview))
	assert.True(t, SectionInReview.CanTransitionTo(SectionValidated))
	assert.True(t, SectionInReview.CanTransitionTo(SectionFlagged))
	assert.True(t, SectionFlagged.CanTransitionTo(SectionInReview))

	assert.False(t, SectionDraft.CanTransitionTo(SectionValidated))
	assert.False(t, SectionValidated.CanTransitionTo(SectionInReview))
	assert.False(t, SectionInReview.CanTransitionTo(SectionDraft))

	assert.True(t, SectionDraft.Editable())
	assert.True(t, SectionFlagged.Editable())
	assert.False(t, SectionInReview.Editable())
	assert.False(t, SectionValidated.Editable())
	assert.False(t, SectionState("ARCHIVED").IsValid())
}

func TestIdentityStateTransitions(t *testing.T) {
	assert.True(t, IdentityPending.CanTransitionTo(IdentityInReview))
	assert.True(t, IdentityInReview.CanTransitionTo(IdentityRejected))
	assert.True(t, IdentityRejected.CanTransitionTo(IdentityPending))
	assert.False(t, IdentityValidated.CanTransitionTo(IdentityPending))
	assert.True(t, IdentityRejected.Editable())
	assert.False(t, IdentityInReview.Editable())
}

func TestItemStates(t *testing.T) {
	for _, s := range []ItemState{ItemStateDraft, ItemInReview, ItemApproved, ItemRejected, ItemFlagged} {
		assert.True(t, s.IsValid(), s)
	}
	assert.Equal(t, "DRAFT", ItemStateDraft.String())
	assert.False(t, ItemStateDraft.Returned())
	assert.True(t, ItemFlagged.Returned())
	assert.False(t, ItemState("ARCHIVED").IsValid())

	draft := ItemDraft{Title: " Linear Algebra I "}.Normalize()
	assert.Equal(t, "Linear Algebra I", draft.Title)
}

func TestOutcome(t *testing.T) {
	assert.False(t, OutcomeApproved.RequiresRemark())
	assert.True(t, OutcomeFlagged.RequiresRemark())
	assert.True(t, OutcomeRejected.RequiresRemark())
	assert.Equal(t, ItemRejected, OutcomeRejected.ItemState())
	assert.False(t, Outcome("MAYBE").IsValid())
}

func TestCatalog(t *testing.T) {
	sections := Catalog()
	require.Len(t, sections, 8)
	for i, s := range sections {
		assert.Equal(t, i+1, s.Order)
	}

	sections[0].Name = "changed"
	fresh, ok := LookupSection(CatalogIdentity)
	require.True(t, ok)
	assert.Equal(t, "Academic Identity", fresh.Name, "catalog must not be mutable through Catalog()")

	_, err := ParseCatalogID("nope")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestNewProfile(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewProfile(id.ProfileID(uuid.New()), id.UserID(uuid.New()), SubjectRef{Name: "Prof. Ana"},
		func() id.SectionID { return id.SectionID(uuid.New()) }, now)

	require.Len(t, p.Sections, CatalogSize)
	for i, s := range p.Sections {
		assert.Equal(t, SectionDraft, s.State)
		assert.Equal(t, catalog[i].ID, s.CatalogID)
		assert.Equal(t, p.ID, s.ProfileID)
		assert.Empty(t, s.Items)
	}
	assert.Nil(t, p.Identity)
	assert.Equal(t, now, p.CreatedAt)
}

func TestUploadPolicy(t *testing.T) {
	policy := DefaultUploadPolicy()
	ok := FileUpload{Filename: "cv.pdf", MediaType: "application/pdf", Size: 1024, StorageRef: "blob://cv"}

	assert.Nil(t, policy.Check(ok))

	withParams := ok
	withParams.MediaType = "Application/PDF; charset=binary"
	assert.Nil(t, policy.Check(withParams))

	cases := []struct {
		name   string
		mutate func(*FileUpload)
		reason RejectReason
	}{
		{"six megabyte pdf", func(f *FileUpload) { f.Size = 6 * 1024 * 1024 }, RejectTooLarge},
		{"one byte over", func(f *FileUpload) { f.Size = DefaultMaxUploadBytes + 1 }, RejectTooLarge},
		{"word document", func(f *FileUpload) { f.MediaType = "application/msword" }, RejectUnsupportedType},
		{"garbage media type", func(f *FileUpload) { f.MediaType = ";;" }, RejectUnsupportedType},
		{"empty", func(f *FileUpload) { f.Size = 0 }, RejectEmpty},
		{"no name", func(f *FileUpload) { f.Filename = "  " }, RejectMissingName},
		{"no storage ref", func(f *FileUpload) { f.StorageRef = "" }, RejectMissingRef},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := ok
			tc.mutate(&f)
			rejection := policy.Check(f)
			require.NotNil(t, rejection)
			assert.Equal(t, tc.reason, rejection.Reason)
		})
	}

	t.Run("exactly at the limit is accepted", func(t *testing.T) {
		f := ok
		f.Size = DefaultMaxUploadBytes
		assert.Nil(t, policy.Check(f))
	})
}

func TestItemDraftValidate(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(-1, 0, 0)

	assert.True(t, dErrors.HasCode(ItemDraft{}.Validate(CatalogTeaching), dErrors.CodeValidation))
	assert.True(t, dErrors.HasCode(ItemDraft{Title: "x", StartDate: &start, EndDate: &end}.Validate(CatalogTeaching), dErrors.CodeValidation))

	wrongKind := ItemDraft{Title: "x", Attributes: NewAttributeSet(FormationAttributes{Degree: "PhD"})}
	assert.True(t, dErrors.HasCode(wrongKind.Validate(CatalogTeaching), dErrors.CodeValidation))

	good := ItemDraft{Title: "Calculus I", Attributes: NewAttributeSet(TeachingAttributes{HoursPerWeek: 6})}
	assert.NoError(t, good.Validate(CatalogTeaching))
}

func TestIdentityDraftValidate(t *testing.T) {
	err := IdentityDraft{WorkerNumber: "123", TaxID: "RUEA800101AB1"}.Validate()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	assert.Contains(t, dErrors.MessageOf(err), "affiliation")

	d := IdentityDraft{WorkerNumber: " 123 ", TaxID: " ruea800101ab1 ", Affiliation: "Faculty of Science", DisciplinaryArea: "Mathematics"}.Normalize()
	assert.Equal(t, "RUEA800101AB1", d.TaxID)
	assert.NoError(t, d.Validate())
}

func TestItemPatchApply(t *testing.T) {
	it := &Item{Title: "Old", Attributes: NewAttributeSet(TeachingAttributes{HoursPerWeek: 4}), Evidence: []*Evidence{{Filename: "a.pdf"}}}
	title := "  New title "
	next, changed, err := ItemPatch{Title: &title}.Apply(it, CatalogTeaching)
	require.NoError(t, err)
	assert.Equal(t, "New title", next.Title)
	assert.Equal(t, []string{"title"}, changed)
	assert.Equal(t, "Old", it.Title, "original item must be untouched")
	assert.Same(t, it.Evidence[0], next.Evidence[0])

	empty := ""
	_, _, err = ItemPatch{Title: &empty}.Apply(it, CatalogTeaching)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
