// Package aggregate applies commands to a Profile. Each operation locates its
// target, delegates the transition decision to the engine, and returns a new
// Profile that shares every untouched section, item and evidence value with
// its input, along with the Change that describes it for the activity log.
package aggregate

import (
	"strconv"
	"strings"
	"time"

	"dossier/internal/profile/engine"
	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	audit "dossier/pkg/platform/audit"
)

// Change describes a successful operation for the activity log.
type Change struct {
	Action     audit.Action
	TargetKind audit.TargetKind
	TargetID   string
	Details    map[string]string
}

// IDs supplies identifiers for new values so operations stay deterministic
// under test.
type IDs interface {
	NewItemID() id.ItemID
	NewEvidenceID() id.EvidenceID
}

// AddItem appends a DRAFT item to an editable section.
func AddItem(p *models.Profile, sectionID id.SectionID, itemID id.ItemID, draft models.ItemDraft, now time.Time) (*models.Profile, Change, error) {
	section, si, ok := p.Section(sectionID)
	if !ok {
		return nil, Change{}, dErrors.New(dErrors.CodeNotFound, "section not found")
	}
	if err := requireEditable(section); err != nil {
		return nil, Change{}, err
	}

	draft = draft.Normalize()
	if draft.Attributes.IsZero() {
		empty, err := models.EmptyAttributes(section.CatalogID)
		if err != nil {
			return nil, Change{}, err
		}
		draft.Attributes = models.NewAttributeSet(empty)
	}
	if err := draft.Validate(section.CatalogID); err != nil {
		return nil, Change{}, err
	}

	item := &models.Item{
		ID:          itemID,
		SectionID:   section.ID,
		Title:       draft.Title,
		Description: draft.Description,
		Institution: draft.Institution,
		StartDate:   draft.StartDate,
		EndDate:     draft.EndDate,
		Attributes:  draft.Attributes,
		State:       models.ItemStateDraft,
		Evidence:    []*models.Evidence{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	nextSection := section.ShallowCopy()
	nextSection.Items = append(nextSection.Items, item)

	return withSection(p, si, nextSection, now), Change{
		Action:     audit.ActionItemCreated,
		TargetKind: audit.TargetItem,
		TargetID:   itemID.String(),
		Details:    map[string]string{"section": section.Name(), "title": item.Title},
	}, nil
}

// UpdateItem applies patch to an item in an editable section. An item that
// had been reviewed returns to DRAFT.
func UpdateItem(p *models.Profile, itemID id.ItemID, patch models.ItemPatch, now time.Time) (*models.Profile, Change, error) {
	section, si, ii, err := locateEditableItem(p, itemID)
	if err != nil {
		return nil, Change{}, err
	}
	if patch.IsEmpty() {
		return nil, Change{}, dErrors.New(dErrors.CodeValidation, "patch changes nothing")
	}

	patched, changed, err := patch.Apply(section.Items[ii], section.CatalogID)
	if err != nil {
		return nil, Change{}, err
	}
	patched = engine.Touch(patched, now)

	return withItem(p, si, section, ii, patched, now), Change{
		Action:     audit.ActionItemUpdated,
		TargetKind: audit.TargetItem,
		TargetID:   itemID.String(),
		Details: map[string]string{
			"section": section.Name(),
			"title":   patched.Title,
			"fields":  strings.Join(changed, ","),
		},
	}, nil
}

// DeleteItem removes an item from an editable section.
func DeleteItem(p *models.Profile, itemID id.ItemID, now time.Time) (*models.Profile, Change, error) {
	section, si, ii, err := locateEditableItem(p, itemID)
	if err != nil {
		return nil, Change{}, err
	}
	removed := section.Items[ii]

	nextSection := section.ShallowCopy()
	nextSection.Items = append(nextSection.Items[:ii:ii], section.Items[ii+1:]...)

	return withSection(p, si, nextSection, now), Change{
		Action:     audit.ActionItemDeleted,
		TargetKind: audit.TargetItem,
		TargetID:   itemID.String(),
		Details: map[string]string{
			"section":  section.Name(),
			"title":    removed.Title,
			"evidence": strconv.Itoa(len(removed.Evidence)),
		},
	}, nil
}

// AttachEvidence checks every file against policy on its own. Accepted files
// become evidence; refused ones are reported. When nothing is accepted the
// profile is unchanged and a FileRejected error carries the reports.
func AttachEvidence(p *models.Profile, itemID id.ItemID, files []models.FileUpload, policy models.UploadPolicy, ids IDs, now time.Time) (*models.Profile, Change, []models.FileRejection, error) {
	section, si, ii, err := locateEditableItem(p, itemID)
	if err != nil {
		return nil, Change{}, nil, err
	}
	if len(files) == 0 {
		return nil, Change{}, nil, dErrors.New(dErrors.CodeValidation, "no files to attach")
	}

	item := section.Items[ii]
	accepted, rejected := screen(files, policy, item.ID, ids, now)
	if len(accepted) == 0 {
		return nil, Change{}, rejected, rejectedError(rejected)
	}

	nextItem := engine.Touch(item, now)
	nextItem.Evidence = append(nextItem.Evidence, accepted...)

	return withItem(p, si, section, ii, nextItem, now), Change{
		Action:     audit.ActionEvidenceUploaded,
		TargetKind: audit.TargetItem,
		TargetID:   itemID.String(),
		Details:    evidenceDetails(section.Name(), item.Title, accepted, rejected),
	}, rejected, nil
}

// RemoveEvidence detaches one evidence record from an item in an editable
// section.
func RemoveEvidence(p *models.Profile, itemID id.ItemID, evidenceID id.EvidenceID, now time.Time) (*models.Profile, Change, error) {
	section, si, ii, err := locateEditableItem(p, itemID)
	if err != nil {
		return nil, Change{}, err
	}
	item := section.Items[ii]
	ei := item.EvidenceIndex(evidenceID)
	if ei < 0 {
		return nil, Change{}, dErrors.New(dErrors.CodeNotFound, "evidence not found")
	}
	removed := item.Evidence[ei]

	nextItem := engine.Touch(item, now)
	nextItem.Evidence = append(nextItem.Evidence[:ei:ei], item.Evidence[ei+1:]...)

	return withItem(p, si, section, ii, nextItem, now), Change{
		Action:     audit.ActionEvidenceRemoved,
		TargetKind: audit.TargetEvidence,
		TargetID:   evidenceID.String(),
		Details: map[string]string{
			"section":  section.Name(),
			"item":     item.Title,
			"filename": removed.Filename,
		},
	}, nil
}

// SubmitSection sends a section for review.
func SubmitSection(p *models.Profile, sectionID id.SectionID, now time.Time) (*models.Profile, Change, error) {
	section, si, ok := p.Section(sectionID)
	if !ok {
		return nil, Change{}, dErrors.New(dErrors.CodeNotFound, "section not found")
	}
	next, err := engine.SubmitSection(section, now)
	if err != nil {
		return nil, Change{}, err
	}

	details := map[string]string{
		"section": section.Name(),
		"items":   strconv.Itoa(len(next.Items)),
	}
	if section.State == models.SectionFlagged {
		details["resubmission"] = "true"
	}
	return withSection(p, si, next, now), Change{
		Action:     audit.ActionSectionSubmitted,
		TargetKind: audit.TargetSection,
		TargetID:   sectionID.String(),
		Details:    details,
	}, nil
}

// RecordItemDecision stores the reviewer's pending verdict on an item.
func RecordItemDecision(p *models.Profile, itemID id.ItemID, outcome models.Outcome, remark string, reviewer id.UserID, now time.Time) (*models.Profile, Change, error) {
	section, si, ii, ok := p.FindItem(itemID)
	if !ok {
		return nil, Change{}, dErrors.New(dErrors.CodeNotFound, "item not found")
	}
	decided, err := engine.DecideItem(section, section.Items[ii], outcome, remark, reviewer, now)
	if err != nil {
		return nil, Change{}, err
	}

	details := map[string]string{"section": section.Name(), "title": decided.Title}
	if decided.Decision.Remark != "" {
		details["remark"] = decided.Decision.Remark
	}
	return withItem(p, si, section, ii, decided, now), Change{
		Action:     decisionAction(outcome),
		TargetKind: audit.TargetItem,
		TargetID:   itemID.String(),
		Details:    details,
	}, nil
}

// FinalizeSectionReview closes the review pass on a section.
func FinalizeSectionReview(p *models.Profile, sectionID id.SectionID, remark string, now time.Time) (*models.Profile, Change, error) {
	section, si, ok := p.Section(sectionID)
	if !ok {
		return nil, Change{}, dErrors.New(dErrors.CodeNotFound, "section not found")
	}
	next, tally, err := engine.ResolveSection(section, remark, now)
	if err != nil {
		return nil, Change{}, err
	}

	action := audit.ActionSectionValidated
	if next.State == models.SectionFlagged {
		action = audit.ActionSectionFlagged
	}
	details := map[string]string{
		"section":  section.Name(),
		"items":    strconv.Itoa(len(next.Items)),
		"approved": strconv.Itoa(tally.Approved),
		"flagged":  strconv.Itoa(tally.Flagged),
		"rejected": strconv.Itoa(tally.Rejected),
	}
	if next.Remark != "" {
		details["remark"] = next.Remark
	}
	return withSection(p, si, next, now), Change{
		Action:     action,
		TargetKind: audit.TargetSection,
		TargetID:   sectionID.String(),
		Details:    details,
	}, nil
}

func decisionAction(outcome models.Outcome) audit.Action {
	switch outcome {
	case models.OutcomeFlagged:
		return audit.ActionItemFlagged
	case models.OutcomeRejected:
		return audit.ActionItemRejected
	}
	return audit.ActionItemApproved
}

func requireEditable(section *models.ProfileSection) error {
	if !section.State.Editable() {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "section %q is %s and cannot be edited", section.Name(), section.State)
	}
	return nil
}

func locateEditableItem(p *models.Profile, itemID id.ItemID) (*models.ProfileSection, int, int, error) {
	section, si, ii, ok := p.FindItem(itemID)
	if !ok {
		return nil, -1, -1, dErrors.New(dErrors.CodeNotFound, "item not found")
	}
	if err := requireEditable(section); err != nil {
		return nil, -1, -1, err
	}
	return section, si, ii, nil
}

func withSection(p *models.Profile, si int, section *models.ProfileSection, now time.Time) *models.Profile {
	next := p.ShallowCopy()
	next.Sections[si] = section
	next.UpdatedAt = now
	return next
}

func withItem(p *models.Profile, si int, section *models.ProfileSection, ii int, item *models.Item, now time.Time) *models.Profile {
	nextSection := section.ShallowCopy()
	nextSection.Items[ii] = item
	return withSection(p, si, nextSection, now)
}

func screen(files []models.FileUpload, policy models.UploadPolicy, itemID id.ItemID, ids IDs, now time.Time) ([]*models.Evidence, []models.FileRejection) {
	var (
		accepted []*models.Evidence
		rejected []models.FileRejection
	)
	for _, f := range files {
		if r := policy.Check(f); r != nil {
			rejected = append(rejected, *r)
			continue
		}
		accepted = append(accepted, &models.Evidence{
			ID:         ids.NewEvidenceID(),
			ItemID:     itemID,
			Filename:   strings.TrimSpace(f.Filename),
			MediaType:  models.NormalizeMediaType(f.MediaType),
			Size:       f.Size,
			StorageRef: strings.TrimSpace(f.StorageRef),
			UploadedAt: now,
		})
	}
	return accepted, rejected
}

func rejectedError(rejected []models.FileRejection) error {
	return dErrors.Wrap(&models.RejectedFilesError{Rejections: rejected}, dErrors.CodeFileRejected, "no file was accepted")
}

func evidenceDetails(section, owner string, accepted []*models.Evidence, rejected []models.FileRejection) map[string]string {
	names := make([]string, 0, len(accepted))
	for _, e := range accepted {
		names = append(names, e.Filename)
	}
	details := map[string]string{
		"item":     owner,
		"files":    strings.Join(names, ","),
		"attached": strconv.Itoa(len(accepted)),
		"rejected": strconv.Itoa(len(rejected)),
	}
	if section != "" {
		details["section"] = section
	}
	return details
}
