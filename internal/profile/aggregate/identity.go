package aggregate

import (
	"strconv"
	"time"

	"dossier/internal/profile/engine"
	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	audit "dossier/pkg/platform/audit"
)

// SaveIdentity creates or replaces the identity fields. Saving a REJECTED
// identity reopens it as PENDING.
func SaveIdentity(p *models.Profile, draft models.IdentityDraft, now time.Time) (*models.Profile, Change, error) {
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, Change{}, err
	}

	var next *models.Identity
	created := p.Identity == nil
	if created {
		next = &models.Identity{
			State:     models.IdentityPending,
			Evidence:  []*models.Evidence{},
			CreatedAt: now,
		}
	} else {
		if err := requireEditableIdentity(p.Identity); err != nil {
			return nil, Change{}, err
		}
		next = reopen(p.Identity)
	}
	next.WorkerNumber = draft.WorkerNumber
	next.TaxID = draft.TaxID
	next.Affiliation = draft.Affiliation
	next.DisciplinaryArea = draft.DisciplinaryArea
	next.UpdatedAt = now

	details := map[string]string{
		"worker_number":     next.WorkerNumber,
		"affiliation":       next.Affiliation,
		"disciplinary_area": next.DisciplinaryArea,
	}
	if created {
		details["created"] = "true"
	}
	return withIdentity(p, next, now), Change{
		Action:     audit.ActionIdentityUpdated,
		TargetKind: audit.TargetIdentity,
		TargetID:   p.ID.String(),
		Details:    details,
	}, nil
}

// SubmitIdentity sends the identity for review.
func SubmitIdentity(p *models.Profile, now time.Time) (*models.Profile, Change, error) {
	next, err := engine.SubmitIdentity(p.Identity, now)
	if err != nil {
		return nil, Change{}, err
	}
	return withIdentity(p, next, now), Change{
		Action:     audit.ActionIdentitySubmitted,
		TargetKind: audit.TargetIdentity,
		TargetID:   p.ID.String(),
		Details:    map[string]string{"evidence": strconv.Itoa(len(next.Evidence))},
	}, nil
}

// ResolveIdentity approves or rejects the identity under review.
func ResolveIdentity(p *models.Profile, approved bool, remark string, now time.Time) (*models.Profile, Change, error) {
	next, err := engine.ResolveIdentity(p.Identity, approved, remark, now)
	if err != nil {
		return nil, Change{}, err
	}
	action := audit.ActionIdentityValidated
	if !approved {
		action = audit.ActionIdentityRejected
	}
	details := map[string]string{"worker_number": next.WorkerNumber}
	if next.Remark != "" {
		details["remark"] = next.Remark
	}
	return withIdentity(p, next, now), Change{
		Action:     action,
		TargetKind: audit.TargetIdentity,
		TargetID:   p.ID.String(),
		Details:    details,
	}, nil
}

// AttachIdentityEvidence adds supporting files to an editable identity under
// the same per-file policy as item evidence.
func AttachIdentityEvidence(p *models.Profile, files []models.FileUpload, policy models.UploadPolicy, ids IDs, now time.Time) (*models.Profile, Change, []models.FileRejection, error) {
	if p.Identity == nil {
		return nil, Change{}, nil, dErrors.New(dErrors.CodePreconditionFailed, "save the identity before attaching evidence")
	}
	if err := requireEditableIdentity(p.Identity); err != nil {
		return nil, Change{}, nil, err
	}
	if len(files) == 0 {
		return nil, Change{}, nil, dErrors.New(dErrors.CodeValidation, "no files to attach")
	}

	accepted, rejected := screen(files, policy, id.ItemID{}, ids, now)
	if len(accepted) == 0 {
		return nil, Change{}, rejected, rejectedError(rejected)
	}

	next := reopen(p.Identity)
	next.Evidence = append(next.Evidence, accepted...)
	next.UpdatedAt = now

	return withIdentity(p, next, now), Change{
		Action:     audit.ActionEvidenceUploaded,
		TargetKind: audit.TargetIdentity,
		TargetID:   p.ID.String(),
		Details:    evidenceDetails("", "identity", accepted, rejected),
	}, rejected, nil
}

// RemoveIdentityEvidence detaches one file from an editable identity.
func RemoveIdentityEvidence(p *models.Profile, evidenceID id.EvidenceID, now time.Time) (*models.Profile, Change, error) {
	if p.Identity == nil {
		return nil, Change{}, dErrors.New(dErrors.CodeNotFound, "identity not found")
	}
	if err := requireEditableIdentity(p.Identity); err != nil {
		return nil, Change{}, err
	}
	ei := p.Identity.EvidenceIndex(evidenceID)
	if ei < 0 {
		return nil, Change{}, dErrors.New(dErrors.CodeNotFound, "evidence not found")
	}
	removed := p.Identity.Evidence[ei]

	next := reopen(p.Identity)
	next.Evidence = append(next.Evidence[:ei:ei], p.Identity.Evidence[ei+1:]...)
	next.UpdatedAt = now

	return withIdentity(p, next, now), Change{
		Action:     audit.ActionEvidenceRemoved,
		TargetKind: audit.TargetEvidence,
		TargetID:   evidenceID.String(),
		Details:    map[string]string{"item": "identity", "filename": removed.Filename},
	}, nil
}

func requireEditableIdentity(identity *models.Identity) error {
	if !identity.State.Editable() {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "identity is %s and cannot be edited", identity.State)
	}
	return nil
}

// reopen copies identity, moving a REJECTED record back to PENDING.
func reopen(identity *models.Identity) *models.Identity {
	next := identity.ShallowCopy()
	if next.State == models.IdentityRejected {
		next.State = models.IdentityPending
	}
	return next
}

func withIdentity(p *models.Profile, identity *models.Identity, now time.Time) *models.Profile {
	next := p.ShallowCopy()
	next.Identity = identity
	next.UpdatedAt = now
	return next
}
