package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"dossier/internal/profile/aggregate"
	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	"dossier/pkg/email"
	audit "dossier/pkg/platform/audit"
	"dossier/pkg/platform/sentinel"
	"dossier/pkg/requestcontext"
)

// CreateProfile opens a profile for the acting subject with one DRAFT
// section per catalog entry. A subject holds at most one profile.
func (s *Service) CreateProfile(ctx context.Context, subject models.SubjectRef) (*models.Profile, error) {
	ctx, done := s.track(ctx, "create_profile")

	actor, err := actorFrom(ctx)
	if err == nil {
		err = requireRole(actor, id.RoleSubject)
	}
	if err != nil {
		done(err)
		return nil, err
	}

	subject.Email = strings.TrimSpace(subject.Email)
	subject.WorkerNumber = strings.TrimSpace(subject.WorkerNumber)
	subject.Name = strings.TrimSpace(subject.Name)
	if subject.Name == "" {
		subject.Name = actor.Name
	}
	if subject.Name == "" {
		subject.Name = email.DisplayName(subject.Email)
	}
	if subject.Name == "" {
		err := dErrors.New(dErrors.CodeValidation, "subject name or email is required")
		done(err)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	p := models.NewProfile(s.ids.NewProfileID(), actor.ID, subject, s.ids.NewSectionID, now)
	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			err = dErrors.New(dErrors.CodeConflict, "subject already has a profile")
		} else {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to create profile")
		}
		done(err)
		return nil, err
	}

	s.record(ctx, actor, p.ID, aggregate.Change{
		Action:     audit.ActionProfileCreated,
		TargetKind: audit.TargetProfile,
		TargetID:   p.ID.String(),
		Details:    map[string]string{"subject": subject.Name},
	}, now)
	done(nil)
	return p, nil
}

// AddItem appends a DRAFT item to a section of the subject's profile and
// returns the new item's ID.
func (s *Service) AddItem(ctx context.Context, profileID id.ProfileID, sectionID id.SectionID, draft models.ItemDraft) (*models.Profile, id.ItemID, error) {
	itemID := s.ids.NewItemID()
	p, err := s.apply(ctx, "add_item", profileID, ownerAccess, func(p *models.Profile, _ id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		return aggregate.AddItem(p, sectionID, itemID, draft, now)
	})
	if err != nil {
		return nil, id.ItemID{}, err
	}
	return p, itemID, nil
}

func (s *Service) UpdateItem(ctx context.Context, profileID id.ProfileID, itemID id.ItemID, patch models.ItemPatch) (*models.Profile, error) {
	return s.apply(ctx, "update_item", profileID, ownerAccess, func(p *models.Profile, _ id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		return aggregate.UpdateItem(p, itemID, patch, now)
	})
}

func (s *Service) DeleteItem(ctx context.Context, profileID id.ProfileID, itemID id.ItemID) (*models.Profile, error) {
	return s.apply(ctx, "delete_item", profileID, ownerAccess, func(p *models.Profile, _ id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		return aggregate.DeleteItem(p, itemID, now)
	})
}

// AttachEvidence attaches every acceptable file in the batch and reports the
// rest. When nothing is accepted the error carries the rejections.
func (s *Service) AttachEvidence(ctx context.Context, profileID id.ProfileID, itemID id.ItemID, files []models.FileUpload) (*models.Profile, []models.FileRejection, error) {
	var rejected []models.FileRejection
	p, err := s.apply(ctx, "attach_evidence", profileID, ownerAccess, func(p *models.Profile, _ id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		next, change, refused, err := aggregate.AttachEvidence(p, itemID, files, s.policy, s.ids, now)
		rejected = refused
		return next, change, err
	})
	s.countRejections(rejected)
	return p, rejected, err
}

func (s *Service) RemoveEvidence(ctx context.Context, profileID id.ProfileID, itemID id.ItemID, evidenceID id.EvidenceID) (*models.Profile, error) {
	return s.apply(ctx, "remove_evidence", profileID, ownerAccess, func(p *models.Profile, _ id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		return aggregate.RemoveEvidence(p, itemID, evidenceID, now)
	})
}

// SubmitSection sends a section of the subject's profile for review.
func (s *Service) SubmitSection(ctx context.Context, profileID id.ProfileID, sectionID id.SectionID) (*models.Profile, error) {
	return s.apply(ctx, "submit_section", profileID, ownerAccess, func(p *models.Profile, _ id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		return aggregate.SubmitSection(p, sectionID, now)
	})
}

// RecordItemDecision stores a reviewer's pending verdict on one item.
func (s *Service) RecordItemDecision(ctx context.Context, profileID id.ProfileID, itemID id.ItemID, outcome models.Outcome, remark string) (*models.Profile, error) {
	return s.apply(ctx, "record_item_decision", profileID, reviewerAccess, func(p *models.Profile, actor id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		return aggregate.RecordItemDecision(p, itemID, outcome, remark, actor.ID, now)
	})
}

// FinalizeSectionReview closes the review pass, validating or returning the
// section.
func (s *Service) FinalizeSectionReview(ctx context.Context, profileID id.ProfileID, sectionID id.SectionID, remark string) (*models.Profile, error) {
	return s.apply(ctx, "finalize_section_review", profileID, reviewerAccess, func(p *models.Profile, _ id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		return aggregate.FinalizeSectionReview(p, sectionID, remark, now)
	})
}

func (s *Service) SaveIdentity(ctx context.Context, profileID id.ProfileID, draft models.IdentityDraft) (*models.Profile, error) {
	return s.apply(ctx, "save_identity", profileID, ownerAccess, func(p *models.Profile, _ id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		return aggregate.SaveIdentity(p, draft, now)
	})
}

func (s *Service) SubmitIdentity(ctx context.Context, profileID id.ProfileID) (*models.Profile, error) {
	return s.apply(ctx, "submit_identity", profileID, ownerAccess, func(p *models.Profile, _ id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		return aggregate.SubmitIdentity(p, now)
	})
}

// ResolveIdentity approves or rejects the identity under review.
func (s *Service) ResolveIdentity(ctx context.Context, profileID id.ProfileID, approved bool, remark string) (*models.Profile, error) {
	return s.apply(ctx, "resolve_identity", profileID, reviewerAccess, func(p *models.Profile, _ id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		return aggregate.ResolveIdentity(p, approved, remark, now)
	})
}

func (s *Service) AttachIdentityEvidence(ctx context.Context, profileID id.ProfileID, files []models.FileUpload) (*models.Profile, []models.FileRejection, error) {
	var rejected []models.FileRejection
	p, err := s.apply(ctx, "attach_identity_evidence", profileID, ownerAccess, func(p *models.Profile, _ id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		next, change, refused, err := aggregate.AttachIdentityEvidence(p, files, s.policy, s.ids, now)
		rejected = refused
		return next, change, err
	})
	s.countRejections(rejected)
	return p, rejected, err
}

func (s *Service) RemoveIdentityEvidence(ctx context.Context, profileID id.ProfileID, evidenceID id.EvidenceID) (*models.Profile, error) {
	return s.apply(ctx, "remove_identity_evidence", profileID, ownerAccess, func(p *models.Profile, _ id.Actor, now time.Time) (*models.Profile, aggregate.Change, error) {
		return aggregate.RemoveIdentityEvidence(p, evidenceID, now)
	})
}

func (s *Service) countRejections(rejected []models.FileRejection) {
	for _, r := range rejected {
		s.metrics.IncrementRejectedFile(string(r.Reason))
	}
}
