// Package seed loads development fixtures: three subjects, one reviewer and
// one observer, with one profile partially reviewed. Fixtures are written
// through the profile service so they obey the same rules as live traffic.
package seed

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dossier/internal/profile/models"
	"dossier/internal/profile/service"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	"dossier/pkg/requestcontext"
)

var namespace = uuid.MustParse("0f3a3b8e-6c1d-4e0b-9a57-7d2f18c4e6a1")

func actor(name string, role id.Role) id.Actor {
	return id.Actor{ID: id.UserID(uuid.NewSHA1(namespace, []byte(name))), Name: name, Role: role}
}

// Fixture actors. IDs are derived from the names and stay stable across
// restarts.
var (
	Elena  = actor("Elena Márquez", id.RoleSubject)
	Tomas  = actor("Tomás Herrera", id.RoleSubject)
	Lucia  = actor("Lucía Fernández", id.RoleSubject)
	Rafael = actor("Rafael Ortega", id.RoleReviewer)
	Carmen = actor("Carmen Soto", id.RoleObserver)
)

// Actors returns every fixture actor, subjects first.
func Actors() []id.Actor {
	return []id.Actor{Elena, Tomas, Lucia, Rafael, Carmen}
}

// Load creates the fixture profiles. Subjects that already hold a profile
// are skipped, so Load is safe to run on every start.
func Load(ctx context.Context, svc *service.Service, logger *slog.Logger, now time.Time) error {
	fixtures := []struct {
		actor   id.Actor
		subject models.SubjectRef
		build   func(ctx context.Context, svc *service.Service, p *models.Profile) error
	}{
		{Elena, models.SubjectRef{Name: Elena.Name, Email: "elena.marquez@uni.example", WorkerNumber: "100231"}, reviewedProfile},
		{Tomas, models.SubjectRef{Name: Tomas.Name, Email: "tomas.herrera@uni.example", WorkerNumber: "100587"}, submittedProfile},
		{Lucia, models.SubjectRef{Name: Lucia.Name, Email: "lucia.fernandez@uni.example", WorkerNumber: "101112"}, nil},
	}

	for _, f := range fixtures {
		subjectCtx := as(ctx, f.actor, now)
		if _, err := svc.MyProfile(subjectCtx); err == nil {
			logger.InfoContext(ctx, "seed profile exists, skipping", "subject", f.actor.Name)
			continue
		} else if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return err
		}

		p, err := svc.CreateProfile(subjectCtx, f.subject)
		if err != nil {
			return err
		}
		if f.build != nil {
			if err := f.build(subjectCtx, svc, p); err != nil {
				return err
			}
		}
		logger.InfoContext(ctx, "seeded profile", "subject", f.actor.Name, "profile_id", p.ID.String())
	}
	return nil
}

func as(ctx context.Context, a id.Actor, now time.Time) context.Context {
	ctx = requestcontext.WithActor(ctx, a)
	ctx = requestcontext.WithRequestID(ctx, "seed")
	return requestcontext.WithTime(ctx, now)
}

func file(name string, size int64) models.FileUpload {
	return models.FileUpload{Filename: name, MediaType: models.MediaTypePDF, Size: size, StorageRef: "seed://" + name}
}

type draftItem struct {
	catalog models.CatalogID
	draft   models.ItemDraft
	files   []models.FileUpload
}

// addItems adds and evidences items, returning their IDs in order.
func addItems(ctx context.Context, svc *service.Service, p *models.Profile, items []draftItem) ([]id.ItemID, error) {
	ids := make([]id.ItemID, 0, len(items))
	for _, it := range items {
		section, _, _ := p.SectionByCatalog(it.catalog)
		next, itemID, err := svc.AddItem(ctx, p.ID, section.ID, it.draft)
		if err != nil {
			return nil, err
		}
		p = next
		if len(it.files) > 0 {
			if _, _, err := svc.AttachEvidence(ctx, p.ID, itemID, it.files); err != nil {
				return nil, err
			}
		}
		ids = append(ids, itemID)
	}
	return ids, nil
}

// reviewedProfile: teaching validated, research flagged, identity validated.
func reviewedProfile(ctx context.Context, svc *service.Service, p *models.Profile) error {
	teaching := []draftItem{
		{models.CatalogTeaching, models.ItemDraft{
			Title: "Linear Algebra I", Institution: "Faculty of Science",
			Attributes: models.NewAttributeSet(models.TeachingAttributes{Level: "undergraduate", HoursPerWeek: 6, Students: 42, Modality: "in_person"}),
		}, []models.FileUpload{file("linear-algebra-syllabus.pdf", 182_000)}},
		{models.CatalogTeaching, models.ItemDraft{
			Title: "Numerical Methods", Institution: "Faculty of Engineering",
			Attributes: models.NewAttributeSet(models.TeachingAttributes{Level: "graduate", HoursPerWeek: 4, Students: 18, Modality: "hybrid"}),
		}, []models.FileUpload{file("numerical-methods-assignment.pdf", 96_000)}},
	}
	research := []draftItem{
		{models.CatalogResearch, models.ItemDraft{
			Title: "Sparse solvers for elliptic PDEs",
			Attributes: models.NewAttributeSet(models.ResearchAttributes{ProductType: "article", Identifier: "doi:10.5555/sparse.2023", Role: "first author", Indexed: true}),
		}, []models.FileUpload{file("sparse-solvers.pdf", 1_200_000)}},
	}

	teachingIDs, err := addItems(ctx, svc, p, teaching)
	if err != nil {
		return err
	}
	researchIDs, err := addItems(ctx, svc, p, research)
	if err != nil {
		return err
	}
	if _, err := svc.SaveIdentity(ctx, p.ID, models.IdentityDraft{
		WorkerNumber: "100231", TaxID: "MAEL780412", Affiliation: "Faculty of Science", DisciplinaryArea: "Applied Mathematics",
	}); err != nil {
		return err
	}
	if _, _, err := svc.AttachIdentityEvidence(ctx, p.ID, []models.FileUpload{file("staff-card.pdf", 64_000)}); err != nil {
		return err
	}
	if _, err := svc.SubmitIdentity(ctx, p.ID); err != nil {
		return err
	}

	teachingSection, _, _ := p.SectionByCatalog(models.CatalogTeaching)
	researchSection, _, _ := p.SectionByCatalog(models.CatalogResearch)
	for _, sectionID := range []id.SectionID{teachingSection.ID, researchSection.ID} {
		if _, err := svc.SubmitSection(ctx, p.ID, sectionID); err != nil {
			return err
		}
	}

	reviewerCtx := as(ctx, Rafael, requestcontext.Now(ctx).Add(time.Hour))
	for _, itemID := range teachingIDs {
		if _, err := svc.RecordItemDecision(reviewerCtx, p.ID, itemID, models.OutcomeApproved, ""); err != nil {
			return err
		}
	}
	if _, err := svc.FinalizeSectionReview(reviewerCtx, p.ID, teachingSection.ID, ""); err != nil {
		return err
	}
	if _, err := svc.RecordItemDecision(reviewerCtx, p.ID, researchIDs[0], models.OutcomeFlagged, "journal acceptance letter missing"); err != nil {
		return err
	}
	if _, err := svc.FinalizeSectionReview(reviewerCtx, p.ID, researchSection.ID, "attach the acceptance letter"); err != nil {
		return err
	}
	_, err = svc.ResolveIdentity(reviewerCtx, p.ID, true, "")
	return err
}

// submittedProfile: formation and identity waiting in the review queue.
func submittedProfile(ctx context.Context, svc *service.Service, p *models.Profile) error {
	grade := 9.2
	formation := []draftItem{
		{models.CatalogFormation, models.ItemDraft{
			Title: "PhD in Chemistry", Institution: "National University",
			Attributes: models.NewAttributeSet(models.FormationAttributes{Degree: "doctorate", LicenseNumber: "CH-88231", Honors: true, GradeAverage: &grade}),
		}, []models.FileUpload{file("phd-diploma.pdf", 420_000)}},
	}
	if _, err := addItems(ctx, svc, p, formation); err != nil {
		return err
	}
	if _, err := svc.SaveIdentity(ctx, p.ID, models.IdentityDraft{
		WorkerNumber: "100587", TaxID: "HETO810903", Affiliation: "Faculty of Chemistry", DisciplinaryArea: "Organic Chemistry",
	}); err != nil {
		return err
	}
	if _, _, err := svc.AttachIdentityEvidence(ctx, p.ID, []models.FileUpload{file("appointment-letter.pdf", 88_000)}); err != nil {
		return err
	}
	if _, err := svc.SubmitIdentity(ctx, p.ID); err != nil {
		return err
	}
	section, _, _ := p.SectionByCatalog(models.CatalogFormation)
	_, err := svc.SubmitSection(ctx, p.ID, section.ID)
	return err
}
