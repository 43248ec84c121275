package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ProfileStore,AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"dossier/internal/profile/metrics"
	"dossier/internal/profile/models"
	"dossier/internal/profile/service/mocks"
	"dossier/internal/profile/store"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	audit "dossier/pkg/platform/audit"
	"dossier/pkg/platform/audit/publisher"
	auditmemory "dossier/pkg/platform/audit/store/memory"
	"dossier/pkg/platform/sentinel"
	"dossier/pkg/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pdf(name string, size int64) models.FileUpload {
	return models.FileUpload{Filename: name, MediaType: models.MediaTypePDF, Size: size, StorageRef: "blob://" + name}
}

type ServiceSuite struct {
	suite.Suite
	store    *store.InMemory
	activity *auditmemory.InMemoryStore
	metrics  *metrics.Metrics
	service  *Service

	subject  id.Actor
	reviewer id.Actor
	observer id.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.activity = auditmemory.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store,
		WithLogger(discardLogger()),
		WithMetrics(s.metrics),
		WithAuditPublisher(publisher.NewPublisher(s.activity, publisher.WithLogger(discardLogger()))),
	)
	s.subject = testutil.NewActor("Ana Ruiz", id.RoleSubject)
	s.reviewer = testutil.NewActor("Luis Vega", id.RoleReviewer)
	s.observer = testutil.NewActor("Marta Gil", id.RoleObserver)
}

func (s *ServiceSuite) as(actor id.Actor) context.Context {
	return testutil.ActorContext(actor)
}

func (s *ServiceSuite) createProfile() *models.Profile {
	p, err := s.service.CreateProfile(s.as(s.subject), models.SubjectRef{Email: "ana.ruiz@uni.example"})
	s.Require().NoError(err)
	return p
}

func teaching(p *models.Profile) *models.ProfileSection {
	sec, _, _ := p.SectionByCatalog(models.CatalogTeaching)
	return sec
}

// submittedTeaching returns a profile whose teaching section holds two
// evidenced items and is IN_REVIEW.
func (s *ServiceSuite) submittedTeaching() (*models.Profile, id.ItemID, id.ItemID) {
	ctx := s.as(s.subject)
	p := s.createProfile()
	sectionID := teaching(p).ID

	p, item1, err := s.service.AddItem(ctx, p.ID, sectionID, models.ItemDraft{Title: "Linear Algebra I"})
	s.Require().NoError(err)
	p, item2, err := s.service.AddItem(ctx, p.ID, sectionID, models.ItemDraft{Title: "Calculus II"})
	s.Require().NoError(err)
	_, _, err = s.service.AttachEvidence(ctx, p.ID, item1, []models.FileUpload{pdf("la.pdf", 1024)})
	s.Require().NoError(err)
	_, _, err = s.service.AttachEvidence(ctx, p.ID, item2, []models.FileUpload{pdf("calc.pdf", 1024)})
	s.Require().NoError(err)
	p, err = s.service.SubmitSection(ctx, p.ID, sectionID)
	s.Require().NoError(err)
	return p, item1, item2
}

func (s *ServiceSuite) TestCreateProfile() {
	p := s.createProfile()

	s.Equal(s.subject.ID, p.SubjectID)
	s.Equal("Ana Ruiz", p.Subject.Name, "falls back to the actor name")
	s.Len(p.Sections, models.CatalogSize)
	for _, sec := range p.Sections {
		s.Equal(models.SectionDraft, sec.State)
		s.Empty(sec.Items)
	}

	s.Run("one profile per subject", func() {
		_, err := s.service.CreateProfile(s.as(s.subject), models.SubjectRef{Name: "Ana"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("reviewers cannot open profiles", func() {
		_, err := s.service.CreateProfile(s.as(s.reviewer), models.SubjectRef{Name: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("name derived from email", func() {
		other := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleSubject}
		p, err := s.service.CreateProfile(s.as(other), models.SubjectRef{Email: "jane.doe@uni.example"})
		s.Require().NoError(err)
		s.Equal("Jane Doe", p.Subject.Name)
	})

	entries, err := s.activity.List(context.Background(), audit.Filter{Action: audit.ActionProfileCreated})
	s.Require().NoError(err)
	s.Len(entries, 2)
}

func (s *ServiceSuite) TestSubmitEmptySectionFails() {
	p := s.createProfile()
	for _, sec := range p.Sections {
		_, err := s.service.SubmitSection(s.as(s.subject), p.ID, sec.ID)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed), sec.CatalogID)
	}
}

func (s *ServiceSuite) TestSubmitSection() {
	p, _, _ := s.submittedTeaching()

	sec := teaching(p)
	s.Equal(models.SectionInReview, sec.State)
	for _, it := range sec.Items {
		s.Equal(models.ItemInReview, it.State)
	}
	s.Equal(int64(5), p.Version)

	stored, err := s.store.FindByID(context.Background(), p.ID)
	s.Require().NoError(err)
	s.Same(p, stored)

	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.Transitions.WithLabelValues("section", "IN_REVIEW")))
}

func (s *ServiceSuite) TestFlaggedReview() {
	p, item1, item2 := s.submittedTeaching()
	ctx := s.as(s.reviewer)

	_, err := s.service.RecordItemDecision(ctx, p.ID, item1, models.OutcomeApproved, "")
	s.Require().NoError(err)
	_, err = s.service.RecordItemDecision(ctx, p.ID, item2, models.OutcomeRejected, "missing syllabus")
	s.Require().NoError(err)
	p, err = s.service.FinalizeSectionReview(ctx, p.ID, teaching(p).ID, "incomplete")
	s.Require().NoError(err)

	sec := teaching(p)
	s.Equal(models.SectionFlagged, sec.State)
	s.Equal("incomplete", sec.Remark)
	s.Equal(models.ItemApproved, sec.Items[0].State)
	s.Equal(models.ItemRejected, sec.Items[1].State)
	s.Equal("missing syllabus", sec.Items[1].Remark)

	entries, err := s.activity.List(context.Background(), audit.Filter{Action: audit.ActionSectionFlagged})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(s.reviewer.ID, entries[0].ActorID)
	s.Equal(audit.CategoryReview, entries[0].Category)
	s.Equal(p.ID.String(), entries[0].Details["profile"])
}

func (s *ServiceSuite) TestValidatedReview() {
	p, item1, item2 := s.submittedTeaching()
	ctx := s.as(s.reviewer)

	for _, itemID := range []id.ItemID{item1, item2} {
		_, err := s.service.RecordItemDecision(ctx, p.ID, itemID, models.OutcomeApproved, "")
		s.Require().NoError(err)
	}
	p, err := s.service.FinalizeSectionReview(ctx, p.ID, teaching(p).ID, "")
	s.Require().NoError(err)

	sec := teaching(p)
	s.Equal(models.SectionValidated, sec.State)
	s.Require().NotNil(sec.ValidatedAt)
	s.True(sec.ValidatedAt.Equal(testutil.FixedTime))
	for _, it := range sec.Items {
		s.Equal(models.ItemApproved, it.State)
	}
}

func (s *ServiceSuite) TestFinalizeRequiresEveryDecision() {
	p, item1, _ := s.submittedTeaching()
	ctx := s.as(s.reviewer)

	_, err := s.service.RecordItemDecision(ctx, p.ID, item1, models.OutcomeApproved, "")
	s.Require().NoError(err)
	_, err = s.service.FinalizeSectionReview(ctx, p.ID, teaching(p).ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeIncompleteReview))
}

func (s *ServiceSuite) TestOversizedEvidenceIsRejected() {
	ctx := s.as(s.subject)
	p := s.createProfile()
	p, itemID, err := s.service.AddItem(ctx, p.ID, teaching(p).ID, models.ItemDraft{Title: "Linear Algebra I"})
	s.Require().NoError(err)

	_, rejected, err := s.service.AttachEvidence(ctx, p.ID, itemID, []models.FileUpload{pdf("scan.pdf", 6*1024*1024)})
	s.True(dErrors.HasCode(err, dErrors.CodeFileRejected))
	s.Require().Len(rejected, 1)
	s.Equal(models.RejectTooLarge, rejected[0].Reason)

	stored, err := s.store.FindByID(context.Background(), p.ID)
	s.Require().NoError(err)
	s.Empty(teaching(stored).Items[0].Evidence)
	s.Equal(p.Version, stored.Version, "nothing was saved")
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.RejectedFiles.WithLabelValues(string(models.RejectTooLarge))))
}

func (s *ServiceSuite) TestIdentityFlow() {
	ctx := s.as(s.subject)
	p := s.createProfile()

	_, err := s.service.SubmitIdentity(ctx, p.ID)
	s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))

	draft := models.IdentityDraft{WorkerNumber: "48213", TaxID: "rura800101", Affiliation: "Faculty of Science", DisciplinaryArea: "Mathematics"}
	p, err = s.service.SaveIdentity(ctx, p.ID, draft)
	s.Require().NoError(err)
	s.Equal(models.IdentityPending, p.Identity.State)
	s.Equal("RURA800101", p.Identity.TaxID)

	p, _, err = s.service.AttachIdentityEvidence(ctx, p.ID, []models.FileUpload{pdf("id-card.pdf", 4096)})
	s.Require().NoError(err)
	p, err = s.service.SubmitIdentity(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(models.IdentityInReview, p.Identity.State)

	p, err = s.service.ResolveIdentity(s.as(s.reviewer), p.ID, false, "illegible scan")
	s.Require().NoError(err)
	s.Equal(models.IdentityRejected, p.Identity.State)
	s.Equal("illegible scan", p.Identity.Remark)

	p, err = s.service.RemoveIdentityEvidence(ctx, p.ID, p.Identity.Evidence[0].ID)
	s.Require().NoError(err)
	s.Equal(models.IdentityPending, p.Identity.State)
	s.Empty(p.Identity.Evidence)
}

func (s *ServiceSuite) TestRoleGates() {
	p, item1, _ := s.submittedTeaching()
	sectionID := teaching(p).ID
	stranger := testutil.NewActor("Other Subject", id.RoleSubject)

	s.Run("missing actor", func() {
		_, err := s.service.GetProfile(context.Background(), p.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("subjects cannot review", func() {
		_, err := s.service.RecordItemDecision(s.as(s.subject), p.ID, item1, models.OutcomeApproved, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("reviewers cannot edit", func() {
		_, _, err := s.service.AddItem(s.as(s.reviewer), p.ID, sectionID, models.ItemDraft{Title: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("observers are read-only", func() {
		_, err := s.service.FinalizeSectionReview(s.as(s.observer), p.ID, sectionID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		got, err := s.service.GetProfile(s.as(s.observer), p.ID)
		s.Require().NoError(err)
		s.Equal(p.ID, got.ID)
	})

	s.Run("subjects only see their own profile", func() {
		_, err := s.service.GetProfile(s.as(stranger), p.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		_, err = s.service.MyProfile(s.as(stranger))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		mine, err := s.service.MyProfile(s.as(s.subject))
		s.Require().NoError(err)
		s.Equal(p.ID, mine.ID)
	})

	s.Run("dashboard is for observers", func() {
		_, err := s.service.Dashboard(s.as(s.reviewer))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		_, err = s.service.ListProfiles(s.as(s.subject))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown profile", func() {
		_, err := s.service.SubmitSection(s.as(s.subject), id.ProfileID(uuid.New()), sectionID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestQueries() {
	p, _, _ := s.submittedTeaching()

	queue, err := s.service.ReviewQueue(s.as(s.reviewer))
	s.Require().NoError(err)
	s.Require().Len(queue, 1)
	s.Equal(p.ID, queue[0].ProfileID)

	overview, err := s.service.Overview(s.as(s.subject), p.ID)
	s.Require().NoError(err)
	s.Len(overview.Sections, models.CatalogSize)

	dash, err := s.service.Dashboard(s.as(s.observer))
	s.Require().NoError(err)
	s.Equal(1, dash.TotalProfiles)
	s.Equal(2, dash.TotalItems)
	s.Equal(1, dash.SectionsByState[models.SectionInReview])
	s.NotEmpty(dash.RecentActivity)
	s.Equal(audit.ActionSectionSubmitted, dash.RecentActivity[0].Action)

	log, err := s.service.ActivityLog(s.as(s.observer), audit.Filter{ActorID: s.subject.ID})
	s.Require().NoError(err)
	s.Len(log, 6)
}

// Mock-backed tests for the persistence and activity edges.

type ServiceEdgeSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockProfileStore
	publisher *mocks.MockAuditPublisher
	metrics   *metrics.Metrics
	service   *Service
	subject   id.Actor
	profile   *models.Profile
}

func TestServiceEdgeSuite(t *testing.T) {
	suite.Run(t, new(ServiceEdgeSuite))
}

func (s *ServiceEdgeSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockProfileStore(s.ctrl)
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store,
		WithLogger(discardLogger()),
		WithMetrics(s.metrics),
		WithAuditPublisher(s.publisher),
	)
	s.subject = testutil.NewActor("Ana Ruiz", id.RoleSubject)
	s.profile = models.NewProfile(
		id.ProfileID(uuid.New()), s.subject.ID, models.SubjectRef{Name: "Ana Ruiz"},
		func() id.SectionID { return id.SectionID(uuid.New()) }, testutil.FixedTime,
	)
	s.profile.Version = 3
}

func (s *ServiceEdgeSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceEdgeSuite) TestStaleSaveIsAConflict() {
	s.store.EXPECT().FindByID(gomock.Any(), s.profile.ID).Return(s.profile, nil)
	s.store.EXPECT().Save(gomock.Any(), gomock.Any(), int64(3)).Return(sentinel.ErrConflict)

	_, _, err := s.service.AddItem(testutil.ActorContext(s.subject), s.profile.ID, teaching(s.profile).ID, models.ItemDraft{Title: "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.Conflicts))
}

func (s *ServiceEdgeSuite) TestSaveBumpsVersion() {
	s.store.EXPECT().FindByID(gomock.Any(), s.profile.ID).Return(s.profile, nil)
	s.store.EXPECT().Save(gomock.Any(), gomock.Any(), int64(3)).
		DoAndReturn(func(_ context.Context, p *models.Profile, _ int64) error {
			s.Equal(int64(4), p.Version)
			return nil
		})
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	p, _, err := s.service.AddItem(testutil.ActorContext(s.subject), s.profile.ID, teaching(s.profile).ID, models.ItemDraft{Title: "x"})
	s.Require().NoError(err)
	s.Equal(int64(4), p.Version)
	s.Equal(int64(3), s.profile.Version, "loaded profile is not mutated")
}

func (s *ServiceEdgeSuite) TestActivityFailureDoesNotFailCommand() {
	s.store.EXPECT().FindByID(gomock.Any(), s.profile.ID).Return(s.profile, nil)
	s.store.EXPECT().Save(gomock.Any(), gomock.Any(), int64(3)).Return(nil)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Entry) error {
			s.Equal(audit.ActionItemCreated, e.Action)
			s.Equal(s.subject.ID, e.ActorID)
			s.Equal("test-subject", e.RequestID)
			return errors.New("store unavailable")
		})

	_, _, err := s.service.AddItem(testutil.ActorContext(s.subject), s.profile.ID, teaching(s.profile).ID, models.ItemDraft{Title: "x"})
	s.Require().NoError(err)
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.AuditFailures.WithLabelValues(string(audit.ActionItemCreated))))
}

func (s *ServiceEdgeSuite) TestStoreFailureIsInternal() {
	s.store.EXPECT().FindByID(gomock.Any(), s.profile.ID).Return(nil, errors.New("connection reset"))

	_, err := s.service.GetProfile(testutil.ActorContext(s.subject), s.profile.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceEdgeSuite) TestDashboardToleratesActivityErrors() {
	observer := testutil.NewActor("Marta Gil", id.RoleObserver)
	s.store.EXPECT().List(gomock.Any()).Return([]*models.Profile{s.profile}, nil)
	s.publisher.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))

	dash, err := s.service.Dashboard(testutil.ActorContext(observer))
	s.Require().NoError(err)
	s.Equal(1, dash.TotalProfiles)
	s.Empty(dash.RecentActivity)
}
