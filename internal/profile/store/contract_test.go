package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
	"dossier/pkg/platform/sentinel"
)

type profileStore interface {
	Create(ctx context.Context, profile *models.Profile) error
	FindByID(ctx context.Context, profileID id.ProfileID) (*models.Profile, error)
	FindBySubject(ctx context.Context, subjectID id.UserID) (*models.Profile, error)
	List(ctx context.Context) ([]*models.Profile, error)
	Save(ctx context.Context, profile *models.Profile, expectedVersion int64) error
}

var baseTime = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func newProfile(name string, createdAt time.Time) *models.Profile {
	return models.NewProfile(
		id.ProfileID(uuid.New()),
		id.UserID(uuid.New()),
		models.SubjectRef{Name: name, Email: name + "@uni.example"},
		func() id.SectionID { return id.SectionID(uuid.New()) },
		createdAt,
	)
}

// revised returns a copy of p one version ahead with its first section
// submitted.
func revised(p *models.Profile) *models.Profile {
	next := p.ShallowCopy()
	next.Sections = append([]*models.ProfileSection(nil), p.Sections...)
	sec := p.Sections[0].ShallowCopy()
	sec.State = models.SectionInReview
	submitted := p.UpdatedAt.Add(time.Minute)
	sec.SubmittedAt = &submitted
	next.Sections[0] = sec
	next.UpdatedAt = submitted
	next.Version = p.Version + 1
	return next
}

// storeContract is run against every ProfileStore implementation.
type storeContract struct {
	suite.Suite
	newStore func() profileStore
	store    profileStore
	ctx      context.Context
}

func (s *storeContract) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *storeContract) TestCreateAndFind() {
	p := newProfile("ada", baseTime)
	s.Require().NoError(s.store.Create(s.ctx, p))

	s.Run("by id", func() {
		got, err := s.store.FindByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(p.ID, got.ID)
		s.Equal(p.Subject, got.Subject)
		s.Len(got.Sections, models.CatalogSize)
		s.Equal(int64(0), got.Version)
	})

	s.Run("by subject", func() {
		got, err := s.store.FindBySubject(s.ctx, p.SubjectID)
		s.Require().NoError(err)
		s.Equal(p.ID, got.ID)
	})

	s.Run("unknown id", func() {
		_, err := s.store.FindByID(s.ctx, id.ProfileID(uuid.New()))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown subject", func() {
		_, err := s.store.FindBySubject(s.ctx, id.UserID(uuid.New()))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *storeContract) TestCreateRejectsSecondProfileForSubject() {
	p := newProfile("ada", baseTime)
	s.Require().NoError(s.store.Create(s.ctx, p))

	dup := newProfile("ada", baseTime)
	dup.SubjectID = p.SubjectID
	s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)

	_, err := s.store.FindByID(s.ctx, dup.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContract) TestSaveChecksVersion() {
	p := newProfile("ada", baseTime)
	s.Require().NoError(s.store.Create(s.ctx, p))

	next := revised(p)
	s.Require().NoError(s.store.Save(s.ctx, next, p.Version))

	got, err := s.store.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), got.Version)
	s.Equal(models.SectionInReview, got.Sections[0].State)
	s.Require().NotNil(got.Sections[0].SubmittedAt)
	s.True(got.Sections[0].SubmittedAt.Equal(*next.Sections[0].SubmittedAt))

	s.Run("stale writer loses", func() {
		stale := revised(p)
		s.ErrorIs(s.store.Save(s.ctx, stale, p.Version), sentinel.ErrConflict)

		got, err := s.store.FindByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(int64(1), got.Version)
	})

	s.Run("missing profile", func() {
		ghost := revised(newProfile("ghost", baseTime))
		s.ErrorIs(s.store.Save(s.ctx, ghost, 0), sentinel.ErrNotFound)
	})
}

func (s *storeContract) TestListOldestFirst() {
	empty, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(empty)

	later := newProfile("grace", baseTime.Add(time.Hour))
	earlier := newProfile("ada", baseTime)
	s.Require().NoError(s.store.Create(s.ctx, later))
	s.Require().NoError(s.store.Create(s.ctx, earlier))

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(earlier.ID, all[0].ID)
	s.Equal(later.ID, all[1].ID)
}
