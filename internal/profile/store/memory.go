package store

import (
	"context"
	"sort"
	"sync"

	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
	"dossier/pkg/platform/sentinel"
)

// InMemory keeps profiles in process. Profiles are immutable values, so the
// store holds the pointers it is given and hands them back unchanged.
type InMemory struct {
	mu        sync.RWMutex
	profiles  map[id.ProfileID]*models.Profile
	bySubject map[id.UserID]id.ProfileID
}

func NewInMemory() *InMemory {
	return &InMemory{
		profiles:  make(map[id.ProfileID]*models.Profile),
		bySubject: make(map[id.UserID]id.ProfileID),
	}
}

// Create stores a new profile. It returns sentinel.ErrConflict when the ID or
// the subject is already taken.
func (s *InMemory) Create(_ context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profile.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.bySubject[profile.SubjectID]; ok {
		return sentinel.ErrConflict
	}
	s.profiles[profile.ID] = profile
	s.bySubject[profile.SubjectID] = profile.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, profileID id.ProfileID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[profileID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p, nil
}

func (s *InMemory) FindBySubject(_ context.Context, subjectID id.UserID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profileID, ok := s.bySubject[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.profiles[profileID], nil
}

// List returns every profile, oldest first.
func (s *InMemory) List(_ context.Context) ([]*models.Profile, error) {
	s.mu.RLock()
	out := make([]*models.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sortProfiles(out)
	return out, nil
}

// Save replaces the stored profile when its version equals expectedVersion.
func (s *InMemory) Save(_ context.Context, profile *models.Profile, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.profiles[profile.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	s.profiles[profile.ID] = profile
	return nil
}

func sortProfiles(profiles []*models.Profile) {
	sort.Slice(profiles, func(i, j int) bool {
		a, b := profiles[i], profiles[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
