package service

import (
	"context"
	"errors"

	"dossier/internal/profile/models"
	"dossier/internal/profile/query"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	audit "dossier/pkg/platform/audit"
	"dossier/pkg/platform/sentinel"

	"go.opentelemetry.io/otel/attribute"
)

// GetProfile returns a profile. Subjects may only read their own.
func (s *Service) GetProfile(ctx context.Context, profileID id.ProfileID) (*models.Profile, error) {
	var p *models.Profile
	err := s.tracked(ctx, "get_profile", func(ctx context.Context) error {
		actor, err := actorFrom(ctx)
		if err != nil {
			return err
		}
		loaded, err := s.load(ctx, profileID)
		if err != nil {
			return err
		}
		if err := authorize(actor, loaded, readAccess); err != nil {
			return err
		}
		p = loaded
		return nil
	}, attribute.String("profile.id", profileID.String()))
	return p, err
}

// MyProfile returns the acting subject's profile.
func (s *Service) MyProfile(ctx context.Context) (*models.Profile, error) {
	var p *models.Profile
	err := s.tracked(ctx, "my_profile", func(ctx context.Context) error {
		actor, err := actorFrom(ctx)
		if err != nil {
			return err
		}
		if err := requireRole(actor, id.RoleSubject); err != nil {
			return err
		}
		found, err := s.store.FindBySubject(ctx, actor.ID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "no profile for this subject")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
		}
		p = found
		return nil
	})
	return p, err
}

// Overview returns the section list and completeness of a profile.
func (s *Service) Overview(ctx context.Context, profileID id.ProfileID) (query.Overview, error) {
	p, err := s.GetProfile(ctx, profileID)
	if err != nil {
		return query.Overview{}, err
	}
	return query.ProfileOverview(p), nil
}

// ListProfiles returns every profile to reviewers and observers.
func (s *Service) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	var out []*models.Profile
	err := s.tracked(ctx, "list_profiles", func(ctx context.Context) error {
		actor, err := actorFrom(ctx)
		if err != nil {
			return err
		}
		if err := requireRole(actor, id.RoleReviewer, id.RoleObserver); err != nil {
			return err
		}
		out, err = s.listAll(ctx)
		return err
	})
	return out, err
}

// ReviewQueue lists profiles waiting on a reviewer, oldest submission first.
func (s *Service) ReviewQueue(ctx context.Context) ([]query.QueueEntry, error) {
	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	return query.ReviewQueue(profiles), nil
}

// Dashboard aggregates every profile and the latest activity for observers.
func (s *Service) Dashboard(ctx context.Context) (query.Dashboard, error) {
	var d query.Dashboard
	err := s.tracked(ctx, "dashboard", func(ctx context.Context) error {
		actor, err := actorFrom(ctx)
		if err != nil {
			return err
		}
		if err := requireRole(actor, id.RoleObserver); err != nil {
			return err
		}
		profiles, err := s.listAll(ctx)
		if err != nil {
			return err
		}
		var recent []audit.Entry
		if s.auditPublisher != nil {
			recent, err = s.auditPublisher.List(ctx, audit.Filter{Limit: query.RecentActivityLimit})
			if err != nil {
				s.logger.WarnContext(ctx, "failed to list recent activity", "error", err)
				recent = nil
			}
		}
		d = query.BuildDashboard(profiles, recent)
		return nil
	})
	return d, err
}

// ActivityLog lists activity entries newest-first for observers.
func (s *Service) ActivityLog(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	var out []audit.Entry
	err := s.tracked(ctx, "activity_log", func(ctx context.Context) error {
		actor, err := actorFrom(ctx)
		if err != nil {
			return err
		}
		if err := requireRole(actor, id.RoleObserver); err != nil {
			return err
		}
		if s.auditPublisher == nil {
			out = []audit.Entry{}
			return nil
		}
		out, err = s.auditPublisher.List(ctx, filter)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list activity")
		}
		return nil
	})
	return out, err
}

func (s *Service) listAll(ctx context.Context) ([]*models.Profile, error) {
	profiles, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list profiles")
	}
	return profiles, nil
}

// tracked wraps a read-only call in a span.
func (s *Service) tracked(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, done := s.track(ctx, op, attrs...)
	err := fn(ctx)
	done(err)
	return err
}
