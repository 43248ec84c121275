package appstate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	audit "dossier/pkg/platform/audit"
	"dossier/pkg/platform/sentinel"
	"dossier/pkg/requestcontext"
)

// Store persists the single Selection. Load returns sentinel.ErrNotFound
// when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (*Selection, error)
	Save(ctx context.Context, sel Selection) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Service owns the current role selection. It is created once at startup
// and shared by reference.
type Service struct {
	store          Store
	directory      *Directory
	logger         *slog.Logger
	auditPublisher AuditPublisher

	mu      sync.RWMutex
	current Selection
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// New loads the persisted selection, falling back to the subject role's
// default actor. directory must hold a default actor for every role.
func New(ctx context.Context, store Store, directory *Directory, opts ...Option) (*Service, error) {
	s := &Service{store: store, directory: directory}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, role := range []id.Role{id.RoleSubject, id.RoleReviewer, id.RoleObserver} {
		if _, ok := directory.Default(role); !ok {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "no default actor for role %s", role)
		}
	}

	persisted, err := store.Load(ctx)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		s.current = s.selectionFor(id.RoleSubject, requestcontext.Now(ctx))
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load role selection")
	default:
		s.current = *persisted
		if a, ok := directory.Lookup(persisted.ActorID); !ok || a.Role != persisted.Role {
			s.current = s.selectionFor(persisted.Role, persisted.UpdatedAt)
		}
	}
	return s, nil
}

// Directory returns the actor directory the service resolves against.
func (s *Service) Directory() *Directory { return s.directory }

// Current returns the active selection and its actor.
func (s *Service) Current() (Selection, id.Actor) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, _ := s.directory.Lookup(s.current.ActorID)
	return s.current, a
}

// Select switches the console to role, acting as actorID when given or the
// role's default actor otherwise. The change is persisted and recorded.
func (s *Service) Select(ctx context.Context, role id.Role, actorID *id.UserID) (Selection, id.Actor, error) {
	if !role.IsValid() {
		return Selection{}, id.Actor{}, dErrors.Newf(dErrors.CodeValidation, "unknown role %q", role)
	}
	now := requestcontext.Now(ctx)
	next := s.selectionFor(role, now)
	if actorID != nil {
		a, ok := s.directory.Lookup(*actorID)
		if !ok {
			return Selection{}, id.Actor{}, dErrors.New(dErrors.CodeNotFound, "unknown actor")
		}
		if a.Role != role {
			return Selection{}, id.Actor{}, dErrors.Newf(dErrors.CodeValidation, "actor is a %s, not a %s", a.Role, role)
		}
		next.ActorID = a.ID
	}

	s.mu.Lock()
	if err := s.store.Save(ctx, next); err != nil {
		s.mu.Unlock()
		return Selection{}, id.Actor{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save role selection")
	}
	previous := s.current
	s.current = next
	s.mu.Unlock()

	actor, _ := s.directory.Lookup(next.ActorID)
	s.record(ctx, actor, previous.Role)
	return next, actor, nil
}

// Resolve returns the actor for a request. An empty header means the
// currently selected actor; otherwise the header must name a known actor.
func (s *Service) Resolve(_ context.Context, header string) (id.Actor, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		_, a := s.Current()
		return a, nil
	}
	actorID, err := id.ParseUserID(header)
	if err != nil {
		return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "malformed actor id")
	}
	a, ok := s.directory.Lookup(actorID)
	if !ok {
		return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "unknown actor")
	}
	return a, nil
}

func (s *Service) selectionFor(role id.Role, at time.Time) Selection {
	a, _ := s.directory.Default(role)
	return Selection{Role: role, ActorID: a.ID, UpdatedAt: at}
}

func (s *Service) record(ctx context.Context, actor id.Actor, previous id.Role) {
	requestID := requestcontext.RequestID(ctx)
	s.logger.InfoContext(ctx, string(audit.ActionRoleSelected),
		"event", string(audit.ActionRoleSelected),
		"log_type", "audit",
		"request_id", requestID,
		"actor_id", actor.ID.String(),
		"role", actor.Role.String(),
		"previous_role", previous.String(),
	)
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Entry{
		ActorID:       actor.ID,
		ActorSnapshot: audit.ActorSnapshot{Name: actor.Name, Role: actor.Role},
		Action:        audit.ActionRoleSelected,
		TargetKind:    audit.TargetSession,
		TargetID:      actor.ID.String(),
		Details:       map[string]string{"role": actor.Role.String(), "previous_role": previous.String()},
		RequestID:     requestID,
		Timestamp:     requestcontext.Now(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record role selection", "error", err, "request_id", requestID)
	}
}
