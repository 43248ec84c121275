package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dossier/internal/profile/aggregate"
	"dossier/internal/profile/metrics"
	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	audit "dossier/pkg/platform/audit"
	"dossier/pkg/platform/middleware/metadata"
	"dossier/pkg/platform/sentinel"
	"dossier/pkg/requestcontext"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProfileStore persists whole profiles. Save succeeds only when the stored
// version equals expectedVersion; otherwise it returns sentinel.ErrConflict.
type ProfileStore interface {
	Create(ctx context.Context, profile *models.Profile) error
	FindByID(ctx context.Context, profileID id.ProfileID) (*models.Profile, error)
	FindBySubject(ctx context.Context, subjectID id.UserID) (*models.Profile, error)
	List(ctx context.Context) ([]*models.Profile, error)
	Save(ctx context.Context, profile *models.Profile, expectedVersion int64) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
	List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// IDGenerator supplies identifiers for new profiles and their parts.
type IDGenerator interface {
	aggregate.IDs
	NewProfileID() id.ProfileID
	NewSectionID() id.SectionID
}

type uuidGenerator struct{}

func (uuidGenerator) NewProfileID() id.ProfileID   { return id.ProfileID(uuid.New()) }
func (uuidGenerator) NewSectionID() id.SectionID   { return id.SectionID(uuid.New()) }
func (uuidGenerator) NewItemID() id.ItemID         { return id.ItemID(uuid.New()) }
func (uuidGenerator) NewEvidenceID() id.EvidenceID { return id.EvidenceID(uuid.New()) }

// Service runs profile commands for the three roles: it loads the profile,
// checks the actor, applies the aggregate operation, saves the result under
// the version it was read at, then records the activity entry.
type Service struct {
	store          ProfileStore
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	policy         models.UploadPolicy
	ids            IDGenerator
	tracer         trace.Tracer
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithUploadPolicy replaces the default 5 MiB PDF/JPEG/PNG policy.
func WithUploadPolicy(policy models.UploadPolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Service) {
		s.ids = ids
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service.
func New(store ProfileStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		policy: models.DefaultUploadPolicy(),
		ids:    uuidGenerator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("dossier/profile")
	}
	return s
}

// access is who may run an operation on a given profile.
type access int

const (
	// ownerAccess admits the subject the profile belongs to.
	ownerAccess access = iota
	// reviewerAccess admits any reviewer.
	reviewerAccess
	// readAccess admits the owner, reviewers and observers.
	readAccess
)

type mutation func(p *models.Profile, actor id.Actor, now time.Time) (*models.Profile, aggregate.Change, error)

// apply is the single write path: load, authorize, mutate, save, record.
func (s *Service) apply(ctx context.Context, op string, profileID id.ProfileID, gate access, fn mutation) (*models.Profile, error) {
	ctx, done := s.track(ctx, op, attribute.String("profile.id", profileID.String()))

	actor, err := actorFrom(ctx)
	if err != nil {
		done(err)
		return nil, err
	}
	current, err := s.load(ctx, profileID)
	if err != nil {
		done(err)
		return nil, err
	}
	if err := authorize(actor, current, gate); err != nil {
		done(err)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	next, change, err := fn(current, actor, now)
	if err != nil {
		done(err)
		return nil, err
	}
	next.Version = current.Version + 1

	if err := s.store.Save(ctx, next, current.Version); err != nil {
		err = s.translateSaveError(err)
		done(err)
		return nil, err
	}

	s.observeTransitions(current, next)
	s.record(ctx, actor, current.ID, change, now)
	done(nil)
	return next, nil
}

// track starts a span for op and returns a function that ends it and
// records the command latency.
func (s *Service) track(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "profile."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			result = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		s.metrics.ObserveCommand(op, result, time.Since(start))
		span.End()
	}
}

func (s *Service) load(ctx context.Context, profileID id.ProfileID) (*models.Profile, error) {
	p, err := s.store.FindByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	return p, nil
}

func (s *Service) translateSaveError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		s.metrics.IncrementConflict()
		return dErrors.New(dErrors.CodeConflict, "profile was changed by another request; reload and retry")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "profile not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile")
}

func actorFrom(ctx context.Context) (id.Actor, error) {
	actor, ok := requestcontext.Actor(ctx)
	if !ok || actor.ID.IsNil() {
		return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "no acting user")
	}
	return actor, nil
}

func requireRole(actor id.Actor, roles ...id.Role) error {
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeForbidden, "role %s may not perform this operation", actor.Role)
}

func authorize(actor id.Actor, p *models.Profile, gate access) error {
	switch gate {
	case ownerAccess:
		if actor.Role != id.RoleSubject || actor.ID != p.SubjectID {
			return dErrors.New(dErrors.CodeForbidden, "only the profile owner may change it")
		}
		return nil
	case reviewerAccess:
		return requireRole(actor, id.RoleReviewer)
	case readAccess:
		if actor.Role == id.RoleSubject && actor.ID != p.SubjectID {
			return dErrors.New(dErrors.CodeForbidden, "profile belongs to another subject")
		}
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "operation not permitted")
}

// record writes the activity entry for change. Failures are logged and
// counted; they never fail the command.
func (s *Service) record(ctx context.Context, actor id.Actor, profileID id.ProfileID, change aggregate.Change, now time.Time) {
	requestID := requestcontext.RequestID(ctx)
	client := metadata.ClientFrom(ctx)
	s.logger.InfoContext(ctx, string(change.Action),
		"event", string(change.Action),
		"log_type", "audit",
		"request_id", requestID,
		"actor_id", actor.ID.String(),
		"profile_id", profileID.String(),
		"target_kind", string(change.TargetKind),
		"target_id", change.TargetID,
		"client_ip", client.IP,
		"client_device", client.Device,
	)
	if s.auditPublisher == nil {
		return
	}

	details := make(map[string]string, len(change.Details)+1)
	for k, v := range change.Details {
		details[k] = v
	}
	details["profile"] = profileID.String()

	err := s.auditPublisher.Emit(ctx, audit.Entry{
		ActorID:       actor.ID,
		ActorSnapshot: audit.ActorSnapshot{Name: actor.Name, Role: actor.Role},
		Action:        change.Action,
		TargetKind:    change.TargetKind,
		TargetID:      change.TargetID,
		Details:       details,
		RequestID:     requestID,
		Timestamp:     now,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record activity",
			"error", err,
			"action", string(change.Action),
			"request_id", requestID,
		)
		s.metrics.IncrementAuditFailure(string(change.Action))
	}
}

// observeTransitions counts every state that changed between prev and next.
// Unchanged sections and items are shared pointers and are skipped.
func (s *Service) observeTransitions(prev, next *models.Profile) {
	if s.metrics == nil {
		return
	}
	for i, section := range next.Sections {
		if i >= len(prev.Sections) || prev.Sections[i] == section {
			continue
		}
		old := prev.Sections[i]
		if old.State != section.State {
			s.metrics.IncrementTransition("section", string(section.State))
		}
		for _, it := range section.Items {
			oi := old.ItemIndex(it.ID)
			if oi >= 0 && old.Items[oi] == it {
				continue
			}
			if oi < 0 || old.Items[oi].State != it.State {
				s.metrics.IncrementTransition("item", string(it.State))
			}
		}
	}
	switch {
	case next.Identity == nil:
	case prev.Identity == nil:
		s.metrics.IncrementTransition("identity", string(next.Identity.State))
	case prev.Identity.State != next.Identity.State:
		s.metrics.IncrementTransition("identity", string(next.Identity.State))
	}
}
