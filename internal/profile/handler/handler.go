// Package handler exposes the profile review workflow over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dossier/internal/profile/models"
	"dossier/internal/profile/query"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	audit "dossier/pkg/platform/audit"
	"dossier/pkg/platform/httputil"
	"dossier/pkg/requestcontext"
)

// Service is the profile workflow the handler drives.
type Service interface {
	CreateProfile(ctx context.Context, subject models.SubjectRef) (*models.Profile, error)
	AddItem(ctx context.Context, profileID id.ProfileID, sectionID id.SectionID, draft models.ItemDraft) (*models.Profile, id.ItemID, error)
	UpdateItem(ctx context.Context, profileID id.ProfileID, itemID id.ItemID, patch models.ItemPatch) (*models.Profile, error)
	DeleteItem(ctx context.Context, profileID id.ProfileID, itemID id.ItemID) (*models.Profile, error)
	AttachEvidence(ctx context.Context, profileID id.ProfileID, itemID id.ItemID, files []models.FileUpload) (*models.Profile, []models.FileRejection, error)
	RemoveEvidence(ctx context.Context, profileID id.ProfileID, itemID id.ItemID, evidenceID id.EvidenceID) (*models.Profile, error)
	SubmitSection(ctx context.Context, profileID id.ProfileID, sectionID id.SectionID) (*models.Profile, error)
	RecordItemDecision(ctx context.Context, profileID id.ProfileID, itemID id.ItemID, outcome models.Outcome, remark string) (*models.Profile, error)
	FinalizeSectionReview(ctx context.Context, profileID id.ProfileID, sectionID id.SectionID, remark string) (*models.Profile, error)
	SaveIdentity(ctx context.Context, profileID id.ProfileID, draft models.IdentityDraft) (*models.Profile, error)
	SubmitIdentity(ctx context.Context, profileID id.ProfileID) (*models.Profile, error)
	ResolveIdentity(ctx context.Context, profileID id.ProfileID, approved bool, remark string) (*models.Profile, error)
	AttachIdentityEvidence(ctx context.Context, profileID id.ProfileID, files []models.FileUpload) (*models.Profile, []models.FileRejection, error)
	RemoveIdentityEvidence(ctx context.Context, profileID id.ProfileID, evidenceID id.EvidenceID) (*models.Profile, error)

	GetProfile(ctx context.Context, profileID id.ProfileID) (*models.Profile, error)
	MyProfile(ctx context.Context) (*models.Profile, error)
	Overview(ctx context.Context, profileID id.ProfileID) (query.Overview, error)
	ListProfiles(ctx context.Context) ([]*models.Profile, error)
	ReviewQueue(ctx context.Context) ([]query.QueueEntry, error)
	Dashboard(ctx context.Context) (query.Dashboard, error)
	ActivityLog(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// maxActivityLimit caps ?limit on GET /audit.
const maxActivityLimit = 500

// Handler wires profile endpoints to the profile service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the profile, review and reporting endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Route("/profiles", func(r chi.Router) {
		r.Post("/", h.HandleCreateProfile)
		r.Get("/", h.HandleListProfiles)
		r.Get("/me", h.HandleMyProfile)

		r.Route("/{profileID}", func(r chi.Router) {
			r.Get("/", h.HandleGetProfile)
			r.Get("/overview", h.HandleOverview)

			r.Post("/sections/{sectionID}/items", h.HandleAddItem)
			r.Post("/sections/{sectionID}/submit", h.HandleSubmitSection)
			r.Post("/sections/{sectionID}/finalize", h.HandleFinalizeSection)

			r.Patch("/items/{itemID}", h.HandleUpdateItem)
			r.Delete("/items/{itemID}", h.HandleDeleteItem)
			r.Post("/items/{itemID}/evidence", h.HandleAttachEvidence)
			r.Delete("/items/{itemID}/evidence/{evidenceID}", h.HandleRemoveEvidence)
			r.Post("/items/{itemID}/decision", h.HandleDecision)

			r.Put("/identity", h.HandleSaveIdentity)
			r.Post("/identity/submit", h.HandleSubmitIdentity)
			r.Post("/identity/resolve", h.HandleResolveIdentity)
			r.Post("/identity/evidence", h.HandleAttachIdentityEvidence)
			r.Delete("/identity/evidence/{evidenceID}", h.HandleRemoveIdentityEvidence)
		})
	})
	r.Get("/review-queue", h.HandleReviewQueue)
	r.Get("/dashboard", h.HandleDashboard)
	r.Get("/audit", h.HandleActivity)
}

// HandleCreateProfile handles POST /profiles.
func (h *Handler) HandleCreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateProfileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.CreateProfile(ctx, req.SubjectRef())
	if err != nil {
		h.fail(ctx, w, "create profile failed", err)
		return
	}
	h.logger.InfoContext(ctx, "profile created",
		"request_id", requestID,
		"profile_id", p.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) HandleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.ListProfiles(r.Context())
	if err != nil {
		h.fail(r.Context(), w, "list profiles failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ProfileListResponse{Profiles: profiles, Total: len(profiles)})
}

func (h *Handler) HandleMyProfile(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "load own profile failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.MyProfile(ctx)
	})
}

func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "load profile failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.GetProfile(ctx, profileID)
	})
}

func (h *Handler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "load overview failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.Overview(ctx, profileID)
	})
}

// HandleAddItem handles POST /profiles/{profileID}/sections/{sectionID}/items.
func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	sectionID, ok := h.sectionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddItemRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, itemID, err := h.service.AddItem(ctx, profileID, sectionID, req.ItemDraft)
	if err != nil {
		h.fail(ctx, w, "add item failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ItemCreatedResponse{ItemID: itemID, Profile: p})
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID, itemID, ok := h.itemPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateItemRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "update item failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.UpdateItem(ctx, profileID, itemID, req.ItemPatch)
	})
}

func (h *Handler) HandleDeleteItem(w http.ResponseWriter, r *http.Request) {
	profileID, itemID, ok := h.itemPath(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "delete item failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.DeleteItem(ctx, profileID, itemID)
	})
}

// HandleAttachEvidence handles POST /profiles/{profileID}/items/{itemID}/evidence.
// A partially accepted batch answers 200 with the refused files listed.
func (h *Handler) HandleAttachEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID, itemID, ok := h.itemPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AttachEvidenceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, rejected, err := h.service.AttachEvidence(ctx, profileID, itemID, req.Files)
	if err != nil {
		h.fail(ctx, w, "attach evidence failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, evidenceResponse(p, rejected))
}

func (h *Handler) HandleRemoveEvidence(w http.ResponseWriter, r *http.Request) {
	profileID, itemID, ok := h.itemPath(w, r)
	if !ok {
		return
	}
	evidenceID, ok := h.evidenceID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "remove evidence failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.RemoveEvidence(ctx, profileID, itemID, evidenceID)
	})
}

func (h *Handler) HandleSubmitSection(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	sectionID, ok := h.sectionID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "submit section failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.SubmitSection(ctx, profileID, sectionID)
	})
}

// HandleDecision handles POST /profiles/{profileID}/items/{itemID}/decision.
func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID, itemID, ok := h.itemPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "record decision failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.RecordItemDecision(ctx, profileID, itemID, req.ParsedOutcome(), req.Remark)
	})
}

func (h *Handler) HandleFinalizeSection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	sectionID, ok := h.sectionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RemarkRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "finalize review failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.FinalizeSectionReview(ctx, profileID, sectionID, req.Remark)
	})
}

func (h *Handler) HandleSaveIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[IdentityRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "save identity failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.SaveIdentity(ctx, profileID, req.IdentityDraft)
	})
}

func (h *Handler) HandleSubmitIdentity(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "submit identity failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.SubmitIdentity(ctx, profileID)
	})
}

func (h *Handler) HandleResolveIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveIdentityRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, r, "resolve identity failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.ResolveIdentity(ctx, profileID, *req.Approved, req.Remark)
	})
}

func (h *Handler) HandleAttachIdentityEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AttachEvidenceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, rejected, err := h.service.AttachIdentityEvidence(ctx, profileID, req.Files)
	if err != nil {
		h.fail(ctx, w, "attach identity evidence failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, evidenceResponse(p, rejected))
}

func (h *Handler) HandleRemoveIdentityEvidence(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	evidenceID, ok := h.evidenceID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "remove identity evidence failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.RemoveIdentityEvidence(ctx, profileID, evidenceID)
	})
}

func (h *Handler) HandleReviewQueue(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "load review queue failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.ReviewQueue(ctx)
	})
}

func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "load dashboard failed", http.StatusOK, func(ctx context.Context) (any, error) {
		return h.service.Dashboard(ctx)
	})
}

// HandleActivity handles GET /audit. Supported query parameters are
// actor_id, action, target_kind, target_id and limit.
func (h *Handler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.ActivityLog(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "list activity failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ActivityResponse{Entries: entries, Total: len(entries)})
}

func parseFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	var f audit.Filter
	if raw := q.Get("actor_id"); raw != "" {
		actorID, err := id.ParseUserID(raw)
		if err != nil {
			return f, err
		}
		f.ActorID = actorID
	}
	if raw := q.Get("action"); raw != "" {
		f.Action = audit.Action(raw)
		if !f.Action.IsKnown() {
			return f, dErrors.Newf(dErrors.CodeValidation, "unknown action %q", raw)
		}
	}
	if raw := q.Get("target_kind"); raw != "" {
		f.TargetKind = audit.TargetKind(raw)
	}
	f.TargetID = q.Get("target_id")
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return f, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
		}
		f.Limit = min(limit, maxActivityLimit)
	}
	return f, nil
}

// respond runs fn and writes its result, or the mapped error.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, failure string, status int, fn func(ctx context.Context) (any, error)) {
	ctx := r.Context()
	result, err := fn(ctx)
	if err != nil {
		h.fail(ctx, w, failure, err)
		return
	}
	httputil.WriteJSON(w, status, result)
}

// fail logs err at a level matching its status and writes the response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) profileID(w http.ResponseWriter, r *http.Request) (id.ProfileID, bool) {
	profileID, err := id.ParseProfileID(chi.URLParam(r, "profileID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ProfileID{}, false
	}
	return profileID, true
}

func (h *Handler) sectionID(w http.ResponseWriter, r *http.Request) (id.SectionID, bool) {
	sectionID, err := id.ParseSectionID(chi.URLParam(r, "sectionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.SectionID{}, false
	}
	return sectionID, true
}

func (h *Handler) evidenceID(w http.ResponseWriter, r *http.Request) (id.EvidenceID, bool) {
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "evidenceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.EvidenceID{}, false
	}
	return evidenceID, true
}

func (h *Handler) itemPath(w http.ResponseWriter, r *http.Request) (id.ProfileID, id.ItemID, bool) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return id.ProfileID{}, id.ItemID{}, false
	}
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ProfileID{}, id.ItemID{}, false
	}
	return profileID, itemID, true
}
