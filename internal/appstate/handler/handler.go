// Package handler exposes the console role selector.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"dossier/internal/appstate"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	"dossier/pkg/platform/httputil"
	"dossier/pkg/requestcontext"
)

// Service is the role selector.
type Service interface {
	Current() (appstate.Selection, id.Actor)
	Select(ctx context.Context, role id.Role, actorID *id.UserID) (appstate.Selection, id.Actor, error)
	Directory() *appstate.Directory
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/session/role", h.HandleGetRole)
	r.Put("/session/role", h.HandleSelectRole)
}

// SelectRoleRequest is the body for PUT /session/role. ActorID is optional;
// the role's default actor is used when it is absent.
type SelectRoleRequest struct {
	Role    string `json:"role"`
	ActorID string `json:"actor_id,omitempty"`

	role    id.Role
	actorID *id.UserID
}

func (r *SelectRoleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	role, err := id.ParseRole(strings.ToLower(strings.TrimSpace(r.Role)))
	if err != nil {
		return err
	}
	r.role = role
	if raw := strings.TrimSpace(r.ActorID); raw != "" {
		actorID, err := id.ParseUserID(raw)
		if err != nil {
			return err
		}
		r.actorID = &actorID
	}
	return nil
}

// RoleResponse describes the active selection and who can be chosen.
type RoleResponse struct {
	Selection appstate.Selection `json:"selection"`
	Actor     id.Actor           `json:"actor"`
	Available []id.Actor         `json:"available"`
}

// HandleGetRole handles GET /session/role.
func (h *Handler) HandleGetRole(w http.ResponseWriter, r *http.Request) {
	sel, actor := h.service.Current()
	httputil.WriteJSON(w, http.StatusOK, h.response(sel, actor))
}

// HandleSelectRole handles PUT /session/role.
func (h *Handler) HandleSelectRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SelectRoleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sel, actor, err := h.service.Select(ctx, req.role, req.actorID)
	if err != nil {
		h.logger.WarnContext(ctx, "role selection failed",
			"request_id", requestID,
			"role", req.role,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.response(sel, actor))
}

func (h *Handler) response(sel appstate.Selection, actor id.Actor) RoleResponse {
	return RoleResponse{Selection: sel, Actor: actor, Available: h.service.Directory().Actors()}
}
