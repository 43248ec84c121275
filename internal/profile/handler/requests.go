package handler

import (
	"strings"

	"dossier/internal/profile/models"
	dErrors "dossier/pkg/domain-errors"
)

// CreateProfileRequest is the body for POST /profiles.
type CreateProfileRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	WorkerNumber string `json:"worker_number"`
}

func (r *CreateProfileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.WorkerNumber = strings.TrimSpace(r.WorkerNumber)
	if len(r.Name) > 200 || len(r.Email) > 254 || len(r.WorkerNumber) > 64 {
		return dErrors.New(dErrors.CodeValidation, "subject fields are too long")
	}
	return nil
}

func (r *CreateProfileRequest) SubjectRef() models.SubjectRef {
	return models.SubjectRef{Name: r.Name, Email: r.Email, WorkerNumber: r.WorkerNumber}
}

// AddItemRequest is the body for POST /profiles/{id}/sections/{sid}/items.
// Attributes use the {"kind": ..., "fields": {...}} envelope.
type AddItemRequest struct {
	models.ItemDraft
}

func (r *AddItemRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.ItemDraft = r.ItemDraft.Normalize()
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	return nil
}

// UpdateItemRequest is the body for PATCH /profiles/{id}/items/{iid}.
type UpdateItemRequest struct {
	models.ItemPatch
}

func (r *UpdateItemRequest) Validate() error {
	if r == nil || r.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "at least one field must change")
	}
	return nil
}

// maxFilesPerUpload bounds one evidence batch.
const maxFilesPerUpload = 20

// AttachEvidenceRequest is the body for evidence uploads. The files have
// already been written to blob storage; only their metadata arrives here.
type AttachEvidenceRequest struct {
	Files []models.FileUpload `json:"files"`
}

func (r *AttachEvidenceRequest) Validate() error {
	if r == nil || len(r.Files) == 0 {
		return dErrors.New(dErrors.CodeValidation, "files are required")
	}
	if len(r.Files) > maxFilesPerUpload {
		return dErrors.Newf(dErrors.CodeValidation, "at most %d files per upload", maxFilesPerUpload)
	}
	for i := range r.Files {
		r.Files[i].Filename = strings.TrimSpace(r.Files[i].Filename)
		r.Files[i].StorageRef = strings.TrimSpace(r.Files[i].StorageRef)
	}
	return nil
}

// DecisionRequest is the body for POST /profiles/{id}/items/{iid}/decision.
type DecisionRequest struct {
	Outcome string `json:"outcome"`
	Remark  string `json:"remark"`

	outcome models.Outcome
}

func (r *DecisionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.outcome = models.Outcome(strings.ToUpper(strings.TrimSpace(r.Outcome)))
	if !r.outcome.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "outcome must be APPROVED, FLAGGED or REJECTED; got %q", r.Outcome)
	}
	r.Remark = strings.TrimSpace(r.Remark)
	return nil
}

func (r *DecisionRequest) ParsedOutcome() models.Outcome { return r.outcome }

// RemarkRequest carries an optional reviewer remark.
type RemarkRequest struct {
	Remark string `json:"remark"`
}

func (r *RemarkRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Remark = strings.TrimSpace(r.Remark)
	return nil
}

// IdentityRequest is the body for PUT /profiles/{id}/identity.
type IdentityRequest struct {
	models.IdentityDraft
}

func (r *IdentityRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.IdentityDraft = r.IdentityDraft.Normalize()
	return nil
}

// ResolveIdentityRequest is the body for POST /profiles/{id}/identity/resolve.
type ResolveIdentityRequest struct {
	Approved *bool  `json:"approved"`
	Remark   string `json:"remark"`
}

func (r *ResolveIdentityRequest) Validate() error {
	if r == nil || r.Approved == nil {
		return dErrors.New(dErrors.CodeValidation, "approved is required")
	}
	r.Remark = strings.TrimSpace(r.Remark)
	return nil
}
