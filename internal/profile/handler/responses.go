package handler

import (
	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
	audit "dossier/pkg/platform/audit"
)

// ItemCreatedResponse is returned by POST .../items.
type ItemCreatedResponse struct {
	ItemID  id.ItemID       `json:"item_id"`
	Profile *models.Profile `json:"profile"`
}

// EvidenceResponse is returned by evidence uploads. Rejected lists the files
// that were refused while the rest of the batch was attached.
type EvidenceResponse struct {
	Profile  *models.Profile        `json:"profile"`
	Rejected []models.FileRejection `json:"rejected"`
}

func evidenceResponse(p *models.Profile, rejected []models.FileRejection) EvidenceResponse {
	if rejected == nil {
		rejected = []models.FileRejection{}
	}
	return EvidenceResponse{Profile: p, Rejected: rejected}
}

// ProfileListResponse is returned by GET /profiles.
type ProfileListResponse struct {
	Profiles []*models.Profile `json:"profiles"`
	Total    int               `json:"total"`
}

// ActivityResponse is returned by GET /audit.
type ActivityResponse struct {
	Entries []audit.Entry `json:"entries"`
	Total   int           `json:"total"`
}
