// Package query derives read models from profiles and audit entries. Every
// function is pure and leaves its inputs untouched.
package query

import (
	"math"
	"sort"
	"time"

	"dossier/internal/profile/engine"
	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
	audit "dossier/pkg/platform/audit"
)

// RecentActivityLimit is the number of audit entries shown on the dashboard.
const RecentActivityLimit = 15

// Progress counts the items of a section by review outcome.
type Progress struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
	Flagged  int `json:"flagged"`
}

// SectionSummary is one row of a profile's section list.
type SectionSummary struct {
	SectionID     id.SectionID        `json:"section_id"`
	CatalogID     models.CatalogID    `json:"catalog_id"`
	Name          string              `json:"name"`
	Order         int                 `json:"order"`
	Icon          string              `json:"icon"`
	State         models.SectionState `json:"state"`
	Remark        string              `json:"remark,omitempty"`
	EvidenceCount int                 `json:"evidence_count"`
	Progress      Progress            `json:"progress"`
	CanSubmit     bool                `json:"can_submit"`
	SubmittedAt   *time.Time          `json:"submitted_at,omitempty"`
	ValidatedAt   *time.Time          `json:"validated_at,omitempty"`
}

// SectionProgress counts approved items, items still in DRAFT or IN_REVIEW,
// and items sent back as FLAGGED or REJECTED.
func SectionProgress(section *models.ProfileSection) Progress {
	p := Progress{Total: len(section.Items)}
	for _, it := range section.Items {
		switch it.State {
		case models.ItemApproved:
			p.Approved++
		case models.ItemStateDraft, models.ItemInReview:
			p.Pending++
		case models.ItemFlagged, models.ItemRejected:
			p.Flagged++
		}
	}
	return p
}

// Sections lists the profile's sections in catalog order.
func Sections(p *models.Profile) []SectionSummary {
	out := make([]SectionSummary, 0, len(p.Sections))
	for _, s := range p.Sections {
		entry, _ := models.LookupSection(s.CatalogID)
		evidence := 0
		for _, it := range s.Items {
			evidence += len(it.Evidence)
		}
		out = append(out, SectionSummary{
			SectionID:     s.ID,
			CatalogID:     s.CatalogID,
			Name:          s.Name(),
			Order:         entry.Order,
			Icon:          entry.Icon,
			State:         s.State,
			Remark:        s.Remark,
			EvidenceCount: evidence,
			Progress:      SectionProgress(s),
			CanSubmit:     engine.CanSubmitSection(s),
			SubmittedAt:   s.SubmittedAt,
			ValidatedAt:   s.ValidatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Completeness is the rounded percentage of sections that are VALIDATED or
// hold at least one item. A profile without sections is 0% complete.
func Completeness(p *models.Profile) int {
	if len(p.Sections) == 0 {
		return 0
	}
	populated := 0
	for _, s := range p.Sections {
		if s.State == models.SectionValidated || len(s.Items) > 0 {
			populated++
		}
	}
	return int(math.Round(float64(populated) / float64(len(p.Sections)) * 100))
}

// IsComplete reports whether every section and the identity are VALIDATED.
func IsComplete(p *models.Profile) bool {
	if p.Identity == nil || p.Identity.State != models.IdentityValidated {
		return false
	}
	for _, s := range p.Sections {
		if s.State != models.SectionValidated {
			return false
		}
	}
	return true
}

// Overview is the subject's view of their own profile.
type Overview struct {
	ProfileID      id.ProfileID          `json:"profile_id"`
	Subject        models.SubjectRef     `json:"subject"`
	Completeness   int                   `json:"completeness"`
	IdentityState  *models.IdentityState `json:"identity_state,omitempty"`
	Sections       []SectionSummary      `json:"sections"`
	TotalItems     int                   `json:"total_items"`
	TotalEvidence  int                   `json:"total_evidence"`
	ValidatedCount int                   `json:"validated_sections"`
	Version        int64                 `json:"version"`
}

// ProfileOverview assembles the section list and headline numbers of p.
func ProfileOverview(p *models.Profile) Overview {
	sections := Sections(p)
	o := Overview{
		ProfileID:    p.ID,
		Subject:      p.Subject,
		Completeness: Completeness(p),
		Sections:     sections,
		Version:      p.Version,
	}
	if p.Identity != nil {
		state := p.Identity.State
		o.IdentityState = &state
	}
	for _, s := range sections {
		o.TotalItems += s.Progress.Total
		o.TotalEvidence += s.EvidenceCount
		if s.State == models.SectionValidated {
			o.ValidatedCount++
		}
	}
	return o
}

// Dashboard aggregates every profile for observers.
type Dashboard struct {
	TotalProfiles      int                         `json:"total_profiles"`
	TotalSections      int                         `json:"total_sections"`
	TotalItems         int                         `json:"total_items"`
	SectionsByState    map[models.SectionState]int `json:"sections_by_state"`
	IdentitiesValid    int                         `json:"identities_validated"`
	IdentitiesPending  int                         `json:"identities_pending"`
	CompleteProfiles   int                         `json:"complete_profiles"`
	AverageCompletion  int                         `json:"average_completeness"`
	RecentActivity     []audit.Entry               `json:"recent_activity"`
	ActivityByCategory map[audit.EventCategory]int `json:"activity_by_category"`
}

// BuildDashboard computes the observer dashboard. recent must already be
// newest-first; only the first RecentActivityLimit entries are kept.
func BuildDashboard(profiles []*models.Profile, recent []audit.Entry) Dashboard {
	d := Dashboard{
		TotalProfiles: len(profiles),
		SectionsByState: map[models.SectionState]int{
			models.SectionDraft:     0,
			models.SectionInReview:  0,
			models.SectionValidated: 0,
			models.SectionFlagged:   0,
		},
		ActivityByCategory: map[audit.EventCategory]int{},
	}

	completion := 0
	for _, p := range profiles {
		d.TotalSections += len(p.Sections)
		for _, s := range p.Sections {
			d.TotalItems += len(s.Items)
			d.SectionsByState[s.State]++
		}
		switch {
		case p.Identity != nil && p.Identity.State == models.IdentityValidated:
			d.IdentitiesValid++
		case p.Identity == nil, p.Identity.State == models.IdentityPending, p.Identity.State == models.IdentityInReview:
			d.IdentitiesPending++
		}
		if IsComplete(p) {
			d.CompleteProfiles++
		}
		completion += Completeness(p)
	}
	if len(profiles) > 0 {
		d.AverageCompletion = int(math.Round(float64(completion) / float64(len(profiles))))
	}

	if len(recent) > RecentActivityLimit {
		recent = recent[:RecentActivityLimit]
	}
	d.RecentActivity = append([]audit.Entry{}, recent...)
	for _, e := range d.RecentActivity {
		d.ActivityByCategory[e.Category]++
	}
	return d
}

// QueueEntry is one profile awaiting review.
type QueueEntry struct {
	ProfileID         id.ProfileID      `json:"profile_id"`
	Subject           models.SubjectRef `json:"subject"`
	InReview          []SectionSummary  `json:"in_review"`
	FlaggedSections   int               `json:"flagged_sections"`
	ValidatedSections int               `json:"validated_sections"`
	TotalItems        int               `json:"total_items"`
	IdentityInReview  bool              `json:"identity_in_review"`
	OldestSubmission  *time.Time        `json:"oldest_submission,omitempty"`
}

// ReviewQueue lists profiles with at least one IN_REVIEW section, or an
// identity under review, ordered by their oldest pending submission.
func ReviewQueue(profiles []*models.Profile) []QueueEntry {
	var queue []QueueEntry
	for _, p := range profiles {
		e := QueueEntry{
			ProfileID:        p.ID,
			Subject:          p.Subject,
			InReview:         []SectionSummary{},
			IdentityInReview: p.Identity != nil && p.Identity.State == models.IdentityInReview,
		}
		if e.IdentityInReview {
			e.OldestSubmission = p.Identity.SubmittedAt
		}
		for _, s := range Sections(p) {
			e.TotalItems += s.Progress.Total
			switch s.State {
			case models.SectionInReview:
				e.InReview = append(e.InReview, s)
				if s.SubmittedAt != nil && (e.OldestSubmission == nil || s.SubmittedAt.Before(*e.OldestSubmission)) {
					e.OldestSubmission = s.SubmittedAt
				}
			case models.SectionFlagged:
				e.FlaggedSections++
			case models.SectionValidated:
				e.ValidatedSections++
			}
		}
		if len(e.InReview) == 0 && !e.IdentityInReview {
			continue
		}
		queue = append(queue, e)
	}

	sort.SliceStable(queue, func(i, j int) bool {
		a, b := queue[i].OldestSubmission, queue[j].OldestSubmission
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return queue
}
