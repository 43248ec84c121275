package models

import (
	"slices"
	"time"

	id "dossier/pkg/domain"
)

// Profile is the aggregate root: one per subject, eight sections in catalog
// order, and an optional identity record.
//
// Invariants:
//   - Sections has exactly one entry per catalog section, in catalog order
//   - A Profile value is never mutated after it is published; every change
//     produces a new value that shares unchanged sections and items
//   - Version increases by one on every successful save
type Profile struct {
	ID        id.ProfileID      `json:"id"`
	SubjectID id.UserID         `json:"subject_id"`
	Subject   SubjectRef        `json:"subject"`
	Sections  []*ProfileSection `json:"sections"`
	Identity  *Identity         `json:"identity,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Version   int64             `json:"version"`
}

// SubjectRef is a snapshot of the subject's display data.
type SubjectRef struct {
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	WorkerNumber string `json:"worker_number,omitempty"`
}

// ProfileSection is a profile's instance of one catalog section.
type ProfileSection struct {
	ID          id.SectionID `json:"id"`
	ProfileID   id.ProfileID `json:"profile_id"`
	CatalogID   CatalogID    `json:"catalog_id"`
	State       SectionState `json:"state"`
	Items       []*Item      `json:"items"`
	Remark      string       `json:"remark,omitempty"`
	SubmittedAt *time.Time   `json:"submitted_at,omitempty"`
	ReviewedAt  *time.Time   `json:"reviewed_at,omitempty"`
	ValidatedAt *time.Time   `json:"validated_at,omitempty"`
}

// Item is one evidence-backed claim inside a section.
type Item struct {
	ID          id.ItemID     `json:"id"`
	SectionID   id.SectionID  `json:"section_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Institution string        `json:"institution,omitempty"`
	StartDate   *time.Time    `json:"start_date,omitempty"`
	EndDate     *time.Time    `json:"end_date,omitempty"`
	Attributes  AttributeSet  `json:"attributes"`
	State       ItemState     `json:"state"`
	Evidence    []*Evidence   `json:"evidence"`
	Remark      string        `json:"remark,omitempty"`
	Decision    *ItemDecision `json:"decision,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ItemDecision is the reviewer's verdict on an item. During a review pass it
// is pending; once the pass is finalized the item's state reflects it.
type ItemDecision struct {
	Outcome    Outcome   `json:"outcome"`
	Remark     string    `json:"remark,omitempty"`
	ReviewerID id.UserID `json:"reviewer_id"`
	DecidedAt  time.Time `json:"decided_at"`
}

// Identity is the subject's institutional identification record.
type Identity struct {
	WorkerNumber     string        `json:"worker_number"`
	TaxID            string        `json:"tax_id"`
	Affiliation      string        `json:"affiliation"`
	DisciplinaryArea string        `json:"disciplinary_area"`
	State            IdentityState `json:"state"`
	Remark           string        `json:"remark,omitempty"`
	Evidence         []*Evidence   `json:"evidence"`
	SubmittedAt      *time.Time    `json:"submitted_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewProfile creates a profile with one DRAFT section per catalog entry.
// sectionID is called once per section in catalog order.
func NewProfile(profileID id.ProfileID, subjectID id.UserID, subject SubjectRef, sectionID func() id.SectionID, now time.Time) *Profile {
	sections := make([]*ProfileSection, 0, CatalogSize)
	for _, entry := range catalog {
		sections = append(sections, &ProfileSection{
			ID:        sectionID(),
			ProfileID: profileID,
			CatalogID: entry.ID,
			State:     SectionDraft,
			Items:     []*Item{},
		})
	}
	return &Profile{
		ID:        profileID,
		SubjectID: subjectID,
		Subject:   subject,
		Sections:  sections,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Section returns the section with sectionID and its index.
func (p *Profile) Section(sectionID id.SectionID) (*ProfileSection, int, bool) {
	for i, s := range p.Sections {
		if s.ID == sectionID {
			return s, i, true
		}
	}
	return nil, -1, false
}

// SectionByCatalog returns the section instantiating catalogID.
func (p *Profile) SectionByCatalog(catalogID CatalogID) (*ProfileSection, int, bool) {
	for i, s := range p.Sections {
		if s.CatalogID == catalogID {
			return s, i, true
		}
	}
	return nil, -1, false
}

// FindItem locates an item and the indexes needed to replace it.
func (p *Profile) FindItem(itemID id.ItemID) (section *ProfileSection, sectionIdx, itemIdx int, ok bool) {
	for si, s := range p.Sections {
		if ii := s.ItemIndex(itemID); ii >= 0 {
			return s, si, ii, true
		}
	}
	return nil, -1, -1, false
}

// ShallowCopy returns a new Profile sharing every section pointer.
func (p *Profile) ShallowCopy() *Profile {
	c := *p
	c.Sections = slices.Clone(p.Sections)
	return &c
}

// Name returns the catalog display name of the section.
func (s *ProfileSection) Name() string {
	if entry, ok := LookupSection(s.CatalogID); ok {
		return entry.Name
	}
	return string(s.CatalogID)
}

// ItemIndex returns the position of itemID, or -1.
func (s *ProfileSection) ItemIndex(itemID id.ItemID) int {
	for i, it := range s.Items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// ShallowCopy returns a new section sharing every item pointer.
func (s *ProfileSection) ShallowCopy() *ProfileSection {
	c := *s
	c.Items = slices.Clone(s.Items)
	return &c
}

// ShallowCopy returns a new item sharing every evidence pointer.
func (it *Item) ShallowCopy() *Item {
	c := *it
	c.Evidence = slices.Clone(it.Evidence)
	return &c
}

// EvidenceIndex returns the position of evidenceID, or -1.
func (it *Item) EvidenceIndex(evidenceID id.EvidenceID) int {
	for i, e := range it.Evidence {
		if e.ID == evidenceID {
			return i
		}
	}
	return -1
}

// ShallowCopy returns a new identity sharing every evidence pointer.
func (i *Identity) ShallowCopy() *Identity {
	c := *i
	c.Evidence = slices.Clone(i.Evidence)
	return &c
}

// EvidenceIndex returns the position of evidenceID, or -1.
func (i *Identity) EvidenceIndex(evidenceID id.EvidenceID) int {
	for idx, e := range i.Evidence {
		if e.ID == evidenceID {
			return idx
		}
	}
	return -1
}
