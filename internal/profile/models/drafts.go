package models

import (
	"strings"
	"time"
	"unicode/utf8"

	dErrors "dossier/pkg/domain-errors"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 4000
	maxInstitutionLength = 200
	maxIdentityField     = 64
)

// ItemDraft is the subject's input for a new item.
type ItemDraft struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Institution string       `json:"institution,omitempty"`
	StartDate   *time.Time   `json:"start_date,omitempty"`
	EndDate     *time.Time   `json:"end_date,omitempty"`
	Attributes  AttributeSet `json:"attributes"`
}

// Normalize trims free text.
func (d ItemDraft) Normalize() ItemDraft {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Institution = strings.TrimSpace(d.Institution)
	return d
}

// Validate checks the draft against the section it will be added to.
func (d ItemDraft) Validate(catalogID CatalogID) error {
	if d.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if err := checkText("title", d.Title, maxTitleLength); err != nil {
		return err
	}
	if err := checkText("description", d.Description, maxDescriptionLength); err != nil {
		return err
	}
	if err := checkText("institution", d.Institution, maxInstitutionLength); err != nil {
		return err
	}
	if err := checkDates(d.StartDate, d.EndDate); err != nil {
		return err
	}
	return checkAttributes(d.Attributes, catalogID)
}

// ItemPatch changes selected fields of an item. Nil fields are left alone.
type ItemPatch struct {
	Title       *string       `json:"title,omitempty"`
	Description *string       `json:"description,omitempty"`
	Institution *string       `json:"institution,omitempty"`
	StartDate   *time.Time    `json:"start_date,omitempty"`
	EndDate     *time.Time    `json:"end_date,omitempty"`
	ClearDates  bool          `json:"clear_dates,omitempty"`
	Attributes  *AttributeSet `json:"attributes,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ItemPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Institution == nil &&
		p.StartDate == nil && p.EndDate == nil && !p.ClearDates && p.Attributes == nil
}

// Apply returns a copy of it with the patch applied and the names of the
// fields that changed. The result is validated against catalogID.
func (p ItemPatch) Apply(it *Item, catalogID CatalogID) (*Item, []string, error) {
	next := it.ShallowCopy()
	var changed []string

	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
		changed = append(changed, "title")
	}
	if p.Description != nil {
		next.Description = strings.TrimSpace(*p.Description)
		changed = append(changed, "description")
	}
	if p.Institution != nil {
		next.Institution = strings.TrimSpace(*p.Institution)
		changed = append(changed, "institution")
	}
	if p.ClearDates {
		next.StartDate, next.EndDate = nil, nil
		changed = append(changed, "dates")
	}
	if p.StartDate != nil {
		next.StartDate = p.StartDate
		changed = append(changed, "start_date")
	}
	if p.EndDate != nil {
		next.EndDate = p.EndDate
		changed = append(changed, "end_date")
	}
	if p.Attributes != nil {
		next.Attributes = *p.Attributes
		changed = append(changed, "attributes")
	}

	draft := ItemDraft{
		Title:       next.Title,
		Description: next.Description,
		Institution: next.Institution,
		StartDate:   next.StartDate,
		EndDate:     next.EndDate,
		Attributes:  next.Attributes,
	}
	if err := draft.Validate(catalogID); err != nil {
		return nil, nil, err
	}
	return next, changed, nil
}

// IdentityDraft is the subject's input for the identity record.
type IdentityDraft struct {
	WorkerNumber     string `json:"worker_number"`
	TaxID            string `json:"tax_id"`
	Affiliation      string `json:"affiliation"`
	DisciplinaryArea string `json:"disciplinary_area"`
}

// Normalize trims every field and uppercases the tax ID.
func (d IdentityDraft) Normalize() IdentityDraft {
	d.WorkerNumber = strings.TrimSpace(d.WorkerNumber)
	d.TaxID = strings.ToUpper(strings.TrimSpace(d.TaxID))
	d.Affiliation = strings.TrimSpace(d.Affiliation)
	d.DisciplinaryArea = strings.TrimSpace(d.DisciplinaryArea)
	return d
}

// Validate requires every field. Missing fields are a precondition failure,
// oversized ones a validation error.
func (d IdentityDraft) Validate() error {
	fields := []struct{ name, value string }{
		{"worker_number", d.WorkerNumber},
		{"tax_id", d.TaxID},
		{"affiliation", d.Affiliation},
		{"disciplinary_area", d.DisciplinaryArea},
	}
	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
			continue
		}
		if err := checkText(f.name, f.value, maxIdentityField*4); err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		return dErrors.Newf(dErrors.CodePreconditionFailed, "missing required identity fields: %s", strings.Join(missing, ", "))
	}
	if utf8.RuneCountInString(d.TaxID) > maxIdentityField || utf8.RuneCountInString(d.WorkerNumber) > maxIdentityField {
		return dErrors.Newf(dErrors.CodeValidation, "worker_number and tax_id must be at most %d characters", maxIdentityField)
	}
	return nil
}

func checkText(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return dErrors.Newf(dErrors.CodeValidation, "%s must be at most %d characters", field, limit)
	}
	if strings.ContainsRune(value, 0) {
		return dErrors.Newf(dErrors.CodeValidation, "%s contains invalid characters", field)
	}
	return nil
}

func checkDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return dErrors.New(dErrors.CodeValidation, "end_date must not be before start_date")
	}
	return nil
}

func checkAttributes(attrs AttributeSet, catalogID CatalogID) error {
	if attrs.IsZero() {
		return nil
	}
	if attrs.Kind() != catalogID {
		return dErrors.Newf(dErrors.CodeValidation, "attributes of kind %s do not belong to section %s", attrs.Kind(), catalogID)
	}
	return attrs.Value().Validate()
}
