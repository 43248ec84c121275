package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	dErrors "dossier/pkg/domain-errors"
)

// Attributes is the section-specific part of an item. Each catalog section
// has exactly one variant; the variant's Kind must match the section the item
// lives in.
type Attributes interface {
	Kind() CatalogID
	Validate() error
}

// IdentityAttributes describe an institutional identity record item.
type IdentityAttributes struct {
	Position string `json:"position,omitempty"`
	Category string `json:"category,omitempty"`
}

// FormationAttributes describe a degree or course.
type FormationAttributes struct {
	Degree        string   `json:"degree,omitempty"`
	LicenseNumber string   `json:"license_number,omitempty"`
	Honors        bool     `json:"honors,omitempty"`
	GradeAverage  *float64 `json:"grade_average,omitempty"`
}

// TeachingAttributes describe a teaching assignment.
type TeachingAttributes struct {
	Level        string `json:"level,omitempty"`
	HoursPerWeek int    `json:"hours_per_week,omitempty"`
	Students     int    `json:"students,omitempty"`
	Modality     string `json:"modality,omitempty"`
}

// ResearchAttributes describe a publication or research project.
type ResearchAttributes struct {
	ProductType string `json:"product_type,omitempty"`
	Identifier  string `json:"identifier,omitempty"`
	Role        string `json:"role,omitempty"`
	Indexed     bool   `json:"indexed,omitempty"`
}

// ProfessionalAttributes describe work outside the institution.
type ProfessionalAttributes struct {
	Position string `json:"position,omitempty"`
	Sector   string `json:"sector,omitempty"`
}

// DisseminationAttributes describe a talk, seminar or outreach activity.
type DisseminationAttributes struct {
	EventType string `json:"event_type,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Audience  int    `json:"audience,omitempty"`
}

// AdministrativeAttributes describe an administrative post or committee.
type AdministrativeAttributes struct {
	Position    string `json:"position,omitempty"`
	Appointment string `json:"appointment,omitempty"`
}

// SeniorityAttributes describe length of service.
type SeniorityAttributes struct {
	ContractType string `json:"contract_type,omitempty"`
	Years        int    `json:"years,omitempty"`
}

func (IdentityAttributes) Kind() CatalogID       { return CatalogIdentity }
func (FormationAttributes) Kind() CatalogID      { return CatalogFormation }
func (TeachingAttributes) Kind() CatalogID       { return CatalogTeaching }
func (ResearchAttributes) Kind() CatalogID       { return CatalogResearch }
func (ProfessionalAttributes) Kind() CatalogID   { return CatalogProfessional }
func (DisseminationAttributes) Kind() CatalogID  { return CatalogDissemination }
func (AdministrativeAttributes) Kind() CatalogID { return CatalogAdministrative }
func (SeniorityAttributes) Kind() CatalogID      { return CatalogSeniority }

func (a IdentityAttributes) Validate() error {
	return checkLengths(map[string]string{"position": a.Position, "category": a.Category})
}

func (a FormationAttributes) Validate() error {
	if a.GradeAverage != nil && (*a.GradeAverage < 0 || *a.GradeAverage > 10) {
		return dErrors.New(dErrors.CodeValidation, "grade_average must be between 0 and 10")
	}
	return checkLengths(map[string]string{"degree": a.Degree, "license_number": a.LicenseNumber})
}

var teachingModalities = map[string]bool{"": true, "in_person": true, "online": true, "hybrid": true}

func (a TeachingAttributes) Validate() error {
	if a.HoursPerWeek < 0 || a.HoursPerWeek > 60 {
		return dErrors.New(dErrors.CodeValidation, "hours_per_week must be between 0 and 60")
	}
	if a.Students < 0 {
		return dErrors.New(dErrors.CodeValidation, "students cannot be negative")
	}
	if !teachingModalities[a.Modality] {
		return dErrors.Newf(dErrors.CodeValidation, "unknown modality %q", a.Modality)
	}
	return checkLengths(map[string]string{"level": a.Level})
}

func (a ResearchAttributes) Validate() error {
	return checkLengths(map[string]string{"product_type": a.ProductType, "identifier": a.Identifier, "role": a.Role})
}

func (a ProfessionalAttributes) Validate() error {
	return checkLengths(map[string]string{"position": a.Position, "sector": a.Sector})
}

var disseminationScopes = map[string]bool{"": true, "local": true, "national": true, "international": true}

func (a DisseminationAttributes) Validate() error {
	if a.Audience < 0 {
		return dErrors.New(dErrors.CodeValidation, "audience cannot be negative")
	}
	if !disseminationScopes[a.Scope] {
		return dErrors.Newf(dErrors.CodeValidation, "unknown scope %q", a.Scope)
	}
	return checkLengths(map[string]string{"event_type": a.EventType})
}

func (a AdministrativeAttributes) Validate() error {
	return checkLengths(map[string]string{"position": a.Position, "appointment": a.Appointment})
}

func (a SeniorityAttributes) Validate() error {
	if a.Years < 0 || a.Years > 80 {
		return dErrors.New(dErrors.CodeValidation, "years must be between 0 and 80")
	}
	return checkLengths(map[string]string{"contract_type": a.ContractType})
}

const maxAttributeLength = 200

func checkLengths(fields map[string]string) error {
	for name, v := range fields {
		if len(v) > maxAttributeLength {
			return dErrors.Newf(dErrors.CodeValidation, "%s must be at most %d characters", name, maxAttributeLength)
		}
	}
	return nil
}

// EmptyAttributes returns the zero variant for catalogID.
func EmptyAttributes(catalogID CatalogID) (Attributes, error) {
	switch catalogID {
	case CatalogIdentity:
		return IdentityAttributes{}, nil
	case CatalogFormation:
		return FormationAttributes{}, nil
	case CatalogTeaching:
		return TeachingAttributes{}, nil
	case CatalogResearch:
		return ResearchAttributes{}, nil
	case CatalogProfessional:
		return ProfessionalAttributes{}, nil
	case CatalogDissemination:
		return DisseminationAttributes{}, nil
	case CatalogAdministrative:
		return AdministrativeAttributes{}, nil
	case CatalogSeniority:
		return SeniorityAttributes{}, nil
	}
	return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown catalog section %q", catalogID)
}

// DecodeAttributes decodes fields as the variant for catalogID. Unknown keys
// are rejected.
func DecodeAttributes(catalogID CatalogID, fields json.RawMessage) (Attributes, error) {
	if len(bytes.TrimSpace(fields)) == 0 || string(bytes.TrimSpace(fields)) == "null" {
		return EmptyAttributes(catalogID)
	}

	var (
		attrs Attributes
		err   error
	)
	switch catalogID {
	case CatalogIdentity:
		attrs, err = decodeStrict[IdentityAttributes](fields)
	case CatalogFormation:
		attrs, err = decodeStrict[FormationAttributes](fields)
	case CatalogTeaching:
		attrs, err = decodeStrict[TeachingAttributes](fields)
	case CatalogResearch:
		attrs, err = decodeStrict[ResearchAttributes](fields)
	case CatalogProfessional:
		attrs, err = decodeStrict[ProfessionalAttributes](fields)
	case CatalogDissemination:
		attrs, err = decodeStrict[DisseminationAttributes](fields)
	case CatalogAdministrative:
		attrs, err = decodeStrict[AdministrativeAttributes](fields)
	case CatalogSeniority:
		attrs, err = decodeStrict[SeniorityAttributes](fields)
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown catalog section %q", catalogID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("invalid attributes for %s", catalogID))
	}
	return attrs, nil
}

func decodeStrict[T Attributes](fields json.RawMessage) (Attributes, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(fields))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after attributes object")
	}
	return v, nil
}

// AttributeSet carries one Attributes variant and encodes it as
// {"kind": ..., "fields": {...}} so the variant survives a round trip.
type AttributeSet struct {
	value Attributes
}

// NewAttributeSet wraps a.
func NewAttributeSet(a Attributes) AttributeSet {
	return AttributeSet{value: a}
}

// Value returns the wrapped variant, or nil when unset.
func (s AttributeSet) Value() Attributes { return s.value }

// IsZero reports whether no variant is set.
func (s AttributeSet) IsZero() bool { return s.value == nil }

// Kind returns the catalog section of the variant, or "" when unset.
func (s AttributeSet) Kind() CatalogID {
	if s.value == nil {
		return ""
	}
	return s.value.Kind()
}

type attributeEnvelope struct {
	Kind   CatalogID       `json:"kind"`
	Fields json.RawMessage `json:"fields"`
}

func (s AttributeSet) MarshalJSON() ([]byte, error) {
	if s.value == nil {
		return []byte("null"), nil
	}
	fields, err := json.Marshal(s.value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(attributeEnvelope{Kind: s.value.Kind(), Fields: fields})
}

func (s *AttributeSet) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		s.value = nil
		return nil
	}
	var env attributeEnvelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid attributes envelope")
	}
	if env.Kind == "" {
		return dErrors.New(dErrors.CodeValidation, "attributes kind is required")
	}
	attrs, err := DecodeAttributes(env.Kind, env.Fields)
	if err != nil {
		return err
	}
	s.value = attrs
	return nil
}
