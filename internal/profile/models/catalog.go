package models

import (
	dErrors "dossier/pkg/domain-errors"
)

// CatalogID identifies one of the fixed profile sections.
type CatalogID string

const (
	CatalogIdentity       CatalogID = "academic-identity"
	CatalogFormation      CatalogID = "academic-formation"
	CatalogTeaching       CatalogID = "teaching-record"
	CatalogResearch       CatalogID = "research-production"
	CatalogProfessional   CatalogID = "professional-background"
	CatalogDissemination  CatalogID = "cultural-dissemination"
	CatalogAdministrative CatalogID = "administrative-work"
	CatalogSeniority      CatalogID = "institutional-seniority"
)

// Section is read-only reference data shared by every profile.
type Section struct {
	ID          CatalogID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Order       int       `json:"order"`
	Icon        string    `json:"icon"`
}

var catalog = [...]Section{
	{CatalogIdentity, "Academic Identity", "Institutional and identification data of the professor", 1, "User"},
	{CatalogFormation, "Academic Formation", "Academic degrees, formal studies and refresher courses", 2, "GraduationCap"},
	{CatalogTeaching, "Teaching Record", "Teaching experience, thesis supervision and academic projects", 3, "Chalkboard"},
	{CatalogResearch, "Research and Production", "Research projects, publications and academic output", 4, "FlaskConical"},
	{CatalogProfessional, "Professional Background", "Professional practice related to the field of knowledge", 5, "Briefcase"},
	{CatalogDissemination, "Cultural Dissemination", "Lectures, papers, seminars and outreach activities", 6, "Microphone"},
	{CatalogAdministrative, "Administrative Work", "Academic-administrative posts and institutional committees", 7, "Building"},
	{CatalogSeniority, "Institutional Seniority", "Length of service at the institution", 8, "Clock"},
}

// Catalog returns the sections in display order. The slice is a copy.
func Catalog() []Section {
	out := make([]Section, len(catalog))
	copy(out, catalog[:])
	return out
}

// CatalogSize is the number of sections every profile holds.
const CatalogSize = len(catalog)

// LookupSection returns the catalog entry for catalogID.
func LookupSection(catalogID CatalogID) (Section, bool) {
	for _, s := range catalog {
		if s.ID == catalogID {
			return s, true
		}
	}
	return Section{}, false
}

// ParseCatalogID validates a catalog identifier from client input.
func ParseCatalogID(s string) (CatalogID, error) {
	if _, ok := LookupSection(CatalogID(s)); !ok {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown catalog section %q", s)
	}
	return CatalogID(s), nil
}
