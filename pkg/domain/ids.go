package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "dossier/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so the compiler rejects passing an
// ItemID where a SectionID is expected.
type (
	UserID     uuid.UUID
	ProfileID  uuid.UUID
	SectionID  uuid.UUID
	ItemID     uuid.UUID
	EvidenceID uuid.UUID
	EntryID    uuid.UUID
)

// maxIDLength bounds input before it reaches the UUID parser.
const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	if len(s) > maxIDLength || !utf8.ValidString(s) || strings.ContainsRune(s, 0) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseProfileID(s string) (ProfileID, error) {
	u, err := parseUUID("profile id", s)
	return ProfileID(u), err
}

func ParseSectionID(s string) (SectionID, error) {
	u, err := parseUUID("section id", s)
	return SectionID(u), err
}

func ParseItemID(s string) (ItemID, error) {
	u, err := parseUUID("item id", s)
	return ItemID(u), err
}

func ParseEvidenceID(s string) (EvidenceID, error) {
	u, err := parseUUID("evidence id", s)
	return EvidenceID(u), err
}

func ParseEntryID(s string) (EntryID, error) {
	u, err := parseUUID("entry id", s)
	return EntryID(u), err
}

func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id ProfileID) String() string  { return uuid.UUID(id).String() }
func (id SectionID) String() string  { return uuid.UUID(id).String() }
func (id ItemID) String() string     { return uuid.UUID(id).String() }
func (id EvidenceID) String() string { return uuid.UUID(id).String() }
func (id EntryID) String() string    { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ProfileID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SectionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ItemID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EvidenceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// Text marshalling keeps IDs as canonical UUID strings in JSON documents and
// lets them be used as map keys.

func (id UserID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id ProfileID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id SectionID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id ItemID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id EvidenceID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EntryID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ProfileID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SectionID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ItemID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EvidenceID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EntryID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
