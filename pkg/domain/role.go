package domain

import dErrors "dossier/pkg/domain-errors"

// Role identifies which of the three workflow participants an actor is.
// Invariant: the value must be one of the supported roles.
//
// Usage: construct via ParseRole at trust boundaries; direct casting bypasses
// validation.
type Role string

const (
	// RoleSubject is the professor assembling a profile.
	RoleSubject Role = "subject"
	// RoleReviewer is the evaluator deciding on items and sections.
	RoleReviewer Role = "reviewer"
	// RoleObserver is the administrator reading aggregates and the audit log.
	RoleObserver Role = "observer"
)

var validRoles = map[Role]bool{
	RoleSubject:  true,
	RoleReviewer: true,
	RoleObserver: true,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

// IsValid checks if the role is one of the supported enum values.
func (r Role) IsValid() bool {
	return validRoles[r]
}

func (r Role) String() string {
	return string(r)
}

// Actor is the principal performing an operation, with the display data the
// audit log snapshots at the time of the action.
type Actor struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}
