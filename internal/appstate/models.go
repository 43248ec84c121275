// Package appstate holds the process-wide session state: which role the
// console is acting as, and the default actor for each role. The state is
// loaded from its store at startup and written back on every change.
package appstate

import (
	"slices"
	"time"

	"github.com/google/uuid"

	id "dossier/pkg/domain"
)

// Selection is the persisted role choice.
type Selection struct {
	Role      id.Role   `json:"role"`
	ActorID   id.UserID `json:"actor_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Directory lists the known actors. The first actor registered for a role is
// that role's default.
type Directory struct {
	actors   map[id.UserID]id.Actor
	defaults map[id.Role]id.UserID
	order    []id.UserID
}

// NewDirectory builds a directory from actors. Actors with an invalid role
// are skipped.
func NewDirectory(actors ...id.Actor) *Directory {
	d := &Directory{
		actors:   make(map[id.UserID]id.Actor, len(actors)),
		defaults: make(map[id.Role]id.UserID, 3),
	}
	for _, a := range actors {
		d.Add(a)
	}
	return d
}

// Add registers a. Re-adding a known ID replaces its display data.
func (d *Directory) Add(a id.Actor) {
	if !a.Role.IsValid() || a.ID.IsNil() {
		return
	}
	if _, known := d.actors[a.ID]; !known {
		d.order = append(d.order, a.ID)
	}
	d.actors[a.ID] = a
	if _, ok := d.defaults[a.Role]; !ok {
		d.defaults[a.Role] = a.ID
	}
}

func (d *Directory) Lookup(actorID id.UserID) (id.Actor, bool) {
	a, ok := d.actors[actorID]
	return a, ok
}

// Default returns the default actor for role.
func (d *Directory) Default(role id.Role) (id.Actor, bool) {
	actorID, ok := d.defaults[role]
	if !ok {
		return id.Actor{}, false
	}
	return d.actors[actorID], true
}

// Actors returns every actor in registration order, optionally filtered by
// role.
func (d *Directory) Actors(roles ...id.Role) []id.Actor {
	out := make([]id.Actor, 0, len(d.order))
	for _, actorID := range d.order {
		a := d.actors[actorID]
		if len(roles) == 0 || slices.Contains(roles, a.Role) {
			out = append(out, a)
		}
	}
	return out
}

// builtinNamespace derives stable IDs for the built-in actors so that a
// persisted selection still resolves after a restart.
var builtinNamespace = uuid.MustParse("5a1f3c1e-9d4b-4b7e-8f0a-2c6d1e7b9a30")

// BuiltinActors returns one stand-in actor per role, used when no fixtures
// are loaded.
func BuiltinActors() []id.Actor {
	mk := func(name string, role id.Role) id.Actor {
		return id.Actor{ID: id.UserID(uuid.NewSHA1(builtinNamespace, []byte(role))), Name: name, Role: role}
	}
	return []id.Actor{
		mk("Default Subject", id.RoleSubject),
		mk("Default Reviewer", id.RoleReviewer),
		mk("Default Observer", id.RoleObserver),
	}
}
