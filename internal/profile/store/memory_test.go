package store

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

func TestInMemoryStore(t *testing.T) {
	suite.Run(t, &storeContract{newStore: func() profileStore { return NewInMemory() }})
}

func TestInMemorySharesPublishedValues(t *testing.T) {
	s := NewInMemory()
	p := newProfile("ada", baseTime)
	if err := s.Create(t.Context(), p); err != nil {
		t.Fatal(err)
	}
	got, err := s.FindByID(t.Context(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Fatalf("expected the stored pointer back")
	}
}
