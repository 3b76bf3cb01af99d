package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewID ensures generated IDs are unique, valid and version 7.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	id2, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	parsed, err := goUUID.Parse(id1)
	if err != nil {
		t.Fatalf("id1 not valid UUID: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
	if id1 > id2 {
		t.Fatalf("expected time-ordered IDs, got %s then %s", id1, id2)
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	if !Valid("0192d1c8-7a8e-7b3e-9c4f-1a2b3c4d5e6f") {
		t.Fatal("expected valid uuid")
	}
	if Valid("latest") || Valid("") {
		t.Fatal("expected invalid uuid")
	}
}
