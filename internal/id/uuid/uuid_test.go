package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewID ensures generated IDs are unique and valid UUIDs.
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
		t.Fatalf("expected v7, got %d", parsed.Version())
	}
	raw, err := Parse(id2)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if goUUID.UUID(raw).String() != id2 {
		t.Fatalf("expected round trip, got %s", goUUID.UUID(raw))
	}
}

func TestGeneratorToken(t *testing.T) {
	t.Parallel()

	tok, err := New().Token(8)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if len(tok) != 8 {
		t.Fatalf("expected 8 chars, got %q", tok)
	}
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("expected parse error")
	}
}
