package hashutil

import "testing"

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte("sails-program"))
	b := HashBytes([]byte("sails-program"))
	if a != b {
		t.Fatalf("HashBytes not deterministic: %q != %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d (%q)", len(a), a)
	}
}

func TestHashBytesDiffers(t *testing.T) {
	a := HashBytes([]byte("a"))
	b := HashBytes([]byte("b"))
	if a == b {
		t.Fatal("expected different inputs to hash differently")
	}
}

func TestHashText(t *testing.T) {
	if HashText("service X{}") != HashBytes([]byte("service X{}")) {
		t.Fatal("HashText should hash the UTF-8 bytes of its input")
	}
}

func TestGenerateIDLength(t *testing.T) {
	id, err := GenerateID()
	if err != nil {
		t.Fatalf("GenerateID: %v", err)
	}
	if len(id) != 15 {
		t.Fatalf("expected 15-char id, got %d (%q)", len(id), id)
	}
	for _, r := range id {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			t.Fatalf("id contains non-alphanumeric rune %q in %q", r, id)
		}
	}
}

func TestGenerateIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := GenerateID()
		if err != nil {
			t.Fatalf("GenerateID: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}
