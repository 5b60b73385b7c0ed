package testfixtures

import "testing"

func TestIDGenerator(t *testing.T) {
	gen := NewIDGenerator("shift")

	if first, second := gen.Next(), gen.Next(); first != "shift-1" || second != "shift-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if gen.Issued() != 2 {
		t.Fatalf("expected 2 issued, got %d", gen.Issued())
	}
	if next := NewIDGenerator("").NextFunc()(); next != "id-1" {
		t.Fatalf("expected default prefix, got %q", next)
	}
}
