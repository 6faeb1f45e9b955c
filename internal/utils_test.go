package internal

import "testing"

func TestSeenSet_Add(t *testing.T) {
	s := NewSeenSet()

	if !s.Add("https://example.com/marketplace/item/1/") {
		t.Fatal("first Add should report a new key")
	}
	if s.Add("https://example.com/marketplace/item/1/") {
		t.Error("second Add of the same key should report a duplicate")
	}
	if !s.Add("https://example.com/marketplace/item/2/") {
		t.Error("distinct key should be new")
	}
	if got := s.Len(); got != 2 {
		t.Errorf("Len mismatch. Expected 2, got %d", got)
	}
}
