package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("req")
	if !strings.HasPrefix(id, "req_") || len(id) != len("req_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID("") == NewID("") {
		t.Fatal("expected distinct ids")
	}
}
