package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	if err := Guard(nil, "escrow"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	pauses := NewPauseSet(" Escrow ")
	if err := Guard(pauses, "escrow"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("blank module must not block: %v", err)
	}
	pauses.Resume("ESCROW")
	if err := Guard(pauses, "escrow"); err != nil {
		t.Fatalf("resumed module blocked: %v", err)
	}
}

func TestPauseSetListing(t *testing.T) {
	var pauses PauseSet
	pauses.Pause("monetary")
	pauses.Pause("escrow")
	pauses.Pause("  ")
	got := pauses.Paused()
	if len(got) != 2 || got[0] != "escrow" || got[1] != "monetary" {
		t.Fatalf("unexpected paused modules %v", got)
	}
}
