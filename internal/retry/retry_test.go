/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package retry

import "testing"

func TestDefault(t *testing.T) {
	p := Default()
	if p.MaxAttempts() != 3 {
		t.Errorf("expected 3 default attempts, got %d", p.MaxAttempts())
	}
}

func TestBackoff_DoublesEachAttempt(t *testing.T) {
	p := Default()
	first := p.Backoff(1)
	second := p.Backoff(2)
	third := p.Backoff(3)
	if second != first*2 {
		t.Errorf("expected attempt 2 backoff to double attempt 1: %d vs %d", second, first)
	}
	if third != first*4 {
		t.Errorf("expected attempt 3 backoff to quadruple attempt 1: %d vs %d", third, first)
	}
}

func TestBackoff_RespectsMaxBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialBackoff: 100_000_000, Multiplier: 2, MaxBackoff: 200_000_000}
	if got := p.Backoff(5); got > 200 {
		t.Errorf("expected backoff capped at 200ms, got %dms", got)
	}
}

func TestResolve_RejectsInvalidMultiplier(t *testing.T) {
	if _, err := Resolve(&Override{Multiplier: 0.5}); err == nil {
		t.Error("expected an error for a multiplier below 1")
	}
}

func TestResolve_OverridesMaxAttempts(t *testing.T) {
	p, err := Resolve(&Override{MaxAttempts: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.MaxAttempts() != 7 {
		t.Errorf("got %d, want 7", p.MaxAttempts())
	}
}
