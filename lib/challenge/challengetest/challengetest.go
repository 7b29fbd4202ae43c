// Package challengetest has helpers for tests that need pending challenges.
package challengetest

import (
	"testing"
	"time"

	"github.com/uvensys/abacus/internal"
	"github.com/uvensys/abacus/lib/challenge"
	"github.com/uvensys/abacus/lib/store/memory"
)

// Start is the wall time fake clocks in tests begin at.
var Start = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

// NewStore returns a challenge store on a fresh in-memory backend, driven by
// a fake clock starting at Start.
func NewStore(t *testing.T, ttl time.Duration) (*challenge.Store, *internal.FakeClock) {
	t.Helper()

	clk := internal.NewFakeClock(Start)
	return challenge.NewStore(memory.New(t.Context()), ttl, clk), clk
}

// Issue stores a challenge for answer and fails the test on error.
func Issue(t *testing.T, s *challenge.Store, answer string) *challenge.Challenge {
	t.Helper()

	c, err := s.Create(t.Context(), answer)
	if err != nil {
		t.Fatalf("can't create challenge: %v", err)
	}

	return c
}
