package internal

import (
	"testing"
	"time"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2025, time.March, 1, 23, 59, 0, 0, time.UTC)
	c := NewFakeClock(start)

	if !c.Now().Equal(start) {
		t.Fatalf("wrong start time: %s", c.Now())
	}

	c.Advance(2 * time.Minute)
	if want := start.Add(2 * time.Minute); !c.Now().Equal(want) {
		t.Errorf("after Advance: want %s, got %s", want, c.Now())
	}

	later := start.Add(48 * time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("after Set: want %s, got %s", later, c.Now())
	}
}
