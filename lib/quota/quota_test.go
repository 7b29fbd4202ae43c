package quota

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/uvensys/abacus/internal"
	"github.com/uvensys/abacus/lib/store/bbolt"
	"github.com/uvensys/abacus/lib/store/memory"
)

var t0 = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, start time.Time) (*Tracker, *internal.FakeClock) {
	t.Helper()

	clk := internal.NewFakeClock(start)
	return New(memory.New(t.Context()), Options{
		DailyLimit: 10,
		Cooldown:   30 * time.Second,
		Location:   time.UTC,
		Clock:      clk,
	}), clk
}

func TestFreshUserIsEligible(t *testing.T) {
	tr, _ := newTracker(t, t0)

	if err := tr.CheckEligible(t.Context(), "u1"); err != nil {
		t.Fatalf("fresh user is not eligible: %v", err)
	}

	st, err := tr.Status(t.Context(), "u1")
	if err != nil {
		t.Fatal(err)
	}

	want := Status{SolvedToday: 0, Limit: 10, Remaining: 10, CooldownMs: 0}
	if st != want {
		t.Logf("want: %+v", want)
		t.Logf("got:  %+v", st)
		t.Error("wrong status for fresh user")
	}
}

func TestCooldown(t *testing.T) {
	tr, clk := newTracker(t, t0)

	if _, err := tr.RecordSolve(t.Context(), "u1"); err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name    string
		advance time.Duration
		wantMs  int64
	}{
		{name: "immediately after", advance: 0, wantMs: 30000},
		{name: "ten seconds later", advance: 10 * time.Second, wantMs: 20000},
		{name: "sub-millisecond remainder rounds up", advance: 20*time.Second - 500*time.Microsecond, wantMs: 1},
		{name: "exactly at the boundary", advance: 500 * time.Microsecond, wantMs: 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			clk.Advance(tt.advance)

			err := tr.CheckEligible(t.Context(), "u1")
			st, serr := tr.Status(t.Context(), "u1")
			if serr != nil {
				t.Fatal(serr)
			}

			if st.CooldownMs != tt.wantMs {
				t.Errorf("status cooldown: want %d ms, got %d ms", tt.wantMs, st.CooldownMs)
			}

			if tt.wantMs == 0 {
				if err != nil {
					t.Errorf("wanted eligible, got: %v", err)
				}
				return
			}

			var cerr *CooldownError
			if !errors.As(err, &cerr) {
				t.Fatalf("wanted *CooldownError, got: %v", err)
			}

			if !errors.Is(err, ErrCooldownActive) {
				t.Error("CooldownError does not match ErrCooldownActive")
			}

			if got := Milliseconds(cerr.Remaining); got != tt.wantMs {
				t.Errorf("check cooldown: want %d ms, got %d ms", tt.wantMs, got)
			}
		})
	}
}

func TestDailyLimit(t *testing.T) {
	tr, clk := newTracker(t, t0)

	for i := range 10 {
		if err := tr.CheckEligible(t.Context(), "u1"); err != nil {
			t.Fatalf("solve %d: not eligible: %v", i+1, err)
		}

		st, err := tr.RecordSolve(t.Context(), "u1")
		if err != nil {
			t.Fatal(err)
		}

		if st.SolvedToday != i+1 {
			t.Fatalf("solve %d: solvedToday is %d", i+1, st.SolvedToday)
		}

		clk.Advance(31 * time.Second)
	}

	if err := tr.CheckEligible(t.Context(), "u1"); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("wanted ErrDailyLimitExceeded, got: %v", err)
	}

	if _, err := tr.RecordSolve(t.Context(), "u2"); err != nil {
		t.Fatal(err)
	}

	st, err := tr.Status(t.Context(), "u1")
	if err != nil {
		t.Fatal(err)
	}

	if st.Remaining != 0 || st.SolvedToday != 10 {
		t.Errorf("wrong status at limit: %+v", st)
	}

	if err := tr.CheckEligible(t.Context(), "u2"); !errors.Is(err, ErrCooldownActive) {
		t.Errorf("other users are not affected by u1's limit, wanted cooldown for u2, got: %v", err)
	}
}

func TestRollover(t *testing.T) {
	start := time.Date(2025, time.March, 1, 23, 59, 0, 0, time.UTC)
	tr, clk := newTracker(t, start)

	for range 10 {
		if _, err := tr.RecordSolve(t.Context(), "u1"); err != nil {
			t.Fatal(err)
		}
	}

	// The limit is reported even though the cooldown is also running.
	if err := tr.CheckEligible(t.Context(), "u1"); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("wanted ErrDailyLimitExceeded before midnight, got: %v", err)
	}

	clk.Advance(2 * time.Minute)

	st, err := tr.Status(t.Context(), "u1")
	if err != nil {
		t.Fatal(err)
	}

	if st.SolvedToday != 0 || st.Remaining != 10 {
		t.Errorf("day did not roll over: %+v", st)
	}

	if err := tr.CheckEligible(t.Context(), "u1"); err != nil {
		t.Errorf("wanted eligible after rollover, got: %v", err)
	}

	after, err := tr.RecordSolve(t.Context(), "u1")
	if err != nil {
		t.Fatal(err)
	}

	if after.SolvedToday != 1 || after.LastSolveDate != "2025-03-02" {
		t.Errorf("first solve of the new day recorded wrong state: %+v", after)
	}
}

func TestRolloverFollowsLocation(t *testing.T) {
	// 23:30 UTC on March 1st is already March 2nd in Berlin.
	berlin := time.FixedZone("CET", 60*60)
	clk := internal.NewFakeClock(time.Date(2025, time.March, 1, 22, 30, 0, 0, time.UTC))
	tr := New(memory.New(t.Context()), Options{
		DailyLimit: 10,
		Cooldown:   30 * time.Second,
		Location:   berlin,
		Clock:      clk,
	})

	st, err := tr.RecordSolve(t.Context(), "u1")
	if err != nil {
		t.Fatal(err)
	}

	if st.LastSolveDate != "2025-03-01" {
		t.Fatalf("wrong day key: %s", st.LastSolveDate)
	}

	clk.Advance(time.Hour)

	status, err := tr.Status(t.Context(), "u1")
	if err != nil {
		t.Fatal(err)
	}

	if status.SolvedToday != 0 {
		t.Errorf("wanted rollover at local midnight, got %+v", status)
	}
}

func TestCheckDoesNotMutate(t *testing.T) {
	tr, _ := newTracker(t, t0)

	for range 5 {
		if err := tr.CheckEligible(t.Context(), "u1"); err != nil {
			t.Fatal(err)
		}
	}

	st, err := tr.Status(t.Context(), "u1")
	if err != nil {
		t.Fatal(err)
	}

	if st.SolvedToday != 0 {
		t.Errorf("CheckEligible changed the solve count: %+v", st)
	}
}

// A user whose record has lapsed in the backend must still have their next
// solve counted, even when the backend cleans up lapsed records lazily.
func TestSolveAfterLapsedRecordIsKept(t *testing.T) {
	data, err := json.Marshal(bbolt.Config{Path: filepath.Join(t.TempDir(), "db")})
	if err != nil {
		t.Fatal(err)
	}

	backend, err := bbolt.Factory{}.Build(t.Context(), json.RawMessage(data))
	if err != nil {
		t.Fatal(err)
	}

	clk := internal.NewFakeClock(t0)
	tr := New(backend, Options{
		DailyLimit: 10,
		Cooldown:   30 * time.Second,
		Location:   time.UTC,
		Clock:      clk,
	})

	old, err := json.Marshal(State{SolvedToday: 4, LastSolveDate: "2025-02-26", LastSolveAt: t0.Add(-72 * time.Hour)})
	if err != nil {
		t.Fatal(err)
	}

	for i := range 20 {
		userID := fmt.Sprintf("u%d", i)

		if err := backend.Set(t.Context(), "quota:"+userID, old, time.Nanosecond); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)

		if err := tr.CheckEligible(t.Context(), userID); err != nil {
			t.Fatalf("%s: lapsed user is not eligible: %v", userID, err)
		}

		if _, err := tr.RecordSolve(t.Context(), userID); err != nil {
			t.Fatal(err)
		}

		// Let any cleanup started by the lapsed read finish.
		time.Sleep(5 * time.Millisecond)

		if err := tr.CheckEligible(t.Context(), userID); !errors.Is(err, ErrCooldownActive) {
			t.Errorf("%s: wanted cooldown right after a solve, got %v", userID, err)
		}

		st, err := tr.Status(t.Context(), userID)
		if err != nil {
			t.Fatal(err)
		}

		if st.SolvedToday != 1 {
			t.Logf("want: 1")
			t.Logf("got:  %d", st.SolvedToday)
			t.Errorf("%s: solve was not recorded", userID)
		}
	}
}
