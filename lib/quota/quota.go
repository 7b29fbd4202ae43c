// Package quota enforces how often a user may solve challenges: a ceiling on
// solves per calendar day and a minimum spacing between two solves.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/uvensys/abacus/internal"
	"github.com/uvensys/abacus/lib/store"
)

var (
	ErrDailyLimitExceeded = errors.New("quota: daily limit exceeded")
	ErrCooldownActive     = errors.New("quota: cooldown active")
)

// recordTTL bounds how long an idle user's record is kept. After a day
// without solves the record reads the same as a missing one.
const recordTTL = 48 * time.Hour

const dayKeyLayout = "2006-01-02"

var rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "abacus_quota_rejections_total",
	Help: "The total number of requests refused by the quota tracker",
}, []string{"reason"})

// CooldownError is returned while a user is inside the post-solve cooldown.
// errors.Is(err, ErrCooldownActive) matches it.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%v: %d ms remaining", ErrCooldownActive, Milliseconds(e.Remaining))
}

// Milliseconds rounds d up to whole milliseconds so that a cooldown that is
// still running never reports 0.
func Milliseconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}

func (e *CooldownError) Unwrap() error { return ErrCooldownActive }

// State is what is stored per user.
type State struct {
	SolvedToday   int       `json:"solvedToday"`
	LastSolveDate string    `json:"lastSolveDate,omitempty"`
	LastSolveAt   time.Time `json:"lastSolveAt,omitzero"`
}

// Status is a read-only snapshot of a user's quota.
type Status struct {
	SolvedToday int   `json:"solvedToday"`
	Limit       int   `json:"limit"`
	Remaining   int   `json:"remaining"`
	CooldownMs  int64 `json:"cooldownMs"`
}

type Options struct {
	DailyLimit int
	Cooldown   time.Duration
	// Location decides where calendar days start. Defaults to time.Local.
	Location *time.Location
	Clock    internal.Clock
}

// Tracker decides whether a user may request or submit a challenge and
// records successful solves.
//
// Tracker does not serialize callers. Two concurrent requests for the same
// user can both pass CheckEligible; callers that need exact counting hold a
// per-user lock around check and record.
type Tracker struct {
	db         store.JSON[State]
	dailyLimit int
	cooldown   time.Duration
	loc        *time.Location
	clock      internal.Clock
}

func New(backend store.Interface, opts Options) *Tracker {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = internal.SystemClock{}
	}

	return &Tracker{
		db:         store.JSON[State]{Underlying: backend, Prefix: "quota:"},
		dailyLimit: opts.DailyLimit,
		cooldown:   opts.Cooldown,
		loc:        opts.Location,
		clock:      opts.Clock,
	}
}

func (t *Tracker) DailyLimit() int { return t.dailyLimit }

func (t *Tracker) dayKey(now time.Time) string {
	return now.In(t.loc).Format(dayKeyLayout)
}

func (t *Tracker) load(ctx context.Context, userID string) (State, error) {
	st, err := t.db.Get(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return State{}, nil
	case err != nil:
		return State{}, fmt.Errorf("quota: can't load state for user: %w", err)
	}

	return st, nil
}

// effective applies the lazy rollover without writing it back.
func (t *Tracker) effective(st State, now time.Time) State {
	if st.LastSolveDate != t.dayKey(now) {
		st.SolvedToday = 0
	}
	return st
}

func (t *Tracker) cooldownLeft(st State, now time.Time) time.Duration {
	if st.LastSolveAt.IsZero() {
		return 0
	}

	elapsed := now.Sub(st.LastSolveAt)
	if elapsed >= t.cooldown {
		return 0
	}

	return t.cooldown - elapsed
}

func (t *Tracker) eligible(st State, now time.Time) error {
	st = t.effective(st, now)

	if st.SolvedToday >= t.dailyLimit {
		return ErrDailyLimitExceeded
	}

	if left := t.cooldownLeft(st, now); left > 0 {
		return &CooldownError{Remaining: left}
	}

	return nil
}

// CheckEligible returns nil if userID may request or submit a challenge
// right now, ErrDailyLimitExceeded, or a *CooldownError.
func (t *Tracker) CheckEligible(ctx context.Context, userID string) error {
	st, err := t.load(ctx, userID)
	if err != nil {
		return err
	}

	err = t.eligible(st, t.clock.Now())
	switch {
	case errors.Is(err, ErrDailyLimitExceeded):
		rejections.WithLabelValues("daily_limit").Inc()
	case errors.Is(err, ErrCooldownActive):
		rejections.WithLabelValues("cooldown").Inc()
	}

	return err
}

// RecordSolve counts one successful solve for userID and returns the new
// state. It must only be called after a verified correct answer.
func (t *Tracker) RecordSolve(ctx context.Context, userID string) (State, error) {
	st, err := t.load(ctx, userID)
	if err != nil {
		return State{}, err
	}

	now := t.clock.Now()
	st = t.effective(st, now)
	st.SolvedToday++
	st.LastSolveDate = t.dayKey(now)
	st.LastSolveAt = now

	if err := t.db.Set(ctx, userID, st, recordTTL); err != nil {
		return State{}, fmt.Errorf("quota: can't save state for user: %w", err)
	}

	return st, nil
}

// Remaining is how many more solves st allows today.
func (t *Tracker) Remaining(st State) int {
	return max(0, t.dailyLimit-st.SolvedToday)
}

// Status reports userID's quota using the same rollover and cooldown rules
// as CheckEligible.
func (t *Tracker) Status(ctx context.Context, userID string) (Status, error) {
	st, err := t.load(ctx, userID)
	if err != nil {
		return Status{}, err
	}

	now := t.clock.Now()
	st = t.effective(st, now)

	return Status{
		SolvedToday: st.SolvedToday,
		Limit:       t.dailyLimit,
		Remaining:   t.Remaining(st),
		CooldownMs:  Milliseconds(t.cooldownLeft(st, now)),
	}, nil
}
