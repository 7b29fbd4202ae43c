package challenge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uvensys/abacus/internal"
	"github.com/uvensys/abacus/lib/store"
)

// maxIDAttempts bounds how often Create retries after an id collision.
const maxIDAttempts = 8

// minTombstone is the shortest time a consumed record is kept around.
const minTombstone = time.Second

// Store holds pending challenges and hands out each expected answer once.
//
// Entries are written with a backend expiry equal to the TTL, and every read
// also checks the age against the injected clock, so an entry the backend has
// not purged yet still reads as expired.
type Store struct {
	lock  sync.Mutex
	db    store.JSON[Challenge]
	ttl   time.Duration
	clock internal.Clock
	newID func() (uuid.UUID, error)
}

func NewStore(backend store.Interface, ttl time.Duration, clock internal.Clock) *Store {
	if clock == nil {
		clock = internal.SystemClock{}
	}

	return &Store{
		db:    store.JSON[Challenge]{Underlying: backend, Prefix: "challenge:"},
		ttl:   ttl,
		clock: clock,
		newID: uuid.NewV7,
	}
}

func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) expired(c Challenge, now time.Time) bool {
	return now.Sub(c.IssuedAt) > s.ttl
}

func (s *Store) get(ctx context.Context, id string) (Challenge, error) {
	c, err := s.db.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return Challenge{}, ErrNotFound
	case err != nil:
		return Challenge{}, fmt.Errorf("challenge: can't load %s: %w", id, err)
	}

	return c, nil
}

func (s *Store) remove(ctx context.Context, id string) error {
	if err := s.db.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("challenge: can't remove %s: %w", id, err)
	}
	return nil
}

// Create stores a new pending challenge for answer under a fresh id.
func (s *Store) Create(ctx context.Context, answer string) (*Challenge, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for range maxIDAttempts {
		id, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("challenge: can't generate id: %w", err)
		}

		_, err = s.db.Get(ctx, id.String())
		switch {
		case err == nil:
			continue
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("challenge: can't check id %s: %w", id, err)
		}

		c := &Challenge{
			ID:       id.String(),
			Answer:   answer,
			IssuedAt: s.clock.Now(),
		}

		if err := s.db.Set(ctx, c.ID, *c, s.ttl); err != nil {
			return nil, fmt.Errorf("challenge: can't store %s: %w", c.ID, err)
		}

		issued.Inc()
		return c, nil
	}

	return nil, fmt.Errorf("challenge: no free id after %d attempts", maxIDAttempts)
}

// Peek looks a challenge up without changing it. It returns ErrNotFound or
// ErrExpired the same way Consume does, but never removes anything.
func (s *Store) Peek(ctx context.Context, id string) (Challenge, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	c, err := s.get(ctx, id)
	if err != nil {
		return Challenge{}, err
	}

	if s.expired(c, s.clock.Now()) {
		return Challenge{}, ErrExpired
	}

	return c, nil
}

// Consume returns the expected answer of a pending challenge and marks it
// used. Every other outcome removes the entry:
//
//   - ErrNotFound: no entry under id
//   - ErrExpired: older than the TTL
//   - ErrAlreadyUsed: a previous Consume already took the answer
//
// The consumed marker is kept until the TTL runs out so that repeat attempts
// report ErrAlreadyUsed.
func (s *Store) Consume(ctx context.Context, id string) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	c, err := s.get(ctx, id)
	if err != nil {
		consumed.WithLabelValues(outcome(err)).Inc()
		return "", err
	}

	now := s.clock.Now()

	switch {
	case s.expired(c, now):
		err = ErrExpired
	case c.Consumed:
		err = ErrAlreadyUsed
	}

	if err != nil {
		consumed.WithLabelValues(outcome(err)).Inc()
		if rerr := s.remove(ctx, id); rerr != nil {
			return "", errors.Join(err, rerr)
		}
		return "", err
	}

	age := now.Sub(c.IssuedAt)
	c.Consumed = true
	if err := s.db.Set(ctx, id, c, max(s.ttl-age, minTombstone)); err != nil {
		return "", fmt.Errorf("challenge: can't mark %s consumed: %w", id, err)
	}

	consumed.WithLabelValues("found").Inc()
	TimeTaken.Observe(float64(age.Milliseconds()))

	return c.Answer, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrAlreadyUsed):
		return "already_used"
	default:
		return "error"
	}
}
