package valkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	valkey "github.com/redis/go-redis/v9"
	"github.com/uvensys/abacus/lib/store"
)

// Store keeps challenges and quota records in Valkey (or Redis) so that
// several abacus instances behind one load balancer share state.
type Store struct {
	rdb valkey.UniversalClient
}

func (s *Store) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("can't delete from valkey: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, valkey.Nil) {
			return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		return nil, fmt.Errorf("can't fetch from valkey: %w", err)
	}

	return result, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	// A zero expiry means "forever" to valkey; nothing abacus stores should
	// outlive its TTL.
	if expiry <= 0 {
		expiry = time.Millisecond
	}

	if err := s.rdb.Set(ctx, key, value, expiry).Err(); err != nil {
		return fmt.Errorf("can't set %q in valkey: %w", key, err)
	}

	return nil
}
