package bbolt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uvensys/abacus/lib/store"
	"go.etcd.io/bbolt"
)

// Sentinel error values used for testing and in admin-visible error messages.
var (
	ErrBucketDoesNotExist = errors.New("bbolt: bucket does not exist")
	ErrNotExists          = errors.New("bbolt: value does not exist in store")
)

var (
	dataKey   = []byte("data")
	expiryKey = []byte("expiry")
)

// Store implements store.Interface backed by bbolt[1].
//
// Every value gets its own top-level bucket holding two keys:
//
// 1. data - The raw data, usually a JSON challenge or quota record
// 2. expiry - The expiry time formatted as a time.RFC3339Nano timestamp string
//
// Keeping the expiry in its own key lets the cleanup sweep scan expiry times
// without decoding records.
//
// bbolt takes an exclusive file lock, so only one abacus process can use a
// given database. Use the valkey backend when several instances must share
// challenges and quotas.
//
// [1]: https://github.com/etcd-io/bbolt
type Store struct {
	bdb *bbolt.DB
}

// Delete a key from the datastore. If the key does not exist, return an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(key)) == nil {
			return fmt.Errorf("%w: %w: %q", store.ErrNotFound, ErrNotExists, key)
		}

		return tx.DeleteBucket([]byte(key))
	})
}

// expire deletes key if and only if it is still expired when the write
// transaction runs. A Set that raced in after the expired read is kept.
func (s *Store) expire(key string, now time.Time) (bool, error) {
	var removed bool

	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		itemBucket := tx.Bucket([]byte(key))
		if itemBucket == nil {
			return nil
		}

		expiry, err := readExpiry(itemBucket)
		if err != nil {
			return fmt.Errorf("%w: %q", err, key)
		}

		if !now.After(expiry) {
			return nil
		}

		removed = true
		return tx.DeleteBucket([]byte(key))
	})

	return removed, err
}

// Get a value from the datastore. Expired values are reported as missing and
// expired in the background, since a read transaction cannot write.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var result []byte

	if err := s.bdb.View(func(tx *bbolt.Tx) error {
		itemBucket := tx.Bucket([]byte(key))
		if itemBucket == nil {
			return fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		expiry, err := readExpiry(itemBucket)
		if err != nil {
			return fmt.Errorf("%w: %q", err, key)
		}

		if time.Now().After(expiry) {
			go func() {
				if _, err := s.expire(key, time.Now()); err != nil {
					slog.Error("can't expire value", "key", key, "err", err)
				}
			}()
			return fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		data := itemBucket.Get(dataKey)
		if data == nil {
			return fmt.Errorf("[unexpected] %w: %q (data is nil)", store.ErrNotFound, key)
		}

		// bbolt memory is only valid inside the transaction.
		result = append([]byte(nil), data...)
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// Set a value into the store with a given expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	expires := time.Now().Add(expiry)

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		valueBkt, err := tx.CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return fmt.Errorf("%w: %w: %q (create bucket)", store.ErrCantEncode, err, key)
		}

		if err := valueBkt.Put(expiryKey, []byte(expires.Format(time.RFC3339Nano))); err != nil {
			return fmt.Errorf("%w: %q (expiry)", store.ErrCantEncode, key)
		}

		if err := valueBkt.Put(dataKey, value); err != nil {
			return fmt.Errorf("%w: %q (data)", store.ErrCantEncode, key)
		}

		return nil
	})
}

func readExpiry(bkt *bbolt.Bucket) (time.Time, error) {
	raw := bkt.Get(expiryKey)
	if raw == nil {
		return time.Time{}, fmt.Errorf("[unexpected] %w (expiry is nil)", store.ErrNotFound)
	}

	expiry, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("[unexpected] %w: %w", store.ErrCantDecode, err)
	}

	return expiry, nil
}

// cleanup removes every expired bucket and reports how many it removed.
func (s *Store) cleanup(now time.Time) (int, error) {
	var removed int

	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		var stale [][]byte

		if err := tx.ForEach(func(name []byte, bkt *bbolt.Bucket) error {
			expiry, err := readExpiry(bkt)
			if err != nil {
				slog.Warn("while running cleanup, bucket has no usable expiry, file a bug?", "key", string(name), "err", err)
				return nil
			}

			if now.After(expiry) {
				stale = append(stale, append([]byte(nil), name...))
			}

			return nil
		}); err != nil {
			return err
		}

		// Buckets can't be deleted while ForEach is iterating over them.
		for _, name := range stale {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("can't delete expired bucket %q: %w", string(name), err)
			}
		}

		removed = len(stale)
		return nil
	})

	return removed, err
}

func (s *Store) cleanupThread(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.bdb.Close(); err != nil {
				slog.Error("can't close bbolt database", "err", err)
			}
			return
		case <-t.C:
			n, err := s.cleanup(time.Now())
			if err != nil {
				slog.Error("error during bbolt cleanup", "err", err)
				continue
			}
			if n != 0 {
				slog.Debug("bbolt cleanup removed expired values", "count", n)
			}
		}
	}
}
