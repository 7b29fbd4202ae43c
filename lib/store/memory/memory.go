package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uvensys/abacus/decaymap"
	"github.com/uvensys/abacus/lib/store"
)

const defaultCleanupInterval = time.Minute

var ErrBadCleanupInterval = errors.New("memory: cleanup_interval does not parse as a positive duration")

type factory struct{}

func (factory) Build(ctx context.Context, data json.RawMessage) (store.Interface, error) {
	interval, err := parseConfig(data)
	if err != nil {
		return nil, err
	}

	return newWithInterval(ctx, interval), nil
}

func (factory) Valid(data json.RawMessage) error {
	_, err := parseConfig(data)
	return err
}

func init() {
	store.Register("memory", factory{})
}

// Config is optional; an empty parameters block selects the defaults.
type Config struct {
	CleanupInterval string `json:"cleanup_interval,omitempty"`
}

func parseConfig(data json.RawMessage) (time.Duration, error) {
	if len(data) == 0 || string(data) == "null" {
		return defaultCleanupInterval, nil
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return 0, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	if c.CleanupInterval == "" {
		return defaultCleanupInterval, nil
	}

	d, err := time.ParseDuration(c.CleanupInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %w: %q", store.ErrBadConfig, ErrBadCleanupInterval, c.CleanupInterval)
	}

	return d, nil
}

type impl struct {
	store *decaymap.Impl[string, []byte]
}

func (i *impl) Delete(_ context.Context, key string) error {
	if !i.store.Delete(key) {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return nil
}

func (i *impl) Get(_ context.Context, key string) ([]byte, error) {
	result, ok := i.store.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return result, nil
}

func (i *impl) Set(_ context.Context, key string, value []byte, expiry time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	i.store.Set(key, buf, expiry)
	return nil
}

func (i *impl) cleanupThread(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			i.store.Cleanup()
		}
	}
}

// New creates a simple in-memory store. State is lost on restart and is not
// shared between abacus instances.
func New(ctx context.Context) store.Interface {
	return newWithInterval(ctx, defaultCleanupInterval)
}

func newWithInterval(ctx context.Context, interval time.Duration) store.Interface {
	result := &impl{
		store: decaymap.New[string, []byte](),
	}

	go result.cleanupThread(ctx, interval)

	return result
}
