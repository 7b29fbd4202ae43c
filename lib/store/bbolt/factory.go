package bbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/uvensys/abacus/lib/store"
	"go.etcd.io/bbolt"
)

var (
	ErrMissingPath        = errors.New("bbolt: path is missing from config")
	ErrCantWriteToPath    = errors.New("bbolt: can't write to path")
	ErrBadCleanupInterval = errors.New("bbolt: cleanup_interval does not parse as a positive duration")
)

const defaultCleanupInterval = 5 * time.Minute

func init() {
	store.Register("bbolt", Factory{})
}

// Factory builds new instances of the bbolt storage backend according to
// configuration passed via a json.RawMessage.
type Factory struct{}

// Build parses and validates the bbolt storage backend Config and opens the
// database. The database is closed when ctx is done.
func (Factory) Build(ctx context.Context, data json.RawMessage) (store.Interface, error) {
	config, err := parse(data)
	if err != nil {
		return nil, err
	}

	bdb, err := bbolt.Open(config.Path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("can't open bbolt database %s: %w", config.Path, err)
	}

	result := &Store{
		bdb: bdb,
	}

	go result.cleanupThread(ctx, config.interval())

	return result, nil
}

// Valid parses and validates the bbolt store Config or returns
// an error.
func (Factory) Valid(data json.RawMessage) error {
	_, err := parse(data)
	return err
}

func parse(data json.RawMessage) (Config, error) {
	var config Config
	if err := json.Unmarshal([]byte(data), &config); err != nil {
		return Config{}, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	if err := config.Valid(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	return config, nil
}

// Config is the bbolt storage backend configuration.
type Config struct {
	// Path is the filesystem path of the database. The folder must be writable to abacus.
	Path string `json:"path"`

	// CleanupInterval is how often expired values are swept, e.g. "5m".
	CleanupInterval string `json:"cleanup_interval,omitempty"`
}

func (c Config) interval() time.Duration {
	if c.CleanupInterval == "" {
		return defaultCleanupInterval
	}

	// Valid already rejected anything that does not parse.
	d, _ := time.ParseDuration(c.CleanupInterval)
	return d
}

// Valid validates the configuration including checking if its containing folder is writable.
func (c Config) Valid() error {
	var errs []error

	if c.Path == "" {
		errs = append(errs, ErrMissingPath)
	} else {
		dir := filepath.Dir(c.Path)
		if err := os.WriteFile(filepath.Join(dir, ".test-file"), []byte(""), 0600); err != nil {
			errs = append(errs, ErrCantWriteToPath)
		}
		os.Remove(filepath.Join(dir, ".test-file"))
	}

	if c.CleanupInterval != "" {
		if d, err := time.ParseDuration(c.CleanupInterval); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%w: %q", ErrBadCleanupInterval, c.CleanupInterval))
		}
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}
