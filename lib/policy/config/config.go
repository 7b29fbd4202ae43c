package config

import (
	"errors"
	"fmt"
	"io"
	"time"
	_ "time/tzdata" // timezone lookups on hosts without zoneinfo

	"github.com/uvensys/abacus"
	"k8s.io/apimachinery/pkg/util/yaml"
	sigsyaml "sigs.k8s.io/yaml"
)

var (
	ErrDailyLimitNotPositive = errors.New("config.Quota: daily_limit must be at least 1")
	ErrBadCooldown           = errors.New("config.Quota: cooldown must be a non-negative duration")
	ErrBadTimezone           = errors.New("config.Quota: timezone is not a known IANA zone")
	ErrBadTTL                = errors.New("config.Challenge: ttl must be a positive duration")
	ErrRewardNotPositive     = errors.New("config.Challenge: reward must be at least 1")
)

// Quota configures how often each user may solve challenges.
type Quota struct {
	DailyLimit int `json:"daily_limit"`
	// Cooldown is the minimum time between two solves, e.g. "30s".
	Cooldown string `json:"cooldown"`
	// Timezone decides where calendar days start. "Local" or empty uses the
	// host's zone.
	Timezone string `json:"timezone,omitempty"`
}

func (q Quota) location() (*time.Location, error) {
	switch q.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(q.Timezone)
	}
}

func (q Quota) Valid() error {
	var errs []error

	if q.DailyLimit < 1 {
		errs = append(errs, fmt.Errorf("%w, got %d", ErrDailyLimitNotPositive, q.DailyLimit))
	}

	if d, err := time.ParseDuration(q.Cooldown); err != nil || d < 0 {
		errs = append(errs, fmt.Errorf("%w: %q", ErrBadCooldown, q.Cooldown))
	}

	if _, err := q.location(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q: %w", ErrBadTimezone, q.Timezone, err))
	}

	if len(errs) != 0 {
		return fmt.Errorf("quota not valid:\n%w", errors.Join(errs...))
	}

	return nil
}

// Challenge configures the lifetime and value of issued challenges.
type Challenge struct {
	// TTL is how long an issued challenge can be answered, e.g. "5m".
	TTL    string `json:"ttl"`
	Reward int    `json:"reward"`
}

func (c Challenge) Valid() error {
	var errs []error

	if d, err := time.ParseDuration(c.TTL); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("%w: %q", ErrBadTTL, c.TTL))
	}

	if c.Reward < 1 {
		errs = append(errs, fmt.Errorf("%w, got %d", ErrRewardNotPositive, c.Reward))
	}

	if len(errs) != 0 {
		return fmt.Errorf("challenge not valid:\n%w", errors.Join(errs...))
	}

	return nil
}

type fileConfig struct {
	Quota     Quota     `json:"quota"`
	Challenge Challenge `json:"challenge"`
	Store     *Store    `json:"store"`
}

func (c *fileConfig) Valid() error {
	var errs []error

	if err := c.Quota.Valid(); err != nil {
		errs = append(errs, err)
	}

	if err := c.Challenge.Valid(); err != nil {
		errs = append(errs, err)
	}

	if err := c.Store.Valid(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) != 0 {
		return fmt.Errorf("config is not valid:\n%w", errors.Join(errs...))
	}

	return nil
}

func defaultFileConfig() *fileConfig {
	return &fileConfig{
		Quota: Quota{
			DailyLimit: abacus.DefaultDailyLimit,
			Cooldown:   abacus.DefaultCooldown.String(),
			Timezone:   "Local",
		},
		Challenge: Challenge{
			TTL:    abacus.DefaultChallengeTTL.String(),
			Reward: abacus.DefaultReward,
		},
		Store: &Store{
			Backend: "memory",
		},
	}
}

// Load reads a YAML (or JSON) policy file. Fields the file leaves out keep
// their defaults.
func Load(fin io.Reader, fname string) (*Config, error) {
	c := defaultFileConfig()

	if err := yaml.NewYAMLToJSONDecoder(fin).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("can't parse policy config YAML %s: %w", fname, err)
	}

	if c.Store == nil {
		c.Store = defaultFileConfig().Store
	}

	if err := c.Valid(); err != nil {
		return nil, fmt.Errorf("errors validating policy config %s: %w", fname, err)
	}

	// Valid already rejected anything that does not parse.
	cooldown, _ := time.ParseDuration(c.Quota.Cooldown)
	ttl, _ := time.ParseDuration(c.Challenge.TTL)
	loc, _ := c.Quota.location()

	return &Config{
		DailyLimit:   c.Quota.DailyLimit,
		Cooldown:     cooldown,
		Location:     loc,
		ChallengeTTL: ttl,
		Reward:       c.Challenge.Reward,
		Store:        *c.Store,
	}, nil
}

// Config is a validated policy with its durations parsed.
type Config struct {
	DailyLimit   int
	Cooldown     time.Duration
	Location     *time.Location
	ChallengeTTL time.Duration
	Reward       int
	Store        Store
}

// Document renders c in the policy file layout. Loading the result gives back
// an equivalent Config.
func (c Config) Document() ([]byte, error) {
	st := c.Store

	return sigsyaml.Marshal(fileConfig{
		Quota: Quota{
			DailyLimit: c.DailyLimit,
			Cooldown:   c.Cooldown.String(),
			Timezone:   c.Location.String(),
		},
		Challenge: Challenge{
			TTL:    c.ChallengeTTL.String(),
			Reward: c.Reward,
		},
		Store: &st,
	})
}
