// Package policy turns a policy file into the settings and storage backend
// the challenge services run with.
package policy

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/uvensys/abacus/lib/policy/config"
	"github.com/uvensys/abacus/lib/quota"
	"github.com/uvensys/abacus/lib/store"
)

var dailyLimit = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "abacus_policy_daily_limit",
	Help: "The number of solves each user is allowed per day",
})

type ParsedConfig struct {
	orig *config.Config

	DailyLimit   int
	Cooldown     time.Duration
	Location     *time.Location
	ChallengeTTL time.Duration
	Reward       int
	Store        store.Interface
}

func NewParsedConfig(orig *config.Config) *ParsedConfig {
	return &ParsedConfig{
		orig:         orig,
		DailyLimit:   orig.DailyLimit,
		Cooldown:     orig.Cooldown,
		Location:     orig.Location,
		ChallengeTTL: orig.ChallengeTTL,
		Reward:       orig.Reward,
	}
}

// Original returns the configuration the policy was parsed from.
func (pc *ParsedConfig) Original() config.Config {
	return *pc.orig
}

// QuotaOptions returns the quota settings. Clock is left unset.
func (pc *ParsedConfig) QuotaOptions() quota.Options {
	return quota.Options{
		DailyLimit: pc.DailyLimit,
		Cooldown:   pc.Cooldown,
		Location:   pc.Location,
	}
}

// ParseConfig loads the policy file from fin and builds its store backend.
// Backend goroutines run until ctx is done.
func ParseConfig(ctx context.Context, fin io.Reader, fname string) (*ParsedConfig, error) {
	c, err := config.Load(fin, fname)
	if err != nil {
		return nil, err
	}

	result := NewParsedConfig(c)

	result.Store, err = store.Build(ctx, c.Store.Backend, c.Store.Parameters)
	if err != nil {
		return nil, fmt.Errorf("can't build %s store for policy %s: %w", c.Store.Backend, fname, err)
	}

	dailyLimit.Set(float64(result.DailyLimit))

	return result, nil
}
