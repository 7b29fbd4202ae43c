package config_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/uvensys/abacus"
	"github.com/uvensys/abacus/lib/policy/config"
)

func TestGoodConfigs(t *testing.T) {
	finfos, err := os.ReadDir("testdata/good")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			fin, err := os.Open(filepath.Join("testdata", "good", st.Name()))
			if err != nil {
				t.Fatal(err)
			}
			defer fin.Close()

			if _, err := config.Load(fin, st.Name()); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestBadConfigs(t *testing.T) {
	finfos, err := os.ReadDir("testdata/bad")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			fin, err := os.Open(filepath.Join("testdata", "bad", st.Name()))
			if err != nil {
				t.Fatal(err)
			}
			defer fin.Close()

			if _, err := config.Load(fin, st.Name()); err == nil {
				t.Fatal("config loaded but should have failed")
			} else {
				t.Log(err)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	c, err := config.Load(strings.NewReader(""), "empty.yaml")
	if err != nil {
		t.Fatal(err)
	}

	want := config.Config{
		DailyLimit:   abacus.DefaultDailyLimit,
		Cooldown:     abacus.DefaultCooldown,
		Location:     time.Local,
		ChallengeTTL: abacus.DefaultChallengeTTL,
		Reward:       abacus.DefaultReward,
	}

	if c.DailyLimit != want.DailyLimit || c.Cooldown != want.Cooldown || c.Location != want.Location ||
		c.ChallengeTTL != want.ChallengeTTL || c.Reward != want.Reward {
		t.Logf("want: %+v", want)
		t.Logf("got:  %+v", *c)
		t.Error("defaults not applied")
	}

	if c.Store.Backend != "memory" {
		t.Errorf("wanted memory store by default, got %q", c.Store.Backend)
	}
}

func TestLoadParsesValues(t *testing.T) {
	fin, err := os.Open(filepath.Join("testdata", "good", "strict.json"))
	if err != nil {
		t.Fatal(err)
	}
	defer fin.Close()

	c, err := config.Load(fin, "strict.json")
	if err != nil {
		t.Fatal(err)
	}

	if c.DailyLimit != 3 || c.Cooldown != 2*time.Minute || c.ChallengeTTL != 90*time.Second || c.Reward != 5 {
		t.Errorf("values not parsed: %+v", *c)
	}

	if c.Location.String() != "UTC" {
		t.Errorf("wanted UTC, got %s", c.Location)
	}
}

func TestValidErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
		v    interface{ Valid() error }
	}{
		{name: "limit", err: config.ErrDailyLimitNotPositive, v: config.Quota{DailyLimit: -1, Cooldown: "1s"}},
		{name: "cooldown garbage", err: config.ErrBadCooldown, v: config.Quota{DailyLimit: 1, Cooldown: "soon"}},
		{name: "timezone", err: config.ErrBadTimezone, v: config.Quota{DailyLimit: 1, Cooldown: "1s", Timezone: "Nowhere/Special"}},
		{name: "ttl", err: config.ErrBadTTL, v: config.Challenge{TTL: "-1m", Reward: 1}},
		{name: "reward", err: config.ErrRewardNotPositive, v: config.Challenge{TTL: "1m"}},
		{name: "ok quota", v: config.Quota{DailyLimit: 1, Cooldown: "0s", Timezone: "UTC"}},
		{name: "ok challenge", v: config.Challenge{TTL: "1m", Reward: 1}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.v.Valid(); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("invalid error returned")
			}
		})
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	for _, fname := range []string{"full.yaml", "strict.json", "no_cooldown.yaml"} {
		t.Run(fname, func(t *testing.T) {
			fin, err := os.Open(filepath.Join("testdata", "good", fname))
			if err != nil {
				t.Fatal(err)
			}
			defer fin.Close()

			want, err := config.Load(fin, fname)
			if err != nil {
				t.Fatal(err)
			}

			doc, err := want.Document()
			if err != nil {
				t.Fatal(err)
			}

			got, err := config.Load(bytes.NewReader(doc), "document.yaml")
			if err != nil {
				t.Logf("document:\n%s", doc)
				t.Fatal(err)
			}

			if got.DailyLimit != want.DailyLimit || got.Cooldown != want.Cooldown ||
				got.Location.String() != want.Location.String() || got.ChallengeTTL != want.ChallengeTTL ||
				got.Reward != want.Reward || got.Store.Backend != want.Store.Backend {
				t.Logf("want: %+v", *want)
				t.Logf("got:  %+v", *got)
				t.Error("document does not load back to the same policy")
			}
		})
	}
}
