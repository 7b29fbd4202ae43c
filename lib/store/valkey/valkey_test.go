package valkey

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/uvensys/abacus/lib/store"
	"github.com/uvensys/abacus/lib/store/storetest"
)

func TestImpl(t *testing.T) {
	mr := miniredis.RunT(t)

	data, err := json.Marshal(Config{
		URL: fmt.Sprintf("redis://%s/0", mr.Addr()),
	})
	if err != nil {
		t.Fatal(err)
	}

	// miniredis only expires keys when told that time has passed.
	storetest.CommonWithWait(t, Factory{}, json.RawMessage(data), mr.FastForward)
}

func TestBuildUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	data, err := json.Marshal(Config{URL: fmt.Sprintf("redis://%s/0", addr)})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := (Factory{}).Build(t.Context(), json.RawMessage(data)); err == nil {
		t.Error("wanted Build to fail against a stopped server")
	}
}

func TestFactoryValid(t *testing.T) {
	for _, tt := range []struct {
		name string
		cfg  string
		err  error
	}{
		{name: "valid", cfg: `{"url": "redis://valkey:6379/0"}`},
		{name: "no url", cfg: `{}`, err: ErrNoURL},
		{name: "wrong scheme", cfg: `{"url": "http://abacus.example"}`, err: ErrBadURL},
		{name: "not json", cfg: `}`, err: store.ErrBadConfig},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if err := (Factory{}).Valid(json.RawMessage(tt.cfg)); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}
