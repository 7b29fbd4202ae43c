// Package storetest holds the conformance suite every store backend must pass.
package storetest

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/uvensys/abacus/lib/store"
)

// Common runs the suite, letting entries expire in real time.
func Common(t *testing.T, f store.Factory, config json.RawMessage) {
	CommonWithWait(t, f, config, func(d time.Duration) {
		//nosleep:bypass backends expire on the wall clock, not an injected one.
		time.Sleep(d)
	})
}

// CommonWithWait runs the suite. wait must let at least d pass from the
// point of view of the backend; test doubles like miniredis fast-forward
// instead of sleeping.
func CommonWithWait(t *testing.T, f store.Factory, config json.RawMessage, wait func(d time.Duration)) {
	if err := f.Valid(config); err != nil {
		t.Fatal(err)
	}

	s, err := f.Build(t.Context(), config)
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name string
		doer func(t *testing.T, s store.Interface) error
		err  error
	}{
		{
			name: "basic get set delete",
			doer: func(t *testing.T, s store.Interface) error {
				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to not exist in store but it exists anyways", t.Name())
				}

				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 5*time.Minute); err != nil {
					return err
				}

				val, err := s.Get(t.Context(), t.Name())
				if errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to exist in store but it does not: %v", t.Name(), err)
				} else if err != nil {
					t.Error(err)
				}

				if !bytes.Equal(val, []byte(t.Name())) {
					t.Logf("want: %q", t.Name())
					t.Logf("got:  %q", string(val))
					t.Error("wrong value returned")
				}

				if err := s.Delete(t.Context(), t.Name()); err != nil {
					return err
				}

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Error("wanted test to not exist in store but it exists anyways")
				}

				if err := s.Delete(t.Context(), t.Name()); err == nil {
					t.Errorf("key %q does not exist and Delete did not return non-nil", t.Name())
				}

				return nil
			},
		},
		{
			name: "overwrite replaces value",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte("pending"), 5*time.Minute); err != nil {
					return err
				}

				if err := s.Set(t.Context(), t.Name(), []byte("consumed"), 5*time.Minute); err != nil {
					return err
				}

				val, err := s.Get(t.Context(), t.Name())
				if err != nil {
					return err
				}

				if string(val) != "consumed" {
					t.Logf("want: %q", "consumed")
					t.Logf("got:  %q", string(val))
					t.Error("overwrite did not replace the stored value")
				}

				return nil
			},
		},
		{
			name: "expires",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 150*time.Millisecond); err != nil {
					return err
				}

				wait(155 * time.Millisecond)

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to not exist in store but it exists anyways", t.Name())
				}

				return nil
			},
		},
		{
			name: "set after an expired get survives",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte("stale"), 50*time.Millisecond); err != nil {
					return err
				}

				wait(55 * time.Millisecond)

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to be expired but got %v", t.Name(), err)
				}

				if err := s.Set(t.Context(), t.Name(), []byte("fresh"), time.Hour); err != nil {
					return err
				}

				// Give any cleanup started by the expired read time to run.
				wait(50 * time.Millisecond)

				val, err := s.Get(t.Context(), t.Name())
				if err != nil {
					t.Errorf("fresh value was removed after an expired read: %v", err)
					return nil
				}

				if string(val) != "fresh" {
					t.Logf("want: %q", "fresh")
					t.Logf("got:  %q", string(val))
					t.Error("wrong value returned")
				}

				return nil
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.doer(t, s); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}
