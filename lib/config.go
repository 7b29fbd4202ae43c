package lib

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/uvensys/abacus/data"
	"github.com/uvensys/abacus/lib/policy"
)

// LoadPoliciesOrDefault parses the policy file at fname, or the built-in
// policy when fname is empty, and builds its store backend. The backend runs
// until ctx is done.
func LoadPoliciesOrDefault(ctx context.Context, fname string) (*policy.ParsedConfig, error) {
	var fin io.ReadCloser
	var err error

	if fname != "" {
		fin, err = os.Open(fname)
		if err != nil {
			return nil, fmt.Errorf("can't parse policy file %s: %w", fname, err)
		}
	} else {
		fname = "(data)/policy.yaml"
		fin, err = data.Policy.Open("policy.yaml")
		if err != nil {
			return nil, fmt.Errorf("[unexpected] can't parse builtin policy file %s: %w", fname, err)
		}
	}

	defer func(fin io.ReadCloser) {
		err := fin.Close()
		if err != nil {
			slog.Error("failed to close policy file", "file", fname, "err", err)
		}
	}(fin)

	abacusPolicy, err := policy.ParseConfig(ctx, fin, fname)
	if err != nil {
		return nil, fmt.Errorf("can't parse policy file %s: %w", fname, err)
	}

	return abacusPolicy, nil
}
