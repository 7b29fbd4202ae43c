package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

var (
	registry map[string]Factory = map[string]Factory{}
	regLock  sync.RWMutex
)

// Factory validates backend parameters from the policy file and builds the
// backend. Build may start background goroutines that stop when ctx is done.
type Factory interface {
	Build(ctx context.Context, config json.RawMessage) (Interface, error)
	Valid(config json.RawMessage) error
}

func Register(name string, impl Factory) {
	regLock.Lock()
	defer regLock.Unlock()

	registry[name] = impl
}

func Get(name string) (Factory, bool) {
	regLock.RLock()
	defer regLock.RUnlock()
	result, ok := registry[name]
	return result, ok
}

// Build looks up the named backend and builds it.
func Build(ctx context.Context, name string, config json.RawMessage) (Interface, error) {
	fac, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend %q", ErrBadConfig, name)
	}

	return fac.Build(ctx, config)
}

func Methods() []string {
	regLock.RLock()
	defer regLock.RUnlock()
	var result []string
	for method := range registry {
		result = append(result, method)
	}
	sort.Strings(result)
	return result
}
