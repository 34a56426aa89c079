// Package factory opens a storage backend by name.
package factory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/plotsync/plotsync/internal/storage"
)

// Backend names
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// BackendFactory is a function that creates a storage backend
type BackendFactory func(ctx context.Context, path string) (storage.Gateway, error)

var (
	registryMu      sync.RWMutex
	backendRegistry = make(map[string]BackendFactory)
)

// RegisterBackend registers a storage backend factory
func RegisterBackend(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backendRegistry[name] = factory
}

// Backends lists registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a storage backend. An empty backend means sqlite. The path is
// ignored by the memory backend.
func New(ctx context.Context, backend, path string) (storage.Gateway, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = BackendSQLite
	}
	registryMu.RLock()
	factory, ok := backendRegistry[backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown storage backend: %s (supported: %s)", backend, strings.Join(Backends(), ", "))
	}
	return factory(ctx, path)
}
