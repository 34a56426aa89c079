package reader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/plotsync/plotsync/internal/types"
)

// Factory creates a new Reader instance.
type Factory func() Reader

// Registry manages registered format readers.
type Registry struct {
	mu      sync.RWMutex
	readers map[types.Format]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{readers: make(map[types.Format]Factory)}
}

// globalRegistry is the default registry used by Register and Get.
var globalRegistry = NewRegistry()

// Register adds a reader factory to the global registry.
// This is typically called from format package init() functions.
func Register(format types.Format, factory Factory) {
	globalRegistry.Register(format, factory)
}

// Get returns a new reader for format from the global registry.
func Get(format types.Format) (Reader, error) {
	return globalRegistry.Get(format)
}

// List returns the registered formats.
func List() []types.Format {
	return globalRegistry.List()
}

// Default returns the global registry.
func Default() *Registry {
	return globalRegistry
}

// Register adds a reader factory to this registry.
func (r *Registry) Register(format types.Format, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readers[format] = factory
}

// Get creates a new instance of the reader registered for format.
func (r *Registry) Get(format types.Format) (Reader, error) {
	r.mu.RLock()
	factory := r.readers[format]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unknown format %q (available: %v)", format, r.List())
	}
	return factory(), nil
}

// List returns the registered formats, sorted alphabetically.
func (r *Registry) List() []types.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Format, 0, len(r.readers))
	for f := range r.readers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsRegistered checks if a reader is registered for format.
func (r *Registry) IsRegistered(format types.Format) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.readers[format]
	return ok
}
