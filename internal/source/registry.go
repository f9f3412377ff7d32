package source

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kestrelworks/folio/pkg/models"
)

// Registry is a thread-safe registry of market data providers. It maps
// provider names to Source instances and assembles the ordered
// per-capability chains from configured name lists.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry with the standard providers registered.
func NewRegistry() *Registry {
	r := &Registry{sources: make(map[string]Source)}
	r.Register(NewYahoo())
	r.Register(NewStooq())
	r.Register(NewCoinGecko())
	r.Register(NewFeeds())
	return r
}

// Register adds a provider under its own name. Duplicate registrations
// overwrite the previous entry.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chains assembles ordered source lists per capability from configured name
// lists. Unknown names are skipped with a warning so a config typo degrades
// to a shorter chain instead of failing startup.
func (r *Registry) Chains(names map[models.CapabilityKind][]string) map[models.CapabilityKind][]Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[models.CapabilityKind][]Source, len(names))
	for kind, list := range names {
		for _, name := range list {
			src, ok := r.sources[name]
			if !ok {
				log.Warn().Str("provider", name).Str("capability", string(kind)).
					Msg("unknown provider in chain config, skipping")
				continue
			}
			out[kind] = append(out[kind], src)
		}
	}
	return out
}
