// Package cache provides the TTL cache consulted before every provider chain.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kestrelworks/folio/pkg/models"
)

// Default lifetimes per capability. Snapshots go stale fast; filings do not.
const (
	DefaultSnapshotTTL     = time.Minute
	DefaultBarsTTL         = time.Hour
	DefaultNewsTTL         = 15 * time.Minute
	DefaultFundamentalsTTL = 24 * time.Hour
	DefaultSweepInterval   = 5 * time.Minute
)

// TTLs holds the per-capability entry lifetimes.
type TTLs struct {
	Snapshot     time.Duration
	Bars         time.Duration
	News         time.Duration
	Fundamentals time.Duration
}

// DefaultTTLs returns the standard lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		Snapshot:     DefaultSnapshotTTL,
		Bars:         DefaultBarsTTL,
		News:         DefaultNewsTTL,
		Fundamentals: DefaultFundamentalsTTL,
	}
}

// For returns the lifetime for a capability kind.
func (t TTLs) For(kind models.CapabilityKind) time.Duration {
	switch kind {
	case models.CapabilitySnapshot:
		return t.Snapshot
	case models.CapabilityBars:
		return t.Bars
	case models.CapabilityNews:
		return t.News
	case models.CapabilityFundamentals:
		return t.Fundamentals
	default:
		return t.Snapshot
	}
}

// Store is a string-keyed TTL cache. An entry is usable until its TTL
// elapses; expired entries are dropped lazily on read and the backend
// janitor sweeps them out in the background. Concurrent writers to the same
// key follow last-writer-wins.
type Store struct {
	backend *gocache.Cache
	ttls    TTLs
}

// New creates a Store. sweep is the background janitor interval; zero or
// negative disables sweeping so entries are only evicted on read.
func New(ttls TTLs, sweep time.Duration) *Store {
	return &Store{
		backend: gocache.New(gocache.NoExpiration, sweep),
		ttls:    ttls,
	}
}

// Key builds the canonical cache key for a request: "<kind>:<symbol>".
func Key(req models.Request) string {
	return string(req.Kind) + ":" + req.Symbol
}

// TTL returns the configured lifetime for a capability kind.
func (s *Store) TTL(kind models.CapabilityKind) time.Duration {
	return s.ttls.For(kind)
}

// Get returns the cached value for key if present and fresh.
func (s *Store) Get(key string) (any, bool) {
	return s.backend.Get(key)
}

// Put stores a value under key with the given TTL.
func (s *Store) Put(key string, value any, ttl time.Duration) {
	s.backend.Set(key, value, ttl)
}

// Invalidate removes the entry for key.
func (s *Store) Invalidate(key string) {
	s.backend.Delete(key)
}

// Flush removes every entry.
func (s *Store) Flush() {
	s.backend.Flush()
}

// Len returns the number of entries, expired ones included until swept.
func (s *Store) Len() int {
	return s.backend.ItemCount()
}
