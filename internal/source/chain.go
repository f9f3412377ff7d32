package source

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kestrelworks/folio/internal/cache"
	"github.com/kestrelworks/folio/pkg/models"
	"github.com/kestrelworks/folio/pkg/utils"
)

// DefaultMinBars is the minimum series length accepted outright. Shorter
// non-empty series are only returned when no provider can do better.
const DefaultMinBars = 30

// Chain executes capability lookups against ordered provider lists with a
// TTL cache in front. Providers are consulted strictly one at a time in
// configuration order; the first usable result wins and is written back to
// the cache with the capability's TTL.
type Chain struct {
	store   *cache.Store
	sources map[models.CapabilityKind][]Source
	minBars int
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithMinBars sets the minimum bar count accepted without falling back to
// the longest partial series.
func WithMinBars(n int) ChainOption {
	return func(c *Chain) {
		if n > 0 {
			c.minBars = n
		}
	}
}

// NewChain creates a chain executor over per-capability provider lists.
func NewChain(store *cache.Store, sources map[models.CapabilityKind][]Source, opts ...ChainOption) *Chain {
	c := &Chain{
		store:   store,
		sources: sources,
		minBars: DefaultMinBars,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// chainFor returns the ordered providers for a capability.
func (c *Chain) chainFor(kind models.CapabilityKind) []Source {
	return c.sources[kind]
}

// candidateSymbols returns the symbols to attempt, in order: the requested
// symbol, then (when it carries a class suffix) the collapsed form. The
// second entry drives the single whole-chain retry.
func candidateSymbols(req models.Request) []string {
	symbols := []string{req.Symbol}
	if utils.HasClassSuffix(req.Symbol) {
		if stripped := utils.StripClassSuffix(req.Symbol); stripped != req.Symbol {
			symbols = append(symbols, stripped)
		}
	}
	return symbols
}

// Snapshot runs the snapshot chain for the request.
func (c *Chain) Snapshot(ctx context.Context, req models.Request) (*models.Snapshot, error) {
	req.Kind = models.CapabilitySnapshot

	key := cache.Key(req)
	if cached, ok := c.store.Get(key); ok {
		return cached.(*models.Snapshot), nil
	}

	snap, provider, err := runChain(ctx, c, req,
		func(ctx context.Context, s Source, symbol string) (*models.Snapshot, error) {
			return s.Snapshot(ctx, symbol)
		},
		func(s *models.Snapshot) bool { return s != nil && s.Price != 0 },
	)
	if err != nil {
		return nil, err
	}

	snap.Provenance.Provider = provider
	c.store.Put(key, snap, c.store.TTL(req.Kind))
	return snap, nil
}

// News runs the news chain for the request.
func (c *Chain) News(ctx context.Context, req models.Request, limit int) (*models.NewsSet, error) {
	req.Kind = models.CapabilityNews

	key := fmt.Sprintf("%s:%d", cache.Key(req), limit)
	if cached, ok := c.store.Get(key); ok {
		return cached.(*models.NewsSet), nil
	}

	items, provider, err := runChain(ctx, c, req,
		func(ctx context.Context, s Source, symbol string) ([]models.NewsItem, error) {
			return s.News(ctx, symbol, limit)
		},
		func(items []models.NewsItem) bool { return len(items) > 0 },
	)
	if err != nil {
		return nil, err
	}

	set := &models.NewsSet{
		Symbol:     req.Symbol,
		Items:      items,
		Provenance: models.Provenance{Provider: provider},
	}
	c.store.Put(key, set, c.store.TTL(req.Kind))
	return set, nil
}

// Fundamentals runs the fundamentals chain for the request.
func (c *Chain) Fundamentals(ctx context.Context, req models.Request) (*models.Fundamentals, error) {
	req.Kind = models.CapabilityFundamentals

	key := cache.Key(req)
	if cached, ok := c.store.Get(key); ok {
		return cached.(*models.Fundamentals), nil
	}

	fund, provider, err := runChain(ctx, c, req,
		func(ctx context.Context, s Source, symbol string) (*models.Fundamentals, error) {
			return s.Fundamentals(ctx, symbol)
		},
		func(f *models.Fundamentals) bool { return !f.Empty() },
	)
	if err != nil {
		return nil, err
	}

	fund.Provenance.Provider = provider
	c.store.Put(key, fund, c.store.TTL(req.Kind))
	return fund, nil
}

// Bars runs the historical bars chain for the request. A series at or above
// the minimum bar count is accepted outright. When no provider reaches the
// minimum, the longest non-empty series seen across all attempts (including
// the class-suffix retry pass) is returned instead, so partial data always
// beats no data.
func (c *Chain) Bars(ctx context.Context, req models.Request, from, to time.Time, interval models.Interval) (*models.BarSeries, error) {
	req.Kind = models.CapabilityBars

	key := fmt.Sprintf("%s:%s:%s:%s", cache.Key(req), interval, from.Format("20060102"), to.Format("20060102"))
	if cached, ok := c.store.Get(key); ok {
		return cached.(*models.BarSeries), nil
	}

	var (
		longest         []models.Bar
		longestProvider string
		lastErr         error
	)

	for _, symbol := range candidateSymbols(req) {
		for _, src := range c.chainFor(models.CapabilityBars) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if req.Crypto && !src.SupportsCrypto() {
				continue
			}

			bars, err := src.Bars(ctx, symbol, from, to, interval)
			if err != nil {
				lastErr = err
				log.Debug().Str("provider", src.Name()).Str("symbol", symbol).Err(err).
					Msg("bars provider failed, trying next")
				continue
			}
			if len(bars) == 0 {
				lastErr = fmt.Errorf("%s returned no bars", src.Name())
				continue
			}
			if len(bars) >= c.minBars {
				return c.acceptBars(key, req, bars, interval, src.Name()), nil
			}
			if len(bars) > len(longest) {
				longest = bars
				longestProvider = src.Name()
			}
			lastErr = fmt.Errorf("%s returned %d bars, below minimum %d", src.Name(), len(bars), c.minBars)
		}
	}

	if len(longest) > 0 {
		log.Debug().Str("provider", longestProvider).Str("symbol", req.Symbol).Int("bars", len(longest)).
			Msg("no provider met the bar minimum, returning longest partial series")
		return c.acceptBars(key, req, longest, interval, longestProvider), nil
	}

	return nil, chainErr(req.Kind, req.Symbol, lastErr)
}

// acceptBars wraps an accepted series with provenance and caches it.
func (c *Chain) acceptBars(key string, req models.Request, bars []models.Bar, interval models.Interval, provider string) *models.BarSeries {
	series := &models.BarSeries{
		Symbol:     req.Symbol,
		Interval:   interval,
		Bars:       bars,
		Provenance: models.Provenance{Provider: provider},
	}
	c.store.Put(key, series, c.store.TTL(req.Kind))
	return series
}

// runChain tries each provider in order for the request, returning the first
// usable result and the name of the provider that produced it. When the
// symbol carries a class suffix and every provider failed, the whole chain
// is retried exactly once with the collapsed symbol. Cancellation aborts
// between attempts; no retry pass runs after the context ends.
func runChain[T any](
	ctx context.Context,
	c *Chain,
	req models.Request,
	fetch func(ctx context.Context, s Source, symbol string) (T, error),
	usable func(T) bool,
) (T, string, error) {
	var zero T
	var lastErr error

	for _, symbol := range candidateSymbols(req) {
		for _, src := range c.chainFor(req.Kind) {
			if err := ctx.Err(); err != nil {
				return zero, "", err
			}
			if req.Crypto && !src.SupportsCrypto() {
				continue
			}

			result, err := fetch(ctx, src, symbol)
			if err != nil {
				lastErr = err
				log.Debug().Str("provider", src.Name()).Str("symbol", symbol).
					Str("kind", string(req.Kind)).Err(err).
					Msg("provider failed, trying next")
				continue
			}
			if !usable(result) {
				lastErr = fmt.Errorf("%s returned an empty result", src.Name())
				continue
			}
			return result, src.Name(), nil
		}
	}

	return zero, "", chainErr(req.Kind, req.Symbol, lastErr)
}

// chainErr wraps ErrNoData with capability context and the last provider error.
func chainErr(kind models.CapabilityKind, symbol string, lastErr error) error {
	if lastErr != nil {
		return fmt.Errorf("%s %s: %w (last provider error: %v)", kind, symbol, ErrNoData, lastErr)
	}
	return fmt.Errorf("%s %s: %w", kind, symbol, ErrNoData)
}
