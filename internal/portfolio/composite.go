// Package portfolio composes capability chains, holdings, and the model
// chain into the caller-facing views: the per-symbol composite, the
// portfolio summary, and the narrative-analysis stream.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelworks/folio/internal/llm"
	"github.com/kestrelworks/folio/internal/sentiment"
	"github.com/kestrelworks/folio/internal/source"
	"github.com/kestrelworks/folio/pkg/models"
	"github.com/kestrelworks/folio/pkg/utils"
)

const (
	compositeBarsDays  = 90
	compositeNewsLimit = 10

	// DefaultClassifyTimeout bounds the pattern-classification model call.
	DefaultClassifyTimeout = 4 * time.Second
)

// Service aggregates market data and narrative analysis for symbols and
// the tracked portfolio.
type Service struct {
	market          *source.Chain
	analyst         *llm.Chain
	store           Store
	classifyTimeout time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClassifyTimeout overrides the ceiling on the pattern-classification
// model call.
func WithClassifyTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.classifyTimeout = d
		}
	}
}

// NewService wires the capability chain, the model chain, and the holdings
// store into an aggregation service. analyst may be nil; narrative analysis
// and model-based classification are then unavailable and classification
// falls back to the heuristic immediately.
func NewService(market *source.Chain, analyst *llm.Chain, store Store, opts ...ServiceOption) *Service {
	s := &Service{
		market:          market,
		analyst:         analyst,
		store:           store,
		classifyTimeout: DefaultClassifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the holdings store for CRUD handlers.
func (s *Service) Store() Store { return s.store }

// Composite fetches all four capabilities for one symbol concurrently and
// merges them. A capability whose chain produced nothing stays nil; the
// composite is still returned as long as any part arrived. The sentiment
// index is derived from whatever news came back.
func (s *Service) Composite(ctx context.Context, symbol string, crypto bool) (*models.Composite, error) {
	symbol = utils.NormalizeSymbol(symbol)

	comp := &models.Composite{
		Symbol:    symbol,
		Crypto:    crypto,
		FetchedAt: time.Now(),
	}

	var mu sync.Mutex
	var errs []error

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		snap, err := s.market.Snapshot(gctx, models.Request{Symbol: symbol, Kind: models.CapabilitySnapshot, Crypto: crypto})
		if err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("snapshot: %w", err))
			mu.Unlock()
			return nil // non-fatal
		}
		mu.Lock()
		comp.Snapshot = snap
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		to := time.Now()
		from := to.AddDate(0, 0, -compositeBarsDays)
		series, err := s.market.Bars(gctx, models.Request{Symbol: symbol, Kind: models.CapabilityBars, Crypto: crypto}, from, to, models.Interval1Day)
		if err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("bars: %w", err))
			mu.Unlock()
			return nil
		}
		mu.Lock()
		comp.Bars = series
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		news, err := s.market.News(gctx, models.Request{Symbol: symbol, Kind: models.CapabilityNews, Crypto: crypto}, compositeNewsLimit)
		if err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("news: %w", err))
			mu.Unlock()
			return nil
		}
		mu.Lock()
		comp.News = news
		if len(news.Items) > 0 {
			idx := sentiment.Index(news.Items)
			comp.Sentiment = &idx
		}
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		fund, err := s.market.Fundamentals(gctx, models.Request{Symbol: symbol, Kind: models.CapabilityFundamentals, Crypto: crypto})
		if err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("fundamentals: %w", err))
			mu.Unlock()
			return nil
		}
		mu.Lock()
		comp.Fundamentals = fund
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return comp, err
	}

	if comp.Snapshot == nil && comp.Bars == nil && comp.News == nil && comp.Fundamentals == nil {
		return nil, fmt.Errorf("no data for %s: %w", symbol, errors.Join(errs...))
	}

	if len(errs) > 0 {
		log.Debug().Str("symbol", symbol).Errs("parts", errs).Msg("composite assembled with missing parts")
	}

	return comp, nil
}

// Analyze builds the composite for a symbol, serializes it into a bounded
// prompt, and streams narrative analysis from the model chain. The returned
// channel follows the chain's contract: fragments, then one completion or
// error chunk.
func (s *Service) Analyze(ctx context.Context, symbol string, crypto bool) (<-chan llm.Chunk, error) {
	if s.analyst == nil {
		return nil, llm.ErrNoProviders
	}

	comp, err := s.Composite(ctx, symbol, crypto)
	if err != nil {
		return nil, err
	}

	pattern := s.ClassifyPattern(ctx, comp.Bars)
	prompt := AnalysisPrompt(comp, pattern)

	return s.analyst.Stream(ctx, prompt)
}
