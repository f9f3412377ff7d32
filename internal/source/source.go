// Package source provides market data fetching from multiple providers.
// It defines a common Source interface, concrete adapters for Yahoo Finance,
// Stooq, CoinGecko, and RSS news feeds, and the fallback chain executor that
// tries adapters in priority order with a TTL cache in front.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kestrelworks/folio/pkg/models"
)

// Source defines the common interface that all market data providers implement.
// Each provider may support a subset of capabilities; unsupported methods
// return ErrNotSupported so the chain can skip to the next adapter.
type Source interface {
	// Name returns the public name of this provider, used in provenance.
	Name() string

	// Snapshot returns the latest quote for the given symbol.
	Snapshot(ctx context.Context, symbol string) (*models.Snapshot, error)

	// Bars returns historical candles for the given symbol and date range,
	// ascending by timestamp.
	Bars(ctx context.Context, symbol string, from, to time.Time, interval models.Interval) ([]models.Bar, error)

	// News returns recent articles related to the given symbol.
	News(ctx context.Context, symbol string, limit int) ([]models.NewsItem, error)

	// Fundamentals returns dividend data and recent filings for the symbol.
	Fundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error)

	// SupportsCrypto reports whether the provider can serve crypto pairs.
	SupportsCrypto() bool
}

// --- Sentinel errors ---

// ErrNotSupported is returned when a provider does not support a capability.
var ErrNotSupported = fmt.Errorf("capability not supported by this provider")

// ErrSymbolNotFound is returned when a symbol cannot be resolved.
var ErrSymbolNotFound = fmt.Errorf("symbol not found")

// ErrRateLimited is returned when a provider rate-limits the request.
var ErrRateLimited = fmt.Errorf("rate limited by provider")

// ErrNoData is returned by the chain when every provider failed to produce
// a usable result.
var ErrNoData = fmt.Errorf("no provider returned data")

// ErrHTTP wraps an HTTP error with status code.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// --- Shared HTTP client helpers ---

// DefaultUserAgent is the user agent string used for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// HTTPClient is a pre-configured HTTP client with reasonable timeouts.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

// doGet performs a GET request with the given URL and headers, returning the
// response body. The caller is responsible for closing the returned ReadCloser.
func doGet(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	// Set default headers.
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json, text/csv, text/html, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	// Override/add custom headers.
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP GET %s: %w", url, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, resp.StatusCode, &ErrHTTP{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	return resp.Body, resp.StatusCode, nil
}
