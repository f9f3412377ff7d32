package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/kestrelworks/folio/pkg/models"
	"github.com/kestrelworks/folio/pkg/utils"
)

const defaultCoinGeckoBaseURL = "https://api.coingecko.com"

// coinIDs maps common ticker bases to CoinGecko coin ids.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"ADA":   "cardano",
	"XRP":   "ripple",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"LTC":   "litecoin",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"MATIC": "matic-network",
	"BNB":   "binancecoin",
}

// CoinGecko implements the Source interface for crypto pairs using the
// CoinGecko API. A pair like "BTC/USD" is split into a coin id and a quote
// currency; equities are not supported.
type CoinGecko struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// CoinGeckoOption configures the CoinGecko source.
type CoinGeckoOption func(*CoinGecko)

// WithCoinGeckoBaseURL overrides the API base URL.
func WithCoinGeckoBaseURL(url string) CoinGeckoOption {
	return func(c *CoinGecko) {
		c.client.SetBaseURL(strings.TrimRight(url, "/"))
	}
}

// NewCoinGecko creates a CoinGecko source.
func NewCoinGecko(opts ...CoinGeckoOption) *CoinGecko {
	client := resty.New().
		SetBaseURL(defaultCoinGeckoBaseURL).
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", DefaultUserAgent).
		SetHeader("Accept", "application/json")

	c := &CoinGecko{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(0.5), 1), // free tier: ~30 req/min
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name used in provenance.
func (c *CoinGecko) Name() string { return "coingecko" }

// SupportsCrypto reports crypto pair support.
func (c *CoinGecko) SupportsCrypto() bool { return true }

// Snapshot returns the latest price from the CoinGecko simple price API.
func (c *CoinGecko) Snapshot(ctx context.Context, symbol string) (*models.Snapshot, error) {
	id, vs, err := c.pairFor(symbol)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out map[string]map[string]float64
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":                     id,
			"vs_currencies":           vs,
			"include_24hr_vol":        "true",
			"include_24hr_change":     "true",
			"include_last_updated_at": "true",
		}).
		SetResult(&out).
		Get("/api/v3/simple/price")
	if err != nil {
		return nil, fmt.Errorf("coingecko price %s: %w", symbol, err)
	}
	if !resp.IsSuccess() {
		return nil, &ErrHTTP{StatusCode: resp.StatusCode(), Status: resp.Status(), Body: string(resp.Body())}
	}

	coin, ok := out[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	price := coin[vs]
	if price == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	snap := &models.Snapshot{
		Symbol:   symbol,
		Price:    price,
		Volume:   int64(coin[vs+"_24h_vol"]),
		Currency: strings.ToUpper(vs),
		Exchange: "CoinGecko",
		Provenance: models.Provenance{
			Provider: c.Name(),
		},
	}

	// Recover the previous close from the 24h change percentage.
	if change := coin[vs+"_24h_change"]; change != 0 && change > -100 {
		snap.PrevClose = price / (1 + change/100)
	}
	if updated := coin["last_updated_at"]; updated > 0 {
		snap.Timestamp = time.Unix(int64(updated), 0)
	} else {
		snap.Timestamp = time.Now()
	}

	return snap, nil
}

// Bars returns candles from the CoinGecko OHLC API. Granularity follows the
// requested window, so the interval argument only selects the window; the
// volume column is not available on this endpoint.
func (c *CoinGecko) Bars(ctx context.Context, symbol string, from, to time.Time, _ models.Interval) ([]models.Bar, error) {
	id, vs, err := c.pairFor(symbol)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out [][]float64
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"vs_currency": vs,
			"days":        fmt.Sprintf("%d", windowDays(from, to)),
		}).
		SetResult(&out).
		Get(fmt.Sprintf("/api/v3/coins/%s/ohlc", id))
	if err != nil {
		return nil, fmt.Errorf("coingecko ohlc %s: %w", symbol, err)
	}
	if !resp.IsSuccess() {
		return nil, &ErrHTTP{StatusCode: resp.StatusCode(), Status: resp.Status(), Body: string(resp.Body())}
	}

	bars := make([]models.Bar, 0, len(out))
	for _, row := range out {
		if len(row) < 5 {
			continue
		}
		ts := time.Unix(int64(row[0])/1000, 0)
		if ts.Before(from) || ts.After(to) {
			continue
		}
		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
		})
	}
	return bars, nil
}

// News is not supported by the CoinGecko source.
func (c *CoinGecko) News(_ context.Context, _ string, _ int) ([]models.NewsItem, error) {
	return nil, ErrNotSupported
}

// Fundamentals is not supported by the CoinGecko source.
func (c *CoinGecko) Fundamentals(_ context.Context, _ string) (*models.Fundamentals, error) {
	return nil, ErrNotSupported
}

// --- Internal helpers ---

// pairFor resolves a crypto pair into a CoinGecko coin id and quote
// currency. Unknown bases fall back to the lowercased base name, which
// matches CoinGecko ids for most major coins spelled out in full.
func (c *CoinGecko) pairFor(symbol string) (id, vs string, err error) {
	base, quote := utils.SplitPair(symbol)
	if base == "" {
		return "", "", fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	id, ok := coinIDs[base]
	if !ok {
		id = strings.ToLower(base)
	}

	vs = "usd"
	if quote != "" {
		vs = strings.ToLower(quote)
	}
	return id, vs, nil
}

// windowDays converts a date range to CoinGecko's days parameter, clamped
// to the values the free endpoint accepts.
func windowDays(from, to time.Time) int {
	days := int(to.Sub(from).Hours()/24) + 1
	for _, allowed := range []int{1, 7, 14, 30, 90, 180, 365} {
		if days <= allowed {
			return allowed
		}
	}
	return 365
}
