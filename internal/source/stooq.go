package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kestrelworks/folio/pkg/models"
)

const defaultStooqBaseURL = "https://stooq.com"

// Stooq implements the Source interface against the Stooq CSV endpoints.
// Stooq serves end-of-day data for equities only, so snapshots from it are
// always flagged delayed and crypto pairs are not supported.
type Stooq struct {
	baseURL string
	limiter *rate.Limiter
}

// StooqOption configures the Stooq source.
type StooqOption func(*Stooq)

// WithStooqBaseURL overrides the API base URL.
func WithStooqBaseURL(url string) StooqOption {
	return func(s *Stooq) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// NewStooq creates a Stooq source.
func NewStooq(opts ...StooqOption) *Stooq {
	s := &Stooq{
		baseURL: defaultStooqBaseURL,
		limiter: rate.NewLimiter(rate.Limit(2), 2), // conservative: 2 req/s
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider name used in provenance.
func (s *Stooq) Name() string { return "stooq" }

// SupportsCrypto reports crypto pair support.
func (s *Stooq) SupportsCrypto() bool { return false }

// Snapshot returns the latest end-of-day quote from the Stooq CSV quote
// endpoint.
func (s *Stooq) Snapshot(ctx context.Context, symbol string) (*models.Snapshot, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/q/l/?s=%s&f=sd2t2ohlcv&h&e=csv", s.baseURL, s.symbolFor(symbol))
	body, _, err := doGet(ctx, url, map[string]string{"Accept": "text/csv"})
	if err != nil {
		return nil, fmt.Errorf("stooq quote %s: %w", symbol, err)
	}
	defer body.Close()

	records, err := csv.NewReader(body).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse stooq quote: %w", err)
	}
	// Header row plus one data row.
	if len(records) < 2 || len(records[1]) < 8 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	row := records[1]
	closePrice, err := parseStooqFloat(row[6])
	if err != nil {
		// Unknown symbols come back with "N/D" fields.
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	open, _ := parseStooqFloat(row[3])
	high, _ := parseStooqFloat(row[4])
	low, _ := parseStooqFloat(row[5])
	volume, _ := parseStooqInt(row[7])

	ts := time.Now()
	if t, err := time.Parse("2006-01-02 15:04:05", row[1]+" "+row[2]); err == nil {
		ts = t
	}

	return &models.Snapshot{
		Symbol:    symbol,
		Price:     closePrice,
		Open:      open,
		High:      high,
		Low:       low,
		Volume:    volume,
		Timestamp: ts,
		Provenance: models.Provenance{
			Provider: s.Name(),
			Delayed:  true, // end-of-day feed
		},
	}, nil
}

// Bars returns historical daily candles from the Stooq CSV download
// endpoint. Intraday intervals are not available.
func (s *Stooq) Bars(ctx context.Context, symbol string, from, to time.Time, interval models.Interval) ([]models.Bar, error) {
	code, ok := stooqInterval(interval)
	if !ok {
		return nil, ErrNotSupported
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf(
		"%s/q/d/l/?s=%s&d1=%s&d2=%s&i=%s",
		s.baseURL, s.symbolFor(symbol), from.Format("20060102"), to.Format("20060102"), code,
	)
	body, _, err := doGet(ctx, url, map[string]string{"Accept": "text/csv"})
	if err != nil {
		return nil, fmt.Errorf("stooq history %s: %w", symbol, err)
	}
	defer body.Close()

	records, err := csv.NewReader(body).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse stooq history: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	// Date,Open,High,Low,Close,Volume — oldest first.
	bars := make([]models.Bar, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) < 5 {
			continue
		}
		ts, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			continue
		}
		b := models.Bar{Timestamp: ts}
		if b.Open, err = parseStooqFloat(row[1]); err != nil {
			continue
		}
		b.High, _ = parseStooqFloat(row[2])
		b.Low, _ = parseStooqFloat(row[3])
		b.Close, _ = parseStooqFloat(row[4])
		if len(row) > 5 {
			b.Volume, _ = parseStooqInt(row[5])
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// News is not supported by the Stooq source.
func (s *Stooq) News(_ context.Context, _ string, _ int) ([]models.NewsItem, error) {
	return nil, ErrNotSupported
}

// Fundamentals is not supported by the Stooq source.
func (s *Stooq) Fundamentals(_ context.Context, _ string) (*models.Fundamentals, error) {
	return nil, ErrNotSupported
}

// --- Internal helpers ---

// symbolFor maps a request symbol to Stooq's form: lowercase, class dots
// replaced with a dash, ".us" market suffix ("BRK.A" → "brk-a.us").
func (s *Stooq) symbolFor(symbol string) string {
	lower := strings.ToLower(symbol)
	lower = strings.ReplaceAll(lower, ".", "-")
	return lower + ".us"
}

func stooqInterval(interval models.Interval) (string, bool) {
	switch interval {
	case models.Interval1Day:
		return "d", true
	case models.Interval1Week:
		return "w", true
	case models.Interval1Mon:
		return "m", true
	default:
		return "", false
	}
}

// parseStooqFloat handles Stooq's "N/D" marker for missing values.
func parseStooqFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/D" {
		return 0, fmt.Errorf("no data")
	}
	return strconv.ParseFloat(s, 64)
}

func parseStooqInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/D" {
		return 0, fmt.Errorf("no data")
	}
	return strconv.ParseInt(s, 10, 64)
}
