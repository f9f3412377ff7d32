package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/kestrelworks/folio/pkg/models"
	"github.com/kestrelworks/folio/pkg/utils"
)

// Feed describes one RSS feed. URLs may carry a {symbol} placeholder that
// is replaced with the query form of the requested symbol; crypto pairs
// have their separator percent-encoded before substitution.
type Feed struct {
	Name string
	URL  string
}

// DefaultFeeds lists the configured finance news feeds, in priority order.
// Symbol-scoped feeds come first so keyword filtering only has to carry
// the general ones.
var DefaultFeeds = []Feed{
	{
		Name: "Yahoo Finance",
		URL:  "https://feeds.finance.yahoo.com/rss/2.0/headline?s={symbol}&region=US&lang=en-US",
	},
	{
		Name: "Google News",
		URL:  "https://news.google.com/rss/search?q={symbol}+stock&hl=en-US&gl=US&ceid=US:en",
	},
	{
		Name: "CNBC Markets",
		URL:  "https://www.cnbc.com/id/100003114/device/rss/rss.html",
	},
	{
		Name: "MarketWatch",
		URL:  "https://feeds.content.dowjones.io/public/rss/mw_topstories",
	},
}

// symbolAliases maps symbols to company keywords used for filtering general
// feeds and tagging related symbols.
var symbolAliases = map[string][]string{
	"AAPL":    {"apple"},
	"MSFT":    {"microsoft"},
	"GOOGL":   {"google", "alphabet"},
	"AMZN":    {"amazon"},
	"TSLA":    {"tesla"},
	"META":    {"meta platforms", "facebook"},
	"NVDA":    {"nvidia"},
	"NFLX":    {"netflix"},
	"JPM":     {"jpmorgan", "jp morgan"},
	"BRK.A":   {"berkshire"},
	"BRK.B":   {"berkshire"},
	"XOM":     {"exxon"},
	"BTC/USD": {"bitcoin"},
	"ETH/USD": {"ethereum"},
	"SOL/USD": {"solana"},
}

// Feeds implements news fetching over RSS. Only the news capability is
// supported; the chain skips this source for everything else.
type Feeds struct {
	feeds   []Feed
	parser  *gofeed.Parser
	limiter *rate.Limiter
}

// FeedsOption configures the Feeds source.
type FeedsOption func(*Feeds)

// WithFeeds replaces the default feed list.
func WithFeeds(feeds []Feed) FeedsOption {
	return func(f *Feeds) {
		f.feeds = feeds
	}
}

// NewFeeds creates a news source with the default feeds.
func NewFeeds(opts ...FeedsOption) *Feeds {
	f := &Feeds{
		feeds:   DefaultFeeds,
		parser:  gofeed.NewParser(),
		limiter: rate.NewLimiter(rate.Limit(2), 2), // conservative: 2 req/s
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the provider name used in provenance.
func (f *Feeds) Name() string { return "feeds" }

// SupportsCrypto reports crypto pair support.
func (f *Feeds) SupportsCrypto() bool { return true }

// News fetches and merges articles from every configured feed, keeping the
// ones related to the symbol, newest first.
func (f *Feeds) News(ctx context.Context, symbol string, limit int) ([]models.NewsItem, error) {
	keywords := symbolKeywords(symbol)

	var items []models.NewsItem
	seen := make(map[string]bool)
	var lastErr error

	for _, feed := range f.feeds {
		fetched, err := f.fetchFeed(ctx, feed, symbol)
		if err != nil {
			// Non-critical: skip failed feeds.
			lastErr = err
			continue
		}

		scoped := strings.Contains(feed.URL, "{symbol}")
		for _, item := range fetched {
			if seen[item.URL] {
				continue
			}
			// Symbol-scoped feeds already filtered upstream; general
			// feeds are matched against the symbol keywords.
			if !scoped && !matchesAny(item.Headline+" "+item.Summary, keywords) {
				continue
			}
			seen[item.URL] = true
			item.Related = relatedSymbols(item.Headline+" "+item.Summary, symbol)
			items = append(items, item)
		}
	}

	if len(items) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all feeds failed: %w", lastErr)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Snapshot is not supported by the feeds source.
func (f *Feeds) Snapshot(_ context.Context, _ string) (*models.Snapshot, error) {
	return nil, ErrNotSupported
}

// Bars is not supported by the feeds source.
func (f *Feeds) Bars(_ context.Context, _ string, _, _ time.Time, _ models.Interval) ([]models.Bar, error) {
	return nil, ErrNotSupported
}

// Fundamentals is not supported by the feeds source.
func (f *Feeds) Fundamentals(_ context.Context, _ string) (*models.Fundamentals, error) {
	return nil, ErrNotSupported
}

// --- Internal helpers ---

// fetchFeed parses one RSS feed and returns its articles.
func (f *Feeds) fetchFeed(ctx context.Context, feed Feed, symbol string) ([]models.NewsItem, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	parsed, err := f.parser.ParseURLWithContext(feedURL(feed.URL, symbol), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feed.Name, err)
	}

	items := make([]models.NewsItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		n := models.NewsItem{
			Headline: strings.TrimSpace(item.Title),
			URL:      item.Link,
			Source:   feed.Name,
			Summary:  cleanHTML(item.Description),
		}
		if item.PublishedParsed != nil {
			n.PublishedAt = *item.PublishedParsed
		}
		items = append(items, n)
	}
	return items, nil
}

// feedURL substitutes the symbol into a feed URL template. Crypto pairs
// need their separator percent-encoded inside the query string.
func feedURL(tmpl, symbol string) string {
	q := symbol
	if isPair(symbol) {
		q = utils.EscapePair(symbol)
	}
	return strings.ReplaceAll(tmpl, "{symbol}", q)
}

// cleanHTML strips HTML tags from a string using goquery.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

// symbolKeywords returns search keywords for a symbol, like
// "AAPL" → ["aapl", "apple"].
func symbolKeywords(symbol string) []string {
	keywords := []string{strings.ToLower(symbol)}
	if base, _ := utils.SplitPair(symbol); base != symbol {
		keywords = append(keywords, strings.ToLower(base))
	}
	for _, alias := range symbolAliases[symbol] {
		keywords = append(keywords, strings.ToLower(alias))
	}
	return keywords
}

// relatedSymbols scans known aliases in the text and returns the matched
// symbols, the requested one first.
func relatedSymbols(text, symbol string) []string {
	related := []string{symbol}
	lower := strings.ToLower(text)
	for sym, aliases := range symbolAliases {
		if sym == symbol {
			continue
		}
		for _, alias := range aliases {
			if strings.Contains(lower, alias) {
				related = append(related, sym)
				break
			}
		}
	}
	sort.Strings(related[1:])
	return related
}

// matchesAny checks if text contains any of the keywords (case-insensitive).
func matchesAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
