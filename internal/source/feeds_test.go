package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// ════════════════════════════════════════════════════════════════════
// feeds.go — RSS news adapter against mock feeds
// ════════════════════════════════════════════════════════════════════

func rssBody(items string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<rss version="2.0"><channel><title>Test</title>` + items + `</channel></rss>`
}

func TestFeedsScopedFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("s"); got != "AAPL" {
			t.Errorf("s = %q, want AAPL", got)
		}
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, rssBody(
			`<item><title>Markets rally into the close</title>`+
				`<link>https://example.com/a1</link>`+
				`<description>Stocks finished &lt;b&gt;higher&lt;/b&gt; on Monday.</description>`+
				`<pubDate>Mon, 24 Aug 2026 10:00:00 GMT</pubDate></item>`+
				`<item><title>Chipmakers slide on export rules</title>`+
				`<link>https://example.com/a2</link>`+
				`<pubDate>Fri, 21 Aug 2026 09:30:00 GMT</pubDate></item>`))
	}))
	defer server.Close()

	f := NewFeeds(WithFeeds([]Feed{{Name: "Test Wire", URL: server.URL + "/rss?s={symbol}"}}))
	items, err := f.News(context.Background(), "AAPL", 10)
	if err != nil {
		t.Fatal(err)
	}

	// A symbol-scoped feed is already filtered upstream, so unrelated
	// headlines are kept.
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	first := items[0]
	if first.Headline != "Markets rally into the close" {
		t.Errorf("headline = %q", first.Headline)
	}
	if first.Source != "Test Wire" || first.URL != "https://example.com/a1" {
		t.Errorf("source / url mismatch: %+v", first)
	}
	if first.Summary != "Stocks finished higher on Monday." {
		t.Errorf("summary not stripped of HTML: %q", first.Summary)
	}
	want := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(want) {
		t.Errorf("published = %v, want %v", first.PublishedAt, want)
	}
	if len(first.Related) == 0 || first.Related[0] != "AAPL" {
		t.Errorf("related = %v, want AAPL first", first.Related)
	}
}

func TestFeedsGeneralFeedFiltersByKeyword(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, rssBody(
			`<item><title>Apple beats expectations on services growth</title>`+
				`<link>https://example.com/g1</link>`+
				`<pubDate>Mon, 24 Aug 2026 10:00:00 GMT</pubDate></item>`+
				`<item><title>Oil prices slide as supply expands</title>`+
				`<link>https://example.com/g2</link>`+
				`<pubDate>Mon, 24 Aug 2026 11:00:00 GMT</pubDate></item>`))
	}))
	defer server.Close()

	// No {symbol} placeholder: a general feed, matched by keyword.
	f := NewFeeds(WithFeeds([]Feed{{Name: "General", URL: server.URL + "/topstories"}}))
	items, err := f.News(context.Background(), "AAPL", 10)
	if err != nil {
		t.Fatal(err)
	}

	if len(items) != 1 {
		t.Fatalf("expected 1 matching item, got %d: %+v", len(items), items)
	}
	if !strings.Contains(items[0].Headline, "Apple") {
		t.Errorf("kept the wrong item: %q", items[0].Headline)
	}
}

func TestFeedsDeduplicatesAcrossFeeds(t *testing.T) {
	shared := `<item><title>Fed minutes released</title>` +
		`<link>https://example.com/shared</link>` +
		`<pubDate>Mon, 24 Aug 2026 10:00:00 GMT</pubDate></item>`

	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, rssBody(shared+
			`<item><title>Tech leads the rebound</title>`+
			`<link>https://example.com/f1</link>`+
			`<pubDate>Mon, 24 Aug 2026 09:00:00 GMT</pubDate></item>`))
	}))
	defer first.Close()

	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, rssBody(shared+
			`<item><title>Bond yields ease</title>`+
			`<link>https://example.com/f2</link>`+
			`<pubDate>Mon, 24 Aug 2026 08:00:00 GMT</pubDate></item>`))
	}))
	defer second.Close()

	f := NewFeeds(WithFeeds([]Feed{
		{Name: "Wire A", URL: first.URL + "/rss?s={symbol}"},
		{Name: "Wire B", URL: second.URL + "/rss?s={symbol}"},
	}))
	items, err := f.News(context.Background(), "AAPL", 10)
	if err != nil {
		t.Fatal(err)
	}

	if len(items) != 3 {
		t.Fatalf("expected 3 unique items, got %d", len(items))
	}
	seen := make(map[string]bool)
	for _, item := range items {
		if seen[item.URL] {
			t.Fatalf("duplicate url survived: %s", item.URL)
		}
		seen[item.URL] = true
	}
}

func TestFeedsNewestFirstAndLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, rssBody(
			`<item><title>older</title><link>https://example.com/1</link>`+
				`<pubDate>Mon, 24 Aug 2026 10:00:00 GMT</pubDate></item>`+
				`<item><title>oldest</title><link>https://example.com/2</link>`+
				`<pubDate>Fri, 21 Aug 2026 09:30:00 GMT</pubDate></item>`+
				`<item><title>newest</title><link>https://example.com/3</link>`+
				`<pubDate>Mon, 24 Aug 2026 12:00:00 GMT</pubDate></item>`))
	}))
	defer server.Close()

	f := NewFeeds(WithFeeds([]Feed{{Name: "Test", URL: server.URL + "/rss?s={symbol}"}}))
	items, err := f.News(context.Background(), "AAPL", 2)
	if err != nil {
		t.Fatal(err)
	}

	if len(items) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(items))
	}
	if items[0].Headline != "newest" || items[1].Headline != "older" {
		t.Errorf("wrong order: %q, %q", items[0].Headline, items[1].Headline)
	}
}

func TestFeedsPairEscapedInURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "BTC%2FUSD") {
			t.Errorf("raw query = %q, want escaped pair", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, rssBody(
			`<item><title>Bitcoin steadies above support</title>`+
				`<link>https://example.com/b1</link>`+
				`<pubDate>Mon, 24 Aug 2026 10:00:00 GMT</pubDate></item>`))
	}))
	defer server.Close()

	f := NewFeeds(WithFeeds([]Feed{{Name: "Crypto Wire", URL: server.URL + "/rss?s={symbol}"}}))
	items, err := f.News(context.Background(), "BTC/USD", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestFeedsAllFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := NewFeeds(WithFeeds([]Feed{{Name: "Broken", URL: server.URL + "/rss?s={symbol}"}}))
	_, err := f.News(context.Background(), "AAPL", 10)
	if err == nil || !strings.Contains(err.Error(), "all feeds failed") {
		t.Fatalf("error = %v, want all feeds failed", err)
	}
}

func TestFeedsNoMatchesReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, rssBody(
			`<item><title>Commodity roundup</title>`+
				`<link>https://example.com/c1</link>`+
				`<pubDate>Mon, 24 Aug 2026 10:00:00 GMT</pubDate></item>`))
	}))
	defer server.Close()

	f := NewFeeds(WithFeeds([]Feed{{Name: "General", URL: server.URL + "/topstories"}}))
	items, err := f.News(context.Background(), "AAPL", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no matches, got %d", len(items))
	}
}

func TestFeedsCapabilitySentinels(t *testing.T) {
	f := NewFeeds()
	if _, err := f.Snapshot(context.Background(), "AAPL"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Snapshot error = %v, want ErrNotSupported", err)
	}
	if _, err := f.Bars(context.Background(), "AAPL", time.Now().AddDate(0, 0, -5), time.Now(), "1d"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Bars error = %v, want ErrNotSupported", err)
	}
	if _, err := f.Fundamentals(context.Background(), "AAPL"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Fundamentals error = %v, want ErrNotSupported", err)
	}
}

func TestFeedURL(t *testing.T) {
	tests := []struct {
		tmpl, symbol, want string
	}{
		{"https://x.test/rss?s={symbol}", "AAPL", "https://x.test/rss?s=AAPL"},
		{"https://x.test/rss?s={symbol}", "BTC/USD", "https://x.test/rss?s=BTC%2FUSD"},
		{"https://x.test/topstories", "AAPL", "https://x.test/topstories"},
	}
	for _, tt := range tests {
		if got := feedURL(tt.tmpl, tt.symbol); got != tt.want {
			t.Errorf("feedURL(%q, %q) = %q, want %q", tt.tmpl, tt.symbol, got, tt.want)
		}
	}
}

func TestCleanHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"<p>Stocks <b>rose</b> today.</p>", "Stocks rose today."},
		{"  <div>trimmed</div>  ", "trimmed"},
	}
	for _, tt := range tests {
		if got := cleanHTML(tt.in); got != tt.want {
			t.Errorf("cleanHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSymbolKeywords(t *testing.T) {
	kw := symbolKeywords("AAPL")
	if len(kw) != 2 || kw[0] != "aapl" || kw[1] != "apple" {
		t.Errorf("keywords = %v", kw)
	}

	kw = symbolKeywords("BTC/USD")
	want := []string{"btc/usd", "btc", "bitcoin"}
	if len(kw) != len(want) {
		t.Fatalf("keywords = %v, want %v", kw, want)
	}
	for i := range want {
		if kw[i] != want[i] {
			t.Errorf("keywords[%d] = %q, want %q", i, kw[i], want[i])
		}
	}
}

func TestRelatedSymbols(t *testing.T) {
	got := relatedSymbols("Tesla and Nvidia rally after earnings", "AAPL")
	want := []string{"AAPL", "NVDA", "TSLA"}
	if len(got) != len(want) {
		t.Fatalf("related = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("related[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
