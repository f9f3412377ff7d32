package portfolio

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kestrelworks/folio/internal/cache"
	"github.com/kestrelworks/folio/internal/llm"
	"github.com/kestrelworks/folio/internal/source"
	"github.com/kestrelworks/folio/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Shared stubs
// ════════════════════════════════════════════════════════════════════

// stubSource implements source.Source with per-capability func fields;
// a nil field means the capability is unsupported.
type stubSource struct {
	name     string
	snapshot func(symbol string) (*models.Snapshot, error)
	bars     func(symbol string) ([]models.Bar, error)
	news     func(symbol string) ([]models.NewsItem, error)
	fund     func(symbol string) (*models.Fundamentals, error)
}

func (s *stubSource) Name() string         { return s.name }
func (s *stubSource) SupportsCrypto() bool { return true }

func (s *stubSource) Snapshot(_ context.Context, symbol string) (*models.Snapshot, error) {
	if s.snapshot == nil {
		return nil, source.ErrNotSupported
	}
	return s.snapshot(symbol)
}

func (s *stubSource) Bars(_ context.Context, symbol string, _, _ time.Time, _ models.Interval) ([]models.Bar, error) {
	if s.bars == nil {
		return nil, source.ErrNotSupported
	}
	return s.bars(symbol)
}

func (s *stubSource) News(_ context.Context, symbol string, _ int) ([]models.NewsItem, error) {
	if s.news == nil {
		return nil, source.ErrNotSupported
	}
	return s.news(symbol)
}

func (s *stubSource) Fundamentals(_ context.Context, symbol string) (*models.Fundamentals, error) {
	if s.fund == nil {
		return nil, source.ErrNotSupported
	}
	return s.fund(symbol)
}

// stubModel implements llm.Provider, replaying fixed chunks and recording
// the prompt it was asked.
type stubModel struct {
	name      string
	model     string
	chunks    []llm.Chunk
	streamErr error
	lastUser  string
	lastSys   string
}

func (m *stubModel) Name() string  { return m.name }
func (m *stubModel) Model() string { return m.model }

func (m *stubModel) Stream(_ context.Context, prompt llm.Prompt) (<-chan llm.Chunk, error) {
	m.lastSys = prompt.System
	m.lastUser = prompt.User
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	ch := make(chan llm.Chunk, len(m.chunks)+1)
	for _, c := range m.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (m *stubModel) Ping(_ context.Context) error { return nil }

func makeBars(n int, start, step float64) []models.Bar {
	bars := make([]models.Bar, n)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := start + step*float64(i)
		bars[i] = models.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func testChain(t *testing.T, src source.Source) *source.Chain {
	t.Helper()
	store := cache.New(cache.DefaultTTLs(), 0)
	chains := map[models.CapabilityKind][]source.Source{
		models.CapabilitySnapshot:     {src},
		models.CapabilityBars:         {src},
		models.CapabilityNews:         {src},
		models.CapabilityFundamentals: {src},
	}
	return source.NewChain(store, chains)
}

func newTestService(t *testing.T, src source.Source, analyst *llm.Chain) *Service {
	t.Helper()
	return NewService(testChain(t, src), analyst, NewMemoryStore())
}

func mustPut(t *testing.T, s Store, h models.Holding) *models.Holding {
	t.Helper()
	stored, err := s.Put(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	return stored
}

// ════════════════════════════════════════════════════════════════════
// store.go — MemoryStore
// ════════════════════════════════════════════════════════════════════

func TestStorePutAssignsIdentity(t *testing.T) {
	s := NewMemoryStore()
	h := mustPut(t, s, models.Holding{
		Symbol:   "aapl",
		Quantity: decimal.NewFromInt(10),
		UnitCost: decimal.NewFromFloat(150.25),
	})

	if h.ID == "" {
		t.Error("expected generated id")
	}
	if h.AddedAt.IsZero() {
		t.Error("expected AddedAt to be set")
	}
	if h.Symbol != "AAPL" {
		t.Errorf("expected normalized symbol AAPL, got %s", h.Symbol)
	}
}

func TestStorePutUpdateKeepsIdentity(t *testing.T) {
	s := NewMemoryStore()
	first := mustPut(t, s, models.Holding{Symbol: "AAPL", Quantity: decimal.NewFromInt(10)})
	second := mustPut(t, s, models.Holding{Symbol: "AAPL", Quantity: decimal.NewFromInt(25)})

	if second.ID != first.ID {
		t.Errorf("update changed id: %s -> %s", first.ID, second.ID)
	}
	if !second.AddedAt.Equal(first.AddedAt) {
		t.Error("update changed AddedAt")
	}
	if !second.Quantity.Equal(decimal.NewFromInt(25)) {
		t.Errorf("quantity not updated: %s", second.Quantity)
	}

	all, _ := s.List(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected 1 holding after upsert, got %d", len(all))
	}
}

func TestStorePutRequiresSymbol(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Put(context.Background(), models.Holding{}); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestStoreGetNormalizesSymbol(t *testing.T) {
	s := NewMemoryStore()
	mustPut(t, s, models.Holding{Symbol: "BRK.A", Quantity: decimal.NewFromInt(1)})

	h, err := s.Get(context.Background(), " brk.a ")
	if err != nil {
		t.Fatal(err)
	}
	if h.Symbol != "BRK.A" {
		t.Errorf("unexpected symbol: %s", h.Symbol)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "TSLA"); !errors.Is(err, ErrHoldingNotFound) {
		t.Fatalf("error = %v, want ErrHoldingNotFound", err)
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	mustPut(t, s, models.Holding{Symbol: "AAPL", Quantity: decimal.NewFromInt(1)})

	if err := s.Delete(context.Background(), "aapl"); err != nil {
		t.Fatal(err)
	}

	all, _ := s.List(context.Background())
	if len(all) != 0 {
		t.Fatalf("expected empty store, got %d holdings", len(all))
	}

	if err := s.Delete(context.Background(), "AAPL"); !errors.Is(err, ErrHoldingNotFound) {
		t.Fatalf("error = %v, want ErrHoldingNotFound", err)
	}
}

func TestStoreListSorted(t *testing.T) {
	s := NewMemoryStore()
	for _, sym := range []string{"MSFT", "AAPL", "GOOG"} {
		mustPut(t, s, models.Holding{Symbol: sym, Quantity: decimal.NewFromInt(1)})
	}

	all, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"AAPL", "GOOG", "MSFT"}
	for i, h := range all {
		if h.Symbol != want[i] {
			t.Fatalf("list order %v, want %v", all, want)
		}
	}
}

// ════════════════════════════════════════════════════════════════════
// portfolio.go — Summary
// ════════════════════════════════════════════════════════════════════

func pricesSource(prices map[string]float64) *stubSource {
	return &stubSource{
		name: "pricer",
		snapshot: func(symbol string) (*models.Snapshot, error) {
			price, ok := prices[symbol]
			if !ok {
				return nil, source.ErrSymbolNotFound
			}
			return &models.Snapshot{Symbol: symbol, Price: price, PrevClose: price, Timestamp: time.Now()}, nil
		},
	}
}

func TestSummaryTotals(t *testing.T) {
	svc := newTestService(t, pricesSource(map[string]float64{"AAPL": 200, "MSFT": 400}), nil)
	mustPut(t, svc.Store(), models.Holding{Symbol: "AAPL", Quantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(150)})
	mustPut(t, svc.Store(), models.Holding{Symbol: "MSFT", Quantity: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(300)})

	sum, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if !sum.TotalValue.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("TotalValue = %s, want 4000", sum.TotalValue)
	}
	if !sum.TotalCost.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("TotalCost = %s, want 3000", sum.TotalCost)
	}
	if !sum.GainLoss.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("GainLoss = %s, want 1000", sum.GainLoss)
	}
	if math.Abs(sum.GainLossPct-33.3333) > 0.01 {
		t.Errorf("GainLossPct = %.4f, want ~33.33", sum.GainLossPct)
	}
	if len(sum.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(sum.Positions))
	}
	for _, pos := range sum.Positions {
		if math.Abs(pos.Weight-50) > 0.01 {
			t.Errorf("%s weight = %.4f, want 50", pos.Symbol, pos.Weight)
		}
		if !pos.Priced {
			t.Errorf("%s should be priced", pos.Symbol)
		}
	}
}

func TestSummaryUnpricedListed(t *testing.T) {
	svc := newTestService(t, pricesSource(map[string]float64{"AAPL": 200}), nil)
	mustPut(t, svc.Store(), models.Holding{Symbol: "AAPL", Quantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(150)})
	mustPut(t, svc.Store(), models.Holding{Symbol: "ZZZZ", Quantity: decimal.NewFromInt(3), UnitCost: decimal.NewFromInt(50)})

	sum, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(sum.Unpriced) != 1 || sum.Unpriced[0] != "ZZZZ" {
		t.Fatalf("Unpriced = %v, want [ZZZZ]", sum.Unpriced)
	}
	// Totals exclude the unpriced holding.
	if !sum.TotalValue.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("TotalValue = %s, want 2000", sum.TotalValue)
	}
	if !sum.TotalCost.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("TotalCost = %s, want 1500", sum.TotalCost)
	}

	for _, pos := range sum.Positions {
		if pos.Symbol != "ZZZZ" {
			continue
		}
		if pos.Priced {
			t.Error("ZZZZ should be unpriced")
		}
		if !pos.CostBasis.Equal(decimal.NewFromInt(150)) {
			t.Errorf("unpriced position lost cost basis: %s", pos.CostBasis)
		}
	}
}

func TestSummarySectorConcentration(t *testing.T) {
	svc := newTestService(t, pricesSource(map[string]float64{"AAPL": 100, "MSFT": 100, "XOM": 100}), nil)
	mustPut(t, svc.Store(), models.Holding{Symbol: "AAPL", Quantity: decimal.NewFromInt(1), Sector: "Technology"})
	mustPut(t, svc.Store(), models.Holding{Symbol: "MSFT", Quantity: decimal.NewFromInt(1), Sector: "Technology"})
	mustPut(t, svc.Store(), models.Holding{Symbol: "XOM", Quantity: decimal.NewFromInt(1), Sector: "Energy"})

	sum, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if sum.TopSector != "Technology" {
		t.Errorf("TopSector = %s, want Technology", sum.TopSector)
	}
	if math.Abs(sum.TopSectorPct-66.6666) > 0.01 {
		t.Errorf("TopSectorPct = %.4f, want ~66.67", sum.TopSectorPct)
	}
	if math.Abs(sum.SectorWeights["Energy"]-33.3333) > 0.01 {
		t.Errorf("Energy weight = %.4f, want ~33.33", sum.SectorWeights["Energy"])
	}
}

func TestSummaryEmptyPortfolio(t *testing.T) {
	svc := newTestService(t, pricesSource(nil), nil)

	sum, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !sum.TotalValue.IsZero() || len(sum.Positions) != 0 {
		t.Errorf("expected empty summary, got %+v", sum)
	}
	if sum.GeneratedAt.IsZero() {
		t.Error("expected GeneratedAt to be set")
	}
}
