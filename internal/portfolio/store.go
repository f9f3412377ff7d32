package portfolio

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/folio/pkg/models"
	"github.com/kestrelworks/folio/pkg/utils"
)

// ErrHoldingNotFound is returned when no holding exists for a symbol.
var ErrHoldingNotFound = errors.New("portfolio: holding not found")

// Store is the holdings repository. Holdings are keyed by normalized
// symbol; Put upserts. The context parameter keeps the seam open for a
// persistent implementation.
type Store interface {
	List(ctx context.Context) ([]models.Holding, error)
	Get(ctx context.Context, symbol string) (*models.Holding, error)
	Put(ctx context.Context, holding models.Holding) (*models.Holding, error)
	Delete(ctx context.Context, symbol string) error
}

// MemoryStore keeps holdings in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	holdings map[string]models.Holding
}

// NewMemoryStore creates an empty in-memory holdings store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{holdings: make(map[string]models.Holding)}
}

// List returns all holdings sorted by symbol.
func (s *MemoryStore) List(_ context.Context) ([]models.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Holding, 0, len(s.holdings))
	for _, h := range s.holdings {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Get returns the holding for a symbol, or ErrHoldingNotFound.
func (s *MemoryStore) Get(_ context.Context, symbol string) (*models.Holding, error) {
	key := utils.NormalizeSymbol(symbol)

	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holdings[key]
	if !ok {
		return nil, ErrHoldingNotFound
	}
	return &h, nil
}

// Put upserts a holding. A new holding gets a generated id and AddedAt;
// an update keeps both from the existing record.
func (s *MemoryStore) Put(_ context.Context, holding models.Holding) (*models.Holding, error) {
	holding.Symbol = utils.NormalizeSymbol(holding.Symbol)
	if holding.Symbol == "" {
		return nil, errors.New("portfolio: holding symbol is required")
	}
	key := holding.Symbol

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.holdings[key]; ok {
		holding.ID = existing.ID
		holding.AddedAt = existing.AddedAt
	} else {
		holding.ID = uuid.NewString()
		holding.AddedAt = time.Now()
	}
	s.holdings[key] = holding
	return &holding, nil
}

// Delete removes the holding for a symbol, or returns ErrHoldingNotFound.
func (s *MemoryStore) Delete(_ context.Context, symbol string) error {
	key := utils.NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holdings[key]; !ok {
		return ErrHoldingNotFound
	}
	delete(s.holdings, key)
	return nil
}
