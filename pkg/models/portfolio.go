package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding represents one position in the tracked portfolio. Quantities and
// costs use decimal arithmetic so valuation never accumulates float error.
type Holding struct {
	ID       string          `json:"id"`
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"` // average cost per unit, USD
	Sector   string          `json:"sector,omitempty"`
	Crypto   bool            `json:"crypto"`
	AddedAt  time.Time       `json:"added_at"`
}

// CostBasis returns quantity times average unit cost.
func (h *Holding) CostBasis() decimal.Decimal {
	return h.Quantity.Mul(h.UnitCost)
}

// Position is a holding enriched with live pricing. Priced is false when no
// chain produced a usable snapshot; such positions keep their cost figures
// and are listed under PortfolioSummary.Unpriced.
type Position struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	Sector      string          `json:"sector,omitempty"`
	Crypto      bool            `json:"crypto"`
	Price       float64         `json:"price"`
	MarketValue decimal.Decimal `json:"market_value"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	GainLoss    decimal.Decimal `json:"gain_loss"`
	GainLossPct float64         `json:"gain_loss_pct"`
	Weight      float64         `json:"weight"` // percent of total market value
	Priced      bool            `json:"priced"`
	Provenance  Provenance      `json:"provenance"`
}

// PortfolioSummary is the aggregate valuation of the portfolio. Totals
// cover priced positions only; holdings that could not be priced are
// named in Unpriced so nothing disappears silently.
type PortfolioSummary struct {
	TotalValue    decimal.Decimal    `json:"total_value"`
	TotalCost     decimal.Decimal    `json:"total_cost"`
	GainLoss      decimal.Decimal    `json:"gain_loss"`
	GainLossPct   float64            `json:"gain_loss_pct"`
	Positions     []Position         `json:"positions"`
	Unpriced      []string           `json:"unpriced,omitempty"`
	SectorWeights map[string]float64 `json:"sector_weights,omitempty"`
	TopSector     string             `json:"top_sector,omitempty"`
	TopSectorPct  float64            `json:"top_sector_pct,omitempty"`
	GeneratedAt   time.Time          `json:"generated_at"`
}
