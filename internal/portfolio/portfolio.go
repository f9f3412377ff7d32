package portfolio

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelworks/folio/pkg/models"
)

var hundred = decimal.NewFromInt(100)

// Summary values every holding at its live snapshot price and aggregates.
// Holdings whose snapshot chain produced nothing keep their cost figures,
// carry Priced=false, and are listed under Unpriced; the totals cover priced
// positions only, so TotalValue, TotalCost, and GainLoss stay mutually
// consistent.
func (s *Service) Summary(ctx context.Context) (*models.PortfolioSummary, error) {
	holdings, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.PortfolioSummary{
		Positions:   []models.Position{},
		GeneratedAt: time.Now(),
	}
	if len(holdings) == 0 {
		return summary, nil
	}

	positions := make([]models.Position, len(holdings))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range holdings {
		i, h := i, h // per-iteration copies; load-bearing while go.mod targets go 1.21
		g.Go(func() error {
			pos := models.Position{
				Symbol:    h.Symbol,
				Quantity:  h.Quantity,
				Sector:    h.Sector,
				Crypto:    h.Crypto,
				CostBasis: h.CostBasis(),
			}

			snap, err := s.market.Snapshot(gctx, models.Request{Symbol: h.Symbol, Kind: models.CapabilitySnapshot, Crypto: h.Crypto})
			if err != nil {
				log.Debug().Str("symbol", h.Symbol).Err(err).Msg("summary: no price for holding")
				positions[i] = pos
				return nil // non-fatal, position stays unpriced
			}

			pos.Priced = true
			pos.Price = snap.Price
			pos.Provenance = snap.Provenance
			pos.MarketValue = h.Quantity.Mul(decimal.NewFromFloat(snap.Price))
			pos.GainLoss = pos.MarketValue.Sub(pos.CostBasis)
			if pos.CostBasis.IsPositive() {
				pos.GainLossPct, _ = pos.GainLoss.Div(pos.CostBasis).Mul(hundred).Float64()
			}

			positions[i] = pos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	totalValue := decimal.Zero
	totalCost := decimal.Zero
	for _, pos := range positions {
		if !pos.Priced {
			summary.Unpriced = append(summary.Unpriced, pos.Symbol)
			continue
		}
		totalValue = totalValue.Add(pos.MarketValue)
		totalCost = totalCost.Add(pos.CostBasis)
	}

	summary.TotalValue = totalValue
	summary.TotalCost = totalCost
	summary.GainLoss = totalValue.Sub(totalCost)
	if totalCost.IsPositive() {
		summary.GainLossPct, _ = summary.GainLoss.Div(totalCost).Mul(hundred).Float64()
	}

	// Weights and sector concentration over priced market value.
	sectorWeights := make(map[string]float64)
	for i := range positions {
		pos := &positions[i]
		if !pos.Priced || !totalValue.IsPositive() {
			continue
		}
		pos.Weight, _ = pos.MarketValue.Div(totalValue).Mul(hundred).Float64()

		sector := pos.Sector
		if sector == "" {
			sector = "Unclassified"
		}
		sectorWeights[sector] += pos.Weight
	}
	if len(sectorWeights) > 0 {
		summary.SectorWeights = sectorWeights
		for sector, weight := range sectorWeights {
			if weight > summary.TopSectorPct {
				summary.TopSector = sector
				summary.TopSectorPct = weight
			}
		}
	}

	summary.Positions = positions
	return summary, nil
}
