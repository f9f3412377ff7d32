package portfolio

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kestrelworks/folio/internal/llm"
	"github.com/kestrelworks/folio/pkg/models"
)

// Pattern labels for recent price action.
const (
	PatternUptrend   = "uptrend"
	PatternDowntrend = "downtrend"
	PatternSideways  = "sideways"
	PatternVolatile  = "volatile"
)

var patternLabels = []string{PatternUptrend, PatternDowntrend, PatternSideways, PatternVolatile}

const classifyCloses = 30

// ClassifyPattern labels recent bar action. The model chain is asked under
// a short ceiling; on timeout, error, or an answer outside the label set it
// falls back to a deterministic slope-and-range heuristic, so callers never
// block on classification.
func (s *Service) ClassifyPattern(ctx context.Context, series *models.BarSeries) string {
	if series.Len() < 2 {
		return PatternSideways
	}
	if s.analyst == nil {
		return heuristicPattern(series.Bars)
	}

	cctx, cancel := context.WithTimeout(ctx, s.classifyTimeout)
	defer cancel()

	ch, err := s.analyst.Stream(cctx, classifyPrompt(series))
	if err != nil {
		return heuristicPattern(series.Bars)
	}

	var sb strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			log.Debug().Err(chunk.Err).Msg("pattern classification fell back to heuristic")
			return heuristicPattern(series.Bars)
		}
		sb.WriteString(chunk.Text)
	}

	if label, ok := parsePatternLabel(sb.String()); ok {
		return label
	}
	return heuristicPattern(series.Bars)
}

func classifyPrompt(series *models.BarSeries) llm.Prompt {
	bars := series.Bars
	if len(bars) > classifyCloses {
		bars = bars[len(bars)-classifyCloses:]
	}

	closes := make([]string, len(bars))
	for i, b := range bars {
		closes[i] = fmt.Sprintf("%.2f", b.Close)
	}

	return llm.Prompt{
		System: "You label price action. Answer with exactly one word: uptrend, downtrend, sideways, or volatile.",
		User:   fmt.Sprintf("Daily closes for %s, oldest first: %s", series.Symbol, strings.Join(closes, ", ")),
	}
}

// parsePatternLabel accepts an exact label or one embedded in a short
// answer ("The pattern is uptrend.").
func parsePatternLabel(answer string) (string, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(answer))
	cleaned = strings.Trim(cleaned, ".\"'")
	for _, label := range patternLabels {
		if cleaned == label || strings.Contains(cleaned, label) {
			return label, true
		}
	}
	return "", false
}

// heuristicPattern labels bars from net close change and window spread
// alone. Thresholds: a quarter-range spread with little net movement reads
// volatile; a five percent net move picks the trend direction.
func heuristicPattern(bars []models.Bar) string {
	if len(bars) < 2 {
		return PatternSideways
	}

	first := bars[0].Close
	last := bars[len(bars)-1].Close
	if first <= 0 {
		return PatternSideways
	}
	change := (last - first) / first

	high, low := barsHighLow(bars)
	spread := 0.0
	if low > 0 {
		spread = (high - low) / low
	}

	switch {
	case spread > 0.25 && math.Abs(change) < 0.08:
		return PatternVolatile
	case change >= 0.05:
		return PatternUptrend
	case change <= -0.05:
		return PatternDowntrend
	default:
		return PatternSideways
	}
}

// barsHighLow returns the highest high and lowest positive low in the
// window.
func barsHighLow(bars []models.Bar) (high, low float64) {
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low > 0 && (low == 0 || b.Low < low) {
			low = b.Low
		}
	}
	return high, low
}
