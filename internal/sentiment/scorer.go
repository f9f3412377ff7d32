package sentiment

import (
	"math"
	"strings"
	"time"

	"github.com/kestrelworks/folio/pkg/models"
)

// ------------------------------------------------------------------
// Keyword-based sentiment scorer (offline, no model call needed).
// Narrative analysis is a separate concern; this index gives the
// composite a deterministic tone reading from headlines alone.
// ------------------------------------------------------------------

// bullish / bearish keyword dictionaries (lowercase).
var bullishWords = map[string]float64{
	"bullish": 0.7, "rally": 0.6, "surge": 0.7, "soar": 0.7,
	"jump": 0.5, "upbeat": 0.5, "positive": 0.4, "growth": 0.4,
	"upgrade": 0.6, "outperform": 0.6, "buy": 0.5, "strong": 0.4,
	"recovery": 0.5, "breakout": 0.6, "record high": 0.7,
	"all-time high": 0.7, "beat": 0.5, "exceeds": 0.5,
	"tops estimates": 0.6, "raises guidance": 0.6, "expansion": 0.4,
	"profit": 0.3, "dividend": 0.4, "buyback": 0.5,
}

var bearishWords = map[string]float64{
	"bearish": 0.7, "crash": 0.8, "plunge": 0.7, "tumble": 0.6,
	"slump": 0.6, "negative": 0.4, "downgrade": 0.6,
	"underperform": 0.6, "sell": 0.5, "weak": 0.4, "decline": 0.5,
	"loss": 0.4, "selloff": 0.7, "fall": 0.4, "correction": 0.5,
	"default": 0.7, "fraud": 0.8, "lawsuit": 0.5, "recall": 0.5,
	"investigation": 0.5, "layoff": 0.5, "bankruptcy": 0.8,
	"miss": 0.5, "cuts guidance": 0.6, "warning": 0.5, "concern": 0.3,
}

// ScoreHeadline returns a sentiment score for a single headline.
// Score ranges from -1.0 (very bearish) to +1.0 (very bullish).
func ScoreHeadline(headline string) (score float64, confidence float64) {
	lower := strings.ToLower(headline)

	bullScore := 0.0
	bearScore := 0.0
	matches := 0

	for word, weight := range bullishWords {
		if strings.Contains(lower, word) {
			bullScore += weight
			matches++
		}
	}

	for word, weight := range bearishWords {
		if strings.Contains(lower, word) {
			bearScore += weight
			matches++
		}
	}

	if matches == 0 {
		return 0, 0.1 // no signal
	}

	total := bullScore + bearScore
	if total == 0 {
		return 0, 0.1
	}

	// Net score normalized to -1..+1.
	score = (bullScore - bearScore) / total

	// Confidence based on number of keyword matches.
	confidence = math.Min(float64(matches)*0.15+0.2, 0.85)

	return score, confidence
}

// ScoreItem scores one news item using its headline and summary.
func ScoreItem(item models.NewsItem) (score float64, confidence float64) {
	text := item.Headline
	if item.Summary != "" {
		text += " " + item.Summary
	}
	return ScoreHeadline(text)
}

// Index computes a time-weighted sentiment index across a set of news
// items. The weight of each item halves every 24 hours, so stale
// coverage fades out of the aggregate.
func Index(items []models.NewsItem) models.SentimentIndex {
	if len(items) == 0 {
		return models.SentimentIndex{Label: "Neutral"}
	}

	now := time.Now()
	weightedSum := 0.0
	totalWeight := 0.0
	confSum := 0.0

	for _, item := range items {
		score, conf := ScoreItem(item)

		age := now.Sub(item.PublishedAt).Hours()
		if age < 0 {
			age = 0
		}
		timeWeight := math.Exp(-0.693 * age / 24) // ln(2) * t/24h
		w := timeWeight * conf

		weightedSum += score * w
		totalWeight += w
		confSum += conf
	}

	avgScore := 0.0
	if totalWeight > 0 {
		avgScore = weightedSum / totalWeight
	}

	avgConf := confSum / float64(len(items))

	label := "Neutral"
	switch {
	case avgScore > 0.3:
		label = "Bullish"
	case avgScore > 0.1:
		label = "Slightly Bullish"
	case avgScore < -0.3:
		label = "Bearish"
	case avgScore < -0.1:
		label = "Slightly Bearish"
	}

	return models.SentimentIndex{
		Score:      avgScore,
		Label:      label,
		Confidence: avgConf,
		Articles:   len(items),
	}
}
