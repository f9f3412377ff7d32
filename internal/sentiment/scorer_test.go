package sentiment

import (
	"testing"
	"time"

	"github.com/kestrelworks/folio/pkg/models"
)

func TestScoreHeadlineBullish(t *testing.T) {
	score, conf := ScoreHeadline("Shares rally 5% on strong growth and positive results")
	if score <= 0 {
		t.Errorf("expected positive score for bullish headline, got %.4f", score)
	}
	if conf <= 0 {
		t.Errorf("expected positive confidence, got %.4f", conf)
	}
}

func TestScoreHeadlineBearish(t *testing.T) {
	score, conf := ScoreHeadline("Market crash: stocks plunge amid fraud investigation concerns")
	if score >= 0 {
		t.Errorf("expected negative score for bearish headline, got %.4f", score)
	}
	if conf <= 0 {
		t.Errorf("expected positive confidence, got %.4f", conf)
	}
}

func TestScoreHeadlineNeutral(t *testing.T) {
	score, conf := ScoreHeadline("Company announces new office location in Austin")
	if score != 0 {
		t.Errorf("expected zero score for neutral headline, got %.4f", score)
	}
	if conf > 0.2 {
		t.Errorf("expected low confidence for neutral, got %.4f", conf)
	}
}

func TestScoreItemUsesSummary(t *testing.T) {
	item := models.NewsItem{
		Headline: "Quarterly results released",
		Summary:  "Widening loss and weak demand trigger analyst downgrade",
	}
	score, _ := ScoreItem(item)
	if score >= 0 {
		t.Errorf("expected summary to drive score negative, got %.4f", score)
	}
}

func TestIndexBullishCoverage(t *testing.T) {
	now := time.Now()
	items := []models.NewsItem{
		{Headline: "Stock surges to record high on earnings beat", PublishedAt: now},
		{Headline: "Analysts upgrade on strong growth outlook", PublishedAt: now.Add(-6 * time.Hour)},
		{Headline: "Breakout continues as investors stay bullish", PublishedAt: now.Add(-12 * time.Hour)},
	}

	idx := Index(items)
	if idx.Score <= 0.3 {
		t.Errorf("expected strongly positive index, got %.4f", idx.Score)
	}
	if idx.Label != "Bullish" {
		t.Errorf("expected Bullish, got %s", idx.Label)
	}
	if idx.Articles != 3 {
		t.Errorf("expected 3 articles, got %d", idx.Articles)
	}
	if idx.Confidence <= 0 {
		t.Errorf("expected positive confidence, got %.4f", idx.Confidence)
	}
}

func TestIndexBearishCoverage(t *testing.T) {
	now := time.Now()
	items := []models.NewsItem{
		{Headline: "Shares tumble after bankruptcy warning", PublishedAt: now},
		{Headline: "Downgrade follows weak quarter and widening loss", PublishedAt: now.Add(-3 * time.Hour)},
	}

	idx := Index(items)
	if idx.Score >= -0.3 {
		t.Errorf("expected strongly negative index, got %.4f", idx.Score)
	}
	if idx.Label != "Bearish" {
		t.Errorf("expected Bearish, got %s", idx.Label)
	}
}

func TestIndexRecentCoverageDominates(t *testing.T) {
	// A fresh bullish story must outweigh a day-old bearish one of equal
	// keyword strength.
	now := time.Now()
	items := []models.NewsItem{
		{Headline: "Shares surge on bullish rally", PublishedAt: now},
		{Headline: "Shares plunge in bearish selloff", PublishedAt: now.Add(-48 * time.Hour)},
	}

	idx := Index(items)
	if idx.Score <= 0 {
		t.Errorf("expected recent bullish story to dominate, got %.4f", idx.Score)
	}
}

func TestIndexNoSignal(t *testing.T) {
	items := []models.NewsItem{
		{Headline: "Company schedules annual shareholder meeting", PublishedAt: time.Now()},
	}

	idx := Index(items)
	if idx.Score != 0 {
		t.Errorf("expected zero score, got %.4f", idx.Score)
	}
	if idx.Label != "Neutral" {
		t.Errorf("expected Neutral, got %s", idx.Label)
	}
}

func TestIndexEmpty(t *testing.T) {
	idx := Index(nil)
	if idx.Label != "Neutral" {
		t.Errorf("expected Neutral, got %s", idx.Label)
	}
	if idx.Articles != 0 {
		t.Errorf("expected 0 articles, got %d", idx.Articles)
	}
}
