package portfolio

import (
	"fmt"
	"strings"
	"time"

	"github.com/kestrelworks/folio/internal/llm"
	"github.com/kestrelworks/folio/pkg/models"
	"github.com/kestrelworks/folio/pkg/utils"
)

// PromptBudget caps the serialized composite handed to the model chain,
// in characters. Sections are ordered most-important first, so a hard cut
// trims news and fundamentals before price data.
const PromptBudget = 6000

const truncationMark = "\n[context truncated]"

const analystSystemPrompt = `You are an equity analyst writing for the owner of a personal portfolio.
Be concise and concrete. Ground every claim in the market data provided;
where a section reads N/A, say the data is unavailable instead of guessing.
Never give personalized financial advice or price targets.`

// AnalysisPrompt serializes a composite into the narrative-analysis prompt.
// Absent capabilities render as explicit N/A sections so the model never
// mistakes missing data for neutral data.
func AnalysisPrompt(comp *models.Composite, pattern string) llm.Prompt {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Write a short analysis of %s covering valuation, recent price action, news tone, and risks.\n\n", comp.Symbol)
	sb.WriteString(SerializeComposite(comp, pattern))

	return llm.Prompt{
		System: analystSystemPrompt,
		User:   truncateRunes(sb.String(), PromptBudget),
	}
}

// SerializeComposite renders a composite as a plain-text block.
func SerializeComposite(comp *models.Composite, pattern string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Symbol: %s\n", comp.Symbol)
	if comp.Crypto {
		sb.WriteString("Asset class: crypto\n")
	}
	fmt.Fprintf(&sb, "Fetched: %s\n", comp.FetchedAt.UTC().Format(time.RFC3339))

	writeSnapshotSection(&sb, comp.Snapshot)
	writeBarsSection(&sb, comp.Bars, pattern)
	writeSentimentSection(&sb, comp.Sentiment)
	writeNewsSection(&sb, comp.News)
	writeFundamentalsSection(&sb, comp.Fundamentals)

	return sb.String()
}

func writeSnapshotSection(sb *strings.Builder, snap *models.Snapshot) {
	sb.WriteString("\n-- Snapshot --\n")
	if snap == nil {
		sb.WriteString("N/A\n")
		return
	}

	fmt.Fprintf(sb, "Price: %s (%s vs previous close)\n", utils.FormatUSD(snap.Price), utils.FormatPct(snap.ChangePct()))
	fmt.Fprintf(sb, "Day range: %s - %s  Open: %s\n", utils.FormatUSD(snap.Low), utils.FormatUSD(snap.High), utils.FormatUSD(snap.Open))
	fmt.Fprintf(sb, "Volume: %s\n", utils.FormatVolume(snap.Volume))
	fmt.Fprintf(sb, "Source: %s%s\n", snap.Provenance.Provider, delayedMark(snap.Provenance))
}

func writeBarsSection(sb *strings.Builder, series *models.BarSeries, pattern string) {
	sb.WriteString("\n-- Price action (90d daily) --\n")
	if series.Len() == 0 {
		sb.WriteString("N/A\n")
		return
	}

	bars := series.Bars
	first := bars[0].Close
	last := bars[len(bars)-1].Close
	high, low := 0.0, 0.0
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low > 0 && (low == 0 || b.Low < low) {
			low = b.Low
		}
	}

	fmt.Fprintf(sb, "Bars: %d\n", len(bars))
	changePct := 0.0
	if first != 0 {
		changePct = (last - first) / first * 100
	}
	fmt.Fprintf(sb, "First close: %s  Last close: %s (%s over window)\n", utils.FormatUSD(first), utils.FormatUSD(last), utils.FormatPct(changePct))
	fmt.Fprintf(sb, "Window high: %s  Window low: %s\n", utils.FormatUSD(high), utils.FormatUSD(low))
	if pattern != "" {
		fmt.Fprintf(sb, "Pattern: %s\n", pattern)
	}
	fmt.Fprintf(sb, "Source: %s%s\n", series.Provenance.Provider, delayedMark(series.Provenance))
}

func writeSentimentSection(sb *strings.Builder, idx *models.SentimentIndex) {
	sb.WriteString("\n-- News sentiment --\n")
	if idx == nil {
		sb.WriteString("N/A\n")
		return
	}
	fmt.Fprintf(sb, "%s (score %+.2f, confidence %.2f, %d articles)\n", idx.Label, idx.Score, idx.Confidence, idx.Articles)
}

func writeNewsSection(sb *strings.Builder, news *models.NewsSet) {
	sb.WriteString("\n-- Headlines --\n")
	if news == nil || len(news.Items) == 0 {
		sb.WriteString("N/A\n")
		return
	}
	for _, item := range news.Items {
		fmt.Fprintf(sb, "- [%s] %s (%s)\n", item.Source, item.Headline, ageString(item.PublishedAt))
	}
}

func writeFundamentalsSection(sb *strings.Builder, fund *models.Fundamentals) {
	sb.WriteString("\n-- Fundamentals --\n")
	if fund.Empty() {
		sb.WriteString("N/A\n")
		return
	}

	if fund.DividendYield > 0 || fund.DividendAnnual > 0 {
		fmt.Fprintf(sb, "Dividend yield: %.2f%%  Annual dividend: %s\n", fund.DividendYield, utils.FormatUSD(fund.DividendAnnual))
	} else {
		sb.WriteString("Dividend: none\n")
	}

	if len(fund.Filings) > 0 {
		f := fund.Filings[0] // newest first
		fmt.Fprintf(sb, "Latest filing (%s, %s): revenue %s, net income %s, operating cash flow %s, free cash flow %s\n",
			f.Period, f.PeriodType,
			utils.FormatUSDCompact(f.Income.Revenue),
			utils.FormatUSDCompact(f.Income.NetIncome),
			utils.FormatUSDCompact(f.CashFlow.Operating),
			utils.FormatUSDCompact(f.CashFlow.FreeCashFlow))
		fmt.Fprintf(sb, "Balance: assets %s, liabilities %s, equity %s\n",
			utils.FormatUSDCompact(f.Balance.TotalAssets),
			utils.FormatUSDCompact(f.Balance.TotalLiabilities),
			utils.FormatUSDCompact(f.Balance.ShareholderEquity))
	}
	fmt.Fprintf(sb, "Source: %s%s\n", fund.Provenance.Provider, delayedMark(fund.Provenance))
}

func delayedMark(p models.Provenance) string {
	if p.Delayed {
		return " (delayed)"
	}
	return ""
}

func ageString(t time.Time) string {
	if t.IsZero() {
		return "undated"
	}
	age := time.Since(t)
	switch {
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

// truncateRunes cuts s at max runes, appending a marker when anything was
// dropped.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	keep := max - len(truncationMark)
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + truncationMark
}
