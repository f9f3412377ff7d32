// Package models defines the core data structures shared across folio.
package models

import "time"

// CapabilityKind identifies one of the market-data capabilities a provider
// chain can serve.
type CapabilityKind string

const (
	CapabilitySnapshot     CapabilityKind = "snapshot"
	CapabilityBars         CapabilityKind = "bars"
	CapabilityNews         CapabilityKind = "news"
	CapabilityFundamentals CapabilityKind = "fundamentals"
)

// Request describes a single capability lookup. A Request is a value type and
// is never mutated after construction; the suffix retry builds a new one.
type Request struct {
	Symbol string         `json:"symbol"`
	Kind   CapabilityKind `json:"kind"`
	Crypto bool           `json:"crypto"`
}

// WithSymbol returns a copy of the request targeting a different symbol.
func (r Request) WithSymbol(symbol string) Request {
	r.Symbol = symbol
	return r
}

// Provenance records which provider produced a result and whether the data
// should be treated as delayed.
type Provenance struct {
	Provider string `json:"provider"`
	Delayed  bool   `json:"delayed"`
}

// Snapshot represents the latest quote for a symbol.
type Snapshot struct {
	Symbol     string     `json:"symbol"`
	Price      float64    `json:"price"`
	Open       float64    `json:"open"`
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Volume     int64      `json:"volume"`
	PrevClose  float64    `json:"prev_close"`
	Exchange   string     `json:"exchange,omitempty"`
	Currency   string     `json:"currency,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Provenance Provenance `json:"provenance"`
}

// Change returns the absolute move from the previous close.
func (s *Snapshot) Change() float64 {
	if s.PrevClose == 0 {
		return 0
	}
	return s.Price - s.PrevClose
}

// ChangePct returns the percent move from the previous close.
func (s *Snapshot) ChangePct() float64 {
	if s.PrevClose == 0 {
		return 0
	}
	return (s.Price - s.PrevClose) / s.PrevClose * 100
}

// DayRange returns the session low and high.
func (s *Snapshot) DayRange() (low, high float64) {
	return s.Low, s.High
}

// Interval represents the bar width of a historical series.
type Interval string

const (
	Interval1Min  Interval = "1m"
	Interval5Min  Interval = "5m"
	Interval15Min Interval = "15m"
	Interval1Hour Interval = "1h"
	Interval1Day  Interval = "1d"
	Interval1Week Interval = "1w"
	Interval1Mon  Interval = "1M"
)

// Bar represents a single candlestick of price data.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// BarSeries holds historical bars for a symbol, ascending by timestamp.
type BarSeries struct {
	Symbol     string     `json:"symbol"`
	Interval   Interval   `json:"interval"`
	Bars       []Bar      `json:"bars"`
	Provenance Provenance `json:"provenance"`
}

// Len returns the number of bars in the series.
func (b *BarSeries) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Bars)
}

// NewsItem represents a single news article.
type NewsItem struct {
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary,omitempty"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Related     []string  `json:"related,omitempty"`
}

// NewsSet holds the articles a provider returned for a symbol.
type NewsSet struct {
	Symbol     string     `json:"symbol"`
	Items      []NewsItem `json:"items"`
	Provenance Provenance `json:"provenance"`
}

// IncomeStatement holds one fiscal period of income statement figures.
type IncomeStatement struct {
	Revenue          float64 `json:"revenue"`
	CostOfRevenue    float64 `json:"cost_of_revenue"`
	GrossProfit      float64 `json:"gross_profit"`
	OperatingExpense float64 `json:"operating_expense"`
	OperatingIncome  float64 `json:"operating_income"`
	PretaxIncome     float64 `json:"pretax_income"`
	TaxProvision     float64 `json:"tax_provision"`
	NetIncome        float64 `json:"net_income"`
	EPS              float64 `json:"eps,omitempty"`
}

// BalanceSheet holds one fiscal period of balance sheet figures.
type BalanceSheet struct {
	TotalAssets        float64 `json:"total_assets"`
	CurrentAssets      float64 `json:"current_assets"`
	CashEquivalents    float64 `json:"cash_equivalents"`
	TotalLiabilities   float64 `json:"total_liabilities"`
	CurrentLiabilities float64 `json:"current_liabilities"`
	LongTermDebt       float64 `json:"long_term_debt"`
	ShareholderEquity  float64 `json:"shareholder_equity"`
}

// CashFlowStatement holds one fiscal period of cash flow figures.
type CashFlowStatement struct {
	Operating    float64 `json:"operating"`
	Investing    float64 `json:"investing"`
	Financing    float64 `json:"financing"`
	CapEx        float64 `json:"capex"`
	FreeCashFlow float64 `json:"free_cash_flow"`
}

// ComprehensiveIncome holds one fiscal period of comprehensive income figures.
type ComprehensiveIncome struct {
	NetIncome          float64 `json:"net_income"`
	OtherComprehensive float64 `json:"other_comprehensive"`
	Total              float64 `json:"total"`
}

// Filing bundles the statements reported for one fiscal period.
type Filing struct {
	Period        string              `json:"period"`      // e.g., "2025-12-31"
	PeriodType    string              `json:"period_type"` // "annual" or "quarterly"
	Income        IncomeStatement     `json:"income"`
	Balance       BalanceSheet        `json:"balance"`
	CashFlow      CashFlowStatement   `json:"cash_flow"`
	Comprehensive ComprehensiveIncome `json:"comprehensive"`
}

// Fundamentals carries dividend data and recent filings for a symbol.
// Filings are ordered newest first.
type Fundamentals struct {
	Symbol         string     `json:"symbol"`
	DividendYield  float64    `json:"dividend_yield"`  // percent
	DividendAnnual float64    `json:"dividend_annual"` // per share, trailing twelve months
	Filings        []Filing   `json:"filings"`
	Provenance     Provenance `json:"provenance"`
}

// Empty reports whether the fundamentals carry no usable data at all.
func (f *Fundamentals) Empty() bool {
	if f == nil {
		return true
	}
	return f.DividendYield == 0 && f.DividendAnnual == 0 && len(f.Filings) == 0
}

// SentimentIndex summarizes news tone for a symbol on a [-1, 1] scale.
type SentimentIndex struct {
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Articles   int     `json:"articles"`
}

// Composite aggregates every capability for a single symbol. Parts whose
// chain produced nothing are nil; present parts keep their own provenance.
type Composite struct {
	Symbol       string          `json:"symbol"`
	Crypto       bool            `json:"crypto"`
	Snapshot     *Snapshot       `json:"snapshot"`
	Bars         *BarSeries      `json:"bars"`
	News         *NewsSet        `json:"news"`
	Fundamentals *Fundamentals   `json:"fundamentals"`
	Sentiment    *SentimentIndex `json:"sentiment,omitempty"`
	FetchedAt    time.Time       `json:"fetched_at"`
}
