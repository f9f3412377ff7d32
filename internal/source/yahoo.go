package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kestrelworks/folio/pkg/models"
	"github.com/kestrelworks/folio/pkg/utils"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo implements the Source interface against the Yahoo Finance API.
// It serves every capability except news and accepts both equities and
// crypto pairs; a pair like "BTC/USD" is collapsed to Yahoo's "BTCUSD=X"
// currency form.
type Yahoo struct {
	baseURL string
	limiter *rate.Limiter
}

// YahooOption configures the Yahoo source.
type YahooOption func(*Yahoo)

// WithYahooBaseURL overrides the API base URL.
func WithYahooBaseURL(url string) YahooOption {
	return func(y *Yahoo) {
		y.baseURL = strings.TrimRight(url, "/")
	}
}

// NewYahoo creates a Yahoo Finance source.
func NewYahoo(opts ...YahooOption) *Yahoo {
	y := &Yahoo{
		baseURL: defaultYahooBaseURL,
		limiter: rate.NewLimiter(rate.Limit(5), 5), // 5 req/s
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Name returns the provider name used in provenance.
func (y *Yahoo) Name() string { return "yahoo" }

// SupportsCrypto reports crypto pair support.
func (y *Yahoo) SupportsCrypto() bool { return true }

// --- Yahoo Finance API types ---

type yqQuoteResponse struct {
	QuoteResponse struct {
		Result []yqQuoteResult `json:"result"`
		Error  *yqError        `json:"error"`
	} `json:"quoteResponse"`
}

type yqQuoteResult struct {
	Symbol                     string  `json:"symbol"`
	ShortName                  string  `json:"shortName"`
	FullExchangeName           string  `json:"fullExchangeName"`
	Currency                   string  `json:"currency"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketOpen          float64 `json:"regularMarketOpen"`
	RegularMarketDayHigh       float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow        float64 `json:"regularMarketDayLow"`
	RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
	RegularMarketVolume        int64   `json:"regularMarketVolume"`
	RegularMarketTime          int64   `json:"regularMarketTime"`
}

type yqChartResponse struct {
	Chart struct {
		Result []yqChartResult `json:"result"`
		Error  *yqError        `json:"error"`
	} `json:"chart"`
}

type yqChartResult struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Currency string `json:"currency"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []yqOHLCV `json:"quote"`
	} `json:"indicators"`
}

type yqOHLCV struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

type yqFinancialsResponse struct {
	QuoteSummary struct {
		Result []yqFinancialsResult `json:"result"`
		Error  *yqError             `json:"error"`
	} `json:"quoteSummary"`
}

type yqFinancialsResult struct {
	SummaryDetail struct {
		DividendYield yqValue `json:"dividendYield"`
		DividendRate  yqValue `json:"dividendRate"`
	} `json:"summaryDetail"`
	IncomeStatementHistory struct {
		Statements []map[string]yqValue `json:"incomeStatementHistory"`
	} `json:"incomeStatementHistory"`
	BalanceSheetHistory struct {
		Statements []map[string]yqValue `json:"balanceSheetStatements"`
	} `json:"balanceSheetHistory"`
	CashflowStatementHistory struct {
		Statements []map[string]yqValue `json:"cashflowStatements"`
	} `json:"cashflowStatementHistory"`
}

type yqValue struct {
	Raw float64 `json:"raw"`
	Fmt string  `json:"fmt"`
}

type yqError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// --- Source interface ---

// Snapshot returns the latest quote from the Yahoo v7 quote API.
func (y *Yahoo) Snapshot(ctx context.Context, symbol string) (*models.Snapshot, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	upstream := y.symbolFor(symbol)
	url := fmt.Sprintf("%s/v7/finance/quote?symbols=%s", y.baseURL, upstream)
	body, _, err := doGet(ctx, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("yahoo quote %s: %w", upstream, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp yqQuoteResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse yahoo quote: %w", err)
	}

	if resp.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("yahoo API error: %s", resp.QuoteResponse.Error.Description)
	}
	if len(resp.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	r := resp.QuoteResponse.Result[0]
	ts := time.Unix(r.RegularMarketTime, 0)
	if r.RegularMarketTime == 0 {
		ts = time.Now()
	}

	crypto := isPair(symbol)
	return &models.Snapshot{
		Symbol:    symbol,
		Price:     r.RegularMarketPrice,
		Open:      r.RegularMarketOpen,
		High:      r.RegularMarketDayHigh,
		Low:       r.RegularMarketDayLow,
		Volume:    r.RegularMarketVolume,
		PrevClose: r.RegularMarketPreviousClose,
		Exchange:  r.FullExchangeName,
		Currency:  r.Currency,
		Timestamp: ts,
		Provenance: models.Provenance{
			Provider: y.Name(),
			// Crypto trades around the clock; equity quotes go stale
			// outside the session.
			Delayed: !crypto && !utils.IsMarketOpenAt(time.Now()),
		},
	}, nil
}

// Bars returns historical candles from the Yahoo v8 chart API.
func (y *Yahoo) Bars(ctx context.Context, symbol string, from, to time.Time, interval models.Interval) ([]models.Bar, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	upstream := y.symbolFor(symbol)
	url := fmt.Sprintf(
		"%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=%s",
		y.baseURL, upstream, from.Unix(), to.Unix(), yahooInterval(interval),
	)

	body, _, err := doGet(ctx, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", upstream, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp yqChartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse yahoo chart: %w", err)
	}

	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error: %s", resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	return parseYahooBars(resp.Chart.Result[0]), nil
}

// News is not supported by the Yahoo source; the feeds source covers it.
func (y *Yahoo) News(_ context.Context, _ string, _ int) ([]models.NewsItem, error) {
	return nil, ErrNotSupported
}

// Fundamentals returns dividend data and recent filings from the Yahoo v10
// quoteSummary API.
func (y *Yahoo) Fundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	if isPair(symbol) {
		return nil, ErrNotSupported
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	modules := "summaryDetail,incomeStatementHistory,balanceSheetHistory,cashflowStatementHistory"
	upstream := y.symbolFor(symbol)
	url := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=%s", y.baseURL, upstream, modules)

	body, _, err := doGet(ctx, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("yahoo fundamentals %s: %w", upstream, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp yqFinancialsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse yahoo fundamentals: %w", err)
	}

	if resp.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("yahoo API error: %s", resp.QuoteSummary.Error.Description)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	r := resp.QuoteSummary.Result[0]
	fund := &models.Fundamentals{
		Symbol:         symbol,
		DividendYield:  r.SummaryDetail.DividendYield.Raw * 100, // ratio to percent
		DividendAnnual: r.SummaryDetail.DividendRate.Raw,
		Filings:        parseYahooFilings(r),
		Provenance:     models.Provenance{Provider: y.Name()},
	}
	return fund, nil
}

// --- Internal helpers ---

// symbolFor maps a request symbol to Yahoo's upstream form. Crypto pairs
// are collapsed and tagged with the "=X" currency suffix.
func (y *Yahoo) symbolFor(symbol string) string {
	if isPair(symbol) {
		return utils.StripPair(symbol) + "=X"
	}
	return symbol
}

// isPair reports whether the symbol is written as a crypto pair.
func isPair(symbol string) bool {
	return strings.Contains(symbol, utils.PairSeparator)
}

func parseYahooBars(result yqChartResult) []models.Bar {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}

	q := result.Indicators.Quote[0]
	bars := make([]models.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		b := models.Bar{
			Timestamp: time.Unix(ts, 0),
		}
		if i < len(q.Open) && q.Open[i] != nil {
			b.Open = *q.Open[i]
		}
		if i < len(q.High) && q.High[i] != nil {
			b.High = *q.High[i]
		}
		if i < len(q.Low) && q.Low[i] != nil {
			b.Low = *q.Low[i]
		}
		if i < len(q.Close) && q.Close[i] != nil {
			b.Close = *q.Close[i]
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			b.Volume = *q.Volume[i]
		}
		bars = append(bars, b)
	}
	return bars
}

// parseYahooFilings zips the per-statement histories into filings. Yahoo
// returns statements newest first, which is the order filings keep.
func parseYahooFilings(r yqFinancialsResult) []models.Filing {
	income := r.IncomeStatementHistory.Statements
	balance := r.BalanceSheetHistory.Statements
	cashflow := r.CashflowStatementHistory.Statements

	n := len(income)
	if len(balance) > n {
		n = len(balance)
	}
	if len(cashflow) > n {
		n = len(cashflow)
	}

	filings := make([]models.Filing, 0, n)
	for i := 0; i < n; i++ {
		var f models.Filing
		f.PeriodType = "annual"

		if i < len(income) {
			stmt := income[i]
			f.Period = stmt["endDate"].Fmt
			f.Income = models.IncomeStatement{
				Revenue:          stmt["totalRevenue"].Raw,
				CostOfRevenue:    stmt["costOfRevenue"].Raw,
				GrossProfit:      stmt["grossProfit"].Raw,
				OperatingExpense: stmt["totalOperatingExpenses"].Raw,
				OperatingIncome:  stmt["operatingIncome"].Raw,
				PretaxIncome:     stmt["incomeBeforeTax"].Raw,
				TaxProvision:     stmt["incomeTaxExpense"].Raw,
				NetIncome:        stmt["netIncome"].Raw,
			}
			// OCI line items are not exposed; net income stands in.
			f.Comprehensive = models.ComprehensiveIncome{
				NetIncome: stmt["netIncome"].Raw,
				Total:     stmt["netIncome"].Raw,
			}
		}
		if i < len(balance) {
			stmt := balance[i]
			if f.Period == "" {
				f.Period = stmt["endDate"].Fmt
			}
			f.Balance = models.BalanceSheet{
				TotalAssets:        stmt["totalAssets"].Raw,
				CurrentAssets:      stmt["totalCurrentAssets"].Raw,
				CashEquivalents:    stmt["cash"].Raw,
				TotalLiabilities:   stmt["totalLiab"].Raw,
				CurrentLiabilities: stmt["totalCurrentLiabilities"].Raw,
				LongTermDebt:       stmt["longTermDebt"].Raw,
				ShareholderEquity:  stmt["totalStockholderEquity"].Raw,
			}
		}
		if i < len(cashflow) {
			stmt := cashflow[i]
			if f.Period == "" {
				f.Period = stmt["endDate"].Fmt
			}
			operating := stmt["totalCashFromOperatingActivities"].Raw
			capex := stmt["capitalExpenditures"].Raw
			f.CashFlow = models.CashFlowStatement{
				Operating:    operating,
				Investing:    stmt["totalCashflowsFromInvestingActivities"].Raw,
				Financing:    stmt["totalCashFromFinancingActivities"].Raw,
				CapEx:        capex,
				FreeCashFlow: operating + capex, // capex is reported negative
			}
		}

		filings = append(filings, f)
	}
	return filings
}

func yahooInterval(interval models.Interval) string {
	switch interval {
	case models.Interval1Min:
		return "1m"
	case models.Interval5Min:
		return "5m"
	case models.Interval15Min:
		return "15m"
	case models.Interval1Hour:
		return "1h"
	case models.Interval1Day:
		return "1d"
	case models.Interval1Week:
		return "1wk"
	case models.Interval1Mon:
		return "1mo"
	default:
		return "1d"
	}
}
