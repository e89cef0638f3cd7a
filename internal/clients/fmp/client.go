// Package fmp implements a client for the Financial Modeling Prep API,
// the pipeline's primary source for symbol, price, dividend, and ETF
// holding data.
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/dividendscout/pipeline/internal/models"
)

const defaultBaseURL = "https://financialmodelingprep.com/api/v3"

// MaxBatchQuoteSize is the largest number of symbols FMP accepts in a
// single quote request
const MaxBatchQuoteSize = 100

// Client is a rate-limited Financial Modeling Prep API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewClient creates a new FMP client. requestsPerSec caps the sustained
// call rate across all endpoints.
func NewClient(apiKey string, requestsPerSec float64) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSec), 5),
	}
}

// SetBaseURL overrides the API base URL, used in tests
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

type stockListEntry struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	Exchange          string  `json:"exchange"`
	ExchangeShortName string  `json:"exchangeShortName"`
	Type              string  `json:"type"`
}

type batchQuote struct {
	Symbol    string  `json:"symbol"`
	Open      float64 `json:"open"`
	DayHigh   float64 `json:"dayHigh"`
	DayLow    float64 `json:"dayLow"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

type historicalPrices struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	} `json:"historical"`
}

type dividendCalendarEntry struct {
	Symbol          string  `json:"symbol"`
	Date            string  `json:"date"`
	Dividend        float64 `json:"dividend"`
	RecordDate      string  `json:"recordDate"`
	PaymentDate     string  `json:"paymentDate"`
	DeclarationDate string  `json:"declarationDate"`
}

type historicalDividends struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date            string  `json:"date"`
		Dividend        float64 `json:"dividend"`
		AdjDividend     float64 `json:"adjDividend"`
		RecordDate      string  `json:"recordDate"`
		PaymentDate     string  `json:"paymentDate"`
		DeclarationDate string  `json:"declarationDate"`
	} `json:"historical"`
}

type etfHolder struct {
	Asset            string  `json:"asset"`
	Name             string  `json:"name"`
	SharesNumber     int64   `json:"sharesNumber"`
	WeightPercentage float64 `json:"weightPercentage"`
	MarketValue      float64 `json:"marketValue"`
	Updated          string  `json:"updated"`
}

// GetSymbolDirectory fetches the full tradable symbol list
func (c *Client) GetSymbolDirectory(ctx context.Context) ([]*models.Symbol, error) {
	var entries []stockListEntry
	if err := c.get(ctx, "/stock/list", nil, &entries); err != nil {
		return nil, fmt.Errorf("fmp stock list: %w", err)
	}

	symbols := make([]*models.Symbol, 0, len(entries))
	for _, e := range entries {
		if e.Symbol == "" {
			continue
		}
		symbols = append(symbols, &models.Symbol{
			Symbol:   e.Symbol,
			Name:     e.Name,
			Exchange: e.ExchangeShortName,
			Type:     normalizeType(e.Type),
			Active:   true,
		})
	}
	return symbols, nil
}

// GetBatchQuotes fetches end-of-day quotes for up to MaxBatchQuoteSize
// symbols in a single call. Symbols the vendor does not know are simply
// absent from the response.
func (c *Client) GetBatchQuotes(ctx context.Context, symbols []string) ([]*models.PriceBar, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	if len(symbols) > MaxBatchQuoteSize {
		return nil, fmt.Errorf("fmp batch quote: %d symbols exceeds maximum of %d", len(symbols), MaxBatchQuoteSize)
	}

	var quotes []batchQuote
	path := "/quote/" + url.PathEscape(strings.Join(symbols, ","))
	if err := c.get(ctx, path, nil, &quotes); err != nil {
		return nil, fmt.Errorf("fmp batch quote: %w", err)
	}

	bars := make([]*models.PriceBar, 0, len(quotes))
	for _, q := range quotes {
		date := time.Unix(q.Timestamp, 0).UTC().Truncate(24 * time.Hour)
		if q.Timestamp == 0 {
			date = time.Now().UTC().Truncate(24 * time.Hour)
		}
		bars = append(bars, &models.PriceBar{
			Symbol: q.Symbol,
			Date:   date,
			Open:   decimal.NewFromFloat(q.Open),
			High:   decimal.NewFromFloat(q.DayHigh),
			Low:    decimal.NewFromFloat(q.DayLow),
			Close:  decimal.NewFromFloat(q.Price),
			Volume: q.Volume,
		})
	}
	return bars, nil
}

// GetHistoricalPrices fetches daily bars for one symbol within a date range
func (c *Client) GetHistoricalPrices(ctx context.Context, symbol string, from, to time.Time) ([]*models.PriceBar, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))

	var resp historicalPrices
	path := "/historical-price-full/" + url.PathEscape(symbol)
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("fmp historical prices %s: %w", symbol, err)
	}

	bars := make([]*models.PriceBar, 0, len(resp.Historical))
	for _, h := range resp.Historical {
		date, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			continue
		}
		bars = append(bars, &models.PriceBar{
			Symbol: resp.Symbol,
			Date:   date,
			Open:   decimal.NewFromFloat(h.Open),
			High:   decimal.NewFromFloat(h.High),
			Low:    decimal.NewFromFloat(h.Low),
			Close:  decimal.NewFromFloat(h.Close),
			Volume: h.Volume,
		})
	}
	return bars, nil
}

// GetDividendCalendar fetches announced dividends with ex-dates inside
// the given window
func (c *Client) GetDividendCalendar(ctx context.Context, from, to time.Time) ([]*models.FutureDividend, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))

	var entries []dividendCalendarEntry
	if err := c.get(ctx, "/stock_dividend_calendar", params, &entries); err != nil {
		return nil, fmt.Errorf("fmp dividend calendar: %w", err)
	}

	dividends := make([]*models.FutureDividend, 0, len(entries))
	for _, e := range entries {
		exDate, err := time.Parse("2006-01-02", e.Date)
		if err != nil {
			continue
		}
		d := &models.FutureDividend{
			Symbol: e.Symbol,
			ExDate: exDate,
			Amount: decimal.NewFromFloat(e.Dividend),
		}
		if payDate, err := time.Parse("2006-01-02", e.PaymentDate); err == nil {
			d.PaymentDate = &payDate
		}
		dividends = append(dividends, d)
	}
	return dividends, nil
}

// GetHistoricalDividends fetches all past dividend payments for one symbol
func (c *Client) GetHistoricalDividends(ctx context.Context, symbol string) ([]*models.DividendEvent, error) {
	var resp historicalDividends
	path := "/historical-price-full/stock_dividend/" + url.PathEscape(symbol)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fmp historical dividends %s: %w", symbol, err)
	}

	dividends := make([]*models.DividendEvent, 0, len(resp.Historical))
	for _, h := range resp.Historical {
		exDate, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			continue
		}
		d := &models.DividendEvent{
			Symbol:         resp.Symbol,
			ExDate:         exDate,
			Amount:         decimal.NewFromFloat(h.Dividend),
			AdjustedAmount: decimal.NewFromFloat(h.AdjDividend),
		}
		if recordDate, err := time.Parse("2006-01-02", h.RecordDate); err == nil {
			d.RecordDate = &recordDate
		}
		if payDate, err := time.Parse("2006-01-02", h.PaymentDate); err == nil {
			d.PaymentDate = &payDate
		}
		if declDate, err := time.Parse("2006-01-02", h.DeclarationDate); err == nil {
			d.DeclarationDate = &declDate
		}
		dividends = append(dividends, d)
	}
	return dividends, nil
}

// GetETFHoldings fetches the current holdings of an ETF
func (c *Client) GetETFHoldings(ctx context.Context, fundSymbol string) ([]*models.ETFHolding, error) {
	var holders []etfHolder
	path := "/etf-holder/" + url.PathEscape(fundSymbol)
	if err := c.get(ctx, path, nil, &holders); err != nil {
		return nil, fmt.Errorf("fmp etf holdings %s: %w", fundSymbol, err)
	}

	holdings := make([]*models.ETFHolding, 0, len(holders))
	for _, h := range holders {
		if h.Asset == "" {
			continue
		}
		asOf := time.Now().UTC().Truncate(24 * time.Hour)
		if updated, err := time.Parse("2006-01-02", h.Updated); err == nil {
			asOf = updated
		}
		holdings = append(holdings, &models.ETFHolding{
			FundSymbol:  fundSymbol,
			Symbol:      h.Asset,
			Name:        h.Name,
			Weight:      decimal.NewFromFloat(h.WeightPercentage),
			Shares:      h.SharesNumber,
			MarketValue: decimal.NewFromFloat(h.MarketValue),
			AsOfDate:    asOf,
		})
	}
	return holdings, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func normalizeType(vendorType string) string {
	switch strings.ToLower(vendorType) {
	case "etf":
		return models.SymbolTypeETF
	case "fund", "trust":
		return models.SymbolTypeFund
	default:
		return models.SymbolTypeStock
	}
}
