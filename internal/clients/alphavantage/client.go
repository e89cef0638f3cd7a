// Package alphavantage implements a client for the Alpha Vantage API.
// The free tier allows only 25 requests per day, so the client tracks a
// hard daily budget in memory and refuses calls once it is spent;
// discovery uses it opportunistically to enrich symbol profiles.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dividendscout/pipeline/internal/models"
)

const defaultBaseURL = "https://www.alphavantage.co"

// ErrBudgetExhausted is returned once the daily request budget is spent
type ErrBudgetExhausted struct {
	Budget int
}

func (e ErrBudgetExhausted) Error() string {
	return fmt.Sprintf("alphavantage: daily request budget of %d exhausted", e.Budget)
}

// Client is a budget-limited Alpha Vantage API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	mu        sync.Mutex
	budget    int
	used      int
	resetDate time.Time
}

// NewClient creates a new Alpha Vantage client with the given daily
// request budget
func NewClient(apiKey string, dailyBudget int) *Client {
	if dailyBudget <= 0 {
		dailyBudget = 25
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		budget:     dailyBudget,
		resetDate:  time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// SetBaseURL overrides the API base URL, used in tests
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// RemainingBudget returns the number of requests left today
func (c *Client) RemainingBudget() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeReset()
	return c.budget - c.used
}

type overviewResponse struct {
	Symbol           string `json:"Symbol"`
	Name             string `json:"Name"`
	Exchange         string `json:"Exchange"`
	Currency         string `json:"Currency"`
	Sector           string `json:"Sector"`
	Industry         string `json:"Industry"`
	DividendPerShare string `json:"DividendPerShare"`
	ExDividendDate   string `json:"ExDividendDate"`
}

// GetCompanyOverview fetches the company profile for a symbol. Sector
// and industry enrich the symbol record during discovery.
func (c *Client) GetCompanyOverview(ctx context.Context, symbol string) (*models.Symbol, error) {
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)

	var resp overviewResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("alphavantage overview %s: %w", symbol, err)
	}
	if resp.Symbol == "" {
		return nil, fmt.Errorf("alphavantage: no overview data for %s", symbol)
	}

	return &models.Symbol{
		Symbol:   resp.Symbol,
		Name:     resp.Name,
		Exchange: resp.Exchange,
		Currency: resp.Currency,
		Sector:   resp.Sector,
		Industry: resp.Industry,
		Active:   true,
	}, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out interface{}) error {
	if err := c.spend(); err != nil {
		return err
	}

	params.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+params.Encode(), nil)
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

// spend consumes one request from the daily budget
func (c *Client) spend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeReset()
	if c.used >= c.budget {
		return ErrBudgetExhausted{Budget: c.budget}
	}
	c.used++
	return nil
}

// maybeReset clears the counter when the UTC day rolls over.
// Caller must hold c.mu.
func (c *Client) maybeReset() {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if today.After(c.resetDate) {
		c.resetDate = today
		c.used = 0
	}
}
