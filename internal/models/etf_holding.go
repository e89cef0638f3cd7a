package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ETFHolding represents one position inside an ETF as of a snapshot date.
// Holdings are replaced wholesale per (fund, as_of_date) on each refresh.
type ETFHolding struct {
	ID          int             `json:"id"`
	FundSymbol  string          `json:"fund_symbol"`
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name,omitempty"`
	Weight      decimal.Decimal `json:"weight"`
	Shares      int64           `json:"shares,omitempty"`
	MarketValue decimal.Decimal `json:"market_value,omitempty"`
	AsOfDate    time.Time       `json:"as_of_date"`
	CreatedAt   time.Time       `json:"created_at"`
}
