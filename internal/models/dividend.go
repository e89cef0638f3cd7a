package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dividend payment frequencies
const (
	FrequencyMonthly    = "monthly"
	FrequencyQuarterly  = "quarterly"
	FrequencySemiAnnual = "semi-annual"
	FrequencyAnnual     = "annual"
	FrequencyIrregular  = "irregular"
)

// DividendEvent represents a historical dividend payment for a symbol,
// unique per (symbol, ex_date)
type DividendEvent struct {
	ID              int             `json:"id"`
	Symbol          string          `json:"symbol"`
	ExDate          time.Time       `json:"ex_date"`
	RecordDate      *time.Time      `json:"record_date,omitempty"`
	PaymentDate     *time.Time      `json:"payment_date,omitempty"`
	DeclarationDate *time.Time      `json:"declaration_date,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	AdjustedAmount  decimal.Decimal `json:"adjusted_amount,omitempty"`
	Frequency       string          `json:"frequency,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// FutureDividend represents an announced upcoming dividend from the
// vendor calendar. Rows whose ex-date has passed are promoted into the
// historical table by the dividends pipeline.
type FutureDividend struct {
	ID          int             `json:"id"`
	Symbol      string          `json:"symbol"`
	ExDate      time.Time       `json:"ex_date"`
	PaymentDate *time.Time      `json:"payment_date,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Frequency   string          `json:"frequency,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
