package models

import "time"

// Symbol types as reported by the vendor directory
const (
	SymbolTypeStock = "stock"
	SymbolTypeETF   = "etf"
	SymbolTypeFund  = "fund"
)

// Symbol represents a tracked ticker symbol
type Symbol struct {
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	Exchange    string    `json:"exchange,omitempty"`
	Type        string    `json:"type"`
	Sector      string    `json:"sector,omitempty"`
	Industry    string    `json:"industry,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Active      bool      `json:"active"`
	LastUpdated time.Time `json:"last_updated"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExcludedSymbol represents a ticker that discovery must never re-add,
// typically because the vendor reports it as delisted or untradable
type ExcludedSymbol struct {
	Symbol     string    `json:"symbol"`
	Reason     string    `json:"reason"`
	ExcludedAt time.Time `json:"excluded_at"`
}
