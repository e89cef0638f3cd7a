package database

import (
	"fmt"
	"time"

	"github.com/dividendscout/pipeline/internal/models"
)

// ReplaceETFHoldings atomically replaces all holdings for a fund with a
// fresh snapshot. Vendors publish full holding lists, not deltas, so a
// wholesale replace keeps the table consistent with the latest snapshot.
func (db *DB) ReplaceETFHoldings(fundSymbol string, holdings []*models.ETFHolding) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM raw_etf_holdings WHERE fund_symbol = $1`, fundSymbol)
	if err != nil {
		return fmt.Errorf("failed to delete holdings for %s: %w", fundSymbol, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO raw_etf_holdings (fund_symbol, symbol, name, weight, shares, market_value, as_of_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, h := range holdings {
		_, err := stmt.Exec(fundSymbol, h.Symbol, h.Name, h.Weight, h.Shares, h.MarketValue, h.AsOfDate, now)
		if err != nil {
			return fmt.Errorf("failed to insert holding %s for %s: %w", h.Symbol, fundSymbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetETFHoldings retrieves all holdings for a fund, heaviest weight first
func (db *DB) GetETFHoldings(fundSymbol string) ([]*models.ETFHolding, error) {
	query := `
		SELECT id, fund_symbol, symbol, name, weight, shares, market_value, as_of_date, created_at
		FROM raw_etf_holdings
		WHERE fund_symbol = $1
		ORDER BY weight DESC
	`
	rows, err := db.conn.Query(query, fundSymbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query etf holdings: %w", err)
	}
	defer rows.Close()

	var holdings []*models.ETFHolding
	for rows.Next() {
		var h models.ETFHolding
		err := rows.Scan(&h.ID, &h.FundSymbol, &h.Symbol, &h.Name, &h.Weight, &h.Shares, &h.MarketValue, &h.AsOfDate, &h.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan etf holding: %w", err)
		}
		holdings = append(holdings, &h)
	}
	return holdings, rows.Err()
}

// GetETFFunds retrieves the active tickers typed as ETFs
func (db *DB) GetETFFunds(limit int) ([]string, error) {
	query := `SELECT symbol FROM raw_stocks WHERE active = true AND type = $1 ORDER BY symbol`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := db.conn.Query(query, models.SymbolTypeETF)
	if err != nil {
		return nil, fmt.Errorf("failed to get etf funds: %w", err)
	}
	defer rows.Close()

	var funds []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan etf fund: %w", err)
		}
		funds = append(funds, s)
	}
	return funds, rows.Err()
}
