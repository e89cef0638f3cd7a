package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dividendscout/pipeline/internal/models"
	"github.com/lib/pq"
)

// UpsertSymbol inserts or updates a symbol record keyed by ticker
func (db *DB) UpsertSymbol(s *models.Symbol) error {
	query := `
		INSERT INTO raw_stocks (symbol, name, exchange, type, sector, industry, currency, active, last_updated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			exchange = EXCLUDED.exchange,
			type = EXCLUDED.type,
			sector = EXCLUDED.sector,
			industry = EXCLUDED.industry,
			currency = EXCLUDED.currency,
			active = EXCLUDED.active
	`
	now := time.Now()
	if s.LastUpdated.IsZero() {
		s.LastUpdated = now
	}
	_, err := db.conn.Exec(query,
		s.Symbol, s.Name, s.Exchange, s.Type, s.Sector, s.Industry, s.Currency, s.Active, s.LastUpdated, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert symbol %s: %w", s.Symbol, err)
	}
	return nil
}

// UpsertSymbolBatch inserts or updates multiple symbols in one transaction
func (db *DB) UpsertSymbolBatch(symbols []*models.Symbol) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO raw_stocks (symbol, name, exchange, type, sector, industry, currency, active, last_updated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			exchange = EXCLUDED.exchange,
			type = EXCLUDED.type,
			sector = EXCLUDED.sector,
			industry = EXCLUDED.industry,
			currency = EXCLUDED.currency,
			active = EXCLUDED.active
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, s := range symbols {
		lastUpdated := s.LastUpdated
		if lastUpdated.IsZero() {
			lastUpdated = now
		}
		_, err := stmt.Exec(s.Symbol, s.Name, s.Exchange, s.Type, s.Sector, s.Industry, s.Currency, s.Active, lastUpdated, now)
		if err != nil {
			return fmt.Errorf("failed to upsert symbol %s: %w", s.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetSymbol retrieves a single symbol by ticker
func (db *DB) GetSymbol(symbol string) (*models.Symbol, error) {
	query := `
		SELECT symbol, name, exchange, type, sector, industry, currency, active, last_updated, created_at
		FROM raw_stocks
		WHERE symbol = $1
	`
	var s models.Symbol
	err := db.conn.QueryRow(query, symbol).Scan(
		&s.Symbol, &s.Name, &s.Exchange, &s.Type, &s.Sector, &s.Industry, &s.Currency, &s.Active, &s.LastUpdated, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("symbol not found: %s", symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get symbol: %w", err)
	}
	return &s, nil
}

// GetActiveSymbols retrieves all active tickers ordered alphabetically.
// A limit of 0 means no limit.
func (db *DB) GetActiveSymbols(limit int) ([]string, error) {
	query := `SELECT symbol FROM raw_stocks WHERE active = true ORDER BY symbol`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get active symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// GetAllSymbols retrieves full symbol records for the API
func (db *DB) GetAllSymbols(limit int) ([]*models.Symbol, error) {
	query := `
		SELECT symbol, name, exchange, type, sector, industry, currency, active, last_updated, created_at
		FROM raw_stocks
		ORDER BY symbol
		LIMIT $1
	`
	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get symbols: %w", err)
	}
	defer rows.Close()

	var symbols []*models.Symbol
	for rows.Next() {
		var s models.Symbol
		err := rows.Scan(&s.Symbol, &s.Name, &s.Exchange, &s.Type, &s.Sector, &s.Industry, &s.Currency, &s.Active, &s.LastUpdated, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, &s)
	}
	return symbols, rows.Err()
}

// GetStaleSymbols returns active tickers whose last_updated is older than
// the cutoff. This backs the staleness filter: symbols refreshed within
// the window are skipped to avoid redundant vendor calls.
func (db *DB) GetStaleSymbols(cutoff time.Time, limit int) ([]string, error) {
	query := `SELECT symbol FROM raw_stocks WHERE active = true AND last_updated < $1 ORDER BY symbol`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := db.conn.Query(query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get stale symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// TouchSymbols updates last_updated for the given tickers after a
// successful price refresh
func (db *DB) TouchSymbols(symbols []string, at time.Time) error {
	if len(symbols) == 0 {
		return nil
	}
	query := `UPDATE raw_stocks SET last_updated = $1 WHERE symbol = ANY($2)`
	_, err := db.conn.Exec(query, at, pq.Array(symbols))
	if err != nil {
		return fmt.Errorf("failed to touch symbols: %w", err)
	}
	return nil
}

// DeactivateSymbol marks a ticker inactive without deleting its history
func (db *DB) DeactivateSymbol(symbol string) error {
	query := `UPDATE raw_stocks SET active = false WHERE symbol = $1`
	result, err := db.conn.Exec(query, symbol)
	if err != nil {
		return fmt.Errorf("failed to deactivate symbol: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("symbol not found: %s", symbol)
	}
	return nil
}

// GetExcludedSymbols returns the set of tickers discovery must skip
func (db *DB) GetExcludedSymbols() (map[string]bool, error) {
	rows, err := db.conn.Query(`SELECT symbol FROM raw_excluded_symbols`)
	if err != nil {
		return nil, fmt.Errorf("failed to get excluded symbols: %w", err)
	}
	defer rows.Close()

	excluded := make(map[string]bool)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan excluded symbol: %w", err)
		}
		excluded[s] = true
	}
	return excluded, rows.Err()
}

// ExcludeSymbol records a ticker as permanently excluded from discovery
func (db *DB) ExcludeSymbol(symbol, reason string) error {
	query := `
		INSERT INTO raw_excluded_symbols (symbol, reason, excluded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET reason = EXCLUDED.reason
	`
	_, err := db.conn.Exec(query, symbol, reason, time.Now())
	if err != nil {
		return fmt.Errorf("failed to exclude symbol %s: %w", symbol, err)
	}
	return nil
}
