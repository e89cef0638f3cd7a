package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dividendscout/pipeline/internal/models"
)

// UpsertPriceBar inserts or updates a daily price bar keyed by (symbol, date)
func (db *DB) UpsertPriceBar(p *models.PriceBar) error {
	query := `
		INSERT INTO raw_stock_prices (symbol, date, open, high, low, close, volume, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
		RETURNING id
	`
	err := db.conn.QueryRow(query,
		p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume, time.Now(),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert price bar: %w", err)
	}
	return nil
}

// UpsertPriceBarBatch inserts or updates multiple price bars in one transaction
func (db *DB) UpsertPriceBarBatch(bars []*models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO raw_stock_prices (symbol, date, open, high, low, close, volume, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range bars {
		_, err := stmt.Exec(p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume, now)
		if err != nil {
			return fmt.Errorf("failed to upsert price bar for %s: %w", p.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetPriceBars retrieves price bars for a symbol, newest first
func (db *DB) GetPriceBars(symbol string, limit int) ([]*models.PriceBar, error) {
	query := `
		SELECT id, symbol, date, open, high, low, close, volume, created_at
		FROM raw_stock_prices
		WHERE symbol = $1
		ORDER BY date DESC
		LIMIT $2
	`
	return db.scanPriceBars(db.conn.Query(query, symbol, limit))
}

// GetPriceBarsRange retrieves price bars for a symbol within a date range,
// oldest first
func (db *DB) GetPriceBarsRange(symbol string, startDate, endDate time.Time) ([]*models.PriceBar, error) {
	query := `
		SELECT id, symbol, date, open, high, low, close, volume, created_at
		FROM raw_stock_prices
		WHERE symbol = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`
	return db.scanPriceBars(db.conn.Query(query, symbol, startDate, endDate))
}

// GetLatestPriceBar retrieves the most recent price bar for a symbol
func (db *DB) GetLatestPriceBar(symbol string) (*models.PriceBar, error) {
	query := `
		SELECT id, symbol, date, open, high, low, close, volume, created_at
		FROM raw_stock_prices
		WHERE symbol = $1
		ORDER BY date DESC
		LIMIT 1
	`
	var p models.PriceBar
	err := db.conn.QueryRow(query, symbol).Scan(
		&p.ID, &p.Symbol, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no price data found for %s", symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price bar: %w", err)
	}
	return &p, nil
}

// DeletePriceBarsOlderThan removes price bars older than the given date
// and returns the number of rows removed
func (db *DB) DeletePriceBarsOlderThan(date time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM raw_stock_prices WHERE date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old price bars: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) scanPriceBars(rows *sql.Rows, err error) ([]*models.PriceBar, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query price bars: %w", err)
	}
	defer rows.Close()

	var bars []*models.PriceBar
	for rows.Next() {
		var p models.PriceBar
		err := rows.Scan(&p.ID, &p.Symbol, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price bar: %w", err)
		}
		bars = append(bars, &p)
	}
	return bars, rows.Err()
}
