package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dividendscout/pipeline/internal/models"
)

// UpsertDividend inserts or updates a historical dividend keyed by
// (symbol, ex_date)
func (db *DB) UpsertDividend(d *models.DividendEvent) error {
	query := `
		INSERT INTO raw_dividends (symbol, ex_date, record_date, payment_date, declaration_date, amount, adjusted_amount, frequency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, ex_date) DO UPDATE SET
			record_date = EXCLUDED.record_date,
			payment_date = EXCLUDED.payment_date,
			declaration_date = EXCLUDED.declaration_date,
			amount = EXCLUDED.amount,
			adjusted_amount = EXCLUDED.adjusted_amount,
			frequency = EXCLUDED.frequency
		RETURNING id
	`
	err := db.conn.QueryRow(query,
		d.Symbol, d.ExDate, d.RecordDate, d.PaymentDate, d.DeclarationDate, d.Amount, d.AdjustedAmount, d.Frequency, time.Now(),
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert dividend: %w", err)
	}
	return nil
}

// UpsertDividendBatch inserts or updates multiple historical dividends in
// one transaction
func (db *DB) UpsertDividendBatch(dividends []*models.DividendEvent) error {
	if len(dividends) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO raw_dividends (symbol, ex_date, record_date, payment_date, declaration_date, amount, adjusted_amount, frequency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, ex_date) DO UPDATE SET
			record_date = EXCLUDED.record_date,
			payment_date = EXCLUDED.payment_date,
			declaration_date = EXCLUDED.declaration_date,
			amount = EXCLUDED.amount,
			adjusted_amount = EXCLUDED.adjusted_amount,
			frequency = EXCLUDED.frequency
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, d := range dividends {
		_, err := stmt.Exec(d.Symbol, d.ExDate, d.RecordDate, d.PaymentDate, d.DeclarationDate, d.Amount, d.AdjustedAmount, d.Frequency, now)
		if err != nil {
			return fmt.Errorf("failed to upsert dividend for %s: %w", d.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertFutureDividendBatch inserts or updates announced upcoming
// dividends keyed by (symbol, ex_date)
func (db *DB) UpsertFutureDividendBatch(dividends []*models.FutureDividend) error {
	if len(dividends) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO raw_future_dividends (symbol, ex_date, payment_date, amount, frequency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol, ex_date) DO UPDATE SET
			payment_date = EXCLUDED.payment_date,
			amount = EXCLUDED.amount,
			frequency = EXCLUDED.frequency
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, d := range dividends {
		_, err := stmt.Exec(d.Symbol, d.ExDate, d.PaymentDate, d.Amount, d.Frequency, now)
		if err != nil {
			return fmt.Errorf("failed to upsert future dividend for %s: %w", d.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetDividends retrieves historical dividends for a symbol, newest first
func (db *DB) GetDividends(symbol string, limit int) ([]*models.DividendEvent, error) {
	query := `
		SELECT id, symbol, ex_date, record_date, payment_date, declaration_date, amount, adjusted_amount, frequency, created_at
		FROM raw_dividends
		WHERE symbol = $1
		ORDER BY ex_date DESC
		LIMIT $2
	`
	rows, err := db.conn.Query(query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	var dividends []*models.DividendEvent
	for rows.Next() {
		var d models.DividendEvent
		var recordDate, paymentDate, declarationDate sql.NullTime
		var frequency sql.NullString

		err := rows.Scan(&d.ID, &d.Symbol, &d.ExDate, &recordDate, &paymentDate, &declarationDate, &d.Amount, &d.AdjustedAmount, &frequency, &d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}

		if recordDate.Valid {
			d.RecordDate = &recordDate.Time
		}
		if paymentDate.Valid {
			d.PaymentDate = &paymentDate.Time
		}
		if declarationDate.Valid {
			d.DeclarationDate = &declarationDate.Time
		}
		if frequency.Valid {
			d.Frequency = frequency.String
		}
		dividends = append(dividends, &d)
	}
	return dividends, rows.Err()
}

// GetUpcomingDividends retrieves announced dividends with ex-dates inside
// the given window, soonest first
func (db *DB) GetUpcomingDividends(from, to time.Time) ([]*models.FutureDividend, error) {
	query := `
		SELECT id, symbol, ex_date, payment_date, amount, frequency, created_at
		FROM raw_future_dividends
		WHERE ex_date >= $1 AND ex_date <= $2
		ORDER BY ex_date ASC
	`
	rows, err := db.conn.Query(query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming dividends: %w", err)
	}
	defer rows.Close()

	var dividends []*models.FutureDividend
	for rows.Next() {
		var d models.FutureDividend
		var paymentDate sql.NullTime
		var frequency sql.NullString

		err := rows.Scan(&d.ID, &d.Symbol, &d.ExDate, &paymentDate, &d.Amount, &frequency, &d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upcoming dividend: %w", err)
		}

		if paymentDate.Valid {
			d.PaymentDate = &paymentDate.Time
		}
		if frequency.Valid {
			d.Frequency = frequency.String
		}
		dividends = append(dividends, &d)
	}
	return dividends, rows.Err()
}

// PromotePastFutureDividends moves announced dividends whose ex-date has
// passed into the historical table and removes them from the future
// table. Returns the number of rows promoted.
func (db *DB) PromotePastFutureDividends(asOf time.Time) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO raw_dividends (symbol, ex_date, payment_date, amount, adjusted_amount, frequency, created_at)
		SELECT symbol, ex_date, payment_date, amount, amount, frequency, $1
		FROM raw_future_dividends
		WHERE ex_date < $2
		ON CONFLICT (symbol, ex_date) DO NOTHING
	`, time.Now(), asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to promote future dividends: %w", err)
	}
	promoted, _ := result.RowsAffected()

	_, err = tx.Exec(`DELETE FROM raw_future_dividends WHERE ex_date < $1`, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to delete promoted future dividends: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return promoted, nil
}
