package database

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dividendscout/pipeline/internal/models"
)

func TestPricesRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	seedSymbol := func(t *testing.T, symbol string) {
		t.Helper()
		require.NoError(t, testDB.UpsertSymbol(&models.Symbol{
			Symbol: symbol,
			Type:   models.SymbolTypeStock,
			Active: true,
		}))
	}

	day := func(offset int) time.Time {
		return time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
	}

	t.Run("UpsertPriceBar creates and updates", func(t *testing.T) {
		testDB.TruncateAll(t)
		seedSymbol(t, "AAPL")

		bar := &models.PriceBar{
			Symbol: "AAPL",
			Date:   day(0),
			Open:   decimal.RequireFromString("230.10"),
			High:   decimal.RequireFromString("233.50"),
			Low:    decimal.RequireFromString("229.80"),
			Close:  decimal.RequireFromString("232.14"),
			Volume: 51230000,
		}
		require.NoError(t, testDB.UpsertPriceBar(bar))
		assert.NotZero(t, bar.ID)
		originalID := bar.ID

		// Same (symbol, date) updates in place.
		bar.Close = decimal.RequireFromString("231.00")
		require.NoError(t, testDB.UpsertPriceBar(bar))
		assert.Equal(t, originalID, bar.ID)

		latest, err := testDB.GetLatestPriceBar("AAPL")
		require.NoError(t, err)
		assert.True(t, latest.Close.Equal(decimal.RequireFromString("231.00")))
	})

	t.Run("UpsertPriceBarBatch is idempotent", func(t *testing.T) {
		testDB.TruncateAll(t)
		seedSymbol(t, "AAPL")

		bars := []*models.PriceBar{
			{Symbol: "AAPL", Date: day(0), Close: decimal.RequireFromString("232.14"), Volume: 100},
			{Symbol: "AAPL", Date: day(-1), Close: decimal.RequireFromString("231.50"), Volume: 200},
		}
		require.NoError(t, testDB.UpsertPriceBarBatch(bars))
		require.NoError(t, testDB.UpsertPriceBarBatch(bars))

		stored, err := testDB.GetPriceBars("AAPL", 10)
		require.NoError(t, err)
		assert.Len(t, stored, 2)
	})

	t.Run("GetPriceBars returns newest first", func(t *testing.T) {
		testDB.TruncateAll(t)
		seedSymbol(t, "AAPL")

		var bars []*models.PriceBar
		for i := 0; i < 5; i++ {
			bars = append(bars, &models.PriceBar{
				Symbol: "AAPL",
				Date:   day(-i),
				Close:  decimal.NewFromInt(int64(230 - i)),
			})
		}
		require.NoError(t, testDB.UpsertPriceBarBatch(bars))

		stored, err := testDB.GetPriceBars("AAPL", 3)
		require.NoError(t, err)
		require.Len(t, stored, 3)
		assert.True(t, stored[0].Date.After(stored[1].Date))
		assert.True(t, stored[1].Date.After(stored[2].Date))
	})

	t.Run("GetPriceBarsRange returns oldest first within range", func(t *testing.T) {
		testDB.TruncateAll(t)
		seedSymbol(t, "AAPL")

		var bars []*models.PriceBar
		for i := 0; i < 10; i++ {
			bars = append(bars, &models.PriceBar{
				Symbol: "AAPL",
				Date:   day(-i),
				Close:  decimal.NewFromInt(int64(230 - i)),
			})
		}
		require.NoError(t, testDB.UpsertPriceBarBatch(bars))

		stored, err := testDB.GetPriceBarsRange("AAPL", day(-4), day(-2))
		require.NoError(t, err)
		require.Len(t, stored, 3)
		assert.True(t, stored[0].Date.Before(stored[1].Date))
	})

	t.Run("GetLatestPriceBar errors when no data", func(t *testing.T) {
		testDB.TruncateAll(t)
		seedSymbol(t, "AAPL")

		_, err := testDB.GetLatestPriceBar("AAPL")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no price data")
	})

	t.Run("DeletePriceBarsOlderThan applies retention", func(t *testing.T) {
		testDB.TruncateAll(t)
		seedSymbol(t, "AAPL")

		require.NoError(t, testDB.UpsertPriceBarBatch([]*models.PriceBar{
			{Symbol: "AAPL", Date: day(0), Close: decimal.NewFromInt(232)},
			{Symbol: "AAPL", Date: day(-400), Close: decimal.NewFromInt(180)},
			{Symbol: "AAPL", Date: day(-800), Close: decimal.NewFromInt(150)},
		}))

		deleted, err := testDB.DeletePriceBarsOlderThan(day(-365))
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		remaining, err := testDB.GetPriceBars("AAPL", 10)
		require.NoError(t, err)
		assert.Len(t, remaining, 1)
	})
}
