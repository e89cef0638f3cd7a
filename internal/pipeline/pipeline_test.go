package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dividendscout/pipeline/internal/config"
	"github.com/dividendscout/pipeline/internal/models"
	"github.com/dividendscout/pipeline/internal/runlock"
	"github.com/dividendscout/pipeline/internal/clients/alphavantage"
)

// A Monday at noon; the update mode's market gate only blocks weekends.
var monday = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
var saturday = time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory Store
type fakeStore struct {
	mu sync.Mutex

	active   []string
	stale    []string
	excluded map[string]bool
	etfFunds []string

	upsertedSymbols []*models.Symbol
	priceBars       []*models.PriceBar
	dividends       []*models.DividendEvent
	futureDividends []*models.FutureDividend
	holdings        map[string][]*models.ETFHolding
	touched         []string

	createdRuns  []*models.PipelineRun
	finalizedRun *models.PipelineRun

	promoteAsOf  time.Time
	promoted     int64
	priceDeleted int64
	runDeleted   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		excluded: make(map[string]bool),
		holdings: make(map[string][]*models.ETFHolding),
	}
}

func (f *fakeStore) GetActiveSymbols(limit int) ([]string, error) {
	if limit > 0 && limit < len(f.active) {
		return f.active[:limit], nil
	}
	return f.active, nil
}

func (f *fakeStore) GetStaleSymbols(cutoff time.Time, limit int) ([]string, error) {
	if limit > 0 && limit < len(f.stale) {
		return f.stale[:limit], nil
	}
	return f.stale, nil
}

func (f *fakeStore) TouchSymbols(symbols []string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, symbols...)
	return nil
}

func (f *fakeStore) UpsertSymbolBatch(symbols []*models.Symbol) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertedSymbols = append(f.upsertedSymbols, symbols...)
	return nil
}

func (f *fakeStore) GetExcludedSymbols() (map[string]bool, error) {
	return f.excluded, nil
}

func (f *fakeStore) UpsertPriceBarBatch(bars []*models.PriceBar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceBars = append(f.priceBars, bars...)
	return nil
}

func (f *fakeStore) UpsertDividendBatch(dividends []*models.DividendEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dividends = append(f.dividends, dividends...)
	return nil
}

func (f *fakeStore) UpsertFutureDividendBatch(dividends []*models.FutureDividend) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.futureDividends = append(f.futureDividends, dividends...)
	return nil
}

func (f *fakeStore) PromotePastFutureDividends(asOf time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promoteAsOf = asOf
	return f.promoted, nil
}

func (f *fakeStore) GetETFFunds(limit int) ([]string, error) {
	return f.etfFunds, nil
}

func (f *fakeStore) ReplaceETFHoldings(fundSymbol string, holdings []*models.ETFHolding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdings[fundSymbol] = holdings
	return nil
}

func (f *fakeStore) CreatePipelineRun(r *models.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = len(f.createdRuns) + 1
	r.StartedAt = time.Now()
	f.createdRuns = append(f.createdRuns, r)
	return nil
}

func (f *fakeStore) FinalizePipelineRun(r *models.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizedRun = r
	return nil
}

func (f *fakeStore) DeletePriceBarsOlderThan(date time.Time) (int64, error) {
	return f.priceDeleted, nil
}

func (f *fakeStore) DeletePipelineRunsOlderThan(cutoff time.Time) (int64, error) {
	return f.runDeleted, nil
}

// fakeQuotes returns a bar for every symbol not in missing
type fakeQuotes struct {
	mu        sync.Mutex
	missing   map[string]bool
	attempted []string
}

func (f *fakeQuotes) GetBatchQuotes(ctx context.Context, symbols []string) ([]*models.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempted = append(f.attempted, symbols...)

	var bars []*models.PriceBar
	for _, s := range symbols {
		if f.missing[s] {
			continue
		}
		bars = append(bars, &models.PriceBar{
			Symbol: s,
			Date:   monday,
			Close:  decimal.NewFromInt(100),
		})
	}
	return bars, nil
}

// fakeFallback serves bars from a fixed map and errors for anything else
type fakeFallback struct {
	mu    sync.Mutex
	bars  map[string]*models.PriceBar
	calls int
}

func (f *fakeFallback) FetchLatestBar(ctx context.Context, symbol string) (*models.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if bar, ok := f.bars[symbol]; ok {
		return bar, nil
	}
	return nil, assert.AnError
}

type fakeDirectory struct {
	symbols []*models.Symbol
}

func (f *fakeDirectory) GetSymbolDirectory(ctx context.Context) ([]*models.Symbol, error) {
	return f.symbols, nil
}

type fakeDividendSource struct {
	mu       sync.Mutex
	calendar []*models.FutureDividend
	history  map[string][]*models.DividendEvent
	fails    map[string]bool
}

func (f *fakeDividendSource) GetDividendCalendar(ctx context.Context, from, to time.Time) ([]*models.FutureDividend, error) {
	return f.calendar, nil
}

func (f *fakeDividendSource) GetHistoricalDividends(ctx context.Context, symbol string) ([]*models.DividendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails[symbol] {
		return nil, assert.AnError
	}
	return f.history[symbol], nil
}

type fakeHoldings struct {
	mu       sync.Mutex
	holdings map[string][]*models.ETFHolding
	fails    map[string]bool
}

func (f *fakeHoldings) GetETFHoldings(ctx context.Context, fundSymbol string) ([]*models.ETFHolding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails[fundSymbol] {
		return nil, assert.AnError
	}
	return f.holdings[fundSymbol], nil
}

// fakeProfiles serves overviews until its budget runs out
type fakeProfiles struct {
	budget int
	calls  int
}

func (f *fakeProfiles) GetCompanyOverview(ctx context.Context, symbol string) (*models.Symbol, error) {
	if f.calls >= f.budget {
		return nil, alphavantage.ErrBudgetExhausted{Budget: f.budget}
	}
	f.calls++
	return &models.Symbol{Symbol: symbol, Sector: "Technology", Active: true}, nil
}

type fakePublisher struct {
	started         []*models.PipelineRun
	completed       []*models.PipelineRun
	completedCtxErr error
	discovered      []string
}

func (f *fakePublisher) PublishRunStarted(ctx context.Context, run *models.PipelineRun) error {
	f.started = append(f.started, run)
	return nil
}

func (f *fakePublisher) PublishRunCompleted(ctx context.Context, run *models.PipelineRun) error {
	f.completed = append(f.completed, run)
	f.completedCtxErr = ctx.Err()
	return nil
}

func (f *fakePublisher) PublishSymbolDiscovered(ctx context.Context, symbol string) error {
	f.discovered = append(f.discovered, symbol)
	return nil
}

type fakePermit struct {
	held     bool
	acquired int
	released int
}

func (f *fakePermit) Acquire(ctx context.Context) error {
	if f.held {
		return runlock.ErrLockHeld
	}
	f.acquired++
	return nil
}

func (f *fakePermit) Release(ctx context.Context) error {
	f.released++
	return nil
}

func testPipelineConfig(t *testing.T) config.PipelineConfig {
	t.Helper()
	return config.PipelineConfig{
		Workers:             2,
		InitialChunkSize:    2,
		MinChunkSize:        1,
		MaxChunkSize:        10,
		TargetChunkDuration: time.Second,
		MaxAttempts:         2,
		RetryBaseDelay:      time.Millisecond,
		StalenessWindow:     18 * time.Hour,
		CheckpointDir:       t.TempDir(),
		CheckpointEvery:     1,
		CheckpointMaxAge:    7 * 24 * time.Hour,
		PriceRetention:      5 * 365 * 24 * time.Hour,
		RunRetention:        90 * 24 * time.Hour,
		DaysAhead:           7,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestPipeline(deps Deps, cfg config.PipelineConfig) *Pipeline {
	deps.Logger = testLogger()
	p := New(deps, cfg)
	p.clock = func() time.Time { return monday }
	return p
}

func TestRunUpdateAllSucceed(t *testing.T) {
	store := newFakeStore()
	store.active = []string{"AAPL", "MSFT", "KO"}
	store.stale = []string{"AAPL", "MSFT", "KO"}
	quotes := &fakeQuotes{}
	cfg := testPipelineConfig(t)

	p := newTestPipeline(Deps{Store: store, Quotes: quotes}, cfg)

	err := p.Run(context.Background(), ModeUpdate, Options{})
	require.NoError(t, err)

	require.NotNil(t, store.finalizedRun)
	assert.Equal(t, models.RunStatusCompleted, store.finalizedRun.Status)
	assert.Equal(t, 3, store.finalizedRun.Succeeded)
	assert.Equal(t, 0, store.finalizedRun.Failed)

	assert.Len(t, store.priceBars, 3)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "KO"}, store.touched)

	// Full success removes the checkpoint so the next run starts fresh.
	_, err = os.Stat(filepath.Join(cfg.CheckpointDir, "prices.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunUpdatePartialFailure(t *testing.T) {
	store := newFakeStore()
	store.active = []string{"AAPL", "MSFT", "BADSYM"}
	store.stale = []string{"AAPL", "MSFT", "BADSYM"}
	quotes := &fakeQuotes{missing: map[string]bool{"BADSYM": true}}
	fallback := &fakeFallback{bars: map[string]*models.PriceBar{}} // fallback fails too
	cfg := testPipelineConfig(t)

	p := newTestPipeline(Deps{Store: store, Quotes: quotes, Fallback: fallback}, cfg)

	err := p.Run(context.Background(), ModeUpdate, Options{})
	assert.ErrorIs(t, err, ErrPartialFailure)

	require.NotNil(t, store.finalizedRun)
	assert.Equal(t, models.RunStatusCompletedWithError, store.finalizedRun.Status)
	assert.Equal(t, 2, store.finalizedRun.Succeeded)
	assert.Equal(t, 1, store.finalizedRun.Failed)

	// The two good symbols were written despite the failure.
	gotSymbols := make([]string, 0, len(store.priceBars))
	for _, bar := range store.priceBars {
		gotSymbols = append(gotSymbols, bar.Symbol)
	}
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, gotSymbols)
	assert.NotContains(t, store.touched, "BADSYM")

	// The checkpoint survives so a rerun skips the completed work.
	_, err = os.Stat(filepath.Join(cfg.CheckpointDir, "prices.json"))
	assert.NoError(t, err)
}

func TestRunUpdateFallbackCoversMissingSymbol(t *testing.T) {
	store := newFakeStore()
	store.active = []string{"AAPL", "OBSCURE"}
	store.stale = []string{"AAPL", "OBSCURE"}
	quotes := &fakeQuotes{missing: map[string]bool{"OBSCURE": true}}
	fallback := &fakeFallback{bars: map[string]*models.PriceBar{
		"OBSCURE": {Symbol: "OBSCURE", Date: monday, Close: decimal.NewFromInt(7)},
	}}
	cfg := testPipelineConfig(t)

	p := newTestPipeline(Deps{Store: store, Quotes: quotes, Fallback: fallback}, cfg)

	err := p.Run(context.Background(), ModeUpdate, Options{})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, store.finalizedRun.Status)
	assert.GreaterOrEqual(t, fallback.calls, 1)
	assert.Len(t, store.priceBars, 2)
}

func TestRunUpdateResumesFromCheckpoint(t *testing.T) {
	cfg := testPipelineConfig(t)

	store := newFakeStore()
	store.active = []string{"AAPL", "MSFT", "BADSYM"}
	store.stale = []string{"AAPL", "MSFT", "BADSYM"}
	quotes := &fakeQuotes{missing: map[string]bool{"BADSYM": true}}
	fallback := &fakeFallback{bars: map[string]*models.PriceBar{}}

	p := newTestPipeline(Deps{Store: store, Quotes: quotes, Fallback: fallback}, cfg)
	err := p.Run(context.Background(), ModeUpdate, Options{})
	require.ErrorIs(t, err, ErrPartialFailure)

	// Second run over the same checkpoint dir: the vendor has recovered.
	store2 := newFakeStore()
	store2.active = []string{"AAPL", "MSFT", "BADSYM"}
	store2.stale = []string{"AAPL", "MSFT", "BADSYM"}
	quotes2 := &fakeQuotes{}

	p2 := newTestPipeline(Deps{Store: store2, Quotes: quotes2}, cfg)
	err = p2.Run(context.Background(), ModeUpdate, Options{})
	require.NoError(t, err)

	// Only the previously failed symbol is refetched.
	assert.Equal(t, []string{"BADSYM"}, quotes2.attempted)
	assert.Equal(t, 2, store2.finalizedRun.Skipped)

	_, err = os.Stat(filepath.Join(cfg.CheckpointDir, "prices.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunUpdateStalenessFilter(t *testing.T) {
	store := newFakeStore()
	store.active = []string{"AAPL", "MSFT", "KO", "JNJ"}
	store.stale = []string{"AAPL"} // the rest were refreshed recently
	quotes := &fakeQuotes{}

	p := newTestPipeline(Deps{Store: store, Quotes: quotes}, testPipelineConfig(t))

	err := p.Run(context.Background(), ModeUpdate, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL"}, quotes.attempted)
	assert.Equal(t, 3, store.finalizedRun.Skipped)
	assert.Equal(t, 1, store.finalizedRun.Succeeded)
}

func TestRunUpdateStalenessFilterWithLimit(t *testing.T) {
	store := newFakeStore()
	store.active = []string{"AAPL", "MSFT", "KO", "JNJ"}
	store.stale = []string{"KO"}
	quotes := &fakeQuotes{}

	p := newTestPipeline(Deps{Store: store, Quotes: quotes}, testPipelineConfig(t))

	err := p.Run(context.Background(), ModeUpdate, Options{Limit: 2})
	require.NoError(t, err)

	// The limit caps the active and stale queries independently, so the
	// skip count is the active window minus the stale set, not the
	// difference of the two lengths.
	assert.Equal(t, []string{"KO"}, quotes.attempted)
	assert.Equal(t, 2, store.finalizedRun.Skipped)
	assert.Equal(t, 1, store.finalizedRun.Succeeded)
}

func TestRunSkipsWeekend(t *testing.T) {
	store := newFakeStore()
	permit := &fakePermit{}
	p := newTestPipeline(Deps{Store: store, Quotes: &fakeQuotes{}, Permit: permit}, testPipelineConfig(t))
	p.clock = func() time.Time { return saturday }

	err := p.Run(context.Background(), ModeUpdate, Options{})
	require.NoError(t, err)

	// A weekend skip is not a run: no permit, no run record.
	assert.Equal(t, 0, permit.acquired)
	assert.Empty(t, store.createdRuns)
}

func TestRunForceOverridesWeekendGate(t *testing.T) {
	store := newFakeStore()
	store.active = []string{"AAPL"}
	store.stale = []string{"AAPL"}
	p := newTestPipeline(Deps{Store: store, Quotes: &fakeQuotes{}}, testPipelineConfig(t))
	p.clock = func() time.Time { return saturday }

	err := p.Run(context.Background(), ModeUpdate, Options{ForceRun: true})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, store.finalizedRun.Status)
}

func TestRunLockHeld(t *testing.T) {
	store := newFakeStore()
	permit := &fakePermit{held: true}
	p := newTestPipeline(Deps{Store: store, Quotes: &fakeQuotes{}, Permit: permit}, testPipelineConfig(t))

	err := p.Run(context.Background(), ModeUpdate, Options{})
	assert.ErrorIs(t, err, ErrLockHeld)

	// Nothing ran and nothing was recorded.
	assert.Empty(t, store.createdRuns)
	assert.Nil(t, store.finalizedRun)
	assert.Equal(t, 0, permit.released)
}

func TestRunReleasesPermit(t *testing.T) {
	store := newFakeStore()
	permit := &fakePermit{}
	p := newTestPipeline(Deps{Store: store, Quotes: &fakeQuotes{}, Permit: permit}, testPipelineConfig(t))

	require.NoError(t, p.Run(context.Background(), ModeUpdate, Options{}))
	assert.Equal(t, 1, permit.acquired)
	assert.Equal(t, 1, permit.released)
}

func TestRunRecordsAPICallsPerRun(t *testing.T) {
	store := newFakeStore()
	store.active = []string{"AAPL"}
	store.stale = []string{"AAPL"}
	p := newTestPipeline(Deps{Store: store, Quotes: &fakeQuotes{}}, testPipelineConfig(t))

	require.NoError(t, p.Run(context.Background(), ModeUpdate, Options{}))
	first := store.finalizedRun.APICalls
	assert.Equal(t, 1, first)

	// A long-lived pipeline (the cron daemon) runs again; the second
	// record must not absorb the first run's calls.
	require.NoError(t, p.Run(context.Background(), ModeUpdate, Options{}))
	assert.Equal(t, first, store.finalizedRun.APICalls)
}

func TestRunPublishesCompletionAfterCancel(t *testing.T) {
	store := newFakeStore()
	store.active = []string{"AAPL"}
	store.stale = []string{"AAPL"}
	publisher := &fakePublisher{}
	p := newTestPipeline(Deps{Store: store, Quotes: &fakeQuotes{}, Publisher: publisher}, testPipelineConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx, ModeUpdate, Options{})
	require.Error(t, err)
	require.NotNil(t, store.finalizedRun)
	assert.Equal(t, models.RunStatusFailed, store.finalizedRun.Status)

	// An interrupted run still announces its outcome.
	require.Len(t, publisher.completed, 1)
	assert.NoError(t, publisher.completedCtxErr)
}

func TestRunUnknownMode(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(Deps{Store: store}, testPipelineConfig(t))

	err := p.Run(context.Background(), "bogus", Options{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPartialFailure)
	assert.Equal(t, models.RunStatusFailed, store.finalizedRun.Status)
}

func TestRunDiscover(t *testing.T) {
	store := newFakeStore()
	store.active = []string{"AAPL"} // already tracked
	store.excluded["DELISTED"] = true
	directory := &fakeDirectory{symbols: []*models.Symbol{
		{Symbol: "AAPL", Name: "Apple Inc.", Type: models.SymbolTypeStock, Active: true},
		{Symbol: "DELISTED", Name: "Gone Corp", Type: models.SymbolTypeStock, Active: true},
		{Symbol: "SCHD", Name: "Schwab US Dividend Equity ETF", Type: models.SymbolTypeETF, Active: true},
	}}
	publisher := &fakePublisher{}

	p := newTestPipeline(Deps{Store: store, Directory: directory, Publisher: publisher}, testPipelineConfig(t))

	err := p.Run(context.Background(), ModeDiscover, Options{})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, store.finalizedRun.Status)
	assert.Equal(t, 2, store.finalizedRun.Succeeded)
	assert.Equal(t, 1, store.finalizedRun.Skipped)

	// Only the genuinely new symbol is announced.
	assert.Equal(t, []string{"SCHD"}, publisher.discovered)
	require.Len(t, publisher.started, 1)
	require.Len(t, publisher.completed, 1)

	upserted := make([]string, 0, len(store.upsertedSymbols))
	for _, s := range store.upsertedSymbols {
		upserted = append(upserted, s.Symbol)
	}
	assert.NotContains(t, upserted, "DELISTED")
}

func TestRunDiscoverEnrichmentStopsAtBudget(t *testing.T) {
	store := newFakeStore()
	directory := &fakeDirectory{symbols: []*models.Symbol{
		{Symbol: "AAA", Type: models.SymbolTypeStock, Active: true},
		{Symbol: "BBB", Type: models.SymbolTypeStock, Active: true},
		{Symbol: "CCC", Type: models.SymbolTypeStock, Active: true},
	}}
	profiles := &fakeProfiles{budget: 2}

	p := newTestPipeline(Deps{Store: store, Directory: directory, Profiles: profiles}, testPipelineConfig(t))

	err := p.Run(context.Background(), ModeDiscover, Options{})
	require.NoError(t, err)

	// Enrichment stops at the budget without failing the run.
	assert.Equal(t, 2, profiles.calls)
	assert.Equal(t, models.RunStatusCompleted, store.finalizedRun.Status)

	var enriched int
	for _, s := range store.upsertedSymbols {
		if s.Sector != "" {
			enriched++
		}
	}
	assert.Equal(t, 2, enriched)
}

func TestRunDividends(t *testing.T) {
	payment := monday.AddDate(0, 0, 14)
	store := newFakeStore()
	store.active = []string{"KO", "JNJ"}
	store.promoted = 2
	source := &fakeDividendSource{
		calendar: []*models.FutureDividend{
			{Symbol: "KO", ExDate: monday.AddDate(0, 0, 3), PaymentDate: &payment, Amount: decimal.RequireFromString("0.485")},
		},
		history: map[string][]*models.DividendEvent{
			"KO":  {{Symbol: "KO", ExDate: monday.AddDate(0, 0, -90), Amount: decimal.RequireFromString("0.485")}},
			"JNJ": {{Symbol: "JNJ", ExDate: monday.AddDate(0, 0, -60), Amount: decimal.RequireFromString("1.24")}},
		},
	}

	cfg := testPipelineConfig(t)
	p := newTestPipeline(Deps{Store: store, Dividends: source}, cfg)

	err := p.Run(context.Background(), ModeDividends, Options{})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, store.finalizedRun.Status)
	assert.Equal(t, 2, store.finalizedRun.Succeeded)
	assert.Len(t, store.futureDividends, 1)
	assert.Len(t, store.dividends, 2)

	// Past announced dividends are promoted as of the run date.
	assert.Equal(t, monday.Truncate(24*time.Hour), store.promoteAsOf)

	_, err = os.Stat(filepath.Join(cfg.CheckpointDir, "dividends.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunDividendsPartialFailure(t *testing.T) {
	store := newFakeStore()
	store.active = []string{"KO", "FLAKY"}
	source := &fakeDividendSource{
		history: map[string][]*models.DividendEvent{"KO": {}},
		fails:   map[string]bool{"FLAKY": true},
	}

	p := newTestPipeline(Deps{Store: store, Dividends: source}, testPipelineConfig(t))

	err := p.Run(context.Background(), ModeDividends, Options{})
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.Equal(t, models.RunStatusCompletedWithError, store.finalizedRun.Status)
	assert.Equal(t, 1, store.finalizedRun.Failed)
}

func TestRunETF(t *testing.T) {
	store := newFakeStore()
	store.etfFunds = []string{"SCHD", "VYM", "EMPTY"}
	holdings := &fakeHoldings{holdings: map[string][]*models.ETFHolding{
		"SCHD": {
			{FundSymbol: "SCHD", Symbol: "KO", Weight: decimal.RequireFromString("4.1"), AsOfDate: monday},
			{FundSymbol: "SCHD", Symbol: "PEP", Weight: decimal.RequireFromString("3.9"), AsOfDate: monday},
		},
		"VYM": {
			{FundSymbol: "VYM", Symbol: "JNJ", Weight: decimal.RequireFromString("2.8"), AsOfDate: monday},
		},
	}}

	p := newTestPipeline(Deps{Store: store, Holdings: holdings}, testPipelineConfig(t))

	err := p.Run(context.Background(), ModeETF, Options{})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, store.finalizedRun.Status)
	assert.Equal(t, 3, store.finalizedRun.Succeeded)
	assert.Len(t, store.holdings["SCHD"], 2)
	assert.Len(t, store.holdings["VYM"], 1)

	// A fund the vendor returns nothing for keeps its previous snapshot.
	_, replaced := store.holdings["EMPTY"]
	assert.False(t, replaced)
}

func TestRunCleanup(t *testing.T) {
	cfg := testPipelineConfig(t)
	store := newFakeStore()
	store.priceDeleted = 10
	store.runDeleted = 3

	// One checkpoint file old enough to be reaped.
	old := filepath.Join(cfg.CheckpointDir, "prices.json")
	require.NoError(t, os.WriteFile(old, []byte("{}"), 0o644))
	stale := time.Now().Add(-14 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	p := newTestPipeline(Deps{Store: store}, cfg)

	err := p.Run(context.Background(), ModeCleanup, Options{})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, store.finalizedRun.Status)
	assert.Equal(t, 14, store.finalizedRun.Succeeded)
	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
}

func TestMarketOpen(t *testing.T) {
	assert.True(t, marketOpen(monday, false))
	assert.False(t, marketOpen(saturday, false))
	assert.False(t, marketOpen(saturday.AddDate(0, 0, 1), false)) // Sunday
	assert.True(t, marketOpen(saturday, true))
}
