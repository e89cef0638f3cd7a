// Package pipeline orchestrates the data update runs: it loads work
// from the symbol store, drives the vendor clients through the batch
// optimizer, consults the checkpoint manager for resume, and upserts
// the results. Failure handling follows three severities: critical
// errors abort the run, per-item failures are retried then recorded,
// and a held run lock means another invocation is in flight.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dividendscout/pipeline/internal/config"
	"github.com/dividendscout/pipeline/internal/metrics"
	"github.com/dividendscout/pipeline/internal/models"
	"github.com/dividendscout/pipeline/internal/runlock"
)

// Pipeline modes
const (
	ModeUpdate    = "update"
	ModeDiscover  = "discover"
	ModeDividends = "dividends"
	ModeETF       = "etf"
	ModeCleanup   = "cleanup"
)

// ErrPartialFailure marks a run that finished but recorded item
// failures; callers should exit non-zero
var ErrPartialFailure = errors.New("run completed with errors")

// ErrLockHeld mirrors runlock.ErrLockHeld so callers can branch without
// importing runlock
var ErrLockHeld = runlock.ErrLockHeld

// Store is the database surface the pipeline writes through
type Store interface {
	GetActiveSymbols(limit int) ([]string, error)
	GetStaleSymbols(cutoff time.Time, limit int) ([]string, error)
	TouchSymbols(symbols []string, at time.Time) error
	UpsertSymbolBatch(symbols []*models.Symbol) error
	GetExcludedSymbols() (map[string]bool, error)
	UpsertPriceBarBatch(bars []*models.PriceBar) error
	UpsertDividendBatch(dividends []*models.DividendEvent) error
	UpsertFutureDividendBatch(dividends []*models.FutureDividend) error
	PromotePastFutureDividends(asOf time.Time) (int64, error)
	GetETFFunds(limit int) ([]string, error)
	ReplaceETFHoldings(fundSymbol string, holdings []*models.ETFHolding) error
	CreatePipelineRun(r *models.PipelineRun) error
	FinalizePipelineRun(r *models.PipelineRun) error
	DeletePriceBarsOlderThan(date time.Time) (int64, error)
	DeletePipelineRunsOlderThan(cutoff time.Time) (int64, error)
}

// QuoteSource provides batched end-of-day quotes (FMP)
type QuoteSource interface {
	GetBatchQuotes(ctx context.Context, symbols []string) ([]*models.PriceBar, error)
}

// FallbackQuoteSource provides per-symbol quotes for symbols missing
// from a batch response (Yahoo)
type FallbackQuoteSource interface {
	FetchLatestBar(ctx context.Context, symbol string) (*models.PriceBar, error)
}

// DirectorySource provides the vendor's tradable symbol list (FMP)
type DirectorySource interface {
	GetSymbolDirectory(ctx context.Context) ([]*models.Symbol, error)
}

// DividendSource provides dividend calendars and histories (FMP)
type DividendSource interface {
	GetDividendCalendar(ctx context.Context, from, to time.Time) ([]*models.FutureDividend, error)
	GetHistoricalDividends(ctx context.Context, symbol string) ([]*models.DividendEvent, error)
}

// HoldingsSource provides ETF holding snapshots (FMP)
type HoldingsSource interface {
	GetETFHoldings(ctx context.Context, fundSymbol string) ([]*models.ETFHolding, error)
}

// ProfileSource enriches symbol records during discovery
// (Alpha Vantage, budget-limited)
type ProfileSource interface {
	GetCompanyOverview(ctx context.Context, symbol string) (*models.Symbol, error)
}

// EventPublisher publishes run lifecycle and discovery events
type EventPublisher interface {
	PublishRunStarted(ctx context.Context, run *models.PipelineRun) error
	PublishRunCompleted(ctx context.Context, run *models.PipelineRun) error
	PublishSymbolDiscovered(ctx context.Context, symbol string) error
}

// RunPermit guards against concurrent pipeline invocations
type RunPermit interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Options holds per-invocation settings from the CLI
type Options struct {
	Limit     int  // cap on symbols processed, 0 for unlimited
	DaysAhead int  // dividend calendar window
	ForceRun  bool // bypass the market-hours gate
}

// Pipeline wires the stores, sources, and optimization layer together
type Pipeline struct {
	store     Store
	quotes    QuoteSource
	fallback  FallbackQuoteSource
	directory DirectorySource
	dividends DividendSource
	holdings  HoldingsSource
	profiles  ProfileSource
	publisher EventPublisher
	permit    RunPermit
	monitor   *metrics.Monitor
	cfg       config.PipelineConfig
	logger    *logrus.Logger
	clock     func() time.Time
}

// Deps bundles the pipeline's collaborators. Publisher, permit, and
// profiles are optional.
type Deps struct {
	Store     Store
	Quotes    QuoteSource
	Fallback  FallbackQuoteSource
	Directory DirectorySource
	Dividends DividendSource
	Holdings  HoldingsSource
	Profiles  ProfileSource
	Publisher EventPublisher
	Permit    RunPermit
	Monitor   *metrics.Monitor
	Logger    *logrus.Logger
}

// New creates a pipeline
func New(deps Deps, cfg config.PipelineConfig) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	monitor := deps.Monitor
	if monitor == nil {
		monitor = metrics.NewMonitor("", nil)
	}
	return &Pipeline{
		store:     deps.Store,
		quotes:    deps.Quotes,
		fallback:  deps.Fallback,
		directory: deps.Directory,
		dividends: deps.Dividends,
		holdings:  deps.Holdings,
		profiles:  deps.Profiles,
		publisher: deps.Publisher,
		permit:    deps.Permit,
		monitor:   monitor,
		cfg:       cfg,
		logger:    logger,
		clock:     time.Now,
	}
}

// Run executes one pipeline mode end to end. It returns nil on full
// success, ErrLockHeld when another invocation is in flight,
// ErrPartialFailure when the run finished with recorded item failures,
// and a wrapped error for critical failures.
func (p *Pipeline) Run(ctx context.Context, mode string, opts Options) error {
	if mode == ModeUpdate && !marketOpen(p.clock(), opts.ForceRun) {
		p.logger.Info("market closed, skipping update run (set FORCE_RUN=true to override)")
		return nil
	}

	if p.permit != nil {
		if err := p.permit.Acquire(ctx); err != nil {
			if errors.Is(err, runlock.ErrLockHeld) {
				p.logger.Warn("another run is in flight, exiting")
				return ErrLockHeld
			}
			return fmt.Errorf("failed to acquire run permit: %w", err)
		}
		defer func() {
			if err := p.permit.Release(context.Background()); err != nil {
				p.logger.WithError(err).Warn("failed to release run permit")
			}
		}()
	}

	run := &models.PipelineRun{Mode: mode, Status: models.RunStatusRunning}
	if err := p.store.CreatePipelineRun(run); err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	if p.publisher != nil {
		if err := p.publisher.PublishRunStarted(ctx, run); err != nil {
			p.logger.WithError(err).Warn("failed to publish run started event")
		}
	}

	// The monitor may outlive this run (the scheduler daemon reuses its
	// sink), so record only the calls this run added.
	callsBefore := p.monitor.TotalCalls()

	p.monitor.StartPhase(mode)
	var runErr error
	switch mode {
	case ModeUpdate:
		runErr = p.runUpdate(ctx, run, opts)
	case ModeDiscover:
		runErr = p.runDiscover(ctx, run, opts)
	case ModeDividends:
		runErr = p.runDividends(ctx, run, opts)
	case ModeETF:
		runErr = p.runETF(ctx, run, opts)
	case ModeCleanup:
		runErr = p.runCleanup(ctx, run)
	default:
		runErr = fmt.Errorf("unknown pipeline mode: %q", mode)
	}
	p.monitor.EndPhase(mode)

	run.APICalls = p.monitor.TotalCalls() - callsBefore
	switch {
	case runErr == nil && run.Failed == 0:
		run.Status = models.RunStatusCompleted
	case runErr == nil || errors.Is(runErr, ErrPartialFailure):
		run.Status = models.RunStatusCompletedWithError
		runErr = ErrPartialFailure
	default:
		run.Status = models.RunStatusFailed
	}

	if err := p.store.FinalizePipelineRun(run); err != nil {
		p.logger.WithError(err).Error("failed to record run outcome")
	}
	if p.publisher != nil {
		// The run context may already be cancelled; the completion
		// event still has to go out, like the permit release above.
		if err := p.publisher.PublishRunCompleted(context.Background(), run); err != nil {
			p.logger.WithError(err).Warn("failed to publish run completed event")
		}
	}
	if err := p.monitor.Flush(); err != nil {
		p.logger.WithError(err).Warn("failed to flush run metrics")
	}

	p.logger.WithFields(logrus.Fields{
		"mode":      mode,
		"status":    run.Status,
		"succeeded": run.Succeeded,
		"failed":    run.Failed,
		"skipped":   run.Skipped,
		"api_calls": run.APICalls,
	}).Info("run finished")
	return runErr
}

// marketOpen reports whether the update run should proceed. US markets
// are closed on weekends; there is no point refreshing EOD data then.
func marketOpen(now time.Time, force bool) bool {
	if force {
		return true
	}
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}
