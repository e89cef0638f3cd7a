package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dividendscout/pipeline/internal/batch"
	"github.com/dividendscout/pipeline/internal/checkpoint"
	"github.com/dividendscout/pipeline/internal/models"
	"github.com/dividendscout/pipeline/internal/clients/fmp"
)

// runUpdate refreshes end-of-day prices for every stale active symbol.
// One batch quote call covers a whole chunk; symbols missing from the
// batch response fall back to a per-symbol Yahoo fetch.
func (p *Pipeline) runUpdate(ctx context.Context, run *models.PipelineRun, opts Options) error {
	active, err := p.store.GetActiveSymbols(opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to load active symbols: %w", err)
	}
	cutoff := p.clock().Add(-p.cfg.StalenessWindow)
	stale, err := p.store.GetStaleSymbols(cutoff, opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to load stale symbols: %w", err)
	}

	// Symbols refreshed within the window are skipped outright; each
	// would otherwise have cost at least one vendor call. Counted by
	// set difference because opts.Limit caps both queries independently.
	staleSet := make(map[string]bool, len(stale))
	for _, s := range stale {
		staleSet[s] = true
	}
	var fresh int
	for _, s := range active {
		if !staleSet[s] {
			fresh++
		}
	}
	if fresh > 0 {
		run.Skipped += fresh
		p.monitor.RecordOptimization("staleness_filter", fresh, 0)
	}

	ckpt, err := checkpoint.NewManager(p.cfg.CheckpointDir, "prices", p.cfg.CheckpointEvery, p.logger)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint: %w", err)
	}
	work := ckpt.Filter(stale)
	run.Skipped += len(stale) - len(work)

	if len(work) == 0 {
		p.logger.Info("no symbols need updating")
		return ckpt.Clear()
	}

	maxChunk := p.cfg.MaxChunkSize
	if maxChunk > fmp.MaxBatchQuoteSize {
		maxChunk = fmp.MaxBatchQuoteSize
	}
	initialChunk := p.cfg.InitialChunkSize
	if initialChunk > maxChunk {
		initialChunk = maxChunk
	}
	optimizer := batch.New(batch.Config{
		Workers:        p.cfg.Workers,
		InitialChunk:   initialChunk,
		MinChunk:       p.cfg.MinChunkSize,
		MaxChunk:       maxChunk,
		TargetDuration: p.cfg.TargetChunkDuration,
		MaxAttempts:    p.cfg.MaxAttempts,
		BaseDelay:      p.cfg.RetryBaseDelay,
	}, p.logger)

	var ckptMu sync.Mutex
	optimizer.OnItemDone = func(item string, err error) {
		if err != nil {
			return
		}
		ckptMu.Lock()
		defer ckptMu.Unlock()
		if err := ckpt.Mark(item); err != nil {
			p.logger.WithField("symbol", item).WithError(err).Warn("failed to checkpoint")
		}
	}

	result, err := optimizer.Run(ctx, work, p.updateChunk)
	run.Succeeded += result.Succeeded
	run.Failed += result.Failed
	if flushErr := ckpt.Flush(); flushErr != nil {
		p.logger.WithError(flushErr).Warn("failed to flush checkpoint")
	}
	if err != nil {
		return fmt.Errorf("update interrupted: %w", err)
	}

	if result.Failed > 0 {
		p.logger.WithField("symbols", result.FailedItems).Warn("symbols failed after retries")
		return ErrPartialFailure
	}

	// Full success: next run starts fresh.
	return ckpt.Clear()
}

// updateChunk fetches one chunk of symbols with a single batch quote
// call, falls back per symbol for anything the batch omitted, and
// upserts the bars
func (p *Pipeline) updateChunk(ctx context.Context, symbols []string) ([]string, error) {
	start := time.Now()
	bars, err := p.quotes.GetBatchQuotes(ctx, symbols)
	p.monitor.RecordCall("fmp/quote", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("batch quote failed: %w", err)
	}
	// One batch call replaced a call per symbol.
	if len(symbols) > 1 {
		p.monitor.RecordOptimization("batch_eod", len(symbols)-1, 0)
	}

	got := make(map[string]bool, len(bars))
	for _, bar := range bars {
		got[bar.Symbol] = true
	}

	var failed []string
	for _, symbol := range symbols {
		if got[symbol] {
			continue
		}
		bar, err := p.fetchFallback(ctx, symbol)
		if err != nil {
			p.logger.WithField("symbol", symbol).WithError(err).Debug("fallback fetch failed")
			failed = append(failed, symbol)
			continue
		}
		bars = append(bars, bar)
	}

	if err := p.store.UpsertPriceBarBatch(bars); err != nil {
		return nil, fmt.Errorf("price upsert failed: %w", err)
	}

	failedSet := make(map[string]bool, len(failed))
	for _, s := range failed {
		failedSet[s] = true
	}
	touched := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if !failedSet[s] {
			touched = append(touched, s)
		}
	}
	if err := p.store.TouchSymbols(touched, p.clock()); err != nil {
		return nil, fmt.Errorf("failed to touch symbols: %w", err)
	}
	return failed, nil
}

func (p *Pipeline) fetchFallback(ctx context.Context, symbol string) (*models.PriceBar, error) {
	if p.fallback == nil {
		return nil, fmt.Errorf("no quote for %s and no fallback source", symbol)
	}
	start := time.Now()
	bar, err := p.fallback.FetchLatestBar(ctx, symbol)
	p.monitor.RecordCall("yahoo/chart", time.Since(start), err == nil)
	return bar, err
}
