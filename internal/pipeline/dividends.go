package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dividendscout/pipeline/internal/batch"
	"github.com/dividendscout/pipeline/internal/checkpoint"
	"github.com/dividendscout/pipeline/internal/models"
)

// runDividends syncs the forward dividend calendar, refreshes per-
// symbol dividend histories, and promotes announced dividends whose
// ex-date has passed into the historical table.
func (p *Pipeline) runDividends(ctx context.Context, run *models.PipelineRun, opts Options) error {
	daysAhead := opts.DaysAhead
	if daysAhead <= 0 {
		daysAhead = p.cfg.DaysAhead
	}

	now := p.clock()
	from := now.Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, daysAhead)

	start := time.Now()
	calendar, err := p.dividends.GetDividendCalendar(ctx, from, to)
	p.monitor.RecordCall("fmp/dividend-calendar", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("failed to fetch dividend calendar: %w", err)
	}
	if err := p.store.UpsertFutureDividendBatch(calendar); err != nil {
		return fmt.Errorf("failed to upsert dividend calendar: %w", err)
	}
	p.logger.WithField("entries", len(calendar)).Info("dividend calendar synced")

	symbols, err := p.store.GetActiveSymbols(opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to load active symbols: %w", err)
	}

	ckpt, err := checkpoint.NewManager(p.cfg.CheckpointDir, "dividends", p.cfg.CheckpointEvery, p.logger)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint: %w", err)
	}
	work := ckpt.Filter(symbols)
	run.Skipped += len(symbols) - len(work)

	optimizer := batch.New(batch.Config{
		Workers:        p.cfg.Workers,
		InitialChunk:   p.cfg.InitialChunkSize,
		MinChunk:       p.cfg.MinChunkSize,
		MaxChunk:       p.cfg.MaxChunkSize,
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

	result, err := optimizer.Run(ctx, work, p.dividendChunk)
	run.Succeeded += result.Succeeded
	run.Failed += result.Failed
	if flushErr := ckpt.Flush(); flushErr != nil {
		p.logger.WithError(flushErr).Warn("failed to flush checkpoint")
	}
	if err != nil {
		return fmt.Errorf("dividend sync interrupted: %w", err)
	}

	promoted, err := p.store.PromotePastFutureDividends(from)
	if err != nil {
		return fmt.Errorf("failed to promote past dividends: %w", err)
	}
	if promoted > 0 {
		p.logger.WithField("promoted", promoted).Info("promoted past future dividends")
	}

	if result.Failed > 0 {
		p.logger.WithField("symbols", result.FailedItems).Warn("dividend histories failed after retries")
		return ErrPartialFailure
	}
	return ckpt.Clear()
}

// dividendChunk refreshes the dividend history for each symbol in the
// chunk. The vendor has no batched history endpoint, so this is one
// call per symbol; the optimizer's chunking still bounds retry scope
// and keeps the workers busy.
func (p *Pipeline) dividendChunk(ctx context.Context, symbols []string) ([]string, error) {
	var failed []string
	for _, symbol := range symbols {
		start := time.Now()
		history, err := p.dividends.GetHistoricalDividends(ctx, symbol)
		p.monitor.RecordCall("fmp/dividend-history", time.Since(start), err == nil)
		if err != nil {
			failed = append(failed, symbol)
			continue
		}
		if err := p.store.UpsertDividendBatch(history); err != nil {
			return nil, fmt.Errorf("dividend upsert failed for %s: %w", symbol, err)
		}
	}
	return failed, nil
}
