package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dividendscout/pipeline/internal/models"
	"github.com/dividendscout/pipeline/internal/clients/alphavantage"
)

// runDiscover pulls the vendor symbol directory, drops excluded
// tickers, and upserts the rest. Newly seen symbols are announced on
// the events topic and opportunistically enriched with sector/industry
// data until the Alpha Vantage budget runs out.
func (p *Pipeline) runDiscover(ctx context.Context, run *models.PipelineRun, opts Options) error {
	start := time.Now()
	directory, err := p.directory.GetSymbolDirectory(ctx)
	p.monitor.RecordCall("fmp/stock-list", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("failed to fetch symbol directory: %w", err)
	}

	excluded, err := p.store.GetExcludedSymbols()
	if err != nil {
		return fmt.Errorf("failed to load exclusions: %w", err)
	}
	known, err := p.store.GetActiveSymbols(0)
	if err != nil {
		return fmt.Errorf("failed to load known symbols: %w", err)
	}
	knownSet := make(map[string]bool, len(known))
	for _, s := range known {
		knownSet[s] = true
	}

	var keep []*models.Symbol
	var fresh []string
	for _, s := range directory {
		if excluded[s.Symbol] {
			run.Skipped++
			continue
		}
		if opts.Limit > 0 && len(keep) >= opts.Limit {
			break
		}
		keep = append(keep, s)
		if !knownSet[s.Symbol] {
			fresh = append(fresh, s.Symbol)
		}
	}

	if err := p.store.UpsertSymbolBatch(keep); err != nil {
		return fmt.Errorf("failed to upsert symbols: %w", err)
	}
	run.Succeeded += len(keep)

	if p.publisher != nil {
		for _, symbol := range fresh {
			if err := p.publisher.PublishSymbolDiscovered(ctx, symbol); err != nil {
				p.logger.WithField("symbol", symbol).WithError(err).Warn("failed to publish discovery event")
			}
		}
	}
	p.logger.WithFields(logrus.Fields{
		"total": len(keep),
		"new":   len(fresh),
	}).Info("symbol directory synced")

	p.enrichProfiles(ctx, fresh)
	return nil
}

// enrichProfiles fills in sector/industry for newly discovered symbols
// until the profile source's daily budget is exhausted. Enrichment is
// best-effort: failures never fail the run.
func (p *Pipeline) enrichProfiles(ctx context.Context, symbols []string) {
	if p.profiles == nil {
		return
	}
	for _, symbol := range symbols {
		start := time.Now()
		profile, err := p.profiles.GetCompanyOverview(ctx, symbol)
		if err != nil {
			var exhausted alphavantage.ErrBudgetExhausted
			if errors.As(err, &exhausted) {
				p.logger.WithField("budget", exhausted.Budget).Info("profile budget exhausted, stopping enrichment")
				return
			}
			p.monitor.RecordCall("alphavantage/overview", time.Since(start), false)
			p.logger.WithField("symbol", symbol).WithError(err).Debug("profile enrichment failed")
			continue
		}
		p.monitor.RecordCall("alphavantage/overview", time.Since(start), true)
		if err := p.store.UpsertSymbolBatch([]*models.Symbol{profile}); err != nil {
			p.logger.WithField("symbol", symbol).WithError(err).Warn("failed to store enriched profile")
		}
	}
}
