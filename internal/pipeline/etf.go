package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dividendscout/pipeline/internal/batch"
	"github.com/dividendscout/pipeline/internal/models"
)

// runETF refreshes the holdings snapshot for every tracked ETF. Each
// fund's holdings are replaced wholesale inside one transaction.
func (p *Pipeline) runETF(ctx context.Context, run *models.PipelineRun, opts Options) error {
	funds, err := p.store.GetETFFunds(opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to load etf funds: %w", err)
	}
	if len(funds) == 0 {
		p.logger.Info("no etf funds tracked")
		return nil
	}

	optimizer := batch.New(batch.Config{
		Workers:        p.cfg.Workers,
		InitialChunk:   p.cfg.MinChunkSize,
		MinChunk:       1,
		MaxChunk:       p.cfg.MinChunkSize,
		TargetDuration: p.cfg.TargetChunkDuration,
		MaxAttempts:    p.cfg.MaxAttempts,
		BaseDelay:      p.cfg.RetryBaseDelay,
	}, p.logger)

	result, err := optimizer.Run(ctx, funds, p.etfChunk)
	run.Succeeded += result.Succeeded
	run.Failed += result.Failed
	if err != nil {
		return fmt.Errorf("etf sync interrupted: %w", err)
	}

	if result.Failed > 0 {
		p.logger.WithField("funds", result.FailedItems).Warn("etf holdings failed after retries")
		return ErrPartialFailure
	}
	return nil
}

func (p *Pipeline) etfChunk(ctx context.Context, funds []string) ([]string, error) {
	var failed []string
	for _, fund := range funds {
		start := time.Now()
		holdings, err := p.holdings.GetETFHoldings(ctx, fund)
		p.monitor.RecordCall("fmp/etf-holder", time.Since(start), err == nil)
		if err != nil {
			failed = append(failed, fund)
			continue
		}
		if len(holdings) == 0 {
			p.logger.WithField("fund", fund).Debug("vendor returned no holdings, keeping previous snapshot")
			continue
		}
		if err := p.store.ReplaceETFHoldings(fund, holdings); err != nil {
			return nil, fmt.Errorf("holdings replace failed for %s: %w", fund, err)
		}
	}
	return failed, nil
}
