package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dividendscout/pipeline/internal/checkpoint"
	"github.com/dividendscout/pipeline/internal/models"
)

// runCleanup applies the retention policies: stale checkpoint files,
// old price bars, and old run records
func (p *Pipeline) runCleanup(ctx context.Context, run *models.PipelineRun) error {
	removed, err := checkpoint.CleanupOld(p.cfg.CheckpointDir, p.cfg.CheckpointMaxAge, p.logger)
	if err != nil {
		return fmt.Errorf("checkpoint cleanup failed: %w", err)
	}
	if removed > 0 {
		p.logger.WithField("files", removed).Info("removed stale checkpoints")
	}

	now := p.clock()
	prices, err := p.store.DeletePriceBarsOlderThan(now.Add(-p.cfg.PriceRetention))
	if err != nil {
		return fmt.Errorf("price retention failed: %w", err)
	}
	runs, err := p.store.DeletePipelineRunsOlderThan(now.Add(-p.cfg.RunRetention))
	if err != nil {
		return fmt.Errorf("run retention failed: %w", err)
	}

	run.Succeeded = removed + int(prices) + int(runs)
	p.logger.WithFields(logrus.Fields{
		"checkpoints": removed,
		"price_rows":  prices,
		"run_rows":    runs,
	}).Info("cleanup finished")
	return nil
}
