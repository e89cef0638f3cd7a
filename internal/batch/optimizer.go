// Package batch implements the pipeline's batch optimizer: it splits a
// work list into chunks, dispatches chunks to a fixed worker pool,
// adapts the chunk size toward a target duration, and retries failed
// items with exponential backoff up to a fixed attempt count.
package batch

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ChunkFunc processes one chunk of items. It returns the items that
// failed individually; a non-nil error means the whole chunk failed.
type ChunkFunc func(ctx context.Context, items []string) (failed []string, err error)

// Config holds optimizer tuning parameters
type Config struct {
	Workers        int
	InitialChunk   int
	MinChunk       int
	MaxChunk       int
	TargetDuration time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Limiter        *rate.Limiter // optional, shared across workers
}

// DefaultConfig returns a sensible optimizer configuration
func DefaultConfig() Config {
	return Config{
		Workers:        8,
		InitialChunk:   100,
		MinChunk:       10,
		MaxChunk:       500,
		TargetDuration: 5 * time.Second,
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
	}
}

// Result holds aggregate counts for one optimizer run
type Result struct {
	Succeeded   int
	Failed      int
	Skipped     int
	Chunks      int
	FailedItems []string
}

// Optimizer coordinates chunked, rate-limited, retrying batch work
type Optimizer struct {
	cfg    Config
	logger *logrus.Logger

	mu        sync.Mutex
	chunkSize int
	rng       *rand.Rand

	// OnItemDone, when set, is invoked once per item after its final
	// outcome is known. Used for checkpointing and metrics.
	OnItemDone func(item string, err error)
}

// New creates a new Optimizer, applying defaults to zero-valued fields
func New(cfg Config, logger *logrus.Logger) *Optimizer {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.InitialChunk <= 0 {
		cfg.InitialChunk = def.InitialChunk
	}
	if cfg.MinChunk <= 0 {
		cfg.MinChunk = def.MinChunk
	}
	if cfg.MaxChunk < cfg.MinChunk {
		cfg.MaxChunk = def.MaxChunk
	}
	if cfg.TargetDuration <= 0 {
		cfg.TargetDuration = def.TargetDuration
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Optimizer{
		cfg:       cfg,
		logger:    logger,
		chunkSize: cfg.InitialChunk,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run processes all items through fn and returns aggregate counts.
// Items that still fail after MaxAttempts are listed in
// Result.FailedItems. A cancelled context stops dispatch; items never
// attempted are not counted as failed.
func (o *Optimizer) Run(ctx context.Context, items []string, fn ChunkFunc) (Result, error) {
	result := Result{}
	if len(items) == 0 {
		return result, nil
	}

	remaining := items
	attempts := make(map[string]int, len(items))

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if len(remaining) == 0 {
			break
		}
		if attempt > 1 {
			delay := backoffDelay(attempt-1, o.cfg.BaseDelay, o.cfg.MaxDelay, o.rng)
			o.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"items":   len(remaining),
				"delay":   delay,
			}).Warn("retrying failed items")
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}

		succeeded, failed, chunks, err := o.runPass(ctx, remaining, fn)
		result.Chunks += chunks
		for _, item := range remaining {
			attempts[item] = attempt
		}
		result.Succeeded += succeeded
		if err != nil {
			// Cancelled mid-pass: count what finished, leave the rest
			// unattempted.
			return result, err
		}
		remaining = failed
	}

	result.Failed = len(remaining)
	result.FailedItems = remaining
	sort.Strings(result.FailedItems)

	if o.OnItemDone != nil {
		for _, item := range result.FailedItems {
			o.OnItemDone(item, errMaxAttempts{attempts: attempts[item]})
		}
	}
	return result, nil
}

// runPass processes items once through the worker pool and returns the
// count that succeeded and the items that failed this pass
func (o *Optimizer) runPass(ctx context.Context, items []string, fn ChunkFunc) (succeeded int, failed []string, chunks int, err error) {
	chunkCh := make(chan []string)
	var wg sync.WaitGroup

	var resultMu sync.Mutex
	var allFailed []string
	var okCount int

	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range chunkCh {
				chunkFailed := o.processChunk(ctx, chunk, fn)
				resultMu.Lock()
				okCount += len(chunk) - len(chunkFailed)
				allFailed = append(allFailed, chunkFailed...)
				resultMu.Unlock()
			}
		}()
	}

	// Dispatch chunks, re-reading the adapted chunk size each time
	dispatchErr := func() error {
		defer close(chunkCh)
		pos := 0
		for pos < len(items) {
			size := o.currentChunkSize()
			end := pos + size
			if end > len(items) {
				end = len(items)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case chunkCh <- items[pos:end]:
				chunks++
				pos = end
			}
		}
		return nil
	}()

	wg.Wait()
	return okCount, allFailed, chunks, dispatchErr
}

// processChunk runs fn on one chunk, timing it to adapt the chunk size
func (o *Optimizer) processChunk(ctx context.Context, chunk []string, fn ChunkFunc) []string {
	if o.cfg.Limiter != nil {
		if err := o.cfg.Limiter.Wait(ctx); err != nil {
			return chunk
		}
	}

	start := time.Now()
	failed, err := fn(ctx, chunk)
	elapsed := time.Since(start)
	o.adaptChunkSize(len(chunk), elapsed)

	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"chunk_size": len(chunk),
			"elapsed":    elapsed,
		}).WithError(err).Warn("chunk failed")
		return chunk
	}

	if o.OnItemDone != nil {
		failedSet := make(map[string]bool, len(failed))
		for _, item := range failed {
			failedSet[item] = true
		}
		for _, item := range chunk {
			if !failedSet[item] {
				o.OnItemDone(item, nil)
			}
		}
	}
	return failed
}

// adaptChunkSize nudges the chunk size toward the target duration:
// slow chunks shrink the next chunk, fast chunks grow it, bounded by
// MinChunk and MaxChunk
func (o *Optimizer) adaptChunkSize(processed int, elapsed time.Duration) {
	if processed == 0 || elapsed == 0 {
		return
	}
	ratio := float64(o.cfg.TargetDuration) / float64(elapsed)
	// Dampen the adjustment so a single outlier chunk cannot swing the
	// size wildly.
	if ratio > 2 {
		ratio = 2
	}
	if ratio < 0.5 {
		ratio = 0.5
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	next := int(float64(o.chunkSize) * ratio)
	if next < o.cfg.MinChunk {
		next = o.cfg.MinChunk
	}
	if next > o.cfg.MaxChunk {
		next = o.cfg.MaxChunk
	}
	o.chunkSize = next
}

func (o *Optimizer) currentChunkSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.chunkSize
}

// ChunkSize returns the current adapted chunk size
func (o *Optimizer) ChunkSize() int {
	return o.currentChunkSize()
}

type errMaxAttempts struct {
	attempts int
}

func (e errMaxAttempts) Error() string {
	return "failed after maximum attempts"
}
