package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"

	"github.com/couchcryptid/prepbufr-etl/internal/domain"
	"github.com/couchcryptid/prepbufr-etl/internal/observability"
)

// Extractor reads every observation available for a run.
type Extractor interface {
	Extract(ctx context.Context) ([]domain.Observation, error)
}

// Committer is implemented by extractors that acknowledge consumed input
// once a run has been fully written.
type Committer interface {
	Commit(ctx context.Context) error
}

// Transformer encodes one bucket segment as a report batch. Warnings
// describe reports that were written with missing error estimates.
type Transformer interface {
	Transform(ctx context.Context, seg domain.Segment) (batch domain.ReportBatch, warnings []error, err error)
}

// BatchLoader writes a report batch to its destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, batch domain.ReportBatch) error
}

// Options controls how observations are split into output units.
type Options struct {
	Bucketer domain.Bucketer
	// Combined merges all platforms into one stream instead of one per platform.
	Combined bool
	// LoadAttempts is the number of tries per batch write. Default 3.
	LoadAttempts int
	// LoadBackoff is the delay before the first load retry. Default 200ms.
	LoadBackoff time.Duration
}

// Stats summarizes a completed run.
type Stats struct {
	RunID        string
	Observations int
	Segments     int
	Reports      int
	SubRecords   int
	Warnings     int
	Batches      []string
}

// Pipeline runs a single extract-bucket-assemble-load pass.
type Pipeline struct {
	extractor   Extractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	opts        Options
	ready       atomic.Bool

	mu      sync.Mutex
	lastRun *Stats
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.LoadAttempts < 1 {
		opts.LoadAttempts = 3
	}
	if opts.LoadBackoff <= 0 {
		opts.LoadBackoff = 200 * time.Millisecond
	}
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// LastRun returns the stats of the most recent successful run.
func (p *Pipeline) LastRun() (Stats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastRun == nil {
		return Stats{}, false
	}
	return *p.lastRun, true
}

// Run performs one pass: extract all observations, split them into
// streams and bucket segments, encode each segment and write it. Any
// structural error aborts the run before the source is committed.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	stats := Stats{RunID: uuid.NewString()}
	logger := p.logger.With("run_id", stats.RunID)
	start := time.Now()

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	logger.Info("pipeline run started",
		"bucket", p.opts.Bucketer.Duration,
		"alignment", p.opts.Bucketer.Alignment,
		"combined", p.opts.Combined,
	)

	obs, err := p.extractor.Extract(ctx)
	if err != nil {
		return stats, fmt.Errorf("extract: %w", err)
	}
	stats.Observations = len(obs)
	p.metrics.ObservationsConsumed.Add(float64(len(obs)))

	segments, err := p.segments(obs)
	if err != nil {
		return stats, err
	}
	stats.Segments = len(segments)

	for _, seg := range segments {
		p.metrics.SegmentSize.Observe(float64(len(seg.Observations)))

		batch, warnings, err := p.transformer.Transform(ctx, seg)
		if err != nil {
			p.metrics.TransformErrors.Inc()
			return stats, fmt.Errorf("assemble %s: %w", domain.BatchName(seg.Group, seg.Reference(), seg.Duration), err)
		}
		for _, w := range warnings {
			logger.Warn("observation errors left missing", "batch", batch.Name, "error", w)
			if errors.Is(w, domain.ErrPressureIndeterminate) {
				p.metrics.PressureIndeterminate.Inc()
			}
		}
		stats.Warnings += len(warnings)
		batch.RunID = stats.RunID

		if err := p.load(ctx, logger, batch); err != nil {
			return stats, err
		}

		stats.Reports += len(batch.Reports)
		stats.SubRecords += batch.SubRecords()
		stats.Batches = append(stats.Batches, batch.Name)
		p.metrics.ReportsProduced.Add(float64(len(batch.Reports)))
	}

	if c, ok := p.extractor.(Committer); ok {
		if err := c.Commit(ctx); err != nil {
			return stats, err
		}
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	p.mu.Lock()
	p.lastRun = &stats
	p.mu.Unlock()

	if len(obs) == 0 {
		logger.Info("no observations in window, nothing written")
	}
	logger.Info("pipeline run complete",
		"observations", stats.Observations,
		"segments", stats.Segments,
		"reports", stats.Reports,
		"sub_records", stats.SubRecords,
		"warnings", stats.Warnings,
		"duration", time.Since(start),
	)
	return stats, nil
}

// segments splits observations into per-platform streams (or one combined
// stream) and buckets each stream in order.
func (p *Pipeline) segments(obs []domain.Observation) ([]domain.Segment, error) {
	if len(obs) == 0 {
		return nil, nil
	}

	keys := []string{""}
	groups := map[string][]domain.Observation{"": obs}
	if !p.opts.Combined {
		keys, groups = domain.GroupByPlatform(obs)
	}

	var out []domain.Segment
	for _, k := range keys {
		segs, err := p.opts.Bucketer.Segment(k, groups[k])
		if err != nil {
			return nil, fmt.Errorf("bucket stream %q: %w", k, err)
		}
		out = append(out, segs...)
	}
	return out, nil
}

// load writes a batch, retrying with exponential backoff.
func (p *Pipeline) load(ctx context.Context, logger *slog.Logger, batch domain.ReportBatch) error {
	backoff := p.opts.LoadBackoff
	maxBackoff := 5 * time.Second

	var err error
	for attempt := 1; attempt <= p.opts.LoadAttempts; attempt++ {
		if err = p.loader.LoadBatch(ctx, batch); err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == p.opts.LoadAttempts {
			break
		}
		logger.Warn("load batch failed, retrying", "error", err, "batch", batch.Name, "attempt", attempt)
		if !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	logger.Error("load batch failed", "error", err, "batch", batch.Name, "reports", len(batch.Reports))
	return fmt.Errorf("load %s: %w", batch.Name, err)
}
