// Package batch drives enrichment over a list of records, committing output
// and a checkpoint at flush points so an interrupted run resumes exactly
// where it stopped.
package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orgenrich/internal/dataset"
	"github.com/sells-group/orgenrich/internal/metrics"
	"github.com/sells-group/orgenrich/internal/model"
	"github.com/sells-group/orgenrich/internal/resilience"
)

// State is the driver lifecycle state.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateCompleted
	StateInterrupted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateInterrupted:
		return "INTERRUPTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ErrInterrupted is returned when the run stopped on context cancellation.
// Output and checkpoint were flushed at the last completed record.
var ErrInterrupted = eris.New("batch: interrupted")

// Enricher produces the enrichment result for one record. A non-nil error
// aborts the run.
type Enricher interface {
	Enrich(ctx context.Context, rec model.Record) (model.EnrichmentResult, error)
}

// Flusher persists buffered state at flush points. *cache.Cache satisfies it.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Options configures a Driver.
type Options struct {
	OutputPath string
	// CheckpointPath defaults to DefaultCheckpointPath(OutputPath).
	CheckpointPath string

	// FlushEvery commits after this many records. Default: 50.
	FlushEvery int
	// FlushInterval commits when this much time passed since the last flush.
	// Default: 30s.
	FlushInterval time.Duration

	Resume bool

	// EnrichmentKey is the record key the result is stored under.
	// Default: "enrichment".
	EnrichmentKey string

	// Cache is flushed before output at every flush point.
	Cache Flusher

	Metrics         *metrics.Metrics
	MetricsTextfile string

	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.CheckpointPath == "" {
		o.CheckpointPath = DefaultCheckpointPath(o.OutputPath)
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = 50
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 30 * time.Second
	}
	if o.EnrichmentKey == "" {
		o.EnrichmentKey = "enrichment"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Driver runs one batch. A Driver is single-use.
type Driver struct {
	enricher Enricher
	opts     Options
	state    State
	runID    string

	input   *dataset.Dataset
	output  []model.Record
	summary Summary
}

// NewDriver creates a driver.
func NewDriver(e Enricher, opts Options) *Driver {
	return &Driver{
		enricher: e,
		opts:     opts.withDefaults(),
		state:    StateNotStarted,
		runID:    uuid.NewString(),
	}
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return d.state
}

// RunID identifies this run in logs and the checkpoint.
func (d *Driver) RunID() string {
	return d.runID
}

// Run enriches input from the checkpoint onward. It returns ErrInterrupted
// when ctx is canceled, a persistence error when output, checkpoint or
// cache could not be written, and nil once every record is committed.
func (d *Driver) Run(ctx context.Context, input *dataset.Dataset) (summary Summary, err error) {
	if d.state != StateNotStarted {
		return d.summary, eris.Errorf("batch: driver already %s", d.state)
	}
	if d.opts.OutputPath == "" {
		return d.summary, eris.New("batch: output path is required")
	}
	started := d.opts.Now()
	d.input = input
	d.summary = Summary{RunID: d.runID, Total: len(input.Records)}

	start, err := d.restore()
	if err != nil {
		d.state = StateFailed
		d.summary.State = d.state
		return d.summary, err
	}

	d.state = StateRunning
	log := zap.L().With(zap.String("run_id", d.runID))
	log.Info("batch started",
		zap.String("input", input.Path),
		zap.Int("total", len(input.Records)),
		zap.Int("start", start),
		zap.Bool("resume", d.opts.Resume),
	)

	defer func() {
		d.summary.State = d.state
		d.summary.Duration = d.opts.Now().Sub(started)
		summary = d.summary
	}()

	defer func() {
		if r := recover(); r != nil {
			d.state = StateFailed
			if ferr := d.flush(ctx); ferr != nil {
				log.Error("flush after panic failed", zap.Error(ferr))
			}
			panic(r)
		}
	}()

	lastFlush := d.opts.Now()
	pending := 0
	for i := start; i < len(input.Records); i++ {
		if ctx.Err() != nil {
			return d.summary, d.interrupt(ctx, log)
		}

		t0 := time.Now()
		res, err := d.enricher.Enrich(ctx, input.Records[i])
		if err != nil {
			if ctx.Err() != nil || resilience.IsCanceled(err) {
				// The in-flight record is abandoned and re-run on resume.
				return d.summary, d.interrupt(ctx, log)
			}
			return d.summary, d.fail(ctx, log, eris.Wrapf(err, "batch: record %d", i))
		}

		merged, err := model.Merge(input.Records[i], d.opts.EnrichmentKey, res)
		if err != nil {
			return d.summary, d.fail(ctx, log, eris.Wrapf(err, "batch: record %d", i))
		}
		d.output = append(d.output, merged)
		d.summary.Add(res.Status, res.Reason)
		d.opts.Metrics.ObserveRecord(string(res.Status), string(res.Reason), time.Since(t0))

		log.Info("record processed",
			zap.Int("index", i),
			zap.String("status", string(res.Status)),
			zap.String("reason", string(res.Reason)),
			zap.Int("staff", len(res.Staff)),
		)

		pending++
		if pending >= d.opts.FlushEvery || d.opts.Now().Sub(lastFlush) >= d.opts.FlushInterval {
			if err := d.flush(ctx); err != nil {
				return d.summary, d.fail(ctx, log, err)
			}
			pending = 0
			lastFlush = d.opts.Now()
		}
	}

	if err := d.flush(ctx); err != nil {
		return d.summary, d.fail(ctx, log, err)
	}
	d.state = StateCompleted
	log.Info("batch completed", summaryFields(d.summary)...)
	return d.summary, nil
}

// restore prepares output and returns the index to start at.
func (d *Driver) restore() (int, error) {
	total := len(d.input.Records)
	if !d.opts.Resume {
		d.output = make([]model.Record, 0, total)
		return 0, nil
	}

	cp, err := LoadCheckpoint(d.opts.CheckpointPath)
	if err != nil {
		return 0, err
	}
	if cp == nil || cp.Processed == 0 {
		d.output = make([]model.Record, 0, total)
		return 0, nil
	}
	if err := cp.CompatibleWith(d.input.SHA256, total); err != nil {
		return 0, err
	}

	snapshot, err := ReadSnapshot(d.opts.OutputPath)
	if err != nil {
		return 0, err
	}
	if len(snapshot) < cp.Processed {
		return 0, eris.Errorf("batch: snapshot %s holds %d records but checkpoint says %d",
			d.opts.OutputPath, len(snapshot), cp.Processed)
	}
	if len(snapshot) > cp.Processed {
		zap.L().Warn("discarding snapshot records beyond checkpoint",
			zap.Int("snapshot", len(snapshot)),
			zap.Int("processed", cp.Processed),
		)
	}

	d.output = make([]model.Record, 0, total)
	d.output = append(d.output, snapshot[:cp.Processed]...)
	carried := Summarize(d.output, d.opts.EnrichmentKey)
	carried.RunID, carried.Total = d.runID, total
	carried.Resumed = cp.Processed
	d.summary = carried
	return cp.Processed, nil
}

// flush commits cache, output and checkpoint, in that order, so the
// checkpoint never points past durable output.
func (d *Driver) flush(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	if d.opts.Cache != nil {
		if err := d.opts.Cache.Flush(ctx); err != nil {
			return err
		}
	}
	if err := WriteSnapshot(d.opts.OutputPath, d.output); err != nil {
		return resilience.Persistence("batch.output", err)
	}
	cp := Checkpoint{
		Processed:   len(d.output),
		Total:       len(d.input.Records),
		InputSHA256: d.input.SHA256,
		RunID:       d.runID,
		UpdatedAt:   d.opts.Now().UTC(),
	}
	if err := cp.Save(d.opts.CheckpointPath); err != nil {
		return resilience.Persistence("batch.checkpoint", err)
	}

	d.opts.Metrics.ObserveFlush(cp.Processed, cp.Total)
	if err := d.opts.Metrics.WriteTextfile(d.opts.MetricsTextfile); err != nil {
		zap.L().Warn("metrics textfile not written", zap.Error(err))
	}

	zap.L().Info("checkpoint flushed",
		zap.String("run_id", d.runID),
		zap.Int("processed", cp.Processed),
		zap.Int("total", cp.Total),
		zap.Int("enriched", d.summary.Enriched),
		zap.Int("not_found", d.summary.NotFound+d.summary.NoIdentity),
		zap.Int("failed", d.summary.Failed()),
	)
	return nil
}

func (d *Driver) interrupt(ctx context.Context, log *zap.Logger) error {
	if err := d.flush(ctx); err != nil {
		d.state = StateFailed
		log.Error("flush on interrupt failed", zap.Error(err))
		return err
	}
	d.state = StateInterrupted
	log.Warn("batch interrupted", summaryFields(d.summary)...)
	return ErrInterrupted
}

func (d *Driver) fail(ctx context.Context, log *zap.Logger, cause error) error {
	d.state = StateFailed
	// Best effort: keep whatever completed before the failure.
	if err := d.flush(ctx); err != nil {
		log.Error("flush after failure failed", zap.Error(err))
	}
	log.Error("batch failed", zap.Error(cause))
	return cause
}

func summaryFields(s Summary) []zap.Field {
	return []zap.Field{
		zap.Int("total", s.Total),
		zap.Int("processed", s.Processed),
		zap.Int("resumed", s.Resumed),
		zap.Int("enriched", s.Enriched),
		zap.Int("not_found", s.NotFound),
		zap.Int("no_identity", s.NoIdentity),
		zap.Int("rate_limited", s.RateLimited),
		zap.Int("network_error", s.NetworkError),
		zap.Int("errored", s.Errored),
	}
}
