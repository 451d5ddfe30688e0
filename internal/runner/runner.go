// File: internal/runner/runner.go
// Description: The run loop. Fetches pending rows, drives each through the
// registration pipeline on one browser session, writes the outcome back and
// always tears the browser down, however the run ends.

package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/pipeline"
	"github.com/xkilldash9x/registrar/internal/records"
)

// Launcher starts a browser session. It is called at most once per run and
// only when there is work to do.
type Launcher func(ctx context.Context) (pipeline.Session, error)

// Recorder keeps a durable history of outcomes.
type Recorder interface {
	Record(ctx context.Context, runID string, outcome records.RunOutcome) error
}

// Options tune a Runner.
type Options struct {
	DelayMin time.Duration
	DelayMax time.Duration
	// Limit caps the records processed per run; zero means no cap.
	Limit    int
	Recorder Recorder
	Rand     *rand.Rand
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Processed int
	Succeeded int
	Failed    int
	Outcomes  []records.RunOutcome
}

func (s *Summary) add(o records.RunOutcome) {
	s.Processed++
	if o.Succeeded() {
		s.Succeeded++
	} else {
		s.Failed++
	}
	s.Outcomes = append(s.Outcomes, o)
}

// Runner processes pending records strictly one after another.
type Runner struct {
	source records.Source
	sink   records.Sink
	launch Launcher
	pipe   *pipeline.Pipeline
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	state State
	rng   *rand.Rand
}

// New creates a Runner. Every dependency except Options.Recorder is required.
func New(source records.Source, sink records.Sink, launch Launcher, pipe *pipeline.Pipeline, logger *zap.Logger, opts Options) (*Runner, error) {
	if source == nil ||
		sink == nil ||
		launch == nil ||
		pipe == nil ||
		logger == nil {
		return nil, errors.New("cannot initialize runner with nil dependencies")
	}
	if opts.DelayMin < 0 || opts.DelayMax < opts.DelayMin {
		return nil, fmt.Errorf("invalid delay range [%s, %s]", opts.DelayMin, opts.DelayMax)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Runner{
		source: source,
		sink:   sink,
		launch: launch,
		pipe:   pipe,
		opts:   opts,
		logger: logger.Named("runner"),
		rng:    rng,
	}, nil
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) transition(logger *zap.Logger, to State) {
	r.mu.Lock()
	from := r.state
	r.state = to
	r.mu.Unlock()
	logger.Debug("State transition.", zap.Stringer("from", from), zap.Stringer("to", to))
}

// Run executes one pass over the pending records. A source failure is fatal
// and returned. Per-record failures are written to the sink and counted, never
// returned. The browser session, once launched, is closed on every exit path
// including panics.
func (r *Runner) Run(ctx context.Context) (summary Summary, err error) {
	summary.RunID = uuid.New().String()
	logger := r.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("Run starting.")

	r.transition(logger, StateFetchingRecords)
	items, err := r.source.FetchPending(ctx)
	if err != nil {
		r.transition(logger, StateClosed)
		return summary, fmt.Errorf("fetch pending records: %w", err)
	}
	if r.opts.Limit > 0 && len(items) > r.opts.Limit {
		logger.Info("Limiting records for this run.", zap.Int("pending", len(items)), zap.Int("limit", r.opts.Limit))
		items = items[:r.opts.Limit]
	}
	if len(items) == 0 {
		logger.Info("No pending records.")
		r.transition(logger, StateDrained)
		r.transition(logger, StateClosed)
		return summary, nil
	}
	logger.Info("Pending records fetched.", zap.Int("count", len(items)))

	var session pipeline.Session
	defer func() {
		if session != nil {
			if cerr := session.Close(); cerr != nil {
				logger.Warn("Browser cleanup failed.", zap.Error(cerr))
			} else {
				logger.Debug("Browser session closed.")
			}
		}
		r.transition(logger, StateClosed)
		logger.Info("Run finished.",
			zap.Int("processed", summary.Processed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
		)
	}()

	session, err = r.launch(ctx)
	if err != nil {
		session = nil
		return summary, fmt.Errorf("launch browser: %w", err)
	}
	r.transition(logger, StateIdle)

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		r.transition(logger, StateProcessingRecord)
		outcome, cancelled := r.process(ctx, logger, summary.RunID, session, item)
		if cancelled {
			logger.Info("Record interrupted; leaving it pending.", zap.Int("row", item.RowNumber))
			break
		}
		summary.add(outcome)
		if outcome.Succeeded() {
			r.transition(logger, StateSucceeded)
		} else {
			r.transition(logger, StateFailed)
		}
		r.transition(logger, StateIdle)

		if i < len(items)-1 {
			d := r.delay()
			logger.Debug("Waiting before next record.", zap.Duration("delay", d))
			if pipeline.Wait(ctx, d) != nil {
				break
			}
		}
	}

	r.transition(logger, StateDrained)
	return summary, ctx.Err()
}

// process runs the pipeline for one record and writes its outcome. It
// reports cancelled when the record was interrupted by the run context, in
// which case nothing is written.
func (r *Runner) process(ctx context.Context, logger *zap.Logger, runID string, s pipeline.Session, item records.WorkItem) (records.RunOutcome, bool) {
	logger = logger.With(zap.Int("row", item.RowNumber))
	logger.Info("Processing record.")

	attempt := &pipeline.Attempt{Item: item}
	rep := r.pipe.Run(ctx, s, attempt)

	outcome := records.RunOutcome{RowNumber: item.RowNumber}
	if rep.Succeeded() {
		outcome.FinalStatus = records.StatusInProgress
		outcome.EmailUsed = attempt.Email
	} else {
		if res, _ := rep.Failed(); res.Code == pipeline.CodeCancelled {
			return outcome, true
		}
		outcome.FinalStatus = records.StatusFailed
		outcome.ErrorDetail = rep.Failure()
	}

	r.writeOutcome(ctx, logger, outcome)
	if r.opts.Recorder != nil {
		if err := r.opts.Recorder.Record(ctx, runID, outcome); err != nil {
			logger.Warn("Failed to journal outcome.", zap.Error(err))
		}
	}
	logger.Info("Record finished.", zap.String("status", string(outcome.FinalStatus)))
	return outcome, false
}

// writeOutcome pushes the outcome to the sink. Sink failures are logged and
// otherwise ignored.
func (r *Runner) writeOutcome(ctx context.Context, logger *zap.Logger, o records.RunOutcome) {
	if err := r.sink.UpdateStatus(ctx, o.RowNumber, o.FinalStatus); err != nil {
		logger.Warn("Status write failed.", zap.Error(err))
	}
	if o.Succeeded() {
		if o.EmailUsed == "" {
			return
		}
		if err := r.sink.RecordEmail(ctx, o.RowNumber, o.EmailUsed); err != nil {
			logger.Warn("Email write failed.", zap.Error(err))
		}
		return
	}
	if err := r.sink.RecordError(ctx, o.RowNumber, o.ErrorDetail); err != nil {
		logger.Warn("Error write failed.", zap.Error(err))
	}
}

// delay draws uniformly from [DelayMin, DelayMax].
func (r *Runner) delay() time.Duration {
	span := r.opts.DelayMax - r.opts.DelayMin
	if span <= 0 {
		return r.opts.DelayMin
	}
	r.mu.Lock()
	n := r.rng.Int63n(int64(span) + 1)
	r.mu.Unlock()
	return r.opts.DelayMin + time.Duration(n)
}
