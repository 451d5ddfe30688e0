// Package pipeline runs an ordered list of steps against a browser session,
// stopping at the first failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// StepResult is the outcome of one executed step.
type StepResult struct {
	Step      string
	Succeeded bool
	Detail    string
	Code      ErrorCode
	Duration  time.Duration
}

// Report collects the results of the steps that ran, in order.
type Report struct {
	Results []StepResult
	Planned int
}

// Failed returns the failing result, if any. Only the last result can fail.
func (r Report) Failed() (StepResult, bool) {
	if n := len(r.Results); n > 0 && !r.Results[n-1].Succeeded {
		return r.Results[n-1], true
	}
	return StepResult{}, false
}

// Succeeded reports whether every step ran and passed.
func (r Report) Succeeded() bool {
	_, failed := r.Failed()
	return !failed && len(r.Results) == r.Planned
}

// Failure renders the failing step for a status sink, or "" when none failed.
func (r Report) Failure() string {
	res, ok := r.Failed()
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s failed [%s]: %s", res.Step, res.Code, res.Detail)
}

// Pipeline is an immutable ordered list of steps.
type Pipeline struct {
	steps  []Step
	logger *zap.Logger
}

// New creates a pipeline over steps.
func New(logger *zap.Logger, steps ...Step) *Pipeline {
	return &Pipeline{steps: steps, logger: logger.Named("pipeline")}
}

// Len is the number of steps.
func (p *Pipeline) Len() int { return len(p.steps) }

// Names lists step names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.steps))
	for i, st := range p.steps {
		names[i] = st.Name()
	}
	return names
}

// Run executes the steps in order until one fails. Steps after a failure are
// never invoked and nothing is rolled back.
func (p *Pipeline) Run(ctx context.Context, s Session, a *Attempt) Report {
	rep := Report{Planned: len(p.steps)}
	logger := p.logger.With(zap.Int("row", a.Item.RowNumber))

	for _, st := range p.steps {
		if err := ctx.Err(); err != nil {
			rep.Results = append(rep.Results, StepResult{
				Step:   st.Name(),
				Code:   CodeCancelled,
				Detail: err.Error(),
			})
			logger.Info("Pipeline cancelled.", zap.String("step", st.Name()))
			return rep
		}

		res := p.runStep(ctx, logger, st, s, a)
		rep.Results = append(rep.Results, res)
		if !res.Succeeded {
			logger.Warn("Step failed.",
				zap.String("step", res.Step),
				zap.String("code", string(res.Code)),
				zap.String("detail", res.Detail),
				zap.Duration("duration", res.Duration),
			)
			return rep
		}
		logger.Info("Step completed.", zap.String("step", res.Step), zap.Duration("duration", res.Duration))
	}
	return rep
}

func (p *Pipeline) runStep(ctx context.Context, logger *zap.Logger, st Step, s Session, a *Attempt) (res StepResult) {
	res.Step = st.Name()
	start := time.Now()
	logger.Debug("Step started.", zap.String("step", res.Step))

	defer func() {
		res.Duration = time.Since(start)
		if r := recover(); r != nil {
			logger.Error("Step panicked.",
				zap.String("step", res.Step),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			res.Succeeded = false
			res.Code = CodeExecutionFailure
			res.Detail = fmt.Sprintf("panic: %v", r)
		}
	}()

	err := st.Run(ctx, s, a)
	if err == nil {
		res.Succeeded = true
		return res
	}
	res.Detail = err.Error()
	var se *StepError
	if errors.As(err, &se) && se.Err != nil {
		res.Detail = se.Err.Error()
	}
	res.Code = Classify(err)
	if ctx.Err() != nil {
		res.Code = CodeCancelled
	}
	return res
}
