package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ManualPolicy decides the result of a manual hand-off when no success
// indicator is found after the wait window.
type ManualPolicy string

const (
	// Optimistic treats a missing indicator as success and logs a warning.
	Optimistic ManualPolicy = "optimistic"
	// Strict fails with MANUAL_STEP_TIMEOUT.
	Strict ManualPolicy = "strict"
)

// ParseManualPolicy accepts "optimistic" or "strict", case-insensitively.
// The empty string selects Optimistic.
func ParseManualPolicy(s string) (ManualPolicy, error) {
	switch ManualPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Optimistic:
		return Optimistic, nil
	case Strict:
		return Strict, nil
	}
	return "", fmt.Errorf("unknown manual policy %q", s)
}

// Resolve applies the policy to the result of a success probe.
func (p ManualPolicy) Resolve(found bool, step string, logger *zap.Logger) error {
	if found {
		return nil
	}
	if p == Strict {
		return &StepError{Code: CodeManualStepTimeout, Step: step, Err: ErrManualTimeout}
	}
	logger.Warn("No success indicator after manual window; assuming completed.", zap.String("step", step))
	return nil
}

// Wait blocks for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
