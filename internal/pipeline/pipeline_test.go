package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/registrar/internal/browser"
	"github.com/xkilldash9x/registrar/internal/mailbox"
	"github.com/xkilldash9x/registrar/internal/mocks"
	"github.com/xkilldash9x/registrar/internal/records"
)

func recordingStep(name string, log *[]string, err error) Step {
	return StepFunc{StepName: name, Fn: func(ctx context.Context, s Session, a *Attempt) error {
		*log = append(*log, name)
		return err
	}}
}

func newAttempt() *Attempt {
	return &Attempt{Item: records.WorkItem{RowNumber: 5, Fields: map[string]string{"VISA NO": "V1"}}}
}

func TestPipelineRunsAllStepsInOrder(t *testing.T) {
	var ran []string
	p := New(zaptest.NewLogger(t),
		recordingStep("a", &ran, nil),
		recordingStep("b", &ran, nil),
		recordingStep("c", &ran, nil),
	)

	rep := p.Run(context.Background(), mocks.NewFakeSession(), newAttempt())

	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.True(t, rep.Succeeded())
	require.Len(t, rep.Results, 3)
	for _, r := range rep.Results {
		assert.True(t, r.Succeeded)
		assert.Equal(t, CodeNone, r.Code)
	}
	_, failed := rep.Failed()
	assert.False(t, failed)
	assert.Empty(t, rep.Failure())
	assert.Equal(t, []string{"a", "b", "c"}, p.Names())
}

func TestPipelineShortCircuits(t *testing.T) {
	var ran []string
	notFound := &browser.NotFoundError{Locator: "guest-type", Tried: 2}
	p := New(zaptest.NewLogger(t),
		recordingStep("navigate", &ran, nil),
		recordingStep("select-guest-type", &ran, notFound),
		recordingStep("fill-identity-fields", &ran, nil),
	)

	rep := p.Run(context.Background(), mocks.NewFakeSession(), newAttempt())

	assert.Equal(t, []string{"navigate", "select-guest-type"}, ran)
	assert.False(t, rep.Succeeded())
	res, failed := rep.Failed()
	require.True(t, failed)
	assert.Equal(t, "select-guest-type", res.Step)
	assert.Equal(t, CodeElementNotFound, res.Code)
	assert.Contains(t, rep.Failure(), "select-guest-type failed [ELEMENT_NOT_FOUND]")
}

func TestPipelineDetailIgnoresWrapping(t *testing.T) {
	cause := Fail(CodeElementNotFound, "guest type option missing")
	for name, err := range map[string]error{
		"bare":    cause,
		"wrapped": fmt.Errorf("after 3 attempts: %w", cause),
	} {
		t.Run(name, func(t *testing.T) {
			var ran []string
			p := New(zaptest.NewLogger(t), recordingStep("select-guest-type", &ran, err))

			rep := p.Run(context.Background(), mocks.NewFakeSession(), newAttempt())

			res, failed := rep.Failed()
			require.True(t, failed)
			assert.Equal(t, CodeElementNotFound, res.Code)
			assert.Equal(t, "guest type option missing", res.Detail)
		})
	}
}

func TestPipelineRecoversPanics(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var ran []string
	p := New(zap.New(core),
		StepFunc{StepName: "explode", Fn: func(context.Context, Session, *Attempt) error {
			var m map[string]int
			m["x"] = 1
			return nil
		}},
		recordingStep("after", &ran, nil),
	)

	rep := p.Run(context.Background(), mocks.NewFakeSession(), newAttempt())

	res, failed := rep.Failed()
	require.True(t, failed)
	assert.Equal(t, CodeExecutionFailure, res.Code)
	assert.Contains(t, res.Detail, "panic:")
	assert.Empty(t, ran)
	assert.Equal(t, 1, logs.FilterMessage("Step panicked.").Len())
}

func TestPipelineCancellation(t *testing.T) {
	t.Run("cancelled before a step", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var ran []string
		p := New(zaptest.NewLogger(t),
			StepFunc{StepName: "first", Fn: func(context.Context, Session, *Attempt) error {
				cancel()
				return nil
			}},
			recordingStep("second", &ran, nil),
		)

		rep := p.Run(ctx, mocks.NewFakeSession(), newAttempt())
		assert.Empty(t, ran)
		res, failed := rep.Failed()
		require.True(t, failed)
		assert.Equal(t, "second", res.Step)
		assert.Equal(t, CodeCancelled, res.Code)
	})

	t.Run("step error during cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		p := New(zaptest.NewLogger(t),
			StepFunc{StepName: "wait", Fn: func(ctx context.Context, _ Session, _ *Attempt) error {
				cancel()
				return fmt.Errorf("waiting: %w", Wait(ctx, time.Hour))
			}},
		)
		rep := p.Run(ctx, mocks.NewFakeSession(), newAttempt())
		res, _ := rep.Failed()
		assert.Equal(t, CodeCancelled, res.Code)
	})
}

func TestPipelineStepsShareAttempt(t *testing.T) {
	p := New(zaptest.NewLogger(t),
		StepFunc{StepName: "provision", Fn: func(_ context.Context, _ Session, a *Attempt) error {
			a.Email = "abc@example.test"
			return nil
		}},
		StepFunc{StepName: "use", Fn: func(_ context.Context, _ Session, a *Attempt) error {
			if a.Email == "" {
				return errors.New("email missing")
			}
			return nil
		}},
	)
	a := newAttempt()
	rep := p.Run(context.Background(), mocks.NewFakeSession(), a)
	assert.True(t, rep.Succeeded())
	assert.Equal(t, "abc@example.test", a.Email)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeNone},
		{"explicit", Fail(CodeValidationError, "passport missing"), CodeValidationError},
		{"wrapped explicit", fmt.Errorf("step: %w", &StepError{Code: CodeNavigationError, Err: errors.New("x")}), CodeNavigationError},
		{"source", fmt.Errorf("read: %w", records.ErrSourceUnavailable), CodeSourceUnavailable},
		{"element", &browser.NotFoundError{Locator: "x"}, CodeElementNotFound},
		{"navigation", fmt.Errorf("%w: timeout", browser.ErrNavigation), CodeNavigationError},
		{"mail", fmt.Errorf("%w: all providers failed", mailbox.ErrServiceUnavailable), CodeExternalServiceError},
		{"otp", mailbox.ErrOTPTimeout, CodeExternalServiceError},
		{"manual", ErrManualTimeout, CodeManualStepTimeout},
		{"validation", fmt.Errorf("dob: %w", ErrValidation), CodeValidationError},
		{"cancelled", context.Canceled, CodeCancelled},
		{"other", errors.New("boom"), CodeExecutionFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestStepErrorMessage(t *testing.T) {
	err := &StepError{Code: CodeManualStepTimeout, Step: "verify-otp", Err: ErrManualTimeout}
	assert.Equal(t, "verify-otp [MANUAL_STEP_TIMEOUT]: manual step not completed", err.Error())
	assert.ErrorIs(t, err, ErrManualTimeout)
}
