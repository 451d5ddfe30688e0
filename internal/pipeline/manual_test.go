package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseManualPolicy(t *testing.T) {
	p, err := ParseManualPolicy("")
	require.NoError(t, err)
	assert.Equal(t, Optimistic, p)

	p, err = ParseManualPolicy(" STRICT ")
	require.NoError(t, err)
	assert.Equal(t, Strict, p)

	_, err = ParseManualPolicy("lenient")
	assert.ErrorContains(t, err, `unknown manual policy "lenient"`)
}

func TestManualPolicyResolve(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	assert.NoError(t, Optimistic.Resolve(true, "create-account", logger))
	assert.NoError(t, Strict.Resolve(true, "create-account", logger))
	assert.Zero(t, logs.Len())

	assert.NoError(t, Optimistic.Resolve(false, "create-account", logger))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.WarnLevel, logs.All()[0].Level)

	err := Strict.Resolve(false, "verify-otp", logger)
	assert.Equal(t, CodeManualStepTimeout, Classify(err))
	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "verify-otp", se.Step)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
