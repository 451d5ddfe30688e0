package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/registrar/internal/config"
	"github.com/xkilldash9x/registrar/internal/mocks"
	"github.com/xkilldash9x/registrar/internal/pipeline"
	"github.com/xkilldash9x/registrar/internal/records"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticSource struct {
	items []records.WorkItem
	err   error
	calls atomic.Int32
}

func (s *staticSource) FetchPending(context.Context) ([]records.WorkItem, error) {
	s.calls.Add(1)
	return s.items, s.err
}

func rows(nums ...int) []records.WorkItem {
	items := make([]records.WorkItem, len(nums))
	for i, n := range nums {
		items[i] = records.WorkItem{RowNumber: n, Fields: map[string]string{"VISA NO": fmt.Sprintf("V%d", n)}}
	}
	return items
}

// countingLauncher hands out one FakeSession and counts launches.
type countingLauncher struct {
	session  *mocks.FakeSession
	launches atomic.Int32
	err      error
}

func (l *countingLauncher) Launch(context.Context) (pipeline.Session, error) {
	l.launches.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

// failOnRow fails the single step for the given rows and sets an email otherwise.
func failOnRow(logger *zap.Logger, failing ...int) *pipeline.Pipeline {
	bad := make(map[int]bool)
	for _, r := range failing {
		bad[r] = true
	}
	return pipeline.New(logger, pipeline.StepFunc{StepName: "register", Fn: func(_ context.Context, _ pipeline.Session, a *pipeline.Attempt) error {
		if bad[a.Item.RowNumber] {
			return pipeline.Fail(pipeline.CodeElementNotFound, "guest type option missing")
		}
		a.Email = fmt.Sprintf("row%d@mail.test", a.Item.RowNumber)
		return nil
	}})
}

func newRunner(t *testing.T, src records.Source, sink records.Sink, l *countingLauncher, p *pipeline.Pipeline, opts Options) *Runner {
	t.Helper()
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	r, err := New(src, sink, l.Launch, p, zaptest.NewLogger(t), opts)
	require.NoError(t, err)
	return r
}

func TestNewValidates(t *testing.T) {
	logger := zaptest.NewLogger(t)
	l := &countingLauncher{}
	p := failOnRow(logger)

	_, err := New(nil, records.NewMemorySink(), l.Launch, p, logger, Options{})
	assert.Error(t, err)

	_, err = New(&staticSource{}, records.NewMemorySink(), l.Launch, p, logger, Options{DelayMin: time.Second, DelayMax: time.Millisecond})
	assert.ErrorContains(t, err, "invalid delay range")
}

func TestRunNoPendingNeverLaunches(t *testing.T) {
	l := &countingLauncher{session: mocks.NewFakeSession()}
	r := newRunner(t, &staticSource{}, records.NewMemorySink(), l, failOnRow(zaptest.NewLogger(t)), Options{})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	assert.NotEmpty(t, summary.RunID)
	assert.Zero(t, l.launches.Load())
	assert.Equal(t, StateClosed, r.State())
}

func TestRunSourceFailureIsFatal(t *testing.T) {
	src := &staticSource{err: fmt.Errorf("%w: 403 forbidden", records.ErrSourceUnavailable)}
	l := &countingLauncher{session: mocks.NewFakeSession()}
	sink := records.NewMemorySink()
	r := newRunner(t, src, sink, l, failOnRow(zaptest.NewLogger(t)), Options{})

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, records.ErrSourceUnavailable)
	assert.Equal(t, pipeline.CodeSourceUnavailable, pipeline.Classify(err))
	assert.Zero(t, l.launches.Load())
	assert.Zero(t, sink.Writes())
}

// unreachableValues fails every sheet read the way a cancelled HTTP call does.
type unreachableValues struct{}

func (unreachableValues) Get(context.Context, string, string) ([][]string, error) {
	return nil, errors.New("Get \"https://sheets.googleapis.com\": context canceled")
}

func (unreachableValues) Update(context.Context, string, string, string) error { return nil }

func TestRunCancelledDuringFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sheet := records.NewSheet(unreachableValues{}, config.NewDefaultConfig().Sheets(), zaptest.NewLogger(t))
	l := &countingLauncher{session: mocks.NewFakeSession()}
	r := newRunner(t, sheet, records.NewMemorySink(), l, failOnRow(zaptest.NewLogger(t)), Options{})

	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, records.ErrSourceUnavailable)
	assert.Zero(t, l.launches.Load())
	assert.Equal(t, StateClosed, r.State())
}

func TestRunMixedOutcomes(t *testing.T) {
	session := mocks.NewFakeSession()
	l := &countingLauncher{session: session}
	sink := records.NewMemorySink()
	rec := new(mocks.MockRecorder)
	rec.On("Record", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("records.RunOutcome")).Return(nil)

	r := newRunner(t, &staticSource{items: rows(2, 3, 4)}, sink, l, failOnRow(zaptest.NewLogger(t), 3),
		Options{DelayMin: time.Millisecond, DelayMax: 2 * time.Millisecond, Recorder: rec})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int32(1), l.launches.Load())
	assert.Equal(t, 1, session.CloseCount())

	status, _ := sink.Value(2, "status")
	assert.Equal(t, "In Progress", status)
	email, _ := sink.Value(2, "email")
	assert.Equal(t, "row2@mail.test", email)

	status, _ = sink.Value(3, "status")
	assert.Equal(t, "Failed", status)
	detail, _ := sink.Value(3, "error")
	assert.Equal(t, "register failed [ELEMENT_NOT_FOUND]: guest type option missing", detail)
	_, wroteEmail := sink.Value(3, "email")
	assert.False(t, wroteEmail)

	rec.AssertNumberOfCalls(t, "Record", 3)
	for _, call := range rec.Calls {
		assert.Equal(t, summary.RunID, call.Arguments.String(1))
	}
	assert.Equal(t, StateClosed, r.State())
}

func TestRunLimit(t *testing.T) {
	l := &countingLauncher{session: mocks.NewFakeSession()}
	sink := records.NewMemorySink()
	r := newRunner(t, &staticSource{items: rows(2, 3, 4)}, sink, l, failOnRow(zaptest.NewLogger(t)), Options{Limit: 2})

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	_, touched := sink.Value(4, "status")
	assert.False(t, touched)
}

func TestRunLaunchFailure(t *testing.T) {
	l := &countingLauncher{err: errors.New("chrome not found")}
	sink := records.NewMemorySink()
	r := newRunner(t, &staticSource{items: rows(2)}, sink, l, failOnRow(zaptest.NewLogger(t)), Options{})

	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "launch browser: chrome not found")
	assert.Zero(t, sink.Writes())
	assert.Equal(t, StateClosed, r.State())
}

func TestRunSinkErrorsAreNotFatal(t *testing.T) {
	sink := new(mocks.MockSink)
	sinkErr := fmt.Errorf("%w: quota exceeded", records.ErrSinkWrite)
	sink.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(sinkErr)
	sink.On("RecordEmail", mock.Anything, mock.Anything, mock.Anything).Return(sinkErr)

	core, logs := observer.New(zap.WarnLevel)
	l := &countingLauncher{session: mocks.NewFakeSession()}
	r, err := New(&staticSource{items: rows(2, 3)}, sink, l.Launch, failOnRow(zap.NewNop()), zap.New(core), Options{})
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, logs.FilterMessage("Status write failed.").Len())
	assert.Equal(t, 2, logs.FilterMessage("Email write failed.").Len())
}

func TestRunCleanupOnPanic(t *testing.T) {
	sink := new(mocks.MockSink)
	sink.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Panic("sheet client exploded")

	session := mocks.NewFakeSession()
	l := &countingLauncher{session: session}
	r := newRunner(t, &staticSource{items: rows(2)}, sink, l, failOnRow(zaptest.NewLogger(t)), Options{})

	assert.PanicsWithValue(t, "sheet client exploded", func() {
		_, _ = r.Run(context.Background())
	})
	assert.Equal(t, 1, session.CloseCount())
	assert.Equal(t, StateClosed, r.State())
}

func TestRunCancelledDuringDelay(t *testing.T) {
	session := mocks.NewFakeSession()
	l := &countingLauncher{session: session}
	sink := records.NewMemorySink()
	r := newRunner(t, &staticSource{items: rows(2, 3)}, sink, l, failOnRow(zaptest.NewLogger(t)),
		Options{DelayMin: time.Hour, DelayMax: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	summary, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, session.CloseCount())
	_, touched := sink.Value(3, "status")
	assert.False(t, touched)
}

func TestRunCancelledRecordStaysPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := pipeline.New(zaptest.NewLogger(t),
		pipeline.StepFunc{StepName: "stall", Fn: func(ctx context.Context, _ pipeline.Session, _ *pipeline.Attempt) error {
			cancel()
			return pipeline.Wait(ctx, time.Hour)
		}},
	)
	session := mocks.NewFakeSession()
	sink := records.NewMemorySink()
	r := newRunner(t, &staticSource{items: rows(2)}, sink, &countingLauncher{session: session}, p, Options{})

	summary, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Processed)
	assert.Zero(t, sink.Writes())
	assert.Equal(t, 1, session.CloseCount())
}

func TestDelayWithinRange(t *testing.T) {
	l := &countingLauncher{}
	r := newRunner(t, &staticSource{}, records.NewMemorySink(), l, failOnRow(zaptest.NewLogger(t)),
		Options{DelayMin: 5 * time.Second, DelayMax: 10 * time.Second})
	for i := 0; i < 200; i++ {
		d := r.delay()
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 10*time.Second)
	}

	fixed := newRunner(t, &staticSource{}, records.NewMemorySink(), l, failOnRow(zaptest.NewLogger(t)),
		Options{DelayMin: time.Second, DelayMax: time.Second})
	assert.Equal(t, time.Second, fixed.delay())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ProcessingRecord", StateProcessingRecord.String())
	assert.Equal(t, "Closed", StateClosed.String())
	assert.Equal(t, "Unknown", State(99).String())
}
