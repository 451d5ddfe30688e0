// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/registrar/internal/mailbox"
	"github.com/xkilldash9x/registrar/internal/records"
)

// -- Record Sink Mock --

// MockSink mocks records.Sink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) UpdateStatus(ctx context.Context, row int, status records.Status) error {
	args := m.Called(ctx, row, status)
	return args.Error(0)
}

func (m *MockSink) RecordEmail(ctx context.Context, row int, email string) error {
	args := m.Called(ctx, row, email)
	return args.Error(0)
}

func (m *MockSink) RecordError(ctx context.Context, row int, message string) error {
	args := m.Called(ctx, row, message)
	return args.Error(0)
}

// -- OTP Source Mock --

// MockOTPSource mocks the mailbox provisioning and polling used during registration.
type MockOTPSource struct {
	mock.Mock
}

func (m *MockOTPSource) Provision(ctx context.Context) (*mailbox.Mailbox, error) {
	args := m.Called(ctx)
	mb, _ := args.Get(0).(*mailbox.Mailbox)
	return mb, args.Error(1)
}

func (m *MockOTPSource) WaitForOTP(ctx context.Context, mb *mailbox.Mailbox, timeout time.Duration) (string, error) {
	args := m.Called(ctx, mb, timeout)
	return args.String(0), args.Error(1)
}

// -- Outcome Recorder Mock --

// MockRecorder mocks the outcome journal.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, runID string, outcome records.RunOutcome) error {
	args := m.Called(ctx, runID, outcome)
	return args.Error(0)
}
