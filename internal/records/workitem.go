package records

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrSourceUnavailable means the backing store could not be read. It is fatal to a run.
	ErrSourceUnavailable = errors.New("record source unavailable")
	// ErrSinkWrite wraps any failure to write an outcome cell.
	ErrSinkWrite = errors.New("status sink write failed")
)

// Status is the value written to a row's status cell.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusFailed     Status = "Failed"
)

// WorkItem is one pending sheet row. Fields maps header text to cell value.
type WorkItem struct {
	RowNumber int
	Fields    map[string]string
}

// Get returns the trimmed value stored under key.
func (w WorkItem) Get(key string) string {
	return strings.TrimSpace(w.Fields[key])
}

// First returns the first non-empty value among the given header aliases.
func (w WorkItem) First(keys ...string) string {
	for _, k := range keys {
		if v := w.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// RunOutcome is the per-record result written back to the sink.
type RunOutcome struct {
	RowNumber   int
	FinalStatus Status
	EmailUsed   string
	ErrorDetail string
}

// Succeeded reports whether the outcome advanced the row.
func (o RunOutcome) Succeeded() bool { return o.FinalStatus == StatusInProgress }

// Source exposes pending work items.
type Source interface {
	FetchPending(ctx context.Context) ([]WorkItem, error)
}

// Sink receives per-record outcomes. Each method is an independent,
// idempotent overwrite of one cell.
type Sink interface {
	UpdateStatus(ctx context.Context, row int, status Status) error
	RecordEmail(ctx context.Context, row int, email string) error
	RecordError(ctx context.Context, row int, message string) error
}
