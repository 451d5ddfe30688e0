package pipeline

import (
	"context"

	"github.com/xkilldash9x/registrar/internal/browser"
	"github.com/xkilldash9x/registrar/internal/mailbox"
	"github.com/xkilldash9x/registrar/internal/records"
)

// Session is the browser surface steps drive. *browser.Session implements it.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, loc browser.Locator) error
	Type(ctx context.Context, loc browser.Locator, text string) error
	PressKey(ctx context.Context, name string) error
	Exists(ctx context.Context, loc browser.Locator) (bool, error)
	Title(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	Close() error
}

var _ Session = (*browser.Session)(nil)

// Attempt is the mutable state shared by the steps of one record.
type Attempt struct {
	Item    records.WorkItem
	Email   string
	Mailbox *mailbox.Mailbox
}

// Step is one named unit of work in a pipeline.
type Step interface {
	Name() string
	Run(ctx context.Context, s Session, a *Attempt) error
}

// StepFunc adapts a function into a Step.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, s Session, a *Attempt) error
}

func (f StepFunc) Name() string { return f.StepName }

func (f StepFunc) Run(ctx context.Context, s Session, a *Attempt) error {
	return f.Fn(ctx, s, a)
}
