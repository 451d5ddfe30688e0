package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xkilldash9x/registrar/internal/browser"
)

// Call is one recorded FakeSession interaction.
type Call struct {
	Op     string
	Target string
	Text   string
}

func (c Call) String() string {
	if c.Text != "" {
		return c.Op + "(" + c.Target + ", " + c.Text + ")"
	}
	return c.Op + "(" + c.Target + ")"
}

// FakeSession is a scripted page. Elements are addressed by locator name;
// any locator whose name is in Present resolves, everything else is not found.
type FakeSession struct {
	mu sync.Mutex

	Present   map[string]bool
	TitleText string
	// Bodies is consumed one entry per BodyText call; the last entry repeats.
	Bodies []string
	// HTML is returned by PageSource. When empty the source is assembled
	// from TitleText and the current body.
	HTML string
	// OnClick mutates the page after a successful click on the named locator.
	OnClick map[string]func(f *FakeSession)
	// Errors forces an operation on a locator name (or URL) to fail.
	Errors map[string]error
	// PanicOn makes any interaction with the named locator panic.
	PanicOn string

	calls  []Call
	closed int
}

// NewFakeSession returns a page on which the named locators exist.
func NewFakeSession(present ...string) *FakeSession {
	f := &FakeSession{
		Present: make(map[string]bool),
		OnClick: make(map[string]func(*FakeSession)),
		Errors:  make(map[string]error),
	}
	for _, name := range present {
		f.Present[name] = true
	}
	return f
}

// SetBody replaces the body text sequence.
func (f *FakeSession) SetBody(bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Bodies = bodies
}

// Calls returns a copy of the recorded interactions.
func (f *FakeSession) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo filters recorded interactions by operation.
func (f *FakeSession) CallsTo(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Typed returns the text typed into the named locator, or "" if never typed.
func (f *FakeSession) Typed(name string) string {
	for _, c := range f.CallsTo("type") {
		if c.Target == name {
			return c.Text
		}
	}
	return ""
}

// CloseCount is how many times Close was invoked.
func (f *FakeSession) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeSession) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *FakeSession) interact(ctx context.Context, op string, loc browser.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.PanicOn != "" && f.PanicOn == loc.Name {
		panic(fmt.Sprintf("scripted panic on %s", loc.Name))
	}
	f.mu.Lock()
	err := f.Errors[loc.Name]
	present := f.Present[loc.Name]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if !present {
		return &browser.NotFoundError{Locator: loc.Name, Tried: len(loc.Strategies)}
	}
	return nil
}

func (f *FakeSession) Navigate(ctx context.Context, url string) error {
	f.record(Call{Op: "navigate", Target: url})
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Errors[url]
}

func (f *FakeSession) Click(ctx context.Context, loc browser.Locator) error {
	if err := f.interact(ctx, "click", loc); err != nil {
		return err
	}
	f.record(Call{Op: "click", Target: loc.Name})
	f.mu.Lock()
	hook := f.OnClick[loc.Name]
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *FakeSession) Type(ctx context.Context, loc browser.Locator, text string) error {
	if err := f.interact(ctx, "type", loc); err != nil {
		return err
	}
	f.record(Call{Op: "type", Target: loc.Name, Text: text})
	return nil
}

func (f *FakeSession) PressKey(ctx context.Context, name string) error {
	f.record(Call{Op: "key", Target: name})
	return ctx.Err()
}

func (f *FakeSession) Exists(ctx context.Context, loc browser.Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Present[loc.Name], nil
}

func (f *FakeSession) Title(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.TitleText, ctx.Err()
}

func (f *FakeSession) BodyText(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Bodies) == 0 {
		return "", ctx.Err()
	}
	body := f.Bodies[0]
	if len(f.Bodies) > 1 {
		f.Bodies = f.Bodies[1:]
	}
	return body, ctx.Err()
}

func (f *FakeSession) PageSource(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HTML != "" {
		return f.HTML, ctx.Err()
	}
	body := ""
	if len(f.Bodies) > 0 {
		body = f.Bodies[0]
	}
	return "<html><head><title>" + f.TitleText + "</title></head><body>" + body + "</body></html>", ctx.Err()
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Trace renders the calls as a compact string for assertions.
func (f *FakeSession) Trace() string {
	calls := f.Calls()
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
