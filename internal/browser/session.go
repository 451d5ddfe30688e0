// Package browser drives a single Chrome instance through chromedp and
// resolves elements through ordered locator fallbacks.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/browser/stealth"
	"github.com/xkilldash9x/registrar/internal/config"
	"github.com/xkilldash9x/registrar/internal/humanoid"
)

var (
	// ErrNavigation wraps page load failures.
	ErrNavigation = errors.New("navigation failed")
	// ErrSessionClosed is returned by any operation after Close.
	ErrSessionClosed = errors.New("browser session closed")
)

const shutdownTimeout = 10 * time.Second

var namedKeys = map[string]string{
	"tab":    kb.Tab,
	"enter":  kb.Enter,
	"escape": kb.Escape,
}

// Session is one browser process with one tab, owning its own profile
// directory.
type Session struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	stop    context.CancelFunc
	profile *Profile
	persona stealth.Persona
	browser config.BrowserConfig
	network config.NetworkConfig
	typist  *humanoid.Typist
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewSession launches Chrome with a fresh stealth profile and applies the
// persona. On any failure everything created so far is torn down.
func NewSession(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Session, error) {
	bcfg := cfg.Browser()
	id := uuid.New().String()
	logger = logger.Named("browser").With(zap.String("session_id", id))

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	persona := stealth.NewPersona(bcfg, rng)

	profile, err := NewProfile(bcfg.ProfileBaseDir, persona.Languages, logger)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(bcfg, profile.UserDataDir(), persona)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	s := &Session{
		id:      id,
		ctx:     tabCtx,
		cancel:  tabCancel,
		stop:    allocCancel,
		profile: profile,
		persona: persona,
		browser: bcfg,
		network: cfg.Network(),
		typist:  humanoid.New(bcfg.Humanoid, rng),
		logger:  logger,
	}

	// The first Run starts the browser process.
	if err := chromedp.Run(tabCtx, stealth.Apply(persona, logger)); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	logger.Info("Browser session started.",
		zap.Bool("headless", bcfg.Headless),
		zap.String("user_agent", persona.UserAgent),
		zap.Int("width", persona.Width),
		zap.Int("height", persona.Height),
	)
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Profile exposes the profile directory owned by the session.
func (s *Session) Profile() *Profile { return s.profile }

// Navigate loads url, waits for the body, then waits post_load_wait.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	err := s.run(ctx, s.network.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %w", ErrNavigation, url, err)
	}
	return sleep(ctx, s.network.PostLoadWait)
}

// Click scrolls the element into view, pauses briefly, then clicks it.
func (s *Session) Click(ctx context.Context, loc Locator) error {
	st, by, err := s.resolve(ctx, loc)
	if err != nil {
		return err
	}
	return s.run(ctx, s.browser.ActionTimeout,
		chromedp.ScrollIntoView(st.Expr, by),
		chromedp.Sleep(s.typist.ClickPause()),
		chromedp.Click(st.Expr, by, chromedp.NodeVisible),
	)
}

// Type clears the element and types text with a per-key cadence.
func (s *Session) Type(ctx context.Context, loc Locator, text string) error {
	st, by, err := s.resolve(ctx, loc)
	if err != nil {
		return err
	}
	tasks := chromedp.Tasks{
		chromedp.ScrollIntoView(st.Expr, by),
		chromedp.Focus(st.Expr, by),
		chromedp.Clear(st.Expr, by),
	}
	tasks = append(tasks, s.typist.Tasks(text, func(keys string) chromedp.Action {
		return chromedp.SendKeys(st.Expr, keys, by)
	})...)
	return s.run(ctx, s.browser.ActionTimeout, tasks)
}

// PressKey dispatches a named key (Tab, Enter or Escape) to the focused element.
func (s *Session) PressKey(ctx context.Context, name string) error {
	key, ok := namedKeys[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("unsupported key %q", name)
	}
	return s.run(ctx, s.browser.ActionTimeout, chromedp.KeyEvent(key))
}

// Exists reports whether any strategy currently matches an element. It does
// not wait.
func (s *Session) Exists(ctx context.Context, loc Locator) (bool, error) {
	for _, st := range loc.Strategies {
		by, err := st.Kind.queryOption()
		if err != nil {
			return false, err
		}
		var nodes []*cdp.Node
		err = s.run(ctx, s.browser.LocatorTimeout, chromedp.Nodes(st.Expr, &nodes, by, chromedp.AtLeast(0)))
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			s.logger.Debug("Probe failed.", zap.Stringer("strategy", st), zap.Error(err))
			continue
		}
		if len(nodes) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Title returns document.title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, s.browser.ActionTimeout, chromedp.Title(&title))
	return title, err
}

// BodyText returns the rendered text of the page body.
func (s *Session) BodyText(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, s.browser.ActionTimeout,
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

// PageSource returns the serialized document, markup included.
func (s *Session) PageSource(ctx context.Context) (string, error) {
	var source string
	err := s.run(ctx, s.browser.ActionTimeout,
		chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &source))
	return source, err
}

// Close shuts the browser down and removes the profile. It is safe to call
// more than once; only the first call does any work. A profile removal
// failure is logged by the profile and returned for information only.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.ctx) }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("Graceful browser shutdown reported an error.", zap.Error(err))
		}
	case <-time.After(shutdownTimeout):
		s.logger.Warn("Browser did not exit in time; killing it.")
	}
	s.cancel()
	s.stop()

	return s.profile.Remove()
}

// resolve tries each strategy in order, waiting up to locator_timeout for it
// to become visible.
func (s *Session) resolve(ctx context.Context, loc Locator) (Strategy, chromedp.QueryOption, error) {
	var last error
	for _, st := range loc.Strategies {
		by, err := st.Kind.queryOption()
		if err != nil {
			return Strategy{}, nil, err
		}
		err = s.run(ctx, s.browser.LocatorTimeout, chromedp.WaitVisible(st.Expr, by))
		if err == nil {
			s.logger.Debug("Element resolved.", zap.String("locator", loc.Name), zap.Stringer("strategy", st))
			return st, by, nil
		}
		if ctx.Err() != nil {
			return Strategy{}, nil, ctx.Err()
		}
		if errors.Is(err, ErrSessionClosed) {
			return Strategy{}, nil, err
		}
		last = err
		s.logger.Debug("Strategy did not match.", zap.String("locator", loc.Name), zap.Stringer("strategy", st), zap.Error(err))
	}
	return Strategy{}, nil, &NotFoundError{Locator: loc.Name, Tried: len(loc.Strategies), Last: last}
}

func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	opCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		opCtx, cancelTimeout = context.WithTimeout(opCtx, timeout)
		defer cancelTimeout()
	}
	return chromedp.Run(opCtx, actions...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

