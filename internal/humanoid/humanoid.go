// Package humanoid shapes keyboard and mouse input so form filling follows a
// human cadence instead of arriving as a single burst.
package humanoid

import (
	"math"
	"math/rand"
	"sync"
	"time"
	"unicode"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/registrar/internal/config"
)

// Keystroke is one unit of input followed by the pause that comes after it.
type Keystroke struct {
	Keys  string
	Pause time.Duration
}

// Typist draws per-key pauses from a clamped normal distribution. It is safe
// for concurrent use.
type Typist struct {
	mu  sync.Mutex
	rng *rand.Rand
	cfg config.HumanoidConfig
}

// New creates a Typist. A nil rng is seeded from the clock.
func New(cfg config.HumanoidConfig, rng *rand.Rand) *Typist {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Typist{rng: rng, cfg: cfg}
}

// Enabled reports whether humanized input is turned on.
func (t *Typist) Enabled() bool { return t.cfg.Enabled }

// KeyPause returns the delay to hold after typing r.
func (t *Typist) KeyPause(r rune) time.Duration {
	t.mu.Lock()
	norm := t.rng.NormFloat64()
	t.mu.Unlock()

	ms := norm*t.cfg.KeyPauseStdDevMs + t.cfg.KeyPauseMeanMs
	ms = math.Max(t.cfg.KeyPauseMinMs, ms)
	if t.cfg.KeyPauseMaxMs > 0 {
		ms = math.Min(t.cfg.KeyPauseMaxMs, ms)
	}
	if isWordBoundary(r) && t.cfg.WordPauseFactor > 0 {
		ms *= t.cfg.WordPauseFactor
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// ClickPause returns a uniform delay in [click_pause_min_ms, click_pause_max_ms].
func (t *Typist) ClickPause() time.Duration {
	if !t.cfg.Enabled {
		return 0
	}
	lo, hi := t.cfg.ClickPauseMinMs, t.cfg.ClickPauseMaxMs
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}
	t.mu.Lock()
	n := t.rng.Intn(hi - lo + 1)
	t.mu.Unlock()
	return time.Duration(lo+n) * time.Millisecond
}

// Plan splits text into keystrokes. With humanized input disabled the whole
// text is one keystroke with no pause.
func (t *Typist) Plan(text string) []Keystroke {
	if text == "" {
		return nil
	}
	if !t.cfg.Enabled {
		return []Keystroke{{Keys: text}}
	}
	runes := []rune(text)
	plan := make([]Keystroke, 0, len(runes))
	for _, r := range runes {
		plan = append(plan, Keystroke{Keys: string(r), Pause: t.KeyPause(r)})
	}
	return plan
}

// Tasks turns text into chromedp actions, using send to dispatch each
// keystroke.
func (t *Typist) Tasks(text string, send func(keys string) chromedp.Action) chromedp.Tasks {
	var tasks chromedp.Tasks
	for _, ks := range t.Plan(text) {
		tasks = append(tasks, send(ks.Keys))
		if ks.Pause > 0 {
			tasks = append(tasks, chromedp.Sleep(ks.Pause))
		}
	}
	return tasks
}

func isWordBoundary(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}
