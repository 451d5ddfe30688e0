// Package stealth makes an automated Chrome instance present the same
// fingerprint a regular desktop browser would.
package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/config"
)

//go:embed evasions.js
var evasionsScript string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
}

// DefaultPersona is used when the configuration lists no user agents.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"en-US", "en"},
	Width:     1366,
	Height:    768,
}

// NewPersona picks a user agent from cfg and jitters the window size by up
// to cfg.WindowJitter pixels in each dimension.
func NewPersona(cfg config.BrowserConfig, rng *rand.Rand) Persona {
	p := DefaultPersona
	if len(cfg.UserAgents) > 0 {
		p.UserAgent = cfg.UserAgents[rng.Intn(len(cfg.UserAgents))]
		p.Platform = PlatformFor(p.UserAgent)
	}
	if len(cfg.Languages) > 0 {
		p.Languages = append([]string(nil), cfg.Languages...)
	}
	if cfg.WindowWidth > 0 {
		p.Width = cfg.WindowWidth
	}
	if cfg.WindowHeight > 0 {
		p.Height = cfg.WindowHeight
	}
	if j := cfg.WindowJitter; j > 0 {
		p.Width += rng.Intn(2*j+1) - j
		p.Height += rng.Intn(2*j+1) - j
	}
	return p
}

// PlatformFor derives navigator.platform from a user agent string.
func PlatformFor(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Win32"
	case strings.Contains(ua, "Macintosh"), strings.Contains(ua, "Mac OS X"):
		return "MacIntel"
	case strings.Contains(ua, "Linux"):
		return "Linux x86_64"
	}
	return "Win32"
}

// AcceptLanguage renders the persona languages as a header value with
// descending q weights.
func (p Persona) AcceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// Script returns the evasion script with the persona bound in.
func Script(p Persona) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode persona: %w", err)
	}
	return "(function(){const __persona = " + string(data) + ";\n" + evasionsScript + "\n})();", nil
}

// Apply constructs the CDP actions that install the persona on the current
// target.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
	)

	return chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(p.AcceptLanguage()),
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := Script(p)
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": p.AcceptLanguage(),
		}),
	}
}
