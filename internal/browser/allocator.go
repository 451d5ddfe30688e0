package browser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/registrar/internal/browser/stealth"
	"github.com/xkilldash9x/registrar/internal/config"
)

// allocatorFlags returns the Chrome command line flags for one session.
// Headless is handled separately since chromedp.Headless sets several flags.
func allocatorFlags(cfg config.BrowserConfig, userDataDir string, p stealth.Persona) map[string]interface{} {
	flags := map[string]interface{}{
		"no-first-run":                        true,
		"no-default-browser-check":            true,
		"no-sandbox":                          true,
		"disable-dev-shm-usage":               true,
		"disable-blink-features":              "AutomationControlled",
		"enable-automation":                   false,
		"disable-infobars":                    true,
		"disable-popup-blocking":              true,
		"disable-background-timer-throttling": true,
		"password-store":                      "basic",
		"window-size":                         fmt.Sprintf("%d,%d", p.Width, p.Height),
		"user-agent":                          p.UserAgent,
		"lang":                                strings.Join(p.Languages, ","),
	}
	if userDataDir != "" {
		flags["user-data-dir"] = userDataDir
	}
	if cfg.DisableGPU {
		flags["disable-gpu"] = true
	}

	for _, arg := range cfg.Args {
		name, value := parseArg(arg)
		if name == "" {
			continue
		}
		flags[name] = value
	}
	return flags
}

// parseArg splits "--key=value" or "--flag" into a flag name and value.
func parseArg(arg string) (string, interface{}) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return "", nil
	}
	if name, value, ok := strings.Cut(arg, "="); ok {
		return name, value
	}
	return arg, true
}

// AllocatorOptions builds the chromedp exec allocator options for a session.
func AllocatorOptions(cfg config.BrowserConfig, userDataDir string, p stealth.Persona) []chromedp.ExecAllocatorOption {
	flags := allocatorFlags(cfg, userDataDir, p)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := make([]chromedp.ExecAllocatorOption, 0, len(names)+1)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	return opts
}
