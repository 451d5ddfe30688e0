package stealth

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/registrar/internal/config"
)

func TestNewPersona(t *testing.T) {
	cfg := config.BrowserConfig{
		WindowWidth:  1366,
		WindowHeight: 768,
		WindowJitter: 50,
		UserAgents: []string{
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Languages: []string{"en-GB", "en"},
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		p := NewPersona(cfg, rng)
		assert.Equal(t, cfg.UserAgents[0], p.UserAgent)
		assert.Equal(t, "MacIntel", p.Platform)
		assert.Equal(t, []string{"en-GB", "en"}, p.Languages)
		assert.InDelta(t, 1366, p.Width, 50)
		assert.InDelta(t, 768, p.Height, 50)
	}
}

func TestNewPersonaDefaults(t *testing.T) {
	p := NewPersona(config.BrowserConfig{}, rand.New(rand.NewSource(1)))
	assert.Equal(t, DefaultPersona, p)
}

func TestPlatformFor(t *testing.T) {
	assert.Equal(t, "Win32", PlatformFor("Mozilla/5.0 (Windows NT 10.0; Win64; x64)"))
	assert.Equal(t, "MacIntel", PlatformFor("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"))
	assert.Equal(t, "Linux x86_64", PlatformFor("Mozilla/5.0 (X11; Linux x86_64)"))
	assert.Equal(t, "Win32", PlatformFor("curl/8.0"))
}

func TestAcceptLanguage(t *testing.T) {
	p := Persona{Languages: []string{"en-US", "en", "ar"}}
	assert.Equal(t, "en-US,en;q=0.9,ar;q=0.8", p.AcceptLanguage())
}

func TestScriptBindsPersona(t *testing.T) {
	script, err := Script(DefaultPersona)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "(function(){const __persona = {"))
	assert.Contains(t, script, `"platform":"Win32"`)
	assert.Contains(t, script, `"languages":["en-US","en"]`)
	assert.Contains(t, script, "'webdriver'")
}

func TestApply(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tasks := Apply(DefaultPersona, zap.New(core))

	assert.Len(t, tasks, 4)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Applying browser stealth persona", logs.All()[0].Message)
	assert.Equal(t, "Win32", logs.All()[0].ContextMap()["platform"])
}
