// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns defaults plus the fields that have no default.
func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.SheetsCfg.SpreadsheetID = "sheet-123"
	return cfg
}

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "registrar", cfg.Logger().ServiceName)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 10*time.Second, cfg.Browser().LocatorTimeout)
	assert.Equal(t, 90*time.Second, cfg.Network().NavigationTimeout)
	assert.Equal(t, "Sample ", cfg.Sheets().SheetName)
	assert.Equal(t, "A:N", cfg.Sheets().Range)
	assert.Equal(t, "H", cfg.Sheets().Columns.StatusFallback)
	assert.Equal(t, []string{"mailtm", "guerrilla"}, cfg.Mail().Providers)
	assert.Equal(t, 120*time.Second, cfg.Mail().OTPTimeout)
	assert.Equal(t, "optimistic", cfg.Registration().ManualPolicy)
	assert.Equal(t, 15*time.Second, cfg.Registration().AccountWindow)
	assert.Contains(t, cfg.Registration().Fields.Passport, "PASSPORT NUMBER")
	assert.Equal(t, 5*time.Second, cfg.Runner().DelayMin)
	assert.Equal(t, 10*time.Second, cfg.Runner().DelayMax)
	assert.True(t, cfg.Browser().Humanoid.Enabled)
	assert.Len(t, cfg.Browser().UserAgents, len(DefaultUserAgents))
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := validConfig()
		assert.NoError(t, cfg.Validate(), "A valid config should not produce a validation error")

		missingSheet := *validConfig()
		missingSheet.SheetsCfg.SpreadsheetID = ""
		err := missingSheet.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "spreadsheet_id is required")

		badLocator := *validConfig()
		badLocator.BrowserCfg.LocatorTimeout = 0
		err = badLocator.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.locator_timeout must be a positive duration")

		proxied := *validConfig()
		proxied.NetworkCfg.Proxy = "http://127.0.0.1:8118"
		assert.NoError(t, proxied.Validate())

		badProxy := *validConfig()
		badProxy.NetworkCfg.Proxy = "127.0.0.1"
		err = badProxy.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "network.proxy")
	})

	t.Run("Mail Validation", func(t *testing.T) {
		m := validConfig().MailCfg
		assert.NoError(t, m.Validate())

		empty := m
		empty.Providers = nil
		assert.ErrorContains(t, empty.Validate(), "at least one provider is required")

		unknown := m
		unknown.Providers = []string{"mailtm", "carrier-pigeon"}
		assert.ErrorContains(t, unknown.Validate(), `unknown provider "carrier-pigeon"`)

		badInterval := m
		badInterval.PollInterval = 0
		assert.ErrorContains(t, badInterval.Validate(), "poll_interval must be a positive duration")
	})

	t.Run("Registration Validation", func(t *testing.T) {
		r := validConfig().RegistrationCfg
		assert.NoError(t, r.Validate())

		badPolicy := r
		badPolicy.ManualPolicy = "hopeful"
		assert.ErrorContains(t, badPolicy.Validate(), "manual_policy must be 'optimistic' or 'strict'")

		negative := r
		negative.OTPWindow = -time.Second
		assert.ErrorContains(t, negative.Validate(), "otp_window must not be negative")

		badKind := r
		badKind.Locators = map[string][]LocatorSpec{"guest_type": {{Kind: "regex", Expr: "x"}}}
		assert.ErrorContains(t, badKind.Validate(), `unknown kind "regex"`)

		emptyExpr := r
		emptyExpr.Locators = map[string][]LocatorSpec{"guest_type": {{Kind: "css", Expr: " "}}}
		assert.ErrorContains(t, emptyExpr.Validate(), "empty expression")
	})

	t.Run("Runner Validation", func(t *testing.T) {
		r := RunnerConfig{DelayMin: time.Second, DelayMax: 2 * time.Second}
		assert.NoError(t, r.Validate())

		inverted := r
		inverted.DelayMin = 3 * time.Second
		assert.ErrorContains(t, inverted.Validate(), "must not exceed delay_max")

		negLimit := r
		negLimit.Limit = -1
		assert.ErrorContains(t, negLimit.Validate(), "limit must not be negative")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
sheets:
  spreadsheet_id: "from-yaml"
  sheet_name: "Pilgrims"
runner:
  delay_min: 0s
  delay_max: 1s
registration:
  locators:
    guest_type:
      - kind: css
        expr: "#type3"
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "from-yaml", cfg.Sheets().SpreadsheetID)
		assert.Equal(t, "Pilgrims", cfg.Sheets().SheetName)
		assert.Equal(t, time.Duration(0), cfg.Runner().DelayMin)
		require.Len(t, cfg.Registration().Locators["guest_type"], 1)
		assert.Equal(t, "#type3", cfg.Registration().Locators["guest_type"][0].Expr)
		// Defaults survive alongside file values.
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("sheets.spreadsheet_id", "x")
		v.Set("registration.manual_policy", "sometimes")

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "manual_policy")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
database:
  url: "postgres://configfile/db"
`)))

		t.Setenv("GOOGLE_SHEETS_ID", "sheet-from-env")
		t.Setenv("GOOGLE_CREDENTIALS_FILE", "/secrets/creds.json")
		t.Setenv("REGISTRAR_DATABASE_URL", "postgres://envvar/db")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "sheet-from-env", cfg.Sheets().SpreadsheetID)
		assert.Equal(t, "/secrets/creds.json", cfg.Sheets().CredentialsFile)
		assert.Equal(t, "postgres://envvar/db", cfg.Database().URL, "env must override the config file")
	})
}

func TestDecodeFromViper(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("registration.manual_policy", "sometimes")

	cfg, err := DecodeFromViper(v)
	require.NoError(t, err, "decoding alone never validates")
	assert.Equal(t, "sometimes", cfg.Registration().ManualPolicy)
	assert.Equal(t, "logs/registrar.log", cfg.Logger().LogFile)
}

func TestSetters(t *testing.T) {
	cfg := validConfig()
	var iface Interface = cfg

	iface.SetBrowserHeadless(true)
	iface.SetRunnerLimit(3)
	iface.SetRunnerDryRun(true)

	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 3, cfg.Runner().Limit)
	assert.True(t, cfg.Runner().DryRun)
}
