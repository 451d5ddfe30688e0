// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Sheets() SheetsConfig
	Mail() MailConfig
	Registration() RegistrationConfig
	Runner() RunnerConfig

	// Setters used by CLI flag overrides.
	SetBrowserHeadless(bool)
	SetRunnerLimit(int)
	SetRunnerDryRun(bool)
}

// Config holds the entire application configuration.
// Fields are exported so viper can populate them; callers should go through
// the Interface getters.
type Config struct {
	LoggerCfg       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg     DatabaseConfig     `mapstructure:"database" yaml:"database"`
	BrowserCfg      BrowserConfig      `mapstructure:"browser" yaml:"browser"`
	NetworkCfg      NetworkConfig      `mapstructure:"network" yaml:"network"`
	SheetsCfg       SheetsConfig       `mapstructure:"sheets" yaml:"sheets"`
	MailCfg         MailConfig         `mapstructure:"mail" yaml:"mail"`
	RegistrationCfg RegistrationConfig `mapstructure:"registration" yaml:"registration"`
	RunnerCfg       RunnerConfig       `mapstructure:"runner" yaml:"runner"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig             { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig         { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig           { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig           { return c.NetworkCfg }
func (c *Config) Sheets() SheetsConfig             { return c.SheetsCfg }
func (c *Config) Mail() MailConfig                 { return c.MailCfg }
func (c *Config) Registration() RegistrationConfig { return c.RegistrationCfg }
func (c *Config) Runner() RunnerConfig             { return c.RunnerCfg }

// --- Setters ---

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetRunnerLimit(n int)      { c.RunnerCfg.Limit = n }
func (c *Config) SetRunnerDryRun(b bool)    { c.RunnerCfg.DryRun = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the connection details for the optional outcome journal.
// An empty URL disables the journal.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the automated browser.
type BrowserConfig struct {
	Headless       bool           `mapstructure:"headless" yaml:"headless"`
	DisableGPU     bool           `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	Args           []string       `mapstructure:"args" yaml:"args"`
	ProfileBaseDir string         `mapstructure:"profile_base_dir" yaml:"profile_base_dir"`
	WindowWidth    int            `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight   int            `mapstructure:"window_height" yaml:"window_height"`
	WindowJitter   int            `mapstructure:"window_jitter" yaml:"window_jitter"`
	UserAgents     []string       `mapstructure:"user_agents" yaml:"user_agents"`
	Languages      []string       `mapstructure:"languages" yaml:"languages"`
	LocatorTimeout time.Duration  `mapstructure:"locator_timeout" yaml:"locator_timeout"`
	ActionTimeout  time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout"`
	Humanoid       HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
}

// NetworkConfig tunes navigation and outbound HTTP behavior.
type NetworkConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	// Proxy routes the mail provider API calls; empty defers to HTTP(S)_PROXY.
	Proxy string `mapstructure:"proxy" yaml:"proxy"`
}

// SheetsConfig addresses the spreadsheet that acts as record source and status sink.
type SheetsConfig struct {
	SpreadsheetID   string        `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file"`
	SheetName       string        `mapstructure:"sheet_name" yaml:"sheet_name"`
	Range           string        `mapstructure:"range" yaml:"range"`
	Columns         ColumnsConfig `mapstructure:"columns" yaml:"columns"`
}

// ColumnsConfig maps sink roles to header keywords, with column letters used
// when the header has no matching cell.
type ColumnsConfig struct {
	StatusHeader   string `mapstructure:"status_header" yaml:"status_header"`
	EmailHeader    string `mapstructure:"email_header" yaml:"email_header"`
	ErrorHeader    string `mapstructure:"error_header" yaml:"error_header"`
	StatusFallback string `mapstructure:"status_fallback" yaml:"status_fallback"`
	EmailFallback  string `mapstructure:"email_fallback" yaml:"email_fallback"`
	ErrorFallback  string `mapstructure:"error_fallback" yaml:"error_fallback"`
}

// MailConfig configures the disposable mailbox providers and OTP polling.
type MailConfig struct {
	Providers         []string      `mapstructure:"providers" yaml:"providers"`
	MailTMBaseURL     string        `mapstructure:"mailtm_base_url" yaml:"mailtm_base_url"`
	GuerrillaBaseURL  string        `mapstructure:"guerrilla_base_url" yaml:"guerrilla_base_url"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	OTPTimeout        time.Duration `mapstructure:"otp_timeout" yaml:"otp_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	OTPPatterns       []string      `mapstructure:"otp_patterns" yaml:"otp_patterns"`
}

// LocatorSpec is one selector expression in a locator fallback chain.
type LocatorSpec struct {
	Kind string `mapstructure:"kind" yaml:"kind"`
	Expr string `mapstructure:"expr" yaml:"expr"`
}

// RegistrationConfig drives the form-filling steps.
type RegistrationConfig struct {
	BaseURL          string                   `mapstructure:"base_url" yaml:"base_url"`
	TitleKeyword     string                   `mapstructure:"title_keyword" yaml:"title_keyword"`
	MinContentLength int                      `mapstructure:"min_content_length" yaml:"min_content_length"`
	PageLoadTimeout  time.Duration            `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	SettleDelay      time.Duration            `mapstructure:"settle_delay" yaml:"settle_delay"`
	ManualPolicy     string                   `mapstructure:"manual_policy" yaml:"manual_policy"`
	AccountWindow    time.Duration            `mapstructure:"account_window" yaml:"account_window"`
	OTPSettle        time.Duration            `mapstructure:"otp_settle" yaml:"otp_settle"`
	OTPWindow        time.Duration            `mapstructure:"otp_window" yaml:"otp_window"`
	DefaultPassport  string                   `mapstructure:"default_passport" yaml:"default_passport"`
	Fields           FieldsConfig             `mapstructure:"fields" yaml:"fields"`
	Locators         map[string][]LocatorSpec `mapstructure:"locators" yaml:"locators"`
}

// FieldsConfig lists the sheet header aliases read for each form field.
type FieldsConfig struct {
	Visa        []string `mapstructure:"visa" yaml:"visa"`
	Nationality []string `mapstructure:"nationality" yaml:"nationality"`
	Passport    []string `mapstructure:"passport" yaml:"passport"`
	DOB         []string `mapstructure:"dob" yaml:"dob"`
	Sex         []string `mapstructure:"sex" yaml:"sex"`
	Phone       []string `mapstructure:"phone" yaml:"phone"`
}

// RunnerConfig controls the record loop.
type RunnerConfig struct {
	DelayMin time.Duration `mapstructure:"delay_min" yaml:"delay_min"`
	DelayMax time.Duration `mapstructure:"delay_max" yaml:"delay_max"`
	// Limit caps the records processed per run; zero means no cap.
	Limit  int  `mapstructure:"limit" yaml:"limit"`
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "registrar")
	v.SetDefault("logger.log_file", "logs/registrar.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.profile_base_dir", "")
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 768)
	v.SetDefault("browser.window_jitter", 50)
	v.SetDefault("browser.user_agents", DefaultUserAgents)
	v.SetDefault("browser.languages", []string{"en-US", "en"})
	v.SetDefault("browser.locator_timeout", "10s")
	v.SetDefault("browser.action_timeout", "30s")
	setHumanoidDefaults(v)

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.post_load_wait", "5s")
	v.SetDefault("network.proxy", "")

	// -- Sheets --
	v.SetDefault("sheets.credentials_file", "google_credentials.json")
	v.SetDefault("sheets.sheet_name", "Sample ")
	v.SetDefault("sheets.range", "A:N")
	v.SetDefault("sheets.columns.status_header", "status")
	v.SetDefault("sheets.columns.email_header", "email")
	v.SetDefault("sheets.columns.error_header", "error")
	v.SetDefault("sheets.columns.status_fallback", "H")
	v.SetDefault("sheets.columns.email_fallback", "M")
	v.SetDefault("sheets.columns.error_fallback", "N")

	// -- Mail --
	v.SetDefault("mail.providers", []string{"mailtm", "guerrilla"})
	v.SetDefault("mail.mailtm_base_url", "https://api.mail.tm")
	v.SetDefault("mail.guerrilla_base_url", "https://api.guerrillamail.com/ajax.php")
	v.SetDefault("mail.poll_interval", "10s")
	v.SetDefault("mail.otp_timeout", "120s")
	v.SetDefault("mail.requests_per_second", 2.0)

	// -- Registration --
	v.SetDefault("registration.base_url", "https://services.nusuk.sa/nusuk-svc/auth/register")
	v.SetDefault("registration.title_keyword", "nusuk")
	v.SetDefault("registration.min_content_length", 1000)
	v.SetDefault("registration.page_load_timeout", "30s")
	v.SetDefault("registration.settle_delay", "2s")
	v.SetDefault("registration.manual_policy", "optimistic")
	v.SetDefault("registration.account_window", "15s")
	v.SetDefault("registration.otp_settle", "3s")
	v.SetDefault("registration.otp_window", "20s")
	v.SetDefault("registration.fields.visa", []string{"VISA NO", "Visa No", "VISA NUMBER"})
	v.SetDefault("registration.fields.nationality", []string{"NATIONALITY", "Nationality"})
	v.SetDefault("registration.fields.passport", []string{"Passport NO", "PASSPORT NO", "Passport Number", "PASSPORT NUMBER", "Passport", "PASSPORT"})
	v.SetDefault("registration.fields.dob", []string{"DOB", "Date of Birth", "DATE OF BIRTH"})
	v.SetDefault("registration.fields.sex", []string{"SEX", "Sex", "GENDER", "Gender"})
	v.SetDefault("registration.fields.phone", []string{"MOBILE", "PHONE", "VISA NO"})

	// -- Runner --
	v.SetDefault("runner.delay_min", "5s")
	v.SetDefault("runner.delay_max", "10s")
	v.SetDefault("runner.limit", 0)
	v.SetDefault("runner.dry_run", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := DecodeFromViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DecodeFromViper unmarshals without validating. Commands that never touch
// the sheet or the site use it.
func DecodeFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets and identifiers commonly supplied through the environment.
	_ = v.BindEnv("sheets.spreadsheet_id", "REGISTRAR_SHEETS_SPREADSHEET_ID", "GOOGLE_SHEETS_ID")
	_ = v.BindEnv("sheets.credentials_file", "REGISTRAR_SHEETS_CREDENTIALS_FILE", "GOOGLE_CREDENTIALS_FILE")
	_ = v.BindEnv("database.url", "REGISTRAR_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.SheetsCfg.Validate(); err != nil {
		return fmt.Errorf("sheets configuration invalid: %w", err)
	}
	if err := c.MailCfg.Validate(); err != nil {
		return fmt.Errorf("mail configuration invalid: %w", err)
	}
	if err := c.RegistrationCfg.Validate(); err != nil {
		return fmt.Errorf("registration configuration invalid: %w", err)
	}
	if err := c.RunnerCfg.Validate(); err != nil {
		return fmt.Errorf("runner configuration invalid: %w", err)
	}
	if c.BrowserCfg.LocatorTimeout <= 0 {
		return fmt.Errorf("browser.locator_timeout must be a positive duration")
	}
	if c.NetworkCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if p := c.NetworkCfg.Proxy; p != "" {
		if u, err := url.Parse(p); err != nil || u.Host == "" {
			return fmt.Errorf("network.proxy %q is not a valid proxy URL", p)
		}
	}
	return nil
}

// Validate checks the Sheets configuration.
func (s *SheetsConfig) Validate() error {
	if strings.TrimSpace(s.SpreadsheetID) == "" {
		return fmt.Errorf("spreadsheet_id is required (hint: set GOOGLE_SHEETS_ID)")
	}
	if strings.TrimSpace(s.CredentialsFile) == "" {
		return fmt.Errorf("credentials_file is required")
	}
	if s.Range == "" {
		return fmt.Errorf("range is required")
	}
	return nil
}

// KnownMailProviders lists the provider names the mailbox package can build.
var KnownMailProviders = []string{"mailtm", "guerrilla"}

// Validate checks the Mail configuration.
func (m *MailConfig) Validate() error {
	if len(m.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	for _, p := range m.Providers {
		if !isKnownProvider(p) {
			return fmt.Errorf("unknown provider %q", p)
		}
	}
	if m.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if m.OTPTimeout < 0 {
		return fmt.Errorf("otp_timeout must not be negative")
	}
	if m.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}
	return nil
}

func isKnownProvider(name string) bool {
	for _, k := range KnownMailProviders {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// Validate checks the Registration configuration.
func (r *RegistrationConfig) Validate() error {
	if r.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	switch strings.ToLower(r.ManualPolicy) {
	case "optimistic", "strict":
	default:
		return fmt.Errorf("manual_policy must be 'optimistic' or 'strict', got %q", r.ManualPolicy)
	}
	for name, d := range map[string]time.Duration{
		"settle_delay":   r.SettleDelay,
		"account_window": r.AccountWindow,
		"otp_settle":     r.OTPSettle,
		"otp_window":     r.OTPWindow,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	for name, specs := range r.Locators {
		if len(specs) == 0 {
			return fmt.Errorf("locator %q has no strategies", name)
		}
		for _, s := range specs {
			switch strings.ToLower(s.Kind) {
			case "css", "xpath", "id", "jspath":
			default:
				return fmt.Errorf("locator %q has unknown kind %q", name, s.Kind)
			}
			if strings.TrimSpace(s.Expr) == "" {
				return fmt.Errorf("locator %q has an empty expression", name)
			}
		}
	}
	return nil
}

// Validate checks the Runner configuration.
func (r *RunnerConfig) Validate() error {
	if r.DelayMin < 0 || r.DelayMax < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if r.DelayMin > r.DelayMax {
		return fmt.Errorf("delay_min (%s) must not exceed delay_max (%s)", r.DelayMin, r.DelayMax)
	}
	if r.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}

// DefaultUserAgents is the persona pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}
