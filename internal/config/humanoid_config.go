// File: internal/config/humanoid_config.go
// HumanoidConfig holds the tunables for the typing and clicking cadence used
// when filling forms. Values are milliseconds unless noted.
package config

import "github.com/spf13/viper"

// HumanoidConfig controls how human-like browser input is.
type HumanoidConfig struct {
	Enabled          bool    `mapstructure:"enabled" yaml:"enabled"`
	KeyPauseMeanMs   float64 `mapstructure:"key_pause_mean_ms" yaml:"key_pause_mean_ms"`
	KeyPauseStdDevMs float64 `mapstructure:"key_pause_stddev_ms" yaml:"key_pause_stddev_ms"`
	KeyPauseMinMs    float64 `mapstructure:"key_pause_min_ms" yaml:"key_pause_min_ms"`
	KeyPauseMaxMs    float64 `mapstructure:"key_pause_max_ms" yaml:"key_pause_max_ms"`
	// WordPauseFactor scales the pause after a space or punctuation.
	WordPauseFactor float64 `mapstructure:"word_pause_factor" yaml:"word_pause_factor"`
	ClickPauseMinMs int     `mapstructure:"click_pause_min_ms" yaml:"click_pause_min_ms"`
	ClickPauseMaxMs int     `mapstructure:"click_pause_max_ms" yaml:"click_pause_max_ms"`
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("browser.humanoid.enabled", true)
	v.SetDefault("browser.humanoid.key_pause_mean_ms", 100.0)
	v.SetDefault("browser.humanoid.key_pause_stddev_ms", 28.0)
	v.SetDefault("browser.humanoid.key_pause_min_ms", 50.0)
	v.SetDefault("browser.humanoid.key_pause_max_ms", 150.0)
	v.SetDefault("browser.humanoid.word_pause_factor", 1.8)
	v.SetDefault("browser.humanoid.click_pause_min_ms", 100)
	v.SetDefault("browser.humanoid.click_pause_max_ms", 500)
}
