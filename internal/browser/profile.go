package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const profilePattern = "chrome_stealth_*"

// Profile is a throwaway Chrome user-data directory seeded to look like a
// profile that has been used before.
type Profile struct {
	root   string
	logger *zap.Logger

	once      sync.Once
	removeErr error
}

// NewProfile creates a fresh profile directory under baseDir. An empty baseDir
// selects the system temp directory; a leading ~ is expanded.
func NewProfile(baseDir string, languages []string, logger *zap.Logger) (*Profile, error) {
	if baseDir != "" {
		expanded, err := homedir.Expand(baseDir)
		if err != nil {
			return nil, fmt.Errorf("expand profile base dir: %w", err)
		}
		if err := os.MkdirAll(expanded, 0o755); err != nil {
			return nil, fmt.Errorf("create profile base dir: %w", err)
		}
		baseDir = expanded
	}

	root, err := os.MkdirTemp(baseDir, profilePattern)
	if err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	p := &Profile{root: root, logger: logger.Named("profile")}

	if err := p.seed(languages); err != nil {
		_ = os.RemoveAll(root)
		return nil, err
	}
	p.logger.Debug("Created browser profile.", zap.String("dir", root))
	return p, nil
}

// Root is the temp directory that owns everything the profile wrote.
func (p *Profile) Root() string { return p.root }

// UserDataDir is passed to Chrome as --user-data-dir.
func (p *Profile) UserDataDir() string { return filepath.Join(p.root, "User Data") }

// Remove deletes the profile directory. Only the first call does any work;
// later calls return the first result.
func (p *Profile) Remove() error {
	p.once.Do(func() {
		if err := os.RemoveAll(p.root); err != nil {
			p.removeErr = fmt.Errorf("remove profile %s: %w", p.root, err)
			p.logger.Warn("Failed to remove browser profile.", zap.String("dir", p.root), zap.Error(err))
			return
		}
		p.logger.Debug("Removed browser profile.", zap.String("dir", p.root))
	})
	return p.removeErr
}

func (p *Profile) seed(languages []string) error {
	defaultDir := filepath.Join(p.UserDataDir(), "Default")
	if err := os.MkdirAll(defaultDir, 0o755); err != nil {
		return fmt.Errorf("create profile default dir: %w", err)
	}
	if err := writeJSON(filepath.Join(defaultDir, "Preferences"), preferences(languages)); err != nil {
		return err
	}
	return writeJSON(filepath.Join(p.UserDataDir(), "Local State"), localState())
}

func preferences(languages []string) map[string]interface{} {
	if len(languages) == 0 {
		languages = []string{"en-US", "en"}
	}
	return map[string]interface{}{
		"profile": map[string]interface{}{
			"exit_type":      "Normal",
			"exited_cleanly": true,
			"default_content_setting_values": map[string]interface{}{
				"notifications": 2,
				"geolocation":   2,
			},
			"password_manager_enabled": false,
		},
		"credentials_enable_service": false,
		"intl": map[string]interface{}{
			"accept_languages": strings.Join(languages, ","),
		},
		"browser": map[string]interface{}{
			"has_seen_welcome_page": true,
		},
	}
}

func localState() map[string]interface{} {
	return map[string]interface{}{
		"browser": map[string]interface{}{
			"enabled_labs_experiments": []string{},
		},
		"profile": map[string]interface{}{
			"info_cache": map[string]interface{}{
				"Default": map[string]interface{}{
					"name":                  "Person 1",
					"is_using_default_name": true,
				},
			},
		},
	}
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
