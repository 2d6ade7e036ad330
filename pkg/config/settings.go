package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"craft-flipping/pkg/logging"
)

// Settings defaults
const (
	DefaultAutoRefresh            = true
	DefaultRefreshIntervalMinutes = 5
)

// settingsDocument is the on-disk shape of the user settings
type settingsDocument struct {
	Credential             string `yaml:"credential"`
	AutoRefresh            bool   `yaml:"auto_refresh"`
	RefreshIntervalMinutes int    `yaml:"refresh_interval_minutes"`
}

// Settings is the persisted user settings document. Every setter saves immediately.
type Settings struct {
	mu     sync.RWMutex
	path   string
	doc    settingsDocument
	logger *logging.Logger
}

// NewSettings returns in-memory defaults bound to path. Call Load to read the file.
func NewSettings(path string, logger *logging.Logger) *Settings {
	return &Settings{
		path: path,
		doc: settingsDocument{
			AutoRefresh:            DefaultAutoRefresh,
			RefreshIntervalMinutes: DefaultRefreshIntervalMinutes,
		},
		logger: logging.OrQuiet(logger),
	}
}

// LoadSettings creates a Settings for path and loads it
func LoadSettings(path string, logger *logging.Logger) (*Settings, error) {
	s := NewSettings(path, logger)
	if err := s.Load(); err != nil {
		return s, err
	}
	return s, nil
}

// Load reads the settings file, creating it with defaults when missing.
// On a corrupt or unreadable file the defaults stay in memory and the error is returned.
func (s *Settings) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.WithComponent("settings").WithField("path", s.path).Info("Settings file not found, creating defaults")
			return s.saveLocked()
		}
		s.logger.WithComponent("settings").WithField("path", s.path).WithError(err).Error("Failed to read settings")
		return fmt.Errorf("failed to read settings %s: %w", s.path, err)
	}

	doc := s.doc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		s.logger.WithComponent("settings").WithField("path", s.path).WithError(err).Error("Failed to parse settings")
		return fmt.Errorf("failed to parse settings %s: %w", s.path, err)
	}
	if doc.RefreshIntervalMinutes < 1 {
		doc.RefreshIntervalMinutes = DefaultRefreshIntervalMinutes
	}
	s.doc = doc
	return nil
}

// Save writes the current settings to disk
func (s *Settings) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Settings) saveLocked() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}

	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.logger.WithComponent("settings").WithField("path", s.path).WithError(err).Error("Failed to save settings")
		return fmt.Errorf("failed to write settings %s: %w", s.path, err)
	}
	return nil
}

// Path returns the settings file location
func (s *Settings) Path() string {
	return s.path
}

// Credential returns the stored API credential ("" when unset)
func (s *Settings) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Credential
}

// HasCredential reports whether a non-empty credential is stored
func (s *Settings) HasCredential() bool {
	return s.Credential() != ""
}

// SetCredential stores the credential and saves
func (s *Settings) SetCredential(credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Credential = credential
	return s.saveLocked()
}

// AutoRefresh reports whether periodic refresh is enabled
func (s *Settings) AutoRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.AutoRefresh
}

// SetAutoRefresh toggles periodic refresh and saves
func (s *Settings) SetAutoRefresh(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.AutoRefresh = enabled
	return s.saveLocked()
}

// RefreshIntervalMinutes returns the auto refresh period in minutes
func (s *Settings) RefreshIntervalMinutes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.RefreshIntervalMinutes
}

// SetRefreshIntervalMinutes sets the auto refresh period and saves
func (s *Settings) SetRefreshIntervalMinutes(minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("refresh interval must be at least 1 minute, got %d", minutes)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.RefreshIntervalMinutes = minutes
	return s.saveLocked()
}

// ParseToggle reads an on/off flag value such as "on", "off", "true" or "0"
func ParseToggle(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", value)
	}
}
