package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	API       APIConfig        `yaml:"api"`
	Cache     CacheConfig      `yaml:"cache"`
	Catalog   CatalogConfig    `yaml:"catalog"`
	Recipes   RecipesConfig    `yaml:"recipes"`
	Settings  SettingsConfig   `yaml:"settings"`
	Capture   CaptureConfig    `yaml:"capture"`
	Logging   LoggingConfig    `yaml:"logging"`
	Discord   DiscordConfig    `yaml:"discord"`
	Database  DatabaseConfig   `yaml:"database"`
	Reports   []ReportConfig   `yaml:"reports"`
	Schedules []ScheduleConfig `yaml:"schedules,omitempty"`
}

// APIConfig holds auction API configuration
type APIConfig struct {
	BaseURL          string `yaml:"base_url" env:"DONUT_API_BASE_URL"`
	// Credential seeds the tracker when the settings document has none. Never persisted.
	Credential       string `yaml:"-" env:"DONUT_API_KEY"`
	RateLimitDelayMs int    `yaml:"rate_limit_delay_ms"`
	Timeout          string `yaml:"timeout"`
}

// CacheConfig holds price cache configuration
type CacheConfig struct {
	TTL string `yaml:"ttl"`
}

// CatalogConfig points at the good catalog file
type CatalogConfig struct {
	Path             string `yaml:"path"`
	DefaultNamespace string `yaml:"default_namespace"`
}

// RecipesConfig points at the recipe book file
type RecipesConfig struct {
	Path string `yaml:"path"`
}

// SettingsConfig points at the persisted user settings document
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// CaptureConfig configures passive chat capture
type CaptureConfig struct {
	// Path of a chat log to read on startup ("" disables)
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// DiscordConfig holds Discord bot configuration
type DiscordConfig struct {
	Token     string `yaml:"token" env:"DISCORD_TOKEN"`
	ChannelID string `yaml:"channel_id" env:"DISCORD_CHANNEL_ID"`
	GuildID   string `yaml:"guild_id,omitempty" env:"DISCORD_GUILD_ID"`
}

// DatabaseConfig holds the optional snapshot archive configuration
type DatabaseConfig struct {
	URL            string `yaml:"url,omitempty" env:"DATABASE_URL"`
	MigrationsPath string `yaml:"migrations_path"`
}

// ReportConfig describes a profitability report that can be run on demand or on a schedule
type ReportConfig struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description,omitempty"`
	Budget      float64 `yaml:"budget"`
	Limit       int     `yaml:"limit,omitempty"`
	Enabled     bool    `yaml:"enabled"`
}

// ScheduleConfig defines when reports should run
type ScheduleConfig struct {
	ReportName string `yaml:"report_name"`
	Cron       string `yaml:"cron"`
	Enabled    bool   `yaml:"enabled"`
}

// defaultConfig returns the defaults YAML values are layered onto
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:          "https://api.donutsmp.net",
			RateLimitDelayMs: 300,
			Timeout:          "10s",
		},
		Cache: CacheConfig{
			TTL: "5m",
		},
		Catalog: CatalogConfig{
			Path:             "data/catalog.yml",
			DefaultNamespace: "minecraft",
		},
		Recipes: RecipesConfig{
			Path: "data/recipes.yml",
		},
		Settings: SettingsConfig{
			Path: "config/profit-calc.yml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			MigrationsPath: "migrations",
		},
	}
}

// LoadConfig loads configuration for the bot (Discord required)
func LoadConfig(configPath string) (*Config, error) {
	config, err := load(configPath)
	if err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// load reads .env, the YAML file and environment overrides, without validation
func load(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	config := defaultConfig()

	if configPath != "" {
		if err := loadYAMLFile(configPath, config); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	loadEnvironmentVariables(config)

	return config, nil
}

// loadYAMLFile loads configuration from a YAML file
func loadYAMLFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

// loadEnvironmentVariables overrides config with environment variables
func loadEnvironmentVariables(config *Config) {
	if apiKey := os.Getenv("DONUT_API_KEY"); apiKey != "" {
		config.API.Credential = apiKey
	}
	if baseURL := os.Getenv("DONUT_API_BASE_URL"); baseURL != "" {
		config.API.BaseURL = baseURL
	}
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		config.Discord.Token = token
	}
	if channelID := os.Getenv("DISCORD_CHANNEL_ID"); channelID != "" {
		config.Discord.ChannelID = channelID
	}
	if guildID := os.Getenv("DISCORD_GUILD_ID"); guildID != "" {
		config.Discord.GuildID = guildID
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if settingsPath := os.Getenv("PROFIT_CALC_SETTINGS"); settingsPath != "" {
		config.Settings.Path = settingsPath
	}
}

// validateConfig ensures required configuration is present
func validateConfig(config *Config) error {
	if err := validateCommon(config); err != nil {
		return err
	}
	if config.Discord.Token == "" {
		return fmt.Errorf("discord token is required (set DISCORD_TOKEN environment variable)")
	}
	if config.Discord.ChannelID == "" {
		return fmt.Errorf("discord channel ID is required (set DISCORD_CHANNEL_ID environment variable)")
	}
	return nil
}

func validateCommon(config *Config) error {
	if config.API.BaseURL == "" {
		return fmt.Errorf("api base_url must be configured")
	}
	if config.Catalog.Path == "" {
		return fmt.Errorf("catalog path must be configured")
	}
	if config.Recipes.Path == "" {
		return fmt.Errorf("recipes path must be configured")
	}
	for _, schedule := range config.Schedules {
		if config.GetReportByName(schedule.ReportName) == nil {
			return fmt.Errorf("schedule references unknown report %q", schedule.ReportName)
		}
	}
	return nil
}

// GetTimeout parses the per-request timeout and returns a duration
func (c *APIConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 10 * time.Second
	}
	duration, err := time.ParseDuration(c.Timeout)
	if err != nil || duration <= 0 {
		return 10 * time.Second
	}
	return duration
}

// GetRateLimitDelay returns the inter-page delay as a duration
func (c *APIConfig) GetRateLimitDelay() time.Duration {
	if c.RateLimitDelayMs < 100 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.RateLimitDelayMs) * time.Millisecond
}

// GetTTL returns the observation time-to-live
func (c *CacheConfig) GetTTL() time.Duration {
	if c.TTL == "" {
		return 5 * time.Minute
	}
	duration, err := time.ParseDuration(c.TTL)
	if err != nil || duration <= 0 {
		return 5 * time.Minute
	}
	return duration
}

// GetLimit returns the max rows a report shows
func (r *ReportConfig) GetLimit() int {
	if r.Limit <= 0 {
		return 10
	}
	return r.Limit
}

// GetReportByName returns a report configuration by name, or nil if not found
func (c *Config) GetReportByName(name string) *ReportConfig {
	for i := range c.Reports {
		if c.Reports[i].Name == name {
			return &c.Reports[i]
		}
	}
	return nil
}
