// Package config provides configuration management for the agent mesh.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the mesh.
type Config struct {
	System     SystemConfig           `mapstructure:"system"`
	Logging    LoggingConfig          `mapstructure:"logging"`
	APIService APIServiceConfig       `mapstructure:"apiService"`
	Proxy      ProxyConfig            `mapstructure:"proxy"`
	FileStore  FileStoreConfig        `mapstructure:"filestore"`
	NATS       NATSConfig             `mapstructure:"nats"`
	Prompts    PromptsConfig          `mapstructure:"prompts"`
	Agents     map[string]AgentConfig `mapstructure:"agents"`
}

// SystemConfig holds the registry service configuration shared by every
// process in the mesh.
type SystemConfig struct {
	Host                string   `mapstructure:"host"`
	Port                int      `mapstructure:"port"`
	KeepAliveInterval   int      `mapstructure:"keepAliveInterval"`  // in seconds
	KeepAliveThreshold  int      `mapstructure:"keepAliveThreshold"` // in seconds
	SupportedMediaTypes []string `mapstructure:"supportedMediaTypes"`
	Role                string   `mapstructure:"role"` // selects the planner prompt
	ReadTimeout         int      `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout        int      `mapstructure:"writeTimeout"` // in seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// APIServiceConfig holds the reasoning-model provider configuration.
type APIServiceConfig struct {
	APIKey  string `mapstructure:"apiKey"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"baseUrl"`
	Tools   bool   `mapstructure:"tools"`
}

// ProxyConfig holds the optional outbound HTTP proxy configuration.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// FileStoreConfig holds the content-addressed file store configuration.
type FileStoreConfig struct {
	Dir string `mapstructure:"dir"`
}

// NATSConfig holds event bus configuration. An empty URL selects the
// in-memory bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// PromptsConfig maps planner roles to system prompts. The prompt selected by
// system.role seeds every new user conversation.
type PromptsConfig struct {
	Planner map[string]string `mapstructure:"planner"`
}

// SkillConfig describes one advertised skill on an agent card.
type SkillConfig struct {
	ID          string   `mapstructure:"id"`
	Name        string   `mapstructure:"name"`
	Description string   `mapstructure:"description"`
	Tags        []string `mapstructure:"tags"`
}

// AgentConfig describes one worker personality. Workers differ only by
// configuration, never by code.
type AgentConfig struct {
	Port         int           `mapstructure:"port"`
	Category     string        `mapstructure:"category"`
	Expose       bool          `mapstructure:"expose"`
	VisibleTo    []string      `mapstructure:"visibleTo"`
	Description  string        `mapstructure:"description"`
	Version      string        `mapstructure:"version"`
	SystemPrompt string        `mapstructure:"systemPrompt"`
	Skills       []SkillConfig `mapstructure:"skills"`
}

// KeepAliveIntervalDuration returns the keep-alive interval as a time.Duration.
func (s *SystemConfig) KeepAliveIntervalDuration() time.Duration {
	return time.Duration(s.KeepAliveInterval) * time.Second
}

// KeepAliveThresholdDuration returns the keep-alive threshold as a time.Duration.
func (s *SystemConfig) KeepAliveThresholdDuration() time.Duration {
	return time.Duration(s.KeepAliveThreshold) * time.Second
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *SystemConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *SystemConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RegistryURL returns the base URL of the registry service.
func (s *SystemConfig) RegistryURL() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// PlannerPrompt returns the planner system prompt for the configured role.
func (c *Config) PlannerPrompt() string {
	if p, ok := c.Prompts.Planner[c.System.Role]; ok {
		return p
	}
	return c.Prompts.Planner["default"]
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTMESH_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// System defaults. The keep-alive interval must stay strictly below the
	// threshold; the recommended ratio is 1:3.
	v.SetDefault("system.host", "0.0.0.0")
	v.SetDefault("system.port", 8200)
	v.SetDefault("system.keepAliveInterval", 10)
	v.SetDefault("system.keepAliveThreshold", 30)
	v.SetDefault("system.supportedMediaTypes", []string{"image/png", "image/jpeg"})
	v.SetDefault("system.role", "default")
	v.SetDefault("system.readTimeout", 30)
	v.SetDefault("system.writeTimeout", 600)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// Reasoning-model provider defaults
	v.SetDefault("apiService.apiKey", "")
	v.SetDefault("apiService.model", "gpt-4o")
	v.SetDefault("apiService.baseUrl", "")
	v.SetDefault("apiService.tools", true)

	// Proxy defaults
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.url", "")

	// File store defaults
	v.SetDefault("filestore.dir", "data/filesystem")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("prompts.planner", map[string]string{})
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTMESH_ with snake_case naming.
// The config file should be named config.yaml and placed in the current
// directory or /etc/agentmesh/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion, so keys
	// whose env var naming differs from the config key naming are bound here.
	_ = v.BindEnv("apiService.apiKey", "AGENTMESH_API_KEY")
	_ = v.BindEnv("apiService.baseUrl", "AGENTMESH_API_BASE_URL")
	_ = v.BindEnv("system.keepAliveInterval", "AGENTMESH_KEEP_ALIVE_INTERVAL")
	_ = v.BindEnv("system.keepAliveThreshold", "AGENTMESH_KEEP_ALIVE_THRESHOLD")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentmesh/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.System.Port <= 0 || cfg.System.Port > 65535 {
		errs = append(errs, "system.port must be between 1 and 65535")
	}

	if cfg.System.KeepAliveInterval <= 0 {
		errs = append(errs, "system.keepAliveInterval must be positive")
	}
	if cfg.System.KeepAliveThreshold <= cfg.System.KeepAliveInterval {
		errs = append(errs, "system.keepAliveThreshold must be strictly greater than system.keepAliveInterval")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	for name, agent := range cfg.Agents {
		if agent.Port <= 0 || agent.Port > 65535 {
			errs = append(errs, fmt.Sprintf("agents.%s.port must be between 1 and 65535", name))
		}
		if agent.Category == "" {
			errs = append(errs, fmt.Sprintf("agents.%s.category is required", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
