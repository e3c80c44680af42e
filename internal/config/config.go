package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Autosave    AutosaveConfig    `yaml:"autosave"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// StorageConfig contains version store and backend settings
type StorageConfig struct {
	// Backend is one of memory, sqlite, redis
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	RedisURL  string `yaml:"redis_url"`
	Namespace string `yaml:"namespace"`

	// Quota settings
	CapacityBytes int64   `yaml:"capacity_bytes"`
	WarnPercent   float64 `yaml:"warn_percent"`
	AutoEvict     *bool   `yaml:"auto_evict"`
	KeepAutoSaves int     `yaml:"keep_auto_saves"`

	SkipUnchanged *bool `yaml:"skip_unchanged"`
}

// AutosaveConfig contains auto-save scheduler timings
type AutosaveConfig struct {
	Debounce   time.Duration `yaml:"debounce"`
	Interval   time.Duration `yaml:"interval"`
	Resolution time.Duration `yaml:"resolution"`
}

// MaintenanceConfig contains the scheduled eviction settings
type MaintenanceConfig struct {
	// Schedule is a cron expression or descriptor; "off" disables scheduled maintenance
	Schedule string `yaml:"schedule"`
}

// ArchiveConfig selects where exports are archived before eviction
type ArchiveConfig struct {
	// Backend is one of none, file, azure
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Azure   AzureConfig `yaml:"azure"`
}

// AzureConfig contains Azure Blob Storage settings
type AzureConfig struct {
	StorageAccount   string `yaml:"storage_account"`
	Container        string `yaml:"container"`
	Prefix           string `yaml:"prefix"`
	ConnectionString string `yaml:"connection_string"`
	SASToken         string `yaml:"sas_token"`
	// For service principal auth
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// Use managed identity
	UseManagedIdentity bool `yaml:"use_managed_identity"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, expanding environment variables
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults sets default values for unspecified config options
func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./report-vault.db"
	}
	if c.Storage.Namespace == "" {
		c.Storage.Namespace = "report-vault"
	}
	if c.Storage.CapacityBytes == 0 {
		c.Storage.CapacityBytes = 5 << 20
	}
	if c.Storage.WarnPercent == 0 {
		c.Storage.WarnPercent = 90
	}
	if c.Storage.AutoEvict == nil {
		enabled := true
		c.Storage.AutoEvict = &enabled
	}
	if c.Storage.KeepAutoSaves == 0 {
		c.Storage.KeepAutoSaves = 5
	}
	if c.Storage.SkipUnchanged == nil {
		enabled := true
		c.Storage.SkipUnchanged = &enabled
	}

	if c.Autosave.Debounce == 0 {
		c.Autosave.Debounce = 3 * time.Second
	}
	if c.Autosave.Interval == 0 {
		c.Autosave.Interval = 30 * time.Second
	}
	if c.Autosave.Resolution == 0 {
		c.Autosave.Resolution = 250 * time.Millisecond
	}

	if c.Maintenance.Schedule == "" {
		c.Maintenance.Schedule = "@every 5m"
	}

	if c.Archive.Backend == "" {
		c.Archive.Backend = "none"
	}
	if c.Archive.Path == "" {
		c.Archive.Path = "./archives"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// validate checks that the configuration is valid
func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "memory", "sqlite":
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q (memory, sqlite, redis)", c.Storage.Backend)
	}

	if strings.Contains(c.Storage.Namespace, "*") {
		return fmt.Errorf("storage.namespace must not contain '*'")
	}
	if c.Storage.CapacityBytes < 0 {
		return fmt.Errorf("storage.capacity_bytes must be positive")
	}
	if c.Storage.WarnPercent < 0 || c.Storage.WarnPercent > 100 {
		return fmt.Errorf("storage.warn_percent must be between 0 and 100")
	}
	if c.Storage.KeepAutoSaves < 0 {
		return fmt.Errorf("storage.keep_auto_saves must not be negative")
	}

	if c.Autosave.Debounce < 0 || c.Autosave.Interval < 0 || c.Autosave.Resolution < 0 {
		return fmt.Errorf("autosave durations must not be negative")
	}

	switch c.Archive.Backend {
	case "none", "file":
	case "azure":
		if c.Archive.Azure.StorageAccount == "" && c.Archive.Azure.ConnectionString == "" {
			return fmt.Errorf("archive.azure.storage_account is required")
		}
		if c.Archive.Azure.Container == "" {
			return fmt.Errorf("archive.azure.container is required")
		}
		if c.Archive.Azure.GetAuthMethod() == "none" {
			return fmt.Errorf("no Azure authentication method configured (connection_string, sas_token, managed_identity, or service principal)")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q (none, file, azure)", c.Archive.Backend)
	}

	return nil
}

// UnmarshalYAML implements custom unmarshaling for AutosaveConfig to handle durations
func (a *AutosaveConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type rawAutosaveConfig struct {
		Debounce   string `yaml:"debounce"`
		Interval   string `yaml:"interval"`
		Resolution string `yaml:"resolution"`
	}

	var raw rawAutosaveConfig
	if err := unmarshal(&raw); err != nil {
		return err
	}

	fields := []struct {
		name  string
		value string
		dest  *time.Duration
	}{
		{"debounce", raw.Debounce, &a.Debounce},
		{"interval", raw.Interval, &a.Interval},
		{"resolution", raw.Resolution, &a.Resolution},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return fmt.Errorf("invalid autosave %s: %w", f.name, err)
		}
		*f.dest = d
	}

	return nil
}

// GetAuthMethod returns a string describing the configured auth method
func (c *AzureConfig) GetAuthMethod() string {
	if c.ConnectionString != "" {
		return "connection_string"
	}
	if c.SASToken != "" {
		return "sas_token"
	}
	if c.UseManagedIdentity {
		return "managed_identity"
	}
	if c.TenantID != "" && c.ClientID != "" && c.ClientSecret != "" {
		return "service_principal"
	}
	return "none"
}

// GetServiceURL returns the Azure Blob service URL
func (c *AzureConfig) GetServiceURL() string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/", c.StorageAccount)
}
