// Package config loads the application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	FastAGI FastAGIConfig `yaml:"fastagi"`
	AMI     AMIConfig     `yaml:"ami"`
	CDR     CDRConfig     `yaml:"cdr"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Log     LogConfig     `yaml:"log"`
}

// FastAGIConfig holds the FastAGI listener configuration
type FastAGIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// AMIConfig holds the manager connection credentials
type AMIConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Username          string `yaml:"username"`
	Secret            string `yaml:"secret"`
	Events            string `yaml:"events"` // "on" or "off"
	ReconnectInterval int    `yaml:"reconnect_interval"`
}

// CDRConfig holds the MySQL connection for the call detail records
type CDRConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// BridgeConfig holds the websocket endpoint that re-emits AMI events
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration file and applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideWithEnv(&cfg)

	if cfg.AMI.Events == "" {
		cfg.AMI.Events = "on"
	}

	return &cfg, nil
}

// overrideWithEnv lets credentials come from the environment instead of the
// config file
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("FASTAMI_AMI_USERNAME"); v != "" {
		cfg.AMI.Username = v
	}
	if v := os.Getenv("FASTAMI_AMI_SECRET"); v != "" {
		cfg.AMI.Secret = v
	}
	if v := os.Getenv("FASTAMI_DB_USERNAME"); v != "" {
		cfg.CDR.Username = v
	}
	if v := os.Getenv("FASTAMI_DB_PASSWORD"); v != "" {
		cfg.CDR.Password = v
	}
	if v := os.Getenv("FASTAMI_DB_HOST"); v != "" {
		cfg.CDR.Host = v
	}
	if v := os.Getenv("FASTAMI_DB_DATABASE"); v != "" {
		cfg.CDR.Database = v
	}
}

// Address returns the FastAGI listen address
func (f FastAGIConfig) Address() string {
	return fmt.Sprintf("%s:%d", f.Host, f.Port)
}

// Address returns the manager address
func (a AMIConfig) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Address returns the websocket bridge address
func (b BridgeConfig) Address() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// DSN returns the MySQL connection string
func (d CDRConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}
