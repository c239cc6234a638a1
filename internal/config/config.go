// Package config loads the per-environment harness profiles and the
// console connection settings layered on top of them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Console holds the connection settings for the vulnerability-management
// console. Credentials are never kept in the profile files; they come from
// the environment (NEXPOSE_USERNAME, NEXPOSE_PASSWORD, ...) the same way
// the CI pipeline injects them.
type Console struct {
	Host      string `yaml:"host" envconfig:"NEXPOSE_HOST"`
	Port      int    `yaml:"port" envconfig:"NEXPOSE_PORT"`
	Username  string `yaml:"-" envconfig:"NEXPOSE_USERNAME"`
	Password  string `yaml:"-" envconfig:"NEXPOSE_PASSWORD"`
	SSLVerify bool   `yaml:"sslVerify" envconfig:"NEXPOSE_SSL_VERIFY"`
}

// BaseURL returns the https base URL of the console.
func (c Console) BaseURL() string {
	return fmt.Sprintf("https://%s:%d", c.Host, c.Port)
}

// Timeouts groups the wall-clock budgets for the different call classes.
type Timeouts struct {
	Default time.Duration `yaml:"default"`
	Scan    time.Duration `yaml:"scan"`
	Network time.Duration `yaml:"network"`
	Login   time.Duration `yaml:"login"`
}

// Retry is the bounded linear retry policy for transient console errors.
type Retry struct {
	MaxRetries int           `yaml:"maxRetries"`
	Interval   time.Duration `yaml:"interval"`
}

// Dirs names the on-disk layout for inputs and run artifacts.
type Dirs struct {
	Policies        string `yaml:"policies"`
	Templates       string `yaml:"templates"`
	ValidationRules string `yaml:"validationRules"`
	Payloads        string `yaml:"payloads"`
	Results         string `yaml:"results"`
	Reports         string `yaml:"reports"`
	Logs            string `yaml:"logs"`
}

// Cleanup controls teardown of console resources after a run.
type Cleanup struct {
	Skip                bool `yaml:"skip"`
	AutoDeleteResources bool `yaml:"autoDeleteResources"`
}

// Config is a fully resolved environment profile.
type Config struct {
	Environment string   `yaml:"environment"`
	Debug       bool     `yaml:"debug"`
	Console     Console  `yaml:"console"`
	Timeouts    Timeouts `yaml:"timeouts"`
	Retry       Retry    `yaml:"retry"`
	Dirs        Dirs     `yaml:"dirs"`
	Cleanup     Cleanup  `yaml:"cleanup"`
	// ParallelWorkers bounds concurrent suite execution.
	ParallelWorkers int `yaml:"parallelWorkers"`
	// PolicyCatalog points at the policy-version catalog file.
	PolicyCatalog string `yaml:"policyCatalog"`
}

// Defaults applied when a profile leaves a knob unset.
const (
	defaultTimeout     = 30 * time.Second
	defaultScanTimeout = time.Hour
	defaultRetries     = 3
	defaultInterval    = 5 * time.Second
	defaultWorkers     = 2
)

// Load reads the profile for env from dir (e.g. config/staging.yaml),
// applies defaults and environment-variable overrides, and validates the
// result.
func Load(dir, env string) (*Config, error) {
	path := filepath.Join(filepath.Clean(dir), env+".yaml")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}

	cfg := Config{Environment: env}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling profile %s: %w", path, err)
	}

	// Environment variables win over the profile.
	if err := envconfig.Process("", &cfg.Console); err != nil {
		return nil, fmt.Errorf("processing console overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Timeouts.Default == 0 {
		c.Timeouts.Default = defaultTimeout
	}
	if c.Timeouts.Scan == 0 {
		c.Timeouts.Scan = defaultScanTimeout
	}
	if c.Timeouts.Network == 0 {
		c.Timeouts.Network = c.Timeouts.Default
	}
	if c.Timeouts.Login == 0 {
		c.Timeouts.Login = c.Timeouts.Default
	}
	if c.Console.Port == 0 {
		c.Console.Port = 3780
	}
	if c.Console.Username == "" {
		c.Console.Username = "nxadmin"
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = defaultRetries
	}
	if c.Retry.Interval == 0 {
		c.Retry.Interval = defaultInterval
	}
	if c.ParallelWorkers == 0 {
		c.ParallelWorkers = defaultWorkers
	}
	if c.Dirs.Reports == "" && c.Dirs.Results != "" {
		c.Dirs.Reports = filepath.Join(c.Dirs.Results, "reports")
	}
	if c.Dirs.Logs == "" && c.Dirs.Results != "" {
		c.Dirs.Logs = filepath.Join(c.Dirs.Results, "logs")
	}
}

// Validate checks that the profile is usable.
func (c *Config) Validate() error {
	if c.Console.Host == "" {
		return fmt.Errorf("profile %s: console host must be set (or NEXPOSE_HOST)", c.Environment)
	}
	if c.Console.Password == "" {
		return fmt.Errorf("profile %s: console password must come from NEXPOSE_PASSWORD", c.Environment)
	}
	if c.Timeouts.Scan < c.Retry.Interval {
		return fmt.Errorf("profile %s: scan timeout %s shorter than retry interval %s",
			c.Environment, c.Timeouts.Scan, c.Retry.Interval)
	}
	return nil
}
