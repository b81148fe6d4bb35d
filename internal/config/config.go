// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Components receive the
// slice they need at construction; nothing reads viper after startup.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Extension ExtensionConfig `mapstructure:"extension" yaml:"extension"`
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Signals   SignalsConfig   `mapstructure:"signals" yaml:"signals"`
	Site      SiteConfig      `mapstructure:"site" yaml:"site"`
	Report    ReportConfig    `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ExtensionConfig describes the extension under test.
type ExtensionConfig struct {
	// Path is the unpacked extension directory on disk. Supplied via
	// EXTPROBE_EXTENSION_PATH; never defaulted.
	Path string `mapstructure:"path" yaml:"-"`
	// PanelPath is the document opened inside the extension origin,
	// e.g. "sidepanel.html".
	PanelPath string `mapstructure:"panel_path" yaml:"panel_path"`
	// Headless controls the browser mode. Extensions require the new
	// headless implementation, so this maps to --headless=new.
	Headless bool `mapstructure:"headless" yaml:"headless"`
}

// DiscoveryConfig budgets the extension ID resolution.
type DiscoveryConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	TriggerURL    string        `mapstructure:"trigger_url" yaml:"trigger_url"`
	TriggerSettle time.Duration `mapstructure:"trigger_settle" yaml:"trigger_settle"`
}

// SignalsConfig carries the per-signal budgets and selectors for the login
// outcome waterfall. Order of evaluation is fixed in the detector; only the
// budgets and locators are configurable.
type SignalsConfig struct {
	SuccessURLFragment string        `mapstructure:"success_url_fragment" yaml:"success_url_fragment"`
	URLTimeout         time.Duration `mapstructure:"url_timeout" yaml:"url_timeout"`

	SuccessSelector string        `mapstructure:"success_selector" yaml:"success_selector"`
	SuccessTimeout  time.Duration `mapstructure:"success_timeout" yaml:"success_timeout"`

	FormSelector    string        `mapstructure:"form_selector" yaml:"form_selector"`
	FormGoneTimeout time.Duration `mapstructure:"form_gone_timeout" yaml:"form_gone_timeout"`

	UserFieldSelector string        `mapstructure:"user_field_selector" yaml:"user_field_selector"`
	PassFieldSelector string        `mapstructure:"pass_field_selector" yaml:"pass_field_selector"`
	SubmitSelector    string        `mapstructure:"submit_selector" yaml:"submit_selector"`
	FieldTimeout      time.Duration `mapstructure:"field_timeout" yaml:"field_timeout"`

	// UseEmptyFields enables the weakest signal: treating cleared credential
	// fields as success. Callers that find it produces false positives can
	// switch it off.
	UseEmptyFields bool `mapstructure:"use_empty_fields" yaml:"use_empty_fields"`
}

// SiteConfig points at the companion site the extension logs into.
type SiteConfig struct {
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	Username string `mapstructure:"username" yaml:"-"`
	Password string `mapstructure:"password" yaml:"-"`
}

// ReportConfig controls run report output.
type ReportConfig struct {
	Output        string `mapstructure:"output" yaml:"output"`
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "extprobe-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Extension --
	v.SetDefault("extension.panel_path", "sidepanel.html")
	v.SetDefault("extension.headless", true)

	// -- Discovery --
	v.SetDefault("discovery.timeout", "10s")
	v.SetDefault("discovery.poll_interval", "100ms")
	v.SetDefault("discovery.trigger_url", "about:blank")
	v.SetDefault("discovery.trigger_settle", "1s")

	// -- Signals --
	v.SetDefault("signals.success_url_fragment", "/dashboard")
	v.SetDefault("signals.url_timeout", "5s")
	v.SetDefault("signals.success_selector", "[data-testid=login-success]")
	v.SetDefault("signals.success_timeout", "2s")
	v.SetDefault("signals.form_selector", "form#login")
	v.SetDefault("signals.form_gone_timeout", "2s")
	v.SetDefault("signals.user_field_selector", "input[name=username]")
	v.SetDefault("signals.pass_field_selector", "input[name=password]")
	v.SetDefault("signals.submit_selector", "button[type=submit]")
	v.SetDefault("signals.field_timeout", "1s")
	v.SetDefault("signals.use_empty_fields", true)

	// -- Report --
	v.SetDefault("report.output", "")
	v.SetDefault("report.screenshot_dir", ".")
}

// NewFromViper creates a configuration instance from a viper object.
func NewFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for values that never belong in a file.
	v.BindEnv("extension.path", "EXTPROBE_EXTENSION_PATH")
	v.BindEnv("site.username", "EXTPROBE_SITE_USERNAME")
	v.BindEnv("site.password", "EXTPROBE_SITE_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the path if Unmarshal didn't pick it up.
	if cfg.Extension.Path == "" {
		cfg.Extension.Path = os.Getenv("EXTPROBE_EXTENSION_PATH")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig returns a configuration populated with defaults only.
// The extension path is deliberately left empty; callers must supply it.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Extension.Path == "" {
		return fmt.Errorf("extension.path is required (set EXTPROBE_EXTENSION_PATH)")
	}
	if c.Extension.PanelPath == "" {
		return fmt.Errorf("extension.panel_path must not be empty")
	}
	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery.timeout must be a positive duration")
	}
	if c.Discovery.PollInterval <= 0 {
		return fmt.Errorf("discovery.poll_interval must be a positive duration")
	}
	if c.Discovery.PollInterval >= c.Discovery.Timeout {
		return fmt.Errorf("discovery.poll_interval must be shorter than discovery.timeout")
	}
	if c.Discovery.TriggerURL == "" {
		return fmt.Errorf("discovery.trigger_url must not be empty")
	}
	return c.Signals.validate()
}

func (s *SignalsConfig) validate() error {
	for name, d := range map[string]time.Duration{
		"signals.url_timeout":       s.URLTimeout,
		"signals.success_timeout":   s.SuccessTimeout,
		"signals.form_gone_timeout": s.FormGoneTimeout,
		"signals.field_timeout":     s.FieldTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	return nil
}
