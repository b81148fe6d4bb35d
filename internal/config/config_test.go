// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	assert.Equal(t, "info", v.GetString("logger.level"))
	assert.Equal(t, "console", v.GetString("logger.format"))
	assert.Equal(t, "sidepanel.html", v.GetString("extension.panel_path"))
	assert.True(t, v.GetBool("extension.headless"))
	assert.Equal(t, 10*time.Second, v.GetDuration("discovery.timeout"))
	assert.Equal(t, 100*time.Millisecond, v.GetDuration("discovery.poll_interval"))
	assert.Equal(t, "about:blank", v.GetString("discovery.trigger_url"))
	assert.Equal(t, "/dashboard", v.GetString("signals.success_url_fragment"))
	assert.True(t, v.GetBool("signals.use_empty_fields"))
}

func TestNewFromViper(t *testing.T) {
	t.Run("valid config unmarshals", func(t *testing.T) {
		t.Setenv("EXTPROBE_EXTENSION_PATH", "/opt/extension")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "/opt/extension", cfg.Extension.Path)
		assert.Equal(t, 10*time.Second, cfg.Discovery.Timeout)
		assert.Equal(t, "form#login", cfg.Signals.FormSelector)
	})

	t.Run("missing extension path is rejected", func(t *testing.T) {
		t.Setenv("EXTPROBE_EXTENSION_PATH", "")
		v := viper.New()
		SetDefaults(v)

		_, err := NewFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "extension.path")
	})

	t.Run("credentials come from the environment", func(t *testing.T) {
		t.Setenv("EXTPROBE_EXTENSION_PATH", "/opt/extension")
		t.Setenv("EXTPROBE_SITE_USERNAME", "alice")
		t.Setenv("EXTPROBE_SITE_PASSWORD", "hunter2")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "alice", cfg.Site.Username)
		assert.Equal(t, "hunter2", cfg.Site.Password)
	})
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		cfg := NewDefaultConfig()
		cfg.Extension.Path = "/opt/extension"
		return cfg
	}

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults with path are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero discovery timeout",
			mutate:  func(c *Config) { c.Discovery.Timeout = 0 },
			wantErr: "discovery.timeout",
		},
		{
			name:    "negative poll interval",
			mutate:  func(c *Config) { c.Discovery.PollInterval = -time.Second },
			wantErr: "discovery.poll_interval",
		},
		{
			name:    "poll interval exceeding timeout",
			mutate:  func(c *Config) { c.Discovery.PollInterval = c.Discovery.Timeout * 2 },
			wantErr: "poll_interval must be shorter",
		},
		{
			name:    "empty trigger URL",
			mutate:  func(c *Config) { c.Discovery.TriggerURL = "" },
			wantErr: "trigger_url",
		},
		{
			name:    "empty panel path",
			mutate:  func(c *Config) { c.Extension.PanelPath = "" },
			wantErr: "panel_path",
		},
		{
			name:    "zero signal budget",
			mutate:  func(c *Config) { c.Signals.FieldTimeout = 0 },
			wantErr: "signals.field_timeout",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Empty(t, cfg.Extension.Path, "path must never be defaulted")
	assert.Equal(t, "sidepanel.html", cfg.Extension.PanelPath)
	assert.Equal(t, 100*time.Millisecond, cfg.Discovery.PollInterval)
	assert.Equal(t, "button[type=submit]", cfg.Signals.SubmitSelector)
}
