// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/extprobe-cli/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "extprobe-cli",
	Short: "Login-flow checker for browser extensions",
	Long: `extprobe-cli launches a Chromium instance with a target extension
force-loaded, resolves the extension's runtime-assigned ID, opens its side
panel, and verifies that logging in through the panel behaves as expected.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig()
	},
}

// Execute runs the root command with a signal-aware context so Ctrl-C tears
// the browser down cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./extprobe.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initializeConfig prepares the shared viper instance: defaults, optional
// config file, and EXTPROBE_* environment overrides. Typed config is built
// from it inside each command's RunE.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("extprobe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/extprobe")
	}

	v.SetEnvPrefix("EXTPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults plus env carry the run.
	}
	return nil
}
