// File: cmd/check.go
package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/extprobe-cli/internal/browser"
	"github.com/xkilldash9x/extprobe-cli/internal/config"
	"github.com/xkilldash9x/extprobe-cli/internal/flows"
	"github.com/xkilldash9x/extprobe-cli/internal/observability"
	"github.com/xkilldash9x/extprobe-cli/internal/reporting"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Launch the browser and verify the extension login flow",
	Long: `check launches Chromium with the extension loaded, resolves the
extension ID, then runs two login attempts through the side panel: the
configured credentials (expected to succeed) and a corrupted password
(expected to fail). The exit code is non-zero when any attempt does not
match its expected outcome.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("extension", "", "path to the unpacked extension directory")
	checkCmd.Flags().String("output", "", "report output file (default: stdout)")
	checkCmd.Flags().Bool("headed", false, "run the browser with a visible window")
	_ = viper.BindPFlag("extension.path", checkCmd.Flags().Lookup("extension"))
	_ = viper.BindPFlag("report.output", checkCmd.Flags().Lookup("output"))

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewFromViper(viper.GetViper())
	if err != nil {
		return err
	}
	if headed, _ := cmd.Flags().GetBool("headed"); headed {
		cfg.Extension.Headless = false
	}

	logger := observability.NewStdoutLogger(cfg.Logger)
	defer observability.Sync(logger)

	reporter, err := reporting.New(cfg.Report.Output)
	if err != nil {
		return err
	}
	defer reporter.Close()

	report := &reporting.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}

	ctx := cmd.Context()
	mgr := browser.NewManager(cfg, logger)
	defer mgr.Close()

	if err := mgr.Launch(ctx); err != nil {
		logger.Error("Browser launch failed", zap.Error(err))
		report.FinishedAt = time.Now()
		report.Error = err.Error()
		if werr := reporter.Write(report); werr != nil {
			logger.Error("Failed to write run report", zap.Error(werr))
		}
		return err
	}
	if id, err := mgr.ExtensionID(); err == nil {
		report.ExtensionID = id
	}

	flow := flows.NewLoginFlow(mgr, cfg, logger)
	passed := true
	for _, attempt := range flows.Attempts(cfg.Site) {
		res, err := flow.Run(ctx, attempt)
		if err != nil {
			logger.Error("Login attempt errored",
				zap.String("attempt", attempt.Label), zap.Error(err))
			report.Attempts = append(report.Attempts, reporting.AttemptResult{
				Label:         attempt.Label,
				ExpectSuccess: attempt.ExpectSuccess,
				Passed:        false,
				Error:         err.Error(),
			})
			passed = false
			continue
		}

		entry := reporting.AttemptResult{
			Label:         res.Label,
			Succeeded:     res.Succeeded,
			ExpectSuccess: res.ExpectSuccess,
			Passed:        res.Passed,
			DurationMS:    res.Duration.Milliseconds(),
			PanelURL:      res.PanelURL,
		}
		if len(res.Screenshot) > 0 {
			path, serr := reporting.SaveScreenshot(cfg.Report.ScreenshotDir, res.Label, res.Screenshot)
			if serr != nil {
				logger.Warn("Failed to save screenshot", zap.Error(serr))
			} else {
				entry.ScreenshotPath = path
				logger.Info("Saved panel screenshot", zap.String("path", path))
			}
		}
		report.Attempts = append(report.Attempts, entry)
		if !res.Passed {
			passed = false
		}
	}

	report.FinishedAt = time.Now()
	report.Passed = passed
	if err := reporter.Write(report); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}

	if !passed {
		return fmt.Errorf("login check failed: one or more attempts did not match the expected outcome")
	}
	logger.Info("Login check passed", zap.String("runID", report.RunID))
	return nil
}
