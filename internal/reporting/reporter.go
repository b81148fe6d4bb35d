// File: internal/reporting/reporter.go
//
// Package reporting serializes run results to JSON and files away the
// failure screenshots the flows capture.
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AttemptResult is one login attempt in the run report.
type AttemptResult struct {
	Label          string `json:"label"`
	Succeeded      bool   `json:"succeeded"`
	ExpectSuccess  bool   `json:"expect_success"`
	Passed         bool   `json:"passed"`
	DurationMS     int64  `json:"duration_ms"`
	PanelURL       string `json:"panel_url,omitempty"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
	Error          string `json:"error,omitempty"`
}

// RunReport is the full record of one check run.
type RunReport struct {
	RunID       string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	ExtensionID string          `json:"extension_id,omitempty"`
	Attempts    []AttemptResult `json:"attempts"`
	Passed      bool            `json:"passed"`
	Error       string          `json:"error,omitempty"`
}

// Reporter writes run reports to a destination it owns.
type Reporter interface {
	Write(report *RunReport) error
	Close() error
}

// jsonReporter streams indented JSON to a writer.
type jsonReporter struct {
	w        io.Writer
	closer   io.Closer
	ownsFile bool
}

// New creates a reporter for the given output path. An empty path means
// stdout, which the reporter does not close.
func New(outputPath string) (Reporter, error) {
	if outputPath == "" {
		return &jsonReporter{w: os.Stdout}, nil
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file %q: %w", outputPath, err)
	}
	return &jsonReporter{w: f, closer: f, ownsFile: true}, nil
}

func (r *jsonReporter) Write(report *RunReport) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}
	return nil
}

func (r *jsonReporter) Close() error {
	if !r.ownsFile || r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// SaveScreenshot writes a captured PNG under dir and returns its path. The
// label lands in the filename so multiple attempts in one run do not clobber
// each other.
func SaveScreenshot(dir, label string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir %q: %w", dir, err)
	}
	name := fmt.Sprintf("login-%s-%s.png", label, time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot %q: %w", path, err)
	}
	return path, nil
}
