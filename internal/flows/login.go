// File: internal/flows/login.go
//
// Package flows drives user-level scenarios against the extension panel.
// The only flow today is the login check: open the panel document, submit
// credentials, and let the detector judge the outcome.
package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/extprobe-cli/internal/config"
	"github.com/xkilldash9x/extprobe-cli/internal/detector"
)

// Attempt is one credential submission and its expected outcome.
type Attempt struct {
	Label         string
	Username      string
	Password      string
	ExpectSuccess bool
}

// Result is the judged outcome of one attempt. Passed means the verdict
// matched the expectation; Screenshot holds a PNG of the panel when an
// expected success came back indeterminate.
type Result struct {
	Label         string
	Succeeded     bool
	ExpectSuccess bool
	Passed        bool
	Duration      time.Duration
	PanelURL      string
	Screenshot    []byte
}

// Attempts builds the standard check sequence: the configured credentials,
// which must succeed, and a corrupted password, which must not. There are no
// retries; each attempt runs exactly once.
func Attempts(site config.SiteConfig) []Attempt {
	return []Attempt{
		{
			Label:         "valid-credentials",
			Username:      site.Username,
			Password:      site.Password,
			ExpectSuccess: true,
		},
		{
			Label:         "invalid-credentials",
			Username:      site.Username,
			Password:      corruptPassword(site.Password),
			ExpectSuccess: false,
		},
	}
}

// corruptPassword derives a password guaranteed to differ from the original.
func corruptPassword(password string) string {
	return password + "-invalid"
}

// Evaluate folds a verdict and an expectation into pass/fail.
func (a Attempt) Evaluate(succeeded bool) bool {
	return succeeded == a.ExpectSuccess
}

// PanelSource is the slice of the browser manager the flow needs: where the
// panel lives and the context to open it in.
type PanelSource interface {
	AddressFor(path string) (string, error)
	BrowserContext() (context.Context, error)
}

// formDriver performs the browser-bound half of one attempt. Close is
// idempotent; Run arranges for it to fire early if the caller's context
// expires mid-attempt.
type formDriver interface {
	SubmitCredentials(ctx context.Context, panelURL, username, password string) error
	Judge(ctx context.Context) bool
	Screenshot(ctx context.Context) ([]byte, error)
	Close()
}

// driverFactory opens a fresh page in the browser context and binds a driver
// to it. Swapped for a fake in tests.
type driverFactory func(browserCtx context.Context) formDriver

// LoginFlow opens the extension side panel in a fresh tab and performs login
// attempts against it.
type LoginFlow struct {
	panels    PanelSource
	cfg       *config.Config
	logger    *zap.Logger
	newDriver driverFactory
}

// NewLoginFlow wires the flow to a ready browser manager.
func NewLoginFlow(panels PanelSource, cfg *config.Config, logger *zap.Logger) *LoginFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &LoginFlow{
		panels: panels,
		cfg:    cfg,
		logger: logger.Named("flows"),
	}
	f.newDriver = f.newChromedpDriver
	return f
}

// Run performs a single attempt in its own tab. Form interaction failures
// (panel missing, selectors wrong) surface as errors; an attempt whose form
// submitted cleanly always yields a Result, even when the verdict is
// indeterminate.
func (f *LoginFlow) Run(ctx context.Context, attempt Attempt) (Result, error) {
	addr, err := f.panels.AddressFor(f.cfg.Extension.PanelPath)
	if err != nil {
		return Result{}, err
	}
	browserCtx, err := f.panels.BrowserContext()
	if err != nil {
		return Result{}, err
	}

	log := f.logger.With(zap.String("attempt", attempt.Label))
	log.Info("Running login attempt", zap.String("panelURL", addr))

	drv := f.newDriver(browserCtx)
	defer drv.Close()
	stop := context.AfterFunc(ctx, drv.Close)
	defer stop()

	started := time.Now()
	if err := drv.SubmitCredentials(ctx, addr, attempt.Username, attempt.Password); err != nil {
		return Result{}, fmt.Errorf("login form interaction failed for %q: %w", attempt.Label, err)
	}

	succeeded := drv.Judge(ctx)
	res := Result{
		Label:         attempt.Label,
		Succeeded:     succeeded,
		ExpectSuccess: attempt.ExpectSuccess,
		Passed:        attempt.Evaluate(succeeded),
		Duration:      time.Since(started),
		PanelURL:      addr,
	}

	if !succeeded && attempt.ExpectSuccess {
		// Keep evidence of what the panel looked like when the expected
		// success never materialized.
		shot, err := drv.Screenshot(ctx)
		if err != nil {
			log.Warn("Failed to capture panel screenshot", zap.Error(err))
		} else {
			res.Screenshot = shot
		}
	}

	log.Info("Login attempt finished",
		zap.Bool("succeeded", res.Succeeded),
		zap.Bool("passed", res.Passed),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// chromedpDriver is the production formDriver: one dedicated tab on the
// panel document, released on Close.
type chromedpDriver struct {
	pageCtx context.Context
	cancel  context.CancelFunc
	sig     config.SignalsConfig
	logger  *zap.Logger
}

func (f *LoginFlow) newChromedpDriver(browserCtx context.Context) formDriver {
	pageCtx, cancel := chromedp.NewContext(browserCtx)
	return &chromedpDriver{
		pageCtx: pageCtx,
		cancel:  cancel,
		sig:     f.cfg.Signals,
		logger:  f.logger,
	}
}

func (d *chromedpDriver) SubmitCredentials(ctx context.Context, panelURL, username, password string) error {
	return chromedp.Run(d.pageCtx,
		chromedp.Navigate(panelURL),
		chromedp.WaitVisible(d.sig.UserFieldSelector, chromedp.ByQuery),
		chromedp.SendKeys(d.sig.UserFieldSelector, username, chromedp.ByQuery),
		chromedp.SendKeys(d.sig.PassFieldSelector, password, chromedp.ByQuery),
		chromedp.Click(d.sig.SubmitSelector, chromedp.ByQuery),
	)
}

func (d *chromedpDriver) Judge(ctx context.Context) bool {
	det := detector.New(detector.NewPageProber(d.pageCtx), d.sig, d.logger)
	return det.Judge(ctx)
}

func (d *chromedpDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var shot []byte
	if err := chromedp.Run(d.pageCtx, chromedp.CaptureScreenshot(&shot)); err != nil {
		return nil, err
	}
	return shot, nil
}

func (d *chromedpDriver) Close() {
	d.cancel()
}
