// File: internal/browser/manager.go
//
// Package browser owns the automated browser context: one Chromium instance
// with the target extension force-loaded, its lifecycle state machine, and
// the chromedp-backed inspector the discovery engine runs against.
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/extprobe-cli/internal/config"
	"github.com/xkilldash9x/extprobe-cli/internal/discovery"
)

// State tracks the manager lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateLaunching
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLaunching:
		return "launching"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrNotReady is returned by accessors before Launch has completed. It marks
// a call-ordering bug in the caller, not a runtime condition worth retrying.
var ErrNotReady = errors.New("browser manager is not ready: Launch must complete first")

// launchResult is what a launcher hands back: a live browser context, the
// teardown for it, and the inspector bound to it.
type launchResult struct {
	browserCtx context.Context
	cancel     func()
	inspector  discovery.Inspector
}

// launcher starts a browser. Swapped for a stub in tests.
type launcher func(ctx context.Context) (*launchResult, error)

// Manager owns at most one live browser context and the extension ID
// resolved inside it. All methods are safe for concurrent use, though the
// intended usage is sequential: Launch, work, Close.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger
	launch launcher

	mu          sync.Mutex
	state       State
	browserCtx  context.Context
	cancel      func()
	extensionID string
}

// NewManager creates a manager in the Uninitialized state. Nothing touches
// the browser until Launch.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger.Named("browser"),
		state:  StateUninitialized,
	}
	m.launch = m.launchChromium
	return m
}

// Launch starts Chromium with the extension flag set, verifies the browser
// responds, and resolves the extension ID. Calling Launch on a Ready manager
// is a no-op returning the already-resolved state. On discovery failure the
// browser context is left open for post-mortem inspection and the manager
// stays unusable until Close.
func (m *Manager) Launch(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateReady:
		m.logger.Debug("Launch called on ready manager; reusing context",
			zap.String("extensionID", m.extensionID))
		return nil
	case StateLaunching:
		return fmt.Errorf("launch already in progress or previously failed; close and create a new manager")
	}
	m.state = StateLaunching

	m.logger.Info("Launching browser",
		zap.String("extensionPath", m.cfg.Extension.Path),
		zap.Bool("headless", m.cfg.Extension.Headless))

	res, err := m.launch(ctx)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	m.browserCtx = res.browserCtx
	m.cancel = res.cancel

	engine := discovery.NewEngine(res.inspector, m.logger)
	id, err := engine.AwaitWithFallback(ctx, discovery.Options{
		Timeout:       m.cfg.Discovery.Timeout,
		PollInterval:  m.cfg.Discovery.PollInterval,
		TriggerURL:    m.cfg.Discovery.TriggerURL,
		TriggerSettle: m.cfg.Discovery.TriggerSettle,
	})
	if err != nil {
		// Context stays open so a caller can attach debugging tools; Close
		// still tears it down.
		return err
	}

	m.extensionID = id
	m.state = StateReady
	m.logger.Info("Browser ready", zap.String("extensionID", id))
	return nil
}

// Close tears down the browser context, clears the extension ID, and
// transitions to Closed. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return nil
	}
	if m.cancel != nil {
		m.logger.Info("Closing browser context")
		m.cancel()
	}
	m.cancel = nil
	m.browserCtx = nil
	m.extensionID = ""
	m.state = StateClosed
	return nil
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// BrowserContext returns the live chromedp browser context. ErrNotReady
// before Launch completes.
func (m *Manager) BrowserContext() (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return nil, ErrNotReady
	}
	return m.browserCtx, nil
}

// ExtensionID returns the resolved extension ID. ErrNotReady before Launch
// completes; the ID is immutable while the context lives.
func (m *Manager) ExtensionID() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return "", ErrNotReady
	}
	return m.extensionID, nil
}

// AddressFor builds an extension-origin URL for a document path, e.g.
// AddressFor("sidepanel.html") -> chrome-extension://{id}/sidepanel.html.
func (m *Manager) AddressFor(path string) (string, error) {
	id, err := m.ExtensionID()
	if err != nil {
		return "", err
	}
	return discovery.Scheme + id + "/" + strings.TrimPrefix(path, "/"), nil
}

// launchChromium is the production launcher: exec allocator with the fixed
// extension flag set, a fresh browser context, and a responsiveness probe
// before the context is handed out.
func (m *Manager) launchChromium(ctx context.Context) (*launchResult, error) {
	opts := buildAllocatorOptions(m.cfg.Extension)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	// Starting the browser and waiting for the CDP handshake proves the
	// binary exists and the flag set is acceptable.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	return &launchResult{
		browserCtx: browserCtx,
		cancel:     cancel,
		inspector:  newInspector(browserCtx, m.logger),
	}, nil
}

// buildAllocatorOptions assembles the Chromium flag set. The extension flags
// are fixed and non-configurable: without --load-extension and
// --disable-extensions-except the whole exercise is moot, and the chromedp
// defaults disable extensions outright.
func buildAllocatorOptions(cfg config.ExtensionConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	// Later flags win, so these override the chromedp defaults.
	opts = append(opts,
		// Re-enable extensions and force-load the one under test.
		chromedp.Flag("disable-extensions", false),
		chromedp.Flag("load-extension", cfg.Path),
		chromedp.Flag("disable-extensions-except", cfg.Path),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-popup-blocking", true),
	)

	if cfg.Headless {
		// Extensions only load under the new headless implementation.
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	if runtime.GOOS == "linux" {
		// Containerized CI has no usable sandbox or /dev/shm.
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-gpu", true),
		)
	}

	return opts
}
