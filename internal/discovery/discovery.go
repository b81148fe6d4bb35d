// File: internal/discovery/discovery.go
//
// Package discovery resolves the runtime-assigned extension ID from a live
// browser context. The ID is not knowable in advance: Chromium assigns it
// when the extension loads, and the only way to learn it is to observe the
// targets the extension creates (its service worker, a legacy background
// page, or any page served from the extension origin).
package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scheme is the origin prefix of every extension-hosted document:
// chrome-extension://{id}/{path}.
const Scheme = "chrome-extension://"

// TargetKind classifies the execution units an extension may expose.
type TargetKind string

const (
	KindServiceWorker  TargetKind = "service_worker"
	KindBackgroundPage TargetKind = "background_page"
	KindPage           TargetKind = "page"
)

// channelOrder fixes the scan priority. The service worker is the modern,
// authoritative load signal; background pages and open pages are fallbacks
// for older or lazily-initializing extensions.
var channelOrder = [...]TargetKind{KindServiceWorker, KindBackgroundPage, KindPage}

// Target is one live execution unit inside the browser context.
type Target struct {
	Kind TargetKind
	URL  string
}

// Inspector is the capability surface the engine needs from the browser
// substrate. The engine only borrows the context: it never closes or
// reconfigures it.
type Inspector interface {
	// Targets returns a snapshot of the live execution units.
	Targets(ctx context.Context) ([]Target, error)
	// OnTargetCreated subscribes to newly appearing execution units. The
	// returned cancel is best-effort: implementations may be unable to
	// detach the underlying listener and only render it inert.
	OnTargetCreated(fn func(Target)) (cancel func())
	// OpenTriggerPage opens a throwaway page, navigates it to url, waits
	// settle, and closes it. Used purely to force lazy extension
	// initialization.
	OpenTriggerPage(ctx context.Context, url string, settle time.Duration) error
}

// Options budgets a discovery attempt.
type Options struct {
	Timeout       time.Duration
	PollInterval  time.Duration
	TriggerURL    string
	TriggerSettle time.Duration
}

// TimeoutError reports an exhausted discovery budget, including the trigger
// retry.
type TimeoutError struct {
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"extension ID not resolved within %s: the extension likely failed to load (wrong --load-extension path or malformed manifest)",
		e.Budget,
	)
}

// ExtractExtensionID parses the extension ID out of an extension-origin URL.
// It is a pure function: no side effects, no browser access. Any URL not
// using the chrome-extension scheme yields ok == false.
func ExtractExtensionID(rawURL string) (string, bool) {
	if !strings.HasPrefix(rawURL, Scheme) {
		return "", false
	}
	id, _, _ := strings.Cut(strings.TrimPrefix(rawURL, Scheme), "/")
	if id == "" {
		return "", false
	}
	return id, true
}

// Engine races independent observers over an Inspector until the extension
// ID settles or the budget runs out.
type Engine struct {
	inspector Inspector
	logger    *zap.Logger
}

// NewEngine creates a discovery engine bound to one browser context's
// inspector.
func NewEngine(inspector Inspector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		inspector: inspector,
		logger:    logger.Named("discovery"),
	}
}

// session is one bounded discovery attempt. It settles exactly once: the
// buffered channel holds the single resolved value ("" means not found) and
// the sync.Once makes every later settle a no-op.
type session struct {
	id      string
	started time.Time
	once    sync.Once
	ch      chan string
}

func newSession() *session {
	return &session{
		id:      uuid.NewString(),
		started: time.Now(),
		ch:      make(chan string, 1),
	}
}

func (s *session) settle(id string) {
	s.once.Do(func() { s.ch <- id })
}

// ScanNow takes a synchronous snapshot across the three channels in fixed
// priority order and returns the first URL that parses. Snapshot errors are
// treated as "nothing found"; the caller's poll loop will try again.
func (e *Engine) ScanNow(ctx context.Context) (string, bool) {
	targets, err := e.inspector.Targets(ctx)
	if err != nil {
		e.logger.Debug("Target snapshot failed", zap.Error(err))
		return "", false
	}
	for _, kind := range channelOrder {
		for _, t := range targets {
			if t.Kind != kind {
				continue
			}
			if id, ok := ExtractExtensionID(t.URL); ok {
				return id, true
			}
		}
	}
	return "", false
}

// Await races three observers: a target-created subscription, a ScanNow
// poller, and a hard timeout. The first settlement wins. Losers are
// abandoned rather than forcibly cancelled; the subscription is rendered
// inert best-effort and the poller exits on its own deadline, so the
// residual leak is bounded by opts.Timeout.
func (e *Engine) Await(ctx context.Context, opts Options) (string, bool) {
	s := newSession()
	log := e.logger.With(zap.String("sessionID", s.id))
	log.Debug("Awaiting extension ID",
		zap.Duration("timeout", opts.Timeout),
		zap.Duration("pollInterval", opts.PollInterval))

	// Event observer: check every new target as it appears.
	unsubscribe := e.inspector.OnTargetCreated(func(t Target) {
		if id, ok := ExtractExtensionID(t.URL); ok {
			s.settle(id)
		}
	})
	defer unsubscribe()

	// Polling observer: repeated snapshots until match or deadline.
	pollCtx, cancelPoll := context.WithTimeout(ctx, opts.Timeout)
	defer cancelPoll()
	go func() {
		ticker := time.NewTicker(opts.PollInterval)
		defer ticker.Stop()
		for {
			if id, ok := e.ScanNow(pollCtx); ok {
				s.settle(id)
				return
			}
			select {
			case <-ticker.C:
			case <-pollCtx.Done():
				return
			}
		}
	}()

	// Hard timeout: converts budget exhaustion into "not found".
	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	settled := func() (string, bool) {
		// The session channel is guaranteed to hold the single settled
		// value once settle has run at least once.
		id := <-s.ch
		if id == "" {
			log.Debug("Discovery attempt exhausted", zap.Duration("elapsed", time.Since(s.started)))
			return "", false
		}
		log.Info("Extension ID resolved",
			zap.String("extensionID", id),
			zap.Duration("elapsed", time.Since(s.started)))
		return id, true
	}

	select {
	case <-timer.C:
		s.settle("")
		return settled()
	case <-ctx.Done():
		s.settle("")
		return settled()
	case id := <-s.ch:
		// Put it back so settled() stays the single read path.
		s.ch <- id
		return settled()
	}
}

// AwaitWithFallback splits the budget in half: a passive Await first, then a
// forced-trigger retry. The trigger phase runs exactly once before final
// failure. Opening a page on a neutral URL nudges Chromium into finishing
// lazy extension initialization; the page itself is irrelevant and is
// closed immediately after the settle delay.
func (e *Engine) AwaitWithFallback(ctx context.Context, opts Options) (string, error) {
	half := opts.Timeout / 2

	passive := opts
	passive.Timeout = half
	if id, ok := e.Await(ctx, passive); ok {
		return id, nil
	}
	// A cancelled caller is not a missing extension; report it as such and
	// skip the trigger phase.
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("extension ID discovery interrupted: %w", err)
	}

	e.logger.Info("Extension ID unresolved after passive wait; forcing initialization",
		zap.String("triggerURL", opts.TriggerURL))
	if err := e.inspector.OpenTriggerPage(ctx, opts.TriggerURL, opts.TriggerSettle); err != nil {
		// The trigger is a nudge, not a requirement; the retry below may
		// still succeed.
		e.logger.Warn("Trigger navigation failed", zap.Error(err))
	}

	retry := opts
	retry.Timeout = opts.Timeout - half
	if id, ok := e.Await(ctx, retry); ok {
		return id, nil
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("extension ID discovery interrupted: %w", err)
	}
	return "", &TimeoutError{Budget: opts.Timeout}
}
