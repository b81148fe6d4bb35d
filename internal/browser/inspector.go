// File: internal/browser/inspector.go
package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/extprobe-cli/internal/discovery"
)

// inspector adapts a live chromedp browser context to the discovery.Inspector
// surface. It borrows the context: it never closes or reconfigures it.
type inspector struct {
	browserCtx context.Context
	logger     *zap.Logger
}

func newInspector(browserCtx context.Context, logger *zap.Logger) *inspector {
	return &inspector{
		browserCtx: browserCtx,
		logger:     logger.Named("inspector"),
	}
}

// toTarget maps a CDP target description onto a discovery channel. Targets
// of other types (browser, iframe, devtools) carry no extension origin and
// are dropped.
func toTarget(info *target.Info) (discovery.Target, bool) {
	if info == nil {
		return discovery.Target{}, false
	}
	switch info.Type {
	case "service_worker":
		return discovery.Target{Kind: discovery.KindServiceWorker, URL: info.URL}, true
	case "background_page":
		return discovery.Target{Kind: discovery.KindBackgroundPage, URL: info.URL}, true
	case "page":
		return discovery.Target{Kind: discovery.KindPage, URL: info.URL}, true
	default:
		return discovery.Target{}, false
	}
}

// Targets snapshots the live CDP targets.
func (i *inspector) Targets(ctx context.Context) ([]discovery.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := chromedp.Targets(i.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list browser targets: %w", err)
	}
	targets := make([]discovery.Target, 0, len(infos))
	for _, info := range infos {
		if t, ok := toTarget(info); ok {
			targets = append(targets, t)
		}
	}
	return targets, nil
}

// OnTargetCreated registers a browser-level listener for appearing targets.
// chromedp offers no way to remove a listener, so the returned cancel only
// flips a guard that renders it inert; the registration itself lives as long
// as the browser context.
func (i *inspector) OnTargetCreated(fn func(discovery.Target)) func() {
	var stopped atomic.Bool
	chromedp.ListenBrowser(i.browserCtx, func(ev interface{}) {
		if stopped.Load() {
			return
		}
		// Service workers sometimes get their URL filled in only after
		// creation, so info-changed events are inspected as well.
		var info *target.Info
		switch e := ev.(type) {
		case *target.EventTargetCreated:
			info = e.TargetInfo
		case *target.EventTargetInfoChanged:
			info = e.TargetInfo
		default:
			return
		}
		if t, ok := toTarget(info); ok {
			fn(t)
		}
	})
	return func() { stopped.Store(true) }
}

// OpenTriggerPage opens a throwaway tab on url, lets it settle, and closes
// it. The tab's only purpose is forcing Chromium to finish lazy extension
// initialization.
func (i *inspector) OpenTriggerPage(ctx context.Context, url string, settle time.Duration) error {
	tabCtx, cancel := chromedp.NewContext(i.browserCtx)
	defer cancel()

	// Tear the tab down early if the caller's budget expires mid-settle.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	i.logger.Debug("Opening trigger tab", zap.String("url", url), zap.Duration("settle", settle))
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(settle),
	); err != nil {
		return fmt.Errorf("trigger navigation failed: %w", err)
	}
	return nil
}
