// File: internal/detector/prober.go
package detector

import (
	"context"

	"github.com/chromedp/chromedp"
)

// PageProber implements Prober over a live chromedp page context. The
// caller's context carries the per-signal budget; it is bridged onto the
// chromedp context so expiry actually interrupts the action.
type PageProber struct {
	pageCtx context.Context
}

// NewPageProber binds a prober to one chromedp tab context.
func NewPageProber(pageCtx context.Context) *PageProber {
	return &PageProber{pageCtx: pageCtx}
}

func (p *PageProber) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *PageProber) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *PageProber) WaitHidden(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitNotVisible(selector, chromedp.ByQuery))
}

func (p *PageProber) FieldValue(ctx context.Context, selector string) (string, error) {
	var value string
	err := p.run(ctx, chromedp.Value(selector, &value, chromedp.ByQuery))
	return value, err
}

// run executes actions on the page context while honoring the caller's
// deadline. chromedp actions must run on a chromedp-derived context, so the
// budget is propagated by cancelling a derived context when ctx expires.
func (p *PageProber) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.pageCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Report the caller's deadline rather than the derived cancellation.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}
