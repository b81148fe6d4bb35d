// File: internal/detector/detector.go
//
// Package detector judges whether a login attempt inside the extension panel
// succeeded. Web apps rarely announce success explicitly, so the verdict is
// assembled from an ordered waterfall of independent signals, strongest
// first, each with its own time budget.
package detector

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/extprobe-cli/internal/config"
)

// urlPollInterval paces the URL readback loop inside the first signal.
const urlPollInterval = 100 * time.Millisecond

// Prober isolates page access so the waterfall can be tested without a
// browser. Wait methods return nil when the condition holds within the
// context budget and an error otherwise.
type Prober interface {
	CurrentURL(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, selector string) error
	WaitHidden(ctx context.Context, selector string) error
	FieldValue(ctx context.Context, selector string) (string, error)
}

// Detector evaluates the login outcome waterfall against one page.
type Detector struct {
	prober  Prober
	signals config.SignalsConfig
	logger  *zap.Logger
}

// New builds a detector over a page prober. The signal budgets and locators
// come from configuration; the evaluation order is fixed.
func New(prober Prober, signals config.SignalsConfig, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		prober:  prober,
		signals: signals,
		logger:  logger.Named("detector"),
	}
}

// Judge runs the waterfall and returns true at the first signal that fires:
//
//  1. the page URL contains the expected fragment,
//  2. the success marker element becomes visible,
//  3. the login form disappears,
//  4. both credential fields read back empty (weakest, optional).
//
// Probe failures count as "signal did not fire" and never surface as errors;
// all signals missing means false, which the caller interprets.
func (d *Detector) Judge(ctx context.Context) bool {
	if d.urlReached(ctx) {
		d.logger.Info("Login judged successful", zap.String("signal", "url_fragment"))
		return true
	}
	if d.markerVisible(ctx) {
		d.logger.Info("Login judged successful", zap.String("signal", "success_marker"))
		return true
	}
	if d.formGone(ctx) {
		d.logger.Info("Login judged successful", zap.String("signal", "form_hidden"))
		return true
	}
	if d.signals.UseEmptyFields && d.fieldsCleared(ctx) {
		// The weakest heuristic: some apps clear the form on failure too.
		d.logger.Info("Login judged successful", zap.String("signal", "fields_empty"))
		return true
	}
	d.logger.Info("Login outcome indeterminate; no signal fired")
	return false
}

// urlReached polls the page URL until it contains the configured fragment or
// the budget runs out. Polling rather than a one-shot read covers redirects
// that land shortly after submit.
func (d *Detector) urlReached(ctx context.Context) bool {
	fragment := d.signals.SuccessURLFragment
	if fragment == "" {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, d.signals.URLTimeout)
	defer cancel()

	ticker := time.NewTicker(urlPollInterval)
	defer ticker.Stop()
	for {
		current, err := d.prober.CurrentURL(checkCtx)
		if err != nil {
			d.logger.Debug("URL readback failed", zap.Error(err))
		} else if strings.Contains(current, fragment) {
			return true
		}
		select {
		case <-ticker.C:
		case <-checkCtx.Done():
			return false
		}
	}
}

func (d *Detector) markerVisible(ctx context.Context) bool {
	if d.signals.SuccessSelector == "" {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, d.signals.SuccessTimeout)
	defer cancel()
	if err := d.prober.WaitVisible(checkCtx, d.signals.SuccessSelector); err != nil {
		d.logger.Debug("Success marker did not appear", zap.Error(err))
		return false
	}
	return true
}

func (d *Detector) formGone(ctx context.Context) bool {
	if d.signals.FormSelector == "" {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, d.signals.FormGoneTimeout)
	defer cancel()
	if err := d.prober.WaitHidden(checkCtx, d.signals.FormSelector); err != nil {
		d.logger.Debug("Login form still present", zap.Error(err))
		return false
	}
	return true
}

// fieldsCleared reads both credential fields inside one shared budget. Any
// probe error vetoes the signal; an unreadable field is not evidence of
// anything.
func (d *Detector) fieldsCleared(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, d.signals.FieldTimeout)
	defer cancel()

	user, err := d.prober.FieldValue(checkCtx, d.signals.UserFieldSelector)
	if err != nil {
		d.logger.Debug("Username field readback failed", zap.Error(err))
		return false
	}
	pass, err := d.prober.FieldValue(checkCtx, d.signals.PassFieldSelector)
	if err != nil {
		d.logger.Debug("Password field readback failed", zap.Error(err))
		return false
	}
	return user == "" && pass == ""
}
