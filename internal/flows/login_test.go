// File: internal/flows/login_test.go
package flows

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/extprobe-cli/internal/browser"
	"github.com/xkilldash9x/extprobe-cli/internal/config"
)

func TestAttempts(t *testing.T) {
	site := config.SiteConfig{
		BaseURL:  "https://example.com",
		Username: "alice",
		Password: "hunter2",
	}

	attempts := Attempts(site)
	require.Len(t, attempts, 2)

	valid := attempts[0]
	assert.Equal(t, "valid-credentials", valid.Label)
	assert.Equal(t, "alice", valid.Username)
	assert.Equal(t, "hunter2", valid.Password)
	assert.True(t, valid.ExpectSuccess)

	invalid := attempts[1]
	assert.Equal(t, "invalid-credentials", invalid.Label)
	assert.Equal(t, "alice", invalid.Username)
	assert.NotEqual(t, valid.Password, invalid.Password, "corrupted password must differ")
	assert.False(t, invalid.ExpectSuccess)
}

func TestAttempt_Evaluate(t *testing.T) {
	testCases := []struct {
		name          string
		expectSuccess bool
		succeeded     bool
		wantPassed    bool
	}{
		{"expected success and succeeded", true, true, true},
		{"expected success but indeterminate", true, false, false},
		{"expected failure and failed", false, false, true},
		{"expected failure but succeeded", false, true, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := Attempt{ExpectSuccess: tc.expectSuccess}
			assert.Equal(t, tc.wantPassed, a.Evaluate(tc.succeeded))
		})
	}
}

// fakePanelSource stands in for a ready browser manager.
type fakePanelSource struct {
	addr string
}

func (f *fakePanelSource) AddressFor(path string) (string, error) {
	return f.addr + "/" + path, nil
}

func (f *fakePanelSource) BrowserContext() (context.Context, error) {
	return context.Background(), nil
}

// fakeDriver scripts the browser-bound half of an attempt and records what
// the flow asked of it.
type fakeDriver struct {
	submitErr     error
	verdict       bool
	screenshot    []byte
	screenshotErr error

	submittedURL  string
	submittedUser string
	submittedPass string
	judgeCalls    int
	shotCalls     int
	closeCalls    atomic.Int32
}

func (d *fakeDriver) SubmitCredentials(ctx context.Context, panelURL, username, password string) error {
	d.submittedURL = panelURL
	d.submittedUser = username
	d.submittedPass = password
	return d.submitErr
}

func (d *fakeDriver) Judge(ctx context.Context) bool {
	d.judgeCalls++
	return d.verdict
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	d.shotCalls++
	return d.screenshot, d.screenshotErr
}

func (d *fakeDriver) Close() {
	d.closeCalls.Add(1)
}

func newTestFlow(drv *fakeDriver) *LoginFlow {
	cfg := config.NewDefaultConfig()
	cfg.Extension.Path = "/tmp/extension"
	flow := NewLoginFlow(&fakePanelSource{addr: "chrome-extension://testid"}, cfg, zap.NewNop())
	flow.newDriver = func(browserCtx context.Context) formDriver { return drv }
	return flow
}

func TestLoginFlow_RunSubmitsAndJudges(t *testing.T) {
	drv := &fakeDriver{verdict: true}
	flow := newTestFlow(drv)

	res, err := flow.Run(context.Background(), Attempt{
		Label:         "valid-credentials",
		Username:      "alice",
		Password:      "hunter2",
		ExpectSuccess: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "chrome-extension://testid/sidepanel.html", drv.submittedURL)
	assert.Equal(t, "alice", drv.submittedUser)
	assert.Equal(t, "hunter2", drv.submittedPass)
	assert.Equal(t, 1, drv.judgeCalls)

	assert.True(t, res.Succeeded)
	assert.True(t, res.Passed)
	assert.Equal(t, "chrome-extension://testid/sidepanel.html", res.PanelURL)
	assert.Empty(t, res.Screenshot, "passing attempts capture no evidence")
	assert.Zero(t, drv.shotCalls)
	assert.EqualValues(t, 1, drv.closeCalls.Load(), "driver released after the attempt")
}

func TestLoginFlow_RunSurfacesInteractionError(t *testing.T) {
	submitErr := errors.New("node not found for selector")
	drv := &fakeDriver{submitErr: submitErr}
	flow := newTestFlow(drv)

	_, err := flow.Run(context.Background(), Attempt{Label: "valid-credentials", ExpectSuccess: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, submitErr)
	assert.Contains(t, err.Error(), "valid-credentials")

	assert.Zero(t, drv.judgeCalls, "a failed submission is never judged")
	assert.EqualValues(t, 1, drv.closeCalls.Load())
}

func TestLoginFlow_RunCapturesScreenshotOnExpectedSuccessMiss(t *testing.T) {
	shot := []byte{0x89, 'P', 'N', 'G'}
	drv := &fakeDriver{verdict: false, screenshot: shot}
	flow := newTestFlow(drv)

	res, err := flow.Run(context.Background(), Attempt{Label: "valid-credentials", ExpectSuccess: true})
	require.NoError(t, err)

	assert.False(t, res.Succeeded)
	assert.False(t, res.Passed)
	assert.Equal(t, shot, res.Screenshot)
	assert.Equal(t, 1, drv.shotCalls)
}

func TestLoginFlow_RunSkipsScreenshotOnExpectedFailure(t *testing.T) {
	drv := &fakeDriver{verdict: false}
	flow := newTestFlow(drv)

	res, err := flow.Run(context.Background(), Attempt{Label: "invalid-credentials", ExpectSuccess: false})
	require.NoError(t, err)

	assert.False(t, res.Succeeded)
	assert.True(t, res.Passed, "an expected failure that fails is a pass")
	assert.Empty(t, res.Screenshot)
	assert.Zero(t, drv.shotCalls)
}

func TestLoginFlow_RunToleratesScreenshotFailure(t *testing.T) {
	drv := &fakeDriver{verdict: false, screenshotErr: errors.New("page gone")}
	flow := newTestFlow(drv)

	res, err := flow.Run(context.Background(), Attempt{Label: "valid-credentials", ExpectSuccess: true})
	require.NoError(t, err, "evidence capture is best-effort")
	assert.False(t, res.Passed)
	assert.Empty(t, res.Screenshot)
}

// Running against a manager that never launched must surface the contract
// violation instead of touching a browser.
func TestLoginFlow_RunRequiresReadyManager(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Extension.Path = "/tmp/extension"
	mgr := browser.NewManager(cfg, zap.NewNop())
	flow := NewLoginFlow(mgr, cfg, zap.NewNop())

	_, err := flow.Run(context.Background(), Attempt{Label: "valid-credentials"})
	assert.ErrorIs(t, err, browser.ErrNotReady)
}
