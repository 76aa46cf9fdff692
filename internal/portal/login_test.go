package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"absen/internal/captcha"
)

const dashboard = `<html><head><title>Dashboard</title></head><body>
<div class="user-panel"><div class="info"><p>RINA MARLINA</p></div></div></body></html>`

func TestLoginSuccess(t *testing.T) {
	p := &fakePortal{answer: "7", password: "s3cret", dashboard: dashboard}
	c := newTestClient(t, p, fixedSolver(7))

	res, err := c.Login(context.Background(), "2021002", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "RINA MARLINA", res.StudentName)
	require.NotNil(t, res.Session)
	assert.Equal(t, "sess-1", res.Session.Cookies["PHPSESSID"])
	assert.Equal(t, "ok", res.Session.Cookies["auth"])
	assert.NotEmpty(t, res.Session.UserAgent)
}

func TestLoginWrongPassword(t *testing.T) {
	p := &fakePortal{answer: "7", password: "s3cret", dashboard: dashboard}
	c := newTestClient(t, p, fixedSolver(7))

	_, err := c.Login(context.Background(), "2021002", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.NotErrorIs(t, err, ErrLoginTimeout)

	var le *LoginError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 3, le.Attempts)
	assert.Equal(t, PhaseSubmitted, le.Phase)
	assert.Contains(t, le.Reason, "salah")
	assert.Equal(t, 3, p.submits)
}

func TestLoginAttemptsDoNotShareCookies(t *testing.T) {
	p := &fakePortal{answer: "7", password: "s3cret", dashboard: dashboard}
	c := newTestClient(t, p, fixedSolver(7))

	_, err := c.Login(context.Background(), "2021002", "nope")
	require.Error(t, err)
	require.Len(t, p.loginCookies, 3)
	for _, cookie := range p.loginCookies {
		assert.Empty(t, cookie)
	}
}

func TestLoginRetriesUnreadableCaptcha(t *testing.T) {
	p := &fakePortal{answer: "5", password: "s3cret", dashboard: dashboard}
	calls := 0
	solver := solverFunc(func(context.Context, []byte) (int, error) {
		calls++
		if calls == 1 {
			return 0, &captcha.ParseError{Text: "?", Reason: "no expression"}
		}
		return 5, nil
	})
	c := newTestClient(t, p, solver)

	res, err := c.Login(context.Background(), "2021002", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, p.submits, "an unparsed captcha is never submitted")
}

func TestLoginAllCaptchasUnreadable(t *testing.T) {
	p := &fakePortal{answer: "5", password: "s3cret", dashboard: dashboard}
	solver := solverFunc(func(context.Context, []byte) (int, error) {
		return 0, &captcha.ParseError{Text: "?", Reason: "no expression"}
	})
	c := newTestClient(t, p, solver)

	_, err := c.Login(context.Background(), "2021002", "s3cret")
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.ErrorIs(t, err, captcha.ErrParse)
	assert.Zero(t, p.submits)
}

func TestLoginBudgetExhausted(t *testing.T) {
	p := &fakePortal{answer: "7", password: "s3cret", dashboard: dashboard}
	c := newTestClient(t, p, fixedSolver(7))

	base := time.Now()
	ticks := 0
	c.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks-1) * 30 * time.Second)
	}

	_, err := c.Login(context.Background(), "2021002", "s3cret")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoginTimeout)
	assert.Len(t, p.loginCookies, 1, "no attempt starts once the budget is spent")
	assert.Zero(t, p.submits)
}

func TestLoginCancelled(t *testing.T) {
	p := &fakePortal{answer: "7", password: "s3cret", dashboard: dashboard}
	c := newTestClient(t, p, fixedSolver(7))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Login(ctx, "2021002", "s3cret")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "init", PhaseInit.String())
	assert.Equal(t, "captcha_solved", PhaseCaptchaSolved.String())
	assert.Equal(t, "failed", PhaseFailed.String())
	assert.Equal(t, "phase(42)", Phase(42).String())
}
