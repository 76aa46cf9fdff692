package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"absen/internal/metrics"
	"absen/internal/model"
)

// Phase is the position of one login attempt in the login state machine.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseSessionAcquired
	PhaseCaptchaFetched
	PhaseCaptchaSolved
	PhaseSubmitted
	PhaseVerified
	PhaseFailed
)

var phaseNames = [...]string{"init", "session_acquired", "captcha_fetched", "captcha_solved", "submitted", "verified", "failed"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "phase(" + strconv.Itoa(int(p)) + ")"
}

// LoginResult is a verified login.
type LoginResult struct {
	Session     *model.Session
	StudentName string
	Attempts    int
}

// attempt is one pass through the state machine. Its session starts empty so
// that cookies never leak between attempts.
type attempt struct {
	phase    Phase
	session  *model.Session
	deadline time.Time
	now      func() time.Time
}

// advance moves to next unless the wall-clock budget is already spent.
func (a *attempt) advance(next Phase) error {
	if !a.now().Before(a.deadline) {
		return ErrLoginTimeout
	}
	a.phase = next
	return nil
}

// Login authenticates loginID. The whole sequence is retried up to
// LoginAttempts times within LoginBudget; a failure observed after the budget
// is spent reports ErrLoginTimeout whatever attempts remain.
func (c *Client) Login(ctx context.Context, loginID, password string) (LoginResult, error) {
	start := c.now()
	deadline := start.Add(c.cfg.LoginBudget)
	budgetCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	log := c.log.With(zap.String("login_id", loginID))
	var lastErr error
	lastPhase := PhaseInit
	for n := 1; n <= c.cfg.LoginAttempts; n++ {
		log.Info("login attempt", zap.Int("attempt", n), zap.Int("of", c.cfg.LoginAttempts))
		att := &attempt{phase: PhaseInit, session: c.NewSession(), deadline: deadline, now: c.now}

		name, err := c.runAttempt(budgetCtx, att, loginID, password)
		if err == nil {
			metrics.LoginAttemptsTotal.WithLabelValues(PhaseVerified.String()).Inc()
			metrics.LoginsTotal.WithLabelValues("success").Inc()
			log.Info("login successful", zap.Int("attempt", n), zap.Bool("name_found", name != ""))
			return LoginResult{Session: att.session, StudentName: name, Attempts: n}, nil
		}
		metrics.LoginAttemptsTotal.WithLabelValues(att.phase.String()).Inc()
		failedAt := att.phase
		att.phase = PhaseFailed
		lastErr, lastPhase = err, failedAt
		log.Warn("login attempt failed", zap.Int("attempt", n), zap.Stringer("phase", failedAt), zap.Error(err))

		if ctx.Err() != nil {
			metrics.LoginsTotal.WithLabelValues("failed").Inc()
			return LoginResult{}, ctx.Err()
		}
		if errors.Is(err, ErrLoginTimeout) || !c.now().Before(deadline) {
			metrics.LoginsTotal.WithLabelValues("timeout").Inc()
			return LoginResult{}, fmt.Errorf("%w after %s (%d attempt(s)): %w", ErrLoginTimeout, c.now().Sub(start).Round(time.Millisecond), n, err)
		}
		if n < c.cfg.LoginAttempts {
			if err := Sleep(budgetCtx, c.cfg.RetryDelay); err != nil {
				if ctx.Err() != nil {
					metrics.LoginsTotal.WithLabelValues("failed").Inc()
					return LoginResult{}, ctx.Err()
				}
				metrics.LoginsTotal.WithLabelValues("timeout").Inc()
				return LoginResult{}, fmt.Errorf("%w after %d attempt(s): %w", ErrLoginTimeout, n, lastErr)
			}
		}
	}

	metrics.LoginsTotal.WithLabelValues("failed").Inc()
	var le *LoginError
	if errors.As(lastErr, &le) {
		return LoginResult{}, &LoginError{Reason: le.Reason, Phase: le.Phase, Attempts: c.cfg.LoginAttempts, Err: le.Err}
	}
	return LoginResult{}, &LoginError{Reason: "all attempts failed", Phase: lastPhase, Attempts: c.cfg.LoginAttempts, Err: lastErr}
}

func (c *Client) runAttempt(ctx context.Context, att *attempt, loginID, password string) (string, error) {
	resp, err := c.fetch(ctx, "login", http.MethodGet, c.cfg.LoginURL(), nil, att.session, true)
	if err != nil {
		return "", err
	}
	att.session.Merge(resp.cookies)
	if err := att.advance(PhaseSessionAcquired); err != nil {
		return "", err
	}

	resp, err = c.fetch(ctx, "captcha", http.MethodGet, c.cfg.CaptchaURL(), nil, att.session, true)
	if err != nil {
		return "", err
	}
	if resp.status != http.StatusOK || len(resp.body) == 0 {
		return "", &PageError{Page: "captcha", Reason: fmt.Sprintf("status %d, %d bytes", resp.status, len(resp.body))}
	}
	att.session.Merge(resp.cookies)
	if err := att.advance(PhaseCaptchaFetched); err != nil {
		return "", err
	}

	answer, err := c.solver.Solve(ctx, resp.body)
	if err != nil {
		return "", err
	}
	if err := att.advance(PhaseCaptchaSolved); err != nil {
		return "", err
	}

	form := url.Values{
		"txUser": {loginID},
		"txPass": {password},
		"kdc":    {strconv.Itoa(answer)},
	}
	resp, err = c.fetch(ctx, "submit", http.MethodPost, c.cfg.SubmitURL(), form, att.session, false)
	if err != nil {
		return "", err
	}
	if resp.status >= 400 {
		return "", &PageError{Page: "submit", Reason: fmt.Sprintf("status %d", resp.status)}
	}
	att.session.Merge(resp.cookies)
	if err := att.advance(PhaseSubmitted); err != nil {
		return "", err
	}

	location := resp.location
	if location == "" {
		location = resp.finalURL
	}
	result, err := ParseLoginResponse(resp.body, location, loginID)
	if err != nil {
		return "", err
	}
	if result.Alert != "" && !result.Success {
		return "", &LoginError{Reason: result.Alert, Phase: PhaseSubmitted}
	}
	if !result.Success {
		return "", &LoginError{Reason: "login verification failed", Phase: PhaseSubmitted}
	}
	if err := att.advance(PhaseVerified); err != nil {
		return "", err
	}
	return result.StudentName, nil
}
