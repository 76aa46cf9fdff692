// Package portal drives one account's HTTP session against the academic
// portal: login with CAPTCHA, course and content listing, check-in and
// roster verification.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"absen/internal/metrics"
	"absen/internal/model"
)

const maxBody = 8 << 20

// DefaultUserAgents are desktop browser agents picked per new session.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// Config describes the portal endpoints and the client's budgets.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	MaxRedirects  int
	LoginAttempts int
	LoginBudget   time.Duration
	RetryDelay    time.Duration
	DelayMin      time.Duration
	DelayMax      time.Duration
	UserAgents    []string
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
	if c.LoginAttempts <= 0 {
		c.LoginAttempts = 3
	}
	if c.LoginBudget <= 0 {
		c.LoginBudget = 25 * time.Second
	}
	if len(c.UserAgents) == 0 {
		c.UserAgents = DefaultUserAgents
	}
	return c
}

func (c Config) LoginURL() string   { return c.BaseURL + "/login.php?l=" + c.BaseURL + "/index.php" }
func (c Config) CaptchaURL() string { return c.BaseURL + "/gen_cap.php" }
func (c Config) SubmitURL() string  { return c.BaseURL + "/cekadm.php?l=" + c.BaseURL }
func (c Config) ListingURL() string { return c.BaseURL + "/kuliah/" }

// Solver answers a CAPTCHA image.
type Solver interface {
	Solve(ctx context.Context, image []byte) (int, error)
}

// Cookies are the name/value pairs a response set. Callers merge them into
// their session.
type Cookies map[string]string

// CheckIn is the outcome of visiting a content item's check-in link.
type CheckIn struct {
	PageTitle string
}

// Client is stateless with respect to sessions: every call takes the session
// to present and returns the cookies the portal set.
type Client struct {
	cfg        Config
	http       *http.Client
	noRedirect *http.Client
	solver     Solver
	pacer      Pacer
	now        func() time.Time
	log        *zap.Logger
}

// New builds a client.
func New(cfg Config, solver Solver, log *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	maxRedirects := cfg.MaxRedirects
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		noRedirect: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		solver: solver,
		pacer:  Pacer{Min: cfg.DelayMin, Max: cfg.DelayMax},
		now:    time.Now,
		log:    log.With(zap.String("component", "portal")),
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// NewSession starts an empty session with a random user agent.
func (c *Client) NewSession() *model.Session {
	return model.NewSession(c.cfg.UserAgents[rand.IntN(len(c.cfg.UserAgents))])
}

type response struct {
	status   int
	body     []byte
	location string
	finalURL string
	cookies  Cookies
}

func (c *Client) fetch(ctx context.Context, page, method, target string, form url.Values, session *model.Session, follow bool) (*response, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("portal: build %s request: %w", page, err)
	}
	ua := DefaultUserAgents[0]
	if session != nil && session.UserAgent != "" {
		ua = session.UserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "id-ID,id;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cookie := session.Header(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	hc := c.http
	if !follow {
		hc = c.noRedirect
	}
	start := time.Now()
	resp, err := hc.Do(req)
	metrics.PortalRequestDuration.WithLabelValues(page).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PortalRequestsTotal.WithLabelValues(page, "error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrPortalUnreachable, page, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrPortalUnreachable, page, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		metrics.PortalRequestsTotal.WithLabelValues(page, "error").Inc()
		return nil, fmt.Errorf("%w: read %s: %v", ErrPortalUnreachable, page, err)
	}
	metrics.PortalRequestsTotal.WithLabelValues(page, http.StatusText(resp.StatusCode)).Inc()

	out := &response{
		status:   resp.StatusCode,
		body:     raw,
		finalURL: resp.Request.URL.String(),
		cookies:  Cookies{},
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		if ref, err := resp.Request.URL.Parse(loc); err == nil {
			out.location = ref.String()
		} else {
			out.location = loc
		}
	}
	for _, ck := range resp.Cookies() {
		if ck.Name != "" {
			out.cookies[ck.Name] = ck.Value
		}
	}
	return out, nil
}

// page fetches an authenticated page and checks it was actually served.
func (c *Client) page(ctx context.Context, name, target string, session *model.Session) (*response, error) {
	if session.Empty() {
		return nil, ErrSessionInvalid
	}
	resp, err := c.fetch(ctx, name, http.MethodGet, target, nil, session, true)
	if err != nil {
		return nil, err
	}
	if strings.Contains(resp.finalURL, "login.php") {
		return resp, ErrSessionInvalid
	}
	if resp.status >= 400 {
		return resp, &PageError{Page: name, Reason: fmt.Sprintf("status %d", resp.status)}
	}
	return resp, nil
}

// ListCourses fetches and parses the e-learning course listing.
func (c *Client) ListCourses(ctx context.Context, session *model.Session) ([]model.Course, Cookies, error) {
	resp, err := c.page(ctx, "courses", c.cfg.ListingURL(), session)
	if err != nil {
		return nil, cookiesOf(resp), err
	}
	courses, err := ParseCourses(resp.body, c.cfg.ListingURL())
	if err != nil {
		return nil, resp.cookies, err
	}
	c.log.Debug("courses listed", zap.Int("count", len(courses)))
	return courses, resp.cookies, nil
}

// ListContentItems fetches the content listing of one course.
func (c *Client) ListContentItems(ctx context.Context, session *model.Session, courseContentID string) ([]model.ContentItem, Cookies, error) {
	if courseContentID == "" {
		return nil, nil, errors.New("portal: course has no content listing")
	}
	target := c.cfg.ListingURL() + "?m=" + url.QueryEscape(courseContentID)
	resp, err := c.page(ctx, "content", target, session)
	if err != nil {
		return nil, cookiesOf(resp), err
	}
	items, err := ParseContentItems(resp.body, c.cfg.ListingURL(), c.now().UTC())
	if err != nil {
		return nil, resp.cookies, err
	}
	c.log.Debug("content listed", zap.String("course", courseContentID), zap.Int("count", len(items)))
	return items, resp.cookies, nil
}

// CheckIn visits a content item's discussion page; the portal registers
// self-attendance on access.
func (c *Client) CheckIn(ctx context.Context, session *model.Session, link string) (CheckIn, Cookies, error) {
	if link == "" {
		return CheckIn{}, nil, errors.New("portal: empty check-in link")
	}
	resp, err := c.page(ctx, "checkin", link, session)
	if err != nil {
		return CheckIn{}, cookiesOf(resp), err
	}
	title, err := ParseCheckIn(resp.body)
	if err != nil {
		return CheckIn{}, resp.cookies, err
	}
	return CheckIn{PageTitle: title}, resp.cookies, nil
}

// CheckAttendance reads the roster page and reports whether loginID is on it.
func (c *Client) CheckAttendance(ctx context.Context, session *model.Session, rosterLink, loginID string) (model.Attendance, Cookies, error) {
	if rosterLink == "" {
		return model.Attendance{}, nil, errors.New("portal: empty roster link")
	}
	resp, err := c.page(ctx, "roster", rosterLink, session)
	if err != nil {
		return model.Attendance{}, cookiesOf(resp), err
	}
	att, err := ParseRoster(resp.body, loginID)
	if err != nil {
		return model.Attendance{}, resp.cookies, err
	}
	return att, resp.cookies, nil
}

func cookiesOf(resp *response) Cookies {
	if resp == nil {
		return nil
	}
	return resp.cookies
}
