package query

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"

	"github.com/yxzhu/wubiq/internal/model"
	"github.com/yxzhu/wubiq/internal/util"
)

// Server response markers. The result page is GB2312-encoded; these are
// matched after decoding.
const (
	wrongCaptchaMarker = "验证码错误"
	badCharMarker      = "指定汉字错误"
)

// Outcome classifies the server's reaction to a form submission.
type Outcome int

const (
	// OutcomeAccepted means the server served a result page.
	OutcomeAccepted Outcome = iota
	// OutcomeWrongCaptcha means the captcha digits were rejected; the
	// session is spent and the caller may retry with a fresh one.
	OutcomeWrongCaptcha
	// OutcomeRejected means a non-captcha rejection; retrying cannot help.
	OutcomeRejected
)

// Session binds exactly one captcha fetch to exactly one submit attempt via
// the server's cookie. Single-use: a second fetch or submit fails with
// model.ErrSessionUsed.
type Session struct {
	client    *http.Client
	fetched   bool
	submitted bool
}

// Client talks to the remote query form. All requests honor the configured
// per-host rate limit.
type Client struct {
	transport http.RoundTripper
	cfg       model.QueryConfig
	httpCfg   model.HTTPConfig
	limiter   *rate.Limiter
}

// NewClient builds a query client from configuration.
func NewClient(cfg *model.Config) (*Client, error) {
	if _, err := url.Parse(cfg.Query.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	rps := cfg.HTTP.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.HTTP.Burst
	if burst <= 0 {
		burst = 1
	}

	transport := &http.Transport{
		Proxy: util.NewProxyFunc(cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy),
	}

	return &Client{
		transport: transport,
		cfg:       cfg.Query,
		httpCfg:   cfg.HTTP,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// BaseURL returns the configured remote base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// NewSession establishes a fresh server session by loading the form page
// that issues the session cookie.
func (c *Client) NewSession(ctx context.Context) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	s := &Session{
		client: &http.Client{
			Jar:       jar,
			Timeout:   c.httpCfg.Timeout,
			Transport: c.transport,
		},
	}

	if _, err := c.get(ctx, s, c.endpoint(c.cfg.PrimePath)); err != nil {
		return nil, fmt.Errorf("prime session: %w", err)
	}
	return s, nil
}

// FetchCaptcha retrieves the captcha bitmap bound to the session.
func (c *Client) FetchCaptcha(ctx context.Context, s *Session) ([]byte, error) {
	if s.fetched {
		return nil, model.ErrSessionUsed
	}
	s.fetched = true

	raw, err := c.get(ctx, s, c.endpoint(c.cfg.CaptchaPath))
	if err != nil {
		return nil, fmt.Errorf("fetch captcha: %w", err)
	}
	return raw, nil
}

// Submit posts the query form with the recognized captcha code under the
// session. The form and the response body are GB2312-encoded. Returns the
// outcome and the decoded result page.
func (c *Client) Submit(ctx context.Context, s *Session, char, code string) (Outcome, string, error) {
	if s.submitted {
		return OutcomeRejected, "", model.ErrSessionUsed
	}
	s.submitted = true

	body, err := encodeForm([][2]string{
		{"query_hz", char},
		{"yanzhengma", code},
		{"ok", "查询"},
	})
	if err != nil {
		return OutcomeRejected, "", fmt.Errorf("encode form: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return OutcomeRejected, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.SubmitPath), strings.NewReader(body))
	if err != nil {
		return OutcomeRejected, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.httpCfg.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", c.endpoint(c.cfg.PrimePath))

	resp, err := s.client.Do(req)
	if err != nil {
		return OutcomeRejected, "", fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return OutcomeRejected, "", fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	decoded := transform.NewReader(io.LimitReader(resp.Body, c.httpCfg.MaxBodyBytes), simplifiedchinese.GBK.NewDecoder())
	page, err := io.ReadAll(decoded)
	if err != nil {
		return OutcomeRejected, "", fmt.Errorf("read result page: %w", err)
	}
	html := string(page)

	switch {
	case strings.Contains(html, wrongCaptchaMarker):
		return OutcomeWrongCaptcha, html, nil
	case strings.Contains(html, badCharMarker):
		return OutcomeRejected, html, nil
	default:
		return OutcomeAccepted, html, nil
	}
}

// get performs a rate-limited GET through the session's cookie jar and
// returns the size-capped body.
func (c *Client) get(ctx context.Context, s *Session, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.httpCfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, c.httpCfg.MaxBodyBytes))
}

// encodeForm builds an application/x-www-form-urlencoded body with values
// percent-encoded in GB2312, which is what the legacy form expects.
func encodeForm(fields [][2]string) (string, error) {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		encoded, _, err := transform.String(simplifiedchinese.GBK.NewEncoder(), f[1])
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", f[0], err)
		}
		b.WriteString(url.QueryEscape(f[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(encoded))
	}
	return b.String(), nil
}
