// Package portal implements the eCourts case-status wire protocol: token
// bootstrap, captcha retrieval, jurisdiction priming, the three search modes,
// and the case-detail and order-PDF calls.
//
// The client is stateful. It carries the portal's cookies and the current
// anti-automation token, both of which the portal rotates mid-conversation;
// callers persist them between invocations via Cookies and Token.
package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/docket-cli/internal/config"
	"github.com/sells-group/docket-cli/internal/extract"
	"github.com/sells-group/docket-cli/internal/resilience"
)

// Client talks to one portal conversation. Not safe for concurrent use;
// each scraping session gets its own Client.
type Client struct {
	http    *resty.Client
	baseURL *url.URL
	token   string

	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig

	settleDelay time.Duration
	log         *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBreaker shares a circuit breaker across clients. The bulk orchestrator
// passes one breaker to all workers so a portal outage trips once.
func WithBreaker(b *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithLimiter shares a rate limiter across clients.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New builds a portal client from config.
func New(cfg config.PortalConfig, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "portal: parse base url")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "portal: cookie jar")
	}

	hc := resty.New()
	hc.SetBaseURL(cfg.BaseURL)
	hc.SetCookieJar(jar)
	hc.SetTimeout(cfg.Timeout())
	hc.SetHeader("User-Agent", cfg.UserAgent)
	hc.SetHeader("Accept", "application/json, text/javascript, */*; q=0.01")
	hc.SetHeader("Accept-Language", "en-US,en-IN;q=0.9,en;q=0.8")
	hc.SetHeader("Origin", base.Scheme+"://"+base.Host)
	hc.SetHeader("Referer", base.Scheme+"://"+base.Host+"/")

	c := &Client{
		http:        hc,
		baseURL:     base,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		breaker:     resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		retry:       resilience.TransportRetryConfig(cfg.TransportRetries),
		settleDelay: cfg.SettleDelay(),
		log:         zap.L().With(zap.String("component", "portal")),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.OnRetry = resilience.RetryLogger("portal", "http")
	return c, nil
}

// Token returns the current anti-automation token.
func (c *Client) Token() string {
	return c.token
}

// SetToken replaces the current token, typically from a persisted session.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Cookies snapshots the portal cookies for persistence.
func (c *Client) Cookies() map[string]string {
	out := map[string]string{}
	for _, ck := range c.http.GetClient().Jar.Cookies(c.baseURL) {
		out[ck.Name] = ck.Value
	}
	return out
}

// SeedCookies loads persisted cookies into the jar.
func (c *Client) SeedCookies(cookies map[string]string) {
	list := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		list = append(list, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	c.http.GetClient().Jar.SetCookies(c.baseURL, list)
}

// Bootstrap loads the case-status landing page and extracts the initial
// token. The portal also seeds its session cookies on this request.
func (c *Client) Bootstrap(ctx context.Context) (string, error) {
	res, err := c.get(ctx, "/", map[string]string{"p": "casestatus/index"}, "")
	if err != nil {
		return "", eris.Wrap(err, "portal: bootstrap")
	}

	token, err := extract.Token(string(res.Body()))
	if err != nil {
		return "", eris.Wrap(err, "portal: bootstrap token")
	}
	c.token = token
	return token, nil
}

// Captcha triggers captcha generation and downloads the image. The image
// endpoint must be hit twice: the first GET primes the generator, the second
// returns the rendered image.
func (c *Client) Captcha(ctx context.Context) ([]byte, error) {
	if _, err := c.postForm(ctx, "casestatus/getCaptcha", map[string]string{}); err != nil {
		return nil, eris.Wrap(err, "portal: trigger captcha")
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	path := "/vendor/securimage/securimage_show.php"
	if _, err := c.get(ctx, path, nil, ts); err != nil {
		return nil, eris.Wrap(err, "portal: prime captcha image")
	}
	res, err := c.get(ctx, path, nil, ts)
	if err != nil {
		return nil, eris.Wrap(err, "portal: download captcha image")
	}
	return res.Body(), nil
}

// FillDistricts returns the district options fragment for a state.
func (c *Client) FillDistricts(ctx context.Context, stateCode string) (string, error) {
	m, err := c.postForm(ctx, "casestatus/fillDistrict", map[string]string{
		"state_code": stateCode,
	})
	if err != nil {
		return "", eris.Wrap(err, "portal: fill districts")
	}
	return firstString(m, "dist_list", "data_list"), nil
}

// FillComplexes returns the court-complex options fragment for a district.
func (c *Client) FillComplexes(ctx context.Context, stateCode, distCode string) (string, error) {
	m, err := c.postForm(ctx, "casestatus/fillcomplex", map[string]string{
		"state_code": stateCode,
		"dist_code":  distCode,
	})
	if err != nil {
		return "", eris.Wrap(err, "portal: fill complexes")
	}
	return firstString(m, "complex_list", "data_list"), nil
}

// SetJurisdiction primes the portal's server-side session with the selected
// state, district, and complex. Required before party and advocate searches.
// A complex code without an establishment suffix gets the default appended.
func (c *Client) SetJurisdiction(ctx context.Context, stateCode, distCode, complexCode string) error {
	formatted := complexCode
	if !strings.Contains(complexCode, "@") {
		formatted = complexCode + "@1@N"
	}
	_, err := c.postForm(ctx, "casestatus/set_data", map[string]string{
		"complex_code":        formatted,
		"selected_state_code": stateCode,
		"selected_dist_code":  distCode,
		"selected_est_code":   "null",
	})
	return eris.Wrap(err, "portal: set jurisdiction")
}

// postForm sends an ajax POST to a portal endpoint, injecting the current
// token, and adopts any rotated token found in the response envelope.
// Connection and 5xx-class failures are retried at a fixed delay; a 200 that
// is not JSON is surfaced as transient for the outer layers to handle.
func (c *Client) postForm(ctx context.Context, endpoint string, form map[string]string) (map[string]any, error) {
	data := make(map[string]string, len(form)+2)
	for k, v := range form {
		data[k] = v
	}
	if _, ok := data["app_token"]; !ok && c.token != "" {
		data["app_token"] = c.token
	}
	data["ajax_req"] = "true"

	res, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*resty.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var res *resty.Response
		execErr := c.breaker.Execute(ctx, func(ctx context.Context) error {
			r, err := c.http.R().
				SetContext(ctx).
				SetHeader("X-Requested-With", "XMLHttpRequest").
				SetQueryParam("p", endpoint).
				SetFormData(data).
				Post("/")
			if err != nil {
				return resilience.NewTransientError(err, 0)
			}
			if resilience.IsTransientHTTPStatus(r.StatusCode()) {
				return resilience.NewTransientError(
					eris.Errorf("portal: %s returned %d", endpoint, r.StatusCode()),
					r.StatusCode(),
				)
			}
			res = r
			return nil
		})
		return res, execErr
	})
	if err != nil {
		return nil, eris.Wrapf(err, "portal: post %s", endpoint)
	}

	var m map[string]any
	if err := json.Unmarshal(res.Body(), &m); err != nil {
		c.log.Debug("non-json portal response",
			zap.String("endpoint", endpoint),
			zap.Int("status", res.StatusCode()),
		)
		return nil, resilience.NewTransientError(
			eris.Wrapf(err, "portal: %s returned non-json body", endpoint),
			res.StatusCode(),
		)
	}

	if tok := firstString(m, "token", "app_token"); tok != "" && tok != c.token {
		c.log.Debug("token rotated", zap.String("endpoint", endpoint))
		c.token = tok
	}
	return m, nil
}

// get fetches a non-ajax resource (landing page, captcha image, report PDF).
// rawQuery, when set, is appended verbatim the way the portal's own pages do
// for the captcha cache-buster.
func (c *Client) get(ctx context.Context, path string, query map[string]string, rawQuery string) (*resty.Response, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*resty.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var res *resty.Response
		execErr := c.breaker.Execute(ctx, func(ctx context.Context) error {
			req := c.http.R().SetContext(ctx)
			for k, v := range query {
				req.SetQueryParam(k, v)
			}
			target := path
			if rawQuery != "" {
				target = path + "?" + rawQuery
			}
			r, err := req.Get(target)
			if err != nil {
				return resilience.NewTransientError(err, 0)
			}
			if resilience.IsTransientHTTPStatus(r.StatusCode()) {
				return resilience.NewTransientError(
					eris.Errorf("portal: GET %s returned %d", path, r.StatusCode()),
					r.StatusCode(),
				)
			}
			res = r
			return nil
		})
		return res, execErr
	})
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
