// Package npid is a typed client for the legacy recruiting dashboard.
// the upstream only speaks HTML forms, CSRF-protected POSTs and
// responses that mix JSON, HTML and doubly-encoded JSON-in-a-string,
// so the package splits into a session layer (cookies, anti-forgery
// token, automatic recovery) and a translator (typed operations to
// exact legacy field names and back).
package npid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"npid-bridge/lib/htmlutil"
	"npid-bridge/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("scrapers/npid")

const (
	loginPath      = "/auth/login"
	loginCheckPath = "/external/logincheck"
	// a known-authenticated page carrying a fresh `_token` input, the
	// same modal the assignment flow uses
	tokenPagePath = "/rulestemplates/template/assignemailtovideoteam"
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshingToken
	StateClosed
)

// CredentialStore persists session cookies across process restarts.
// it is read once during Initialize and written at Initialize
// completion and Close, normal operation works off the in-memory jar.
type CredentialStore interface {
	Load(ctx context.Context) ([]*http.Cookie, error)
	Save(ctx context.Context, cookies []*http.Cookie) error
}

type ClientOptions struct {
	BaseUrl  string
	Email    string
	Password string
	// the scout api key, sent on the one endpoint family that wants it
	APIKey string
	// optional, sessions are in-memory only without it
	Store CredentialStore
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	store  CredentialStore
	email  string
	pass   string
	apiKey string

	mu            sync.Mutex
	token         string
	state         State
	lastRefreshed time.Time
	// full-attribute copies of every Set-Cookie seen, the jar alone
	// cannot round-trip expiry/secure/httponly flags into the store
	seenCookies map[string]*http.Cookie

	refreshGroup singleflight.Group
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetHeader("x-requested-with", "XMLHttpRequest")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)

	c := &Client{
		BaseUrl:     baseUrl,
		Http:        client,
		store:       opts.Store,
		email:       opts.Email,
		pass:        opts.Password,
		apiKey:      opts.APIKey,
		state:       StateUnauthenticated,
		seenCookies: map[string]*http.Cookie{},
	}
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		c.recordCookies(res.Cookies())
		return nil
	})
	return c, nil
}

func (c *Client) recordCookies(cookies []*http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cookie := range cookies {
		c.seenCookies[cookie.Name] = cookie
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Client) LastRefreshed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefreshed
}

// Initialize restores a persisted session or, failing that, performs
// an interactive login with the configured credentials. it is the only
// place cookies are written back to the store besides Close.
func (c *Client) Initialize(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Initialize")
	defer span.End()

	if c.State() == StateClosed {
		return ErrClosed
	}
	c.setState(StateAuthenticating)

	restored := false
	if c.store != nil {
		cookies, err := c.store.Load(ctx)
		if err != nil {
			c.setState(StateUnauthenticated)
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load persisted cookies")
			return err
		}
		if len(cookies) > 0 {
			c.Http.GetClient().Jar.SetCookies(c.BaseUrl, cookies)
			c.recordCookies(cookies)
			restored = c.sessionValid(ctx)
		}
	}

	if !restored {
		if c.email == "" || c.pass == "" {
			c.setState(StateUnauthenticated)
			span.SetStatus(codes.Error, "no stored session and no credentials")
			return fmt.Errorf("%w: no stored session and no credentials configured", ErrAuthentication)
		}
		err := c.login(ctx)
		if err != nil {
			c.setState(StateUnauthenticated)
			return err
		}
	}

	c.setState(StateAuthenticated)

	err := c.RefreshToken(ctx)
	if err != nil {
		c.setState(StateUnauthenticated)
		return err
	}

	if c.store != nil {
		err := c.store.Save(ctx, c.snapshotCookies())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to persist cookies")
			return err
		}
	}
	return nil
}

// snapshotCookies merges the jar's live view with the full-attribute
// copies recorded from Set-Cookie headers.
func (c *Client) snapshotCookies() []*http.Cookie {
	live := c.Http.GetClient().Jar.Cookies(c.BaseUrl)

	c.mu.Lock()
	defer c.mu.Unlock()

	cookies := make([]*http.Cookie, 0, len(live))
	for _, cookie := range live {
		if seen, ok := c.seenCookies[cookie.Name]; ok {
			full := *seen
			full.Value = cookie.Value
			cookies = append(cookies, &full)
			continue
		}
		cookies = append(cookies, cookie)
	}
	return cookies
}

// sessionValid asks the dashboard whether the current cookies are
// still logged in.
func (c *Client) sessionValid(ctx context.Context) bool {
	res, err := c.Http.R().
		SetContext(ctx).
		Get(loginCheckPath)
	if err != nil || res.StatusCode() != 200 {
		return false
	}
	var check struct {
		Success string `json:"success"`
	}
	err = json.Unmarshal(res.Body(), &check)
	return err == nil && check.Success == "true"
}

func (c *Client) login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:login")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(loginPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}
	doc, err := htmlutil.ParseDocument(res.Body())
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page html")
		return err
	}

	token := htmlutil.InputValue(doc, "_token")
	if token == "" {
		span.SetStatus(codes.Error, "failed to find anti-forgery token on login page")
		return fmt.Errorf("%w: could not find anti-forgery token on login page", ErrAuthentication)
	}

	_, err = c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"email":    c.email,
			"password": c.pass,
			"_token":   token,
			// 400-day persistence
			"remember": "on",
		}).
		SetHeader("referer", c.BaseUrl.JoinPath(loginPath).String()).
		Post(loginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}

	if !c.sessionValid(ctx) {
		span.SetStatus(codes.Error, "login rejected by upstream")
		return fmt.Errorf("%w: login rejected by upstream", ErrAuthentication)
	}
	return nil
}

// RefreshToken re-fetches a known authenticated page and extracts a
// fresh anti-forgery token from its body. concurrent callers share a
// single in-flight refresh.
func (c *Client) RefreshToken(ctx context.Context) error {
	if c.State() == StateClosed {
		return ErrClosed
	}

	_, err, _ := c.refreshGroup.Do("token", func() (any, error) {
		// every waiter shares this one fetch, so it must not die with
		// the first caller. the http client's own timeout still bounds
		// it.
		return nil, c.fetchToken(context.WithoutCancel(ctx))
	})
	return err
}

func (c *Client) fetchToken(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:fetchToken")
	defer span.End()

	c.setState(StateRefreshingToken)

	res, err := c.Http.R().
		SetContext(ctx).
		Get(tokenPagePath)
	if err != nil {
		c.setState(StateUnauthenticated)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch token page")
		return err
	}
	doc, err := htmlutil.ParseDocument(res.Body())
	if err != nil {
		c.setState(StateUnauthenticated)
		span.SetStatus(codes.Error, "failed to parse token page html")
		return err
	}

	token := htmlutil.InputValue(doc, "_token")
	if token == "" {
		c.setState(StateUnauthenticated)
		span.SetStatus(codes.Error, "token page carried no anti-forgery token")
		return fmt.Errorf("%w: token page carried no anti-forgery token", ErrAuthentication)
	}

	c.mu.Lock()
	c.token = token
	c.lastRefreshed = time.Now()
	c.state = StateAuthenticated
	c.mu.Unlock()
	return nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// execute issues one physical HTTP attempt. the anti-forgery token and
// the api key are injected here, at execution time, never earlier.
// retrying on session expiry is Do's job.
func (c *Client) execute(ctx context.Context, req FormRequest) (RawOutcome, error) {
	if c.State() == StateClosed {
		return RawOutcome{}, ErrClosed
	}

	r := c.Http.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	if req.Method == http.MethodPost {
		form := url.Values{}
		for k, vs := range req.Form {
			form[k] = vs
		}
		if req.NeedsToken {
			form.Set("_token", c.currentToken())
		}
		if req.NeedsAPIKey && c.apiKey != "" {
			form.Set("api_key", c.apiKey)
		}
		r.SetFormDataFromValues(form)
	}

	res, err := r.Execute(req.Method, req.Path)
	if err != nil {
		return RawOutcome{}, &UpstreamError{Excerpt: err.Error()}
	}
	return RawOutcome{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.Body(),
	}, nil
}

// Do wraps execute with the recovery policy: if the first attempt is
// classified as a session/CSRF failure the token is refreshed once and
// the call replayed exactly once, and the second outcome is returned
// regardless of its classification. a caller never observes more than
// two physical attempts per logical operation.
func (c *Client) Do(ctx context.Context, req FormRequest) (RawOutcome, error) {
	ctx, span := tracer.Start(ctx, "client:Do")
	defer span.End()

	out, err := c.execute(ctx, req)
	if err != nil {
		return out, err
	}

	if Classify(out, req.Expect) != VerdictSessionExpired {
		return out, nil
	}

	span.AddEvent("session expired, refreshing token")
	err = c.RefreshToken(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token refresh failed")
		return RawOutcome{}, err
	}

	return c.execute(ctx, req)
}

// Close flushes cookies back to the store and makes the client
// unusable. it is the terminal state.
func (c *Client) Close(ctx context.Context) error {
	if c.State() == StateClosed {
		return nil
	}

	var err error
	if c.store != nil && c.State() == StateAuthenticated {
		err = c.store.Save(ctx, c.snapshotCookies())
	}
	c.setState(StateClosed)
	return err
}
