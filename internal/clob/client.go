// Package clob is the REST side of the exchange: public market parameters,
// API key management and order submission, each gated by its auth tier.
package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polyclob/internal/auth"
	"github.com/GoPolymarket/polyclob/internal/manager"
	"github.com/GoPolymarket/polyclob/internal/order"
	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyclob/internal/pkg/logger"
	"github.com/GoPolymarket/polyclob/internal/pkg/metrics"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultHost      = "https://clob.polymarket.com"
	DefaultUserAgent = "polyclob"
	DefaultTimeout   = 15 * time.Second

	pathTime         = "/time"
	pathTickSize     = "/tick-size"
	pathNegRisk      = "/neg-risk"
	pathFeeRate      = "/fee-rate"
	pathCreateAPIKey = "/auth/api-key"
	pathDeriveAPIKey = "/auth/derive-api-key"
	pathAPIKeys      = "/auth/api-keys"
	pathOrder        = "/order"
	pathCancelAll    = "/cancel-all"
)

// OrderRecorder observes every order post, successful or not.
type OrderRecorder interface {
	Record(ctx context.Context, o *order.SignedOrder, orderType order.OrderType, status string, response []byte) error
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.http.SetHeader("User-Agent", ua)
		}
	}
}

// WithRateLimit caps outbound requests. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithBuilder(b *order.Builder) Option {
	return func(c *Client) { c.builder = b }
}

func WithRecorder(r OrderRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

type Client struct {
	host     string
	http     *resty.Client
	limiter  *rate.Limiter
	tokens   *manager.TokenCache
	builder  *order.Builder
	recorder OrderRecorder
	log      *slog.Logger

	mu   sync.RWMutex
	auth *auth.Authenticator
}

func New(host string, a *auth.Authenticator, opts ...Option) (*Client, error) {
	host = strings.TrimRight(host, "/")
	if host == "" {
		host = DefaultHost
	}
	if a == nil {
		a = auth.NewAuthenticator(nil, nil)
	}

	c := &Client{
		host: host,
		http: resty.New().
			SetBaseURL(host).
			SetTimeout(DefaultTimeout).
			SetHeader("Accept", "*/*").
			SetHeader("User-Agent", DefaultUserAgent),
		limiter: rate.NewLimiter(rate.Inf, 0),
		auth:    a,
	}
	c.tokens = manager.NewTokenCache(c)

	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get()
	}
	c.log = c.log.With("component", "clob")

	if c.builder == nil && a.Signer() != nil {
		b, err := order.NewBuilder(a.Signer())
		if err != nil {
			return nil, err
		}
		c.builder = b
	}
	return c, nil
}

func (c *Client) Host() string { return c.host }

func (c *Client) Tokens() *manager.TokenCache { return c.tokens }

func (c *Client) Builder() *order.Builder { return c.builder }

func (c *Client) Authenticator() *auth.Authenticator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth
}

// UseCredentials upgrades the client to L2 with freshly issued credentials.
func (c *Client) UseCredentials(creds auth.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auth.Signer() == nil {
		return c.auth.Require(auth.L1)
	}
	c.auth = auth.NewAuthenticator(c.auth.Signer(), &creds)
	return nil
}

func (c *Client) Tier() auth.Tier { return c.Authenticator().Tier() }

type call struct {
	method  string
	path    string
	query   map[string]string
	body    []byte
	headers auth.Headers
}

// do sends one request and decodes a 2xx body into out. Non-2xx responses
// return the raw body together with an UPSTREAM_ERROR.
func (c *Client) do(ctx context.Context, r call, out any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.New(apperrors.ErrTransport, "rate limiter", err)
	}

	req := c.http.R().SetContext(ctx).SetHeaders(r.headers)
	if len(r.query) > 0 {
		req.SetQueryParams(r.query)
	}
	if r.body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(r.body)
	}

	start := time.Now()
	resp, err := req.Execute(r.method, r.path)
	metrics.LatencyBucket.WithLabelValues(r.path).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, apperrors.New(apperrors.ErrTransport, fmt.Sprintf("%s %s", r.method, r.path), err)
	}

	body := resp.Body()
	if !resp.IsSuccess() {
		c.log.Warn("Upstream rejected request", "method", r.method, "path", r.path, "status", resp.StatusCode())
		return body, apperrors.New(apperrors.ErrUpstream,
			fmt.Sprintf("%s %s: status %d: %s", r.method, r.path, resp.StatusCode(), strings.TrimSpace(string(body))), nil)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return body, apperrors.New(apperrors.ErrProtocolDecode, fmt.Sprintf("decode %s response", r.path), err)
		}
	}
	return body, nil
}

func (c *Client) l2(method, path string, body []byte) (auth.Headers, error) {
	return c.Authenticator().APIKeyHeaders(auth.Request{Method: method, Path: path, Body: body})
}

// ServerTime returns the exchange clock in unix seconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	var ts int64
	if _, err := c.do(ctx, call{method: http.MethodGet, path: pathTime}, &ts); err != nil {
		return 0, err
	}
	return ts, nil
}

func (c *Client) TickSize(ctx context.Context, tokenID string) (string, error) {
	return c.tokens.TickSize(ctx, tokenID)
}

func (c *Client) NegRisk(ctx context.Context, tokenID string) (bool, error) {
	return c.tokens.NegRisk(ctx, tokenID)
}

func (c *Client) FeeRateBps(ctx context.Context, tokenID string) (uint64, error) {
	return c.tokens.FeeRateBps(ctx, tokenID)
}

// FetchTickSize bypasses the cache.
func (c *Client) FetchTickSize(ctx context.Context, tokenID string) (string, error) {
	var out struct {
		MinimumTickSize any `json:"minimum_tick_size"`
	}
	if _, err := c.do(ctx, call{method: http.MethodGet, path: pathTickSize, query: map[string]string{"token_id": tokenID}}, &out); err != nil {
		return "", err
	}
	if out.MinimumTickSize == nil {
		return "", apperrors.New(apperrors.ErrProtocolDecode, "tick size missing from response", nil)
	}
	return fmt.Sprint(out.MinimumTickSize), nil
}

// FetchNegRisk bypasses the cache.
func (c *Client) FetchNegRisk(ctx context.Context, tokenID string) (bool, error) {
	var out struct {
		NegRisk bool `json:"neg_risk"`
	}
	if _, err := c.do(ctx, call{method: http.MethodGet, path: pathNegRisk, query: map[string]string{"token_id": tokenID}}, &out); err != nil {
		return false, err
	}
	return out.NegRisk, nil
}

// FetchFeeRateBps bypasses the cache. A missing base_fee means zero.
func (c *Client) FetchFeeRateBps(ctx context.Context, tokenID string) (uint64, error) {
	var out struct {
		BaseFee *float64 `json:"base_fee"`
	}
	if _, err := c.do(ctx, call{method: http.MethodGet, path: pathFeeRate, query: map[string]string{"token_id": tokenID}}, &out); err != nil {
		return 0, err
	}
	if out.BaseFee == nil || *out.BaseFee < 0 {
		return 0, nil
	}
	return uint64(*out.BaseFee), nil
}
