// Package upstream talks to the remote POS backend.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/kasir-desk/internal/pricing"
	"github.com/noah-isme/kasir-desk/internal/resilience"
)

const maxBodyBytes = 8 << 20

// Config configures the remote backend client.
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	UploadTimeout time.Duration
	MaxAttempts   int
	BaseBackoff   time.Duration
	Breaker       *resilience.Breaker
	// Transport overrides the default instrumented transport, mainly for tests.
	Transport http.RoundTripper
	Logger    *zerolog.Logger
}

// Client is the remote backend client. Reads are retried; submissions and
// maintenance calls are sent once.
type Client struct {
	base   *url.URL
	token  string
	http   resilience.HTTPClient
	long   *http.Client
	logger zerolog.Logger
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("upstream: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream: invalid base url %q", raw)
	}
	transport := cfg.Transport
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport.(*http.Transport).Clone())
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	uploadTimeout := cfg.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 15 * time.Minute
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("upstream")
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "upstream").Logger()
	}
	return &Client{
		base:  base,
		token: strings.TrimSpace(cfg.Token),
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: transport},
			Breaker:     breaker,
			MaxAttempts: cfg.MaxAttempts,
			BaseBackoff: cfg.BaseBackoff,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		long:   &http.Client{Transport: transport, Timeout: uploadTimeout},
		logger: logger,
	}, nil
}

// ActiveCharges lists the charges that may be applied to a cart.
func (c *Client) ActiveCharges(ctx context.Context) ([]pricing.Charge, error) {
	body, err := c.get(ctx, "/api/charges/active", nil)
	if err != nil {
		return nil, err
	}
	var charges []pricing.Charge
	if err := json.Unmarshal(unwrapData(body), &charges); err != nil {
		return nil, unavailable("decode charges", err)
	}
	return charges, nil
}

// SearchProducts queries the remote catalog.
func (c *Client) SearchProducts(ctx context.Context, query string, purchase bool) ([]Product, error) {
	params := url.Values{}
	params.Set("search_query", query)
	params.Set("is_purchase", strconv.FormatBool(purchase))
	body, err := c.get(ctx, "/products/search", params)
	if err != nil {
		return nil, err
	}
	var products []Product
	if err := json.Unmarshal(unwrapData(body), &products); err != nil {
		return nil, unavailable("decode products", err)
	}
	return products, nil
}

// SubmitSale posts a completed sale.
func (c *Client) SubmitSale(ctx context.Context, sub Submission) (Receipt, error) {
	return c.submit(ctx, "/pos/checkout", sub)
}

// SubmitPurchase posts a completed purchase.
func (c *Client) SubmitPurchase(ctx context.Context, sub Submission) (Receipt, error) {
	return c.submit(ctx, "/purchase/store", sub)
}

// NotifySale triggers the backend's sale notification.
func (c *Client) NotifySale(ctx context.Context, saleID string) error {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return errors.New("upstream: sale id is required")
	}
	_, err := c.get(ctx, "/sale-notification/"+url.PathEscape(saleID), nil)
	return err
}

// Ping checks that the backend answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodHead, "/", nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Client.Do(req)
	if err != nil {
		return unavailable("ping", err)
	}
	_ = resp.Body.Close()
	return nil
}

// GetJSON fetches a read-only resource and returns the body untouched.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, unavailable("decode "+path, errors.New("response is not json"))
	}
	return json.RawMessage(body), nil
}

func (c *Client) submit(ctx context.Context, path string, sub Submission) (Receipt, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode submission: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sub.Reference != "" {
		req.Header.Set("Idempotency-Key", sub.Reference)
	}
	body, err := c.do(ctx, req)
	if err != nil {
		return Receipt{}, err
	}
	return decodeReceipt(body), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	op := req.Method + " " + req.URL.Path
	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Dur("duration", time.Since(start)).Msg("upstream request failed")
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()
	return c.readResponse(op, start, resp)
}

func (c *Client) readResponse(op string, start time.Time, resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, unavailable(op, err)
	}
	evt := c.logger.Debug()
	if resp.StatusCode >= 400 {
		evt = c.logger.Info()
	}
	evt.Str("op", op).Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("upstream response")
	if resp.StatusCode >= 500 {
		return nil, transportError(op, &resilience.StatusError{StatusCode: resp.StatusCode, Body: body})
	}
	if resp.StatusCode >= 400 {
		return nil, remoteError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	u := *c.base
	// path may carry escaped segments; keep them as sent.
	raw := strings.TrimRight(c.base.EscapedPath(), "/") + path
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	u.Path, u.RawPath = decoded, raw
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set(middleware.RequestIDHeader, reqID)
	}
	return req, nil
}
