// Package gateway is the typed client for the dashboard backend.
// Every call either returns a decoded value or an *apierr.Error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bullwatch/internal/apierr"
	"bullwatch/internal/logger"

	"github.com/google/uuid"
)

// DefaultTimeout bounds each call when none is configured.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 8 << 20

// TokenSource yields the current bearer token. It is consulted once per
// authenticated request, at the moment the request is built.
type TokenSource interface {
	Token() (string, bool)
}

// Client talks to the backend over HTTP. It never retries.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client

	mu     sync.RWMutex
	tokens TokenSource
}

// New creates a client for baseURL. A zero timeout means DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{},
	}
}

// SetTokenSource wires the session that authenticated calls read from.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

// SetHTTPClient replaces the transport (tests, proxies).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.http = hc
}

// BaseURL returns the backend root this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) token() (string, bool) {
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()
	if ts == nil {
		return "", false
	}
	return ts.Token()
}

// call performs one request and decodes a 2xx JSON body into out (if non-nil).
func (c *Client) call(ctx context.Context, op, method, path string, auth bool, in, out any) error {
	var bearer string
	if auth {
		tok, ok := c.token()
		if !ok || tok == "" {
			return apierr.NotAuthenticated(op, "not logged in")
		}
		bearer = tok
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return apierr.New(apierr.InvalidRequest, op, "encode request", err)
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apierr.New(apierr.InvalidRequest, op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debugf("gateway %s %s failed after %s: %v", method, path, time.Since(start), err)
		return apierr.Network(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	logger.Debugf("gateway %s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start))
	if err != nil {
		return apierr.Network(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apierr.FromStatus(op, resp.StatusCode, raw).WithToken(bearer)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierr.Decode(op, err)
	}
	return nil
}

// tickerPath upper-cases and escapes a ticker for use as a path segment.
func tickerPath(ticker string) string {
	return url.PathEscape(strings.ToUpper(strings.TrimSpace(ticker)))
}

func requireTicker(op, ticker string) error {
	if strings.TrimSpace(ticker) == "" {
		return apierr.Invalid(op, "ticker is required")
	}
	return nil
}
