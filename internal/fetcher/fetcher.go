// Package fetcher retrieves bank pages politely: randomized delay, rotating
// client identity, per-host spacing, and exponential-backoff retries. A
// fetch that fails after all retries is reported as an error the caller
// should treat as "skip this source for this run", never as a panic.
package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/sethvargo/go-retry"
)

// ErrRobotsDenied marks a URL the site's robots.txt forbids. It is terminal:
// retrying would not change the answer.
var ErrRobotsDenied = errors.New("denied by robots.txt")

// RobotsChecker evaluates whether a URL may be fetched.
type RobotsChecker interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// Renderer produces the final DOM of a JavaScript-driven page.
type Renderer interface {
	Render(ctx context.Context, target *url.URL) ([]byte, error)
}

// Options controls fetching behaviour.
type Options struct {
	Politeness   Politeness
	Limiter      *HostLimiter
	Robots       RobotsChecker
	Renderer     Renderer
	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
	MaxBodyBytes int64
	Headers      map[string]string
	ProxyURL     string
	Logger       *slog.Logger
}

// Client fetches and parses pages. All methods are safe for concurrent use.
type Client struct {
	http         *http.Client
	politeness   Politeness
	limiter      *HostLimiter
	robots       RobotsChecker
	renderer     Renderer
	maxRetries   int
	retryBackoff time.Duration
	maxBodyBytes int64
	extraHeaders map[string]string
	logger       *slog.Logger
}

// New constructs a fetch client from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Politeness == nil {
		opts.Politeness = NewRandomPoliteness(2*time.Second, 5*time.Second, nil)
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 6 * 1024 * 1024
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		http:         &http.Client{Timeout: opts.Timeout, Transport: transport},
		politeness:   opts.Politeness,
		limiter:      opts.Limiter,
		robots:       opts.Robots,
		renderer:     opts.Renderer,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		maxBodyBytes: opts.MaxBodyBytes,
		extraHeaders: headers,
		logger:       opts.Logger,
	}, nil
}

// Fetch retrieves a page with the configured retry budget and returns the
// parsed document.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	return c.FetchWithRetries(ctx, rawURL, c.maxRetries)
}

// FetchWithRetries retrieves a page, retrying transport and HTTP-status
// failures up to maxRetries times with 2^attempt backoff. Parse failures are
// retried the same way. Robots denials are terminal.
func (c *Client) FetchWithRetries(ctx context.Context, rawURL string, maxRetries int) (*goquery.Document, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	if c.robots != nil && !c.robots.Allowed(ctx, target) {
		c.logger.Warn("fetch blocked by robots.txt", "url", rawURL)
		return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrRobotsDenied)
	}

	if maxRetries < 0 {
		maxRetries = 0
	}

	var doc *goquery.Document
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(maxRetries), retry.NewExponential(c.retryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := c.politeWait(ctx, target.Hostname()); err != nil {
			return err
		}
		parsed, err := c.fetchOnce(ctx, target)
		if err != nil {
			c.logger.Warn("fetch attempt failed",
				"url", rawURL, "attempt", attempt, "max_retries", maxRetries, "error", err)
			return retry.RetryableError(err)
		}
		doc = parsed
		return nil
	})
	if err != nil {
		c.logger.Error("fetch failed after retries", "url", rawURL, "attempts", attempt, "error", err)
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return doc, nil
}

// FetchRendered retrieves a JavaScript-driven page through the renderer,
// falling back to a plain HTTP fetch when no renderer is configured or
// rendering fails.
func (c *Client) FetchRendered(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if c.renderer == nil {
		return c.Fetch(ctx, rawURL)
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if c.robots != nil && !c.robots.Allowed(ctx, target) {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrRobotsDenied)
	}
	if err := c.politeWait(ctx, target.Hostname()); err != nil {
		return nil, err
	}

	body, err := c.renderer.Render(ctx, target)
	if err != nil {
		c.logger.Warn("renderer failed, falling back to HTTP fetch", "url", rawURL, "error", err)
		return c.Fetch(ctx, rawURL)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse rendered page %s: %w", rawURL, err)
	}
	return doc, nil
}

// HTTPClient exposes the underlying client for reuse (eg. robots.txt fetches).
func (c *Client) HTTPClient() *http.Client {
	if c == nil {
		return nil
	}
	return c.http
}

func (c *Client) politeWait(ctx context.Context, host string) error {
	if delay := c.politeness.Delay(); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.limiter != nil {
		return c.limiter.Wait(ctx, host)
	}
	return nil
}

func (c *Client) fetchOnce(ctx context.Context, target *url.URL) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", c.politeness.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range c.extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}

	body, err := c.readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	limited := io.LimitReader(reader, c.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", c.maxBodyBytes)
	}
	return body, nil
}
