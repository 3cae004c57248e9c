package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// RenderOptions configures headless-Chrome rendering of minisite pages.
type RenderOptions struct {
	Timeout            time.Duration
	WaitForSelector    string
	CaptureDelay       time.Duration
	UserAgent          string
	MaxBodyBytes       int64
	DisableHeadless    bool
	ConcurrentSessions int
}

// ChromedpRenderer executes headless Chrome sessions with bounded concurrency.
// Several bank card-list pages only produce their DOM after script execution,
// so the plain HTTP fetch sees an empty shell.
type ChromedpRenderer struct {
	opts      RenderOptions
	semaphore chan struct{}
	logger    *slog.Logger
}

// NewChromedpRenderer constructs a renderer.
func NewChromedpRenderer(opts RenderOptions, logger *slog.Logger) *ChromedpRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 6 * 1024 * 1024
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromedpRenderer{
		opts:      opts,
		semaphore: make(chan struct{}, opts.ConcurrentSessions),
		logger:    logger,
	}
}

// Render navigates to the target URL and returns the final DOM outer HTML.
func (r *ChromedpRenderer) Render(parentCtx context.Context, target *url.URL) ([]byte, error) {
	if target == nil {
		return nil, fmt.Errorf("render target URL is nil")
	}

	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-parentCtx.Done():
		return nil, parentCtx.Err()
	}

	ctx, cancel := context.WithTimeout(parentCtx, r.opts.Timeout)
	defer cancel()

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", !r.opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	}
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	actions := []chromedp.Action{chromedp.Navigate(target.String())}
	if selector := strings.TrimSpace(r.opts.WaitForSelector); selector != "" {
		actions = append(actions,
			chromedp.WaitReady(selector, chromedp.ByQuery),
			chromedp.Sleep(250*time.Millisecond),
		)
	} else {
		delay := r.opts.CaptureDelay
		if delay <= 0 {
			delay = 1500 * time.Millisecond
		}
		actions = append(actions, chromedp.Sleep(delay))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	start := time.Now()
	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	if int64(len(html)) > r.opts.MaxBodyBytes {
		html = html[:r.opts.MaxBodyBytes]
	}
	r.logger.Debug("rendered page",
		"url", target.String(),
		"latency_ms", time.Since(start).Milliseconds(),
		"html_bytes", len(html),
	)
	return []byte(html), nil
}
