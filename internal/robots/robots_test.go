package robots

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stonebomdic/credit-card-crawler/internal/config"
)

const robotsBody = `User-agent: *
Disallow: /private/
`

func testConfig() config.RobotsConfig {
	return config.RobotsConfig{
		Respect:   true,
		UserAgent: "card-crawler/1.0",
		CacheTTL:  config.DurationFrom(time.Hour),
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestAgentRespectsDisallow(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(&hits, 1)
			_, _ = io.WriteString(w, robotsBody)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	agent := NewAgent(testConfig(), srv.Client())
	ctx := context.Background()

	if !agent.Allowed(ctx, mustURL(t, srv.URL+"/cards")) {
		t.Error("public path should be allowed")
	}
	if agent.Allowed(ctx, mustURL(t, srv.URL+"/private/cards")) {
		t.Error("disallowed path should be blocked")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("robots.txt fetched %d times, want 1 (cached)", got)
	}
}

func TestAgentFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	agent := NewAgent(testConfig(), srv.Client())
	if !agent.Allowed(context.Background(), mustURL(t, srv.URL+"/anything")) {
		t.Error("unreachable robots.txt should not block the crawl")
	}
}

func TestAgentOverridesAndDisabledMode(t *testing.T) {
	cfg := testConfig()
	cfg.Overrides = []string{"always.example.com"}
	agent := NewAgent(cfg, &http.Client{Timeout: time.Second})

	if !agent.Allowed(context.Background(), mustURL(t, "https://always.example.com/private/x")) {
		t.Error("override host should always be allowed without a fetch")
	}

	off := testConfig()
	off.Respect = false
	agent = NewAgent(off, &http.Client{Timeout: time.Second})
	if !agent.Allowed(context.Background(), mustURL(t, "https://anywhere.example.com/private/x")) {
		t.Error("disabled mode should allow everything")
	}

	if agent.Allowed(context.Background(), &url.URL{Path: "/relative"}) {
		t.Error("relative URLs are never fetchable")
	}
}
