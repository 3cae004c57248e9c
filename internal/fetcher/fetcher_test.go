package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	opts.Politeness = FixedPoliteness{Agent: "test-agent/1.0"}
	opts.RetryBackoff = time.Millisecond
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	client, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestFetchParsesDocument(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		io.WriteString(w, `<html><body><div class="card-name">御璽卡</div></body></html>`)
	}))
	defer srv.Close()

	client := newTestClient(t, Options{})
	doc, err := client.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := doc.Find(".card-name").Text(); got != "御璽卡" {
		t.Errorf("parsed text = %q, want 御璽卡", got)
	}
	if gotAgent != "test-agent/1.0" {
		t.Errorf("user agent = %q, want test-agent/1.0", gotAgent)
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "<html><body>ok</body></html>")
	}))
	defer srv.Close()

	client := newTestClient(t, Options{MaxRetries: 3})
	if _, err := client.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, Options{})
	doc, err := client.FetchWithRetries(context.Background(), srv.URL, 2)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if doc != nil {
		t.Error("expected nil document on failure")
	}
	// initial attempt plus two retries
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}
}

func TestFetchDecodesGzipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = io.WriteString(gz, `<html><body><div class="card-name">鈦金卡</div></body></html>`)
		_ = gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	client := newTestClient(t, Options{})
	doc, err := client.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := doc.Find(".card-name").Text(); got != "鈦金卡" {
		t.Errorf("parsed text = %q, want 鈦金卡", got)
	}
}

func TestFetchRejectsCorruptGzipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte("not gzip at all"))
	}))
	defer srv.Close()

	client := newTestClient(t, Options{})
	if _, err := client.FetchWithRetries(context.Background(), srv.URL, 0); err == nil {
		t.Fatal("expected error for a corrupt gzip body")
	}
}

type denyAll struct{}

func (denyAll) Allowed(ctx context.Context, target *url.URL) bool { return false }

func TestFetchRespectsRobots(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client := newTestClient(t, Options{Robots: denyAll{}})
	_, err := client.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrRobotsDenied) {
		t.Fatalf("err = %v, want ErrRobotsDenied", err)
	}
	if calls.Load() != 0 {
		t.Error("request was sent despite robots denial")
	}
}

func TestFetchRenderedFallsBackWithoutRenderer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body><p>plain</p></body></html>")
	}))
	defer srv.Close()

	client := newTestClient(t, Options{})
	doc, err := client.FetchRendered(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchRendered: %v", err)
	}
	if got := doc.Find("p").Text(); got != "plain" {
		t.Errorf("parsed text = %q, want plain", got)
	}
}
