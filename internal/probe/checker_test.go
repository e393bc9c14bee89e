package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/garnizeh/uptime-monitor/internal/database"
)

func TestCheck_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChecker()
	out := c.Check(context.Background(), Request{URL: srv.URL, TimeoutMs: 5000, RetryCount: 1, RetryBackoffMs: 100})

	if out.Status != database.StatusUp {
		t.Fatalf("expected UP, got %s (kind=%q)", out.Status, out.ErrorKind)
	}
	if out.HTTPStatus != http.StatusOK {
		t.Fatalf("expected http status 200, got %d", out.HTTPStatus)
	}
	if out.ErrorKind != "" {
		t.Fatalf("expected no error kind, got %q", out.ErrorKind)
	}
	if out.LatencyMs < 0 {
		t.Fatalf("expected non-negative latency, got %d", out.LatencyMs)
	}
	if out.CheckedAt.IsZero() || out.CheckedAt.Location() != time.UTC {
		t.Fatalf("expected UTC checked_at, got %v", out.CheckedAt)
	}
}

func TestCheck_HTTPErrorDoesNotRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewChecker()
	out := c.Check(context.Background(), Request{URL: srv.URL, TimeoutMs: 5000, RetryCount: 3, RetryBackoffMs: 10})

	if out.Status != database.StatusDown {
		t.Fatalf("expected DOWN, got %s", out.Status)
	}
	if out.HTTPStatus != http.StatusServiceUnavailable {
		t.Fatalf("expected http status 503, got %d", out.HTTPStatus)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("server answered; expected exactly 1 attempt, got %d", got)
	}
}

func TestCheck_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewChecker()
	out := c.Check(context.Background(), Request{URL: srv.URL, TimeoutMs: 5000})

	if out.Status != database.StatusUp {
		t.Fatalf("expected UP after redirect, got %s", out.Status)
	}
	if out.HTTPStatus != http.StatusOK {
		t.Fatalf("expected final status 200, got %d", out.HTTPStatus)
	}
}

func TestCheck_TimeoutRetriesUntilExhausted(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewChecker()
	start := time.Now()
	out := c.Check(context.Background(), Request{URL: srv.URL, TimeoutMs: 100, RetryCount: 2, RetryBackoffMs: 50})
	elapsed := time.Since(start)

	if out.Status != database.StatusDown {
		t.Fatalf("expected DOWN, got %s", out.Status)
	}
	if out.ErrorKind != ErrKindTimeout {
		t.Fatalf("expected error kind timeout, got %q", out.ErrorKind)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	// Three 100ms deadlines plus two 50ms backoffs.
	if elapsed < 350*time.Millisecond {
		t.Fatalf("cycle finished too fast for 3 attempts + backoff: %v", elapsed)
	}
	if out.LatencyMs < 350 {
		t.Fatalf("latency should span the whole cycle, got %dms", out.LatencyMs)
	}
}

func TestCheck_ConnectRefused(t *testing.T) {
	// Bind and immediately close a listener to get a port nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	c := NewChecker()
	out := c.Check(context.Background(), Request{URL: "http://" + addr, TimeoutMs: 2000, RetryCount: 1, RetryBackoffMs: 10})

	if out.Status != database.StatusDown {
		t.Fatalf("expected DOWN, got %s", out.Status)
	}
	if out.ErrorKind != ErrKindConnect {
		t.Fatalf("expected error kind connect_error, got %q", out.ErrorKind)
	}
	if out.HTTPStatus != 0 {
		t.Fatalf("expected no http status, got %d", out.HTTPStatus)
	}
}

func TestCheck_CancelledDuringBackoff(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewChecker()
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	out := c.Check(ctx, Request{URL: "http://" + addr, TimeoutMs: 1000, RetryCount: 5, RetryBackoffMs: 60000})
	if out.Status != database.StatusDown {
		t.Fatalf("expected DOWN on cancellation, got %s", out.Status)
	}
}

func TestNormalizeError(t *testing.T) {
	wrap := func(err error) error {
		return &url.Error{Op: "Get", URL: "http://example.com", Err: err}
	}

	cases := []struct {
		name      string
		err       error
		kind      string
		retryable bool
	}{
		{"dns", wrap(&net.DNSError{Err: "no such host", Name: "example.invalid", IsNotFound: true}), ErrKindDNS, true},
		{"dns timeout", wrap(&net.DNSError{Err: "i/o timeout", IsTimeout: true}), ErrKindDNS, true},
		{"deadline", wrap(context.DeadlineExceeded), ErrKindTimeout, true},
		{"connect refused", wrap(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}), ErrKindConnect, true},
		{"read reset", wrap(&net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}), ErrKindTransport, true},
		{"tls record", wrap(tls.RecordHeaderError{Msg: "first record does not look like a TLS handshake"}), ErrKindTLS, true},
		{"plain url error", wrap(errors.New("malformed HTTP response")), ErrKindTransport, true},
		{"unexpected", errors.New("boom"), ErrKindOther, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, retryable := normalizeError(tc.err)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.retryable, retryable)
		})
	}
}
