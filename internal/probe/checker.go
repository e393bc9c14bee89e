// Package probe issues single HTTP probes against monitored targets and
// classifies the outcome. The checker is stateless; retries share no
// cross-call state.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/garnizeh/uptime-monitor/internal/database"
)

// Normalized error kinds surfaced to users and stored on check results.
const (
	ErrKindTimeout   = "timeout"
	ErrKindConnect   = "connect_error"
	ErrKindDNS       = "dns_error"
	ErrKindTLS       = "tls_error"
	ErrKindTransport = "transport_error"
	ErrKindOther     = "other"
)

// Request describes one probe cycle against a target.
type Request struct {
	URL            string
	TimeoutMs      int
	RetryCount     int
	RetryBackoffMs int
}

// Outcome is the flattened result of a probe cycle. HTTPStatus is zero when
// no HTTP response was received; ErrorKind is empty on success.
type Outcome struct {
	Status     database.Status
	HTTPStatus int
	LatencyMs  int64
	ErrorKind  string
	CheckedAt  time.Time
}

// Checker performs HTTP probes. The zero value is not usable; construct with
// NewChecker.
type Checker struct {
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewChecker builds a Checker with a shared HTTP client. Redirects are
// followed (the client default); per-attempt deadlines come from the request
// context, so the client itself carries no timeout.
func NewChecker() *Checker {
	return &Checker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		sleep: sleepCtx,
	}
}

// Check makes up to RetryCount+1 attempts against req.URL. An HTTP response
// of any status stops the cycle: 2xx/3xx is UP, >=400 is DOWN with the status
// recorded. Transport failures are retried after the configured backoff until
// attempts are exhausted. Latency spans the whole cycle, including backoff
// sleeps, measured on the monotonic clock.
func (c *Checker) Check(ctx context.Context, req Request) Outcome {
	attempts := req.RetryCount + 1
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	backoff := time.Duration(req.RetryBackoffMs) * time.Millisecond

	start := time.Now()
	out := Outcome{Status: database.StatusDown}

	for attempt := 0; attempt < attempts; attempt++ {
		httpStatus, err := c.attempt(ctx, req.URL, timeout)
		if err == nil {
			out.HTTPStatus = httpStatus
			if httpStatus >= 200 && httpStatus < 400 {
				out.Status = database.StatusUp
			}
			break
		}

		kind, retryable := normalizeError(err)
		out.ErrorKind = kind
		if !retryable || attempt == attempts-1 {
			break
		}
		if serr := c.sleep(ctx, backoff); serr != nil {
			// Parent cancelled during backoff; report what we have.
			break
		}
	}

	out.LatencyMs = time.Since(start).Milliseconds()
	out.CheckedAt = time.Now().UTC()
	return out
}

// attempt performs one GET bounded by timeout. The deadline covers DNS,
// connect, TLS, request and response.
func (c *Checker) attempt(ctx context.Context, rawURL string, timeout time.Duration) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

// normalizeError maps a transport failure onto a stable user-facing kind and
// reports whether the attempt may be retried. Unexpected errors never retry.
func normalizeError(err error) (kind string, retryable bool) {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrKindDNS, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrKindTimeout, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout, true
	}

	if isTLSError(err) {
		return ErrKindTLS, true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return ErrKindConnect, true
		}
		return ErrKindTransport, true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrKindTransport, true
	}

	return ErrKindOther, false
}

func isTLSError(err error) bool {
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return true
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}
	// crypto/tls alert errors do not export a type usable with errors.As.
	return strings.Contains(err.Error(), "tls:")
}

// sleepCtx blocks for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
