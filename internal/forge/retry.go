package forge

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultRetryMax = 3
	// rateLimitFloor matches the host guidance of waiting at least a minute
	// once throttled, plus a small buffer past the advertised reset.
	rateLimitFloor  = 60 * time.Second
	rateLimitBuffer = 5 * time.Second
)

// Transport wraps an HTTP round tripper with the rate-limit policy shared
// by all adapters: 429 responses sleep until the host's advertised reset
// and retry without bound, transient errors retry a bounded number of
// times, and everything else (including auth failures) passes straight
// through to the caller.
type Transport struct {
	next   http.RoundTripper
	logger *slog.Logger
	sleep  func(time.Duration)
	now    func() time.Time
}

// TransportOption configures a Transport.
type TransportOption func(*Transport, *retryablehttp.Client)

// WithSleep replaces the sleep function used on throttled responses.
func WithSleep(fn func(time.Duration)) TransportOption {
	return func(t *Transport, _ *retryablehttp.Client) { t.sleep = fn }
}

// WithNow replaces the clock used to compute time-until-reset.
func WithNow(fn func() time.Time) TransportOption {
	return func(t *Transport, _ *retryablehttp.Client) { t.now = fn }
}

// WithRetryMax sets the bounded retry count for transient failures.
func WithRetryMax(n int) TransportOption {
	return func(_ *Transport, rc *retryablehttp.Client) { rc.RetryMax = n }
}

// WithRetryWait sets the backoff window for transient retries.
func WithRetryWait(min, max time.Duration) TransportOption {
	return func(_ *Transport, rc *retryablehttp.Client) {
		rc.RetryWaitMin = min
		rc.RetryWaitMax = max
	}
}

// NewTransport builds the shared adapter transport.
func NewTransport(logger *slog.Logger, opts ...TransportOption) *Transport {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = defaultRetryMax
	rc.CheckRetry = checkTransient

	t := &Transport{
		next:   &retryablehttp.RoundTripper{Client: rc},
		logger: logger,
		sleep:  time.Sleep,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t, rc)
	}
	return t
}

// checkTransient retries network errors and server-side failures only.
// Rate limiting is handled one layer up, and 4xx responses (auth included)
// are returned to the caller untouched.
func checkTransient(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	for {
		resp, err := t.next.RoundTrip(req)
		if err != nil || resp.StatusCode != http.StatusTooManyRequests {
			return resp, err
		}

		delay := throttleDelay(resp.Header, t.now())
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		t.logger.Warn("rate limited, waiting for reset",
			"url", req.URL.Path,
			"wait", delay,
		)
		t.sleep(delay)

		if err := req.Context().Err(); err != nil {
			return nil, err
		}
	}
}

// throttleDelay reads the host's reset signal: GitLab sends Retry-After in
// seconds, GitHub sends X-RateLimit-Reset as a unix timestamp.
func throttleDelay(h http.Header, now time.Time) time.Duration {
	if s := h.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if s := h.Get("X-RateLimit-Reset"); s != "" {
		if epoch, err := strconv.ParseInt(s, 10, 64); err == nil && epoch > 0 {
			delay := time.Unix(epoch, 0).Sub(now) + rateLimitBuffer
			if delay < rateLimitFloor {
				return rateLimitFloor
			}
			return delay
		}
	}
	return rateLimitFloor
}
