// Package fetch provides the HTTP download capability used by the
// scheduler and by feed discovery. Failures are classified into
// distinguishable kinds so callers can tell a dead host from a missing
// document.
package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors describing why a fetch failed. Callers match them with
// errors.Is.
var (
	// ErrNotFound indicates the server answered 404.
	ErrNotFound = errors.New("resource not found")
	// ErrTimeout indicates the request exceeded its deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrHostNotFound indicates a DNS resolution failure.
	ErrHostNotFound = errors.New("host not found")
	// ErrConnection covers every other network-level failure.
	ErrConnection = errors.New("connection failed")
)

// DefaultTimeout applies to discovery and other one-off fetches.
const DefaultTimeout = 20 * time.Second

// BatchTimeout applies to scheduled batch fetches, which are expected to
// give up sooner so a slow feed cannot stall a whole wave.
const BatchTimeout = 10 * time.Second

const defaultUserAgent = "feedhaven/1.0 (RSS/Atom reader)"

// Config controls a Client.
type Config struct {
	// Timeout per request. Zero means DefaultTimeout.
	Timeout time.Duration
	// UserAgent sent with every request. Empty means the default.
	UserAgent string
	// Limiter, if set, is consulted before each request to keep the
	// client polite toward individual hosts.
	Limiter *HostLimiter
}

// Client downloads documents over HTTP with a fixed timeout and a custom
// User-Agent. The zero value is not usable; construct with New.
type Client struct {
	http      *http.Client
	userAgent string
	limiter   *HostLimiter
}

// New creates a fetch client from the given configuration.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		http: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		limiter:   cfg.Limiter,
	}
}

// Fetch downloads the document at rawURL and returns its body. Responses
// compressed with gzip or deflate are transparently decompressed based on
// the Content-Encoding response header.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	// Requesting compression explicitly disables the transport's automatic
	// gzip handling, so decompression below covers both encodings.
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d for %s", ErrConnection, resp.StatusCode, rawURL)
	}

	body, err := decompress(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return body, nil
}

// decompress reads the response body, undoing gzip or deflate encoding
// when the server declared one.
func decompress(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// classify maps a transport-level error onto one of the sentinel kinds.
func classify(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrHostNotFound, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrConnection, err)
}
