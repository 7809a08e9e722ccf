package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Common errors.
var (
	ErrInvalidURL          = errors.New("http: invalid url")
	ErrRangeNotSatisfiable = errors.New("http: requested range not satisfiable")
	ErrHeadNotSupported    = errors.New("http: server does not support HEAD")
	ErrStalled             = errors.New("http: no data received within timeout")
)

// StatusError is returned for responses outside 2xx.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http: unexpected status %s", e.Status)
}

// Temporary reports whether the request may succeed if repeated.
func (e *StatusError) Temporary() bool {
	switch {
	case e.Code >= 500:
		return true
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 16
	MaxIdleConnsPerHost int

	// Timeout bounds connecting, waiting for response headers and any
	// single stall while reading a body. It does not bound a whole
	// transfer. Zero disables it.
	// Default: 60s
	Timeout time.Duration

	// Proxy routes every request through an HTTP proxy when non-nil.
	Proxy *Proxy

	// UserAgent is sent with every request when set.
	UserAgent string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 16,
		Timeout:             60 * time.Second,
		UserAgent:           "batchdl",
	}
}

// FileInfo contains metadata about a remote file.
type FileInfo struct {
	// Size is the Content-Length, or -1 when unknown.
	Size          int64
	ETag          string
	AcceptsRanges bool
}

// Response is an open GET response.
type Response struct {
	Body io.ReadCloser

	// Partial is true for a 206 reply; Start is then the first byte of Body.
	Partial bool
	Start   int64

	// ContentLength is the length of Body, or -1 when unknown.
	ContentLength int64

	// Total is the full size of the resource, or -1 when unknown.
	Total int64
	ETag  string
}

// Client is an HTTP client for whole-file and resumed downloads.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	dialer := &net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		MaxIdleConns:          opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.Timeout,
		ResponseHeaderTimeout: opts.Timeout,
		DisableCompression:    true, // We want raw bytes for range requests
		ForceAttemptHTTP2:     true,
	}
	if opts.Proxy != nil {
		transport.Proxy = http.ProxyURL(opts.Proxy.URL())
	}

	return &Client{
		client: &http.Client{Transport: transport},
		opts:   opts,
	}
}

// Head performs a HEAD request to get file metadata.
// Servers answering 405 or 501 yield ErrHeadNotSupported.
func (c *Client) Head(ctx context.Context, rawURL string) (*FileInfo, error) {
	req, err := c.newRequest(ctx, http.MethodHead, rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return nil, ErrHeadNotSupported
	}
	if err := checkStatusCode(resp); err != nil {
		return nil, err
	}

	info := &FileInfo{
		Size:          resp.ContentLength,
		ETag:          cleanETag(resp.Header.Get("ETag")),
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
	}

	return info, nil
}

// Get requests rawURL starting at offset. For offset > 0 it sends
// "Range: bytes=offset-"; the caller must check Partial to learn whether the
// server honoured it. A 416 reply yields ErrRangeNotSatisfiable.
func (c *Client) Get(ctx context.Context, rawURL string, offset int64) (*Response, error) {
	ctx, cancel := context.WithCancelCause(ctx)

	req, err := c.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		cancel(nil)
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cancel(nil)
		return nil, err
	}

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		resp.Body.Close()
		cancel(nil)
		return nil, ErrRangeNotSatisfiable
	}
	if err := checkStatusCode(resp); err != nil {
		resp.Body.Close()
		cancel(nil)
		return nil, err
	}

	out := &Response{
		ContentLength: resp.ContentLength,
		Total:         -1,
		ETag:          cleanETag(resp.Header.Get("ETag")),
	}

	if resp.StatusCode == http.StatusPartialContent {
		start, _, total, err := ParseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			resp.Body.Close()
			cancel(nil)
			return nil, fmt.Errorf("http: partial response: %w", err)
		}
		out.Partial = true
		out.Start = start
		out.Total = total
	} else {
		out.Total = resp.ContentLength
	}

	out.Body = newStallReader(resp.Body, c.opts.Timeout, cancel)
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	return req, nil
}

// checkStatusCode returns a StatusError for non-success status codes.
func checkStatusCode(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode, Status: resp.Status}
}

// stallReader cancels the request when no Read completes within timeout.
type stallReader struct {
	body   io.ReadCloser
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	timer   *time.Timer
	timeout time.Duration
	stalled bool
}

func newStallReader(body io.ReadCloser, timeout time.Duration, cancel context.CancelCauseFunc) io.ReadCloser {
	r := &stallReader{body: body, cancel: cancel, timeout: timeout}
	if timeout > 0 {
		r.timer = time.AfterFunc(timeout, r.onStall)
	}
	return r
}

func (r *stallReader) onStall() {
	r.mu.Lock()
	r.stalled = true
	r.mu.Unlock()
	r.cancel(ErrStalled)
}

func (r *stallReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if r.timer != nil && n > 0 {
		r.timer.Reset(r.timeout)
	}
	if err != nil && err != io.EOF {
		r.mu.Lock()
		stalled := r.stalled
		r.mu.Unlock()
		if stalled {
			return n, fmt.Errorf("%w: %v", ErrStalled, err)
		}
	}
	return n, err
}

func (r *stallReader) Close() error {
	if r.timer != nil {
		r.timer.Stop()
	}
	err := r.body.Close()
	r.cancel(nil)
	return err
}

// cleanETag removes quotes from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return etag
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total may be -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	return start, end, total, nil
}
