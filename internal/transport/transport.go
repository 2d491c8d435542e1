// Package transport issues JSON requests against the auth server and
// classifies what comes back. It knows nothing about credentials beyond
// attaching a bearer value it is handed.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MaxBodyBytes caps how much of a response body is read.
const MaxBodyBytes = 4 << 20

// RequestIDHeader carries the per-call correlation id.
const RequestIDHeader = "X-Request-ID"

var (
	// ErrUnavailable wraps failures that happen before a response arrives.
	ErrUnavailable = errors.New("network unavailable")
	// ErrMalformed reports a response body that did not decode as expected.
	ErrMalformed = errors.New("malformed response")
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	UserAgent  string
	// Tracing wraps the HTTP transport with OpenTelemetry instrumentation.
	Tracing bool
}

// Client sends requests relative to a base URL.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
}

// Request is one call. Body, when non-nil, is sent as JSON.
type Request struct {
	Method string
	Path   string
	Body   any
	Bearer string
	Header http.Header
}

// Response is a received HTTP response with its body fully read.
type Response struct {
	Status    int
	Body      []byte
	RequestID string
}

func New(o Options) (*Client, error) {
	if strings.TrimSpace(o.BaseURL) == "" {
		return nil, errors.New("transport: base URL is required")
	}
	base, err := url.Parse(o.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("transport: base URL %q must be absolute", o.BaseURL)
	}

	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	} else if o.Timeout > 0 && hc.Timeout == 0 {
		clone := *hc
		clone.Timeout = o.Timeout
		hc = &clone
	}
	if o.Tracing {
		clone := *hc
		rt := clone.Transport
		if rt == nil {
			rt = http.DefaultTransport
		}
		clone.Transport = otelhttp.NewTransport(rt)
		hc = &clone
	}

	return &Client{base: base, http: hc, userAgent: o.UserAgent}, nil
}

// URL resolves path against the base URL, keeping any base path prefix.
func (c *Client) URL(path string) string {
	ref, err := url.Parse(path)
	if err != nil || ref.IsAbs() {
		return path
	}
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	return u.String()
}

// Do sends r. A non-nil error means no response was received; HTTP error
// statuses are returned as a Response for the caller to classify.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	var body io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("transport: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(r.Path), body)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if r.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.Bearer)
	}
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(RequestIDHeader, requestID)

	res, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(res.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}

	return &Response{Status: res.StatusCode, Body: data, RequestID: requestID}, nil
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status/100 == 2
}

// Decode unmarshals the body into out. A nil out accepts any body; an empty
// body only decodes into nil.
func (r *Response) Decode(out any) error {
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformed)
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

const maxMessageBytes = 256

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Message extracts the server's error text: the "error" or "message" field
// of a JSON body, else the trimmed raw body, else the status text.
func (r *Response) Message() string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(r.Body)); text != "" && !strings.HasPrefix(text, "{") {
		return truncate(text, maxMessageBytes)
	}
	return http.StatusText(r.Status)
}
