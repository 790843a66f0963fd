// Package httpapi is a small JSON/multipart REST client shared by the
// platform clients.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/blacktop/crosspost/internal/logutil"
)

const maxErrorBody = 512

// Authorizer attaches credentials to an outgoing request.
type Authorizer interface {
	Authorize(req *http.Request)
}

// BearerToken authorizes requests with an OAuth2 bearer token.
type BearerToken string

// Authorize sets the Authorization header.
func (t BearerToken) Authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+string(t))
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Platform   string
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s %s: unexpected status %d", e.Platform, e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s %s: unexpected status %d: %s", e.Platform, e.Method, e.Path, e.StatusCode, e.Body)
}

// HTTPStatus exposes the response status and body for error wrappers.
func (e *StatusError) HTTPStatus() (int, string) { return e.StatusCode, e.Body }

// Client issues authenticated requests relative to a base URL.
type Client struct {
	name string
	base *url.URL
	http *http.Client
	auth Authorizer
}

// New builds a client. auth may be nil when httpClient signs requests itself.
func New(name, baseURL string, httpClient *http.Client, auth Authorizer) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{name: name, base: base, http: httpClient, auth: auth}, nil
}

// RequestOption customizes a single request.
type RequestOption func(*http.Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(req *http.Request) {
		req.Header.Set(key, value)
	}
}

// Do sends body to path and decodes the JSON response into out.
//
// A nil body sends no payload, a *Form is sent as multipart/form-data and
// anything else is encoded as JSON. out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	endpoint := c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")})

	payload, contentType, err := encodeBody(body)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), payload)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, opt := range opts {
		opt(req)
	}
	if c.auth != nil {
		c.auth.Authorize(req)
	}

	logutil.Debugf("%s request: %s %s", c.name, method, endpoint.Path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Platform:   c.name,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(data)), maxErrorBody),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Form:
		return b.encode()
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(buf), "application/json", nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
