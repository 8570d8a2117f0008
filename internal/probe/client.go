package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

const maxResponseBodySize = 1 << 20 // 1MB; larger bodies fail with KindDecode

// connection pooling limits; a single instance is polled per process
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 2
	defaultMaxConnsPerHost     = 2
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// Endpoint paths relative to the instance base URL.
const (
	HealthPath    = "/-/health"
	ReadinessPath = "/-/readiness"
	MetadataPath  = "/api/v4/metadata"
)

// AuthHeader selects how the access token is presented.
type AuthHeader string

const (
	// AuthBearer sends "Authorization: Bearer <token>".
	AuthBearer AuthHeader = "bearer"

	// AuthPrivateToken sends GitLab's "PRIVATE-TOKEN: <token>" header.
	AuthPrivateToken AuthHeader = "private-token"
)

// ParseAuthHeader parses an auth header name. Empty selects [AuthBearer].
func ParseAuthHeader(s string) (AuthHeader, error) {
	switch AuthHeader(strings.ToLower(strings.TrimSpace(s))) {
	case "", AuthBearer:
		return AuthBearer, nil
	case AuthPrivateToken:
		return AuthPrivateToken, nil
	default:
		return "", fmt.Errorf("unknown auth header %q (expected %q or %q)", s, AuthBearer, AuthPrivateToken)
	}
}

// Config configures a [Client].
type Config struct {
	// BaseURL is the instance URL, e.g. https://gitlab.example.com.
	// Trailing slashes are stripped.
	BaseURL string

	// Token is the static access token attached to every request.
	// Empty sends no credential header.
	Token string

	// AuthHeader selects the credential header. Defaults to AuthBearer.
	AuthHeader AuthHeader

	// Headers are extra headers sent with every request.
	Headers map[string]string

	// Timeout bounds each request. Zero leaves requests bounded only by the
	// transport defaults.
	Timeout time.Duration

	// HTTPClient overrides the pooled client built by NewClient.
	HTTPClient *http.Client
}

// Client probes a single GitLab instance.
//
// Client holds one authenticated connection context for the lifetime of an
// invocation: the credential header and base URL are fixed at construction.
// Each probe issues exactly one request; nothing is retried.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    http.Header
	timeout    time.Duration
}

// NewClient creates a [Client] for the instance described by cfg.
//
// The default transport uses the same pooling limits for every client and is
// upgraded to negotiate HTTP/2 over TLS.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("base URL must include a host")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative, got %s", cfg.Timeout)
	}

	authHeader := cfg.AuthHeader
	if authHeader == "" {
		authHeader = AuthBearer
	}

	headers := make(http.Header, len(cfg.Headers)+2)
	headers.Set("Accept", "application/json")
	for key, value := range cfg.Headers {
		headers.Set(key, value)
	}
	if cfg.Token != "" {
		switch authHeader {
		case AuthBearer:
			headers.Set("Authorization", "Bearer "+cfg.Token)
		case AuthPrivateToken:
			headers.Set("PRIVATE-TOKEN", cfg.Token)
		default:
			return nil, fmt.Errorf("unknown auth header %q", authHeader)
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
		}
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("failed to configure HTTP/2: %w", err)
		}
		// no client-level timeout - per-request timeouts go through the context
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		headers:    headers,
		timeout:    cfg.Timeout,
	}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Domain returns the host of the base URL with any embedded credentials
// removed. It is meant for display and logging only.
func (c *Client) Domain() string {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// Health checks GET /-/health and returns the raw body text.
func (c *Client) Health(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, HealthPath)
	if err != nil {
		return "", err
	}
	if err := ensureStatus(resp, http.StatusOK); err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Readiness checks GET /-/readiness.
//
// The body must be valid JSON. Unless it is an object whose "status" field,
// lower-cased, equals "ok", the check fails with [KindReadiness].
func (c *Client) Readiness(ctx context.Context) (Readiness, error) {
	resp, err := c.get(ctx, ReadinessPath)
	if err != nil {
		return Readiness{}, err
	}
	if err := ensureStatus(resp, http.StatusOK); err != nil {
		return Readiness{}, err
	}

	var readiness Readiness
	if err := decodeJSON(resp, &readiness); err != nil {
		return Readiness{}, err
	}
	if !readiness.OK() {
		return Readiness{}, &ResponseError{
			Kind:     KindReadiness,
			Response: resp,
			Err:      fmt.Errorf("status %q", readiness.Status),
		}
	}
	readiness.Raw, _ = compactJSON(resp.Body) // already decoded, cannot fail
	return readiness, nil
}

// Metadata fetches GET /api/v4/metadata.
//
// Only decodability is checked; the payload semantics are left to the caller.
// [Metadata.HasVersion] tells whether the version key was present.
func (c *Client) Metadata(ctx context.Context) (Metadata, error) {
	resp, err := c.get(ctx, MetadataPath)
	if err != nil {
		return Metadata{}, err
	}
	if err := ensureStatus(resp, http.StatusOK); err != nil {
		return Metadata{}, err
	}

	var metadata Metadata
	if err := decodeJSON(resp, &metadata); err != nil {
		return Metadata{}, err
	}
	metadata.Raw, _ = compactJSON(resp.Body)
	return metadata, nil
}

// get performs a single GET against the instance.
//
// Errors returned here mean no usable response was obtained. The one
// *ResponseError it returns is [KindDecode] for a body over the size limit.
func (c *Client) get(ctx context.Context, path string) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range c.headers {
		req.Header[key] = append([]string(nil), values...)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// read one byte past the limit so oversized bodies are detected
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize+1))
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response body: %w", err)
	}

	response := Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		Latency:    time.Since(start),
	}
	if len(body) > maxResponseBodySize {
		response.Body = body[:maxResponseBodySize]
		return Response{}, &ResponseError{
			Kind:     KindDecode,
			Response: response,
			Err:      errBodyTooLarge,
		}
	}
	return response, nil
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable but
// new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// ensureStatus fails with KindStatus if the status code is not allowed.
func ensureStatus(resp Response, allowed ...int) error {
	for _, code := range allowed {
		if resp.StatusCode == code {
			return nil
		}
	}
	return &ResponseError{
		Kind:     KindStatus,
		Response: resp,
		Allowed:  allowed,
	}
}

// decodeJSON decodes the body into v, failing with KindDecode.
func decodeJSON(resp Response, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return &ResponseError{
			Kind:     KindDecode,
			Response: resp,
			Err:      err,
		}
	}
	return nil
}
