package labwatch

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// AuthHeader selects how the access token is sent.
type AuthHeader string

const (
	// AuthBearer sends "Authorization: Bearer <token>".
	AuthBearer AuthHeader = "bearer"

	// AuthPrivateToken sends GitLab's "PRIVATE-TOKEN: <token>".
	AuthPrivateToken AuthHeader = "private-token"
)

// Target is a GitLab instance to poll.
//
// Target is immutable after creation via [NewTarget]. Maps returned by its
// getters are copies.
type Target struct {
	url        string
	token      string
	authHeader AuthHeader
	headers    map[string]string
	timeout    time.Duration
}

// URL returns the normalised base URL, without trailing slashes.
func (t Target) URL() string {
	return t.url
}

// Domain returns the host part of the base URL.
func (t Target) Domain() string {
	u, err := url.Parse(t.url)
	if err != nil {
		return t.url
	}
	return u.Host
}

// AuthHeader returns how the token is sent.
func (t Target) AuthHeader() AuthHeader {
	return t.authHeader
}

// HasToken reports whether an access token is configured.
func (t Target) HasToken() bool {
	return t.token != ""
}

// Headers returns a copy of the extra request headers.
// Returns nil if no custom headers are set.
func (t Target) Headers() map[string]string {
	return copyMap(t.headers)
}

// Timeout returns the per-request timeout. Zero means none.
func (t Target) Timeout() time.Duration {
	return t.timeout
}

// TargetOption configures a [Target] during construction.
type TargetOption func(*Target) error

// NewTarget creates a [Target] for the instance at rawURL.
//
// The URL must be absolute with an http or https scheme. Trailing slashes
// are removed. An empty token sends no credential header.
//
// Example:
//
//	target, err := labwatch.NewTarget("https://gitlab.example.com", token,
//	    labwatch.WithAuthHeader(labwatch.AuthPrivateToken),
//	    labwatch.WithTimeout(30*time.Second),
//	)
func NewTarget(rawURL, token string, opts ...TargetOption) (Target, error) {
	rawURL = strings.TrimRight(strings.TrimSpace(rawURL), "/")
	if rawURL == "" {
		return Target{}, errors.New("target url is required")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("target url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return Target{}, errors.New("target url must include a host")
	}

	t := Target{
		url:        rawURL,
		token:      token,
		authHeader: AuthBearer,
	}
	for _, opt := range opts {
		if err := opt(&t); err != nil {
			return Target{}, err
		}
	}
	return t, nil
}

// WithAuthHeader selects how the token is sent. Defaults to [AuthBearer].
func WithAuthHeader(h AuthHeader) TargetOption {
	return func(t *Target) error {
		switch h {
		case AuthBearer, AuthPrivateToken:
			t.authHeader = h
			return nil
		default:
			return fmt.Errorf("unknown auth header %q (expected %q or %q)", h, AuthBearer, AuthPrivateToken)
		}
	}
}

// WithHeaders adds request headers as key-value pairs.
//
// Returns an error if an odd number of arguments is given or a key is empty.
//
// Example:
//
//	labwatch.WithHeaders("X-Request-Source", "labwatch")
func WithHeaders(kv ...string) TargetOption {
	return func(t *Target) error {
		if len(kv)%2 != 0 {
			return errors.New("headers must be key-value pairs")
		}
		if t.headers == nil {
			t.headers = make(map[string]string, len(kv)/2)
		}
		for i := 0; i < len(kv); i += 2 {
			if kv[i] == "" {
				return errors.New("header name must not be empty")
			}
			t.headers[kv[i]] = kv[i+1]
		}
		return nil
	}
}

// WithTimeout bounds each probe request. Zero, the default, leaves requests
// bounded only by the transport.
//
// Returns an error if the duration is negative.
func WithTimeout(d time.Duration) TargetOption {
	return func(t *Target) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		t.timeout = d
		return nil
	}
}

// copyMap returns a shallow copy of m, or nil if m is nil.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
