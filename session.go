package bigstash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Version is reported in the default User-Agent.
var Version = "1.0.0"

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://www.bigstash.co/api/"
	// MediaType is the versioned media type for request and response bodies.
	MediaType = "application/vnd.deepfreeze+json; version=1.0"
	// RequestIDHeader correlates client log lines with a request.
	RequestIDHeader = "X-Request-Id"
)

// DefaultHeaders returns the headers sent with every request.
func DefaultHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", "BigStash Go SDK v"+Version)
	h.Set("Accept", MediaType)
	h.Set("Content-Type", MediaType)
	return h
}

// RequestOptions carries per-call request settings.
type RequestOptions struct {
	Header http.Header
	// JSON is encoded as the request body when Body is nil.
	JSON any
	Body []byte
	// BasicAuth, when set, is sent instead of a signature.
	BasicAuth *BasicAuth
}

// BasicAuth holds username and password credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Session resolves paths against a base URL, merges default headers and
// signs outgoing requests. It returns raw responses; decoding is left to
// the caller.
type Session struct {
	base       *url.URL
	httpClient *http.Client
	signer     *Signer
	headers    http.Header
	now        func() time.Time
}

// NewSession creates a Session. headers are merged over DefaultHeaders.
// A nil signer sends requests unauthenticated.
func NewSession(baseURL string, httpClient *http.Client, signer *Signer, headers http.Header) (*Session, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	merged := DefaultHeaders()
	for k, vs := range headers {
		merged[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	return &Session{
		base:       base,
		httpClient: httpClient,
		signer:     signer,
		headers:    merged,
		now:        time.Now,
	}, nil
}

// HTTPClient returns the client requests are sent with.
func (s *Session) HTTPClient() *http.Client {
	return s.httpClient
}

// URL returns the absolute URL for path. A path carrying its own host is
// used as is; anything else is joined to the base URL. The result path
// always ends with a slash.
func (s *Session) URL(path string) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse path %q: %w", path, err)
	}

	trimmed := strings.TrimRight(u.Path, "/")

	if u.Host != "" {
		if trimmed != "" {
			u.Path = trimmed + "/"
			u.RawPath = ""
		}
		return u.String(), nil
	}

	rel := strings.TrimLeft(trimmed, "/")
	joined := s.base.Path + "/"
	if rel != "" {
		joined += rel + "/"
	}

	resolved := *s.base
	resolved.Path = joined
	resolved.RawPath = ""
	resolved.RawQuery = u.RawQuery
	resolved.Fragment = ""

	return resolved.String(), nil
}

// Get sends a GET request.
func (s *Session) Get(ctx context.Context, path string, opts *RequestOptions) (*http.Response, error) {
	return s.Do(ctx, http.MethodGet, path, opts)
}

// Post sends a POST request.
func (s *Session) Post(ctx context.Context, path string, opts *RequestOptions) (*http.Response, error) {
	return s.Do(ctx, http.MethodPost, path, opts)
}

// Patch sends a PATCH request.
func (s *Session) Patch(ctx context.Context, path string, opts *RequestOptions) (*http.Response, error) {
	return s.Do(ctx, http.MethodPatch, path, opts)
}

// Delete sends a DELETE request.
func (s *Session) Delete(ctx context.Context, path string, opts *RequestOptions) (*http.Response, error) {
	return s.Do(ctx, http.MethodDelete, path, opts)
}

// Do builds, signs and sends a request. Failures before a response is
// received are returned as *TransportError.
func (s *Session) Do(ctx context.Context, method, path string, opts *RequestOptions) (*http.Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	target, err := s.URL(path)
	if err != nil {
		return nil, err
	}

	body, err := requestBody(opts)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, vs := range s.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	for k, vs := range opts.Header {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", s.now().UTC().Format(http.TimeFormat))
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}

	switch {
	case opts.BasicAuth != nil:
		req.SetBasicAuth(opts.BasicAuth.Username, opts.BasicAuth.Password)
	case s.signer != nil:
		if err := s.signer.Sign(req); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	slog.Debug("api request", "method", method, "url", target, "request_id", req.Header.Get(RequestIDHeader))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}

	return resp, nil
}

func requestBody(opts *RequestOptions) ([]byte, error) {
	if opts.Body != nil {
		return opts.Body, nil
	}
	if opts.JSON == nil {
		return nil, nil
	}
	return json.Marshal(opts.JSON)
}
