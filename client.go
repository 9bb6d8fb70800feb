package bigstash

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout is the default HTTP client timeout.
const DefaultTimeout = 30 * time.Second

// Config holds what a Client needs to reach and authenticate with the API.
type Config struct {
	BaseURL string
	Key     string
	Secret  string
	// Headers are sent with every request, after the defaults.
	Headers http.Header
}

// WithDefaults returns a copy of the config with default values applied.
func (c *Config) WithDefaults() *Config {
	cfg := *c
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &cfg
}

// Client talks to the BigStash API on behalf of one API key.
type Client struct {
	session    *Session
	httpClient *http.Client
	timeout    time.Duration
	insecure   bool
	algorithm  string
	headers    []string

	rootMu sync.Mutex
	root   *APIRoot
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The client is copied, so
// WithTimeout and WithInsecureSkipVerify never change it.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify() Option {
	return func(c *Client) {
		c.insecure = true
	}
}

// buildHTTPClient returns the client requests are sent with, applying
// the timeout and TLS options to a copy of the configured client.
func (c *Client) buildHTTPClient() *http.Client {
	hc := &http.Client{Timeout: DefaultTimeout}
	if c.httpClient != nil {
		copied := *c.httpClient
		hc = &copied
	}

	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	if c.insecure {
		hc.Transport = insecureTransport(hc.Transport)
	}

	return hc
}

func insecureTransport(base http.RoundTripper) *http.Transport {
	t, ok := base.(*http.Transport)
	if !ok || t == nil {
		t = http.DefaultTransport.(*http.Transport) //nolint:errcheck // the default is always an *http.Transport
	}

	t = t.Clone()
	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{} //nolint:gosec // verification is disabled below
	}
	t.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // opt-in for test deployments
	return t
}

// WithSignedHeaders overrides the signed header list.
func WithSignedHeaders(headers ...string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// New creates a Client signing requests with the configured key pair.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	cfg = cfg.WithDefaults()

	if cfg.Key == "" || cfg.Secret == "" {
		return nil, ErrMissingCredentials
	}

	c := &Client{
		algorithm: AlgorithmHMACSHA256,
		headers:   DefaultSignedHeaders,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = c.buildHTTPClient()

	signer, err := NewSigner(cfg.Secret, c.algorithm, c.headers)
	if err != nil {
		return nil, err
	}

	headers := cfg.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	headers.Set(APIKeyHeader, cfg.Key)

	session, err := NewSession(cfg.BaseURL, c.httpClient, signer, headers)
	if err != nil {
		return nil, err
	}
	c.session = session

	return c, nil
}

// Session returns the underlying session.
func (c *Client) Session() *Session {
	return c.session
}

// getJSON GETs path and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, header http.Header, out any) (Metadata, error) {
	resp, err := c.session.Get(ctx, path, &RequestOptions{Header: header})
	if err != nil {
		return Metadata{}, err
	}
	return decodeResponse(resp, out)
}

// sendJSON sends body with method and decodes the response into out.
func (c *Client) sendJSON(ctx context.Context, method, path string, opts *RequestOptions, out any) (Metadata, error) {
	resp, err := c.session.Do(ctx, method, path, opts)
	if err != nil {
		return Metadata{}, err
	}
	return decodeResponse(resp, out)
}

// fetchPage implements pageFetcher.
func (c *Client) fetchPage(ctx context.Context, url string) (*page, Metadata, error) {
	var p page
	meta, err := c.getJSON(ctx, url, nil, &p)
	if err != nil {
		return nil, Metadata{}, err
	}
	return &p, meta, nil
}

// Root returns the root resource document, fetching it on first use.
func (c *Client) Root(ctx context.Context) (*APIRoot, error) {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()

	if c.root != nil {
		return c.root, nil
	}

	var root APIRoot
	meta, err := c.getJSON(ctx, "", nil, &root)
	if err != nil {
		return nil, fmt.Errorf("get root: %w", err)
	}
	root.Meta = meta
	c.root = &root

	return c.root, nil
}

// resourceURL looks up a top level resource URL by name.
func (c *Client) resourceURL(ctx context.Context, name string) (string, error) {
	root, err := c.Root(ctx)
	if err != nil {
		return "", err
	}

	u, ok := root.Resources[name]
	if !ok || u == "" {
		return "", &ServiceError{Message: fmt.Sprintf("invalid resource '%s'", name), Err: ErrInvalidResource}
	}
	return u, nil
}

func (c *Client) decodeArchive(raw json.RawMessage, meta Metadata) (Archive, error) {
	var a Archive
	if err := json.Unmarshal(raw, &a); err != nil {
		return Archive{}, err
	}
	a.Meta = meta
	c.bindArchive(&a)
	return a, nil
}

func (c *Client) decodeUpload(raw json.RawMessage, meta Metadata) (Upload, error) {
	var u Upload
	if err := json.Unmarshal(raw, &u); err != nil {
		return Upload{}, err
	}
	u.Meta = meta
	return u, nil
}

func decodeNotification(raw json.RawMessage, meta Metadata) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return Notification{}, err
	}
	n.Meta = meta
	return n, nil
}

func decodeFile(raw json.RawMessage, meta Metadata) (File, error) {
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return File{}, err
	}
	f.Meta = meta
	return f, nil
}

// bindArchive attaches the files list to an archive.
func (c *Client) bindArchive(a *Archive) {
	if a.FilesURL != "" && a.Files == nil {
		a.Files = newList(c, decodeFile, a.FilesURL)
	}
}

// bindUser turns the embedded archives page into a list.
func (c *Client) bindUser(u *User) error {
	if u.archivesPage == nil {
		return nil
	}

	l := newList(c, c.decodeArchive, "")
	for i, raw := range u.archivesPage.Results {
		a, err := c.decodeArchive(raw, u.Meta)
		if err != nil {
			return &ServiceError{Message: fmt.Sprintf("decode user archive %d", i), Err: err}
		}
		l.known = append(l.known, a)
	}
	if u.archivesPage.Next != nil {
		l.next = *u.archivesPage.Next
	}
	l.count = u.archivesPage.Count

	u.Archives = l
	u.archivesPage = nil
	return nil
}
