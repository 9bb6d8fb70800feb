package bigstash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// SignatureKeyID is the keyId parameter the service expects in every
	// signature header. The API key itself travels in APIKeyHeader.
	SignatureKeyID = "hmac-key-1"
	// AlgorithmHMACSHA256 is the only implemented signing algorithm.
	AlgorithmHMACSHA256 = "hmac-sha256"
	// RequestTarget is the pseudo-header for the request method and path.
	RequestTarget = "(request-target)"
	// APIKeyHeader carries the API key on every authenticated request.
	APIKeyHeader = "X-Deepfreeze-Api-Key"
)

// DefaultSignedHeaders is the header list used by Client.
var DefaultSignedHeaders = []string{RequestTarget, "date", "host"}

type signFunc func(secret, data []byte) []byte

var algorithms = map[string]signFunc{
	AlgorithmHMACSHA256: hmacSHA256,
}

// SecretStore resolves an API key to its shared secret.
type SecretStore interface {
	Lookup(apiKey string) (string, error)
}

// Signer adds an HTTP signature Authorization header to outgoing requests.
// The configuration is fixed at construction so one Signer may sign
// distinct requests concurrently.
type Signer struct {
	secret    []byte
	algorithm string
	headers   []string
	sign      signFunc
	now       func() time.Time
}

// NewSigner returns a Signer for the given secret, algorithm and ordered
// header list. An empty header list signs the Date header value alone.
func NewSigner(secret, algorithm string, headers []string) (*Signer, error) {
	fn, ok := algorithms[algorithm]
	if !ok {
		return nil, fmt.Errorf("new signer: %q: %w", algorithm, ErrUnsupportedAlgorithm)
	}

	return &Signer{
		secret:    []byte(secret),
		algorithm: algorithm,
		headers:   append([]string(nil), headers...),
		sign:      fn,
		now:       time.Now,
	}, nil
}

// Headers returns a copy of the signed header list.
func (s *Signer) Headers() []string {
	return append([]string(nil), s.headers...)
}

// Sign sets the Authorization header on req, adding a Date header first
// when the request has none.
func (s *Signer) Sign(req *http.Request) error {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", s.now().UTC().Format(http.TimeFormat))
	}

	signable := SignableString(req, s.headers)
	slog.Debug("signing request", "signable", signable)

	signature := base64.StdEncoding.EncodeToString(s.sign(s.secret, []byte(signable)))
	req.Header.Set("Authorization", buildAuthorization(s.algorithm, s.headers, signature))

	return nil
}

// SignableString builds the canonical text signed for req. Each listed
// header produces one "name: value" line; headers missing from the
// request are skipped. Without a header list the Date value is used.
func SignableString(req *http.Request, headers []string) string {
	if len(headers) == 0 {
		return req.Header.Get("Date")
	}

	lines := make([]string, 0, len(headers))
	for _, name := range headers {
		switch strings.ToLower(name) {
		case RequestTarget:
			lines = append(lines, fmt.Sprintf("%s: %s %s", name, strings.ToLower(req.Method), requestTarget(req)))
		case "host":
			lines = append(lines, fmt.Sprintf("%s: %s", name, requestHost(req)))
		default:
			if values := req.Header.Values(name); len(values) > 0 {
				lines = append(lines, fmt.Sprintf("%s: %s", name, values[0]))
			}
		}
	}

	return strings.Join(lines, "\n")
}

func requestTarget(req *http.Request) string {
	path := req.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}
	return path
}

// requestHost prefers the URL authority on the client side and falls back
// to req.Host on the server side, where URL.Host is empty.
func requestHost(req *http.Request) string {
	if req.URL.Host != "" {
		return req.URL.Host
	}
	return req.Host
}

func buildAuthorization(algorithm string, headers []string, signature string) string {
	params := []string{
		fmt.Sprintf("keyId=%q", SignatureKeyID),
		fmt.Sprintf("algorithm=%q", algorithm),
	}
	if len(headers) > 0 {
		params = append(params, fmt.Sprintf("headers=%q", strings.Join(headers, " ")))
	}
	params = append(params, fmt.Sprintf("signature=%q", signature))

	return "Signature " + strings.Join(params, ",")
}

// SignatureParams is a parsed Authorization: Signature header.
type SignatureParams struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature string
}

// ParseSignature parses the value of an Authorization: Signature header.
func ParseSignature(value string) (*SignatureParams, error) {
	rest, ok := strings.CutPrefix(value, "Signature ")
	if !ok {
		return nil, fmt.Errorf("missing signature scheme: %w", ErrUnauthorized)
	}

	params := &SignatureParams{}
	for _, part := range strings.Split(rest, ",") {
		name, quoted, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return nil, fmt.Errorf("malformed signature parameter %q: %w", part, ErrUnauthorized)
		}
		val := strings.Trim(quoted, `"`)

		switch name {
		case "keyId":
			params.KeyID = val
		case "algorithm":
			params.Algorithm = val
		case "headers":
			params.Headers = strings.Fields(val)
		case "signature":
			params.Signature = val
		}
	}

	if params.Algorithm == "" || params.Signature == "" {
		return nil, fmt.Errorf("missing signature parameters: %w", ErrUnauthorized)
	}

	return params, nil
}

// Verifier checks signatures produced by Signer on incoming requests.
type Verifier struct {
	store SecretStore
}

// NewVerifier creates a Verifier that resolves API keys through store.
func NewVerifier(store SecretStore) *Verifier {
	return &Verifier{store: store}
}

// Verify recomputes the signature of r using the header list it claims
// and compares it with the one it carries.
func (v *Verifier) Verify(r *http.Request) error {
	apiKey := r.Header.Get(APIKeyHeader)
	if apiKey == "" {
		return fmt.Errorf("missing api key: %w", ErrUnauthorized)
	}

	params, err := ParseSignature(r.Header.Get("Authorization"))
	if err != nil {
		return err
	}

	fn, ok := algorithms[params.Algorithm]
	if !ok {
		return fmt.Errorf("algorithm %q: %w", params.Algorithm, ErrUnauthorized)
	}

	if r.Header.Get("Date") == "" {
		return fmt.Errorf("missing date header: %w", ErrUnauthorized)
	}

	secret, err := v.store.Lookup(apiKey)
	if err != nil {
		return fmt.Errorf("lookup api key: %w", ErrUnauthorized)
	}

	expected := base64.StdEncoding.EncodeToString(fn([]byte(secret), []byte(SignableString(r, params.Headers))))
	if !hmac.Equal([]byte(expected), []byte(params.Signature)) {
		return fmt.Errorf("signature mismatch: %w", ErrUnauthorized)
	}

	return nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
