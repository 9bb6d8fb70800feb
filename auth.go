package bigstash

import (
	"context"
	"fmt"
	"net/http"
)

// DefaultTokenName names API keys issued by this SDK.
var DefaultTokenName = "BigStash Go SDK v" + Version

// AuthClient obtains API keys with account credentials. It does not sign
// requests.
type AuthClient struct {
	session *Session
}

// NewAuthClient creates an AuthClient for baseURL.
func NewAuthClient(baseURL string, opts ...Option) (*AuthClient, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = c.buildHTTPClient()

	session, err := NewSession(baseURL, c.httpClient, nil, nil)
	if err != nil {
		return nil, err
	}

	return &AuthClient{session: session}, nil
}

// GetAPIKey issues a new API key named name for the account.
func (a *AuthClient) GetAPIKey(ctx context.Context, username, password, name string) (*Token, error) {
	if name == "" {
		name = DefaultTokenName
	}

	body := struct {
		Name string `json:"name"`
	}{Name: name}

	resp, err := a.session.Post(ctx, "tokens", &RequestOptions{
		JSON:      body,
		BasicAuth: &BasicAuth{Username: username, Password: password},
	})
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}

	var token Token
	if _, err := decodeResponse(resp, &token); err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}

	return &token, nil
}
