package bigstash_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sagarc03/bigstash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_URL(t *testing.T) {
	session, err := bigstash.NewSession("https://api.example.com/api/v1/", nil, nil, nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "root", path: "", want: "https://api.example.com/api/v1/"},
		{name: "relative", path: "archives", want: "https://api.example.com/api/v1/archives/"},
		{name: "relative with slashes", path: "/archives/12/", want: "https://api.example.com/api/v1/archives/12/"},
		{name: "query kept", path: "archives?page=2", want: "https://api.example.com/api/v1/archives/?page=2"},
		{name: "absolute url kept", path: "https://other.example.com/x/y", want: "https://other.example.com/x/y/"},
		{name: "absolute url with query", path: "https://api.example.com/api/v1/archives/?page=3", want: "https://api.example.com/api/v1/archives/?page=3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := session.URL(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewSession_InvalidBaseURL(t *testing.T) {
	_, err := bigstash.NewSession("not-a-url", nil, nil, nil)
	assert.Error(t, err)
}

func TestSession_Do(t *testing.T) {
	var got *http.Request
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	signer, err := bigstash.NewSigner("secret", bigstash.AlgorithmHMACSHA256, bigstash.DefaultSignedHeaders)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("User-Agent", "custom-agent")
	session, err := bigstash.NewSession(server.URL+"/api/v1", server.Client(), signer, headers)
	require.NoError(t, err)

	resp, err := session.Post(context.Background(), "archives", &bigstash.RequestOptions{
		JSON: map[string]any{"title": "x", "size": 1500},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.NotNil(t, got)
	assert.Equal(t, "/api/v1/archives/", got.URL.Path)
	assert.Equal(t, "custom-agent", got.Header.Get("User-Agent"))
	assert.Equal(t, bigstash.MediaType, got.Header.Get("Accept"))
	assert.Equal(t, bigstash.MediaType, got.Header.Get("Content-Type"))
	assert.NotEmpty(t, got.Header.Get("Date"))
	assert.NotEmpty(t, got.Header.Get(bigstash.RequestIDHeader))
	assert.Contains(t, got.Header.Get("Authorization"), `Signature keyId="hmac-key-1"`)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "x", payload["title"])
}

func TestSession_Do_BasicAuth(t *testing.T) {
	var user, pass string
	var hasSignature bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		hasSignature = r.Header.Get("Authorization") != "" && r.Header.Get("Authorization")[:9] == "Signature"
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	signer, err := bigstash.NewSigner("secret", bigstash.AlgorithmHMACSHA256, nil)
	require.NoError(t, err)
	session, err := bigstash.NewSession(server.URL, server.Client(), signer, nil)
	require.NoError(t, err)

	resp, err := session.Post(context.Background(), "tokens", &bigstash.RequestOptions{
		BasicAuth: &bigstash.BasicAuth{Username: "alice", Password: "pw"},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "alice", user)
	assert.Equal(t, "pw", pass)
	assert.False(t, hasSignature)
}

func TestSession_Do_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	session, err := bigstash.NewSession(url, nil, nil, nil)
	require.NoError(t, err)

	_, err = session.Get(context.Background(), "user", nil)
	require.Error(t, err)

	var te *bigstash.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.MethodGet, te.Method)
	assert.True(t, bigstash.IsRetryable(err))
}
