package bigstash

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
)

// Metadata is taken from the headers of the response a resource was
// decoded from.
type Metadata struct {
	ContentType  string `json:"content_type,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

const defaultContentType = "application/json"

// metadataFromHeader extracts Metadata from response headers.
func metadataFromHeader(h http.Header) Metadata {
	m := Metadata{
		ContentType:  h.Get("Content-Type"),
		LastModified: h.Get("Last-Modified"),
	}
	if m.ContentType == "" {
		m.ContentType = defaultContentType
	}
	return m
}

// Update overwrites fields present in other.
func (m *Metadata) Update(other Metadata) {
	if other.ContentType != "" {
		m.ContentType = other.ContentType
	}
	if other.LastModified != "" {
		m.LastModified = other.LastModified
	}
}

// decodeResponse classifies resp and decodes a successful JSON body into
// out. It always closes the body.
func decodeResponse(resp *http.Response, out any) (Metadata, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Metadata{}, &TransportError{Method: requestMethod(resp), URL: requestURL(resp), Err: fmt.Errorf("read response: %w", err)}
	}

	if err := checkStatus(resp, body); err != nil {
		return Metadata{}, err
	}

	ctype := resp.Header.Get("Content-Type")
	if ctype == "" {
		slog.Warn("response has no content type, assuming JSON", "url", requestURL(resp))
	} else if !isJSONMediaType(ctype) {
		return Metadata{}, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("content type %q", ctype),
			Err:        ErrUnexpectedContentType,
		}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return Metadata{}, &ServiceError{StatusCode: resp.StatusCode, Message: "decode response", Err: err}
		}
	}

	return metadataFromHeader(resp.Header), nil
}

// expectNoContent classifies resp for endpoints without a response body.
func expectNoContent(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: requestMethod(resp), URL: requestURL(resp), Err: fmt.Errorf("read response: %w", err)}
	}

	return checkStatus(resp, body)
}

// checkStatus maps non-2xx responses onto the error taxonomy.
func checkStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code == http.StatusNotModified {
		return ErrNotModified
	}
	if code >= 200 && code < 300 {
		return nil
	}

	message := errorDetail(resp, body)

	slog.Debug("api error", "url", requestURL(resp), "status", code, "detail", message)

	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AccessDeniedError{Message: message, Request: resp.Request, Response: resp}
	case http.StatusBadRequest, http.StatusInternalServerError:
		return &ServiceError{StatusCode: code, Message: message}
	default:
		return &ServiceError{
			StatusCode: code,
			Message:    fmt.Sprintf("%d %s for url %s", code, reasonPhrase(resp), requestURL(resp)),
			Err:        &APIError{StatusCode: code, Body: string(body)},
		}
	}
}

// errorDetail returns the "detail" field of a JSON error body, or the
// reason phrase.
func errorDetail(resp *http.Response, body []byte) string {
	ctype := resp.Header.Get("Content-Type")
	if ctype == "" || isJSONMediaType(ctype) {
		var payload struct {
			Detail *string `json:"detail"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
			return *payload.Detail
		}
	}
	return reasonPhrase(resp)
}

func reasonPhrase(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// isJSONMediaType accepts application/json and any +json suffix type,
// including the service's versioned vendor type.
func isJSONMediaType(ctype string) bool {
	mediaType, _, err := mime.ParseMediaType(ctype)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(ctype, ";", 2)[0])
	}
	mediaType = strings.ToLower(mediaType)
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func requestURL(resp *http.Response) string {
	if resp.Request == nil || resp.Request.URL == nil {
		return ""
	}
	return resp.Request.URL.String()
}

func requestMethod(resp *http.Response) string {
	if resp.Request == nil {
		return ""
	}
	return resp.Request.Method
}
