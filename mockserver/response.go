package mockserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sagarc03/bigstash"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Detail: detail}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// WriteJSON writes a JSON response in the service media type
func WriteJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", bigstash.MediaType)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Page is the wire form of every collection.
type Page struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []any   `json:"results"`
}

const maxPageSize = 100

// paginate slices items according to the page and page_size query
// parameters. ok is false for pages past the end.
func paginate(r *http.Request, items []any, defaultSize int) (Page, bool) {
	q := r.URL.Query()

	size := defaultSize
	if s := q.Get("page_size"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil {
			size = max(1, min(maxPageSize, parsed))
		}
	}

	number := 1
	if s := q.Get("page"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			return Page{}, false
		}
		number = parsed
	}

	start := (number - 1) * size
	if start > 0 && start >= len(items) {
		return Page{}, false
	}
	end := min(start+size, len(items))

	p := Page{Count: len(items), Results: items[start:end]}
	if p.Results == nil {
		p.Results = []any{}
	}
	if end < len(items) {
		next := pageURL(r, number+1)
		p.Next = &next
	}
	if number > 1 {
		prev := pageURL(r, number-1)
		p.Previous = &prev
	}
	return p, true
}

func pageURL(r *http.Request, number int) string {
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(number))

	u := url.URL{
		Scheme:   scheme(r),
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
