package mockserver

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/keybackend"
)

// Defaults for Config.
const (
	DefaultPrefix          = "/api/v1"
	DefaultPageSize        = 10
	DefaultProcessingPolls = 2
	DefaultBucket          = "mock"
	DefaultRegion          = "us-east-1"
)

// ObjectOpener reads stored objects back to check uploads.
type ObjectOpener interface {
	Open(bucket, key string) (io.ReadCloser, error)
}

// CORSConfig enables cross-origin requests for browser clients.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// Config configures a Server.
type Config struct {
	// Prefix is the path of the API root.
	Prefix string
	// Keys are API keys accepted from the start, mapped to secrets.
	Keys map[string]string
	// Users maps user names to passwords for token issuance.
	Users map[string]string
	// Accounts overrides Keys and Users.
	Accounts *keybackend.Accounts
	// PageSize is the default number of list results.
	PageSize int
	// ProcessingPolls is the number of reads an uploaded upload takes to
	// reach a terminal status.
	ProcessingPolls int
	// FailProcessing ends every upload in error.
	FailProcessing bool
	// Bucket is reported in the upload credentials.
	Bucket string
	// Objects, when set, is checked for every manifest file.
	Objects ObjectOpener
	CORS    CORSConfig
	// Now defaults to time.Now.
	Now func() time.Time
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	c.Prefix = "/" + strings.Trim(c.Prefix, "/")
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.ProcessingPolls <= 0 {
		c.ProcessingPolls = DefaultProcessingPolls
	}
	if c.Bucket == "" {
		c.Bucket = DefaultBucket
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Server holds the in-memory service state.
type Server struct {
	config   Config
	accounts *keybackend.Accounts
	verifier *bigstash.Verifier
	joined   time.Time

	mu            sync.Mutex
	nextID        int
	archives      []*archiveRecord
	uploads       []*uploadRecord
	notifications []notificationRecord
	tokens        map[int]*tokenRecord
}

// New creates a Server.
func New(cfg Config) *Server {
	cfg = cfg.WithDefaults()

	accounts := cfg.Accounts
	if accounts == nil {
		accounts = keybackend.NewAccounts(cfg.Keys, cfg.Users)
	}

	return &Server{
		config:   cfg,
		accounts: accounts,
		verifier: bigstash.NewVerifier(accounts.Secrets()),
		joined:   cfg.Now().UTC().Truncate(time.Second),
		tokens:   make(map[int]*tokenRecord),
	}
}

// Router returns an http.Handler serving the API under the prefix.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	if s.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   s.config.CORS.AllowedMethods,
			AllowedHeaders:   s.config.CORS.AllowedHeaders,
			ExposedHeaders:   s.config.CORS.ExposedHeaders,
			AllowCredentials: s.config.CORS.AllowCredentials,
			MaxAge:           s.config.CORS.MaxAge,
		}))
	}

	r.Route(s.config.Prefix, func(r chi.Router) {
		r.With(s.BasicAuthMiddleware).Post("/tokens/", s.handleCreateToken)

		r.Group(func(r chi.Router) {
			r.Use(s.AuthMiddleware)

			r.Get("/", s.handleRoot)
			r.Get("/user/", s.handleUser)
			r.Get("/notifications/", s.handleNotifications)
			r.Delete("/tokens/{id}/", s.handleDeleteToken)

			r.Get("/archives/", s.handleListArchives)
			r.Post("/archives/", s.handleCreateArchive)
			r.Get("/archives/{id}/", s.handleGetArchive)
			r.Get("/archives/{id}/files/", s.handleArchiveFiles)
			r.Post("/archives/{id}/upload/", s.handleCreateUpload)

			r.Get("/uploads/", s.handleListUploads)
			r.Post("/uploads/", s.handleCreateUpload)
			r.Get("/uploads/{id}/", s.handleGetUpload)
			r.Patch("/uploads/{id}/", s.handlePatchUpload)
			r.Delete("/uploads/{id}/", s.handleDeleteUpload)
		})
	})

	return r
}

// Accounts returns the users and API keys the server accepts.
func (s *Server) Accounts() *keybackend.Accounts {
	return s.accounts
}

// AuthMiddleware rejects requests without a valid signature.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(bigstash.APIKeyHeader) == "" || r.Header.Get("Authorization") == "" {
			WriteError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		if err := s.verifier.Verify(r); err != nil {
			slog.Debug("signature rejected", "path", r.URL.Path, "error", err)
			WriteError(w, http.StatusForbidden, "Invalid signature.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// BasicAuthMiddleware checks user credentials for token issuance.
func (s *Server) BasicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="api"`)
			WriteError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		if err := s.accounts.Authenticate(user, password); err != nil {
			WriteError(w, http.StatusUnauthorized, "Invalid username/password.")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// baseURL is the absolute URL of the API root without a trailing slash.
func (s *Server) baseURL(r *http.Request) string {
	return scheme(r) + "://" + r.Host + s.config.Prefix
}
