package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/bigstash/blobstore"
	"github.com/sagarc03/bigstash/history"
	"github.com/sagarc03/bigstash/keybackend"
	"github.com/sagarc03/bigstash/mockserver"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://www.bigstash.co/api/"

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for bgst and bgst-mock.
type Config struct {
	BaseURL  string         `mapstructure:"base_url" validate:"required,url"`
	Profile  string         `mapstructure:"profile" validate:"required"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Poll     PollConfig     `mapstructure:"poll"`
	History  HistoryConfig  `mapstructure:"history"`
	Mock     MockConfig     `mapstructure:"mock"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
	// File receives log output instead of stderr when set.
	File string `mapstructure:"file"`
}

// HTTPConfig tunes the API client.
type HTTPConfig struct {
	Timeout            time.Duration `mapstructure:"timeout" validate:"min=0"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// TransferConfig selects and tunes the object storage backend.
type TransferConfig struct {
	Backend        string `mapstructure:"backend" validate:"required,oneof=s3 minio local"`
	Endpoint       string `mapstructure:"endpoint" validate:"required_if=Backend minio"`
	UseSSL         bool   `mapstructure:"use_ssl"`
	LocalRoot      string `mapstructure:"local_root" validate:"required_if=Backend local"`
	PartSize       int64  `mapstructure:"part_size" validate:"min=5242880"`
	MaxConcurrency int    `mapstructure:"max_concurrency" validate:"min=1,max=100"`
	MaxAttempts    int    `mapstructure:"max_attempts" validate:"min=1"`
}

// Options converts the settings to blobstore options.
func (t TransferConfig) Options() blobstore.Options {
	return blobstore.Options{
		PartSize:       t.PartSize,
		MaxConcurrency: t.MaxConcurrency,
		MaxAttempts:    t.MaxAttempts,
		Endpoint:       t.Endpoint,
		UseSSL:         t.UseSSL,
		Root:           t.LocalRoot,
	}
}

// PollConfig holds the status polling intervals.
type PollConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval" validate:"gtefield=InitialInterval"`
}

// HistoryConfig holds the local upload journal settings.
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Type is inferred from DSN when empty.
	Type string `mapstructure:"type" validate:"omitempty,oneof=sqlite postgres"`
	// DSN defaults to history.db next to the profile file.
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table" validate:"required"`
}

// Store returns the history connection settings, resolving the default
// location under configDir.
func (h HistoryConfig) Store(configDir string) history.Config {
	dsn := h.DSN
	if dsn == "" {
		dsn = filepath.Join(configDir, "history.db")
	}
	return history.Config{Type: h.Type, DSN: dsn, Table: h.Table}
}

// MockConfig configures bgst-mock.
type MockConfig struct {
	Port            int                   `mapstructure:"port" validate:"required,min=1,max=65535"`
	Prefix          string                `mapstructure:"prefix" validate:"required"`
	PageSize        int                   `mapstructure:"page_size" validate:"min=1,max=100"`
	ProcessingPolls int                   `mapstructure:"processing_polls" validate:"min=1"`
	FailProcessing  bool                  `mapstructure:"fail_processing"`
	ObjectsRoot     string                `mapstructure:"objects_root"`
	Accounts        keybackend.Config     `mapstructure:"accounts"`
	CORS            mockserver.CORSConfig `mapstructure:"cors"`
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"base-url":         "base_url",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"log-file":         "log.file",
	"timeout":          "http.timeout",
	"insecure":         "http.insecure_skip_verify",
	"backend":          "transfer.backend",
	"endpoint":         "transfer.endpoint",
	"local-root":       "transfer.local_root",
	"part-size":        "transfer.part_size",
	"concurrency":      "transfer.max_concurrency",
	"history-dsn":      "history.dsn",
	"no-history":       "",
	"port":             "mock.port",
	"prefix":           "mock.prefix",
	"page-size":        "mock.page_size",
	"processing-polls": "mock.processing_polls",
	"fail-processing":  "mock.fail_processing",
	"objects-root":     "mock.objects_root",
	"profiles-file":    "mock.accounts.profiles_file",
	"accept-env-key":   "mock.accounts.from_env",
	"cors":             "mock.cors.enabled",
}

// legacyEnv are environment names kept from earlier clients. The BGST_
// name wins when both are set.
var legacyEnv = map[string]string{
	"base_url":  "BS_API_URL",
	"profile":   "BS_PROFILE",
	"log.level": "BS_LOG_LEVEL",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		// Use custom mapping if it exists, otherwise use flag name as-is
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}
		if viperKey == "" {
			return
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("profile", "default")

	v.SetDefault("log.level", "error")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.insecure_skip_verify", false)

	v.SetDefault("transfer.backend", blobstore.BackendS3)
	v.SetDefault("transfer.endpoint", "")
	v.SetDefault("transfer.use_ssl", true)
	v.SetDefault("transfer.local_root", "")
	v.SetDefault("transfer.part_size", blobstore.DefaultPartSize)
	v.SetDefault("transfer.max_concurrency", blobstore.DefaultMaxConcurrency)
	v.SetDefault("transfer.max_attempts", blobstore.DefaultMaxAttempts)

	v.SetDefault("poll.initial_interval", time.Second)
	v.SetDefault("poll.max_interval", 10*time.Second)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.type", "")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.table", history.DefaultTable)

	v.SetDefault("mock.port", 8000)
	v.SetDefault("mock.prefix", mockserver.DefaultPrefix)
	v.SetDefault("mock.page_size", mockserver.DefaultPageSize)
	v.SetDefault("mock.processing_polls", mockserver.DefaultProcessingPolls)
	v.SetDefault("mock.fail_processing", false)
	v.SetDefault("mock.objects_root", "")
	v.SetDefault("mock.accounts.profiles_file", "")
	v.SetDefault("mock.accounts.from_env", false)
	v.SetDefault("mock.cors.enabled", false)
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := DefaultDir(); err == nil {
			v.AddConfigPath(dir)
		}

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix("BGST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		_ = v.BindEnv(key, envName(key), legacy)
	}

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
		if f := flags.Lookup("no-history"); f != nil && f.Changed && f.Value.String() == "true" {
			v.Set("history.enabled", false)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// envName returns the BGST_ variable for key.
func envName(key string) string {
	return "BGST_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// DefaultDir returns the per-user configuration directory. BS_CONFIG_ROOT
// overrides it.
func DefaultDir() (string, error) {
	if root := os.Getenv("BS_CONFIG_ROOT"); root != "" {
		return root, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "bigstash"), nil
}
