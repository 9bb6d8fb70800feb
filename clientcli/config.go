package clientcli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sagarc03/bigstash"
)

// DefaultProfile is the profile used when none is named.
const DefaultProfile = "default"

// Profile holds the API key saved for one account.
type Profile struct {
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Key      string `yaml:"key,omitempty"`
	Secret   string `yaml:"secret,omitempty"`
	TokenURL string `yaml:"token_url,omitempty"`
	Default  bool   `yaml:"default,omitempty"`
}

// Token returns the saved API key as a bigstash.Token.
func (p *Profile) Token() bigstash.Token {
	return bigstash.Token{URL: p.TokenURL, Key: p.Key, Secret: p.Secret}
}

// ProfileFromToken creates a profile holding token.
func ProfileFromToken(name, baseURL string, token *bigstash.Token) Profile {
	return Profile{
		Name:     name,
		BaseURL:  baseURL,
		Key:      token.Key,
		Secret:   token.Secret,
		TokenURL: token.URL,
	}
}

// ConfigFile holds the full credentials file with multiple profiles.
type ConfigFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// GetProfile returns the profile by name.
// If name is empty, returns the default profile.
func (c *ConfigFile) GetProfile(name string) (*Profile, error) {
	if len(c.Profiles) == 0 {
		return nil, ErrNoProfiles
	}

	if name == "" {
		return c.GetDefaultProfile()
	}

	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i], nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

// GetDefaultProfile returns the default profile.
// If no profile is marked as default, returns the first profile.
func (c *ConfigFile) GetDefaultProfile() (*Profile, error) {
	if len(c.Profiles) == 0 {
		return nil, ErrNoProfiles
	}

	for i := range c.Profiles {
		if c.Profiles[i].Default {
			return &c.Profiles[i], nil
		}
	}

	return &c.Profiles[0], nil
}

// AddProfile adds a new profile. Returns ErrProfileExists if a profile
// with the same name already exists.
func (c *ConfigFile) AddProfile(p Profile) error {
	for i := range c.Profiles {
		if c.Profiles[i].Name == p.Name {
			return fmt.Errorf("%w: %s", ErrProfileExists, p.Name)
		}
	}
	c.Profiles = append(c.Profiles, p)
	return nil
}

// PutProfile adds p or replaces the profile with the same name.
func (c *ConfigFile) PutProfile(p Profile) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == p.Name {
			p.Default = p.Default || c.Profiles[i].Default
			c.Profiles[i] = p
			return
		}
	}
	c.Profiles = append(c.Profiles, p)
}

// RemoveProfile removes a profile by name.
func (c *ConfigFile) RemoveProfile(name string) error {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			c.Profiles = append(c.Profiles[:i], c.Profiles[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

// SetDefault sets the default profile by name.
// Clears the default flag from all other profiles.
func (c *ConfigFile) SetDefault(name string) error {
	found := false
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			c.Profiles[i].Default = true
			found = true
		} else {
			c.Profiles[i].Default = false
		}
	}

	if !found {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return nil
}

// ProfileNames returns a list of all profile names.
func (c *ConfigFile) ProfileNames() []string {
	names := make([]string, len(c.Profiles))
	for i := range c.Profiles {
		names[i] = c.Profiles[i].Name
	}
	return names
}

// Save writes the file readable by the owner only.
// Creates the parent directory if it doesn't exist.
func (c *ConfigFile) Save(path string) error {
	cleanPath := filepath.Clean(path)

	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(cleanPath, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(cleanPath, 0o600); err != nil {
		return fmt.Errorf("chmod config file: %w", err)
	}

	return nil
}

// LoadConfigFile loads the credentials file from path.
func LoadConfigFile(path string) (*ConfigFile, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) //#nosec G304 -- path is user-provided config file
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg ConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadOrEmpty loads the credentials file, returning an empty one when it
// does not exist yet.
func LoadOrEmpty(path string) (*ConfigFile, error) {
	cfg, err := LoadConfigFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ConfigFile{}, nil
	}
	return cfg, err
}

// DefaultConfigPath returns the credentials file path under dir.
func DefaultConfigPath(dir string) string {
	return filepath.Join(dir, "config.yaml")
}

// Config holds resolved client configuration for one account.
type Config struct {
	BaseURL  string
	Key      string
	Secret   string
	TokenURL string
}

// WithDefaults returns a copy of the config with default values applied.
// If BaseURL is empty, it defaults to bigstash.DefaultBaseURL.
func (c *Config) WithDefaults() *Config {
	cfg := *c
	if cfg.BaseURL == "" {
		cfg.BaseURL = bigstash.DefaultBaseURL
	}
	return &cfg
}

// ValidateWithAuth checks that credentials are set.
func (c *Config) ValidateWithAuth() error {
	if c.Key == "" {
		return ErrKeyRequired
	}
	if c.Secret == "" {
		return ErrSecretRequired
	}
	return nil
}

// ConfigFromProfile creates a Config from a Profile.
func ConfigFromProfile(p *Profile) *Config {
	if p == nil {
		return &Config{}
	}
	return &Config{
		BaseURL:  p.BaseURL,
		Key:      p.Key,
		Secret:   p.Secret,
		TokenURL: p.TokenURL,
	}
}

// ConfigFromEnv loads credentials from BS_API_KEY and BS_API_SECRET.
func ConfigFromEnv() *Config {
	return &Config{
		Key:    os.Getenv("BS_API_KEY"),
		Secret: os.Getenv("BS_API_SECRET"),
	}
}

// MergeConfig merges multiple configs, with later configs taking precedence.
// Empty strings in later configs do not override non-empty values in earlier configs.
func MergeConfig(configs ...*Config) *Config {
	result := &Config{}
	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		if cfg.BaseURL != "" {
			result.BaseURL = cfg.BaseURL
		}
		if cfg.Key != "" {
			result.Key = cfg.Key
		}
		if cfg.Secret != "" {
			result.Secret = cfg.Secret
		}
		if cfg.TokenURL != "" {
			result.TokenURL = cfg.TokenURL
		}
	}
	return result
}
