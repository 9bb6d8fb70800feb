package keybackend

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config lists where accepted users and keys come from. Later sources win
// when the same key appears twice: inline keys, then the profiles file,
// then the environment.
type Config struct {
	Users []User    `mapstructure:"users"`
	Keys  []KeyPair `mapstructure:"keys"`
	// ProfilesFile is a bgst profiles file whose saved keys are accepted.
	ProfilesFile string `mapstructure:"profiles_file"`
	// FromEnv accepts the key in BS_API_KEY and BS_API_SECRET.
	FromEnv bool `mapstructure:"from_env"`
}

// Load builds Accounts from cfg.
func Load(cfg Config) (*Accounts, error) {
	keys := make(map[string]string)
	add := func(pairs ...KeyPair) {
		for _, p := range pairs {
			if p.Key != "" && p.Secret != "" {
				keys[p.Key] = p.Secret
			}
		}
	}

	add(cfg.Keys...)

	if cfg.ProfilesFile != "" {
		pairs, err := LoadProfiles(cfg.ProfilesFile)
		if err != nil {
			return nil, err
		}
		add(pairs...)
	}

	if cfg.FromEnv {
		if pair, ok := KeyFromEnv(); ok {
			add(pair)
		}
	}

	users := make(map[string]string, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.Username] = u.Password
	}

	return NewAccounts(keys, users), nil
}

// profilesFile is the part of the bgst profiles file that holds keys.
type profilesFile struct {
	Profiles []struct {
		Name   string `yaml:"name"`
		Key    string `yaml:"key"`
		Secret string `yaml:"secret"`
	} `yaml:"profiles"`
}

// LoadProfiles reads the keys saved in a bgst profiles file:
//
//	profiles:
//	  - name: default
//	    key: AHBFEXAMPLE
//	    secret: 12039898FADEXAMPLE
//	    default: true
//
// Profiles without a key or secret are skipped.
func LoadProfiles(path string) ([]KeyPair, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}

	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}

	pairs := make([]KeyPair, 0, len(f.Profiles))
	for _, p := range f.Profiles {
		if p.Key != "" && p.Secret != "" {
			pairs = append(pairs, KeyPair{Key: p.Key, Secret: p.Secret})
		}
	}
	return pairs, nil
}

// KeyFromEnv returns the key in BS_API_KEY and BS_API_SECRET, if both are
// set.
func KeyFromEnv() (KeyPair, bool) {
	pair := KeyPair{Key: os.Getenv("BS_API_KEY"), Secret: os.Getenv("BS_API_SECRET")}
	return pair, pair.Key != "" && pair.Secret != ""
}
