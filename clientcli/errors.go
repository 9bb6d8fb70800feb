package clientcli

import "errors"

// Errors for profile operations.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrNoProfiles      = errors.New("no profiles configured")
	ErrProfileExists   = errors.New("profile already exists")
)

// Errors for configuration validation.
var (
	ErrKeyRequired    = errors.New("api key is required")
	ErrSecretRequired = errors.New("api secret is required")
	ErrConfigRequired = errors.New("config is required")
)

// Errors for input validation.
var (
	ErrEmptyID = errors.New("id is required")
)
