// Package config provides settings loading and validation for bgst and
// bgst-mock.
//
// The package handles YAML settings files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Settings file(s) - multiple files merged left-to-right
//  3. Environment variables (BGST_ prefix, plus BS_API_URL, BS_PROFILE and BS_LOG_LEVEL)
//  4. CLI flags
//
// Without explicit files, settings.yaml is looked up in the working
// directory and then in the per-user directory returned by DefaultDir.
//
// # Usage
//
//	cfg, err := config.Load([]string{"settings.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Store in context for subcommands
//	ctx = config.WithContext(ctx, cfg)
//
//	// Retrieve later
//	cfg, err = config.FromContext(ctx)
//
// # Environment Variables
//
// All keys map to environment variables with the BGST_ prefix:
//   - base_url → BGST_BASE_URL
//   - transfer.backend → BGST_TRANSFER_BACKEND
//   - log.level → BGST_LOG_LEVEL
//
// # Validation
//
// Settings are validated using struct tags:
//   - base_url must be a URL
//   - transfer.backend must be s3, minio, or local; minio needs an endpoint
//     and local needs local_root
//   - transfer.part_size is at least 5 MiB, the smallest S3 part
//   - log level must be debug, info, warn, or error
package config
