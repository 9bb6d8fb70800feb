package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrEndpointRequired is returned when the minio backend has no endpoint.
var ErrEndpointRequired = errors.New("endpoint is required")

// MinioTransferer uploads through minio-go, which splits large files into
// parts and sends them in parallel.
type MinioTransferer struct {
	client *minio.Client
	opts   Options
}

// NewMinio creates a MinioTransferer. The endpoint may be host:port or a
// URL whose scheme selects TLS.
func NewMinio(creds Credentials, opts Options) (*MinioTransferer, error) {
	opts = opts.WithDefaults()
	if opts.Endpoint == "" {
		return nil, ErrEndpointRequired
	}

	endpoint, secure, err := parseEndpoint(opts.Endpoint, opts.UseSSL)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Region: creds.Region,
		Secure: secure,
		Creds:  credentials.NewStaticV4(creds.AccessKey, creds.SecretKey, creds.SessionToken),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioTransferer{client: client, opts: opts}, nil
}

// Upload sends req.LocalPath to req.Bucket under req.Key.
func (t *MinioTransferer) Upload(ctx context.Context, req Request) error {
	opts := minio.PutObjectOptions{
		PartSize:   uint64(t.opts.PartSize),     //nolint:gosec // positive after defaults
		NumThreads: uint(t.opts.MaxConcurrency), //nolint:gosec // positive after defaults
	}
	if req.Progress != nil {
		opts.Progress = progressSink(req.Progress)
	}

	if _, err := t.client.FPutObject(ctx, req.Bucket, req.Key, req.LocalPath, opts); err != nil {
		return fmt.Errorf("put object %s: %w", req.Key, err)
	}
	return nil
}

// progressSink adapts a delta callback to the reader minio feeds with
// every chunk it sends.
type progressSink func(int64)

func (p progressSink) Read(b []byte) (int, error) {
	p(int64(len(b)))
	return len(b), nil
}

func parseEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, useSSL, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint: %w", err)
	}
	return u.Host, u.Scheme == "https", nil
}
