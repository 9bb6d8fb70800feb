// Package blobstore moves local files to object storage using the
// temporary credentials issued for an upload.
//
// Backends:
//   - s3: Amazon S3 through aws-sdk-go-v2, multipart above the part size
//   - minio: any S3 compatible service through minio-go
//   - local: a directory on disk, for development against the mock server
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Backend names accepted by New.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"
	BackendLocal = "local"
)

// Defaults for Options.
const (
	DefaultPartSize       = 8 * 1024 * 1024
	DefaultMaxConcurrency = 10
	DefaultMaxAttempts    = 10
	DefaultRegion         = "us-east-1"
)

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown blobstore backend")

// Credentials are the temporary keys issued for one upload.
type Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	Region       string
}

// Request describes one file transfer.
type Request struct {
	LocalPath string
	Bucket    string
	Key       string
	// Progress, when set, is called with the number of new bytes sent. It
	// may be called from several goroutines at once.
	Progress func(delta int64)
}

// Options tunes transfers.
type Options struct {
	// PartSize is the multipart threshold and part size in bytes.
	PartSize int64
	// MaxConcurrency bounds parts sent in parallel.
	MaxConcurrency int
	// MaxAttempts bounds attempts per request.
	MaxAttempts int
	// Endpoint overrides the service endpoint for S3 compatible stores.
	Endpoint string
	// UseSSL selects https for minio endpoints given without a scheme.
	UseSSL bool
	// Root is the directory used by the local backend.
	Root string
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.PartSize <= 0 {
		o.PartSize = DefaultPartSize
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// Transferer uploads one local file to object storage.
type Transferer interface {
	Upload(ctx context.Context, req Request) error
}

// New creates a Transferer for backend.
func New(ctx context.Context, backend string, creds Credentials, opts Options) (Transferer, error) {
	opts = opts.WithDefaults()

	switch backend {
	case BackendS3, "":
		return NewS3(ctx, creds, opts)
	case BackendMinio:
		return NewMinio(creds, opts)
	case BackendLocal:
		return NewLocal(opts.Root)
	default:
		return nil, fmt.Errorf("%q: %w", backend, ErrUnknownBackend)
	}
}

// progressReader reports bytes read past the furthest position reached,
// so a body rewound for a retry is not counted twice.
type progressReader struct {
	r        io.ReadSeeker
	pos      int64
	reported int64
	fn       func(int64)
}

func newProgressReader(r io.ReadSeeker, fn func(int64)) io.ReadSeeker {
	if fn == nil {
		return r
	}
	return &progressReader{r: r, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.pos += int64(n)
	if p.pos > p.reported {
		p.fn(p.pos - p.reported)
		p.reported = p.pos
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	p.pos = pos
	return pos, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
