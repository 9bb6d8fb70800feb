// Package upload drives an upload from a built manifest to a terminal
// service status.
//
// The workflow creates an archive, creates an upload for it with the
// manifest, transfers every file to object storage with the temporary
// credentials the upload carries, marks the upload as uploaded and then
// polls until the service reports completed or error.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/blobstore"
	"github.com/sagarc03/bigstash/manifest"
)

// State is a step of the upload workflow.
type State string

// Workflow states in order. Processing repeats until the upload reaches
// Completed or Error.
const (
	StateBuilt          State = "built"
	StateArchiveCreated State = "archive-created"
	StateUploadCreated  State = "upload-created"
	StateTransferring   State = "transferring"
	StateUploaded       State = "uploaded"
	StateProcessing     State = "processing"
	StateCompleted      State = "completed"
	StateError          State = "error"
)

// Event reports a state transition.
type Event struct {
	State   State
	Archive *bigstash.Archive
	Upload  *bigstash.Upload
	// Entry is set for StateTransferring, once per file.
	Entry *manifest.Entry
}

// API is the part of the service client the workflow needs.
type API interface {
	CreateArchive(ctx context.Context, title string, size int64) (*bigstash.Archive, error)
	CreateUpload(ctx context.Context, archive *bigstash.Archive, manifest json.Marshaler) (*bigstash.Upload, error)
	UpdateUploadStatus(ctx context.Context, upload *bigstash.Upload, status string) error
	RefreshUploadStatus(ctx context.Context, upload *bigstash.Upload) (*bigstash.Upload, error)
}

// TransfererFactory builds a transferer from the credentials of one upload.
type TransfererFactory func(ctx context.Context, token bigstash.BucketToken) (blobstore.Transferer, error)

// NewTransfererFactory returns a factory creating backend transferers.
func NewTransfererFactory(backend string, opts blobstore.Options) TransfererFactory {
	return func(ctx context.Context, token bigstash.BucketToken) (blobstore.Transferer, error) {
		return blobstore.New(ctx, backend, CredentialsFromToken(token), opts)
	}
}

// CredentialsFromToken maps a bucket token to blobstore credentials.
func CredentialsFromToken(token bigstash.BucketToken) blobstore.Credentials {
	return blobstore.Credentials{
		AccessKey:    token.TokenAccessKey,
		SecretKey:    token.TokenSecretKey,
		SessionToken: token.TokenSession,
		Region:       token.Region,
	}
}

// Options configures one Run.
type Options struct {
	// NoWait returns after the upload is marked uploaded.
	NoWait bool
	// OnState is called for every transition.
	OnState func(Event)
	// OnProgress receives per-file transfer progress.
	OnProgress ProgressFunc
	// OnRetry is called before every wait between polls.
	OnRetry func(err error, wait time.Duration)
}

// Orchestrator runs uploads.
type Orchestrator struct {
	api         API
	transferers TransfererFactory
	retry       RetryPolicy
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryPolicy replaces the polling policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.retry = p
	}
}

// New creates an Orchestrator.
func New(api API, transferers TransfererFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:         api,
		transferers: transferers,
		retry:       DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run uploads m. It returns the upload in its last known state together
// with any error, so a caller can record how far the workflow got.
func (o *Orchestrator) Run(ctx context.Context, m *manifest.Manifest, opts Options) (*bigstash.Upload, error) {
	if m.Len() == 0 {
		return nil, ErrEmptyManifest
	}

	emit := func(ev Event) { emitState(opts, ev) }
	emit(Event{State: StateBuilt})

	archive, err := o.api.CreateArchive(ctx, m.Title(), m.Size())
	if err != nil {
		return nil, err
	}
	emit(Event{State: StateArchiveCreated, Archive: archive})

	up, err := o.api.CreateUpload(ctx, archive, m)
	if err != nil {
		return nil, err
	}
	if up.Archive == nil {
		up.Archive = archive
	}
	emit(Event{State: StateUploadCreated, Archive: up.Archive, Upload: up})

	if err := o.transfer(ctx, m, up, opts, emit); err != nil {
		return up, err
	}

	if err := o.api.UpdateUploadStatus(ctx, up, bigstash.StatusUploaded); err != nil {
		return up, err
	}
	emit(Event{State: StateUploaded, Archive: up.Archive, Upload: up})

	if opts.NoWait {
		return up, nil
	}

	return o.Wait(ctx, up, opts)
}

func (o *Orchestrator) transfer(ctx context.Context, m *manifest.Manifest, up *bigstash.Upload, opts Options, emit func(Event)) error {
	if up.S3 == nil {
		return ErrNoBucketToken
	}
	token := *up.S3

	transferer, err := o.transferers(ctx, token)
	if err != nil {
		return fmt.Errorf("create transferer: %w", err)
	}

	for _, entry := range m.Entries() {
		emit(Event{State: StateTransferring, Archive: up.Archive, Upload: up, Entry: &entry})

		key := path.Join(token.Prefix, entry.Path)
		progress := NewProgress(entry.OriginalPath, entry.Size, opts.OnProgress)

		err := transferer.Upload(ctx, blobstore.Request{
			LocalPath: entry.OriginalPath,
			Bucket:    token.Bucket,
			Key:       key,
			Progress:  progress.Add,
		})
		if err != nil {
			return classifyTransferError(entry, key, err)
		}

		slog.Debug("file transferred", "path", entry.Path, "key", key, "size", entry.Size)
	}

	return nil
}

func classifyTransferError(entry manifest.Entry, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		p := pathErr.Path
		if p == "" {
			p = entry.OriginalPath
		}
		return &LocalFileError{Path: p, Err: pathErr.Err}
	}

	return &TransferError{Path: entry.OriginalPath, Key: key, Err: err}
}

// Wait polls up until it reaches a terminal status. Transport failures
// and non-terminal statuses are retried; any other error stops polling.
func (o *Orchestrator) Wait(ctx context.Context, up *bigstash.Upload, opts Options) (*bigstash.Upload, error) {
	current := up

	poll := func() error {
		next, err := o.api.RefreshUploadStatus(ctx, current)
		if err != nil {
			if bigstash.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		current = next

		switch current.Status {
		case bigstash.StatusCompleted:
			emitState(opts, Event{State: StateCompleted, Archive: current.Archive, Upload: current})
			return nil
		case bigstash.StatusError:
			emitState(opts, Event{State: StateError, Archive: current.Archive, Upload: current})
			return nil
		default:
			emitState(opts, Event{State: StateProcessing, Archive: current.Archive, Upload: current})
			return errNotTerminal
		}
	}

	notify := func(err error, wait time.Duration) {
		slog.Debug("polling upload", "url", current.URL, "status", current.Status, "wait", wait, "reason", err)
		if opts.OnRetry != nil {
			opts.OnRetry(err, wait)
		}
	}

	if err := backoff.RetryNotify(poll, o.retry.BackOff(ctx), notify); err != nil {
		if errors.Is(err, errNotTerminal) {
			return current, fmt.Errorf("wait for %s: gave up with status %q", current.URL, current.Status)
		}
		return current, err
	}

	return current, nil
}

func emitState(opts Options, ev Event) {
	slog.Debug("upload state", "state", ev.State)
	if opts.OnState != nil {
		opts.OnState(ev)
	}
}
