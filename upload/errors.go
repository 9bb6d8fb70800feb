package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyManifest is returned by Run for a manifest without files.
	ErrEmptyManifest = errors.New("manifest has no files")
	// ErrNoBucketToken is returned when the service created an upload
	// without object storage credentials.
	ErrNoBucketToken = errors.New("upload has no bucket token")
	// errNotTerminal marks a poll that must be repeated.
	errNotTerminal = errors.New("upload still processing")
)

// LocalFileError is a failure reading a local file during transfer.
type LocalFileError struct {
	Path string
	Err  error
}

func (e *LocalFileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LocalFileError) Unwrap() error { return e.Err }

// TransferError is a failure sending a file to object storage.
type TransferError struct {
	Path string
	Key  string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s to %s: %v", e.Path, e.Key, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
