package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/sagarc03/bigstash"
	"github.com/sagarc03/bigstash/upload"
)

// Exit codes.
const (
	exitOK           = 0
	exitUnexpected   = 1
	exitService      = 2
	exitLocalIO      = 3
	exitInvalidFiles = 4
	exitNoFiles      = 5
)

// exitError ends the process with code. A nil err means the command has
// already told the user what happened.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode maps err to a process exit code.
func exitCode(err error) int {
	var (
		ee      *exitError
		local   *upload.LocalFileError
		pathErr *fs.PathError
		xfer    *upload.TransferError
		apiErr  *bigstash.APIError
	)

	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ee):
		return ee.code
	case errors.As(err, &local), errors.As(err, &pathErr):
		return exitLocalIO
	case bigstash.IsServiceError(err), errors.As(err, &apiErr), errors.As(err, &xfer), errors.Is(err, upload.ErrNoBucketToken):
		return exitService
	default:
		return exitUnexpected
	}
}
