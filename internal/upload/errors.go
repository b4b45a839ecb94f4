package upload

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrFileTooLarge is returned when a payload exceeds the configured per-file limit.
var ErrFileTooLarge = errors.New("file exceeds the configured size limit")

// Kind classifies a failure that aborts an upload batch.
type Kind int

const (
	KindFileTooLarge Kind = iota + 1
	KindInvalidFileType
	KindProcessing
	KindInternal
)

// String returns the machine-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFileTooLarge:
		return "file_too_large"
	case KindInvalidFileType:
		return "invalid_file_type"
	case KindProcessing:
		return "processing_failed"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StatusCode maps the kind to the HTTP status reported to the client.
func (k Kind) StatusCode() int {
	switch k {
	case KindFileTooLarge, KindInvalidFileType, KindProcessing:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a batch-aborting failure tied to the file that triggered it.
type Error struct {
	Kind     Kind
	Filename string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for the error's kind.
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

func errTooLarge(filename string, cause error) *Error {
	return &Error{
		Kind:     KindFileTooLarge,
		Filename: filename,
		Detail:   fmt.Sprintf("File %s is too large to process.", filename),
		Err:      cause,
	}
}

func errInvalidFileType(filename string) *Error {
	return &Error{
		Kind:     KindInvalidFileType,
		Filename: filename,
		Detail:   fmt.Sprintf("File %s is not a valid text file.", filename),
	}
}

func errProcessing(filename string, cause error) *Error {
	return &Error{
		Kind:     KindProcessing,
		Filename: filename,
		Detail:   fmt.Sprintf("Failed to process file %s: %v", filename, cause),
		Err:      cause,
	}
}

func errInternal(filename string, cause error) *Error {
	return &Error{
		Kind:     KindInternal,
		Filename: filename,
		Detail:   fmt.Sprintf("unexpected fault while processing file %s: %v", filename, cause),
		Err:      cause,
	}
}

// sourceError converts a failure to produce the next item. Errors already
// tied to a file pass through.
func sourceError(last string, err error) *Error {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr
	}
	if isTooLarge(err) {
		if last == "" {
			return &Error{Kind: KindFileTooLarge, Detail: "Upload is too large to process.", Err: err}
		}
		return errTooLarge(last, err)
	}
	return errProcessing(last, err)
}

// isTooLarge reports whether err came from a read limit, either ours or the
// one the HTTP layer installs on the request body.
func isTooLarge(err error) bool {
	if errors.Is(err, ErrFileTooLarge) {
		return true
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code == http.StatusRequestEntityTooLarge
	}
	return false
}
