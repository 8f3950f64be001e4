package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientSpace = errors.New("insufficient space")

	// Download errors
	ErrNoResult          = errors.New("No result returned")
	ErrNoPausedDownload  = errors.New("No paused download found")
	ErrNotRunning        = errors.New("download is not in progress")
	ErrAlreadyRunning    = errors.New("download is already in progress")
	ErrInvalidResumeData = errors.New("invalid resume token")

	// Upload errors
	ErrFileNotExist  = errors.New("File does not exist")
	ErrNoUploadURL   = errors.New("Upload succeeded but no URL was provided")
	ErrUploadAborted = errors.New("upload aborted")
)

// Kind classifies a failed transfer operation.
type Kind int

const (
	KindUnknown Kind = iota
	KindDownloadIncomplete
	KindDownloadFailed
	KindPauseFailed
	KindResumeFailed
	KindUploadSetupFailed
	KindUploadFailed
	KindUploadSucceededNoURL
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindDownloadIncomplete:
		return "DownloadIncomplete"
	case KindDownloadFailed:
		return "DownloadFailed"
	case KindPauseFailed:
		return "PauseFailed"
	case KindResumeFailed:
		return "ResumeFailed"
	case KindUploadSetupFailed:
		return "UploadSetupFailed"
	case KindUploadFailed:
		return "UploadFailed"
	case KindUploadSucceededNoURL:
		return "UploadSucceededNoUrl"
	default:
		return "Unknown"
	}
}

// prefix is the human readable operation label used in error messages.
func (k Kind) prefix() string {
	switch k {
	case KindDownloadIncomplete, KindDownloadFailed:
		return "Download failed"
	case KindPauseFailed:
		return "Failed to pause download"
	case KindResumeFailed:
		return "Failed to resume download"
	case KindUploadSetupFailed:
		return "Upload setup failed"
	case KindUploadFailed:
		return "Upload failed"
	default:
		return ""
	}
}

// TransferError is the single error type returned by the transfer managers.
// The message always embeds the causal error's message.
type TransferError struct {
	Kind Kind
	Err  error
}

// Error returns the error message
func (e *TransferError) Error() string {
	prefix := e.Kind.prefix()
	switch {
	case prefix != "" && e.Err != nil:
		return prefix + ": " + e.Err.Error()
	case prefix != "":
		return prefix
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "transfer error"
	}
}

// Unwrap returns the underlying error
func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransferError creates a new transfer error
func NewTransferError(kind Kind, err error) *TransferError {
	return &TransferError{Kind: kind, Err: err}
}

// KindOf returns the kind of the first TransferError in err's chain,
// or KindUnknown if there is none.
func KindOf(err error) Kind {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// IsKind returns true if err carries a TransferError of the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// errResumeNoResult is the empty-result cause reported by resume.
var errResumeNoResult = fmt.Errorf("Resume failed: %w", ErrNoResult)

// ResumeNoResultError returns the ResumeFailed error for a transport that
// finished without a result.
func ResumeNoResultError() *TransferError {
	return NewTransferError(KindResumeFailed, errResumeNoResult)
}
