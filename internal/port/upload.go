package port

import (
	"context"
	"net/http"
	"time"

	"github.com/vertextoedge/filetransfer/internal/domain"
)

// PreviousUpload is an upload session found through fingerprint discovery
type PreviousUpload struct {
	Size          int64             `json:"size"`
	Metadata      map[string]string `json:"metadata"`
	CreationTime  time.Time         `json:"creationTime"`
	URLStorageKey string            `json:"-"`
	UploadURL     string            `json:"uploadUrl"`
}

// UploadOptions configures one upload transport
type UploadOptions struct {
	Endpoint                   string
	UploadSize                 int64
	RetryDelays                []time.Duration
	UploadDataDuringCreation   bool
	RemoveFingerprintOnSuccess bool
	Metadata                   map[string]string
	Headers                    map[string]string
	ChunkSize                  int64

	// OnProgress is called with acknowledged and total bytes
	OnProgress func(bytesSent, bytesTotal int64)

	// OnSuccess is called once when the upload is complete
	OnSuccess func()

	// OnError is called once when the upload failed and retries are exhausted
	OnError func(err error)

	// OnAfterResponse observes every response received by the transport
	OnAfterResponse func(req *http.Request, resp *http.Response)
}

// UploadTransport drives one chunked resumable upload
type UploadTransport interface {
	// FindPreviousUploads returns sessions stored for the same fingerprint
	FindPreviousUploads(ctx context.Context) ([]PreviousUpload, error)

	// ResumeFromPreviousUpload makes the next Start continue the given session
	ResumeFromPreviousUpload(previous PreviousUpload)

	// Start begins the exchange. It returns immediately; the outcome is
	// delivered through OnSuccess or OnError.
	Start(ctx context.Context)

	// Abort stops an in-flight exchange. No callback fires afterwards
	Abort(ctx context.Context) error

	// URL returns the upload URL once the session is known
	URL() string
}

// UploadTransportFactory builds upload transports
type UploadTransportFactory interface {
	NewUpload(file *domain.FileInfo, opts UploadOptions) (UploadTransport, error)
}

// Permission names a capability checked before touching local media
type Permission string

// Known permissions
const (
	PermissionCamera       Permission = "CAMERA"
	PermissionMediaLibrary Permission = "MEDIA_LIBRARY"
)

// PermissionGate is the external capability check. A denied permission is
// reported as an error naming the reason.
type PermissionGate interface {
	Check(ctx context.Context, permissions ...Permission) error
}
