package port

import (
	"context"

	"github.com/vertextoedge/filetransfer/internal/domain"
)

// DownloadProgressFunc receives raw byte counters from a download transport.
// bytesExpected is negative when the total size is unknown.
type DownloadProgressFunc func(bytesWritten, bytesExpected int64)

// DownloadTransport moves one remote byte stream into one local file
type DownloadTransport interface {
	// Path returns the destination path the transport is bound to
	Path() string

	// Start downloads from byte zero. A nil result with a nil error means the
	// transfer stopped without completing (for example, it was paused).
	Start(ctx context.Context) (*domain.DownloadResult, error)

	// Resume continues from the transport's resume token
	Resume(ctx context.Context) (*domain.DownloadResult, error)

	// Pause suspends the in-flight transfer and captures a resume token
	Pause(ctx context.Context) error

	// Snapshot returns everything needed to rebuild this transport later
	Snapshot() domain.ResumeDescriptor
}

// DownloadTransportFactory builds download transports
type DownloadTransportFactory interface {
	NewDownload(url, destinationPath string, options map[string]string, onProgress DownloadProgressFunc, resumeToken string) DownloadTransport
}
