package port

import (
	"io"
	"time"

	"github.com/vertextoedge/filetransfer/internal/domain"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// FileProber inspects local paths.
type FileProber interface {
	// Probe returns existence, size, name and MIME type of a local path.
	// A missing file is reported with Exists=false and a nil error.
	Probe(path string) (*domain.FileInfo, error)
}

// FileSystem defines the interface for local filesystem operations
type FileSystem interface {
	FileProber

	// RootDir returns the default download directory
	RootDir() string

	// Resolve returns the absolute local path for a destination
	Resolve(destinationPath string) string

	// TempPath returns the in-progress path for a destination
	TempPath(destinationPath string) string

	// WriteFileWithResume writes content with optional resume support
	// If resume is true and tempPath exists, it will append to it
	// Returns: final path, total bytes written, error
	WriteFileWithResume(destinationPath string, reader io.Reader, resume bool, tempPath string) (string, int64, error)

	// DeleteFile removes a file
	DeleteFile(path string) error

	// FileExists checks if a file exists
	FileExists(path string) bool

	// GetTempFileInfo returns size and modification time of a temp file
	// Returns an error if the file doesn't exist
	GetTempFileInfo(tempPath string) (int64, time.Time, error)

	// DeleteTempFile removes a temporary file
	DeleteTempFile(tempPath string) error

	// GetDiskUsage returns disk usage statistics for the filesystem holding dir
	GetDiskUsage(dir string) (*DiskUsage, error)

	// CleanOldTempFiles removes temp files under the root directory older than
	// the specified duration for which keep returns false.
	// Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration, keep func(tempPath string) bool) (int, error)
}
