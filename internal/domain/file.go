package domain

import (
	"time"
)

// DefaultMimeType is reported when the content type cannot be detected
const DefaultMimeType = "application/octet-stream"

// FileInfo is the result of probing a local path.
// A missing file is a normal result with Exists set to false.
type FileInfo struct {
	URI      string
	Exists   bool
	Size     int64
	Name     string
	MimeType string
	ModTime  time.Time
}

// Missing returns a probe result for a path that does not exist
func Missing(uri, name string) *FileInfo {
	return &FileInfo{
		URI:      uri,
		Exists:   false,
		Name:     name,
		MimeType: DefaultMimeType,
	}
}
