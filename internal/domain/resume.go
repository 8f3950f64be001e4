package domain

// Store key prefixes for download state
const (
	CompletedKeyPrefix = "download:"
	PausedKeyPrefix    = "paused:"
)

// CompletedKey returns the store key of the completed record for a destination
func CompletedKey(destinationPath string) string {
	return CompletedKeyPrefix + destinationPath
}

// PausedKey returns the store key of the resume descriptor for a destination
func PausedKey(destinationPath string) string {
	return PausedKeyPrefix + destinationPath
}

// ResumeDescriptor is the persisted snapshot that lets a paused download
// continue without restarting from byte zero.
type ResumeDescriptor struct {
	URL             string            `json:"url"`
	DestinationPath string            `json:"destinationPath"`
	Options         map[string]string `json:"options"`
	ResumeToken     string            `json:"resumeToken,omitempty"`
}

// CompletedRecord is stored after the most recent successful attempt
type CompletedRecord struct {
	URI string `json:"uri"`
}

// DownloadState is the per-destination download state
type DownloadState string

// Download states
const (
	DownloadStateIdle        DownloadState = "idle"
	DownloadStateDownloading DownloadState = "downloading"
	DownloadStateCompleted   DownloadState = "completed"
	DownloadStatePaused      DownloadState = "paused"
	DownloadStateFailed      DownloadState = "failed"
)
