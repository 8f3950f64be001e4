package domain

// DownloadResult represents the result of a finished download transport run
type DownloadResult struct {
	// URI is the local location of the completed file
	URI string

	// Status is the HTTP status of the final response
	Status int

	// Headers holds the final response headers
	Headers map[string]string

	// BytesWritten is the total size of the completed file
	BytesWritten int64

	// Resumed indicates whether the download continued a previous attempt
	Resumed bool

	// ResumedFrom is the byte position from which the download was resumed
	ResumedFrom int64
}
