package domain

import "time"

// UploadState is the lifecycle state of an upload session
type UploadState string

// Upload states
const (
	UploadStateCreated                UploadState = "created"
	UploadStatePreviousUploadsChecked UploadState = "previous_uploads_checked"
	UploadStateUploading              UploadState = "uploading"
	UploadStateSucceeded              UploadState = "succeeded"
	UploadStateFailed                 UploadState = "failed"
)

// UploadChunkSize is the fixed size of each upload chunk (6 MiB)
const UploadChunkSize int64 = 6 * 1024 * 1024

// UploadRetryDelays is the transport retry schedule: immediate, then 3s, 5s and 10s
var UploadRetryDelays = []time.Duration{
	0,
	3 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// UploadSession is the in-memory state of one upload. It is never persisted;
// the remote protocol's fingerprint discovery is what survives restarts.
type UploadSession struct {
	File      *FileInfo
	Endpoint  string
	Metadata  map[string]string
	Headers   map[string]string
	ChunkSize int64
	State     UploadState
}

// NewUploadSession creates a session in the Created state
func NewUploadSession(file *FileInfo, endpoint string, metadata, headers map[string]string) *UploadSession {
	return &UploadSession{
		File:      file,
		Endpoint:  endpoint,
		Metadata:  metadata,
		Headers:   headers,
		ChunkSize: UploadChunkSize,
		State:     UploadStateCreated,
	}
}

// Transition moves the session to the next state. A session that has
// succeeded or failed keeps its state.
func (s *UploadSession) Transition(next UploadState) {
	if s.Terminal() {
		return
	}
	s.State = next
}

// Terminal returns true once the session has succeeded or failed
func (s *UploadSession) Terminal() bool {
	return s.State == UploadStateSucceeded || s.State == UploadStateFailed
}
