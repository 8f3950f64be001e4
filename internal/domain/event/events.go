package event

import (
	"time"

	"github.com/vertextoedge/filetransfer/internal/domain"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// Event names
const (
	NameDownloadCompleted = "download.completed"
	NameDownloadPaused    = "download.paused"
	NameDownloadFailed    = "download.failed"
	NameUploadCompleted   = "upload.completed"
	NameUploadFailed      = "upload.failed"
	NameTempFilesCleaned  = "maintenance.temp_files_cleaned"
)

// DownloadCompleted is raised when a file has been fully written to its destination
type DownloadCompleted struct {
	BaseEvent
	URL         string
	Destination string
	URI         string
	Size        int64
	Resumed     bool
}

// EventName returns the event name
func (e DownloadCompleted) EventName() string {
	return NameDownloadCompleted
}

// NewDownloadCompleted creates a new DownloadCompleted event
func NewDownloadCompleted(url, destination, uri string, size int64, resumed bool) DownloadCompleted {
	return DownloadCompleted{
		BaseEvent:   BaseEvent{Timestamp: time.Now()},
		URL:         url,
		Destination: destination,
		URI:         uri,
		Size:        size,
		Resumed:     resumed,
	}
}

// DownloadPaused is raised once a paused download's descriptor is stored
type DownloadPaused struct {
	BaseEvent
	URL         string
	Destination string
}

// EventName returns the event name
func (e DownloadPaused) EventName() string {
	return NameDownloadPaused
}

// NewDownloadPaused creates a new DownloadPaused event
func NewDownloadPaused(url, destination string) DownloadPaused {
	return DownloadPaused{
		BaseEvent:   BaseEvent{Timestamp: time.Now()},
		URL:         url,
		Destination: destination,
	}
}

// DownloadFailed is raised when a download or resume ends with an error
type DownloadFailed struct {
	BaseEvent
	URL         string
	Destination string
	Error       string
	Resume      bool
}

// EventName returns the event name
func (e DownloadFailed) EventName() string {
	return NameDownloadFailed
}

// NewDownloadFailed creates a new DownloadFailed event
func NewDownloadFailed(url, destination, err string, resume bool) DownloadFailed {
	return DownloadFailed{
		BaseEvent:   BaseEvent{Timestamp: time.Now()},
		URL:         url,
		Destination: destination,
		Error:       err,
		Resume:      resume,
	}
}

// UploadCompleted is raised when an upload succeeded and its URL is known
type UploadCompleted struct {
	BaseEvent
	LocalPath string
	Endpoint  string
	URL       string
	Size      int64
	Duration  time.Duration
}

// EventName returns the event name
func (e UploadCompleted) EventName() string {
	return NameUploadCompleted
}

// NewUploadCompleted creates a new UploadCompleted event
func NewUploadCompleted(localPath, endpoint, url string, size int64, duration time.Duration) UploadCompleted {
	return UploadCompleted{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		LocalPath: localPath,
		Endpoint:  endpoint,
		URL:       url,
		Size:      size,
		Duration:  duration,
	}
}

// UploadFailed is raised when an upload ends with an error.
// Stage is the last session state reached before the failure.
type UploadFailed struct {
	BaseEvent
	LocalPath string
	Endpoint  string
	Error     string
	Stage     domain.UploadState
}

// EventName returns the event name
func (e UploadFailed) EventName() string {
	return NameUploadFailed
}

// NewUploadFailed creates a new UploadFailed event
func NewUploadFailed(localPath, endpoint, err string, stage domain.UploadState) UploadFailed {
	return UploadFailed{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		LocalPath: localPath,
		Endpoint:  endpoint,
		Error:     err,
		Stage:     stage,
	}
}

// TempFilesCleaned is raised after a maintenance pass removed abandoned temp files
type TempFilesCleaned struct {
	BaseEvent
	Removed  int
	Duration time.Duration
}

// EventName returns the event name
func (e TempFilesCleaned) EventName() string {
	return NameTempFilesCleaned
}

// NewTempFilesCleaned creates a new TempFilesCleaned event
func NewTempFilesCleaned(removed int, duration time.Duration) TempFilesCleaned {
	return TempFilesCleaned{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Removed:   removed,
		Duration:  duration,
	}
}
