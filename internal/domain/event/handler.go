package event

import (
	"sync"

	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case DownloadCompleted:
		h.logger.Info("download completed",
			zap.String("url", e.URL),
			zap.String("destination", e.Destination),
			zap.String("uri", e.URI),
			zap.Int64("size", e.Size),
			zap.Bool("resumed", e.Resumed),
		)
	case DownloadPaused:
		h.logger.Info("download paused",
			zap.String("url", e.URL),
			zap.String("destination", e.Destination),
		)
	case DownloadFailed:
		h.logger.Warn("download failed",
			zap.String("url", e.URL),
			zap.String("destination", e.Destination),
			zap.String("error", e.Error),
			zap.Bool("resume", e.Resume),
		)
	case UploadCompleted:
		h.logger.Info("upload completed",
			zap.String("local_path", e.LocalPath),
			zap.String("endpoint", e.Endpoint),
			zap.String("url", e.URL),
			zap.Int64("size", e.Size),
			zap.Duration("duration", e.Duration),
		)
	case UploadFailed:
		h.logger.Warn("upload failed",
			zap.String("local_path", e.LocalPath),
			zap.String("endpoint", e.Endpoint),
			zap.String("error", e.Error),
			zap.String("stage", string(e.Stage)),
		)
	case TempFilesCleaned:
		h.logger.Info("temp files cleaned",
			zap.Int("removed", e.Removed),
			zap.Duration("duration", e.Duration),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"} // Handle all events
}

// StatsHandler counts transfer outcomes
type StatsHandler struct {
	mu                 sync.Mutex
	downloadsCompleted int64
	downloadsPaused    int64
	downloadsFailed    int64
	uploadsCompleted   int64
	uploadsFailed      int64
	bytesDownloaded    int64
	bytesUploaded      int64
	tempFilesRemoved   int64
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler() *StatsHandler {
	return &StatsHandler{}
}

// Handle updates counters based on the event
func (h *StatsHandler) Handle(event DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch e := event.(type) {
	case DownloadCompleted:
		h.downloadsCompleted++
		h.bytesDownloaded += e.Size
	case DownloadPaused:
		h.downloadsPaused++
	case DownloadFailed:
		h.downloadsFailed++
	case UploadCompleted:
		h.uploadsCompleted++
		h.bytesUploaded += e.Size
	case UploadFailed:
		h.uploadsFailed++
	case TempFilesCleaned:
		h.tempFilesRemoved += int64(e.Removed)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *StatsHandler) HandledEvents() []string {
	return []string{
		NameDownloadCompleted,
		NameDownloadPaused,
		NameDownloadFailed,
		NameUploadCompleted,
		NameUploadFailed,
		NameTempFilesCleaned,
	}
}

// GetStats returns current counters
func (h *StatsHandler) GetStats() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return map[string]int64{
		"downloads_completed": h.downloadsCompleted,
		"downloads_paused":    h.downloadsPaused,
		"downloads_failed":    h.downloadsFailed,
		"uploads_completed":   h.uploadsCompleted,
		"uploads_failed":      h.uploadsFailed,
		"bytes_downloaded":    h.bytesDownloaded,
		"bytes_uploaded":      h.bytesUploaded,
		"temp_files_removed":  h.tempFilesRemoved,
	}
}
