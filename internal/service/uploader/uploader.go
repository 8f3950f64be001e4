// Package uploader drives chunked resumable uploads of local files.
package uploader

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/filetransfer/internal/domain"
	"github.com/vertextoedge/filetransfer/internal/domain/event"
	"github.com/vertextoedge/filetransfer/internal/port"
	"github.com/vertextoedge/filetransfer/internal/progress"
)

// CustomUploadLinkHeader carries a final URL that overrides the upload URL
const CustomUploadLinkHeader = "X-Custom-Upload-Link"

// Config contains upload tuning
type Config struct {
	RetryDelays []time.Duration
	ChunkSize   int64
}

// DefaultConfig returns the standard retry schedule and chunk size
func DefaultConfig() *Config {
	return &Config{
		RetryDelays: domain.UploadRetryDelays,
		ChunkSize:   domain.UploadChunkSize,
	}
}

// Manager uploads local files to resumable upload endpoints
type Manager struct {
	config     *Config
	prober     port.FileProber
	transports port.UploadTransportFactory
	gate       port.PermissionGate
	events     event.EventDispatcher
	logger     *zap.Logger
}

// New creates a new upload Manager. gate may be nil when no capability
// check is needed.
func New(
	cfg *Config,
	prober port.FileProber,
	transports port.UploadTransportFactory,
	gate port.PermissionGate,
	events event.EventDispatcher,
	logger *zap.Logger,
) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = domain.UploadChunkSize
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		config:     cfg,
		prober:     prober,
		transports: transports,
		gate:       gate,
		events:     events,
		logger:     logger,
	}
}

// FileName returns the last path segment, or "unknown" when it is empty
func FileName(localPath string) string {
	name := localPath
	if idx := strings.LastIndex(localPath, "/"); idx >= 0 {
		name = localPath[idx+1:]
	}
	if name == "" {
		return "unknown"
	}
	return name
}

// Upload sends localPath to endpoint and returns the final URL.
// Caller metadata is merged over the derived filename and filetype keys.
// Cancelling ctx aborts the upload.
func (m *Manager) Upload(
	ctx context.Context,
	localPath, endpoint string,
	metadata, headers map[string]string,
	onProgress progress.Func,
) (string, error) {
	started := time.Now()

	if m.gate != nil {
		if err := m.gate.Check(ctx, port.PermissionMediaLibrary); err != nil {
			return "", m.fail(nil, localPath, endpoint, domain.NewTransferError(domain.KindUploadSetupFailed, err))
		}
	}

	file, err := m.prober.Probe(localPath)
	if err != nil {
		return "", m.fail(nil, localPath, endpoint, domain.NewTransferError(domain.KindUploadSetupFailed, err))
	}
	if !file.Exists {
		return "", m.fail(nil, localPath, endpoint, domain.NewTransferError(domain.KindUploadSetupFailed, domain.ErrFileNotExist))
	}

	merged := map[string]string{
		"filename": FileName(localPath),
		"filetype": file.MimeType,
	}
	for k, v := range metadata {
		merged[k] = v
	}
	session := domain.NewUploadSession(file, endpoint, merged, headers)
	session.ChunkSize = m.config.ChunkSize

	reporter := progress.NewReporter(onProgress)
	defer reporter.Close()

	outcome := make(chan error, 1)
	var once sync.Once
	settle := func(err error) {
		once.Do(func() { outcome <- err })
	}

	var linkMu sync.Mutex
	var customLink string

	opts := port.UploadOptions{
		Endpoint:                   endpoint,
		UploadSize:                 file.Size,
		RetryDelays:                m.config.RetryDelays,
		UploadDataDuringCreation:   true,
		RemoveFingerprintOnSuccess: true,
		Metadata:                   session.Metadata,
		Headers:                    session.Headers,
		ChunkSize:                  session.ChunkSize,
		OnSuccess:                  func() { settle(nil) },
		OnError:                    func(err error) { settle(err) },
		OnAfterResponse: func(_ *http.Request, resp *http.Response) {
			if resp == nil {
				return
			}
			if link := resp.Header.Get(CustomUploadLinkHeader); link != "" {
				linkMu.Lock()
				customLink = link
				linkMu.Unlock()
			}
		},
	}
	if onProgress != nil {
		opts.OnProgress = reporter.Report
	}

	transport, err := m.transports.NewUpload(file, opts)
	if err != nil {
		return "", m.fail(session, localPath, endpoint, domain.NewTransferError(domain.KindUploadSetupFailed, err))
	}

	previous, err := transport.FindPreviousUploads(ctx)
	if err != nil {
		return "", m.fail(session, localPath, endpoint, domain.NewTransferError(domain.KindUploadFailed, err))
	}
	if len(previous) > 0 {
		m.logger.Info("resuming previous upload",
			zap.String("path", localPath),
			zap.String("upload_url", previous[0].UploadURL),
			zap.Int("candidates", len(previous)))
		transport.ResumeFromPreviousUpload(previous[0])
	}
	session.Transition(domain.UploadStatePreviousUploadsChecked)

	m.logger.Debug("starting upload",
		zap.String("path", localPath),
		zap.String("endpoint", endpoint),
		zap.Int64("size", file.Size))

	transport.Start(ctx)
	session.Transition(domain.UploadStateUploading)

	err = m.await(ctx, transport, outcome, localPath)

	// No progress may reach the caller after the outcome
	reporter.Close()

	if err != nil {
		return "", m.fail(session, localPath, endpoint, domain.NewTransferError(domain.KindUploadFailed, err))
	}

	linkMu.Lock()
	url := customLink
	linkMu.Unlock()
	if url == "" {
		url = transport.URL()
	}
	if url == "" {
		return "", m.fail(session, localPath, endpoint, domain.NewTransferError(domain.KindUploadSucceededNoURL, domain.ErrNoUploadURL))
	}

	session.Transition(domain.UploadStateSucceeded)
	m.events.Dispatch(event.NewUploadCompleted(localPath, endpoint, url, file.Size, time.Since(started)))
	return url, nil
}

// await waits for the transport outcome. A cancelled ctx aborts the
// transport unless an outcome is already available.
func (m *Manager) await(ctx context.Context, transport port.UploadTransport, outcome <-chan error, localPath string) error {
	select {
	case err := <-outcome:
		return err
	case <-ctx.Done():
	}

	select {
	case err := <-outcome:
		return err
	default:
	}

	if err := transport.Abort(context.Background()); err != nil {
		m.logger.Warn("failed to abort upload", zap.String("path", localPath), zap.Error(err))
	}

	// The transport may have settled just before the abort took hold
	select {
	case err := <-outcome:
		return err
	default:
	}
	return fmt.Errorf("%w: %w", domain.ErrUploadAborted, ctx.Err())
}

// fail records the failure on the session and raises UploadFailed.
// session is nil for failures before the file was probed.
func (m *Manager) fail(session *domain.UploadSession, localPath, endpoint string, err error) error {
	stage := domain.UploadStateCreated
	if session != nil {
		stage = session.State
		session.Transition(domain.UploadStateFailed)
	}
	m.events.Dispatch(event.NewUploadFailed(localPath, endpoint, err.Error(), stage))
	return err
}
