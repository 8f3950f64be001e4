// Package downloader drives pausable HTTP downloads and keeps their
// completed and paused records in the transfer state store.
package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/filetransfer/internal/domain"
	"github.com/vertextoedge/filetransfer/internal/domain/event"
	"github.com/vertextoedge/filetransfer/internal/port"
	"github.com/vertextoedge/filetransfer/internal/progress"
)

// Manager starts, pauses and resumes downloads
type Manager struct {
	store      port.KVStore
	transports port.DownloadTransportFactory
	events     event.EventDispatcher
	logger     *zap.Logger
}

// New creates a new download Manager
func New(
	store port.KVStore,
	transports port.DownloadTransportFactory,
	events event.EventDispatcher,
	logger *zap.Logger,
) *Manager {
	if events == nil {
		events = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:      store,
		transports: transports,
		events:     events,
		logger:     logger,
	}
}

// Handle is an in-flight download. It can be paused through the Manager
// and waited on for its final URI.
type Handle struct {
	transport   port.DownloadTransport
	url         string
	destination string
	resume      bool

	done chan struct{}
	uri  string
	err  error

	mu     sync.Mutex
	paused bool
}

// Path returns the destination path the download writes to
func (h *Handle) Path() string {
	return h.transport.Path()
}

// Done is closed once the download has finished, failed or stopped
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the download ends and returns its final URI.
// It returns ctx.Err() if ctx ends first; the download keeps running.
func (h *Handle) Wait(ctx context.Context) (string, error) {
	select {
	case <-h.done:
		return h.uri, h.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// result waits for the worker to map the outcome
func (h *Handle) result() (string, error) {
	<-h.done
	return h.uri, h.err
}

// State reports where the download is in its lifecycle
func (h *Handle) State() domain.DownloadState {
	select {
	case <-h.done:
	default:
		return domain.DownloadStateDownloading
	}

	h.mu.Lock()
	paused := h.paused
	h.mu.Unlock()

	switch {
	case h.err == nil:
		return domain.DownloadStateCompleted
	case paused:
		return domain.DownloadStatePaused
	default:
		return domain.DownloadStateFailed
	}
}

func (h *Handle) setPaused(paused bool) {
	h.mu.Lock()
	h.paused = paused
	h.mu.Unlock()
}

// Download fetches url into destinationPath and returns the final URI.
// Cancelling ctx stops the transfer and surfaces as DownloadFailed.
func (m *Manager) Download(ctx context.Context, url, destinationPath string, onProgress progress.Func) (string, error) {
	return m.Start(ctx, url, destinationPath, nil, onProgress).result()
}

// Start begins a fresh download and returns immediately. options are
// handed to the transport unchanged (request headers for HTTP).
func (m *Manager) Start(ctx context.Context, url, destinationPath string, options map[string]string, onProgress progress.Func) *Handle {
	reporter := progress.NewReporter(onProgress)
	transport := m.transports.NewDownload(url, destinationPath, options, reportFunc(reporter, onProgress), "")

	m.logger.Debug("starting download",
		zap.String("url", url),
		zap.String("path", destinationPath))

	return m.run(ctx, transport, reporter, url, destinationPath, false)
}

// Pause suspends an in-flight download and stores its resume descriptor
// under paused:<path>. Nothing is stored when the transport cannot pause.
func (m *Manager) Pause(ctx context.Context, h *Handle) (bool, error) {
	h.setPaused(true)
	if err := h.transport.Pause(ctx); err != nil {
		h.setPaused(false)
		return false, domain.NewTransferError(domain.KindPauseFailed, err)
	}

	snapshot := h.transport.Snapshot()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return false, domain.NewTransferError(domain.KindPauseFailed, err)
	}
	if err := m.store.Put(ctx, domain.PausedKey(h.Path()), string(data)); err != nil {
		return false, domain.NewTransferError(domain.KindPauseFailed, err)
	}

	m.logger.Info("download paused",
		zap.String("url", snapshot.URL),
		zap.String("path", h.Path()))
	m.events.Dispatch(event.NewDownloadPaused(snapshot.URL, h.Path()))

	return true, nil
}

// Resume continues a paused download and returns the final URI
func (m *Manager) Resume(ctx context.Context, destinationPath string, onProgress progress.Func) (string, error) {
	h, err := m.StartResume(ctx, destinationPath, onProgress)
	if err != nil {
		return "", err
	}
	return h.result()
}

// StartResume rebuilds a transport from the stored descriptor and starts it.
// The paused record is left in place.
func (m *Manager) StartResume(ctx context.Context, destinationPath string, onProgress progress.Func) (*Handle, error) {
	desc, ok, err := m.PausedDescriptor(ctx, destinationPath)
	if err != nil {
		return nil, domain.NewTransferError(domain.KindResumeFailed, err)
	}
	if !ok {
		return nil, domain.NewTransferError(domain.KindResumeFailed, domain.ErrNoPausedDownload)
	}

	reporter := progress.NewReporter(onProgress)
	transport := m.transports.NewDownload(desc.URL, desc.DestinationPath, desc.Options, reportFunc(reporter, onProgress), desc.ResumeToken)

	m.logger.Debug("resuming download",
		zap.String("url", desc.URL),
		zap.String("path", destinationPath))

	return m.run(ctx, transport, reporter, desc.URL, destinationPath, true), nil
}

// CompletedURI returns the final URI of the last successful download to destinationPath
func (m *Manager) CompletedURI(ctx context.Context, destinationPath string) (string, bool, error) {
	value, ok, err := m.store.Get(ctx, domain.CompletedKey(destinationPath))
	if err != nil || !ok {
		return "", false, err
	}
	var record domain.CompletedRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return "", false, fmt.Errorf("malformed completed record for %s: %w", destinationPath, err)
	}
	return record.URI, true, nil
}

// PausedDescriptor returns the stored resume descriptor for destinationPath
func (m *Manager) PausedDescriptor(ctx context.Context, destinationPath string) (*domain.ResumeDescriptor, bool, error) {
	value, ok, err := m.store.Get(ctx, domain.PausedKey(destinationPath))
	if err != nil || !ok {
		return nil, false, err
	}
	var desc domain.ResumeDescriptor
	if err := json.Unmarshal([]byte(value), &desc); err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrInvalidResumeData, err)
	}
	return &desc, true, nil
}

func (m *Manager) run(
	ctx context.Context,
	transport port.DownloadTransport,
	reporter *progress.Reporter,
	url, destinationPath string,
	resume bool,
) *Handle {
	h := &Handle{
		transport:   transport,
		url:         url,
		destination: destinationPath,
		resume:      resume,
		done:        make(chan struct{}),
	}

	go func() {
		defer close(h.done)

		var result *domain.DownloadResult
		var err error
		if resume {
			result, err = transport.Resume(ctx)
		} else {
			result, err = transport.Start(ctx)
		}

		// No progress may reach the caller after the outcome
		reporter.Close()

		h.uri, h.err = m.finish(ctx, h, result, err)
	}()

	return h
}

func (m *Manager) finish(ctx context.Context, h *Handle, result *domain.DownloadResult, err error) (string, error) {
	failKind := domain.KindDownloadFailed
	if h.resume {
		failKind = domain.KindResumeFailed
	}

	if err != nil {
		m.logger.Warn("download failed",
			zap.String("url", h.url),
			zap.String("path", h.destination),
			zap.Error(err))
		m.events.Dispatch(event.NewDownloadFailed(h.url, h.destination, err.Error(), h.resume))
		return "", domain.NewTransferError(failKind, err)
	}

	if result == nil {
		if h.resume {
			return "", domain.ResumeNoResultError()
		}
		return "", domain.NewTransferError(domain.KindDownloadIncomplete, domain.ErrNoResult)
	}

	data, err := json.Marshal(domain.CompletedRecord{URI: result.URI})
	if err == nil {
		err = m.store.Put(ctx, domain.CompletedKey(h.destination), string(data))
	}
	if err != nil {
		return "", domain.NewTransferError(failKind, fmt.Errorf("failed to record completion: %w", err))
	}

	m.events.Dispatch(event.NewDownloadCompleted(h.url, h.destination, result.URI, result.BytesWritten, result.Resumed))
	return result.URI, nil
}

// reportFunc adapts a reporter to the transport callback, or returns nil
// when the caller did not ask for progress
func reportFunc(r *progress.Reporter, fn progress.Func) port.DownloadProgressFunc {
	if fn == nil {
		return nil
	}
	return r.Report
}

// IsPaused reports whether err is the outcome of a download stopped by Pause
func IsPaused(h *Handle, err error) bool {
	return h.State() == domain.DownloadStatePaused && errors.Is(err, domain.ErrNoResult)
}
