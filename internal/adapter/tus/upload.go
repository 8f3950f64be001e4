package tus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bdragon300/tusgo"
	"go.uber.org/zap"

	"github.com/vertextoedge/filetransfer/internal/domain"
	"github.com/vertextoedge/filetransfer/internal/port"
)

// Upload is one tus upload session
type Upload struct {
	client      *Client
	file        *domain.FileInfo
	opts        port.UploadOptions
	fingerprint string

	mu            sync.Mutex
	url           string
	urlStorageKey string
	offset        int64
	running       bool
	aborted       bool
	cancel        context.CancelFunc
	done          chan struct{}
}

// Ensure Upload implements port.UploadTransport
var _ port.UploadTransport = (*Upload)(nil)

// FindPreviousUploads returns uploads stored under this file's fingerprint
func (u *Upload) FindPreviousUploads(ctx context.Context) ([]port.PreviousUpload, error) {
	if u.client.urls == nil {
		return nil, nil
	}
	return u.client.urls.FindUploadsByFingerprint(ctx, u.fingerprint)
}

// ResumeFromPreviousUpload makes the next Start continue the given session
func (u *Upload) ResumeFromPreviousUpload(previous port.PreviousUpload) {
	u.mu.Lock()
	u.url = previous.UploadURL
	u.urlStorageKey = previous.URLStorageKey
	u.mu.Unlock()
}

// URL returns the upload URL once the session has been created or resumed
func (u *Upload) URL() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.url
}

// Start runs the upload in the background
func (u *Upload) Start(ctx context.Context) {
	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	u.running = true
	u.aborted = false
	u.cancel = cancel
	u.done = make(chan struct{})
	done := u.done
	u.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		err := u.perform(runCtx)

		u.mu.Lock()
		u.running = false
		aborted := u.aborted
		u.mu.Unlock()

		if aborted {
			return
		}
		if err != nil {
			u.client.logger.Warn("upload failed",
				zap.String("file", u.file.URI),
				zap.String("endpoint", u.opts.Endpoint),
				zap.Error(err))
			if u.opts.OnError != nil {
				u.opts.OnError(err)
			}
			return
		}
		if u.opts.OnSuccess != nil {
			u.opts.OnSuccess()
		}
	}()
}

// Abort stops the running exchange and waits for it to exit.
// Stored upload URLs are kept so the session can be resumed later.
func (u *Upload) Abort(ctx context.Context) error {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return nil
	}
	u.aborted = true
	cancel, done := u.cancel, u.done
	u.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// perform runs attempts until success, a final error, or exhausted retries
func (u *Upload) perform(ctx context.Context) error {
	f, err := os.Open(strings.TrimPrefix(u.file.URI, "file://"))
	if err != nil {
		return fmt.Errorf("tus: failed to open file: %w", err)
	}
	defer f.Close()

	ex, err := u.client.newExchange(ctx, u.opts)
	if err != nil {
		return err
	}

	attempt := 0
	lastOffset := u.currentOffset()
	for {
		err := u.attempt(ctx, ex, f)
		if err == nil {
			u.finish(ctx)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Progress since the last failure earns a fresh retry schedule
		if off := u.currentOffset(); off > lastOffset {
			attempt = 0
			lastOffset = off
		}

		if !shouldRetry(err) || attempt >= len(u.opts.RetryDelays) {
			return err
		}
		delay := u.opts.RetryDelays[attempt]
		attempt++

		u.client.logger.Debug("retrying upload",
			zap.String("file", u.file.URI),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// attempt makes sure a session exists then sends the remaining chunks
func (u *Upload) attempt(ctx context.Context, ex *exchange, f io.ReaderAt) error {
	if u.URL() == "" {
		if err := u.create(ctx, ex, f); err != nil {
			return err
		}
	} else {
		recreate, err := u.fetchOffset(ctx, ex)
		if err != nil {
			return err
		}
		if recreate {
			if err := u.create(ctx, ex, f); err != nil {
				return err
			}
		}
	}
	return u.sendChunks(ex, f)
}

// create opens a new session on the server, optionally carrying the first chunk
func (u *Upload) create(ctx context.Context, ex *exchange, f io.ReaderAt) error {
	var remote tusgo.Upload
	var offset int64

	if u.opts.UploadDataDuringCreation && u.opts.UploadSize > 0 {
		chunk, err := readChunk(f, 0, u.chunkLength(0))
		if err != nil {
			return err
		}
		sent, _, err := ex.tus.CreateUploadWithData(&remote, chunk, u.opts.UploadSize, false, u.opts.Metadata)
		if err != nil {
			return ex.wrap("create", err)
		}
		if sent < 0 || sent > int64(len(chunk)) {
			return ErrMissingOffset
		}
		offset = sent
	} else {
		if _, err := ex.tus.CreateUpload(&remote, u.opts.UploadSize, false, u.opts.Metadata); err != nil {
			return ex.wrap("create", err)
		}
	}

	if remote.Location == "" {
		return ErrMissingLocation
	}
	uploadURL, err := resolveLocation(u.opts.Endpoint, remote.Location)
	if err != nil {
		return err
	}

	u.mu.Lock()
	u.url = uploadURL
	u.offset = offset
	u.mu.Unlock()

	u.client.logger.Debug("created upload",
		zap.String("file", u.file.URI),
		zap.String("url", uploadURL))

	u.storeURL(ctx, uploadURL)
	if offset > 0 {
		u.reportProgress(offset)
	}
	return nil
}

// fetchOffset asks the server how much of a known session it holds.
// It returns true when the session is gone and must be created again.
func (u *Upload) fetchOffset(ctx context.Context, ex *exchange) (bool, error) {
	var remote tusgo.Upload
	if _, err := ex.tus.GetUpload(&remote, u.URL()); err != nil {
		respErr := ex.hook.lastError()
		if respErr == nil || respErr.StatusCode == http.StatusLocked {
			return false, ex.wrap("offset request", err)
		}
		u.client.logger.Info("previous upload unavailable, creating a new one",
			zap.String("url", u.URL()),
			zap.Int("status", respErr.StatusCode))
		u.forgetURL(ctx)
		return true, nil
	}

	if remote.RemoteSize >= 0 && remote.RemoteSize != u.opts.UploadSize {
		u.client.logger.Info("previous upload has a different length, creating a new one",
			zap.Int64("remote_length", remote.RemoteSize),
			zap.Int64("local_length", u.opts.UploadSize))
		u.forgetURL(ctx)
		return true, nil
	}
	if remote.RemoteOffset < 0 || remote.RemoteOffset > u.opts.UploadSize {
		return false, ErrMissingOffset
	}

	u.mu.Lock()
	u.offset = remote.RemoteOffset
	u.mu.Unlock()

	u.client.logger.Info("resuming upload",
		zap.String("url", u.URL()),
		zap.Int64("offset", remote.RemoteOffset))
	u.reportProgress(remote.RemoteOffset)
	return false, nil
}

// sendChunks streams the file from the current offset to the end, one
// chunk per request
func (u *Upload) sendChunks(ex *exchange, f io.ReaderAt) error {
	remote := &tusgo.Upload{
		Location:     u.URL(),
		RemoteSize:   u.opts.UploadSize,
		RemoteOffset: u.currentOffset(),
	}
	stream := tusgo.NewUploadStream(ex.tus, remote)
	stream.ChunkSize = u.opts.ChunkSize

	for {
		offset := remote.RemoteOffset
		if offset >= u.opts.UploadSize {
			return nil
		}

		chunk, err := readChunk(f, offset, u.chunkLength(offset))
		if err != nil {
			return err
		}
		if _, err := stream.Write(chunk); err != nil {
			return ex.wrap("chunk upload", err)
		}

		next := remote.RemoteOffset
		if next <= offset || next > u.opts.UploadSize {
			return fmt.Errorf("%w: sent %d at %d, server reports %d", ErrOffsetMismatch, len(chunk), offset, next)
		}

		u.mu.Lock()
		u.offset = next
		u.mu.Unlock()
		u.reportProgress(next)
	}
}

// finish drops the stored URL once the upload is complete
func (u *Upload) finish(ctx context.Context) {
	u.client.logger.Info("upload complete",
		zap.String("file", u.file.URI),
		zap.String("url", u.URL()),
		zap.Int64("size", u.opts.UploadSize))
	if u.opts.RemoveFingerprintOnSuccess {
		u.removeStoredURL(ctx)
	}
}

func (u *Upload) storeURL(ctx context.Context, uploadURL string) {
	if u.client.urls == nil {
		return
	}
	key, err := u.client.urls.AddUpload(ctx, u.fingerprint, port.PreviousUpload{
		Size:         u.opts.UploadSize,
		Metadata:     u.opts.Metadata,
		CreationTime: time.Now(),
		UploadURL:    uploadURL,
	})
	if err != nil {
		u.client.logger.Warn("failed to store upload url", zap.Error(err))
		return
	}
	u.mu.Lock()
	u.urlStorageKey = key
	u.mu.Unlock()
}

// forgetURL drops a session the server no longer knows
func (u *Upload) forgetURL(ctx context.Context) {
	u.mu.Lock()
	u.url = ""
	u.offset = 0
	u.mu.Unlock()
	u.removeStoredURL(ctx)
}

func (u *Upload) removeStoredURL(ctx context.Context) {
	u.mu.Lock()
	key := u.urlStorageKey
	u.urlStorageKey = ""
	u.mu.Unlock()

	if key == "" || u.client.urls == nil {
		return
	}
	if err := u.client.urls.RemoveUpload(ctx, key); err != nil {
		u.client.logger.Warn("failed to remove upload url", zap.String("key", key), zap.Error(err))
	}
}

func (u *Upload) reportProgress(sent int64) {
	if u.opts.OnProgress != nil {
		u.opts.OnProgress(sent, u.opts.UploadSize)
	}
}

func (u *Upload) currentOffset() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.offset
}

func (u *Upload) chunkLength(offset int64) int64 {
	remaining := u.opts.UploadSize - offset
	if remaining < u.opts.ChunkSize {
		return remaining
	}
	return u.opts.ChunkSize
}

func readChunk(f io.ReaderAt, offset, length int64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == length) {
		return nil, fmt.Errorf("tus: failed to read chunk at %d: %w", offset, err)
	}
	return buf, nil
}

// resolveLocation resolves a Location header against the creation endpoint
func resolveLocation(endpoint, location string) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("tus: invalid endpoint: %w", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("tus: invalid Location header: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
