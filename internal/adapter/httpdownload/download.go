package httpdownload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/filetransfer/internal/domain"
	"github.com/vertextoedge/filetransfer/internal/port"
	"github.com/vertextoedge/filetransfer/internal/progress"
)

// resumeState is the decoded form of the opaque resume token
type resumeState struct {
	Offset int64  `json:"offset"`
	ETag   string `json:"etag,omitempty"`
}

func decodeResumeToken(token string) (resumeState, error) {
	var st resumeState
	if token == "" {
		return st, nil
	}
	if err := json.Unmarshal([]byte(token), &st); err != nil {
		return st, fmt.Errorf("%w: %v", domain.ErrInvalidResumeData, err)
	}
	if st.Offset < 0 {
		return st, domain.ErrInvalidResumeData
	}
	return st, nil
}

func (st resumeState) encode() string {
	if st.Offset == 0 && st.ETag == "" {
		return ""
	}
	b, _ := json.Marshal(st)
	return string(b)
}

// Download is a single pausable HTTP download
type Download struct {
	client     *Client
	url        string
	dest       string
	options    map[string]string
	onProgress port.DownloadProgressFunc

	mu          sync.Mutex
	resumeToken string
	running     bool
	paused      bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// Ensure Download implements port.DownloadTransport
var _ port.DownloadTransport = (*Download)(nil)

// Path returns the destination path
func (d *Download) Path() string {
	return d.dest
}

// Start downloads the whole file, discarding any partial data
func (d *Download) Start(ctx context.Context) (*domain.DownloadResult, error) {
	return d.run(ctx, false)
}

// Resume continues from the bytes already on disk
func (d *Download) Resume(ctx context.Context) (*domain.DownloadResult, error) {
	return d.run(ctx, true)
}

// Pause cancels the in-flight request and waits until partial data is flushed
func (d *Download) Pause(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return domain.ErrNotRunning
	}
	d.paused = true
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the state needed to rebuild this download
func (d *Download) Snapshot() domain.ResumeDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()

	opts := make(map[string]string, len(d.options))
	for k, v := range d.options {
		opts[k] = v
	}
	return domain.ResumeDescriptor{
		URL:             d.url,
		DestinationPath: d.dest,
		Options:         opts,
		ResumeToken:     d.resumeToken,
	}
}

func (d *Download) setResumeState(st resumeState) {
	d.mu.Lock()
	d.resumeToken = st.encode()
	d.mu.Unlock()
}

func (d *Download) run(parent context.Context, resume bool) (*domain.DownloadResult, error) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil, domain.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	d.running = true
	d.paused = false
	d.cancel = cancel
	d.done = done
	token := d.resumeToken
	d.mu.Unlock()

	defer func() {
		cancel()
		d.mu.Lock()
		d.running = false
		d.cancel = nil
		d.mu.Unlock()
		close(done)
	}()

	result, err := d.transfer(ctx, resume, token)

	d.mu.Lock()
	paused := d.paused
	d.mu.Unlock()

	if err != nil && paused {
		d.client.logger.Info("download paused",
			zap.String("path", d.dest),
			zap.String("resume_token", d.Snapshot().ResumeToken))
		return nil, nil
	}
	return result, err
}

func (d *Download) transfer(ctx context.Context, resume bool, token string) (*domain.DownloadResult, error) {
	fs := d.client.fs
	logger := d.client.logger
	tempPath := fs.TempPath(d.dest)

	var st resumeState
	if resume {
		var err error
		st, err = decodeResumeToken(token)
		if err != nil {
			return nil, err
		}

		// The bytes on disk are authoritative
		actualSize, _, statErr := fs.GetTempFileInfo(tempPath)
		if statErr != nil {
			logger.Warn("temp file not found, starting fresh",
				zap.String("path", d.dest),
				zap.Error(statErr))
			st = resumeState{}
			resume = false
		} else {
			st.Offset = actualSize
		}
	}

	logger.Debug("downloading file",
		zap.String("url", d.url),
		zap.String("path", d.dest),
		zap.Bool("resume", resume),
		zap.Int64("resume_from", st.Offset))

	resp, err := d.doRequest(ctx, resume, st)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if !resume {
			return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
		logger.Info("resuming download",
			zap.String("path", d.dest),
			zap.Int64("from_byte", st.Offset))
	case http.StatusOK:
		if resume && st.Offset > 0 {
			logger.Info("server ignored range request, starting fresh",
				zap.String("path", d.dest))
		}
		resume = false
		st.Offset = 0
	case http.StatusRequestedRangeNotSatisfiable:
		if resume && contentRangeTotal(resp.Header.Get("Content-Range")) == st.Offset {
			// Everything was already on disk when the transfer was paused
			return d.finish(resp, strings.NewReader(""), true, tempPath, st)
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	default:
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		st.ETag = etag
	}

	expected := int64(-1)
	if resp.ContentLength >= 0 {
		expected = st.Offset + resp.ContentLength
	}

	if err := d.checkSpace(resp.ContentLength); err != nil {
		return nil, err
	}

	reader := &progressReader{
		reader:     resp.Body,
		download:   d,
		state:      st,
		expected:   expected,
		onProgress: d.onProgress,
		throttle:   progress.NewThrottle(d.client.progressInterval),
	}

	return d.finish(resp, reader, resume, tempPath, st)
}

func (d *Download) finish(resp *http.Response, reader io.Reader, resume bool, tempPath string, st resumeState) (*domain.DownloadResult, error) {
	fs := d.client.fs
	resumedFrom := st.Offset

	finalPath, written, err := fs.WriteFileWithResume(d.dest, reader, resume, tempPath)
	if err != nil {
		// Record what actually reached the disk so the next resume continues from it
		if actualSize, _, sizeErr := fs.GetTempFileInfo(tempPath); sizeErr == nil {
			st.Offset = actualSize
		}
		d.setResumeState(st)
		return nil, fmt.Errorf("write failed: %w", err)
	}

	st.Offset = written
	d.setResumeState(st)

	d.client.logger.Info("download complete",
		zap.String("path", finalPath),
		zap.Int64("size", written),
		zap.Bool("resumed", resume && resumedFrom > 0))

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &domain.DownloadResult{
		URI:          finalPath,
		Status:       resp.StatusCode,
		Headers:      headers,
		BytesWritten: written,
		Resumed:      resume && resumedFrom > 0,
		ResumedFrom:  resumedFrom,
	}, nil
}

// doRequest performs the GET with an optional Range header
func (d *Download) doRequest(ctx context.Context, resume bool, st resumeState) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range d.options {
		req.Header.Set(k, v)
	}

	if resume && st.Offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", st.Offset))
		if st.ETag != "" {
			req.Header.Set("If-Range", st.ETag)
		}
	}

	resp, err := d.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (d *Download) checkSpace(remaining int64) error {
	if !d.client.checkDiskSpace || remaining <= 0 {
		return nil
	}
	dir := filepath.Dir(d.client.fs.Resolve(d.dest))
	usage, err := d.client.fs.GetDiskUsage(dir)
	if err != nil {
		// Directory may not exist yet; the write itself will report real failures
		d.client.logger.Debug("disk usage unavailable", zap.String("dir", dir), zap.Error(err))
		return nil
	}
	if uint64(remaining) > usage.Free {
		return fmt.Errorf("%w: need %d bytes, %d free", domain.ErrInsufficientSpace, remaining, usage.Free)
	}
	return nil
}

// contentRangeTotal parses the total from "bytes */N" or "bytes a-b/N"
func contentRangeTotal(header string) int64 {
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return -1
	}
	total, err := strconv.ParseInt(strings.TrimSpace(header[idx+1:]), 10, 64)
	if err != nil {
		return -1
	}
	return total
}

// progressReader wraps a reader to report download progress
type progressReader struct {
	reader     io.Reader
	download   *Download
	state      resumeState
	expected   int64
	bytesRead  int64
	onProgress port.DownloadProgressFunc
	throttle   *progress.Throttle
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.bytesRead += int64(n)

	total := r.state.Offset + r.bytesRead
	if n > 0 && r.throttle.AllowFinal(total, r.expected) {
		st := r.state
		st.Offset = total
		r.download.setResumeState(st)
		if r.onProgress != nil {
			r.onProgress(total, r.expected)
		}
	}

	return n, err
}
