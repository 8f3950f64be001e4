package tus

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/filetransfer/internal/adapter/memory"
	"github.com/vertextoedge/filetransfer/internal/domain"
	"github.com/vertextoedge/filetransfer/internal/port"
)

const content = "The quick brown fox jumps over the lazy dog"

func writeFile(t *testing.T, data string) *domain.FileInfo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fox.txt")
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	st, err := os.Stat(path)
	require.NoError(t, err)
	return &domain.FileInfo{
		URI:      path,
		Exists:   true,
		Size:     st.Size(),
		Name:     "fox.txt",
		MimeType: "text/plain",
		ModTime:  st.ModTime(),
	}
}

// recorder collects callbacks from one upload
type recorder struct {
	mu        sync.Mutex
	progress  [][2]int64
	responses []int
	done      chan error
}

func newRecorder() *recorder {
	return &recorder{done: make(chan error, 1)}
}

func (r *recorder) options(endpoint string, size int64) port.UploadOptions {
	return port.UploadOptions{
		Endpoint:                   endpoint,
		UploadSize:                 size,
		RetryDelays:                []time.Duration{0, 10 * time.Millisecond},
		UploadDataDuringCreation:   true,
		RemoveFingerprintOnSuccess: true,
		Metadata:                   map[string]string{"filename": "fox.txt", "filetype": "text/plain"},
		ChunkSize:                  10,
		OnProgress: func(sent, total int64) {
			r.mu.Lock()
			r.progress = append(r.progress, [2]int64{sent, total})
			r.mu.Unlock()
		},
		OnSuccess: func() { r.done <- nil },
		OnError:   func(err error) { r.done <- err },
		OnAfterResponse: func(req *http.Request, resp *http.Response) {
			if req.Method == http.MethodOptions {
				return
			}
			r.mu.Lock()
			r.responses = append(r.responses, resp.StatusCode)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("upload did not finish")
		return nil
	}
}

func newUpload(t *testing.T, c *Client, file *domain.FileInfo, opts port.UploadOptions) *Upload {
	t.Helper()
	transport, err := c.NewUpload(file, opts)
	require.NoError(t, err)
	return transport.(*Upload)
}

func TestUpload_Complete(t *testing.T) {
	srv := newTusServer(t)
	store := memory.New()
	client := NewClient(srv.Client(), store, zap.NewNop())

	file := writeFile(t, content)
	rec := newRecorder()
	up := newUpload(t, client, file, rec.options(srv.endpoint(), file.Size))

	up.Start(context.Background())
	require.NoError(t, rec.wait(t))

	assert.Equal(t, srv.URL+"/files/1", up.URL())

	stored := srv.upload("1")
	require.NotNil(t, stored)
	assert.Equal(t, content, string(stored.data))
	assert.Equal(t, int64(len(content)), stored.length)

	meta, err := decodeMetadata(stored.metadata)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"filename": "fox.txt", "filetype": "text/plain"}, meta)

	// 43 bytes in chunks of 10: one creation with data and four PATCHes
	creates, patches := srv.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 4, patches)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []int{201, 204, 204, 204, 204}, rec.responses)
	require.NotEmpty(t, rec.progress)
	for i := 1; i < len(rec.progress); i++ {
		assert.Greater(t, rec.progress[i][0], rec.progress[i-1][0])
	}
	assert.Equal(t, [2]int64{int64(len(content)), int64(len(content))}, rec.progress[len(rec.progress)-1])

	// The fingerprint record is removed once the upload succeeded
	entries, err := store.List(context.Background(), URLStorageKeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload_CustomHeadersAndResponseHook(t *testing.T) {
	srv := newTusServer(t)
	srv.extraResponse = http.Header{"X-Custom-Upload-Link": {"https://cdn.example/fox"}}
	client := NewClient(srv.Client(), nil, nil)

	file := writeFile(t, "tiny")
	rec := newRecorder()
	opts := rec.options(srv.endpoint(), file.Size)
	opts.Headers = map[string]string{"Authorization": "Bearer secret"}
	var links []string
	opts.OnAfterResponse = func(req *http.Request, resp *http.Response) {
		assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
		if req.Method == http.MethodOptions {
			return
		}
		links = append(links, resp.Header.Get("X-Custom-Upload-Link"))
	}
	up := newUpload(t, client, file, opts)

	up.Start(context.Background())
	require.NoError(t, rec.wait(t))
	assert.Equal(t, []string{"https://cdn.example/fox"}, links)
}

func TestUpload_RetriesServerErrors(t *testing.T) {
	srv := newTusServer(t)
	srv.failPatches = 1
	client := NewClient(srv.Client(), nil, zap.NewNop())

	file := writeFile(t, content)
	rec := newRecorder()
	up := newUpload(t, client, file, rec.options(srv.endpoint(), file.Size))

	up.Start(context.Background())
	require.NoError(t, rec.wait(t))
	assert.Equal(t, content, string(srv.upload("1").data))
}

func TestUpload_RetriesExhausted(t *testing.T) {
	srv := newTusServer(t)
	srv.failPatches = 100
	client := NewClient(srv.Client(), nil, zap.NewNop())

	file := writeFile(t, content)
	rec := newRecorder()
	up := newUpload(t, client, file, rec.options(srv.endpoint(), file.Size))

	up.Start(context.Background())
	err := rec.wait(t)

	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr), "got %v", err)
	assert.Equal(t, http.StatusInternalServerError, respErr.StatusCode)

	// First PATCH plus one per retry delay
	_, patches := srv.counts()
	assert.Equal(t, 3, patches)
}

func TestUpload_ClientErrorIsFinal(t *testing.T) {
	srv := newTusServer(t)
	srv.createStatus = http.StatusForbidden
	client := NewClient(srv.Client(), nil, zap.NewNop())

	file := writeFile(t, content)
	rec := newRecorder()
	up := newUpload(t, client, file, rec.options(srv.endpoint(), file.Size))

	up.Start(context.Background())
	err := rec.wait(t)

	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusForbidden, respErr.StatusCode)
	assert.Equal(t, "creation refused", respErr.Body)

	creates, _ := srv.counts()
	assert.Equal(t, 1, creates)
}

func TestUpload_ResumeFromPreviousUpload(t *testing.T) {
	srv := newTusServer(t)
	srv.failPatches = 100
	store := memory.New()
	client := NewClient(srv.Client(), store, zap.NewNop())
	file := writeFile(t, content)

	// First attempt creates the session, sends the first chunk and then fails
	rec := newRecorder()
	opts := rec.options(srv.endpoint(), file.Size)
	opts.RetryDelays = nil
	first := newUpload(t, client, file, opts)
	first.Start(context.Background())
	require.Error(t, rec.wait(t))

	srv.mu.Lock()
	srv.failPatches = 0
	srv.mu.Unlock()

	rec = newRecorder()
	second := newUpload(t, client, file, rec.options(srv.endpoint(), file.Size))
	previous, err := second.FindPreviousUploads(context.Background())
	require.NoError(t, err)
	require.Len(t, previous, 1)
	assert.Equal(t, srv.URL+"/files/1", previous[0].UploadURL)
	assert.Equal(t, file.Size, previous[0].Size)
	assert.NotEmpty(t, previous[0].URLStorageKey)

	second.ResumeFromPreviousUpload(previous[0])
	second.Start(context.Background())
	require.NoError(t, rec.wait(t))

	creates, _ := srv.counts()
	assert.Equal(t, 1, creates, "resumed upload must not create a new session")
	assert.Equal(t, content, string(srv.upload("1").data))

	rec.mu.Lock()
	assert.Equal(t, [2]int64{10, int64(len(content))}, rec.progress[0], "resume reports the server offset first")
	rec.mu.Unlock()

	entries, err := store.List(context.Background(), URLStorageKeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload_PreviousUploadGone(t *testing.T) {
	srv := newTusServer(t)
	store := memory.New()
	client := NewClient(srv.Client(), store, zap.NewNop())
	file := writeFile(t, content)

	rec := newRecorder()
	up := newUpload(t, client, file, rec.options(srv.endpoint(), file.Size))
	up.ResumeFromPreviousUpload(port.PreviousUpload{UploadURL: srv.URL + "/files/missing"})

	up.Start(context.Background())
	require.NoError(t, rec.wait(t))
	assert.Equal(t, srv.URL+"/files/1", up.URL())
	assert.Equal(t, content, string(srv.upload("1").data))
}

func TestUpload_Abort(t *testing.T) {
	srv := newTusServer(t)
	srv.blockPatches = make(chan struct{})
	srv.patchStarted = make(chan struct{}, 1)
	store := memory.New()
	client := NewClient(srv.Client(), store, zap.NewNop())
	file := writeFile(t, content)

	rec := newRecorder()
	up := newUpload(t, client, file, rec.options(srv.endpoint(), file.Size))
	up.Start(context.Background())

	select {
	case <-srv.patchStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("no PATCH received")
	}

	require.NoError(t, up.Abort(context.Background()))

	select {
	case err := <-rec.done:
		t.Fatalf("callback fired after abort: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	// The session stays discoverable for a later resume
	previous, err := up.FindPreviousUploads(context.Background())
	require.NoError(t, err)
	assert.Len(t, previous, 1)

	close(srv.blockPatches)
}

func TestUpload_AbortNotRunning(t *testing.T) {
	client := NewClient(nil, nil, nil)
	up := newUpload(t, client, writeFile(t, "x"), port.UploadOptions{Endpoint: "http://example.invalid/files/", UploadSize: 1})
	assert.NoError(t, up.Abort(context.Background()))
}

func TestUpload_EmptyFile(t *testing.T) {
	srv := newTusServer(t)
	client := NewClient(srv.Client(), nil, zap.NewNop())
	file := writeFile(t, "")

	rec := newRecorder()
	up := newUpload(t, client, file, rec.options(srv.endpoint(), 0))
	up.Start(context.Background())
	require.NoError(t, rec.wait(t))

	creates, patches := srv.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 0, patches)
	assert.NotEmpty(t, up.URL())
}

func TestClient_NewUploadValidation(t *testing.T) {
	client := NewClient(nil, nil, nil)
	file := &domain.FileInfo{URI: "/tmp/x", Exists: true, Size: 1}

	_, err := client.NewUpload(nil, port.UploadOptions{Endpoint: "http://x"})
	assert.Error(t, err)

	_, err = client.NewUpload(file, port.UploadOptions{})
	assert.Error(t, err)

	_, err = client.NewUpload(file, port.UploadOptions{Endpoint: "http://x", UploadSize: -1})
	assert.Error(t, err)

	transport, err := client.NewUpload(file, port.UploadOptions{Endpoint: "http://x", UploadSize: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.UploadChunkSize, transport.(*Upload).opts.ChunkSize)
	assert.Empty(t, transport.URL())
}
