package tus

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	tusVersion        = "1.0.0"
	offsetContentType = "application/offset+octet-stream"
)

type serverUpload struct {
	length   int64
	metadata string
	data     []byte
}

// tusServer is a minimal in-memory tus 1.0.0 server
type tusServer struct {
	*httptest.Server

	mu            sync.Mutex
	uploads       map[string]*serverUpload
	nextID        int
	creates       int
	patches       int
	failPatches   int
	createStatus  int
	blockPatches  chan struct{}
	patchStarted  chan struct{}
	extraResponse http.Header
}

func newTusServer(t *testing.T) *tusServer {
	t.Helper()
	s := &tusServer{uploads: make(map[string]*serverUpload)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *tusServer) endpoint() string {
	return s.URL + "/files/"
}

func (s *tusServer) upload(id string) *serverUpload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads[id]
}

func (s *tusServer) counts() (creates, patches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.patches
}

func (s *tusServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Tus-Version", tusVersion)
		w.Header().Set("Tus-Extension", "creation,creation-with-upload,termination")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Header.Get("Tus-Resumable") != tusVersion {
		http.Error(w, "missing Tus-Resumable", http.StatusPreconditionFailed)
		return
	}
	w.Header().Set("Tus-Resumable", tusVersion)

	s.mu.Lock()
	for k, vs := range s.extraResponse {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	s.mu.Unlock()

	id := strings.TrimPrefix(r.URL.Path, "/files/")

	switch r.Method {
	case http.MethodPost:
		s.handleCreate(w, r)
	case http.MethodHead:
		s.mu.Lock()
		up, ok := s.uploads[id]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Upload-Offset", strconv.Itoa(len(up.data)))
		w.Header().Set("Upload-Length", strconv.FormatInt(up.length, 10))
		w.WriteHeader(http.StatusOK)
	case http.MethodPatch:
		s.handlePatch(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *tusServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creates++
	if s.createStatus != 0 {
		http.Error(w, "creation refused", s.createStatus)
		return
	}

	length, err := strconv.ParseInt(r.Header.Get("Upload-Length"), 10, 64)
	if err != nil {
		http.Error(w, "bad Upload-Length", http.StatusBadRequest)
		return
	}

	s.nextID++
	id := strconv.Itoa(s.nextID)
	up := &serverUpload{length: length, metadata: r.Header.Get("Upload-Metadata")}
	if r.Header.Get("Content-Type") == offsetContentType {
		up.data, _ = io.ReadAll(r.Body)
	}
	s.uploads[id] = up

	w.Header().Set("Location", "/files/"+id)
	w.Header().Set("Upload-Offset", strconv.Itoa(len(up.data)))
	w.WriteHeader(http.StatusCreated)
}

func (s *tusServer) handlePatch(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.Lock()
	s.patches++
	started, block := s.patchStarted, s.blockPatches
	fail := s.failPatches > 0
	if fail {
		s.failPatches--
	}
	up, ok := s.uploads[id]
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-r.Context().Done():
			return
		}
	}

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if fail {
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}
	if r.Header.Get("Content-Type") != offsetContentType {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Header.Get("Upload-Offset") != fmt.Sprint(len(up.data)) {
		w.WriteHeader(http.StatusConflict)
		return
	}
	up.data = append(up.data, body...)
	w.Header().Set("Upload-Offset", strconv.Itoa(len(up.data)))
	w.WriteHeader(http.StatusNoContent)
}

// decodeMetadata parses an Upload-Metadata header value
func decodeMetadata(header string) (map[string]string, error) {
	metadata := make(map[string]string)
	if strings.TrimSpace(header) == "" {
		return metadata, nil
	}
	for _, pair := range strings.Split(header, ",") {
		parts := strings.Fields(pair)
		switch len(parts) {
		case 1:
			metadata[parts[0]] = ""
		case 2:
			v, err := base64.StdEncoding.DecodeString(parts[1])
			if err != nil {
				return nil, fmt.Errorf("invalid metadata value for %q: %w", parts[0], err)
			}
			metadata[parts[0]] = string(v)
		default:
			return nil, fmt.Errorf("malformed metadata pair %q", pair)
		}
	}
	return metadata, nil
}
