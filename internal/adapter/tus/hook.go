package tus

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
)

// maxErrorBody bounds how much of a failed response is kept for errors
const maxErrorBody = 4096

// responseHook is the RoundTripper under the protocol client. It applies
// caller headers, binds requests to the upload context, remembers the last
// failed response and hands every response to observe.
type responseHook struct {
	base    http.RoundTripper
	ctx     context.Context
	headers map[string]string
	observe func(*http.Request, *http.Response)

	mu   sync.Mutex
	last *ResponseError
}

func (h *responseHook) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(h.ctx)
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	h.setLast(nil)

	resp, err := h.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}

		h.setLast(&ResponseError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	if h.observe != nil {
		h.observe(req, resp)
	}
	return resp, nil
}

func (h *responseHook) setLast(e *ResponseError) {
	h.mu.Lock()
	h.last = e
	h.mu.Unlock()
}

// lastError returns the failed response of the most recent request, or nil
// when it succeeded or never got a response
func (h *responseHook) lastError() *ResponseError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}
