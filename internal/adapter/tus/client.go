// Package tus implements port.UploadTransport with the tus 1.0.0 resumable
// upload protocol on top of github.com/bdragon300/tusgo.
package tus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bdragon300/tusgo"
	"go.uber.org/zap"

	"github.com/vertextoedge/filetransfer/internal/domain"
	"github.com/vertextoedge/filetransfer/internal/port"
)

// Client builds tus uploads sharing one HTTP client and URL storage
type Client struct {
	httpClient *http.Client
	urls       *URLStorage
	logger     *zap.Logger
}

// Ensure Client implements port.UploadTransportFactory
var _ port.UploadTransportFactory = (*Client)(nil)

// NewClient creates a tus client. A nil store disables previous-upload
// discovery.
func NewClient(httpClient *http.Client, store port.KVStore, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		httpClient: httpClient,
		logger:     logger,
	}
	if store != nil {
		c.urls = NewURLStorage(store, logger)
	}
	return c
}

// NewUpload creates an upload for a probed local file
func (c *Client) NewUpload(file *domain.FileInfo, opts port.UploadOptions) (port.UploadTransport, error) {
	if file == nil {
		return nil, errors.New("tus: file is required")
	}
	if opts.Endpoint == "" {
		return nil, errors.New("tus: endpoint is required")
	}
	if _, err := url.Parse(opts.Endpoint); err != nil {
		return nil, fmt.Errorf("tus: invalid endpoint: %w", err)
	}
	if opts.UploadSize < 0 {
		return nil, errors.New("tus: upload size must not be negative")
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = domain.UploadChunkSize
	}

	return &Upload{
		client:      c,
		file:        file,
		opts:        opts,
		fingerprint: Fingerprint(file, opts.Endpoint),
	}, nil
}

// exchange is the protocol client for one run of an upload. Every request
// goes through hook, which binds it to the run's context.
type exchange struct {
	tus  *tusgo.Client
	hook *responseHook
}

func (c *Client) newExchange(ctx context.Context, opts port.UploadOptions) (*exchange, error) {
	endpoint, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("tus: invalid endpoint: %w", err)
	}

	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hook := &responseHook{
		base:    base,
		ctx:     ctx,
		headers: opts.Headers,
		observe: opts.OnAfterResponse,
	}
	httpClient := &http.Client{
		Transport:     hook,
		Timeout:       c.httpClient.Timeout,
		Jar:           c.httpClient.Jar,
		CheckRedirect: c.httpClient.CheckRedirect,
	}

	return &exchange{
		tus:  tusgo.NewClient(httpClient, endpoint),
		hook: hook,
	}, nil
}

// wrap attaches the failing response, if any, to a protocol error
func (e *exchange) wrap(op string, err error) error {
	if respErr := e.hook.lastError(); respErr != nil {
		respErr.Err = err
		return respErr
	}
	return fmt.Errorf("tus: %s failed: %w", op, err)
}
