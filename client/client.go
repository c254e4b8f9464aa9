// Package client talks to the vector-search service over HTTP. A Client holds
// shared configuration; each Conn is one reusable keep-alive connection meant
// to live in a pool.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dshills/vsbench/core"
)

// Operation names used in errors
const (
	OpCreateIndex         = "create_index"
	OpAddDocuments        = "add_documents"
	OpSearch              = "search"
	OpSaveIndex           = "save_index"
	OpLoadIndex           = "load_index"
	OpDeleteIndex         = "delete_index"
	OpDeleteIndexFromDisk = "delete_index_from_disk"
	OpDeleteDocuments     = "delete_documents"
	OpGetDocument         = "get_document"
	OpListIndices         = "list_indices"
	OpHealth              = "health"
)

// Client builds connections to one service endpoint
type Client struct {
	config  Config
	baseURL string
}

// New creates a new client
func New(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config:  config,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
	}, nil
}

// Config returns the client configuration
func (c *Client) Config() Config {
	return c.config
}

// NewConn opens a connection handle with its own transport. The underlying
// TCP connection is dialed lazily and kept alive between calls.
func (c *Client) NewConn() (*Conn, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   c.config.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        1,
		MaxIdleConnsPerHost: 1,
		MaxConnsPerHost:     1,
		IdleConnTimeout:     90 * time.Second,
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   c.config.RequestTimeout,
	}
	rc.RetryMax = c.config.RetryMax
	rc.RetryWaitMin = c.config.RetryWaitMin
	rc.RetryWaitMax = c.config.RetryWaitMax
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{}

	return &Conn{
		client:    rc,
		transport: transport,
		baseURL:   c.baseURL,
		wire:      c.config.Wire,
	}, nil
}

// Conn is a single connection to the service. A Conn must not be used by two
// callers at once; the pool enforces this.
type Conn struct {
	client    *retryablehttp.Client
	transport *http.Transport
	baseURL   string
	wire      Wire
}

// CreateIndex creates an index on the service
func (c *Conn) CreateIndex(ctx context.Context, cfg core.IndexConfig) error {
	return c.post(ctx, OpCreateIndex, createIndexBody(cfg), nil)
}

// AddDocuments inserts a batch of documents into an index
func (c *Conn) AddDocuments(ctx context.Context, name string, batch core.VectorBatch) error {
	return c.post(ctx, OpAddDocuments, addDocumentsBody(name, batch), nil)
}

// Search runs a k-nearest-neighbor query
func (c *Conn) Search(ctx context.Context, name string, q core.SearchQuery) (core.SearchResult, error) {
	var result core.SearchResult
	err := c.post(ctx, OpSearch, c.wire.searchBody(name, q), &result)
	return result, err
}

// SaveIndex persists an index on the service side
func (c *Conn) SaveIndex(ctx context.Context, name string) error {
	return c.post(ctx, OpSaveIndex, indexNameBody(name), nil)
}

// LoadIndex loads a previously saved index
func (c *Conn) LoadIndex(ctx context.Context, name string) error {
	return c.post(ctx, OpLoadIndex, indexNameBody(name), nil)
}

// DeleteIndex removes a loaded index from memory
func (c *Conn) DeleteIndex(ctx context.Context, name string) error {
	return c.post(ctx, OpDeleteIndex, indexNameBody(name), nil)
}

// DeleteIndexFromDisk removes the saved copy of an index. The service rejects
// this while the index is loaded.
func (c *Conn) DeleteIndexFromDisk(ctx context.Context, name string) error {
	return c.post(ctx, OpDeleteIndexFromDisk, indexNameBody(name), nil)
}

// DeleteDocuments removes documents from an index
func (c *Conn) DeleteDocuments(ctx context.Context, name string, ids []int64) error {
	return c.post(ctx, OpDeleteDocuments, body{FieldIndexName: name, FieldIDs: ids}, nil)
}

// GetDocument fetches a single document with its metadata
func (c *Conn) GetDocument(ctx context.Context, name string, id int64) (core.Document, error) {
	var doc core.Document
	path := "/" + OpGetDocument + "/" + url.PathEscape(name) + "/" + strconv.FormatInt(id, 10)
	err := c.do(ctx, OpGetDocument, http.MethodGet, path, nil, &doc)
	return doc, err
}

// ListIndices returns the names of the loaded indices
func (c *Conn) ListIndices(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.do(ctx, OpListIndices, http.MethodGet, "/"+OpListIndices, nil, &names); err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Health pings the service
func (c *Conn) Health(ctx context.Context) error {
	return c.do(ctx, OpHealth, http.MethodGet, "/"+OpHealth, nil, nil)
}

// Close drops the connection
func (c *Conn) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

func (c *Conn) post(ctx context.Context, op string, b body, out interface{}) error {
	return c.do(ctx, op, http.MethodPost, "/"+op, c.wire.encode(b), out)
}

func (c *Conn) do(ctx context.Context, op, method, path string, payload interface{}, out interface{}) error {
	var reqBody interface{}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &core.TransportError{Op: op, Err: err, Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &core.TransportError{Op: op, Err: err, Timeout: isTimeout(err)}
	}

	if resp.StatusCode != http.StatusOK {
		return &core.APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s: decoding response: %w", op, err)
		}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
