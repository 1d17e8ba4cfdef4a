// Package httpclient defines the narrow HTTP contract every cloud-facing
// subsystem (protocol adapter, remote config handler, FOTA manager)
// depends on, and a concrete implementation backed by net/http.
package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ecowatt/gateway/internal/errors"
)

// DefaultTimeout bounds every request issued by Client. A call ends at
// this bound or when its context is cancelled, whichever comes first.
const DefaultTimeout = 5 * time.Second

// Response is the result of a GET or POST.
type Response struct {
	Status int
	Body   []byte
}

// IsSuccess reports whether the response's status is in [200, 300).
func (r *Response) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client is the contract every cloud caller programs against. The
// concrete implementation is shared across subsystems: concurrent calls
// are permitted, and default headers are read-only after
// SetDefaultHeaders returns.
type Client interface {
	Get(ctx context.Context, url string) (*Response, error)
	Post(ctx context.Context, url string, body []byte, contentType string) (*Response, error)
	SetDefaultHeaders(headers map[string]string)
}

type httpClient struct {
	inner *http.Client

	mu      sync.RWMutex
	headers map[string]string
}

// New returns a Client with DefaultTimeout and no default headers.
func New() Client {
	return &httpClient{
		inner:   &http.Client{Timeout: DefaultTimeout},
		headers: make(map[string]string),
	}
}

func (c *httpClient) SetDefaultHeaders(headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.headers = make(map[string]string, len(headers))
	for k, v := range headers {
		c.headers[k] = v
	}
}

func (c *httpClient) applyHeaders(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

func (c *httpClient) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrTransportFailed, err)
	}

	c.applyHeaders(req)

	return c.do(req)
}

func (c *httpClient) Post(ctx context.Context, url string, body []byte, contentType string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrTransportFailed, err)
	}

	req.Header.Set("Content-Type", contentType)
	c.applyHeaders(req)

	return c.do(req)
}

func (c *httpClient) do(req *http.Request) (*Response, error) {
	resp, err := c.inner.Do(req)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrTransportFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrTransportFailed, err)
	}

	return &Response{Status: resp.StatusCode, Body: body}, nil
}
