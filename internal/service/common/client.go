//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oshokin/os-updater/internal/domain/system"
	"github.com/oshokin/os-updater/internal/logger"
	"github.com/oshokin/os-updater/internal/version"
)

var (
	// ErrTransport marks every failure of a request: connection, TLS, status or body.
	ErrTransport = errors.New("http request failed")
	// ErrBadHTTPStatus is returned for any response outside the 2xx range.
	ErrBadHTTPStatus = errors.New("unexpected http status")
	// errRemoteRequired is returned when no remote description is provided.
	errRemoteRequired = errors.New("remote must be provided")
	// errNoTrustAnchor is returned when the remote has no root certificate.
	errNoTrustAnchor = errors.New("remote has no root certificate")
)

// Client performs GET requests against the update and distribution servers.
type Client struct {
	// http is configured with the pinned trust anchor.
	http *http.Client
	// headers are added to every request.
	headers http.Header

	// callTimeout bounds a single request; zero means no deadline.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a deadline for every request.
// Without it a stalled transfer blocks until the process is stopped.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// NewClient creates a client that trusts only remote.RootCAs and never the system store.
func NewClient(remote *system.Remote, opts ...Option) (*Client, error) {
	if remote == nil {
		return nil, errRemoteRequired
	}

	if remote.RootCAs == nil {
		return nil, errNoTrustAnchor
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		//nolint:exhaustruct // Defaults are fine except for the pinned roots.
		TLSClientConfig: &tls.Config{
			RootCAs:    remote.RootCAs,
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2: true,
	}

	client := &Client{
		http:    &http.Client{Transport: transport},
		headers: remote.Headers.Clone(),
	}

	if client.headers == nil {
		client.headers = make(http.Header)
	}

	if client.headers.Get("User-Agent") == "" {
		client.headers.Set("User-Agent", version.UserAgent())
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c == nil || c.http == nil {
		return nil
	}

	c.http.CloseIdleConnections()

	return nil
}

// Get fetches url and returns the whole body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.do(callCtx, url)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body of %s: %w", ErrTransport, url, err)
	}

	return body, nil
}

// Download streams url into w and returns the number of bytes written.
// A failure midway leaves whatever was already written in w.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.do(callCtx, url)
	if err != nil {
		return 0, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	written, err := io.Copy(w, response.Body)
	if err != nil {
		return written, fmt.Errorf("%w: download %s: %w", ErrTransport, url, err)
	}

	logger.DebugKV(ctx, "Downloaded", "url", url, "bytes", written)

	return written, nil
}

// do sends the request and checks the response status.
func (c *Client) do(ctx context.Context, url string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %s: %w", ErrTransport, url, err)
	}

	for key, values := range c.headers {
		for _, value := range values {
			request.Header.Add(key, value)
		}
	}

	logger.DebugKV(ctx, "GET", "url", url)

	response, err := c.http.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransport, url, err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		_ = response.Body.Close()

		return nil, fmt.Errorf("%w: GET %s: %s: %w", ErrTransport, url, response.Status, ErrBadHTTPStatus)
	}

	return response, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
