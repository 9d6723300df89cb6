// Package remote implements the REST clients for the backend collaborators:
// the auth service, the profile service, and the doctor directory. Each client
// maps transport and status failures onto the domain error taxonomy so callers
// never see net/http details.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	dErrors "medigate/pkg/domain-errors"
	"medigate/pkg/platform/circuit"
)

const (
	defaultTimeout = 10 * time.Second

	// How long an open circuit rejects calls before letting a probe through.
	breakerCooldown = 30 * time.Second
)

// Client is the shared HTTP plumbing behind the typed collaborator clients.
// A circuit breaker guards the backend: after repeated transport failures
// calls fail fast with network_error instead of queueing up on a dead host.
// After a cool-down, single probe calls are let through; one success closes
// the circuit again.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger

	mu         sync.Mutex
	lastFailed time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.http = httpClient }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func newClient(name, baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "remote client requires a base URL")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		breaker: circuit.New(name, circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(1)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// doJSON performs one request and decodes a 2xx response into out. A non-2xx
// status is returned as *statusError for the caller to map; anything below
// the HTTP layer (DNS, refused connection, timeout) becomes network_error.
func (c *Client) doJSON(ctx context.Context, method, path string, headers map[string]string, in, out any) error {
	if !c.allow() {
		return dErrors.New(dErrors.CodeNetwork, "backend circuit open, failing fast")
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encode request body")
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordFailure()
		return dErrors.Wrap(err, dErrors.CodeNetwork, "backend unreachable")
	}
	defer resp.Body.Close()
	// Any HTTP response means the backend is reachable; statuses are the
	// backend's answer, not a transport fault.
	c.breaker.RecordSuccess()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &statusError{status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeServer, "malformed backend response")
	}
	return nil
}

// allow reports whether a call may go out: always while the circuit is
// closed, and after the cool-down as a probe while it is open.
func (c *Client) allow() bool {
	if !c.breaker.IsOpen() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastFailed) >= breakerCooldown
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailed = time.Now()
	c.mu.Unlock()
	if _, change := c.breaker.RecordFailure(); change.Opened && c.logger != nil {
		c.logger.Warn("backend circuit opened", "client", c.breaker.Name(), "base_url", c.baseURL)
	}
}

// statusError carries a non-2xx status up to the typed clients, which own the
// mapping onto the error taxonomy.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.status)
}

// serverOrNetwork is the default mapping for statuses a client has no special
// case for: 5xx means the backend broke, everything else is still the
// backend's answer, so both land on server_error.
func serverOrNetwork(e *statusError) error {
	return dErrors.New(dErrors.CodeServer, e.Error())
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
