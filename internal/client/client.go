// Package client implements the HTTP transport between the agent and the
// collector: fetching the agent configuration and emitting snapshots.
package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	internalerrors "github.com/Schera-ole/hostagent/internal/errors"
	models "github.com/Schera-ole/hostagent/internal/model"
	"github.com/Schera-ole/hostagent/internal/pool"
)

const (
	// ConfigPath is the collector endpoint serving the agent configuration.
	ConfigPath = "/collect/config"

	// EmitPath is the collector endpoint accepting snapshots.
	EmitPath = "/collect/emit"

	// HashHeader carries the hex HMAC-SHA256 of the compressed body.
	HashHeader = "HashSHA256"

	// DefaultTimeout bounds any single HTTP exchange.
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 512
)

var bufferPool = pool.New(func() *bytes.Buffer { return new(bytes.Buffer) })

// Collector talks to a remote collector over HTTP.
type Collector struct {
	baseURL string
	client  *http.Client
	key     string
}

// Option configures a Collector.
type Option func(*Collector)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Collector) {
		c.client = client
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Collector) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithKey enables HMAC-SHA256 signing of emitted payloads.
func WithKey(key string) Option {
	return func(c *Collector) {
		c.key = key
	}
}

// New creates a Collector for the given base URL, e.g. "https://collector.example.com".
func New(baseURL string, opts ...Option) *Collector {
	c := &Collector{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchConfig performs an authenticated read of the agent configuration.
func (c *Collector) FetchConfig(ctx context.Context, token string) (models.Configuration, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ConfigPath, nil)
	if err != nil {
		return models.Configuration{}, fmt.Errorf("error creating request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)

	response, err := c.client.Do(request)
	if err != nil {
		return models.Configuration{}, fmt.Errorf("error fetching config: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return models.Configuration{}, classifyStatus(response)
	}

	var config models.Configuration
	if err := json.NewDecoder(response.Body).Decode(&config); err != nil {
		return models.Configuration{}, fmt.Errorf("error decoding config: %w", err)
	}
	return config, nil
}

// SendMetrics performs an authenticated write of one snapshot.
//
// The returned error wraps ErrTransientDelivery when a retry may succeed,
// ErrFatalAuth when the token was refused and ErrSnapshotRejected when the
// collector refused this particular payload.
func (c *Collector) SendMetrics(ctx context.Context, token string, snapshot models.Snapshot) error {
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	gzipWriter := gzip.NewWriter(buf)
	if err := json.NewEncoder(gzipWriter).Encode(snapshot); err != nil {
		return fmt.Errorf("%w: error encoding snapshot: %w", internalerrors.ErrSnapshotRejected, err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("error closing gzip writer: %w", err)
	}

	// the transport may still read the body after Do returns, so it must not
	// share memory with the pooled buffer
	body := bytes.Clone(buf.Bytes())
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EmitPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Content-Encoding", "gzip")
	request.Header.Set("Authorization", "Bearer "+token)
	if c.key != "" {
		request.Header.Set(HashHeader, Sign(body, c.key))
	}

	response, err := c.client.Do(request)
	if err != nil {
		if IsRetryable(err) {
			return fmt.Errorf("%w: %w", internalerrors.ErrTransientDelivery, err)
		}
		return fmt.Errorf("error sending snapshot: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		io.Copy(io.Discard, response.Body)
		return nil
	}
	return classifyStatus(response)
}

// Sign returns the hex HMAC-SHA256 of body under key.
func Sign(body []byte, key string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func classifyStatus(response *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
	statusErr := &internalerrors.StatusError{
		Code: response.StatusCode,
		Body: strings.TrimSpace(string(body)),
	}

	switch {
	case response.StatusCode == http.StatusUnauthorized, response.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w", internalerrors.ErrFatalAuth, statusErr)
	case response.StatusCode >= 500,
		response.StatusCode == http.StatusRequestTimeout,
		response.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", internalerrors.ErrTransientDelivery, statusErr)
	default:
		return fmt.Errorf("%w: %w", internalerrors.ErrSnapshotRejected, statusErr)
	}
}

// IsRetryable reports whether a transport error is worth retrying:
// timeouts, refused or reset connections, unreachable networks and DNS failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}

	// Check any network errors
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "connection reset by peer")
}
