package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/transport"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// NewHttpClientTransport creates a new http client transport
func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	serverURLs []string
	client     *http.Client
	counter    atomic.Uint32
	retryCount int
	timeout    time.Duration
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	serverURLs := make([]string, len(config.Endpoints))
	for i, endpoint := range config.Endpoints {
		// endpoints may be given as host:port
		if !strings.Contains(endpoint, "://") {
			endpoint = "http://" + endpoint
		}
		parsedURL, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		serverURLs[i] = strings.TrimSuffix(parsedURL.String(), "/") + RPCPath
	}

	perHost := max(1, config.ConnectionsPerEndpoint)
	t.client = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: max(10, perHost),
			IdleConnTimeout:     90 * time.Second,
		},
	}
	t.serverURLs = serverURLs
	t.retryCount = max(1, config.RetryCount)
	t.timeout = config.Timeout()

	return nil
}

func (t *httpClientTransport) Send(ctx context.Context, req []byte) ([]byte, error) {
	if t.client == nil {
		return nil, fmt.Errorf("http transport not initialized")
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var lastErr error
	for i := 0; i < t.retryCount; i++ {
		// Select the next server via round-robin
		idx := t.counter.Add(1) % uint32(len(t.serverURLs))

		resp, err := t.post(ctx, t.serverURLs[idx], req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// a canceled or timed out request may already be executing on the server
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// only requests that never reached a server are sent again
		var opErr *net.OpError
		if !errors.As(err, &opErr) || opErr.Op != "dial" {
			return nil, err
		}
		Logger.Debugf("Request attempt %d/%d to %s failed: %v", i+1, t.retryCount, t.serverURLs[idx], err)
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", t.retryCount, lastErr)
}

func (t *httpClientTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = nil
	t.serverURLs = nil

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// statusError is returned for responses with a status other than 200
type statusError struct {
	status string
}

func (e *statusError) Error() string {
	return "http error: " + e.status
}

func (t *httpClientTransport) post(ctx context.Context, url string, req []byte) ([]byte, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Content-Type", "application/octet-stream")

	httpResponse, err := t.client.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, &statusError{status: httpResponse.Status}
	}

	return io.ReadAll(httpResponse.Body)
}
