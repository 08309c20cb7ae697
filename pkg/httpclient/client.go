package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/velemoonkon/subprobe/pkg/config"
)

var (
	// Shared HTTP client for discovery sources and DoH to enable connection reuse
	sharedClient     *http.Client
	sharedClientOnce sync.Once
)

// Shared returns the process-wide HTTP client.
// Configuration is loaded from environment variables with SUBPROBE_ prefix
func Shared() *http.Client {
	sharedClientOnce.Do(func() {
		sharedClient = New(config.HTTP)
	})
	return sharedClient
}

// New builds an HTTP client from cfg
func New(cfg config.HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}
}

// StatusError reports a non-2xx response
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// Do sends req and returns the body of a 2xx response, read up to config.HTTP.MaxResponseSize bytes
func Do(client *http.Client, req *http.Request) ([]byte, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", config.HTTP.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: req.URL.Redacted()}
	}

	// Read response body with size limit
	maxSize := config.HTTP.MaxResponseSize
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > maxSize {
		return nil, fmt.Errorf("response exceeds maximum size of %d bytes (SUBPROBE_MAX_RESPONSE_SIZE)", maxSize)
	}

	return body, nil
}

// Get issues a GET request for url and returns the body of a 2xx response
func Get(ctx context.Context, client *http.Client, url string, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return Do(client, req)
}
