package dns

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/miekg/dns"
	"github.com/velemoonkon/subprobe/pkg/httpclient"
)

// QueryDoH performs a DNS over HTTPS query (RFC 8484 POST) against endpoint, a full URL
func QueryDoH(ctx context.Context, endpoint string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	// Pack DNS message to wire format
	wireMsg, err := msg.Pack()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to pack DNS message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(wireMsg))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create POST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/dns-message")
	req.Header.Set("Accept", "application/dns-message")

	start := time.Now()

	// Use shared HTTP client for connection reuse
	body, err := httpclient.Do(httpclient.Shared(), req)
	if err != nil {
		return nil, 0, fmt.Errorf("DoH request failed: %w", err)
	}

	rtt := time.Since(start)

	// Unpack DNS message
	resp := new(dns.Msg)
	if err := resp.Unpack(body); err != nil {
		return nil, 0, fmt.Errorf("failed to unpack DNS response: %w", err)
	}

	return resp, rtt, nil
}
