package dns

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// newQuery builds a question message for domain/qtype honoring opts
func newQuery(domain string, qtype uint16, opts QueryOptions) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), qtype)
	msg.RecursionDesired = opts.RecursionDesired

	// Add EDNS if requested
	if opts.UseEDNS {
		opt := new(dns.OPT)
		opt.Hdr.Name = "."
		opt.Hdr.Rrtype = dns.TypeOPT
		opt.SetUDPSize(opts.EDNSBufferSize)
		msg.Extra = append(msg.Extra, opt)
	}

	return msg
}

// Exchange sends msg to server and returns the response.
// server selects the transport:
//   - "https://host/dns-query" or "http://...": DNS over HTTPS (RFC 8484 POST)
//   - "tls://host[:853]": DNS over TLS
//   - "host[:53]": UDP, retried over TCP when the answer is truncated
func Exchange(ctx context.Context, server string, msg *dns.Msg, timeout time.Duration) (*dns.Msg, time.Duration, error) {
	switch {
	case strings.HasPrefix(server, "https://"), strings.HasPrefix(server, "http://"):
		return QueryDoH(ctx, server, msg)
	case strings.HasPrefix(server, "tls://"):
		return exchangeDoT(ctx, strings.TrimPrefix(server, "tls://"), msg, timeout)
	default:
		return exchangeUDP(ctx, server, msg, timeout)
	}
}

// exchangeUDP performs a UDP query and falls back to TCP on truncation
func exchangeUDP(ctx context.Context, server string, msg *dns.Msg, timeout time.Duration) (*dns.Msg, time.Duration, error) {
	server = withPort(server, "53")

	client := &dns.Client{
		Net:     "udp",
		Timeout: timeout,
	}

	resp, rtt, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, 0, fmt.Errorf("UDP query failed: %w", err)
	}
	if resp == nil {
		return nil, 0, fmt.Errorf("empty response")
	}

	if resp.Truncated {
		client.Net = "tcp"
		resp, rtt, err = client.ExchangeContext(ctx, msg, server)
		if err != nil {
			return nil, 0, fmt.Errorf("TCP query failed: %w", err)
		}
		if resp == nil {
			return nil, 0, fmt.Errorf("empty response")
		}
	}

	return resp, rtt, nil
}

// exchangeDoT performs a DNS over TLS query
func exchangeDoT(ctx context.Context, server string, msg *dns.Msg, timeout time.Duration) (*dns.Msg, time.Duration, error) {
	host := server
	if h, _, err := net.SplitHostPort(server); err == nil {
		host = h
	}

	client := &dns.Client{
		Net:     "tcp-tls",
		Timeout: timeout,
		TLSConfig: &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		},
	}

	resp, rtt, err := client.ExchangeContext(ctx, msg, withPort(server, "853"))
	if err != nil {
		return nil, 0, fmt.Errorf("DoT query failed: %w", err)
	}
	if resp == nil {
		return nil, 0, fmt.Errorf("empty response")
	}

	return resp, rtt, nil
}

// withPort ensures server has a port
func withPort(server, port string) string {
	if _, _, err := net.SplitHostPort(server); err != nil {
		return net.JoinHostPort(server, port)
	}
	return server
}
