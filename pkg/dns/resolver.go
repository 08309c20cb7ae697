package dns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/miekg/dns"
	"github.com/velemoonkon/subprobe/pkg/config"
)

// Resolver looks up host addresses with miekg/dns against a fixed list of upstream servers.
// Servers are tried in order until one answers.
type Resolver struct {
	servers []string
	opts    QueryOptions
}

// NewResolver creates a resolver for the given servers (see Exchange for accepted forms)
func NewResolver(servers []string, opts QueryOptions) *Resolver {
	return &Resolver{servers: servers, opts: opts}
}

// NewSystemResolver creates a resolver from the system resolv.conf, falling back to
// config.DNS.Fallback when the file is missing or lists no servers
func NewSystemResolver(opts QueryOptions) *Resolver {
	var servers []string

	cc, err := dns.ClientConfigFromFile(config.DNS.ResolvConf)
	if err != nil {
		slog.Debug("no system resolver config", "path", config.DNS.ResolvConf, "error", err)
	} else {
		for _, s := range cc.Servers {
			servers = append(servers, net.JoinHostPort(s, cc.Port))
		}
	}

	if len(servers) == 0 && config.DNS.Fallback != "" {
		servers = []string{config.DNS.Fallback}
	}

	return NewResolver(servers, opts)
}

// Servers returns the upstream servers in query order
func (r *Resolver) Servers() []string {
	return r.servers
}

// LookupHost returns the IPv4 then IPv6 addresses of host.
// It returns ErrNotFound for NXDOMAIN and ErrNoAddress when no address records exist.
func (r *Resolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{ip.String()}, nil
	}

	var addrs []string
	var lastErr error

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		resp, err := r.query(ctx, host, qtype)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.Rcode == dns.RcodeNameError {
			return nil, fmt.Errorf("%s: %w", host, ErrNotFound)
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("%s: rcode %s", host, dns.RcodeToString[resp.Rcode])
			continue
		}

		addrs = append(addrs, extractAddresses(resp)...)
	}

	if len(addrs) > 0 {
		return addrs, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%s: %w", host, ErrNoAddress)
}

// Resolves reports whether host has at least one address
func (r *Resolver) Resolves(ctx context.Context, host string) bool {
	addrs, err := r.LookupHost(ctx, host)
	return err == nil && len(addrs) > 0
}

// query asks each server in turn and returns the first response
func (r *Resolver) query(ctx context.Context, host string, qtype uint16) (*dns.Msg, error) {
	if len(r.servers) == 0 {
		return nil, ErrNoServers
	}

	msg := newQuery(host, qtype, r.opts)

	var errs []error
	for _, server := range r.servers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		resp, _, err := Exchange(ctx, server, msg, r.opts.Timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
			continue
		}
		return resp, nil
	}

	return nil, errors.Join(errs...)
}

// extractAddresses collects A and AAAA answers. CNAME chains are flattened by the
// upstream recursive resolver, so address records for the alias target appear in the
// same answer section.
func extractAddresses(resp *dns.Msg) []string {
	var addrs []string
	for _, rr := range resp.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			addrs = append(addrs, rec.A.String())
		case *dns.AAAA:
			addrs = append(addrs, rec.AAAA.String())
		}
	}
	return addrs
}

// IsDomainName reports whether s is a syntactically valid hostname: letters, digits,
// hyphens and underscores in labels of at most 63 octets
func IsDomainName(s string) bool {
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	_, ok := dns.IsDomainName(s)
	return ok
}
