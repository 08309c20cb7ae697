package main

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/velemoonkon/subprobe/pkg/dns"
	"github.com/velemoonkon/subprobe/pkg/input"
	"github.com/velemoonkon/subprobe/pkg/scanner"
)

// ScanFlags represents the CLI flags for a scan
type ScanFlags struct {
	// Concurrency
	HostConcurrency int
	PortConcurrency int
	MaxInFlight     int

	// Timing
	Timeout     time.Duration // per connect attempt
	HostTimeout time.Duration // all ports of one host, 0 = none
	HTTPTimeout time.Duration // per enumeration request
	Rate        int           // connects per second, 0 = unlimited

	// Discovery
	Source    string // "crtsh", "alienvault", "all", or comma-separated
	NoResolve bool
	Resolvers string // comma-separated DNS servers, empty = system
	Ports     string // port list, empty = common ports

	// Output
	Output string
	Format string

	// Logging
	Quiet   bool
	Verbose bool
}

// UsageError reports a bad invocation: wrong argument count or an invalid flag value.
// It is always returned before any network activity.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// ResolveScanConfig validates flags and converts them to scanner configuration
func ResolveScanConfig(flags ScanFlags) (scanner.Config, error) {
	switch {
	case flags.HostConcurrency < 1:
		return scanner.Config{}, usageErrorf("--host-concurrency must be at least 1, got %d", flags.HostConcurrency)
	case flags.PortConcurrency < 1:
		return scanner.Config{}, usageErrorf("--port-concurrency must be at least 1, got %d", flags.PortConcurrency)
	case flags.MaxInFlight < 0:
		return scanner.Config{}, usageErrorf("--max-inflight cannot be negative, got %d", flags.MaxInFlight)
	case flags.Timeout <= 0:
		return scanner.Config{}, usageErrorf("--timeout must be positive, got %s", flags.Timeout)
	case flags.HostTimeout < 0:
		return scanner.Config{}, usageErrorf("--host-timeout cannot be negative, got %s", flags.HostTimeout)
	case flags.HTTPTimeout <= 0:
		return scanner.Config{}, usageErrorf("--http-timeout must be positive, got %s", flags.HTTPTimeout)
	case flags.Rate < 0:
		return scanner.Config{}, usageErrorf("--rate cannot be negative, got %d", flags.Rate)
	}

	ports := scanner.CommonPorts
	if strings.TrimSpace(flags.Ports) != "" {
		parsed, err := input.ParsePorts(flags.Ports)
		if err != nil {
			return scanner.Config{}, usageErrorf("invalid --ports: %v", err)
		}
		ports = parsed
	}

	return scanner.Config{
		HostConcurrency: flags.HostConcurrency,
		PortConcurrency: flags.PortConcurrency,
		MaxInFlight:     flags.MaxInFlight,
		ConnectTimeout:  flags.Timeout,
		HostTimeout:     flags.HostTimeout,
		RateLimit:       flags.Rate,
		Ports:           ports,
		Quiet:           flags.Quiet,
	}, nil
}

// ResolveFormat normalizes the output format and checks it against the destination
func ResolveFormat(format, output string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))

	switch format {
	case "", "text":
		return "text", nil
	case "jsonl":
		return "jsonl", nil
	case "parquet":
		if output == "" || output == "-" {
			return "", usageErrorf("parquet cannot write to stdout, use -o file.parquet")
		}
		return "parquet", nil
	default:
		return "", usageErrorf("unknown format %q (available: text, jsonl, parquet)", format)
	}
}

// ParseResolvers splits the --resolver value into DNS server addresses.
// Accepted forms: "1.1.1.1", "1.1.1.1:53", "ns.example.com", "tls://1.1.1.1",
// "https://dns.example/dns-query". An empty value returns nil (system resolver).
func ParseResolvers(spec string) ([]string, error) {
	var servers []string

	for _, s := range strings.Split(spec, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !validServer(s) {
			return nil, usageErrorf("invalid --resolver %q", s)
		}
		servers = append(servers, s)
	}
	return servers, nil
}

func validServer(s string) bool {
	if strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") {
		return len(s) > strings.Index(s, "://")+3
	}
	s = strings.TrimPrefix(s, "tls://")

	host := s
	if h, _, err := net.SplitHostPort(s); err == nil {
		host = h
	}
	return net.ParseIP(host) != nil || dns.IsDomainName(host)
}
