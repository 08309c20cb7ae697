package input

import (
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/velemoonkon/subprobe/pkg/subdomain"
)

// ParseDomain validates and normalizes the root domain given on the command line.
// A URL is accepted and reduced to its host ("https://Example.com/path" → "example.com").
func ParseDomain(arg string) (string, error) {
	d := strings.TrimSpace(arg)
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}

	domain, ok := subdomain.NormalizeDomain(d)
	if !ok {
		return "", fmt.Errorf("invalid domain: %q", arg)
	}
	return domain, nil
}

// ParsePorts parses a port list such as "22,80,8000-8010".
// Ports keep their first-seen order and duplicates are dropped.
func ParsePorts(spec string) ([]int, error) {
	var ports []int
	seen := make(map[int]bool)

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		seq, err := PortRange(part)
		if err != nil {
			return nil, err
		}
		for p := range seq {
			if !seen[p] {
				seen[p] = true
				ports = append(ports, p)
			}
		}
	}

	if len(ports) == 0 {
		return nil, fmt.Errorf("no ports in %q", spec)
	}
	return ports, nil
}

// PortRange returns an iterator over a single port ("80") or an inclusive range ("8000-8010")
func PortRange(spec string) (iter.Seq[int], error) {
	lo, hi, isRange := strings.Cut(spec, "-")

	first, err := parsePort(lo)
	if err != nil {
		return nil, err
	}
	last := first
	if isRange {
		if last, err = parsePort(hi); err != nil {
			return nil, err
		}
		if last < first {
			return nil, fmt.Errorf("invalid port range %q", spec)
		}
	}

	return func(yield func(int) bool) {
		for p := first; p <= last; p++ {
			if !yield(p) {
				return
			}
		}
	}, nil
}

// parsePort parses a single port number in 1-65535
func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 || p > 65535 {
		return 0, fmt.Errorf("invalid port: %q", s)
	}
	return p, nil
}
