package dns

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the name does not exist (NXDOMAIN)
	ErrNotFound = errors.New("no such host")

	// ErrNoAddress is returned when the name exists but has no A or AAAA records
	ErrNoAddress = errors.New("no A or AAAA records")

	// ErrNoServers is returned by a Resolver without upstream servers
	ErrNoServers = errors.New("no DNS servers configured")
)

// QueryOptions contains options for DNS queries
type QueryOptions struct {
	Timeout          time.Duration
	RecursionDesired bool
	UseEDNS          bool
	EDNSBufferSize   uint16
}

// DefaultQueryOptions returns default query options
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		Timeout:          2 * time.Second,
		RecursionDesired: true,
		UseEDNS:          true,
		EDNSBufferSize:   4096,
	}
}
