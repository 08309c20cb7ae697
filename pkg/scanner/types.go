package scanner

import (
	"context"
	"net"
	"time"
)

// Port is one probed TCP port. Only open ports are ever recorded on a Host.
type Port struct {
	Number int  `json:"port"`
	Open   bool `json:"open"`
}

// Host is one discovered hostname and the ports found open on it
type Host struct {
	Name      string `json:"host"`
	OpenPorts []Port `json:"open_ports"`
}

// PortNumbers returns the open port numbers in the order they were recorded
func (h Host) PortNumbers() []int {
	nums := make([]int, 0, len(h.OpenPorts))
	for _, p := range h.OpenPorts {
		nums = append(nums, p.Number)
	}
	return nums
}

// ScanResult is the aggregate of one run
type ScanResult struct {
	ID        string        `json:"scan_id"`
	Domain    string        `json:"domain"`
	Hosts     []Host        `json:"hosts"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// OpenPortCount returns the number of open ports across all hosts
func (r *ScanResult) OpenPortCount() int {
	n := 0
	for _, h := range r.Hosts {
		n += len(h.OpenPorts)
	}
	return n
}

// Enumerator discovers the hosts to probe for a root domain
type Enumerator interface {
	Enumerate(ctx context.Context, domain string) ([]Host, error)
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// HostResolver maps a hostname to addresses. *net.Resolver and *dns.Resolver satisfy it.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Config contains scanner configuration
type Config struct {
	HostConcurrency int           // Hosts probed at once (outer gate, 0 or negative = 100)
	PortConcurrency int           // Ports probed at once per host (inner gate, 0 or negative = 200)
	MaxInFlight     int           // Global ceiling on in-flight connects (0 = HostConcurrency*PortConcurrency)
	ConnectTimeout  time.Duration // Timeout for a single connect attempt
	HostTimeout     time.Duration // Optional deadline for all ports of one host (0 = none)
	RateLimit       int           // Max connect attempts per second (0 or negative = no limit)
	Ports           []int         // Candidate port table (empty = CommonPorts)
	Quiet           bool
}

// DefaultConfig returns default scanner configuration
func DefaultConfig() Config {
	return Config{
		HostConcurrency: 100,
		PortConcurrency: 200,
		ConnectTimeout:  3 * time.Second,
		Ports:           CommonPorts,
	}
}
