package scanner

import (
	"context"
	"maps"
	"net"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// fakeConn is the connection handed out for an accepted dial
type fakeConn struct {
	net.Conn
}

func (fakeConn) Close() error { return nil }

// fakeNetwork is a Dialer where open lists the accepting ports of each host.
// Every dial takes delay (or until ctx is done) and is counted while in flight.
type fakeNetwork struct {
	open  map[string][]int
	delay time.Duration
	hang  bool // never answer; dials end only when ctx is done

	attempts atomic.Int32

	mu       sync.Mutex
	current  int
	peak     int
	perHost  map[string]int
	peakHost map[string]int
	dialed   map[string][]int
}

func newFakeNetwork(open map[string][]int) *fakeNetwork {
	return &fakeNetwork{
		open:     open,
		perHost:  make(map[string]int),
		peakHost: make(map[string]int),
		dialed:   make(map[string][]int),
	}
}

func (n *fakeNetwork) enter(host string, port int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current++
	n.peak = max(n.peak, n.current)
	n.perHost[host]++
	n.peakHost[host] = max(n.peakHost[host], n.perHost[host])
	n.dialed[host] = append(n.dialed[host], port)
}

func (n *fakeNetwork) leave(host string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current--
	n.perHost[host]--
}

func (n *fakeNetwork) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	n.attempts.Add(1)

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	n.enter(host, port)
	defer n.leave(host)

	if n.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if n.delay > 0 {
		timer := time.NewTimer(n.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if slices.Contains(n.open[host], port) {
		return fakeConn{}, nil
	}
	return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
}

func (n *fakeNetwork) peaks() (total int, perHost map[string]int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peak, maps.Clone(n.peakHost)
}

func (n *fakeNetwork) dialedPorts(host string) []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.dialed[host])
}

// stubEnumerator returns fixed hosts after an optional delay
type stubEnumerator struct {
	hosts []Host
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (e *stubEnumerator) Enumerate(ctx context.Context, domain string) ([]Host, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.err != nil {
		return nil, e.err
	}
	return slices.Clone(e.hosts), nil
}

// stubResolver maps names to addresses; unknown names fail
type stubResolver map[string]string

func (r stubResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	addr, ok := r[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return []string{addr}, nil
}

func hostsNamed(names ...string) []Host {
	hosts := make([]Host, 0, len(names))
	for _, n := range names {
		hosts = append(hosts, Host{Name: n, OpenPorts: []Port{}})
	}
	return hosts
}

func byName(hosts []Host) map[string]Host {
	m := make(map[string]Host, len(hosts))
	for _, h := range hosts {
		m[h.Name] = h
	}
	return m
}
