package scanner

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Quiet = true
	cfg.ConnectTimeout = time.Second
	return cfg
}

func TestCommonPorts(t *testing.T) {
	assert.Len(t, CommonPorts, 100)

	seen := make(map[int]bool)
	for _, p := range CommonPorts {
		assert.GreaterOrEqual(t, p, 1)
		assert.LessOrEqual(t, p, 65535)
		assert.False(t, seen[p], "duplicate port %d", p)
		seen[p] = true
	}
	assert.True(t, seen[22])
	assert.True(t, seen[80])
	assert.True(t, seen[443])
}

func TestScan_ExampleScenario(t *testing.T) {
	network := newFakeNetwork(map[string][]int{
		"a.example.test": {22, 80},
	})
	enum := &stubEnumerator{hosts: hostsNamed("a.example.test", "b.example.test")}

	s := NewScanner(quietConfig(), enum, network, nil)
	result, err := s.Scan(context.Background(), "example.test")
	require.NoError(t, err)

	require.Len(t, result.Hosts, 2)
	hosts := byName(result.Hosts)
	assert.ElementsMatch(t, []int{22, 80}, hosts["a.example.test"].PortNumbers())
	assert.Empty(t, hosts["b.example.test"].OpenPorts)
	assert.NotNil(t, hosts["b.example.test"].OpenPorts)

	for _, p := range hosts["a.example.test"].OpenPorts {
		assert.True(t, p.Open)
	}

	assert.Equal(t, "example.test", result.Domain)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, 2, result.OpenPortCount())
	assert.Positive(t, result.Elapsed)
	assert.EqualValues(t, 1, enum.calls.Load())
}

func TestScan_EveryHostProbedOnce(t *testing.T) {
	names := make([]string, 50)
	for i := range names {
		names[i] = "h" + strconv.Itoa(i) + ".example.test"
	}
	network := newFakeNetwork(nil)
	enum := &stubEnumerator{hosts: hostsNamed(names...)}

	cfg := quietConfig()
	cfg.HostConcurrency = 7
	cfg.Ports = []int{22, 80, 443}

	result, err := NewScanner(cfg, enum, network, nil).Scan(context.Background(), "example.test")
	require.NoError(t, err)

	require.Len(t, result.Hosts, len(names))
	seen := make(map[string]bool)
	for _, h := range result.Hosts {
		key := strings.ToLower(h.Name)
		assert.False(t, seen[key], "duplicate host %s", h.Name)
		seen[key] = true
		assert.ElementsMatch(t, cfg.Ports, network.dialedPorts(h.Name))
	}
	assert.EqualValues(t, len(names)*len(cfg.Ports), network.attempts.Load())
}

func TestScan_OpenPortsSubsetOfTable(t *testing.T) {
	// The host accepts more ports than the table holds
	network := newFakeNetwork(map[string][]int{
		"a.example.test": {21, 22, 80, 8080, 9000},
	})
	enum := &stubEnumerator{hosts: hostsNamed("a.example.test")}

	cfg := quietConfig()
	cfg.Ports = []int{22, 80, 443}

	result, err := NewScanner(cfg, enum, network, nil).Scan(context.Background(), "example.test")
	require.NoError(t, err)

	require.Len(t, result.Hosts, 1)
	for _, p := range result.Hosts[0].PortNumbers() {
		assert.Contains(t, cfg.Ports, p)
	}
	assert.ElementsMatch(t, []int{22, 80}, result.Hosts[0].PortNumbers())
}

func TestScan_EnumerationErrorAborts(t *testing.T) {
	boom := errors.New("crt.sh unavailable")
	network := newFakeNetwork(nil)
	enum := &stubEnumerator{err: boom}

	result, err := NewScanner(quietConfig(), enum, network, nil).Scan(context.Background(), "example.test")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, result)
	assert.Zero(t, network.attempts.Load())
}

func TestScan_NoHosts(t *testing.T) {
	network := newFakeNetwork(nil)
	enum := &stubEnumerator{}

	result, err := NewScanner(quietConfig(), enum, network, nil).Scan(context.Background(), "example.test")
	require.NoError(t, err)
	assert.Empty(t, result.Hosts)
	assert.Zero(t, network.attempts.Load())
}

func TestScan_Cancelled(t *testing.T) {
	network := newFakeNetwork(nil)
	enum := &stubEnumerator{hosts: hostsNamed("a.example.test")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewScanner(quietConfig(), enum, network, nil).Scan(ctx, "example.test")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestProbe_UsesResolvedAddress(t *testing.T) {
	network := newFakeNetwork(map[string][]int{
		"192.0.2.7": {443},
	})
	resolver := stubResolver{"a.example.test": "192.0.2.7"}

	cfg := quietConfig()
	cfg.Ports = []int{80, 443}
	p := NewProber(cfg, network, resolver)

	host := p.Probe(context.Background(), Host{Name: "a.example.test"})
	assert.Equal(t, "a.example.test", host.Name)
	assert.Equal(t, []int{443}, host.PortNumbers())
	assert.ElementsMatch(t, []int{80, 443}, network.dialedPorts("192.0.2.7"))
}

func TestProbe_UnresolvableHostHasNoPorts(t *testing.T) {
	network := newFakeNetwork(nil)
	p := NewProber(quietConfig(), network, stubResolver{})

	host := p.Probe(context.Background(), Host{Name: "gone.example.test"})
	assert.NotNil(t, host.OpenPorts)
	assert.Empty(t, host.OpenPorts)
	assert.Zero(t, network.attempts.Load())
}

func TestProbe_DoesNotShareInputSlice(t *testing.T) {
	network := newFakeNetwork(map[string][]int{"a.example.test": {22}})
	cfg := quietConfig()
	cfg.Ports = []int{22}
	p := NewProber(cfg, network, nil)

	in := Host{Name: "a.example.test", OpenPorts: make([]Port, 0, 4)}
	out := p.Probe(context.Background(), in)

	assert.Empty(t, in.OpenPorts)
	assert.Equal(t, []int{22}, out.PortNumbers())
}

func TestProber_Defaults(t *testing.T) {
	p := NewProber(Config{}, nil, nil)

	assert.Equal(t, CommonPorts, p.Ports())
	assert.Equal(t, 200, p.concurrency)
	assert.Equal(t, 3*time.Second, p.timeout)
	assert.Zero(t, p.hostTimeout)
}

// listen starts a local TCP listener that accepts and closes connections
func listen(t *testing.T) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// closedPort returns a local port with nothing listening on it
func closedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestScanPort_LocalListener(t *testing.T) {
	host, port := listen(t)
	dialer := &net.Dialer{}

	assert.True(t, ScanPort(context.Background(), dialer, host, port, time.Second))
	assert.False(t, ScanPort(context.Background(), dialer, host, closedPort(t), time.Second))
	assert.False(t, ScanPort(context.Background(), dialer, "host.invalid", port, time.Second))
}

func TestScan_LocalListenerFoundEveryRun(t *testing.T) {
	host, port := listen(t)
	closed := closedPort(t)

	cfg := quietConfig()
	cfg.Ports = []int{closed, port}
	enum := &stubEnumerator{hosts: hostsNamed(host)}
	s := NewScanner(cfg, enum, nil, nil)

	for run := range 2 {
		result, err := s.Scan(context.Background(), "localhost.test")
		require.NoError(t, err, "run %d", run)
		require.Len(t, result.Hosts, 1)
		assert.Equal(t, []int{port}, result.Hosts[0].PortNumbers(), "run %d", run)
	}
}
