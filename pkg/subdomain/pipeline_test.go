package subdomain_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velemoonkon/subprobe/pkg/dns"
	"github.com/velemoonkon/subprobe/pkg/scanner"
	"github.com/velemoonkon/subprobe/pkg/subdomain"
)

// startZone serves A records for zone over UDP; unknown names get NXDOMAIN
func startZone(t *testing.T, zone map[string]string) string {
	t.Helper()

	handler := mdns.HandlerFunc(func(w mdns.ResponseWriter, req *mdns.Msg) {
		m := new(mdns.Msg)
		m.SetReply(req)

		q := req.Question[0]
		ip, ok := zone[strings.ToLower(q.Name)]
		switch {
		case !ok:
			m.SetRcode(req, mdns.RcodeNameError)
		case q.Qtype == mdns.TypeA:
			if rr, err := mdns.NewRR(fmt.Sprintf("%s 60 IN A %s", q.Name, ip)); err == nil {
				m.Answer = append(m.Answer, rr)
			}
		}
		w.WriteMsg(m)
	})

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &mdns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started

	t.Cleanup(func() { srv.Shutdown() })
	return pc.LocalAddr().String()
}

// listen opens a TCP listener on 127.0.0.1 that accepts and drops connections
func listen(t *testing.T) int {
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
	return ln.Addr().(*net.TCPAddr).Port
}

// closedPort returns a port that had a listener a moment ago and has none now
func closedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestPipeline_EnumerateResolveProbe(t *testing.T) {
	crt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"name_value": "open.example.test\nclosed.example.test"},
			{"name_value": "gone.example.test"}
		]`))
	}))
	t.Cleanup(crt.Close)

	dnsAddr := startZone(t, map[string]string{
		"open.example.test.":   "127.0.0.1",
		"closed.example.test.": "127.0.0.2",
	})
	resolver := dns.NewResolver([]string{dnsAddr}, dns.QueryOptions{Timeout: time.Second})

	openPort := listen(t)
	shutPort := closedPort(t)

	enumerator := subdomain.NewEnumerator(
		[]subdomain.Source{subdomain.NewCrtShSourceWithURL(crt.Client(), crt.URL+"/")},
		resolver, 4,
	)
	s := scanner.NewScanner(scanner.Config{
		HostConcurrency: 2,
		PortConcurrency: 2,
		ConnectTimeout:  time.Second,
		Ports:           []int{openPort, shutPort},
		Quiet:           true,
	}, enumerator, nil, resolver)

	result, err := s.Scan(t.Context(), "example.test")
	require.NoError(t, err)

	require.Len(t, result.Hosts, 2, "gone.example.test does not resolve and must be dropped")
	byName := make(map[string][]int)
	for _, h := range result.Hosts {
		byName[h.Name] = h.PortNumbers()
	}

	assert.Equal(t, []int{openPort}, byName["open.example.test"])
	assert.Empty(t, byName["closed.example.test"])
	assert.Contains(t, byName, "closed.example.test")

	assert.Equal(t, "example.test", result.Domain)
	assert.NotEmpty(t, result.ID)
	assert.Positive(t, result.Elapsed)
}

func TestPipeline_SourceFailureAbortsScan(t *testing.T) {
	crt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(crt.Close)

	enumerator := subdomain.NewEnumerator(
		[]subdomain.Source{subdomain.NewCrtShSourceWithURL(crt.Client(), crt.URL+"/")},
		nil, 1,
	)
	s := scanner.NewScanner(scanner.DefaultConfig(), enumerator, nil, nil)

	result, err := s.Scan(context.Background(), "example.test")
	require.Error(t, err)
	assert.Nil(t, result)

	var enumErr *subdomain.EnumerationError
	require.ErrorAs(t, err, &enumErr)
	assert.Equal(t, http.StatusTooManyRequests, enumErr.StatusCode)
}
