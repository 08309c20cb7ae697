package scanner

import (
	"context"
	"log/slog"
	"net"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Prober connect-scans the candidate port table of one host at a time.
// A single Prober is shared by all host workers so that the in-flight ceiling and the
// rate limit apply to the whole scan.
type Prober struct {
	dialer      Dialer
	resolver    HostResolver
	ports       []int
	concurrency int
	timeout     time.Duration
	hostTimeout time.Duration
	inFlight    *semaphore.Weighted
	limiter     *rate.Limiter
}

// NewProber creates a prober. A nil dialer uses net.Dialer; a nil resolver leaves name
// resolution to the dialer on every connect.
func NewProber(cfg Config, dialer Dialer, resolver HostResolver) *Prober {
	cfg = normalizeConfig(cfg)
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	// Treat RateLimit <= 0 as no limit
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	} else {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return &Prober{
		dialer:      dialer,
		resolver:    resolver,
		ports:       cfg.Ports,
		concurrency: cfg.PortConcurrency,
		timeout:     cfg.ConnectTimeout,
		hostTimeout: cfg.HostTimeout,
		inFlight:    semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		limiter:     limiter,
	}
}

// Ports returns the candidate port table
func (p *Prober) Ports() []int {
	return p.ports
}

// Probe scans every candidate port of host and returns it with OpenPorts filled in.
// It never fails: a host that cannot be resolved or reached simply has no open ports.
func (p *Prober) Probe(ctx context.Context, host Host) Host {
	if p.hostTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.hostTimeout)
		defer cancel()
	}

	host.OpenPorts = []Port{}

	target := host.Name
	if p.resolver != nil {
		addrs, err := p.resolver.LookupHost(ctx, host.Name)
		if err != nil || len(addrs) == 0 {
			slog.Debug("host did not resolve", "host", host.Name, "error", err)
			return host
		}
		target = addrs[0]
	}

	for _, port := range p.scanPorts(ctx, target) {
		host.OpenPorts = append(host.OpenPorts, Port{Number: port, Open: true})
	}
	return host
}

// scanPorts scans the port table concurrently with bounded concurrency
func (p *Prober) scanPorts(ctx context.Context, target string) []int {
	var g errgroup.Group
	g.SetLimit(max(1, min(p.concurrency, len(p.ports))))

	// Channel to collect open ports in completion order
	openPortsChan := make(chan int, len(p.ports))

	for _, port := range p.ports {
		g.Go(func() error {
			if p.dial(ctx, target, port) {
				openPortsChan <- port
			}
			return nil
		})
	}

	g.Wait()
	close(openPortsChan)

	return slices.Collect(chanToSeq(openPortsChan))
}

// dial passes the rate limiter and the global in-flight gate before connecting
func (p *Prober) dial(ctx context.Context, target string, port int) bool {
	if err := p.limiter.Wait(ctx); err != nil {
		return false
	}
	if err := p.inFlight.Acquire(ctx, 1); err != nil {
		return false
	}
	defer p.inFlight.Release(1)

	return ScanPort(ctx, p.dialer, target, port, p.timeout)
}

// normalizeConfig fills zero values with defaults
func normalizeConfig(cfg Config) Config {
	if cfg.HostConcurrency <= 0 {
		cfg.HostConcurrency = 100
	}
	if cfg.PortConcurrency <= 0 {
		cfg.PortConcurrency = 200
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = cfg.HostConcurrency * cfg.PortConcurrency
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	if len(cfg.Ports) == 0 {
		cfg.Ports = CommonPorts
	}
	return cfg
}
