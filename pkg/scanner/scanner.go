package scanner

import (
	"context"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/velemoonkon/subprobe/pkg/config"
)

// Scanner orchestrates subdomain enumeration and concurrent per-host port probing
type Scanner struct {
	config     Config
	enumerator Enumerator
	prober     *Prober
}

// NewScanner creates a new scanner with configuration.
// dialer and resolver are passed to the shared Prober; either may be nil.
func NewScanner(cfg Config, enumerator Enumerator, dialer Dialer, resolver HostResolver) *Scanner {
	cfg = normalizeConfig(cfg)

	return &Scanner{
		config:     cfg,
		enumerator: enumerator,
		prober:     NewProber(cfg, dialer, resolver),
	}
}

// Scan enumerates the subdomains of domain and probes every one of them.
// An enumeration error aborts the scan and is returned as is; no partial result is produced.
// Elapsed covers both enumeration and probing.
func (s *Scanner) Scan(ctx context.Context, domain string) (*ScanResult, error) {
	start := time.Now()

	hosts, err := s.enumerator.Enumerate(ctx, domain)
	if err != nil {
		return nil, err
	}

	slog.Info("enumeration complete", "domain", domain, "hosts", len(hosts), "ports", len(s.prober.Ports()))

	probed, err := s.ProbeHosts(ctx, slices.Values(hosts), len(hosts))
	if err != nil {
		return nil, err
	}

	return &ScanResult{
		ID:        uuid.NewString(),
		Domain:    domain,
		Hosts:     probed,
		StartedAt: start,
		Elapsed:   time.Since(start),
	}, nil
}

// ProbeHosts probes hosts from an iterator and returns the finished hosts in completion order.
// Goroutine fan-out is bounded:
// - HostConcurrency workers take hosts from hostChan
// - Per host: the Prober runs at most PortConcurrency connects via errgroup.SetLimit
// - Total in-flight connects ≤ min(MaxInFlight, HostConcurrency × PortConcurrency)
//
// The sizeHint parameter is used for preallocating the result slice. Use 0 if unknown.
func (s *Scanner) ProbeHosts(ctx context.Context, hostSeq iter.Seq[Host], sizeHint int) ([]Host, error) {
	cfg := config.Scanner
	hostChan := make(chan Host, max(0, cfg.HostChannelBuffer))
	resultChan := make(chan Host, max(0, cfg.ResultChannelBuffer))
	var wg sync.WaitGroup

	// Start workers
	for range s.config.HostConcurrency {
		wg.Go(func() {
			s.worker(ctx, hostChan, resultChan)
		})
	}

	// Start result collector with preallocated slice
	results := make([]Host, 0, max(0, sizeHint))

	var collectorWg sync.WaitGroup
	collectorWg.Go(func() {
		for host := range resultChan {
			results = append(results, host)
			if !s.config.Quiet {
				logProgress(host)
			}
		}
	})

	// Feed hosts to workers with cooperative cancellation
	go func() {
		defer close(hostChan)
		for host := range hostSeq {
			select {
			case <-ctx.Done():
				return
			case hostChan <- host:
			}
		}
	}()

	// Wait for workers to complete
	wg.Wait()
	close(resultChan)

	// Wait for collector to finish
	collectorWg.Wait()

	return results, ctx.Err()
}

// worker owns every host it takes until the finished copy is handed to the collector
func (s *Scanner) worker(ctx context.Context, hostChan <-chan Host, resultChan chan<- Host) {
	for {
		select {
		case <-ctx.Done():
			return
		case host, ok := <-hostChan:
			if !ok {
				return
			}

			result := s.prober.Probe(ctx, host)

			select {
			case <-ctx.Done():
				return
			case resultChan <- result:
			}
		}
	}
}

// logProgress logs hosts that have something to report
func logProgress(host Host) {
	if len(host.OpenPorts) == 0 {
		slog.Debug("host probed", "host", host.Name, "open", 0)
		return
	}
	slog.Info("host probed", "host", host.Name, "open", host.PortNumbers())
}
