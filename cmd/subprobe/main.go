package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/velemoonkon/subprobe/pkg/config"
	"github.com/velemoonkon/subprobe/pkg/dns"
	"github.com/velemoonkon/subprobe/pkg/httpclient"
	"github.com/velemoonkon/subprobe/pkg/input"
	"github.com/velemoonkon/subprobe/pkg/output"
	"github.com/velemoonkon/subprobe/pkg/scanner"
	"github.com/velemoonkon/subprobe/pkg/subdomain"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd builds the root command. Flag defaults come from config, so config.Init
// must run first.
func newRootCmd() *cobra.Command {
	var flags ScanFlags

	cmd := &cobra.Command{
		Use:   "subprobe [flags] <domain>",
		Short: "Subdomain enumerator and TCP port scanner",
		Long: `Subprobe - find the subdomains of a domain and the TCP ports they have open

For the given domain it:
  • Collects subdomain names from certificate transparency logs (crt.sh)
  • Drops names that no longer resolve
  • Connects to the 100 most common TCP ports of every remaining host

Output formats:
  • text (default) - one block per host
  • JSONL - streaming, pipe to jq
  • Parquet - columnar, query with DuckDB`,

		Example: `  # Basic scan
  subprobe example.com

  # Gentler scan: fewer hosts and ports at once, 500 connects/second
  subprobe example.com -c 20 -p 50 -r 500

  # Only web ports, JSONL to a file
  subprobe example.com --ports 80,443,8000-8100 --format jsonl -o results.jsonl

  # Every discovery source, resolved through Cloudflare DoH
  subprobe example.com --source all --resolver https://cloudflare-dns.com/dns-query

  # Parquet output for analytics
  subprobe example.com --format parquet -o scan.parquet
  # Then query: duckdb -c "SELECT host, open_ports FROM 'scan.parquet' WHERE open_port_count > 0"`,

		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return &UsageError{Msg: err.Error()}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), cmd.OutOrStdout(), flags, args[0])
		},
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate(fmt.Sprintf("subprobe %s (commit: %s, built: %s)\n", version, commit, date))
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Msg: err.Error()}
	})

	f := cmd.Flags()

	// Concurrency
	f.IntVarP(&flags.HostConcurrency, "host-concurrency", "c", config.Scanner.DefaultHostConcurrency, "Hosts probed at once")
	f.IntVarP(&flags.PortConcurrency, "port-concurrency", "p", config.Scanner.DefaultPortConcurrency, "Ports probed at once per host")
	f.IntVar(&flags.MaxInFlight, "max-inflight", 0, "Max connects in flight overall (0 = host x port concurrency)")

	// Timing
	f.DurationVarP(&flags.Timeout, "timeout", "t", config.Scanner.DefaultConnectTimeout, "Timeout per connect attempt")
	f.DurationVar(&flags.HostTimeout, "host-timeout", 0, "Deadline for all ports of one host (0 = none)")
	f.DurationVar(&flags.HTTPTimeout, "http-timeout", config.HTTP.RequestTimeout, "Timeout per discovery request")
	f.IntVarP(&flags.Rate, "rate", "r", config.Scanner.DefaultRateLimit, "Max connects/second (0 = unlimited)")

	// Discovery
	f.StringVar(&flags.Source, "source", config.Scanner.DefaultSource, "Discovery sources: "+strings.Join(subdomain.SourceNames(), ", ")+", all")
	f.BoolVar(&flags.NoResolve, "no-resolve", !config.Scanner.DefaultResolve, "Keep names that do not resolve")
	f.StringVar(&flags.Resolvers, "resolver", "", "DNS servers, comma-separated (default: system)")
	f.StringVar(&flags.Ports, "ports", "", "Ports to probe, e.g. 22,80,8000-8100 (default: 100 common ports)")

	// Output
	f.StringVarP(&flags.Output, "output", "o", "-", "Output file (- for stdout)")
	f.StringVar(&flags.Format, "format", "text", "Output format: text, jsonl, parquet")

	// Logging
	f.BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress progress output")
	f.BoolVarP(&flags.Verbose, "verbose", "v", false, "Verbose logging")

	cmd.SetUsageTemplate(usageTemplate)
	return cmd
}

// runScan writes results to stdout when -o is "-"
func runScan(ctx context.Context, stdout io.Writer, flags ScanFlags, arg string) error {
	initLogger(flags.Verbose, flags.Quiet)

	// Everything that can be rejected is checked before the first request
	domain, err := input.ParseDomain(arg)
	if err != nil {
		return &UsageError{Msg: err.Error()}
	}
	cfg, err := ResolveScanConfig(flags)
	if err != nil {
		return err
	}
	format, err := ResolveFormat(flags.Format, flags.Output)
	if err != nil {
		return err
	}
	servers, err := ParseResolvers(flags.Resolvers)
	if err != nil {
		return err
	}

	httpCfg := config.HTTP
	httpCfg.RequestTimeout = flags.HTTPTimeout
	sources, err := subdomain.NewSources(flags.Source, httpclient.New(httpCfg))
	if err != nil {
		return &UsageError{Msg: err.Error()}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			slog.Info("stopping scan...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Interface values stay nil with --no-resolve
	var (
		nameFilter   subdomain.Resolver
		hostResolver scanner.HostResolver
	)
	if !flags.NoResolve {
		r := newResolver(servers)
		slog.Debug("using DNS servers", "servers", r.Servers())
		nameFilter, hostResolver = r, r
	}

	enumerator := subdomain.NewEnumerator(sources, nameFilter, cfg.HostConcurrency)
	s := scanner.NewScanner(cfg, enumerator, nil, hostResolver)

	slog.Info("starting scan", "domain", domain, "source", flags.Source, "ports", len(cfg.Ports))

	result, err := s.Scan(ctx, domain)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("scan interrupted: %w", err)
		}
		if subdomain.IsMalformed(err) {
			return fmt.Errorf("scan failed: discovery source sent an unreadable response, it may be rate limiting: %w", err)
		}
		return fmt.Errorf("scan failed: %w", err)
	}

	// Opened only now so a failed scan leaves an existing output file untouched
	w, err := createOutputWriter(format, flags.Output, stdout)
	if err != nil {
		return err
	}

	writeErr := w.Write(result)
	if closeErr := w.Close(); closeErr != nil && writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write results: %w", writeErr)
	}

	slog.Info("scan completed",
		"hosts", len(result.Hosts),
		"written", w.Count(),
		"open_ports", result.OpenPortCount(),
		"duration", result.Elapsed.Round(time.Millisecond))

	return nil
}

func newResolver(servers []string) *dns.Resolver {
	opts := dns.DefaultQueryOptions()
	opts.Timeout = config.DNS.QueryTimeout

	if len(servers) > 0 {
		return dns.NewResolver(servers, opts)
	}
	return dns.NewSystemResolver(opts)
}

// resultWriter is implemented by every output format
type resultWriter interface {
	Write(*scanner.ScanResult) error
	Close() error
	Count() int
}

func createOutputWriter(format, outputFile string, stdout io.Writer) (resultWriter, error) {
	toStdout := outputFile == "" || outputFile == "-"

	switch format {
	case "parquet":
		pw, err := output.NewParquetWriter(outputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create parquet writer: %w", err)
		}
		return pw, nil

	case "jsonl":
		if toStdout {
			return output.NewWriterFromWriter(stdout), nil
		}
		jw, err := output.NewWriter(outputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create writer: %w", err)
		}
		return jw, nil

	default: // text
		if toStdout && stdout != os.Stdout {
			return output.NewTextWriterFromWriter(stdout), nil
		}
		tw, err := output.NewTextWriter(outputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create writer: %w", err)
		}
		return tw, nil
	}
}

func initLogger(verbose, quiet bool) {
	var level slog.Level
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func main() {
	config.Init()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		var usageErr *UsageError
		if errors.As(err, &usageErr) {
			fmt.Fprintln(os.Stderr, "Run 'subprobe --help' for usage.")
		}
		os.Exit(1)
	}
}

const usageTemplate = `Usage:
  {{.UseLine}}

Examples:
{{.Example}}

Concurrency:
  -c, --host-concurrency int   Hosts probed at once (default 100)
  -p, --port-concurrency int   Ports probed at once per host (default 200)
      --max-inflight int       Max connects in flight overall, 0 = host x port (default 0)

Timing:
  -t, --timeout duration       Timeout per connect attempt (default 3s)
      --host-timeout duration  Deadline for all ports of one host, 0 = none (default 0s)
      --http-timeout duration  Timeout per discovery request (default 5s)
  -r, --rate int               Max connects/second, 0=unlimited (default 0)

Discovery:
      --source string          Sources: crtsh, alienvault, all (default "crtsh")
      --no-resolve             Keep names that do not resolve
      --resolver string        DNS servers, comma-separated: 1.1.1.1, tls://1.1.1.1,
                               https://host/dns-query (default: system)
      --ports string           Ports to probe, e.g. 22,80,8000-8100 (default: 100 common ports)

Output:
  -o, --output string          Output file, - for stdout (default "-")
      --format string          Format: text, jsonl, parquet (default "text")

Logging:
  -q, --quiet                  Suppress progress output
  -v, --verbose                Verbose logging

Other:
  -h, --help                   Show help
      --version                Show version
`
