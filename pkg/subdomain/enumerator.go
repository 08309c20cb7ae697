package subdomain

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/velemoonkon/subprobe/pkg/dns"
	"github.com/velemoonkon/subprobe/pkg/scanner"
	"golang.org/x/sync/errgroup"
)

// Resolver reports whether a hostname currently resolves. *dns.Resolver satisfies it.
type Resolver interface {
	Resolves(ctx context.Context, host string) bool
}

// Enumerator discovers the subdomains of a root domain from one or more sources
type Enumerator struct {
	sources            []Source
	resolver           Resolver
	resolveConcurrency int
}

// NewEnumerator creates an enumerator. With a nil resolver every discovered name is kept;
// otherwise names that do not resolve are dropped, checking at most resolveConcurrency
// names at once.
func NewEnumerator(sources []Source, resolver Resolver, resolveConcurrency int) *Enumerator {
	return &Enumerator{
		sources:            sources,
		resolver:           resolver,
		resolveConcurrency: max(1, resolveConcurrency),
	}
}

// Enumerate returns one Host per distinct name found under domain, with no open ports yet.
// Any source failure aborts enumeration with an *EnumerationError.
func (e *Enumerator) Enumerate(ctx context.Context, domain string) ([]scanner.Host, error) {
	root, ok := NormalizeDomain(domain)
	if !ok {
		return nil, newEnumerationError("input", domain, errInvalidDomain)
	}

	seen := make(map[string]struct{})
	for _, src := range e.sources {
		raw, err := src.Fetch(ctx, root)
		if err != nil {
			return nil, newEnumerationError(src.Name(), root, err)
		}

		before := len(seen)
		for _, name := range raw {
			if n, ok := Normalize(name, root); ok {
				seen[n] = struct{}{}
			}
		}
		slog.Debug("source fetched", "source", src.Name(), "raw", len(raw), "new", len(seen)-before)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)

	if e.resolver != nil {
		names = e.filterResolvable(ctx, names)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	hosts := make([]scanner.Host, 0, len(names))
	for _, name := range names {
		hosts = append(hosts, scanner.Host{Name: name, OpenPorts: []scanner.Port{}})
	}
	return hosts, nil
}

// filterResolvable keeps the names that resolve, preserving order
func (e *Enumerator) filterResolvable(ctx context.Context, names []string) []string {
	resolves := make([]bool, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.resolveConcurrency)
	for i, name := range names {
		g.Go(func() error {
			resolves[i] = e.resolver.Resolves(gctx, name)
			return nil
		})
	}
	g.Wait()

	kept := make([]string, 0, len(names))
	for i, name := range names {
		if resolves[i] {
			kept = append(kept, name)
		} else {
			slog.Debug("dropping unresolvable name", "host", name)
		}
	}
	return kept
}

// NormalizeDomain lowercases and trims a root domain and validates its syntax
func NormalizeDomain(domain string) (string, bool) {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	if d == "" || !dns.IsDomainName(d) || !strings.Contains(d, ".") {
		return "", false
	}
	return d, true
}

// Normalize cleans one candidate name and reports whether it belongs under root.
// Wildcards, names outside root, and syntactically invalid names are rejected.
// root must already be normalized.
func Normalize(name, root string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimSuffix(n, ".")
	if n == "" || strings.Contains(n, "*") {
		return "", false
	}
	if n != root && !strings.HasSuffix(n, "."+root) {
		return "", false
	}
	if !dns.IsDomainName(n) {
		return "", false
	}
	return n, true
}
