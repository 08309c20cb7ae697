package subdomain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/velemoonkon/subprobe/pkg/config"
	"github.com/velemoonkon/subprobe/pkg/httpclient"
)

// Source is a subdomain discovery data source
type Source interface {
	// Name returns the source identifier (e.g., "crtsh")
	Name() string

	// Fetch returns the raw candidate names the source knows for domain.
	// Names may be unnormalized, duplicated, or wildcards.
	Fetch(ctx context.Context, domain string) ([]string, error)
}

// CrtShSource queries the crt.sh certificate transparency search
type CrtShSource struct {
	client  *http.Client
	baseURL string
}

// NewCrtShSource creates a crt.sh source at config.Scanner.CrtShURL. A nil client uses the shared client.
func NewCrtShSource(client *http.Client) *CrtShSource {
	return NewCrtShSourceWithURL(client, config.Scanner.CrtShURL)
}

// NewCrtShSourceWithURL creates a crt.sh source against a custom base URL
func NewCrtShSourceWithURL(client *http.Client, baseURL string) *CrtShSource {
	if client == nil {
		client = httpclient.Shared()
	}
	return &CrtShSource{client: client, baseURL: baseURL}
}

// Name returns the source identifier
func (s *CrtShSource) Name() string {
	return "crtsh"
}

type crtShEntry struct {
	NameValue string `json:"name_value"`
}

// Fetch queries crt.sh for every certificate name under domain
func (s *CrtShSource) Fetch(ctx context.Context, domain string) ([]string, error) {
	u := fmt.Sprintf("%s?q=%%25.%s&output=json", s.baseURL, url.QueryEscape(domain))

	body, err := httpclient.Get(ctx, s.client, u, "application/json")
	if err != nil {
		return nil, err
	}

	var entries []crtShEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &parseError{err: err}
	}

	// name_value holds one name per line
	var names []string
	for _, e := range entries {
		names = append(names, strings.Split(e.NameValue, "\n")...)
	}
	return names, nil
}

// AlienVaultSource queries the AlienVault OTX passive DNS API
type AlienVaultSource struct {
	client  *http.Client
	baseURL string
}

// NewAlienVaultSource creates an AlienVault OTX source at config.Scanner.AlienVaultURL.
// A nil client uses the shared client.
func NewAlienVaultSource(client *http.Client) *AlienVaultSource {
	return NewAlienVaultSourceWithURL(client, config.Scanner.AlienVaultURL)
}

// NewAlienVaultSourceWithURL creates an AlienVault OTX source against a custom base URL
func NewAlienVaultSourceWithURL(client *http.Client, baseURL string) *AlienVaultSource {
	if client == nil {
		client = httpclient.Shared()
	}
	return &AlienVaultSource{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Name returns the source identifier
func (s *AlienVaultSource) Name() string {
	return "alienvault"
}

// Fetch returns the hostnames OTX has observed under domain
func (s *AlienVaultSource) Fetch(ctx context.Context, domain string) ([]string, error) {
	u := fmt.Sprintf("%s/api/v1/indicators/domain/%s/passive_dns", s.baseURL, url.PathEscape(domain))

	body, err := httpclient.Get(ctx, s.client, u, "application/json")
	if err != nil {
		return nil, err
	}

	var resp struct {
		PassiveDNS []struct {
			Hostname string `json:"hostname"`
		} `json:"passive_dns"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &parseError{err: err}
	}

	names := make([]string, 0, len(resp.PassiveDNS))
	for _, r := range resp.PassiveDNS {
		names = append(names, r.Hostname)
	}
	return names, nil
}

// sourceFactories maps source names to constructors
var sourceFactories = map[string]func(*http.Client) Source{
	"crtsh":      func(c *http.Client) Source { return NewCrtShSource(c) },
	"alienvault": func(c *http.Client) Source { return NewAlienVaultSource(c) },
}

// SourceNames returns the names accepted by NewSources
func SourceNames() []string {
	names := make([]string, 0, len(sourceFactories))
	for name := range sourceFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSources parses a comma-separated source list ("all" selects every source)
func NewSources(spec string, client *http.Client) ([]Source, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	if spec == "" || spec == "all" {
		spec = strings.Join(SourceNames(), ",")
	}

	var sources []Source
	seen := make(map[string]bool)
	for _, name := range strings.Split(spec, ",") {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		factory, ok := sourceFactories[name]
		if !ok {
			return nil, fmt.Errorf("unknown source %q (available: %s)", name, strings.Join(SourceNames(), ", "))
		}
		seen[name] = true
		sources = append(sources, factory(client))
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources selected")
	}
	return sources, nil
}
