package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable prefix for all subprobe settings
const envPrefix = "SUBPROBE_"

// HTTPClientConfig contains configurable HTTP client settings
type HTTPClientConfig struct {
	// Discovery/DoH response size limit (bytes)
	MaxResponseSize int64

	// HTTP client connection pool settings
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// HTTP client timeouts
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	KeepAlive      time.Duration

	UserAgent string
}

// ScannerConfig contains configurable scanner settings
type ScannerConfig struct {
	// Channel buffer sizes
	HostChannelBuffer   int
	ResultChannelBuffer int

	// CLI defaults (overridable via flags)
	DefaultHostConcurrency int
	DefaultPortConcurrency int
	DefaultConnectTimeout  time.Duration
	DefaultRateLimit       int
	DefaultSource          string
	DefaultResolve         bool

	// Discovery source endpoints
	CrtShURL      string
	AlienVaultURL string
}

// DNSConfig contains resolver settings
type DNSConfig struct {
	ResolvConf   string
	Fallback     string
	QueryTimeout time.Duration
}

// DefaultHTTPClientConfig returns default HTTP client configuration
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		MaxResponseSize:     getEnvInt64("MAX_RESPONSE_SIZE", 32*1024*1024),           // 32MB, crt.sh answers are large
		MaxIdleConns:        getEnvInt("HTTP_MAX_IDLE_CONNS", 100),                   // 100 connections
		MaxIdleConnsPerHost: getEnvInt("HTTP_MAX_IDLE_CONNS_PER_HOST", 10),           // 10 per host
		IdleConnTimeout:     getEnvDuration("HTTP_IDLE_CONN_TIMEOUT", 90*time.Second), // 90s
		DialTimeout:         getEnvDuration("HTTP_DIAL_TIMEOUT", 5*time.Second),       // 5s
		RequestTimeout:      getEnvDuration("HTTP_REQUEST_TIMEOUT", 5*time.Second),    // 5s
		KeepAlive:           getEnvDuration("HTTP_KEEPALIVE", 30*time.Second),         // 30s
		UserAgent:           getEnvString("HTTP_USER_AGENT", "subprobe/1.0"),
	}
}

// DefaultScannerConfig returns default scanner configuration
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		HostChannelBuffer:      getEnvInt("SCANNER_HOST_BUFFER", 1000),                     // 1000 hosts
		ResultChannelBuffer:    getEnvInt("SCANNER_RESULT_BUFFER", 1000),                   // 1000 results
		DefaultHostConcurrency: getEnvInt("HOST_CONCURRENCY", 100),                         // 100 hosts at once
		DefaultPortConcurrency: getEnvInt("PORT_CONCURRENCY", 200),                         // 200 ports per host
		DefaultConnectTimeout:  getEnvDuration("CONNECT_TIMEOUT", 3*time.Second),           // 3s per connect
		DefaultRateLimit:       getEnvInt("RATE_LIMIT", 0),                                 // unlimited
		DefaultSource:          getEnvString("SOURCE", "crtsh"),                            // crt.sh
		DefaultResolve:         getEnvBool("RESOLVE", true),                                // drop dead names
		CrtShURL:               getEnvString("CRTSH_URL", "https://crt.sh/"),
		AlienVaultURL:          getEnvString("ALIENVAULT_URL", "https://otx.alienvault.com"),
	}
}

// DefaultDNSConfig returns default resolver configuration
func DefaultDNSConfig() DNSConfig {
	return DNSConfig{
		ResolvConf:   getEnvString("DNS_RESOLV_CONF", "/etc/resolv.conf"),
		Fallback:     getEnvString("DNS_FALLBACK", "8.8.8.8:53"),
		QueryTimeout: getEnvDuration("DNS_QUERY_TIMEOUT", 2*time.Second),
	}
}

// getEnvInt retrieves an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(envPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvInt64 retrieves an int64 environment variable with a default value
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(envPrefix + key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable with a default value
// Accepts values like "5s", "10m", "1h"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(envPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable with a default value
// Accepts: "true", "false", "1", "0", "yes", "no" (case-insensitive)
func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(envPrefix + key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}

// getEnvString retrieves a string environment variable with a default value
func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(envPrefix + key); val != "" {
		return val
	}
	return defaultValue
}

// Global configuration instances (initialized once at startup)
var (
	HTTP    = DefaultHTTPClientConfig()
	Scanner = DefaultScannerConfig()
	DNS     = DefaultDNSConfig()
)

// Init loads an optional .env file and then re-reads all configuration from the environment.
// Variables already set in the process environment win over the file.
// Call this at application startup
func Init(envFiles ...string) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", "error", err)
	}

	HTTP = DefaultHTTPClientConfig()
	Scanner = DefaultScannerConfig()
	DNS = DefaultDNSConfig()
}
