// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	envEndpoint    = "MCP_ENDPOINT"
	envBearerToken = "BEARER_TOKEN"
	envLogLevel    = "MCP_LOG_LEVEL"

	defaultAWSRegion  = "us-east-1"
	defaultAWSService = "execute-api"
	defaultTimeout    = 30 * time.Second
	defaultLogLevel   = "info"
)

// ConfigError reports an invalid or contradictory proxy configuration. It is
// always raised before any credential or network work takes place.
type ConfigError struct {
	Reason string
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return e.Reason
}

// Options carries the raw command-line and environment inputs before
// validation. The zero value of every field means "not provided".
type Options struct {
	Endpoint          string
	BearerToken       string
	AWSRegion         string
	AWSService        string
	AWSProfile        string
	AWSRoleARN        string
	NoAuth            bool
	Insecure          bool
	Timeout           time.Duration
	StreamReadTimeout time.Duration
	LogLevel          string
	Verbose           bool
}

// Config captures the validated runtime settings for one proxy instance.
// Constructed once at startup via Load and immutable thereafter.
type Config struct {
	// Endpoint is the remote streamable MCP endpoint, absolute http or https.
	Endpoint *url.URL
	// BearerToken, when non-empty, selects static bearer authentication.
	// Precedence between the flag and BEARER_TOKEN is resolved in Load, so
	// this field already holds the single effective token.
	BearerToken string
	// AWSRegion, AWSService and AWSProfile parameterize SigV4 signing and
	// credential discovery.
	AWSRegion  string
	AWSService string
	AWSProfile string
	// AWSRoleARN, when set, adds a single STS AssumeRole hop after the
	// discovery chain resolves base credentials.
	AWSRoleARN string
	// EnableAuth is false only when --no-auth was given.
	EnableAuth bool
	// Insecure disables upstream TLS verification.
	Insecure bool
	// Timeout is the default idle-read timeout for the response stream.
	Timeout time.Duration
	// StreamReadTimeout, when non-zero, overrides Timeout for the stream.
	StreamReadTimeout time.Duration
	LogLevel          string
}

// Load resolves Options against environment fallbacks and validates the
// result. The rest of the program never reads the process environment.
func Load(opts Options) (Config, error) {
	endpointRaw := opts.Endpoint
	if endpointRaw == "" {
		endpointRaw = strings.TrimSpace(os.Getenv(envEndpoint))
	}
	if endpointRaw == "" {
		return Config{}, &ConfigError{Reason: "endpoint is required (--endpoint or MCP_ENDPOINT)"}
	}

	endpoint, err := url.Parse(endpointRaw)
	if err != nil {
		return Config{}, &ConfigError{Reason: fmt.Sprintf("invalid endpoint URL: %v", err)}
	}

	// An explicit --bearer-token always wins over the environment default.
	bearer := strings.TrimSpace(opts.BearerToken)
	if bearer == "" {
		bearer = strings.TrimSpace(os.Getenv(envBearerToken))
	}

	logLevel := opts.LogLevel
	if logLevel == "" {
		logLevel = getString(envLogLevel, defaultLogLevel)
	}
	if opts.Verbose {
		logLevel = "debug"
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cfg := Config{
		Endpoint:          endpoint,
		BearerToken:       bearer,
		AWSRegion:         withDefault(opts.AWSRegion, defaultAWSRegion),
		AWSService:        withDefault(opts.AWSService, defaultAWSService),
		AWSProfile:        opts.AWSProfile,
		AWSRoleARN:        opts.AWSRoleARN,
		EnableAuth:        !opts.NoAuth,
		Insecure:          opts.Insecure,
		Timeout:           timeout,
		StreamReadTimeout: opts.StreamReadTimeout,
		LogLevel:          strings.ToLower(logLevel),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that must hold before any credential or network
// work: a well-formed absolute endpoint and a non-contradictory auth setup.
func (c Config) Validate() error {
	if c.Endpoint == nil || !c.Endpoint.IsAbs() || c.Endpoint.Host == "" {
		return &ConfigError{Reason: "invalid endpoint URL: must be absolute (scheme://host)"}
	}
	if c.Endpoint.Scheme != "http" && c.Endpoint.Scheme != "https" {
		return &ConfigError{Reason: fmt.Sprintf("invalid endpoint URL: unsupported scheme %q", c.Endpoint.Scheme)}
	}
	if c.BearerToken != "" && !c.EnableAuth {
		return &ConfigError{Reason: "cannot specify both bearer token and --no-auth"}
	}
	return nil
}

// EffectiveStreamTimeout returns the idle-read timeout for the response
// stream: the explicit stream override when given, the general timeout
// otherwise. An explicit override is never silently replaced.
func (c Config) EffectiveStreamTimeout() time.Duration {
	if c.StreamReadTimeout > 0 {
		return c.StreamReadTimeout
	}
	return c.Timeout
}

func withDefault(val, fallback string) string {
	if strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return fallback
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
