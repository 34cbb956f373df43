// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jiapingzeng/mcp-proxy-sigv4/pkg/auth"
	"github.com/jiapingzeng/mcp-proxy-sigv4/pkg/config"
)

// implementation identifies this proxy on both sides of the bridge.
var implementation = &mcp.Implementation{
	Name:    "mcp-proxy-sigv4",
	Version: "0.1.0",
}

// TransportError wraps a failure during an active session: connection reset,
// handshake failure, or a stalled stream. It is surfaced uncaught from
// RunStdio and swallowed into a boolean only by TestConnection.
type TransportError struct {
	Op  string // Op names the failing operation for logs.
	Err error  // Err retains the original cause.
}

// Error implements the error interface for TransportError.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As checks.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Server bridges one stdio MCP client to the remote endpoint. The auth
// strategy is selected once during construction and immutable afterwards.
type Server struct {
	cfg      config.Config
	strategy auth.Strategy
	logger   zerolog.Logger
}

// New validates the configuration and resolves the authentication strategy.
// Construction fails with a ConfigError for a malformed endpoint or a
// contradictory auth setup, and with a CredentialError when SigV4 is selected
// but no AWS credentials are discoverable. No network I/O happens here beyond
// credential resolution. A nil resolver selects the AWS discovery chain.
func New(ctx context.Context, cfg config.Config, resolve auth.ResolverFunc) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	strategy, err := auth.Select(ctx, cfg, resolve)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		strategy: strategy,
		logger: log.With().
			Str("component", "proxy").
			Str("endpoint", cfg.Endpoint.String()).
			Stringer("auth", strategy.Kind).
			Logger(),
	}, nil
}

// Strategy returns the selected authentication strategy kind.
func (s *Server) Strategy() auth.StrategyKind {
	return s.strategy.Kind
}

// RunStdio opens a bridging session between local stdio and the remote
// endpoint and blocks until stdin reaches end-of-input (nil), the context is
// cancelled (ctx.Err(), propagated so the host process terminates cleanly),
// or an unrecoverable transport error occurs (TransportError).
func (s *Server) RunStdio(ctx context.Context) error {
	return s.run(ctx, &mcp.StdioTransport{})
}

// TestConnection performs a handshake-and-close probe against the remote
// endpoint. It never returns an error: every failure becomes false so the
// probe can be used in non-fatal diagnostic contexts.
func (s *Server) TestConnection(ctx context.Context) bool {
	session, err := s.connect(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("connection test failed")
		return false
	}
	if err := session.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("connection test close failed")
		return false
	}
	s.logger.Debug().Msg("connection test succeeded")
	return true
}

// run connects to the remote endpoint, mirrors its tools onto a local server,
// and serves that server over the given local transport.
func (s *Server) run(ctx context.Context, local mcp.Transport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			s.logger.Debug().Err(closeErr).Msg("close remote session failed")
		}
	}()

	server := mcp.NewServer(implementation, nil)
	toolCount, err := s.mirrorTools(ctx, server, session)
	if err != nil {
		return err
	}

	s.logger.Info().Int("tools", toolCount).Msg("bridging stdio to remote endpoint")

	if err := server.Run(ctx, local); err != nil {
		// Cancellation is an interruption, not a transport failure; it must
		// propagate as-is so the caller can distinguish the two.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Op: "stdio session", Err: err}
	}

	s.logger.Info().Msg("stdio session closed")
	return nil
}

// connect opens the remote streamable HTTP session, performing the MCP
// handshake with the strategy-wired HTTP client.
func (s *Server) connect(ctx context.Context) (*mcp.ClientSession, error) {
	client := mcp.NewClient(implementation, nil)
	session, err := client.Connect(ctx, s.transport(), nil)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}
	return session, nil
}

// transport builds the streamable HTTP transport with the auth strategy and
// idle-read timeout wired into the underlying HTTP client.
func (s *Server) transport() *mcp.StreamableClientTransport {
	return &mcp.StreamableClientTransport{
		Endpoint:   s.cfg.Endpoint.String(),
		HTTPClient: s.httpClient(),
	}
}

// httpClient builds the outbound HTTP client. The overall client timeout is
// intentionally unset: the connection is long-lived and staleness is policed
// by the idle-read watchdog instead.
func (s *Server) httpClient() *http.Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: s.cfg.Insecure, // nolint:gosec -- opt-in for development scenarios
		},
	}

	return &http.Client{
		Transport: newAuthTransport(s.strategy, base, s.cfg.EffectiveStreamTimeout()),
	}
}

// mirrorTools lists the remote server's tools and registers a forwarding
// handler for each on the local server.
func (s *Server) mirrorTools(ctx context.Context, server *mcp.Server, session *mcp.ClientSession) (int, error) {
	count := 0
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return count, &TransportError{Op: "list tools", Err: err}
		}
		mirrored := *tool
		server.AddTool(&mirrored, s.forwardTool(session, tool.Name))
		count++
	}
	return count, nil
}

// forwardTool returns a handler relaying one tool call to the remote session.
// Exchanges stay FIFO per direction; no batching or reordering happens here.
func (s *Server) forwardTool(session *mcp.ClientSession, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.logger.Debug().Str("tool", name).Msg("forwarding tool call")
		result, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      name,
			Arguments: req.Params.Arguments,
		})
		if err != nil {
			return nil, &TransportError{Op: "call tool " + name, Err: err}
		}
		return result, nil
	}
}
