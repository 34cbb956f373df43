// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jiapingzeng/mcp-proxy-sigv4/pkg/config"
	"github.com/jiapingzeng/mcp-proxy-sigv4/pkg/proxy"
)

var (
	opts     config.Options
	testOnly bool
)

var rootCmd = &cobra.Command{
	Use:   "mcp-proxy-sigv4",
	Short: "MCP proxy server bridging stdio clients to remote endpoints with SigV4 or bearer authentication",
	Long: "mcp-proxy-sigv4 exposes a remote streamable-HTTP MCP endpoint over local\n" +
		"stdio, signing every outbound request with AWS Signature Version 4 or a\n" +
		"static bearer token.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&opts.Endpoint, "endpoint", "", "remote MCP endpoint URL (or MCP_ENDPOINT)")
	flags.StringVar(&opts.BearerToken, "bearer-token", "", "static bearer token (takes precedence over BEARER_TOKEN)")
	flags.StringVar(&opts.AWSRegion, "aws-region", "", "AWS region for SigV4 signing (default us-east-1)")
	flags.StringVar(&opts.AWSService, "aws-service", "", "AWS service name for SigV4 signing (default execute-api)")
	flags.StringVar(&opts.AWSProfile, "aws-profile", "", "AWS shared profile for credential discovery")
	flags.StringVar(&opts.AWSRoleARN, "aws-role-arn", "", "IAM role to assume before signing")
	flags.BoolVar(&opts.NoAuth, "no-auth", false, "disable authentication entirely")
	flags.BoolVar(&opts.Insecure, "insecure", false, "skip upstream TLS verification")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "idle-read timeout for the response stream (default 30s)")
	flags.DurationVar(&opts.StreamReadTimeout, "stream-read-timeout", 0, "explicit stream timeout, overrides --timeout")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (default info, or MCP_LOG_LEVEL)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&testOnly, "test", false, "probe the endpoint and exit")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	log.Logger = log.Level(level)

	// Interruption cancels the context; the error unwinds back here so the
	// transport is released before the process exits.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := proxy.New(ctx, cfg, nil)
	if err != nil {
		return err
	}

	if testOnly {
		if !server.TestConnection(ctx) {
			return errors.New("connection test failed")
		}
		log.Info().Str("endpoint", cfg.Endpoint.String()).Msg("connection test succeeded")
		return nil
	}

	return server.RunStdio(ctx)
}

func main() {
	// Logs go to stderr; stdout carries the MCP stdio stream.
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("interrupted; proxy stopped")
			os.Exit(130)
		}
		log.Fatal().Err(err).Msg("proxy exited")
	}
}
