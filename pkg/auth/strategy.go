// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package auth contains the authentication core of the proxy: AWS credential
// resolution, the SigV4 request signer, and the closed strategy variant that
// decides which of the two (or neither) applies to a session.
package auth

import (
	"context"

	"github.com/jiapingzeng/mcp-proxy-sigv4/pkg/config"
)

// StrategyKind enumerates the three authentication strategies.
type StrategyKind uint8

const (
	// StrategyNone sends requests without authentication headers.
	StrategyNone StrategyKind = iota
	// StrategyBearer sends a static Authorization: Bearer header.
	StrategyBearer
	// StrategySigV4 signs every request with AWS Signature Version 4.
	StrategySigV4
)

// String implements fmt.Stringer for log fields.
func (k StrategyKind) String() string {
	switch k {
	case StrategyBearer:
		return "bearer"
	case StrategySigV4:
		return "sigv4"
	default:
		return "none"
	}
}

// Strategy is the selected authentication strategy for one proxy instance.
// Exactly one of the variants is ever active: Token is set only for
// StrategyBearer and Signer only for StrategySigV4.
type Strategy struct {
	Kind   StrategyKind
	Token  string
	Signer *Signer
}

// ResolverFunc obtains AWS credentials for the SigV4 strategy. Injectable so
// tests never touch the real discovery chain.
type ResolverFunc func(ctx context.Context) (Credentials, error)

// Select maps a validated configuration to exactly one strategy, evaluating
// the rules in order: contradiction, auth disabled, bearer token, SigV4.
// A nil resolver selects the standard AWS discovery chain.
func Select(ctx context.Context, cfg config.Config, resolve ResolverFunc) (Strategy, error) {
	if cfg.BearerToken != "" && !cfg.EnableAuth {
		return Strategy{}, &config.ConfigError{Reason: "cannot specify both bearer token and --no-auth"}
	}
	if !cfg.EnableAuth {
		return Strategy{Kind: StrategyNone}, nil
	}
	if cfg.BearerToken != "" {
		return Strategy{Kind: StrategyBearer, Token: cfg.BearerToken}, nil
	}

	if resolve == nil {
		resolve = func(ctx context.Context) (Credentials, error) {
			return ResolveCredentials(ctx, cfg.AWSProfile, cfg.AWSRegion, cfg.AWSRoleARN)
		}
	}
	creds, err := resolve(ctx)
	if err != nil {
		return Strategy{}, err
	}
	return Strategy{
		Kind:   StrategySigV4,
		Signer: NewSigner(creds, cfg.AWSRegion, cfg.AWSService),
	}, nil
}
