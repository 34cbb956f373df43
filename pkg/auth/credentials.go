// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// roleSessionName identifies AssumeRole sessions opened by this proxy.
const roleSessionName = "mcp-proxy-sigv4"

// Credentials holds the AWS key material used for SigV4 signing. Instances
// are resolved once at startup, held in memory only, and never persisted.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// CredentialError reports that no usable AWS credentials could be resolved.
// It is fatal to proxy construction; credential resolution is never retried.
type CredentialError struct {
	Err error
}

// Error implements the error interface for CredentialError.
func (e *CredentialError) Error() string {
	return fmt.Sprintf("no AWS credentials found: %v", e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As checks.
func (e *CredentialError) Unwrap() error {
	return e.Err
}

// STSAssumeRoler is the single STS operation the resolver needs, extracted
// so tests can inject a fake client.
type STSAssumeRoler interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// ResolveCredentials obtains AWS credentials from the named shared profile,
// or the default discovery chain when profile is empty. When roleARN is set,
// the resolved credentials are exchanged for temporary session credentials
// via a single STS AssumeRole call.
func ResolveCredentials(ctx context.Context, profile, region, roleARN string) (Credentials, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return Credentials{}, &CredentialError{Err: err}
	}

	if roleARN != "" {
		return assumeRole(ctx, sts.NewFromConfig(cfg), roleARN)
	}
	return retrieveCredentials(ctx, cfg.Credentials)
}

// retrieveCredentials pulls credentials from the provider exactly once and
// rejects partial results so no empty credential set ever reaches a signer.
func retrieveCredentials(ctx context.Context, provider aws.CredentialsProvider) (Credentials, error) {
	if provider == nil {
		return Credentials{}, &CredentialError{Err: errors.New("credential chain is empty")}
	}

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return Credentials{}, &CredentialError{Err: err}
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return Credentials{}, &CredentialError{Err: errors.New("credential chain returned empty key material")}
	}

	return Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, nil
}

// assumeRole swaps base credentials for temporary session credentials. The
// result is treated as valid for the process lifetime; there is no refresh.
func assumeRole(ctx context.Context, client STSAssumeRoler, roleARN string) (Credentials, error) {
	out, err := client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(roleSessionName),
	})
	if err != nil {
		return Credentials{}, &CredentialError{Err: fmt.Errorf("assume role %s: %w", roleARN, err)}
	}
	if out.Credentials == nil {
		return Credentials{}, &CredentialError{Err: fmt.Errorf("assume role %s: empty credentials in response", roleARN)}
	}

	return Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
	}, nil
}
