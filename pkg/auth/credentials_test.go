// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieveCredentials(t *testing.T) {
	provider := credentials.NewStaticCredentialsProvider("AKID", "SECRET", "TOKEN")

	creds, err := retrieveCredentials(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, Credentials{
		AccessKeyID:     "AKID",
		SecretAccessKey: "SECRET",
		SessionToken:    "TOKEN",
	}, creds)
}

func TestRetrieveCredentialsRejectsEmptyKeys(t *testing.T) {
	provider := credentials.NewStaticCredentialsProvider("", "", "")

	_, err := retrieveCredentials(context.Background(), provider)

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
}

func TestRetrieveCredentialsNilProvider(t *testing.T) {
	_, err := retrieveCredentials(context.Background(), nil)

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
}

// fakeSTS implements STSAssumeRoler without network access.
type fakeSTS struct {
	out  *sts.AssumeRoleOutput
	err  error
	last *sts.AssumeRoleInput
}

func (f *fakeSTS) AssumeRole(_ context.Context, params *sts.AssumeRoleInput, _ ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.last = params
	return f.out, f.err
}

func TestAssumeRole(t *testing.T) {
	client := &fakeSTS{
		out: &sts.AssumeRoleOutput{
			Credentials: &types.Credentials{
				AccessKeyId:     aws.String("ASIATEMP"),
				SecretAccessKey: aws.String("tempsecret"),
				SessionToken:    aws.String("temptoken"),
			},
		},
	}

	creds, err := assumeRole(context.Background(), client, "arn:aws:iam::123456789012:role/proxy")
	require.NoError(t, err)
	assert.Equal(t, Credentials{
		AccessKeyID:     "ASIATEMP",
		SecretAccessKey: "tempsecret",
		SessionToken:    "temptoken",
	}, creds)

	require.NotNil(t, client.last)
	assert.Equal(t, "arn:aws:iam::123456789012:role/proxy", aws.ToString(client.last.RoleArn))
	assert.Equal(t, roleSessionName, aws.ToString(client.last.RoleSessionName))
}

func TestAssumeRoleFailure(t *testing.T) {
	client := &fakeSTS{err: errors.New("access denied")}

	_, err := assumeRole(context.Background(), client, "arn:aws:iam::123456789012:role/proxy")

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.ErrorContains(t, err, "access denied")
}

func TestAssumeRoleEmptyResponse(t *testing.T) {
	client := &fakeSTS{out: &sts.AssumeRoleOutput{}}

	_, err := assumeRole(context.Background(), client, "arn:aws:iam::123456789012:role/proxy")

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
}
