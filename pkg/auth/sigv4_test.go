// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestSigner(creds Credentials, region, service string, now time.Time) *Signer {
	s := NewSigner(creds, region, service)
	s.Now = func() time.Time { return now }
	return s
}

func mustRequest(t *testing.T, method, rawURL string) *http.Request {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url %q: %v", rawURL, err)
	}
	return &http.Request{
		Method: method,
		URL:    u,
		Host:   u.Host,
		Header: make(http.Header),
	}
}

// TestSignGetVanillaVector checks the signer byte-for-byte against the
// "get-vanilla" vector of the AWS SigV4 test suite.
func TestSignGetVanillaVector(t *testing.T) {
	signer := newTestSigner(
		Credentials{
			AccessKeyID:     "AKIDEXAMPLE",
			SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
		},
		"us-east-1",
		"service",
		time.Date(2015, 8, 30, 12, 36, 0, 0, time.UTC),
	)

	req := mustRequest(t, http.MethodGet, "https://example.amazonaws.com/")
	if err := signer.Sign(req, ""); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got := map[string]string{
		headerAuthorization: req.Header.Get(headerAuthorization),
		headerAmzDate:       req.Header.Get(headerAmzDate),
		headerSecurityToken: req.Header.Get(headerSecurityToken),
	}

	want := map[string]string{
		headerAuthorization: "AWS4-HMAC-SHA256 " +
			"Credential=AKIDEXAMPLE/20150830/us-east-1/service/aws4_request, " +
			"SignedHeaders=host;x-amz-date, " +
			"Signature=5fa00fa31553b73ebf1942676e86291e8372ff2a2260956d9b8aae1d763fbf31",
		headerAmzDate:       "20150830T123600Z",
		headerSecurityToken: "",
	}

	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s header mismatch:\n got  %q\n want %q", k, got[k], v)
		}
	}
}

func TestSignDeterministic(t *testing.T) {
	creds := Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret", SessionToken: "token"}
	now := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	payload := HashPayload([]byte(`{"jsonrpc":"2.0","method":"initialize"}`))

	first := mustRequest(t, http.MethodPost, "https://api.example.com/mcp")
	second := mustRequest(t, http.MethodPost, "https://api.example.com/mcp")

	for _, req := range []*http.Request{first, second} {
		if err := newTestSigner(creds, "eu-west-1", "execute-api", now).Sign(req, payload); err != nil {
			t.Fatalf("Sign: %v", err)
		}
	}

	for _, header := range []string{headerAuthorization, headerAmzDate, headerSecurityToken} {
		if first.Header.Get(header) != second.Header.Get(header) {
			t.Errorf("%s differs between identical requests: %q vs %q",
				header, first.Header.Get(header), second.Header.Get(header))
		}
	}
}

func TestSignSessionToken(t *testing.T) {
	creds := Credentials{AccessKeyID: "AKID", SecretAccessKey: "secret", SessionToken: "session-token"}
	req := mustRequest(t, http.MethodGet, "https://api.example.com/mcp")

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := newTestSigner(creds, "us-east-1", "execute-api", now).Sign(req, ""); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if got := req.Header.Get(headerSecurityToken); got != "session-token" {
		t.Errorf("security token header: got %q, want %q", got, "session-token")
	}

	authz := req.Header.Get(headerAuthorization)
	wantSigned := "SignedHeaders=host;x-amz-date;x-amz-security-token,"
	if !strings.Contains(authz, wantSigned) {
		t.Errorf("Authorization %q does not contain %q", authz, wantSigned)
	}
}

func TestSignRejectsEmptyCredentials(t *testing.T) {
	req := mustRequest(t, http.MethodGet, "https://api.example.com/mcp")
	signer := NewSigner(Credentials{}, "us-east-1", "execute-api")
	if err := signer.Sign(req, ""); err == nil {
		t.Fatal("expected error for empty credentials")
	}
}

func TestEmptyPayloadHash(t *testing.T) {
	sum := sha256.Sum256(nil)
	if want := hex.EncodeToString(sum[:]); EmptyPayloadHash != want {
		t.Errorf("EmptyPayloadHash = %q, want %q", EmptyPayloadHash, want)
	}
	if got := HashPayload(nil); got != EmptyPayloadHash {
		t.Errorf("HashPayload(nil) = %q, want %q", got, EmptyPayloadHash)
	}
}

func TestCanonicalQueryOrdering(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "empty", raw: "", want: ""},
		{name: "sorted by raw key byte order", raw: "b=2&a=1&A=0", want: "A=0&a=1&b=2"},
		{name: "value encoded", raw: "key=a b", want: "key=a%20b"},
		{name: "plus decoded then encoded", raw: "key=a+b", want: "key=a%20b"},
		{name: "empty value keeps equals", raw: "flag", want: "flag="},
		{name: "ties sorted by value", raw: "k=2&k=1", want: "k=1&k=2"},
		{name: "reserved characters", raw: "path=/mcp", want: "path=%2Fmcp"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := canonicalQuery(tc.raw); got != tc.want {
				t.Errorf("canonicalQuery(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestCanonicalURIEncoding(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want string
	}{
		{name: "root", url: "https://example.com", want: "/"},
		{name: "plain path", url: "https://example.com/mcp", want: "/mcp"},
		{name: "space encoded", url: "https://example.com/a b", want: "/a%20b"},
		{name: "already encoded not re-encoded", url: "https://example.com/a%2Fb", want: "/a%2Fb"},
		{name: "unreserved untouched", url: "https://example.com/a-b_c.d~e", want: "/a-b_c.d~e"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(tc.url)
			if err != nil {
				t.Fatalf("parse url: %v", err)
			}
			if got := canonicalURI(u); got != tc.want {
				t.Errorf("canonicalURI(%q) = %q, want %q", tc.url, got, tc.want)
			}
		})
	}
}
