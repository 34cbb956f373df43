// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	algorithm   = "AWS4-HMAC-SHA256"
	scopeSuffix = "aws4_request"
	timeFormat  = "20060102T150405Z"
	dateFormat  = "20060102"

	headerAuthorization = "Authorization"
	headerAmzDate       = "X-Amz-Date"
	headerSecurityToken = "X-Amz-Security-Token"
)

// EmptyPayloadHash is the hex SHA-256 digest of zero bytes, used for
// requests without a fixed body such as the GET that opens an event stream.
const EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// HashPayload returns the hex SHA-256 digest of the finalized request body.
func HashPayload(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Signer computes AWS Signature Version 4 headers for outbound requests.
// Signing happens fresh per request; nothing is cached across calls. The
// remote service re-derives the signature, so the canonicalization below
// follows the published SigV4 specification exactly.
type Signer struct {
	Credentials Credentials
	Region      string
	Service     string
	Now         func() time.Time
}

// NewSigner constructs a Signer with a UTC wall clock.
func NewSigner(creds Credentials, region, service string) *Signer {
	return &Signer{
		Credentials: creds,
		Region:      region,
		Service:     service,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Sign mutates the request by attaching Authorization, X-Amz-Date and, when
// a session token is held, X-Amz-Security-Token headers. payloadHash is the
// hex SHA-256 of the finalized body; pass EmptyPayloadHash (or "") for
// bodyless requests.
func (s *Signer) Sign(req *http.Request, payloadHash string) error {
	if s.Credentials.AccessKeyID == "" || s.Credentials.SecretAccessKey == "" {
		return fmt.Errorf("signer credentials must be set")
	}
	if payloadHash == "" {
		payloadHash = EmptyPayloadHash
	}

	now := s.Now()
	amzDate := now.Format(timeFormat)
	date := now.Format(dateFormat)

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	headers := []signedHeader{
		{name: "host", value: host},
		{name: "x-amz-date", value: amzDate},
	}
	if s.Credentials.SessionToken != "" {
		headers = append(headers, signedHeader{name: "x-amz-security-token", value: s.Credentials.SessionToken})
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].name < headers[j].name })

	canonical := canonicalRequest(req.Method, canonicalURI(req.URL), canonicalQuery(req.URL.RawQuery), headers, payloadHash)
	scope := strings.Join([]string{date, s.Region, s.Service, scopeSuffix}, "/")
	toSign := stringToSign(amzDate, scope, canonical)
	key := signingKey(s.Credentials.SecretAccessKey, date, s.Region, s.Service)
	signature := hex.EncodeToString(hmacSHA256(key, toSign))

	req.Header.Set(headerAmzDate, amzDate)
	if s.Credentials.SessionToken != "" {
		req.Header.Set(headerSecurityToken, s.Credentials.SessionToken)
	}
	req.Header.Set(headerAuthorization, fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, s.Credentials.AccessKeyID, scope, signedHeaderNames(headers), signature,
	))

	return nil
}

// signedHeader is one canonical header entry, lower-cased and trimmed.
type signedHeader struct {
	name  string
	value string
}

func signedHeaderNames(headers []signedHeader) string {
	names := make([]string, len(headers))
	for i, h := range headers {
		names[i] = h.name
	}
	return strings.Join(names, ";")
}

func canonicalRequest(method, uri, query string, headers []signedHeader, payloadHash string) string {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(uri)
	b.WriteByte('\n')
	b.WriteString(query)
	b.WriteByte('\n')
	for _, h := range headers {
		b.WriteString(h.name)
		b.WriteByte(':')
		b.WriteString(strings.TrimSpace(h.value))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(signedHeaderNames(headers))
	b.WriteByte('\n')
	b.WriteString(payloadHash)
	return b.String()
}

func stringToSign(amzDate, scope, canonicalRequest string) string {
	digest := sha256.Sum256([]byte(canonicalRequest))
	return strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hex.EncodeToString(digest[:]),
	}, "\n")
}

// signingKey derives the chained HMAC key for one date/region/service scope.
func signingKey(secretKey, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), date)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, scopeSuffix)
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// canonicalURI percent-encodes the path per segment without re-encoding
// characters that are already encoded.
func canonicalURI(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = uriEncode(seg, false)
	}
	return strings.Join(segments, "/")
}

// canonicalQuery sorts parameters by raw key byte order and strictly
// re-encodes keys and values.
func canonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	pairs := strings.Split(rawQuery, "&")
	encoded := make([][2]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		encoded = append(encoded, [2]string{
			uriEncode(decodeComponent(key), true),
			uriEncode(decodeComponent(value), true),
		})
	}

	sort.Slice(encoded, func(i, j int) bool {
		if encoded[i][0] != encoded[j][0] {
			return encoded[i][0] < encoded[j][0]
		}
		return encoded[i][1] < encoded[j][1]
	})

	parts := make([]string, len(encoded))
	for i, kv := range encoded {
		parts[i] = kv[0] + "=" + kv[1]
	}
	return strings.Join(parts, "&")
}

// decodeComponent normalizes a query component before strict re-encoding.
// Components that fail to decode are signed as-is.
func decodeComponent(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// uriEncode implements the SigV4 URI encoding rules: unreserved characters
// pass through, '/' passes through in paths, the '%' of an existing escape
// is preserved, and everything else becomes upper-case percent escapes.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		case c == '%' && !encodeSlash && isEscapeSequence(s, i):
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// isEscapeSequence reports whether s[i] starts a valid %XX escape.
func isEscapeSequence(s string, i int) bool {
	if i+2 >= len(s) {
		return false
	}
	return isHexDigit(s[i+1]) && isHexDigit(s[i+2])
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}
