// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jiapingzeng/mcp-proxy-sigv4/pkg/auth"
)

// authTransport applies the selected auth strategy to every outbound request
// and arms an idle-read watchdog on streaming response bodies.
type authTransport struct {
	base        http.RoundTripper
	strategy    auth.Strategy
	readTimeout time.Duration
}

func newAuthTransport(strategy auth.Strategy, base http.RoundTripper, readTimeout time.Duration) *authTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{
		base:        base,
		strategy:    strategy,
		readTimeout: readTimeout,
	}
}

// RoundTrip dispatches on the strategy variant. SigV4 signing happens here,
// after the body is finalized, because the payload hash depends on the final
// body bytes.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.strategy.Kind {
	case auth.StrategyBearer:
		req.Header.Set("Authorization", "Bearer "+t.strategy.Token)
	case auth.StrategySigV4:
		hash, err := payloadHash(req)
		if err != nil {
			return nil, &TransportError{Op: "hash payload", Err: err}
		}
		if err := t.strategy.Signer.Sign(req, hash); err != nil {
			return nil, &TransportError{Op: "sign request", Err: err}
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil || t.readTimeout <= 0 {
		return resp, err
	}
	resp.Body = newIdleTimeoutBody(resp.Body, t.readTimeout)
	return resp, nil
}

// payloadHash computes the hex SHA-256 of the request body without consuming
// it. Bodyless requests hash to the digest of zero bytes.
func payloadHash(req *http.Request) (string, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return auth.EmptyPayloadHash, nil
	}

	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return "", err
		}
		defer body.Close()
		payload, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return auth.HashPayload(payload), nil
	}

	payload, err := io.ReadAll(req.Body)
	if err != nil {
		return "", err
	}
	if err := req.Body.Close(); err != nil {
		return "", err
	}
	req.Body = io.NopCloser(bytes.NewReader(payload))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	return auth.HashPayload(payload), nil
}

// idleTimeoutBody wraps a response body so a read blocked longer than the
// configured timeout fails instead of stalling the session forever. Every
// successful read re-arms the watchdog.
type idleTimeoutBody struct {
	rc      io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleTimeoutBody(rc io.ReadCloser, timeout time.Duration) *idleTimeoutBody {
	b := &idleTimeoutBody{rc: rc, timeout: timeout}
	b.timer = time.AfterFunc(timeout, b.expire)
	return b
}

// expire closes the underlying body so the blocked Read returns.
func (b *idleTimeoutBody) expire() {
	b.expired.Store(true)
	_ = b.rc.Close()
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err != nil && b.expired.Load() {
		return n, &TransportError{
			Op:  "read stream",
			Err: fmt.Errorf("no data for %s: %w", b.timeout, err),
		}
	}
	if err == nil {
		b.timer.Reset(b.timeout)
	}
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	b.timer.Stop()
	return b.rc.Close()
}
