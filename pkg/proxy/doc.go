// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package proxy bridges a local stdio MCP client to a remote streamable HTTP
// MCP endpoint. It selects exactly one authentication strategy at
// construction time, wires that strategy into the outbound HTTP transport,
// and either runs a long-lived stdio bridging session or performs a one-shot
// connectivity probe.
package proxy
