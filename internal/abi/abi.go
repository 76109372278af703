// Package abi defines the Protocol Plugin ABI (spec §4.1) — the
// stable contract the Loader requires of every protocol plugin.
//
// The original design is a C vtable crossing a language boundary:
// a fixed-order struct of function pointers, an opaque handle, and
// JSON byte payloads so neither side needs to agree on struct layout.
// NEO6's plugins are Go shared objects loaded with the standard
// library's plugin package (the same mechanism the teacher's plugin
// runtime uses for its own dynamic plugins), so the vtable collapses
// to a Go interface — but the shape, the opaque handle, the JSON
// payloads crossing the boundary, and the numeric status codes are
// unchanged from the binary contract they stand in for.
package abi

import (
	"context"
	"encoding/json"
)

// Version is the interface-version tag every plugin must report.
// A mismatch between a plugin's ABIVersion() and the Loader's expected
// version rejects the plugin with PLUGIN_INVALID, the same way a
// mismatched first vtable field would in the C-style ABI. This number
// MUST NOT change across minor versions of NEO6.
const Version uint32 = 1

// StatusCode is the ABI's numeric status, returned by Invoke (and by
// the optional StartListener/SetLogLevel extensions).
// The numeric mapping is part of the ABI and MUST NOT change across
// minor versions, even though Go callers will usually just check
// StatusCode == OK.
type StatusCode int

const (
	OK StatusCode = iota
	InvalidArgs
	ProtocolError
	BackendUnavailable
	Timeout
	Internal
)

func (s StatusCode) String() string {
	switch s {
	case OK:
		return "OK"
	case InvalidArgs:
		return "INVALID_ARGS"
	case ProtocolError:
		return "PROTOCOL_ERROR"
	case BackendUnavailable:
		return "BACKEND_UNAVAILABLE"
	case Timeout:
		return "TIMEOUT"
	case Internal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// Handle is the opaque, plugin-owned context returned by Create and
// carried on every subsequent Invoke/Destroy call. The Loader owns its
// lifetime (when to call Destroy); the plugin owns what it points to.
type Handle interface{}

// InboundInvocation is the callback a listener-capable plugin uses to
// hand an inbound client request back to the core for routing. It
// mirrors the Router's own Invoke signature (spec §4.5) so a plugin's
// accept loop can feed requests into the same pipeline a frontend
// listener would.
type InboundInvocation func(ctx context.Context, transactionID string, paramsJSON json.RawMessage) (json.RawMessage, StatusCode)

// ListenerConfig is passed to StartListener; plugins that accept
// inbound connections (TCP/LU6.2/TN3270 in server role) report
// completed requests back through OnInvocation.
type ListenerConfig struct {
	Address     string
	OnInvocation InboundInvocation
}

// ProtocolPlugin is the Go-native rendering of the ABI's discovery
// vtable: { name, create, destroy, invoke, start_listener?,
// set_log_level? }. Every loadable plugin must implement Name,
// ABIVersion, Create, Destroy and Invoke; StartListener and SetLogLevel
// are optional extensions a plugin offers by also implementing
// ListenerPlugin or LogLevelPlugin.
type ProtocolPlugin interface {
	// Name is the unique registry key this plugin loads under.
	Name() string

	// ABIVersion reports the interface-version tag (must equal Version).
	ABIVersion() uint32

	// Create constructs a per-plugin handle from protocol-specific
	// JSON configuration. A non-nil error is equivalent to the ABI's
	// null-handle-plus-last-error-slot failure mode.
	Create(configJSON json.RawMessage) (Handle, error)

	// Destroy reclaims a handle. Called only after every outstanding
	// Invoke against it has returned.
	Destroy(h Handle) error

	// Invoke dispatches a single transaction. status is OK (0) iff
	// respJSON is safe to read; any other status forbids it, matching
	// the ABI's "non-zero forbids dereferencing the output pointer"
	// rule translated to Go's zero-value discipline.
	Invoke(ctx context.Context, h Handle, transactionID string, paramsJSON json.RawMessage) (respJSON json.RawMessage, status StatusCode)
}

// ListenerPlugin is implemented by protocols that accept inbound
// client connections from legacy terminals (TCP/LU6.2/TN3270 acting
// as servers). The plugin owns its accept loop and reports completed
// requests through the callback in ListenerConfig.
type ListenerPlugin interface {
	ProtocolPlugin
	StartListener(h Handle, cfg ListenerConfig) StatusCode
}

// LogLevelPlugin is implemented by plugins that expose an internal
// logger the Loader's admin SetLogLevel command can adjust.
type LogLevelPlugin interface {
	ProtocolPlugin
	SetLogLevel(h Handle, level string) StatusCode
}

// BasePlugin supplies a default ABIVersion so concrete plugins only
// need to override Name/Create/Destroy/Invoke, mirroring the teacher's
// embeddable BasePlugin for its own (richer) lifecycle interface.
type BasePlugin struct{}

func (BasePlugin) ABIVersion() uint32 { return Version }
