/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package errors provides structured, host-facing error handling for
flyraft. It is distinct from the *raft.AppendError returned by the
consensus core (internal/raft/errors.go): that type models the CORE's
own total/partial-function contract, while this package models
failures in the surrounding host — transport I/O, configuration,
discovery, and log storage.

Error Categories:
  - ProtocolError: frame decoding, MAC verification, version mismatch
  - ReplicationError: log-replication bookkeeping surfaced to operators
  - LogError: the pluggable Log implementation's storage failures
  - TransportError: dial/accept/listen failures
  - ConfigError: configuration loading and validation failures
  - DiscoveryError: peer discovery failures
*/
package errors

import "fmt"

// ErrorCode is a unique, stable error identifier.
type ErrorCode int

const (
	// Protocol errors (1000-1999)
	ErrCodeProtocol        ErrorCode = 1000
	ErrCodeMalformedFrame  ErrorCode = 1001
	ErrCodeMACMismatch     ErrorCode = 1002
	ErrCodeUnknownRPCKind  ErrorCode = 1003
	ErrCodeVersionMismatch ErrorCode = 1004

	// Replication errors (2000-2999)
	ErrCodeReplication      ErrorCode = 2000
	ErrCodeNotLeader        ErrorCode = 2001
	ErrCodePeerUnreachable  ErrorCode = 2002
	ErrCodeStaleTerm        ErrorCode = 2003

	// Log errors (3000-3999)
	ErrCodeLog              ErrorCode = 3000
	ErrCodeLogFull          ErrorCode = 3001
	ErrCodeLogIOError       ErrorCode = 3002
	ErrCodeLogCorrupted     ErrorCode = 3003

	// Transport errors (4000-4999)
	ErrCodeTransport        ErrorCode = 4000
	ErrCodeDialFailed       ErrorCode = 4001
	ErrCodeListenFailed     ErrorCode = 4002
	ErrCodeConnectionLost   ErrorCode = 4003

	// Config errors (5000-5999)
	ErrCodeConfig           ErrorCode = 5000
	ErrCodeInvalidConfig    ErrorCode = 5001
	ErrCodeMissingRequired  ErrorCode = 5002

	// Discovery errors (6000-6999)
	ErrCodeDiscovery        ErrorCode = 6000
	ErrCodeNoPeersFound     ErrorCode = 6001
	ErrCodeIncompatiblePeer ErrorCode = 6002
)

// Category groups related error codes.
type Category string

const (
	CategoryProtocol    Category = "PROTOCOL"
	CategoryReplication Category = "REPLICATION"
	CategoryLog         Category = "LOG"
	CategoryTransport   Category = "TRANSPORT"
	CategoryConfig      Category = "CONFIG"
	CategoryDiscovery   Category = "DISCOVERY"
)

// RaftError is a structured host-level error.
type RaftError struct {
	Code     ErrorCode
	Category Category
	Message  string
	Detail   string
	Hint     string
	Cause    error
}

func (e *RaftError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ERROR %d (%s): %s - %s", e.Code, e.Category, e.Message, e.Detail)
	}
	return fmt.Sprintf("ERROR %d (%s): %s", e.Code, e.Category, e.Message)
}

func (e *RaftError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly rendering suitable for the admin
// CLI or a log line.
func (e *RaftError) UserMessage() string {
	msg := fmt.Sprintf("ERROR: %s", e.Message)
	if e.Detail != "" {
		msg += fmt.Sprintf(" (%s)", e.Detail)
	}
	if e.Hint != "" {
		msg += fmt.Sprintf("\nHINT: %s", e.Hint)
	}
	return msg
}

func (e *RaftError) WithDetail(detail string) *RaftError {
	e.Detail = detail
	return e
}

func (e *RaftError) WithHint(hint string) *RaftError {
	e.Hint = hint
	return e
}

func (e *RaftError) WithCause(cause error) *RaftError {
	e.Cause = cause
	return e
}

// ============================================================================
// Protocol Error Constructors
// ============================================================================

func NewProtocolError(message string) *RaftError {
	return &RaftError{Code: ErrCodeProtocol, Category: CategoryProtocol, Message: message}
}

// MalformedFrame reports a wire frame that failed to decode.
func MalformedFrame(detail string) *RaftError {
	return &RaftError{
		Code:     ErrCodeMalformedFrame,
		Category: CategoryProtocol,
		Message:  "malformed frame",
		Detail:   detail,
	}
}

// MACMismatch reports a frame whose authentication tag didn't verify.
func MACMismatch() *RaftError {
	return &RaftError{
		Code:     ErrCodeMACMismatch,
		Category: CategoryProtocol,
		Message:  "frame authentication failed",
		Hint:     "Check that all peers share the same cluster secret",
	}
}

// VersionMismatch reports an incompatible peer protocol version.
func VersionMismatch(ours, theirs string) *RaftError {
	return &RaftError{
		Code:     ErrCodeVersionMismatch,
		Category: CategoryProtocol,
		Message:  fmt.Sprintf("incompatible protocol version: ours %s, peer %s", ours, theirs),
	}
}

// ============================================================================
// Replication Error Constructors
// ============================================================================

func NewReplicationError(message string) *RaftError {
	return &RaftError{Code: ErrCodeReplication, Category: CategoryReplication, Message: message}
}

// NotLeader reports a client append directed at a non-leader node.
func NotLeader(leader string) *RaftError {
	return &RaftError{
		Code:     ErrCodeNotLeader,
		Category: CategoryReplication,
		Message:  "not leader",
		Detail:   leader,
		Hint:     "Retry the request against the current leader",
	}
}

// PeerUnreachable reports a transport failure while contacting a peer.
func PeerUnreachable(peer string, cause error) *RaftError {
	return &RaftError{
		Code:     ErrCodePeerUnreachable,
		Category: CategoryReplication,
		Message:  fmt.Sprintf("peer %s unreachable", peer),
		Cause:    cause,
	}
}

// ============================================================================
// Log Error Constructors
// ============================================================================

func NewLogError(message string) *RaftError {
	return &RaftError{Code: ErrCodeLog, Category: CategoryLog, Message: message}
}

// LogFull reports a Log implementation that refused an append because
// it is over capacity (spec §4.2.1: Append may reject when over budget).
func LogFull(capacity int) *RaftError {
	return &RaftError{
		Code:     ErrCodeLogFull,
		Category: CategoryLog,
		Message:  "log storage full",
		Detail:   fmt.Sprintf("capacity: %d bytes", capacity),
		Hint:     "Advance the commit index so entries can be taken and evicted",
	}
}

// LogIOError wraps an underlying storage I/O failure.
func LogIOError(cause error) *RaftError {
	return &RaftError{
		Code:     ErrCodeLogIOError,
		Category: CategoryLog,
		Message:  "log I/O error",
		Cause:    cause,
	}
}

// ============================================================================
// Transport Error Constructors
// ============================================================================

func NewTransportError(message string) *RaftError {
	return &RaftError{Code: ErrCodeTransport, Category: CategoryTransport, Message: message}
}

// DialFailed reports a failed outbound connection attempt.
func DialFailed(addr string, cause error) *RaftError {
	return &RaftError{
		Code:     ErrCodeDialFailed,
		Category: CategoryTransport,
		Message:  fmt.Sprintf("dial %s failed", addr),
		Cause:    cause,
	}
}

// ListenFailed reports a failed listener bind.
func ListenFailed(addr string, cause error) *RaftError {
	return &RaftError{
		Code:     ErrCodeListenFailed,
		Category: CategoryTransport,
		Message:  fmt.Sprintf("listen on %s failed", addr),
		Cause:    cause,
	}
}

// ============================================================================
// Config Error Constructors
// ============================================================================

func NewConfigError(message string) *RaftError {
	return &RaftError{Code: ErrCodeConfig, Category: CategoryConfig, Message: message}
}

// InvalidConfig reports a value that failed Config.Validate.
func InvalidConfig(field, reason string) *RaftError {
	return &RaftError{
		Code:     ErrCodeInvalidConfig,
		Category: CategoryConfig,
		Message:  fmt.Sprintf("invalid config field '%s'", field),
		Detail:   reason,
	}
}

// MissingRequiredConfig reports an unset required field.
func MissingRequiredConfig(field string) *RaftError {
	return &RaftError{
		Code:     ErrCodeMissingRequired,
		Category: CategoryConfig,
		Message:  fmt.Sprintf("missing required config field: %s", field),
	}
}

// ============================================================================
// Discovery Error Constructors
// ============================================================================

func NewDiscoveryError(message string) *RaftError {
	return &RaftError{Code: ErrCodeDiscovery, Category: CategoryDiscovery, Message: message}
}

// NoPeersFound reports an mDNS browse that timed out with no results.
func NoPeersFound(timeout string) *RaftError {
	return &RaftError{
		Code:     ErrCodeNoPeersFound,
		Category: CategoryDiscovery,
		Message:  "no peers found",
		Detail:   fmt.Sprintf("browsed for %s", timeout),
		Hint:     "Check that other nodes are reachable and advertising the same service name",
	}
}

// IncompatiblePeer reports a discovered peer whose advertised protocol
// version isn't compatible with ours.
func IncompatiblePeer(name, version string) *RaftError {
	return &RaftError{
		Code:     ErrCodeIncompatiblePeer,
		Category: CategoryDiscovery,
		Message:  fmt.Sprintf("peer %s advertises incompatible version %s", name, version),
	}
}

// ============================================================================
// Helper Functions
// ============================================================================

func IsProtocolError(err error) bool {
	e, ok := err.(*RaftError)
	return ok && e.Category == CategoryProtocol
}

func IsReplicationError(err error) bool {
	e, ok := err.(*RaftError)
	return ok && e.Category == CategoryReplication
}

func IsLogError(err error) bool {
	e, ok := err.(*RaftError)
	return ok && e.Category == CategoryLog
}

// GetCode returns the error code if err is a *RaftError, or 0 otherwise.
func GetCode(err error) ErrorCode {
	if e, ok := err.(*RaftError); ok {
		return e.Code
	}
	return 0
}

// FormatError formats an error for user display.
func FormatError(err error) string {
	if e, ok := err.(*RaftError); ok {
		return e.UserMessage()
	}
	return fmt.Sprintf("ERROR: %v", err)
}
