package mq

import (
	"errors"
	"fmt"

	"github.com/nprobe/mqttcore/internal/packets"
)

// Standard errors returned by the client.
var (
	// ErrConnectionRefused is returned when the server rejects the connection.
	// Unwrap to find the specific reason, or use errors.As with *MqttError
	// to inspect the ReasonCode directly.
	ErrConnectionRefused = errors.New("connection refused")

	// ErrSubscriptionFailed is returned when the server rejects a subscription.
	ErrSubscriptionFailed = errors.New("subscription failed")

	// ErrClientDisconnected is returned when an operation is cancelled because
	// the client was disconnected or stopped.
	ErrClientDisconnected = errors.New("client disconnected")

	// ErrTimeout is returned to a caller when a request exhausts its retries
	// without an ack. The connection itself is not dropped by a timeout alone.
	ErrTimeout = errors.New("request timed out")

	// ErrKeepaliveTimeout is the reason reported to OnConnectionLost when no
	// packet of any kind has been received for 1.5x the keepalive interval;
	// the connection is then closed (and re-dialled if AutoReconnect is on).
	// The check does not use the request timeout, and any inbound packet,
	// not only a PINGRESP, resets it.
	ErrKeepaliveTimeout = errors.New("keepalive timeout")

	// ErrNoPacketIDs is returned synchronously from Subscribe/Unsubscribe/
	// Publish when the in-flight table has exhausted all 65535 packet ids.
	ErrNoPacketIDs = errors.New("no packet ids available")

	// ErrQoS2Unsupported is returned synchronously by Publish for a QoS 2
	// request. The codec can encode/decode the four-step handshake, but the
	// connection state machine does not drive it; see DESIGN.md.
	ErrQoS2Unsupported = errors.New("qos 2 publish is not supported")
)

// MqttError represents an error returned by the MQTT broker, carrying the
// CONNACK reason code that explains the refusal.
type MqttError struct {
	ReasonCode ReasonCode
	Message    string
	Parent     error
}

func (e *MqttError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("mqtt error (0x%02X): %s: %s", uint8(e.ReasonCode), e.ReasonCode, e.Message)
	}
	if e.Parent != nil {
		return fmt.Sprintf("mqtt error (0x%02X): %s: %s", uint8(e.ReasonCode), e.ReasonCode, e.Parent.Error())
	}
	return fmt.Sprintf("mqtt error (0x%02X): %s", uint8(e.ReasonCode), e.ReasonCode)
}

func (e *MqttError) Unwrap() error {
	return e.Parent
}

// Is implements the errors.Is interface, allowing checks against ReasonCode constants.
func (e *MqttError) Is(target error) bool {
	if rc, ok := target.(ReasonCode); ok {
		return e.ReasonCode == rc
	}
	return false
}

// ErrorKind classifies a ProtocolError. Only two kinds exist: ErrKindCodec
// covers every codec failure (the wrapped *packets.CodecError carries the
// finer-grained kind), and ErrKindProtocolViolation. Request timeouts,
// keepalive timeouts, packet-id exhaustion and disconnects are reported
// with the sentinel errors above, not as ErrorKinds.
type ErrorKind int

const (
	// ErrKindCodec wraps a malformed-frame error from internal/packets.
	// The connection aborts the current frame and drops to RECONNECTING.
	ErrKindCodec ErrorKind = iota + 1

	// ErrKindProtocolViolation is the catch-all for a well-formed but
	// semantically illegal packet (e.g. a second CONNACK while CONNECTED).
	ErrKindProtocolViolation
)

// ProtocolError wraps an engine-level failure with the ErrorKind that
// classifies it, following the same Unwrap/Is shape as MqttError.
type ProtocolError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// newCodecProtocolError wraps a *packets.CodecError as a ProtocolError,
// preserving its ErrorKind for callers that want to distinguish codec
// failure modes without importing the internal package.
func newCodecProtocolError(err *packets.CodecError) *ProtocolError {
	return &ProtocolError{Kind: ErrKindCodec, Err: err}
}
