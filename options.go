package mq

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ContextDialer is an interface for custom network dialing logic.
// It matches the signature of net.Dialer.DialContext.
type ContextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// clientOptions holds configuration for the MQTT client.
type clientOptions struct {
	Server string

	ClientID string

	Username string
	Password string

	KeepAlive time.Duration

	CleanSession bool

	AutoReconnect bool

	ConnectTimeout time.Duration

	// RequestTimeout is how long a pending PUBLISH/SUBSCRIBE/UNSUBSCRIBE
	// waits for its ack before being retransmitted. 0 means
	// defaultRequestTimeout (10s).
	RequestTimeout time.Duration

	// MaxRetries caps how many times a pending request is retransmitted
	// before its Token completes with ErrTimeout. 0 means
	// defaultMaxRetries (4).
	MaxRetries int

	TLSConfig *tls.Config

	Logger *slog.Logger

	// Limits (0 = use MQTT spec defaults)
	MaxTopicLength    int
	MaxPayloadSize    int
	MaxIncomingPacket int

	// MaxInFlight caps the number of unacknowledged QoS 1 publishes the
	// client keeps outstanding at once. 0 means unbounded (65535, the
	// widest the packet-id space allows). Publishes past the cap queue
	// in FIFO order until an ack frees a slot; see requests.go.
	MaxInFlight int

	will *willMessage

	OnConnect        func(*Client)
	OnConnectionLost func(*Client, error)

	// OnConnectionResumed is called after a successful (re)CONNECT whose
	// CONNACK reports session_present=0, i.e. the broker has no record
	// of this client's subscriptions. It is only consulted when
	// CleanSession is false. The client does not resubscribe
	// automatically; this hook is where a caller decides to.
	OnConnectionResumed func(*Client)

	InitialSubscriptions map[string]MessageHandler

	DefaultPublishHandler MessageHandler

	Dialer ContextDialer

	SessionStore SessionStore

	// Registerer, if set, registers Prometheus collectors tracking
	// packets sent/received, reconnects, and in-flight count.
	Registerer prometheus.Registerer

	HandlerInterceptors []HandlerInterceptor
	PublishInterceptors []PublishInterceptor
}

// willMessage represents the Last Will and Testament message.
type willMessage struct {
	Topic    string
	Payload  []byte
	QoS      uint8
	Retained bool
}

// Option is a functional option for configuring the client.
type Option func(*clientOptions)

// WithClientID sets the client identifier.
//
// Empty client ID behavior (MQTT v3.1.1 spec):
//   - With CleanSession=true: the server auto-generates a unique ID.
//   - With CleanSession=false: the server rejects the connection.
//
// For persistent sessions (CleanSession=false), a non-empty client ID
// is required. See Dial, which auto-generates one via google/uuid when
// CleanSession is true and no ClientID is given.
func WithClientID(id string) Option {
	return func(o *clientOptions) {
		o.ClientID = id
	}
}

// WithCredentials sets the username and password for authentication.
func WithCredentials(username, password string) Option {
	return func(o *clientOptions) {
		o.Username = username
		o.Password = password
	}
}

// WithKeepAlive sets the MQTT keep alive interval (default: 60s).
func WithKeepAlive(duration time.Duration) Option {
	return func(o *clientOptions) {
		o.KeepAlive = duration
	}
}

// WithCleanSession sets the clean session flag.
//
// When true (default), the server discards any previous session state
// and subscriptions for this client ID; each connection starts fresh.
// When false, the server maintains session state across disconnections
// and the client must supply a non-empty client ID.
func WithCleanSession(clean bool) Option {
	return func(o *clientOptions) {
		o.CleanSession = clean
	}
}

// WithAutoReconnect enables or disables automatic reconnection (default: true).
func WithAutoReconnect(enable bool) Option {
	return func(o *clientOptions) {
		o.AutoReconnect = enable
	}
}

// WithConnectTimeout sets the connection timeout (default: 30s).
func WithConnectTimeout(duration time.Duration) Option {
	return func(o *clientOptions) {
		o.ConnectTimeout = duration
	}
}

// WithRequestTimeout sets how long a pending PUBLISH (QoS>0), SUBSCRIBE,
// or UNSUBSCRIBE waits for its ack before being retransmitted (default: 10s).
// See WithMaxRetries for the number of retransmissions before giving up.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.RequestTimeout = timeout
	}
}

// WithMaxRetries caps how many times a pending request is retransmitted
// before its Token completes with ErrTimeout (default: 4).
func WithMaxRetries(max int) Option {
	return func(o *clientOptions) {
		o.MaxRetries = max
	}
}

// WithTLS sets the TLS configuration for secure connections.
// The server URL should use a "tls://", "ssl://", or "mqtts://" scheme,
// or this option will enable TLS for "tcp://" URLs as well.
func WithTLS(config *tls.Config) Option {
	return func(o *clientOptions) {
		o.TLSConfig = config
	}
}

// WithMaxInFlight caps the number of unacknowledged QoS 1 publishes kept
// outstanding at once (default: 65535, the packet-id space limit).
// Publishes beyond the cap queue until an ack frees a slot.
func WithMaxInFlight(max int) Option {
	return func(o *clientOptions) {
		o.MaxInFlight = max
	}
}

// WithDefaultPublishHandler sets a fallback handler for incoming PUBLISH
// messages that match no registered subscription.
//
// If not set, messages matching no subscription are silently dropped
// (but still acknowledged, as the protocol requires).
func WithDefaultPublishHandler(handler MessageHandler) Option {
	return func(o *clientOptions) {
		o.DefaultPublishHandler = handler
	}
}

// WithLogger sets a custom logger for the client. If not provided, the
// client discards all log output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.Logger = logger
	}
}

// WithDialer sets a custom dialer for establishing the network
// connection. This enables alternative transports (WebSockets, Unix
// sockets, a proxy) without adding a hard dependency to the core
// library; see the wsdialer package for a WebSocket implementation.
func WithDialer(dialer ContextDialer) Option {
	return func(o *clientOptions) {
		o.Dialer = dialer
	}
}

// DialFunc adapts a function to the ContextDialer interface.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialContext implements ContextDialer.
func (f DialFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// WithWill sets the Last Will and Testament (LWT) message.
//
// The server publishes this message on the client's behalf if the
// connection is lost without a graceful DISCONNECT: a dropped network,
// a missed keepalive, a crash. It is never sent after Disconnect.
func WithWill(topic string, payload []byte, qos uint8, retained bool) Option {
	return func(o *clientOptions) {
		o.will = &willMessage{
			Topic:    topic,
			Payload:  payload,
			QoS:      qos,
			Retained: retained,
		}
	}
}

// WithOnConnect sets the handler called when the client connects, for
// both the initial connection and every successful reconnection. It
// runs in its own goroutine so it may block or perform I/O.
func WithOnConnect(onConnect func(*Client)) Option {
	return func(o *clientOptions) {
		o.OnConnect = onConnect
	}
}

// WithOnConnectionLost sets the handler called when the connection is
// lost, with the error that triggered the loss. It runs in its own
// goroutine and does not block internal cleanup or reconnection.
func WithOnConnectionLost(onConnectionLost func(*Client, error)) Option {
	return func(o *clientOptions) {
		o.OnConnectionLost = onConnectionLost
	}
}

// WithOnConnectionResumed sets the hook called after a (re)CONNECT
// with CleanSession=false whose CONNACK reports session_present=0. See clientOptions'
// OnConnectionResumed doc for why this is not automatic.
func WithOnConnectionResumed(fn func(*Client)) Option {
	return func(o *clientOptions) {
		o.OnConnectionResumed = fn
	}
}

// WithSubscription registers a local handler for topic before the first
// connection. It sends no SUBSCRIBE packet: the handler receives messages
// only for a subscription the broker already holds, such as one kept in a
// resumed session.
func WithSubscription(topic string, handler MessageHandler) Option {
	return func(o *clientOptions) {
		if o.InitialSubscriptions == nil {
			o.InitialSubscriptions = make(map[string]MessageHandler)
		}
		o.InitialSubscriptions[topic] = handler
	}
}

// WithSessionStore sets a store for persisting pending publishes,
// subscriptions, and received QoS 2 ids across process restarts. See
// the boltstore package for a bbolt-backed implementation.
func WithSessionStore(store SessionStore) Option {
	return func(o *clientOptions) {
		o.SessionStore = store
	}
}

// WithMetrics registers Prometheus collectors for packets sent/received,
// reconnects, and current in-flight count against reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *clientOptions) {
		o.Registerer = reg
	}
}

// WithHandlerInterceptor adds a wrapper applied to every MessageHandler
// registered via Subscribe, in registration order (the first interceptor
// added is outermost).
func WithHandlerInterceptor(interceptor HandlerInterceptor) Option {
	return func(o *clientOptions) {
		o.HandlerInterceptors = append(o.HandlerInterceptors, interceptor)
	}
}

// WithPublishInterceptor adds a wrapper applied to every Client.Publish
// call, in registration order (the first interceptor added is outermost).
func WithPublishInterceptor(interceptor PublishInterceptor) Option {
	return func(o *clientOptions) {
		o.PublishInterceptors = append(o.PublishInterceptors, interceptor)
	}
}

// defaultOptions returns the default client options.
func defaultOptions(server string) *clientOptions {
	return &clientOptions{
		Server:         server,
		KeepAlive:      60 * time.Second,
		CleanSession:   true,
		AutoReconnect:  true,
		ConnectTimeout: 30 * time.Second,
		RequestTimeout: defaultRequestTimeout,
		MaxRetries:     defaultMaxRetries,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),

		MaxTopicLength:    0,
		MaxPayloadSize:    0,
		MaxIncomingPacket: 0,
		MaxInFlight:       0,
	}
}
