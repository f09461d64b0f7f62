package mq

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nprobe/mqttcore/internal/packets"
	"github.com/nprobe/mqttcore/internal/topic"
)

type subscriptionEntry struct {
	handler MessageHandler
	options SubscribeOptions
	qos     uint8
}

// Client represents an MQTT v3.1.1 client connection.
type Client struct {
	// Configuration
	opts *clientOptions

	// Connection
	conn     net.Conn
	connLock sync.RWMutex

	// Channels for goroutine communication
	outgoing       chan packets.Packet // Packets to send
	incoming       chan packets.Packet // Packets received
	packetReceived chan struct{}       // Signal when packet received (for keepalive)
	pingPendingCh  chan struct{}       // Signal when PINGRESP received
	stop           chan struct{}       // Shutdown signal
	pingPending    bool                // True if PINGREQ sent but no PINGRESP received yet

	// sessionLock guards: pending, subscriptions, receivedQoS2,
	// inFlightCount, publishQueue, nextPacketID.
	sessionLock sync.Mutex

	// Internal queues
	publishQueue []*publishRequest

	// State (managed by logicLoop to avoid races)
	nextPacketID  uint16
	pending       map[uint16]*pendingOp // Outgoing in-flight packets (PUBLISH QoS 1, SUBSCRIBE, UNSUBSCRIBE)
	subscriptions map[string]subscriptionEntry
	receivedQoS2  map[uint16]struct{} // Received QoS 2 packet ids not yet PUBCOMP'd
	inFlightCount int                 // QoS 1 publishes currently unacknowledged

	// topics is the wildcard-aware dispatch trie driving incoming PUBLISH
	// delivery; subscriptions above tracks the same filters for session
	// persistence bookkeeping.
	topics *topic.Tree

	metrics *clientMetrics

	// Lifecycle
	connected atomic.Bool
	wg        sync.WaitGroup // logicLoop, reconnectLoop: live for the whole Client lifetime

	// loopGroup joins the readLoop/writeLoop pair for the current
	// connection; replaced on every (re)connect.
	loopGroup *errgroup.Group

	// Stats (atomic)
	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	reconnectCount  atomic.Uint64

	// For reconnection
	disconnected chan struct{}

	// Last disconnect reason (if any) inferred from connection loss.
	lastDisconnectReason error
}

// publishRequest represents a request to publish a message.
type publishRequest struct {
	packet *packets.PublishPacket
	token  *token
}

// subscribeRequest represents a request to subscribe to a topic.
type subscribeRequest struct {
	packet      *packets.SubscribePacket
	handler     MessageHandler
	token       *token
	persistence bool
}

// unsubscribeRequest represents a request to unsubscribe from topics.
type unsubscribeRequest struct {
	packet *packets.UnsubscribePacket
	topics []string
	token  *token
}

// pendingOp tracks an in-flight operation (publish, subscribe, unsubscribe).
type pendingOp struct {
	packet    packets.Packet
	token     *token
	qos       uint8
	timestamp time.Time
	retries   int
}

// MessageHandler is called when a message is received on a subscribed topic.
type MessageHandler func(*Client, Message)

// DialContext establishes a connection to an MQTT server with a context and
// returns a Client.
//
// The context controls the initial connection establishment, including the
// network dial, TLS handshake, and MQTT CONNECT handshake. If the context is
// cancelled or expires before the handshake completes, DialContext returns
// an error.
//
// When using DialContext, the context's deadline bounds the initial
// connection; WithConnectTimeout applies to it only if the context has no
// deadline, and then only to the CONNECT/CONNACK exchange. It is still
// used for subsequent automatic reconnection attempts.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//
//	client, err := mq.DialContext(ctx, "tcp://localhost:1883",
//	    mq.WithClientID("my-client"))
func DialContext(ctx context.Context, server string, opts ...Option) (*Client, error) {
	options := defaultOptions(server)
	for _, opt := range opts {
		opt(options)
	}

	if options.Logger != nil {
		options.Logger = options.Logger.With("lib", "mq")
	}

	if options.ClientID == "" && options.CleanSession {
		options.ClientID = "mq-" + uuid.NewString()
	}

	c := &Client{
		opts:     options,
		outgoing: make(chan packets.Packet, 1000),
		incoming: make(chan packets.Packet, 100),

		packetReceived: make(chan struct{}, 1),
		pingPendingCh:  make(chan struct{}, 1),
		stop:           make(chan struct{}),
		pending:        make(map[uint16]*pendingOp),
		subscriptions:  make(map[string]subscriptionEntry),
		receivedQoS2:   make(map[uint16]struct{}),
		disconnected:   make(chan struct{}, 1),
		topics:         topic.New(),
	}

	c.metrics = newClientMetrics(options.Registerer, options.ClientID)

	for t, handler := range options.InitialSubscriptions {
		c.registerSubscription(t, subscriptionEntry{handler: handler, qos: 0, options: SubscribeOptions{Persistence: true}})
	}

	if !c.opts.CleanSession {
		if err := c.loadSessionState(); err != nil {
			c.opts.Logger.Warn("failed to load session state", "error", err)
		}
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.logicLoop()

	if options.AutoReconnect {
		c.wg.Add(1)
		go c.reconnectLoop()
	}

	return c, nil
}

// Dial establishes a connection to an MQTT server and returns a Client.
//
// It is a wrapper around DialContext that uses the configured connection
// timeout (see WithConnectTimeout) to control the initial handshake.
//
// The server parameter specifies the server address with scheme and port.
// Supported schemes:
//   - tcp://  or mqtt://  - Unencrypted connection (default port 1883)
//   - tls://, ssl://, or mqtts:// - TLS encrypted connection (default port 8883)
//
// Example:
//
//	client, err := mq.Dial("tcp://localhost:1883", mq.WithClientID("my-client"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect(context.Background())
func Dial(server string, opts ...Option) (*Client, error) {
	options := defaultOptions(server)
	for _, opt := range opts {
		opt(options)
	}

	ctx, cancel := context.WithTimeout(context.Background(), options.ConnectTimeout)
	defer cancel()

	return DialContext(ctx, server, opts...)
}

// registerSubscription adds a subscription to both the dispatch trie and the
// bookkeeping map, wrapping entry.handler for the trie's callback shape.
func (c *Client) registerSubscription(filter string, entry subscriptionEntry) {
	c.subscriptions[filter] = entry

	txn := c.topics.Begin()
	_ = txn.Insert(filter, topic.Subscription{
		QoS: entry.qos,
		Callback: func(top string, payload []byte, qos uint8, retained, dup bool) {
			if entry.handler == nil {
				return
			}
			msg := Message{Topic: top, Payload: payload, QoS: QoS(qos), Retained: retained, Duplicate: dup}
			go entry.handler(c, msg)
		},
	})
	txn.Commit()
}

func (c *Client) unregisterSubscription(filter string) {
	delete(c.subscriptions, filter)
	txn := c.topics.Begin()
	_ = txn.Remove(filter)
	txn.Commit()
}

// connect establishes the TCP connection and performs the MQTT handshake.
func (c *Client) connect(ctx context.Context) error {
	c.opts.Logger.Debug("connecting to MQTT server", "server", c.opts.Server)

	if c.opts.ClientID == "" && !c.opts.CleanSession {
		return fmt.Errorf("MQTT requires a non-empty ClientID when CleanSession is false")
	}

	conn, err := c.dialServer(ctx)
	if err != nil {
		return err
	}

	c.connLock.Lock()
	c.conn = conn
	c.lastDisconnectReason = nil
	c.connLock.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.opts.ConnectTimeout)
	}
	_ = conn.SetDeadline(deadline)

	connectPkt := c.buildConnectPacket()
	wireBytes, err := connectPkt.Encode(nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to encode CONNECT: %w", err)
	}
	if _, err := conn.Write(wireBytes); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send CONNECT: %w", err)
	}
	c.packetsSent.Add(1)
	c.bytesSent.Add(uint64(len(wireBytes)))
	c.metrics.addPacketSent()
	c.metrics.addBytesSent(len(wireBytes))

	connack, err := c.performHandshake(conn)
	if err != nil {
		conn.Close()
		return err
	}

	_ = conn.SetDeadline(time.Time{})

	if connack.ReturnCode != packets.ConnAccepted {
		conn.Close()
		return &MqttError{
			ReasonCode: ReasonCode(connack.ReturnCode),
			Parent:     ErrConnectionRefused,
		}
	}

	if !c.opts.CleanSession {
		if err := c.checkSessionPresent(connack.SessionPresent); err != nil {
			c.opts.Logger.Warn("failed to check session present", "error", err)
		}
	}

	c.opts.Logger.Debug("connection established", "server", c.opts.Server)

	c.connected.Store(true)

	if c.opts.OnConnect != nil {
		go c.opts.OnConnect(c)
	}

	var eg errgroup.Group
	eg.Go(func() error { c.readLoop(); return nil })
	eg.Go(func() error { c.writeLoop(); return nil })

	c.connLock.Lock()
	c.loopGroup = &eg
	c.connLock.Unlock()

	c.opts.Logger.Debug("client started", "client_id", c.opts.ClientID)
	return nil
}

// dialServer establishes a TCP, TLS, or custom connection to the MQTT server.
func (c *Client) dialServer(ctx context.Context) (net.Conn, error) {
	if c.opts.Dialer != nil {
		network := "tcp"
		if u, err := url.Parse(c.opts.Server); err == nil && u.Scheme != "" {
			network = u.Scheme
		}

		conn, err := c.opts.Dialer.DialContext(ctx, network, c.opts.Server)
		if err != nil {
			return nil, fmt.Errorf("custom dialer failed: %w", err)
		}
		return conn, nil
	}

	u, err := url.Parse(c.opts.Server)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	if u.Port() == "" {
		switch u.Scheme {
		case "tls", "ssl", "mqtts":
			u.Host = net.JoinHostPort(u.Host, "8883")
		case "tcp", "mqtt", "":
			u.Host = net.JoinHostPort(u.Host, "1883")
		}
	}

	useTLS := u.Scheme == "tls" || u.Scheme == "ssl" || u.Scheme == "mqtts" || c.opts.TLSConfig != nil
	if !useTLS && u.Scheme != "tcp" && u.Scheme != "mqtt" {
		return nil, fmt.Errorf("unsupported scheme: %s (supported: tcp, mqtt, tls, ssl, mqtts)", u.Scheme)
	}

	var conn net.Conn
	if useTLS {
		tlsConfig := c.opts.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		}
		dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", u.Host)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", u.Host)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	return conn, nil
}

// buildConnectPacket creates a CONNECT packet with the client's configuration.
func (c *Client) buildConnectPacket() *packets.ConnectPacket {
	pkt := &packets.ConnectPacket{
		CleanSession: c.opts.CleanSession,
		KeepAlive:    uint16(c.opts.KeepAlive.Seconds()),
		ClientID:     c.opts.ClientID,
	}

	if c.opts.Username != "" {
		pkt.UsernameFlag = true
		pkt.Username = c.opts.Username
	}
	if c.opts.Password != "" {
		pkt.PasswordFlag = true
		pkt.Password = c.opts.Password
	}

	if c.opts.will != nil {
		pkt.WillFlag = true
		pkt.WillTopic = c.opts.will.Topic
		pkt.WillMessage = c.opts.will.Payload
		pkt.WillQoS = c.opts.will.QoS
		pkt.WillRetain = c.opts.will.Retained
	}

	return pkt
}

// performHandshake blocks on conn until a CONNACK arrives.
func (c *Client) performHandshake(conn net.Conn) (*packets.ConnackPacket, error) {
	fr := &frameReader{conn: conn, c: c}
	for {
		pkt, err := fr.next(c.opts.MaxIncomingPacket)
		if err != nil {
			return nil, fmt.Errorf("failed to read CONNACK: %w", err)
		}
		if connack, ok := pkt.(*packets.ConnackPacket); ok {
			return connack, nil
		}
		return nil, fmt.Errorf("expected CONNACK, got packet type %d", pkt.Type())
	}
}

// frameReader accumulates bytes from a net.Conn and decodes complete
// frames with internal/packets.TryDecodeFrame, blocking only on the
// underlying Read.
type frameReader struct {
	conn net.Conn
	c    *Client
	buf  []byte
}

func (r *frameReader) next(maxPacketSize int) (packets.Packet, error) {
	for {
		pkt, consumed, ok, err := packets.TryDecodeFrame(r.buf, maxPacketSize)
		if err != nil {
			return nil, err
		}
		if ok {
			r.buf = r.buf[consumed:]
			return pkt, nil
		}

		chunk := make([]byte, 4096)
		n, err := r.conn.Read(chunk)
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
			r.c.bytesReceived.Add(uint64(n))
			r.c.metrics.addBytesReceived(n)
		}
		if err != nil {
			return nil, err
		}
	}
}

// readLoop continuously reads packets from the network.
func (c *Client) readLoop() {
	defer c.handleDisconnect()

	c.connLock.RLock()
	conn := c.conn
	c.connLock.RUnlock()

	if conn == nil {
		return
	}

	fr := &frameReader{conn: conn, c: c}

	for {
		pkt, err := fr.next(c.opts.MaxIncomingPacket)
		if err != nil {
			c.opts.Logger.Debug("read error, disconnecting", "error", err)
			return
		}
		c.packetsReceived.Add(1)
		c.metrics.addPacketReceived()

		c.opts.Logger.Debug("received packet", "type", packets.PacketNames[pkt.Type()])

		select {
		case c.packetReceived <- struct{}{}:
		default:
		}

		select {
		case c.incoming <- pkt:
		case <-c.stop:
			c.opts.Logger.Debug("readLoop stopped")
			return
		}
	}
}

// writeLoop continuously writes packets to the network and handles keepalive.
func (c *Client) writeLoop() {
	var ticker *time.Ticker
	var tickerCh <-chan time.Time

	if c.opts.KeepAlive > 0 {
		ticker = time.NewTicker(c.opts.KeepAlive / 4)
		defer ticker.Stop()
		tickerCh = ticker.C
	}

	c.connLock.RLock()
	conn := c.conn
	c.connLock.RUnlock()

	if conn == nil {
		c.opts.Logger.Debug("writeLoop started but not connected")
		return
	}

	bw := bufio.NewWriter(conn)
	lastReceived := time.Now()
	lastSent := lastReceived

	writePacket := func(pkt packets.Packet) error {
		b, err := pkt.Encode(nil)
		if err != nil {
			return err
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
		c.packetsSent.Add(1)
		c.bytesSent.Add(uint64(len(b)))
		c.metrics.addPacketSent()
		c.metrics.addBytesSent(len(b))
		return nil
	}

	for {
		select {
		case pkt := <-c.outgoing:
			c.opts.Logger.Debug("sending packet", "type", packets.PacketNames[pkt.Type()])
			if err := writePacket(pkt); err != nil {
				c.opts.Logger.Debug("write error, disconnecting", "error", err)
				c.handleDisconnect()
				return
			}
			lastSent = time.Now()

			count := len(c.outgoing)
			for range count {
				pkt := <-c.outgoing
				c.opts.Logger.Debug("sending packet (batch)", "type", packets.PacketNames[pkt.Type()])
				if err := writePacket(pkt); err != nil {
					c.opts.Logger.Debug("write error (batch), disconnecting", "error", err)
					c.handleDisconnect()
					return
				}
				lastSent = time.Now()
			}

			if err := bw.Flush(); err != nil {
				c.opts.Logger.Debug("flush error, disconnecting", "error", err)
				c.handleDisconnect()
				return
			}

		case <-c.packetReceived:
			lastReceived = time.Now()

		case <-c.pingPendingCh:
			c.pingPending = false

		case <-tickerCh:
			timeout := c.opts.KeepAlive + c.opts.KeepAlive/2
			if time.Since(lastReceived) >= timeout {
				c.opts.Logger.Debug("keepalive timeout, no packets received",
					"timeout", timeout, "last_received", time.Since(lastReceived))
				c.connLock.Lock()
				c.lastDisconnectReason = ErrKeepaliveTimeout
				c.connLock.Unlock()
				c.handleDisconnect()
				return
			}

			threshold := c.opts.KeepAlive - (c.opts.KeepAlive / 4)
			timeSinceSent := time.Since(lastSent)
			timeSinceReceived := time.Since(lastReceived)

			if !c.pingPending && (timeSinceSent >= threshold || timeSinceReceived >= threshold) {
				if err := writePacket(&packets.PingreqPacket{}); err != nil {
					c.handleDisconnect()
					return
				}
				if err := bw.Flush(); err != nil {
					c.handleDisconnect()
					return
				}
				lastSent = time.Now()
				c.pingPending = true
			}

		case <-c.stop:
			c.opts.Logger.Debug("writeLoop stopped")
			return
		}
	}
}

// handleDisconnect handles connection loss.
func (c *Client) handleDisconnect() {
	if !c.connected.Swap(false) {
		return
	}

	c.connLock.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	reason := fmt.Errorf("connection lost")
	if c.lastDisconnectReason != nil {
		reason = c.lastDisconnectReason
		c.lastDisconnectReason = nil
	}
	c.connLock.Unlock()

	if c.opts.OnConnectionLost != nil {
		go c.opts.OnConnectionLost(c, reason)
	}

	select {
	case c.disconnected <- struct{}{}:
	default:
	}
}

// IsConnected returns true if the client is currently connected to the server.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Disconnect gracefully disconnects from the server.
//
// It sends a DISCONNECT packet, stops all background goroutines, and closes
// the network connection. It blocks until all goroutines have exited or the
// context is cancelled. AutoReconnect, if enabled, stops after Disconnect;
// create a new client with Dial to reconnect.
func (c *Client) Disconnect(ctx context.Context) error {
	c.opts.Logger.Debug("disconnecting from server")

	if !c.connected.Swap(false) {
		return nil
	}

	select {
	case c.outgoing <- &packets.DisconnectPacket{}:
	case <-time.After(100 * time.Millisecond):
	}

	time.Sleep(100 * time.Millisecond)

	close(c.stop)

	c.connLock.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connLock.Unlock()

	c.connLock.RLock()
	lg := c.loopGroup
	c.connLock.RUnlock()

	done := make(chan struct{})
	go func() {
		if lg != nil {
			_ = lg.Wait()
		}
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.opts.Logger.Debug("disconnected successfully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for goroutines to exit")
	}
}

// reconnectLoop handles automatic reconnection with exponential backoff.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry forever; the caller stops us via c.stop

	for {
		select {
		case <-c.disconnected:
			select {
			case <-time.After(bo.NextBackOff()):
			case <-c.stop:
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
			err := c.connect(ctx)
			cancel()

			if err != nil {
				select {
				case c.disconnected <- struct{}{}:
				default:
				}
				continue
			}

			bo.Reset()
			c.reconnectCount.Add(1)
			c.metrics.addReconnect()

			if c.opts.CleanSession {
				c.internalResetState()
			}

		case <-c.stop:
			c.opts.Logger.Debug("reconnectLoop stopped")
			return
		}
	}
}

// ClientStats holds connection and throughput statistics.
type ClientStats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	ReconnectCount  uint64
	Connected       bool
}

// Stats returns the current client statistics. If WithMetrics was used,
// the same counters are also exposed to Prometheus.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		PacketsSent:     c.packetsSent.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		BytesSent:       c.bytesSent.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		ReconnectCount:  c.reconnectCount.Load(),
		Connected:       c.IsConnected(),
	}
}
