// Package wsdialer adapts a gorilla/websocket connection to mq.ContextDialer,
// letting a Client speak MQTT over a WebSocket transport (ws:// or wss://).
package wsdialer

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotBinary is returned from Read when the peer sends a non-binary
// WebSocket message; the MQTT wire format is always binary.
var ErrNotBinary = errors.New("wsdialer: received non-binary websocket message")

var closeMessage = websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")

// Dialer dials an MQTT-over-WebSocket server. The zero value dials with
// a plain gorilla/websocket.Dialer (no proxy, no handshake timeout beyond
// ctx) and the "mqtt" subprotocol.
type Dialer struct {
	// Subprotocols overrides the WebSocket subprotocol list sent during
	// the handshake. Defaults to []string{"mqtt"}.
	Subprotocols []string

	// Header carries extra HTTP headers for the handshake request (e.g.
	// Authorization for brokers that gate WebSocket upgrades).
	Header http.Header

	// HandshakeTimeout bounds the WebSocket upgrade handshake. Zero means
	// no explicit timeout beyond ctx.
	HandshakeTimeout time.Duration
}

// DialContext implements mq.ContextDialer. addr is the full WebSocket URL
// (e.g. "ws://broker:9001/mqtt" or "wss://broker/mqtt"); network is ignored.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	subprotocols := d.Subprotocols
	if len(subprotocols) == 0 {
		subprotocols = []string{"mqtt"}
	}

	dialer := &websocket.Dialer{
		Subprotocols:     subprotocols,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, addr, d.Header)
	if err != nil {
		return nil, err
	}

	return newConn(conn), nil
}

// conn adapts a *websocket.Conn to net.Conn by framing the MQTT byte
// stream over WebSocket binary messages, reassembling reads across
// message boundaries the way a TCP stream would.
type conn struct {
	ws     *websocket.Conn
	reader io.Reader
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{ws: ws}
}

func (c *conn) Read(p []byte) (int, error) {
	total := 0

	for total < len(p) {
		if c.reader == nil {
			messageType, r, err := c.ws.NextReader()
			if closeErr, ok := err.(*websocket.CloseError); ok {
				_ = closeErr
				return total, io.EOF
			}
			if err != nil {
				return total, err
			}
			if messageType != websocket.BinaryMessage {
				return total, ErrNotBinary
			}
			c.reader = r
		}

		n, err := c.reader.Read(p[total:])
		total += n

		if err == io.EOF {
			c.reader = nil
			if total > 0 {
				return total, nil
			}
			continue
		}
		if err != nil {
			return total, err
		}
		if n > 0 {
			return total, nil
		}
	}

	return total, nil
}

func (c *conn) Write(p []byte) (int, error) {
	w, err := c.ws.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(p)
	if err != nil {
		_ = w.Close()
		return n, err
	}
	if err := w.Close(); err != nil {
		return n, err
	}
	return n, nil
}

func (c *conn) Close() error {
	_ = c.ws.WriteMessage(websocket.CloseMessage, closeMessage)
	return c.ws.Close()
}

func (c *conn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *conn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *conn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
