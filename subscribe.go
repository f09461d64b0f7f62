package mq

import (
	"fmt"
	"time"

	"github.com/nprobe/mqttcore/internal/packets"
)

// SubscribeOptions holds configuration for a subscription.
type SubscribeOptions struct {
	// Persistence controls whether the subscription survives in the
	// session store across a Dial restart. Enabled by default.
	Persistence bool
}

// SubscribeOption is a functional option for configuring a subscription.
type SubscribeOption func(*SubscribeOptions)

// WithPersistence sets whether the subscription should be persisted to the
// session store. If true (default), the subscription is saved and restored
// on process restart. If false, the subscription is ephemeral.
//
// This is independent of the MQTT CleanSession flag, which controls
// server-side persistence.
func WithPersistence(persistence bool) SubscribeOption {
	return func(o *SubscribeOptions) {
		o.Persistence = persistence
	}
}

// Subscribe subscribes to a topic with the specified QoS level.
//
// The handler function is called for each message received on topics
// matching the subscription filter, in a separate goroutine, so it
// should not block for long periods. If a message matches multiple
// subscription filters, the handler for each matching filter fires once.
//
// Topic filters support MQTT wildcards:
//   - '+' matches a single level (e.g., "sensors/+/temperature")
//   - '#' matches multiple trailing levels (e.g., "sensors/#")
//
// The returned Token completes when the subscription is acknowledged by
// the server. Subscribe does not automatically resend on reconnect with
// session_present=0; see WithOnConnectionResumed.
//
// Example:
//
//	token := client.Subscribe("sensors/temperature", mq.AtLeastOnce,
//	    func(c *mq.Client, msg mq.Message) {
//	        fmt.Printf("Temperature: %s\n", string(msg.Payload))
//	    })
//	if err := token.Wait(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
func (c *Client) Subscribe(topic string, qos QoS, handler MessageHandler, opts ...SubscribeOption) Token {
	c.opts.Logger.Debug("subscribing to topic", "topic", topic, "qos", qos)

	if err := validateSubscribeTopic(topic, c.opts); err != nil {
		tok := newToken()
		tok.complete(fmt.Errorf("invalid topic filter: %w", err))
		return tok
	}
	if handler == nil {
		tok := newToken()
		tok.complete(fmt.Errorf("subscribe handler must not be nil"))
		return tok
	}

	subOpts := &SubscribeOptions{Persistence: true}
	for _, opt := range opts {
		opt(subOpts)
	}

	handler = applyHandlerInterceptors(handler, c.opts.HandlerInterceptors)

	pkt := &packets.SubscribePacket{
		Topics: []string{topic},
		QoS:    []uint8{uint8(qos)},
	}

	tok := newToken()
	req := &subscribeRequest{
		packet:      pkt,
		handler:     handler,
		token:       tok,
		persistence: subOpts.Persistence,
	}

	c.internalSubscribe(req)

	return tok
}

// Unsubscribe unsubscribes from one or more topics.
//
// After unsubscribing, the client no longer receives messages on the
// specified filters. The returned Token completes when the
// unsubscription is acknowledged by the server.
//
// Example:
//
//	token := client.Unsubscribe("sensors/temp", "sensors/humidity")
//	if err := token.Wait(context.Background()); err != nil {
//	    log.Printf("unsubscribe failed: %v", err)
//	}
func (c *Client) Unsubscribe(topics ...string) Token {
	c.opts.Logger.Debug("unsubscribing from topics", "topics", topics)

	if len(topics) == 0 {
		tok := newToken()
		tok.complete(nil)
		return tok
	}

	pkt := &packets.UnsubscribePacket{Topics: topics}
	tok := newToken()
	req := &unsubscribeRequest{
		packet: pkt,
		topics: topics,
		token:  tok,
	}
	c.internalUnsubscribe(req)

	return tok
}

// resendSubscription re-sends a SUBSCRIBE for an existing registry entry.
// It bypasses Client.Subscribe's topic-tree registration since the entry
// is already registered. The client never calls it on its own, including
// after a session_present=0 reconnect.
func (c *Client) resendSubscription(topicFilter string, entry subscriptionEntry) {
	pkt := &packets.SubscribePacket{
		Topics: []string{topicFilter},
		QoS:    []uint8{entry.qos},
	}

	c.sessionLock.Lock()
	id, err := c.nextID()
	if err != nil {
		c.sessionLock.Unlock()
		c.opts.Logger.Warn("failed to resend subscription", "topic", topicFilter, "error", err)
		return
	}
	pkt.PacketID = id
	c.pending[pkt.PacketID] = &pendingOp{
		packet:    pkt,
		token:     newToken(),
		qos:       uint8(AtLeastOnce),
		timestamp: time.Now(),
	}
	c.sessionLock.Unlock()

	select {
	case c.outgoing <- pkt:
	case <-c.stop:
	}
}
