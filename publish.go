package mq

import (
	"fmt"

	"github.com/nprobe/mqttcore/internal/packets"
)

// PublishOptions holds configuration for a publish operation.
type PublishOptions struct {
	QoS    uint8
	Retain bool
}

// PublishOption is a functional option for configuring a PUBLISH packet.
type PublishOption func(*PublishOptions)

// WithQoS sets the Quality of Service level for the publish.
//
// QoS levels:
//   - 0: At most once delivery (fire and forget)
//   - 1: At least once delivery (acknowledged)
//   - 2: Exactly once delivery (assured); see ErrQoS2Unsupported
//
// Default is QoS 0.
func WithQoS(qos QoS) PublishOption {
	return func(o *PublishOptions) {
		o.QoS = uint8(qos)
	}
}

// WithRetain sets the retain flag for the publish.
//
// When true, the server stores the message and delivers it to future
// subscribers of the topic. Only the most recent retained message per
// topic is stored.
//
// Default is false.
func WithRetain(retain bool) PublishOption {
	return func(o *PublishOptions) {
		o.Retain = retain
	}
}

// Publish publishes a message to the specified topic.
//
// The returned Token completes immediately for QoS 0, and after the
// matching PUBACK (QoS 1) or PUBCOMP (QoS 2) otherwise. QoS 2 is
// rejected synchronously with ErrQoS2Unsupported; see DESIGN.md.
//
// Example (QoS 0 - fire and forget):
//
//	client.Publish("sensors/temp", []byte("22.5"))
//
// Example (QoS 1 - wait for acknowledgment):
//
//	token := client.Publish("sensors/temp", []byte("22.5"), mq.WithQoS(mq.AtLeastOnce))
//	if err := token.Wait(context.Background()); err != nil {
//	    log.Printf("publish failed: %v", err)
//	}
func (c *Client) Publish(topic string, payload []byte, opts ...PublishOption) Token {
	publish := applyPublishInterceptors(c.doPublish, c.opts.PublishInterceptors)
	return publish(topic, payload, opts...)
}

// doPublish is the uninterceptored implementation wrapped by Publish.
func (c *Client) doPublish(topic string, payload []byte, opts ...PublishOption) Token {
	c.opts.Logger.Debug("publishing message", "topic", topic, "payload_size", len(payload))

	if err := validatePublishTopic(topic, c.opts); err != nil {
		tok := newToken()
		tok.complete(fmt.Errorf("invalid topic: %w", err))
		return tok
	}

	if err := validatePayload(payload, c.opts); err != nil {
		tok := newToken()
		tok.complete(fmt.Errorf("invalid payload: %w", err))
		return tok
	}

	pubOpts := &PublishOptions{}
	for _, opt := range opts {
		opt(pubOpts)
	}

	if pubOpts.QoS == uint8(ExactlyOnce) {
		tok := newToken()
		tok.complete(ErrQoS2Unsupported)
		return tok
	}

	pkt := &packets.PublishPacket{
		Topic:   topic,
		Payload: payload,
		QoS:     pubOpts.QoS,
		Retain:  pubOpts.Retain,
	}

	tok := newToken()
	req := &publishRequest{
		packet: pkt,
		token:  tok,
	}

	c.internalPublish(req)

	return tok
}
