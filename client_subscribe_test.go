package mq

import (
	"testing"
	"time"

	"github.com/nprobe/mqttcore/internal/packets"
	"github.com/nprobe/mqttcore/internal/topic"
)

func TestSubscribe(t *testing.T) {
	c := &Client{
		opts: &clientOptions{
			Logger: testLogger(),
		},
		subscriptions: make(map[string]subscriptionEntry),
		topics:        topic.New(),
		outgoing:      make(chan packets.Packet, 1),
		pending:       make(map[uint16]*pendingOp),
		stop:          make(chan struct{}),
		nextPacketID:  1,
	}

	topicFilter := "test/topic"
	handler := func(c *Client, msg Message) {}

	// Test successful subscription request
	token := c.Subscribe(topicFilter, 1, handler)

	select {
	case p := <-c.outgoing:
		req, ok := p.(*packets.SubscribePacket)
		if !ok {
			t.Errorf("Expected SubscribePacket, got %T", p)
		}
		if len(req.Topics) != 1 || req.Topics[0] != topicFilter {
			t.Errorf("Request topic mismatch: %v", req.Topics)
		}
		// Verify pending op
		if op, ok := c.pending[req.PacketID]; !ok {
			t.Error("Pending op not found")
		} else if op.token != token {
			t.Error("Token mismatch")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for subscribe packet")
	}

	// Test invalid topic (Subscribe should fail synchronously or return error token?
	// The validation in internalSubscribe checks topic validity)
	token = c.Subscribe("#/invalid", 1, handler)
	select {
	case <-token.Done():
		if token.Error() == nil {
			t.Error("Expected error for invalid topic")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for invalid topic token completion")
	}
}

func TestUnsubscribe(t *testing.T) {
	c := &Client{
		opts: &clientOptions{
			Logger: testLogger(),
		},
		subscriptions: make(map[string]subscriptionEntry),
		topics:        topic.New(),
		outgoing:      make(chan packets.Packet, 1),
		pending:       make(map[uint16]*pendingOp),
		stop:          make(chan struct{}),
		nextPacketID:  1,
	}

	topicFilter := "test/topic"

	// Test successful unsubscribe request
	token := c.Unsubscribe(topicFilter)

	select {
	case p := <-c.outgoing:
		req, ok := p.(*packets.UnsubscribePacket)
		if !ok {
			t.Errorf("Expected UnsubscribePacket, got %T", p)
		}
		if len(req.Topics) != 1 || req.Topics[0] != topicFilter {
			t.Errorf("Request topic mismatch: %v", req.Topics)
		}
		// Verify pending op
		if op, ok := c.pending[req.PacketID]; !ok {
			t.Error("Pending op not found")
		} else if op.token != token {
			t.Error("Token mismatch")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for unsubscribe packet")
	}
}

func TestInternalSubscribe(t *testing.T) {
	c := &Client{
		opts: &clientOptions{
			Logger: testLogger(),
		},
		subscriptions: make(map[string]subscriptionEntry),
		topics:        topic.New(),
		pending:       make(map[uint16]*pendingOp),
		outgoing:      make(chan packets.Packet, 10),
		nextPacketID:  1,
	}

	topicFilter := "test/topic"
	handler := func(c *Client, msg Message) {}

	pkt := &packets.SubscribePacket{
		Topics: []string{topicFilter},
		QoS:    []uint8{1},
	}

	token := newToken()
	req := &subscribeRequest{
		packet:  pkt,
		handler: handler,
		token:   token,
	}

	// Execute internal method
	c.internalSubscribe(req)

	// Verify outgoing packet
	select {
	case p := <-c.outgoing:
		sent, ok := p.(*packets.SubscribePacket)
		if !ok {
			t.Errorf("Expected SubscribePacket, got %T", p)
		}
		// Verify pending op created with the sent PacketID
		if op, ok := c.pending[sent.PacketID]; !ok {
			t.Errorf("Pending op not created for PacketID %d", sent.PacketID)
		} else {
			if op.token != token {
				t.Error("Pending op token mismatch")
			}
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for outgoing packet")
	}
}

func TestInternalUnsubscribe(t *testing.T) {
	c := &Client{
		opts: &clientOptions{
			Logger: testLogger(),
		},
		subscriptions: make(map[string]subscriptionEntry),
		topics:        topic.New(),
		pending:       make(map[uint16]*pendingOp),
		outgoing:      make(chan packets.Packet, 10),
		nextPacketID:  10,
	}

	topics := []string{"test/topic"}
	pkt := &packets.UnsubscribePacket{
		Topics: topics,
	}

	token := newToken()
	req := &unsubscribeRequest{
		packet: pkt,
		topics: topics,
		token:  token,
	}

	// Execute internal method
	c.internalUnsubscribe(req)

	// Verify outgoing packet
	select {
	case p := <-c.outgoing:
		sent, ok := p.(*packets.UnsubscribePacket)
		if !ok {
			t.Errorf("Expected UnsubscribePacket, got %T", p)
		}
		// Verify pending op created with the sent PacketID
		if op, ok := c.pending[sent.PacketID]; !ok {
			t.Errorf("Pending op not created for PacketID %d", sent.PacketID)
		} else {
			if op.token != token {
				t.Error("Pending op token mismatch")
			}
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for outgoing packet")
	}
}

// TestResendSubscription tests the OnConnectionResumed resubscribe path.
func TestResendSubscription(t *testing.T) {
	c := &Client{
		subscriptions: make(map[string]subscriptionEntry),
		topics:        topic.New(),
		pending:       make(map[uint16]*pendingOp),
		outgoing:      make(chan packets.Packet, 1),
		opts:          defaultOptions("tcp://test:1883"),
	}

	entry := subscriptionEntry{handler: func(*Client, Message) {}, qos: 1}
	c.resendSubscription("test/topic", entry)

	select {
	case p := <-c.outgoing:
		subPkt, ok := p.(*packets.SubscribePacket)
		if !ok {
			t.Fatalf("expected SubscribePacket, got %T", p)
		}
		if len(subPkt.Topics) != 1 || subPkt.Topics[0] != "test/topic" {
			t.Errorf("unexpected topics: %v", subPkt.Topics)
		}
		if len(subPkt.QoS) != 1 || subPkt.QoS[0] != 1 {
			t.Errorf("unexpected QoS: %v", subPkt.QoS)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for resend packet")
	}

	if len(c.pending) != 1 {
		t.Errorf("expected 1 pending operation, got %d", len(c.pending))
	}
}
