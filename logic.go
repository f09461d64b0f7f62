package mq

import (
	"time"

	"github.com/nprobe/mqttcore/internal/packets"
)

// defaultRequestTimeout and defaultMaxRetries apply when WithRequestTimeout
// or WithMaxRetries is not set. retryPollInterval is how often retryPending
// checks for expired requests; it only needs to be finer-grained than
// RequestTimeout, so it isn't itself configurable.
const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxRetries     = 4
	retryPollInterval     = 5 * time.Second
)

// logicLoop handles incoming packets, retry ticks and shutdown. It holds
// sessionLock while it touches the pending map and the publish queue, since
// Publish/Subscribe/Unsubscribe update them from the caller's goroutine.
func (c *Client) logicLoop() {
	defer c.wg.Done()

	retryTicker := time.NewTicker(retryPollInterval)
	defer retryTicker.Stop()

	for {
		select {
		case pkt := <-c.incoming:
			c.sessionLock.Lock()
			c.handleIncoming(pkt)
			c.sessionLock.Unlock()

		case <-retryTicker.C:
			c.sessionLock.Lock()
			c.retryPending()
			c.processPublishQueue()
			c.sessionLock.Unlock()

		case <-c.stop:
			c.opts.Logger.Debug("logicLoop stopped")
			c.sessionLock.Lock()
			for _, op := range c.pending {
				op.token.complete(ErrClientDisconnected)
			}
			for _, req := range c.publishQueue {
				req.token.complete(ErrClientDisconnected)
			}
			c.publishQueue = nil
			c.sessionLock.Unlock()
			return
		}
	}
}

// internalResetState resets session state (e.g. on clean session reconnect).
// It acquires the session lock.
func (c *Client) internalResetState() {
	c.sessionLock.Lock()
	defer c.sessionLock.Unlock()
	c.receivedQoS2 = make(map[uint16]struct{})
}

// handleIncoming processes incoming packets from the server.
func (c *Client) handleIncoming(pkt packets.Packet) {
	switch p := pkt.(type) {
	case *packets.PublishPacket:
		c.handlePublish(p)

	case *packets.PubackPacket:
		c.handlePuback(p)

	case *packets.PubrecPacket:
		c.handlePubrec(p)

	case *packets.PubrelPacket:
		c.handlePubrel(p)

	case *packets.PubcompPacket:
		c.handlePubcomp(p)

	case *packets.SubackPacket:
		c.handleSuback(p)

	case *packets.UnsubackPacket:
		c.handleUnsuback(p)

	case *packets.PingrespPacket:
		select {
		case c.pingPendingCh <- struct{}{}:
		default:
		}

	case *packets.DisconnectPacket:
		c.handleDisconnectPacket(p)
	}
}

// handlePublish processes an incoming PUBLISH packet.
func (c *Client) handlePublish(p *packets.PublishPacket) {
	// For QoS 2, check if we've already received this packet id; if so,
	// re-acknowledge without delivering the payload a second time.
	if p.QoS == 2 {
		if _, exists := c.receivedQoS2[p.PacketID]; exists {
			select {
			case c.outgoing <- &packets.PubrecPacket{PacketID: p.PacketID}:
			case <-c.stop:
			default:
			}
			return
		}
		c.receivedQoS2[p.PacketID] = struct{}{}

		if c.opts.SessionStore != nil {
			if err := c.opts.SessionStore.SaveReceivedQoS2(p.PacketID); err != nil {
				c.opts.Logger.Warn("failed to persist QoS2 ID", "packet_id", p.PacketID, "error", err)
			}
		}
	}

	msg := Message{
		Topic:     p.Topic,
		Payload:   p.Payload,
		QoS:       QoS(p.QoS),
		Retained:  p.Retain,
		Duplicate: p.Dup,
	}

	matched, err := c.topics.Publish(p.Topic, msg.Payload, p.QoS, p.Retain, p.Dup)
	if err != nil {
		c.opts.Logger.Warn("failed to dispatch publish", "topic", p.Topic, "error", err)
	}
	if !matched && c.opts.DefaultPublishHandler != nil {
		go c.opts.DefaultPublishHandler(c, msg)
	}

	switch p.QoS {
	case 1:
		select {
		case c.outgoing <- &packets.PubackPacket{PacketID: p.PacketID}:
		case <-c.stop:
		default:
		}
	case 2:
		select {
		case c.outgoing <- &packets.PubrecPacket{PacketID: p.PacketID}:
		case <-c.stop:
		default:
		}
	}
}

// handlePuback processes a PUBACK packet (QoS 1 acknowledgment).
func (c *Client) handlePuback(p *packets.PubackPacket) {
	if op, ok := c.pending[p.PacketID]; ok {
		op.token.complete(nil)
		delete(c.pending, p.PacketID)

		if c.opts.SessionStore != nil {
			if err := c.opts.SessionStore.DeletePendingPublish(p.PacketID); err != nil {
				c.opts.Logger.Warn("failed to delete pending publish", "packet_id", p.PacketID, "error", err)
			}
		}

		c.inFlightCount--
		c.metrics.setInFlight(c.inFlightCount)
		c.processPublishQueue()
	}
}

// handlePubrec processes a PUBREC packet (QoS 2, step 1).
func (c *Client) handlePubrec(p *packets.PubrecPacket) {
	if op, ok := c.pending[p.PacketID]; ok {
		pubrel := &packets.PubrelPacket{PacketID: p.PacketID}
		select {
		case c.outgoing <- pubrel:
			op.packet = pubrel
			op.timestamp = time.Now()
		case <-c.stop:
		default:
		}
	}
}

// handlePubrel processes a PUBREL packet (QoS 2, step 2).
func (c *Client) handlePubrel(p *packets.PubrelPacket) {
	select {
	case c.outgoing <- &packets.PubcompPacket{PacketID: p.PacketID}:
	case <-c.stop:
	default:
	}

	delete(c.receivedQoS2, p.PacketID)

	if c.opts.SessionStore != nil {
		if err := c.opts.SessionStore.DeleteReceivedQoS2(p.PacketID); err != nil {
			c.opts.Logger.Warn("failed to delete QoS2 ID", "packet_id", p.PacketID, "error", err)
		}
	}
}

// handlePubcomp processes a PUBCOMP packet (QoS 2, step 3).
func (c *Client) handlePubcomp(p *packets.PubcompPacket) {
	if op, ok := c.pending[p.PacketID]; ok {
		op.token.complete(nil)
		delete(c.pending, p.PacketID)

		if c.opts.SessionStore != nil {
			if err := c.opts.SessionStore.DeletePendingPublish(p.PacketID); err != nil {
				c.opts.Logger.Warn("failed to delete pending publish", "packet_id", p.PacketID, "error", err)
			}
		}

		c.inFlightCount--
		c.metrics.setInFlight(c.inFlightCount)
		c.processPublishQueue()
	}
}

// handleSuback processes a SUBACK packet.
func (c *Client) handleSuback(p *packets.SubackPacket) {
	op, ok := c.pending[p.PacketID]
	if !ok {
		return
	}

	var err error
	for _, code := range p.ReturnCodes {
		if code == packets.SubackFailure {
			err = ErrSubscriptionFailed
			break
		}
	}

	if c.opts.SessionStore != nil && err == nil {
		if subPkt, ok := op.packet.(*packets.SubscribePacket); ok {
			for i, t := range subPkt.Topics {
				if i >= len(p.ReturnCodes) || p.ReturnCodes[i] == packets.SubackFailure {
					continue
				}
				entry, ok := c.subscriptions[t]
				if !ok || !entry.options.Persistence {
					continue
				}
				sub := c.convertToPersistedSubscription(entry)
				if err := c.opts.SessionStore.SaveSubscription(t, sub); err != nil {
					c.opts.Logger.Warn("failed to persist subscription", "topic", t, "error", err)
				}
			}
		}
	}

	op.token.complete(err)
	delete(c.pending, p.PacketID)
}

// handleUnsuback processes an UNSUBACK packet.
func (c *Client) handleUnsuback(p *packets.UnsubackPacket) {
	op, ok := c.pending[p.PacketID]
	if !ok {
		return
	}

	op.token.complete(nil)
	delete(c.pending, p.PacketID)

	if c.opts.SessionStore != nil {
		if unsubPkt, ok := op.packet.(*packets.UnsubscribePacket); ok {
			for _, t := range unsubPkt.Topics {
				if err := c.opts.SessionStore.DeleteSubscription(t); err != nil {
					c.opts.Logger.Warn("failed to delete subscription", "topic", t, "error", err)
				}
			}
		}
	}
}

// retryPending retransmits packets that haven't been acknowledged within
// RequestTimeout. A packet that has already been retried MaxRetries times
// is abandoned: its token completes with ErrTimeout instead of being
// retried forever.
func (c *Client) retryPending() {
	now := time.Now()

	timeout := c.opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	maxRetries := c.opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for id, op := range c.pending {
		if now.Sub(op.timestamp) < timeout {
			continue
		}

		if op.retries >= maxRetries {
			delete(c.pending, id)
			op.token.complete(ErrTimeout)

			if _, ok := op.packet.(*packets.PublishPacket); ok {
				c.inFlightCount--
				c.metrics.setInFlight(c.inFlightCount)

				if c.opts.SessionStore != nil {
					if err := c.opts.SessionStore.DeletePendingPublish(id); err != nil {
						c.opts.Logger.Warn("failed to delete pending publish", "packet_id", id, "error", err)
					}
				}
			}
			continue
		}

		if pub, ok := op.packet.(*packets.PublishPacket); ok {
			pub.Dup = true
		}

		select {
		case c.outgoing <- op.packet:
			op.timestamp = now
			op.retries++
		case <-c.stop:
			return
		default:
			return
		}
	}
}

// nextID generates the next packet ID (1-65535, cycling). Assumes
// sessionLock is held. Returns ErrNoPacketIDs if every id in the space
// is already in flight.
func (c *Client) nextID() (uint16, error) {
	for range 65535 {
		c.nextPacketID++
		if c.nextPacketID == 0 {
			c.nextPacketID = 1
		}
		if _, used := c.pending[c.nextPacketID]; !used {
			return c.nextPacketID, nil
		}
	}
	return 0, ErrNoPacketIDs
}

// handleDisconnectPacket processes a DISCONNECT packet from the server.
// MQTT 3.1.1's DISCONNECT carries no reason code or properties; the server
// uses it only to signal a clean close ahead of dropping the connection.
func (c *Client) handleDisconnectPacket(_ *packets.DisconnectPacket) {
	c.opts.Logger.Warn("received DISCONNECT from server")

	c.connLock.Lock()
	c.lastDisconnectReason = ErrClientDisconnected
	c.connLock.Unlock()
}
