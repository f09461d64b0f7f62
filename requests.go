package mq

import (
	"fmt"
	"time"
)

// internalPublish processes a publish request synchronously with locking.
func (c *Client) internalPublish(req *publishRequest) {
	pkt := req.packet

	c.sessionLock.Lock()

	if pkt.QoS == 0 {
		c.sessionLock.Unlock()
		select {
		case c.outgoing <- pkt:
			req.token.complete(nil)
		case <-c.stop:
			req.token.complete(fmt.Errorf("client stopped"))
		}
		return
	}

	// Flow control for QoS > 0: cap outstanding unacknowledged publishes at
	// MaxInFlight, queueing the rest until an ack frees a slot.
	maxInFlight := c.opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 65535
	}
	if c.inFlightCount >= maxInFlight {
		c.publishQueue = append(c.publishQueue, req)
		c.sessionLock.Unlock()
		return
	}

	id, err := c.nextID()
	if err != nil {
		c.sessionLock.Unlock()
		req.token.complete(err)
		return
	}
	pkt.PacketID = id
	req.token.setPacketID(id)

	c.pending[pkt.PacketID] = &pendingOp{
		packet:    pkt,
		token:     req.token,
		qos:       pkt.QoS,
		timestamp: time.Now(),
	}

	c.inFlightCount++
	c.metrics.setInFlight(c.inFlightCount)

	if c.opts.SessionStore != nil {
		pub := c.convertToPersistedPublish(req)
		if err := c.opts.SessionStore.SavePendingPublish(pkt.PacketID, pub); err != nil {
			c.opts.Logger.Warn("failed to persist publish", "packet_id", pkt.PacketID, "error", err)
		}
	}

	c.sessionLock.Unlock()
	select {
	case c.outgoing <- pkt:
	case <-c.stop:
		req.token.complete(fmt.Errorf("client stopped"))
	}
}

// sendPublishLocked sends a queued publish request. Assumes sessionLock is HELD.
// Returns false only if the client is stopping. If the outgoing channel is
// full, or no packet id is free, the request's token fails and true is
// returned so the caller drops it from the queue.
func (c *Client) sendPublishLocked(req *publishRequest) bool {
	pkt := req.packet

	id, err := c.nextID()
	if err != nil {
		req.token.complete(err)
		return true
	}
	pkt.PacketID = id
	req.token.setPacketID(id)

	c.pending[pkt.PacketID] = &pendingOp{
		packet:    pkt,
		token:     req.token,
		qos:       pkt.QoS,
		timestamp: time.Now(),
	}

	select {
	case c.outgoing <- pkt:
		c.inFlightCount++
		c.metrics.setInFlight(c.inFlightCount)

		if c.opts.SessionStore != nil {
			pub := c.convertToPersistedPublish(req)
			if err := c.opts.SessionStore.SavePendingPublish(pkt.PacketID, pub); err != nil {
				c.opts.Logger.Warn("failed to persist publish", "packet_id", pkt.PacketID, "error", err)
			}
		}
		return true

	case <-c.stop:
		return false

	default:
		delete(c.pending, pkt.PacketID)
		req.token.complete(fmt.Errorf("outgoing queue full, publish dropped"))
		return true
	}
}

// internalSubscribe processes a subscribe request synchronously with locking.
func (c *Client) internalSubscribe(req *subscribeRequest) {
	pkt := req.packet

	c.sessionLock.Lock()

	id, err := c.nextID()
	if err != nil {
		c.sessionLock.Unlock()
		req.token.complete(err)
		return
	}
	pkt.PacketID = id
	req.token.setPacketID(id)

	c.pending[pkt.PacketID] = &pendingOp{
		packet:    pkt,
		token:     req.token,
		timestamp: time.Now(),
	}

	// Register before receiving SUBACK to avoid racing with the server,
	// which might publish matching messages right away.
	for i, t := range pkt.Topics {
		qos := uint8(0)
		if i < len(pkt.QoS) {
			qos = pkt.QoS[i]
		}

		entry := subscriptionEntry{
			handler: req.handler,
			options: SubscribeOptions{Persistence: req.persistence},
			qos:     qos,
		}
		c.registerSubscription(t, entry)
	}

	c.sessionLock.Unlock()
	select {
	case c.outgoing <- pkt:
	case <-c.stop:
		req.token.complete(fmt.Errorf("client stopped"))
	}
}

// internalUnsubscribe processes an unsubscribe request synchronously with locking.
func (c *Client) internalUnsubscribe(req *unsubscribeRequest) {
	pkt := req.packet

	c.sessionLock.Lock()

	id, err := c.nextID()
	if err != nil {
		c.sessionLock.Unlock()
		req.token.complete(err)
		return
	}
	pkt.PacketID = id
	req.token.setPacketID(id)

	c.pending[pkt.PacketID] = &pendingOp{
		packet:    pkt,
		token:     req.token,
		timestamp: time.Now(),
	}

	for _, t := range req.topics {
		c.unregisterSubscription(t)
	}

	c.sessionLock.Unlock()
	select {
	case c.outgoing <- pkt:
	case <-c.stop:
		req.token.complete(fmt.Errorf("client stopped"))
	}
}
