package packets

import "encoding/binary"

// SubscribePacket represents a SUBSCRIBE control packet.
type SubscribePacket struct {
	PacketID uint16
	Topics   []string
	QoS      []uint8 // QoS level requested for each topic
}

// Type returns the packet type.
func (p *SubscribePacket) Type() uint8 { return SUBSCRIBE }

// Encode appends the wire encoding of the SUBSCRIBE packet to dst.
// SUBSCRIBE's fixed-header flags are fixed at 0x02.
func (p *SubscribePacket) Encode(dst []byte) ([]byte, error) {
	if len(p.Topics) != len(p.QoS) {
		return dst, newErr(ErrMalformedPacket, "subscribe: %d topics but %d qos entries", len(p.Topics), len(p.QoS))
	}
	var body []byte
	body = binary.BigEndian.AppendUint16(body, p.PacketID)
	for i, topic := range p.Topics {
		var err error
		body, err = appendString(body, topic)
		if err != nil {
			return dst, err
		}
		qos := p.QoS[i]
		if qos > QoS2 {
			return dst, newErr(ErrInvalidQoS, "subscribe topic %q requests qos %d", topic, qos)
		}
		body = append(body, qos)
	}
	header := FixedHeader{PacketType: SUBSCRIBE, Flags: 0x02, RemainingLength: len(body)}
	dst = header.appendBytes(dst)
	return append(dst, body...), nil
}

// DecodeSubscribe decodes a SUBSCRIBE packet body.
func DecodeSubscribe(buf []byte) (*SubscribePacket, error) {
	if len(buf) < 2 {
		return nil, newErr(ErrMalformedPacket, "buffer too short for subscribe packet id")
	}
	pkt := &SubscribePacket{PacketID: binary.BigEndian.Uint16(buf[0:2])}
	offset := 2
	for offset < len(buf) {
		topic, n, err := decodeString(buf[offset:])
		if err != nil {
			return nil, err
		}
		offset += n
		if offset >= len(buf) {
			return nil, newErr(ErrMalformedPacket, "buffer too short for subscribe qos byte")
		}
		qos := buf[offset]
		offset++
		if qos > QoS2 {
			return nil, newErr(ErrInvalidQoS, "subscribe topic %q requests qos %d", topic, qos)
		}
		pkt.Topics = append(pkt.Topics, topic)
		pkt.QoS = append(pkt.QoS, qos)
	}
	if len(pkt.Topics) == 0 {
		return nil, newErr(ErrMalformedPacket, "subscribe packet carries no topic filters")
	}
	return pkt, nil
}
