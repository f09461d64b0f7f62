package packets

import "encoding/binary"

// UnsubscribePacket represents an UNSUBSCRIBE control packet.
type UnsubscribePacket struct {
	PacketID uint16
	Topics   []string
}

// Type returns the packet type.
func (p *UnsubscribePacket) Type() uint8 { return UNSUBSCRIBE }

// Encode appends the wire encoding of the UNSUBSCRIBE packet to dst.
// UNSUBSCRIBE's fixed-header flags are fixed at 0x02.
func (p *UnsubscribePacket) Encode(dst []byte) ([]byte, error) {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, p.PacketID)
	for _, topic := range p.Topics {
		var err error
		body, err = appendString(body, topic)
		if err != nil {
			return dst, err
		}
	}
	header := FixedHeader{PacketType: UNSUBSCRIBE, Flags: 0x02, RemainingLength: len(body)}
	dst = header.appendBytes(dst)
	return append(dst, body...), nil
}

// DecodeUnsubscribe decodes an UNSUBSCRIBE packet body.
func DecodeUnsubscribe(buf []byte) (*UnsubscribePacket, error) {
	if len(buf) < 2 {
		return nil, newErr(ErrMalformedPacket, "buffer too short for unsubscribe packet id")
	}
	pkt := &UnsubscribePacket{PacketID: binary.BigEndian.Uint16(buf[0:2])}
	offset := 2
	for offset < len(buf) {
		topic, n, err := decodeString(buf[offset:])
		if err != nil {
			return nil, err
		}
		offset += n
		pkt.Topics = append(pkt.Topics, topic)
	}
	if len(pkt.Topics) == 0 {
		return nil, newErr(ErrMalformedPacket, "unsubscribe packet carries no topic filters")
	}
	return pkt, nil
}
