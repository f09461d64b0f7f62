package packets

import "encoding/binary"

// PublishPacket is an MQTT 3.1.1 PUBLISH control packet.
type PublishPacket struct {
	Dup    bool
	QoS    uint8
	Retain bool

	Topic    string
	PacketID uint16 // only meaningful when QoS > 0

	Payload []byte
}

// Type returns the packet type.
func (p *PublishPacket) Type() uint8 { return PUBLISH }

// Encode appends the wire encoding of the PUBLISH packet to dst.
func (p *PublishPacket) Encode(dst []byte) ([]byte, error) {
	if p.QoS == 3 {
		return dst, newErr(ErrInvalidQoS, "qos 3")
	}

	var flags uint8
	if p.Dup {
		flags |= 0x08
	}
	flags |= (p.QoS & 0x03) << 1
	if p.Retain {
		flags |= 0x01
	}

	variableHeaderLen := 2 + len(p.Topic)
	if p.QoS > 0 {
		variableHeaderLen += 2
	}
	remainingLength := variableHeaderLen + len(p.Payload)
	if remainingLength > MaxRemainingLength {
		return dst, newErr(ErrBufferTooBig, "publish remaining length %d exceeds limit", remainingLength)
	}

	header := FixedHeader{PacketType: PUBLISH, Flags: flags, RemainingLength: remainingLength}
	dst = header.appendBytes(dst)

	var err error
	if dst, err = appendString(dst, p.Topic); err != nil {
		return dst, err
	}
	if p.QoS > 0 {
		dst = binary.BigEndian.AppendUint16(dst, p.PacketID)
	}
	return append(dst, p.Payload...), nil
}

// DecodePublish decodes a PUBLISH packet body given the parsed fixed header.
func DecodePublish(buf []byte, header FixedHeader) (*PublishPacket, error) {
	pkt := &PublishPacket{
		Dup:    header.Flags&0x08 != 0,
		QoS:    (header.Flags >> 1) & 0x03,
		Retain: header.Flags&0x01 != 0,
	}
	if pkt.QoS == 3 {
		return nil, newErr(ErrInvalidQoS, "qos 3")
	}
	if pkt.QoS == 0 && pkt.Dup {
		return nil, newErr(ErrInvalidReservedBits, "dup set on qos 0 publish")
	}

	topic, n, err := decodeString(buf)
	if err != nil {
		return nil, err
	}
	pkt.Topic = topic
	offset := n

	if pkt.QoS > 0 {
		if offset+2 > len(buf) {
			return nil, newErr(ErrMalformedPacket, "buffer too short for packet id")
		}
		pkt.PacketID = binary.BigEndian.Uint16(buf[offset : offset+2])
		offset += 2
	}

	pkt.Payload = append([]byte(nil), buf[offset:]...)
	return pkt, nil
}
