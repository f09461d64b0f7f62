package packets

// PingreqPacket keeps the connection alive between client and broker.
type PingreqPacket struct{}

// Type returns the packet type.
func (p *PingreqPacket) Type() uint8 { return PINGREQ }

// Encode appends the wire encoding of the PINGREQ packet to dst.
func (p *PingreqPacket) Encode(dst []byte) ([]byte, error) {
	header := FixedHeader{PacketType: PINGREQ, Flags: 0, RemainingLength: 0}
	return header.appendBytes(dst), nil
}

// DecodePingreq decodes a PINGREQ packet (no payload).
func DecodePingreq(buf []byte) (*PingreqPacket, error) {
	return &PingreqPacket{}, nil
}
