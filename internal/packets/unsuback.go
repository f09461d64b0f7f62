package packets

// UnsubackPacket acknowledges an UNSUBSCRIBE. 3.1.1 carries no payload.
type UnsubackPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *UnsubackPacket) Type() uint8 { return UNSUBACK }

// Encode appends the wire encoding of the UNSUBACK packet to dst.
func (p *UnsubackPacket) Encode(dst []byte) ([]byte, error) {
	return appendIDOnlyPacket(dst, UNSUBACK, 0, p.PacketID), nil
}

// DecodeUnsuback decodes an UNSUBACK packet body.
func DecodeUnsuback(buf []byte) (*UnsubackPacket, error) {
	id, err := decodeIDOnlyPacket(buf)
	if err != nil {
		return nil, err
	}
	return &UnsubackPacket{PacketID: id}, nil
}
