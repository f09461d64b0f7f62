package packets

// PubackPacket acknowledges a QoS 1 PUBLISH.
type PubackPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *PubackPacket) Type() uint8 { return PUBACK }

// Encode appends the wire encoding of the PUBACK packet to dst.
func (p *PubackPacket) Encode(dst []byte) ([]byte, error) {
	return appendIDOnlyPacket(dst, PUBACK, 0, p.PacketID), nil
}

// DecodePuback decodes a PUBACK packet body.
func DecodePuback(buf []byte) (*PubackPacket, error) {
	id, err := decodeIDOnlyPacket(buf)
	if err != nil {
		return nil, err
	}
	return &PubackPacket{PacketID: id}, nil
}
