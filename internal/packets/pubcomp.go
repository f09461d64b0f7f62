package packets

// PubcompPacket is step 3 of the QoS 2 publish handshake.
type PubcompPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *PubcompPacket) Type() uint8 { return PUBCOMP }

// Encode appends the wire encoding of the PUBCOMP packet to dst.
func (p *PubcompPacket) Encode(dst []byte) ([]byte, error) {
	return appendIDOnlyPacket(dst, PUBCOMP, 0, p.PacketID), nil
}

// DecodePubcomp decodes a PUBCOMP packet body.
func DecodePubcomp(buf []byte) (*PubcompPacket, error) {
	id, err := decodeIDOnlyPacket(buf)
	if err != nil {
		return nil, err
	}
	return &PubcompPacket{PacketID: id}, nil
}
