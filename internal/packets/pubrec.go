package packets

// PubrecPacket is step 1 of the QoS 2 publish handshake. The client sends
// it in reply to an inbound QoS 2 PUBLISH; outbound QoS 2 publishes are
// rejected by Client.Publish.
type PubrecPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *PubrecPacket) Type() uint8 { return PUBREC }

// Encode appends the wire encoding of the PUBREC packet to dst.
func (p *PubrecPacket) Encode(dst []byte) ([]byte, error) {
	return appendIDOnlyPacket(dst, PUBREC, 0, p.PacketID), nil
}

// DecodePubrec decodes a PUBREC packet body.
func DecodePubrec(buf []byte) (*PubrecPacket, error) {
	id, err := decodeIDOnlyPacket(buf)
	if err != nil {
		return nil, err
	}
	return &PubrecPacket{PacketID: id}, nil
}
