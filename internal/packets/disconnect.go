package packets

// DisconnectPacket tells the broker the client is closing the connection
// cleanly, suppressing any will message.
type DisconnectPacket struct{}

// Type returns the packet type.
func (p *DisconnectPacket) Type() uint8 { return DISCONNECT }

// Encode appends the wire encoding of the DISCONNECT packet to dst.
func (p *DisconnectPacket) Encode(dst []byte) ([]byte, error) {
	header := FixedHeader{PacketType: DISCONNECT, Flags: 0, RemainingLength: 0}
	return header.appendBytes(dst), nil
}

// DecodeDisconnect decodes a DISCONNECT packet (no payload in 3.1.1).
func DecodeDisconnect(buf []byte) (*DisconnectPacket, error) {
	return &DisconnectPacket{}, nil
}
