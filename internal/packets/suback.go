package packets

import "encoding/binary"

// SubackPacket acknowledges a SUBSCRIBE, one return code per requested topic.
type SubackPacket struct {
	PacketID    uint16
	ReturnCodes []uint8
}

// Type returns the packet type.
func (p *SubackPacket) Type() uint8 { return SUBACK }

// Encode appends the wire encoding of the SUBACK packet to dst.
func (p *SubackPacket) Encode(dst []byte) ([]byte, error) {
	header := FixedHeader{PacketType: SUBACK, Flags: 0, RemainingLength: 2 + len(p.ReturnCodes)}
	dst = header.appendBytes(dst)
	dst = binary.BigEndian.AppendUint16(dst, p.PacketID)
	return append(dst, p.ReturnCodes...), nil
}

// DecodeSuback decodes a SUBACK packet body.
func DecodeSuback(buf []byte) (*SubackPacket, error) {
	if len(buf) < 2 {
		return nil, newErr(ErrMalformedPacket, "buffer too short for suback packet id")
	}
	pkt := &SubackPacket{PacketID: binary.BigEndian.Uint16(buf[0:2])}
	if len(buf) > 2 {
		pkt.ReturnCodes = make([]uint8, len(buf)-2)
		copy(pkt.ReturnCodes, buf[2:])
	}
	if len(pkt.ReturnCodes) == 0 {
		return nil, newErr(ErrMalformedPacket, "suback packet carries no return codes")
	}
	return pkt, nil
}
