package packets

import "encoding/binary"

// Packet is the interface every MQTT control packet implements.
type Packet interface {
	// Type returns the MQTT control packet type.
	Type() uint8

	// Encode appends the packet's wire encoding (fixed header included) to dst
	// and returns the extended slice.
	Encode(dst []byte) ([]byte, error)
}

// appendIDOnlyPacket appends a fixed-header + 2-byte packet-id body, the
// shared shape of PUBACK, PUBREC, PUBREL and PUBCOMP.
func appendIDOnlyPacket(dst []byte, packetType uint8, flags uint8, packetID uint16) []byte {
	header := FixedHeader{PacketType: packetType, Flags: flags, RemainingLength: 2}
	dst = header.appendBytes(dst)
	return binary.BigEndian.AppendUint16(dst, packetID)
}

// decodeIDOnlyPacket decodes the 2-byte packet-id body shared by PUBACK,
// PUBREC, PUBREL and PUBCOMP.
func decodeIDOnlyPacket(buf []byte) (uint16, error) {
	if len(buf) < 2 {
		return 0, newErr(ErrMalformedPacket, "buffer too short for packet id")
	}
	return binary.BigEndian.Uint16(buf[0:2]), nil
}
