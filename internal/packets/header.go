package packets

// FixedHeader is the fixed header present in every MQTT control packet:
// [PacketType + Flags (1 byte)][Remaining Length (1-4 byte varint)].
type FixedHeader struct {
	PacketType      uint8
	Flags           uint8
	RemainingLength int
}

// appendBytes appends the wire encoding of the fixed header to dst.
func (h *FixedHeader) appendBytes(dst []byte) []byte {
	dst = append(dst, (h.PacketType<<4)|(h.Flags&0x0F))
	return appendVarInt(dst, h.RemainingLength)
}

// TryDecodeFixedHeader decodes a fixed header from the head of buf without
// blocking on more input. ok=false means buf does not yet contain a
// complete fixed header; the caller should buffer more bytes and retry.
func TryDecodeFixedHeader(buf []byte) (h FixedHeader, consumed int, ok bool, err error) {
	if len(buf) < 1 {
		return FixedHeader{}, 0, false, nil
	}
	firstByte := buf[0]
	remainingLength, n, ok, err := tryDecodeVarInt(buf[1:])
	if err != nil {
		return FixedHeader{}, 0, false, err
	}
	if !ok {
		return FixedHeader{}, 0, false, nil
	}
	return FixedHeader{
		PacketType:      firstByte >> 4,
		Flags:           firstByte & 0x0F,
		RemainingLength: remainingLength,
	}, 1 + n, true, nil
}
