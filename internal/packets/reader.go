package packets

// PacketDecoder decodes a packet from its remaining-length body. header is
// the already-decoded fixed header, passed through for decoders that need
// its flags (PUBLISH's DUP/QoS/RETAIN bits, PUBREL's reserved bits).
type PacketDecoder func(remaining []byte, header FixedHeader) (Packet, error)

// packetDecoders maps packet types to their decoder functions.
var packetDecoders = map[uint8]PacketDecoder{
	CONNECT: func(remaining []byte, _ FixedHeader) (Packet, error) { return DecodeConnect(remaining) },
	CONNACK: func(remaining []byte, _ FixedHeader) (Packet, error) { return DecodeConnack(remaining) },
	PUBLISH: func(remaining []byte, header FixedHeader) (Packet, error) { return DecodePublish(remaining, header) },
	PUBACK:  func(remaining []byte, _ FixedHeader) (Packet, error) { return DecodePuback(remaining) },
	PUBREC:  func(remaining []byte, _ FixedHeader) (Packet, error) { return DecodePubrec(remaining) },
	PUBREL: func(remaining []byte, header FixedHeader) (Packet, error) {
		return DecodePubrel(remaining, header.Flags)
	},
	PUBCOMP:     func(remaining []byte, _ FixedHeader) (Packet, error) { return DecodePubcomp(remaining) },
	SUBSCRIBE:   func(remaining []byte, _ FixedHeader) (Packet, error) { return DecodeSubscribe(remaining) },
	SUBACK:      func(remaining []byte, _ FixedHeader) (Packet, error) { return DecodeSuback(remaining) },
	UNSUBSCRIBE: func(remaining []byte, _ FixedHeader) (Packet, error) { return DecodeUnsubscribe(remaining) },
	UNSUBACK:    func(remaining []byte, _ FixedHeader) (Packet, error) { return DecodeUnsuback(remaining) },
	PINGREQ:     func(remaining []byte, _ FixedHeader) (Packet, error) { return DecodePingreq(remaining) },
	PINGRESP:    func(remaining []byte, _ FixedHeader) (Packet, error) { return DecodePingresp(remaining) },
	DISCONNECT:  func(remaining []byte, _ FixedHeader) (Packet, error) { return DecodeDisconnect(remaining) },
}

// TryDecodeFrame attempts to decode one complete packet from the head of
// buf. It never blocks: if buf does not yet hold a full frame it returns
// ok=false, nil so the caller can buffer more bytes from the transport and
// retry. consumed reports how many bytes of buf the decoded frame occupied,
// so the caller can advance its accumulation buffer.
//
// maxPacketSize caps RemainingLength; 0 (or any value above
// MaxRemainingLength) falls back to the protocol maximum.
func TryDecodeFrame(buf []byte, maxPacketSize int) (pkt Packet, consumed int, ok bool, err error) {
	header, headerLen, ok, err := TryDecodeFixedHeader(buf)
	if err != nil || !ok {
		return nil, 0, false, err
	}

	if maxPacketSize <= 0 || maxPacketSize > MaxRemainingLength {
		maxPacketSize = MaxRemainingLength
	}
	if header.RemainingLength > maxPacketSize {
		return nil, 0, false, newErr(ErrBufferTooBig, "packet body of %d bytes exceeds maximum %d", header.RemainingLength, maxPacketSize)
	}

	total := headerLen + header.RemainingLength
	if len(buf) < total {
		return nil, 0, false, nil
	}

	decoder, known := packetDecoders[header.PacketType]
	if !known {
		return nil, 0, false, newErr(ErrInvalidPacketType, "unknown packet type %d", header.PacketType)
	}

	pkt, err = decoder(buf[headerLen:total], header)
	if err != nil {
		return nil, 0, false, err
	}
	return pkt, total, true, nil
}
