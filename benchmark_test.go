package mq

import (
	"testing"

	"github.com/nprobe/mqttcore/internal/packets"
)

// BenchmarkDecoding_Publish_Small measures the cost of reading/decoding packets.
func BenchmarkDecoding_Publish_Small(b *testing.B) {
	pkt := &packets.PublishPacket{
		Topic:    "sensors/temperature",
		Payload:  []byte("25.5"),
		QoS:      1,
		PacketID: 10,
	}
	encoded := encodeToBytes(pkt)

	for range b.N {
		_, _, _, err := packets.TryDecodeFrame(encoded, 0)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecoding_Publish_Large(b *testing.B) {
	payload := make([]byte, 2048) // 2KB
	pkt := &packets.PublishPacket{
		Topic:    "data/large",
		Payload:  payload,
		QoS:      1,
		PacketID: 10,
	}
	encoded := encodeToBytes(pkt)

	for range b.N {
		_, _, _, err := packets.TryDecodeFrame(encoded, 0)
		if err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkClient_Publish_Throughput measures end-to-end processing (mocked network).
func BenchmarkClient_Publish_Throughput(b *testing.B) {
	c := &Client{
		opts:         defaultOptions("tcp://test:1883"),
		outgoing:     make(chan packets.Packet, 1000), // Larger buffer for bench
		stop:         make(chan struct{}),
		nextPacketID: 1,
		pending:      make(map[uint16]*pendingOp),
	}

	go func() {
		for {
			select {
			case <-c.outgoing:
			case <-c.stop:
				return
			}
		}
	}()

	c.wg.Add(1)
	go c.logicLoop()

	payload := []byte("payload")

	for range b.N {
		c.Publish("bench/topic", payload, WithQoS(AtMostOnce))
	}

	close(c.stop)
	c.wg.Wait()
}

func encodeToBytes(pkt packets.Packet) []byte {
	b, err := pkt.Encode(nil)
	if err != nil {
		panic(err)
	}
	return b
}
