package packets

import "testing"

func TestConnectPacketV3RoundTrip(t *testing.T) {
	pkt := &ConnectPacket{
		CleanSession: true,
		KeepAlive:    60,
		ClientID:     "test-client",
	}

	encoded, err := pkt.Encode(nil)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	header, consumed, ok, err := TryDecodeFixedHeader(encoded)
	if err != nil || !ok {
		t.Fatalf("TryDecodeFixedHeader() = %v, %v, %v", header, ok, err)
	}

	decoded, err := DecodeConnect(encoded[consumed : consumed+header.RemainingLength])
	if err != nil {
		t.Fatalf("DecodeConnect() error: %v", err)
	}

	if decoded.ClientID != "test-client" {
		t.Errorf("client ID = %s, want test-client", decoded.ClientID)
	}
	if decoded.KeepAlive != 60 {
		t.Errorf("keep alive = %d, want 60", decoded.KeepAlive)
	}
	if !decoded.CleanSession {
		t.Error("clean session should be true")
	}
}

func TestConnectWithWillAndCredentials(t *testing.T) {
	pkt := &ConnectPacket{
		CleanSession: true,
		WillFlag:     true,
		WillQoS:      QoS1,
		WillTopic:    "clients/gone",
		WillMessage:  []byte("offline"),
		UsernameFlag: true,
		Username:     "alice",
		PasswordFlag: true,
		Password:     "hunter2",
		KeepAlive:    30,
		ClientID:     "will-client",
	}

	encoded, err := pkt.Encode(nil)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	header, consumed, ok, err := TryDecodeFixedHeader(encoded)
	if err != nil || !ok {
		t.Fatalf("TryDecodeFixedHeader() = %v, %v, %v", header, ok, err)
	}

	decoded, err := DecodeConnect(encoded[consumed : consumed+header.RemainingLength])
	if err != nil {
		t.Fatalf("DecodeConnect() error: %v", err)
	}

	if decoded.WillTopic != pkt.WillTopic || string(decoded.WillMessage) != string(pkt.WillMessage) {
		t.Errorf("will mismatch: got topic=%s message=%s", decoded.WillTopic, decoded.WillMessage)
	}
	if decoded.Username != "alice" || decoded.Password != "hunter2" {
		t.Errorf("credentials mismatch: %+v", decoded)
	}
}
