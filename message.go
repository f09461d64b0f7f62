package mq

// Message represents an MQTT message received on a subscribed topic. It is
// handed to a subscription's callback by the publish-dispatch path in the
// topic tree.
type Message struct {
	// Topic the message was published to.
	Topic string

	// Payload is the message body.
	Payload []byte

	// QoS is the quality of service the PUBLISH arrived with.
	QoS QoS

	// Retained reports whether the broker flagged this as a retained message.
	Retained bool

	// Duplicate reports whether the broker set the DUP flag.
	Duplicate bool
}
