// Package mq provides a lightweight, idiomatic MQTT v3.1.1 client library for Go.
//
// It exposes a clean, functional-options-based API for connecting to MQTT
// brokers, publishing messages, and subscribing to topics, with automatic
// reconnection, pluggable session persistence, and optional Prometheus
// instrumentation.
//
// # Features
//
//   - Full MQTT v3.1.1 support (QoS 0 and QoS 1 end-to-end; inbound QoS 2
//     is acknowledged with PUBREC/PUBCOMP, outbound QoS 2 publishes are
//     rejected — see DESIGN.md)
//   - TLS/SSL encrypted connections, or a pluggable ContextDialer for
//     alternative transports (see the wsdialer package)
//   - Automatic reconnection with exponential backoff
//   - A transactional topic-filter trie for wildcard subscription matching
//   - Pluggable SessionStore for pending publishes, subscriptions, and QoS 2
//     dedup state across process restarts (see the boltstore package)
//   - Clean, idiomatic Go API with functional options
//   - Context-based cancellation and timeouts
//
// # Quick Start
//
// Connect to a server and publish a message:
//
//	client, err := mq.Dial("tcp://localhost:1883",
//	    mq.WithClientID("my-client"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect(context.Background())
//
//	token := client.Publish("sensors/temperature", []byte("22.5"), mq.WithQoS(1))
//	err = token.Wait(context.Background())  // 'select' also supported, see further down
//
// Subscribe to a topic:
//
//	client.Subscribe("sensors/+/temperature", mq.AtLeastOnce,
//	    func(c *mq.Client, msg mq.Message) {
//	        fmt.Printf("%s: %s\n", msg.Topic, string(msg.Payload))
//	    })
//
// # Connection Options
//
// The Dial and DialContext functions accept various options to configure the client:
//
//   - WithClientID(id) - Set the MQTT client identifier
//   - WithCredentials(user, pass) - Set username and password
//   - WithKeepAlive(duration) - Set keepalive interval (default: 60s)
//   - WithCleanSession(bool) - Set the clean session flag
//   - WithAutoReconnect(bool) - Enable auto-reconnect (default: true)
//   - WithTLS(config) - Enable TLS encryption
//   - WithDialer(dialer) - Use a custom ContextDialer for the transport
//   - WithWill(topic, payload, qos, retained) - Set Last Will and Testament
//   - WithMaxInFlight(n) - Cap outstanding unacknowledged QoS 1 publishes
//   - WithSessionStore(store) - Persist session state across restarts
//   - WithMetrics(registerer) - Register Prometheus collectors
//
// # TLS Connections
//
// The library supports TLS/SSL encrypted connections:
//
//	client, err := mq.Dial("tls://server:8883",
//	    mq.WithClientID("secure-client"),
//	    mq.WithTLS(&tls.Config{
//	        InsecureSkipVerify: false,
//	    }))
//
// Supported URL schemes: tcp://, mqtt://, tls://, ssl://, mqtts://
//
// # Quality of Service
//
//   - QoS 0 (mq.AtMostOnce): At most once delivery (fire and forget)
//   - QoS 1 (mq.AtLeastOnce): At least once delivery (acknowledged, retried)
//   - QoS 2 (mq.ExactlyOnce): accepted by the codec but rejected by Publish
//     with ErrQoS2Unsupported; see DESIGN.md
//
// Example:
//
//	client.Publish("topic", []byte("data"), mq.WithQoS(mq.AtLeastOnce))
//
// # Wildcard Subscriptions
//
// MQTT supports two wildcard characters in topic filters:
//
//   - '+' matches a single level (e.g., "sensors/+/temperature")
//   - '#' matches multiple trailing levels (e.g., "sensors/#")
//
// Example:
//
//	// Subscribe to all temperature sensors
//	client.Subscribe("sensors/+/temperature", mq.AtLeastOnce, handler)
//
//	// Subscribe to all sensor data
//	client.Subscribe("sensors/#", mq.AtMostOnce, handler)
//
// # Client-side Session Persistence
//
// The library supports pluggable session persistence to save pending
// publishes (QoS 1) and subscriptions across restarts.
//
//	store, _ := mq.NewFileStore("/path/to/persist", "client-id")
//	client, _ := mq.Dial(server,
//	    mq.WithClientID("client-id"),
//	    mq.WithCleanSession(false),
//	    mq.WithSessionStore(store),
//	    // persistent subscription
//	    mq.WithSubscription("topic", handler),
//	)
//
// Session resumption is flagged, not guessed: when a CONNACK reports
// session_present=0, the client does not resubscribe on its own. Set
// WithOnConnectionResumed to decide what to do.
//
// # Error Handling
//
// Operations return a Token that can be used for both blocking and
// non-blocking error handling.
//
//	// Blocking with timeout
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	if err := token.Wait(ctx); err != nil {
//	    if errors.Is(err, mq.ErrTimeout) {
//	        log.Printf("no ack after all retries: %v", err)
//	    }
//	}
//
//	// Non-blocking with select
//	select {
//	case <-token.Done():
//	    if err := token.Error(); err != nil {
//	        log.Printf("Failed: %v", err)
//	    }
//	case <-time.After(5 * time.Second):
//	    log.Println("Timeout")
//	}
//
// The client handles reconnection automatically unless configured otherwise.
package mq
