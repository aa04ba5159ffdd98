package mqtt

// Handler receives every inbound message regardless of topic. Handlers
// filter by topic themselves; the connector performs a plain broadcast
// so there is a single dispatch path for all subscriptions.
type Handler func(topic string, payload []byte)

// Connector is the transport session owned by the process. One
// implementation exists per broker technology; everything above it
// depends on this interface only.
type Connector interface {
	// Connected reports whether the session is currently established.
	Connected() bool

	// Publish sends a payload to the given topic. It returns the
	// broker-level error, if any; callers layer their own
	// acknowledgment protocol on top where needed.
	Publish(topic string, payload []byte, qos byte) error

	// AddHandler registers a broadcast subscriber. Handlers are invoked
	// in registration order for every inbound message. A panicking
	// handler must not prevent delivery to the remaining handlers.
	AddHandler(h Handler)
}
