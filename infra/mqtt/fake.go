package mqtt

import (
	"fmt"
	"sync"

	coremqtt "github.com/medbox-iot/medbox/core/mqtt"
)

// Connector mirrors the core mqtt.Connector interface.
type Connector = coremqtt.Connector

// FakeConnector is an in-memory connector used in tests. Published
// messages are recorded and inbound messages are injected with Deliver.
type FakeConnector struct {
	mu        sync.Mutex
	online    bool
	handlers  []coremqtt.Handler
	published []PublishedMessage
	// FailTopics causes Publish to fail for the listed topics.
	FailTopics map[string]bool
}

// PublishedMessage is one recorded Publish call.
type PublishedMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
}

// NewFakeConnector creates a connected FakeConnector.
func NewFakeConnector() *FakeConnector {
	return &FakeConnector{online: true, FailTopics: make(map[string]bool)}
}

// SetConnected toggles the reported session state.
func (f *FakeConnector) SetConnected(online bool) {
	f.mu.Lock()
	f.online = online
	f.mu.Unlock()
}

// Connected reports the simulated session state.
func (f *FakeConnector) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

// Publish records the message or fails if the topic is marked failing.
func (f *FakeConnector) Publish(topic string, payload []byte, qos byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailTopics[topic] {
		return fmt.Errorf("publish to %s failed", topic)
	}
	f.published = append(f.published, PublishedMessage{Topic: topic, Payload: payload, QoS: qos})
	return nil
}

// AddHandler registers a broadcast handler.
func (f *FakeConnector) AddHandler(h coremqtt.Handler) {
	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.mu.Unlock()
}

// Deliver fans an inbound message out to all registered handlers, in
// registration order, the way the real connector does.
func (f *FakeConnector) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	handlers := make([]coremqtt.Handler, len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.Unlock()
	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h(topic, payload)
		}()
	}
}

// Published returns a copy of the recorded Publish calls.
func (f *FakeConnector) Published() []PublishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PublishedMessage, len(f.published))
	copy(out, f.published)
	return out
}
