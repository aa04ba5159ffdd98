package telemetry

import (
	"strings"
	"time"

	"github.com/medbox-iot/medbox/core/events"
	"github.com/medbox-iot/medbox/core/livestate"
	"github.com/medbox-iot/medbox/core/logger"
	"github.com/medbox-iot/medbox/core/model"
	coremqtt "github.com/medbox-iot/medbox/core/mqtt"
	"github.com/medbox-iot/medbox/internal/eventbus"
)

// onlineToken is the literal payload a box publishes when it comes up;
// anything else on the status topic means offline.
const onlineToken = "online"

// StatusMonitor ingests online/offline reports from {prefix}/{boxId}/status.
type StatusMonitor struct {
	store  livestate.Store
	prefix string
	bus    eventbus.EventBus
	log    logger.Logger
	clock  func() time.Time
}

// NewStatusMonitor creates a StatusMonitor. The bus may be nil.
func NewStatusMonitor(store livestate.Store, prefix string, bus eventbus.EventBus, log logger.Logger) *StatusMonitor {
	return &StatusMonitor{store: store, prefix: prefix, bus: bus, log: log, clock: time.Now}
}

// Handle is registered on the connector's broadcast registry.
func (m *StatusMonitor) Handle(topic string, payload []byte) {
	tp, err := coremqtt.ParseTopic(topic)
	if err != nil || tp.Prefix != m.prefix || tp.Kind != coremqtt.KindStatus {
		return
	}

	online := strings.TrimSpace(string(payload)) == onlineToken
	now := m.clock()
	if err := m.store.SetStatus(tp.BoxID, model.BoxStatus{Online: online, LastChanged: now}); err != nil {
		m.log.Errorf("status write for box %s failed: %v", tp.BoxID, err)
		return
	}
	m.log.Infof("box %s is now %s", tp.BoxID, strings.TrimSpace(string(payload)))
	if m.bus != nil {
		m.bus.Publish(events.StatusEvent{BoxID: tp.BoxID, Online: online, Time: now})
	}
}
