// Package dispense issues hardware commands to dispensing boxes and
// resolves their outcome deterministically: at most one command is in
// flight per box, and each command ends in exactly one of acknowledged,
// timed out or failed to publish.
package dispense

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medbox-iot/medbox/core/logger"
	"github.com/medbox-iot/medbox/core/model"
	coremqtt "github.com/medbox-iot/medbox/core/mqtt"
)

// DefaultAckTimeout bounds the wait for a device acknowledgment.
const DefaultAckTimeout = 30 * time.Second

// Command is the wire payload published to {prefix}/{boxId}/dispense.
type Command struct {
	CommandID string           `json:"command_id"`
	BoxID     string           `json:"box_id"`
	Amounts   []model.PlanItem `json:"amounts"`
	Timestamp int64            `json:"timestamp"`
}

// Ack is the structured acknowledgment payload published by the device
// on {prefix}/{boxId}/dispensed. Legacy firmware publishes a bare text
// token instead; see parseAck.
type Ack struct {
	CommandID string `json:"command_id"`
	Success   bool   `json:"success"`
}

// Result is the resolved outcome of one dispense command.
type Result struct {
	CommandID string
	Success   bool
	Latency   time.Duration
}

// pending correlates one outstanding command to its acknowledgment.
// settle resolves it exactly once: the first of ack, timeout or publish
// failure wins, later triggers are no-ops.
type pending struct {
	commandID string
	done      chan bool
	once      sync.Once
}

func (p *pending) settle(success bool) {
	p.once.Do(func() { p.done <- success })
}

// Coordinator enforces single-flight command issuance per box. The
// in-flight table is keyed by boxId so independent boxes can have
// concurrent outstanding commands.
type Coordinator struct {
	conn       coremqtt.Connector
	prefix     string
	ackTimeout time.Duration
	log        logger.Logger
	clock      func() time.Time

	mu       sync.Mutex
	inflight map[string]*pending
}

// NewCoordinator creates a Coordinator and registers its acknowledgment
// handler on the connector. A non-positive ackTimeout selects the
// default of thirty seconds.
func NewCoordinator(conn coremqtt.Connector, prefix string, ackTimeout time.Duration, log logger.Logger) (*Coordinator, error) {
	if conn == nil || log == nil {
		return nil, fmt.Errorf("dispense: nil parameter provided to NewCoordinator")
	}
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	c := &Coordinator{
		conn:       conn,
		prefix:     prefix,
		ackTimeout: ackTimeout,
		log:        log,
		clock:      time.Now,
		inflight:   make(map[string]*pending),
	}
	conn.AddHandler(c.handleAck)
	return c, nil
}

// Send publishes a dispense command for boxID and blocks until the
// device acknowledges, the timeout elapses or the publish fails.
// It returns ErrNotConnected or ErrBusy without publishing anything.
func (c *Coordinator) Send(ctx context.Context, boxID string, items []model.PlanItem) (Result, error) {
	if !c.conn.Connected() {
		return Result{}, coremqtt.ErrNotConnected
	}

	p := &pending{commandID: uuid.NewString(), done: make(chan bool, 1)}
	c.mu.Lock()
	if _, busy := c.inflight[boxID]; busy {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("box %s: %w", boxID, ErrBusy)
	}
	c.inflight[boxID] = p
	c.mu.Unlock()
	// The correlation record is removed exactly once per request no
	// matter which trigger resolved it; removing a record that was
	// already replaced or removed is a no-op.
	defer c.clear(boxID, p)

	start := c.clock()
	payload, err := json.Marshal(Command{
		CommandID: p.commandID,
		BoxID:     boxID,
		Amounts:   items,
		Timestamp: start.UnixMilli(),
	})
	if err != nil {
		return Result{CommandID: p.commandID}, err
	}

	topic := coremqtt.DispenseTopic(c.prefix, boxID)
	if err := c.conn.Publish(topic, payload, 1); err != nil {
		p.settle(false)
		return Result{CommandID: p.commandID, Latency: c.clock().Sub(start)}, fmt.Errorf("publish dispense command: %w", err)
	}
	c.log.Infof("sent dispense command %s to %s", p.commandID, topic)

	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()
	select {
	case success := <-p.done:
		return Result{CommandID: p.commandID, Success: success, Latency: c.clock().Sub(start)}, nil
	case <-timer.C:
		// Retire the correlation first so a late ack is a no-op.
		p.settle(false)
		return Result{CommandID: p.commandID, Latency: c.clock().Sub(start)}, fmt.Errorf("box %s: %w", boxID, ErrAckTimeout)
	case <-ctx.Done():
		p.settle(false)
		return Result{CommandID: p.commandID, Latency: c.clock().Sub(start)}, ctx.Err()
	}
}

// InFlight reports whether boxID currently has an outstanding command.
func (c *Coordinator) InFlight(boxID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[boxID]
	return ok
}

func (c *Coordinator) clear(boxID string, p *pending) {
	c.mu.Lock()
	if cur, ok := c.inflight[boxID]; ok && cur == p {
		delete(c.inflight, boxID)
	}
	c.mu.Unlock()
}

// handleAck receives every inbound transport message and self-filters
// for {prefix}/{boxId}/dispensed.
func (c *Coordinator) handleAck(topic string, payload []byte) {
	tp, err := coremqtt.ParseTopic(topic)
	if err != nil || tp.Prefix != c.prefix || tp.Kind != coremqtt.KindDispensed {
		return
	}
	c.mu.Lock()
	p := c.inflight[tp.BoxID]
	c.mu.Unlock()
	if p == nil {
		c.log.Debugf("ack for box %s with no command in flight", tp.BoxID)
		return
	}
	success, cmdID := parseAck(payload)
	if cmdID != "" && cmdID != p.commandID {
		c.log.Warnf("ack %s does not correlate with command %s for box %s", cmdID, p.commandID, tp.BoxID)
		return
	}
	p.settle(success)
}

var successTokens = []string{"SUCCESS", "DONE", "OK"}

// parseAck interprets an acknowledgment payload. The structured JSON
// schema is the primary contract; a payload that is not valid JSON
// falls back to matching a fixed success vocabulary so older firmware
// keeps working.
func parseAck(payload []byte) (success bool, commandID string) {
	var ack Ack
	if err := json.Unmarshal(payload, &ack); err == nil {
		return ack.Success, ack.CommandID
	}
	token := strings.ToUpper(strings.TrimSpace(string(payload)))
	for _, t := range successTokens {
		if strings.Contains(token, t) {
			return true, ""
		}
	}
	return false, ""
}
