package dispense

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	coremqtt "github.com/medbox-iot/medbox/core/mqtt"
	"github.com/medbox-iot/medbox/infra/logger"
	infmqtt "github.com/medbox-iot/medbox/infra/mqtt"
)

func newTestCoordinator(t *testing.T, conn coremqtt.Connector, timeout time.Duration) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(conn, "medbox", timeout, logger.NopLogger{})
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	return c
}

// ackAfterPublish delivers an ack for the first published command as
// soon as the command hits the wire.
func ackAfterPublish(fc *infmqtt.FakeConnector, boxID string, success bool) {
	go func() {
		for {
			msgs := fc.Published()
			if len(msgs) == 0 {
				time.Sleep(time.Millisecond)
				continue
			}
			var cmd Command
			if err := json.Unmarshal(msgs[0].Payload, &cmd); err != nil {
				return
			}
			ack, _ := json.Marshal(Ack{CommandID: cmd.CommandID, Success: success})
			fc.Deliver("medbox/"+boxID+"/dispensed", ack)
			return
		}
	}()
}

func TestSendNotConnected(t *testing.T) {
	fc := infmqtt.NewFakeConnector()
	fc.SetConnected(false)
	c := newTestCoordinator(t, fc, time.Second)
	_, err := c.Send(context.Background(), "01", nil)
	if !errors.Is(err, coremqtt.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected got %v", err)
	}
	if len(fc.Published()) != 0 {
		t.Fatalf("no publish expected")
	}
}

func TestSendAckSuccess(t *testing.T) {
	fc := infmqtt.NewFakeConnector()
	c := newTestCoordinator(t, fc, time.Second)
	ackAfterPublish(fc, "01", true)

	res, err := c.Send(context.Background(), "01", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success")
	}
	if c.InFlight("01") {
		t.Fatalf("in-flight state not cleared")
	}
	msgs := fc.Published()
	if len(msgs) != 1 || msgs[0].Topic != "medbox/01/dispense" {
		t.Fatalf("unexpected publishes %v", msgs)
	}
	if msgs[0].QoS != 1 {
		t.Fatalf("expected qos 1 got %d", msgs[0].QoS)
	}
}

func TestSendAckFailure(t *testing.T) {
	fc := infmqtt.NewFakeConnector()
	c := newTestCoordinator(t, fc, time.Second)
	ackAfterPublish(fc, "01", false)

	res, err := c.Send(context.Background(), "01", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure outcome")
	}
}

func TestSendBusy(t *testing.T) {
	fc := infmqtt.NewFakeConnector()
	c := newTestCoordinator(t, fc, 500*time.Millisecond)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		_, _ = c.Send(context.Background(), "01", nil) // times out
	}()
	<-started
	for !c.InFlight("01") {
		time.Sleep(time.Millisecond)
	}

	before := len(fc.Published())
	_, err := c.Send(context.Background(), "01", nil)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy got %v", err)
	}
	if len(fc.Published()) != before {
		t.Fatalf("busy rejection must not publish")
	}
	<-done
}

func TestSendBusyIsPerBox(t *testing.T) {
	fc := infmqtt.NewFakeConnector()
	c := newTestCoordinator(t, fc, time.Second)

	go func() {
		_, _ = c.Send(context.Background(), "01", nil)
	}()
	for !c.InFlight("01") {
		time.Sleep(time.Millisecond)
	}

	// a second box dispenses independently
	ackAfterPublish(fc, "02", true)
	// the helper acks the first message it sees; deliver for box 02 explicitly
	res, err := c.sendAndAck(t, fc, "02")
	if err != nil {
		t.Fatalf("box 02 send: %v", err)
	}
	if !res.Success {
		t.Fatalf("box 02 should succeed while 01 is busy")
	}
}

// sendAndAck publishes for boxID and feeds back a success ack correlated
// to the command actually published for that box.
func (c *Coordinator) sendAndAck(t *testing.T, fc *infmqtt.FakeConnector, boxID string) (Result, error) {
	t.Helper()
	var (
		wg  sync.WaitGroup
		res Result
		err error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err = c.Send(context.Background(), boxID, nil)
	}()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range fc.Published() {
			var cmd Command
			if json.Unmarshal(msg.Payload, &cmd) == nil && cmd.BoxID == boxID {
				ack, _ := json.Marshal(Ack{CommandID: cmd.CommandID, Success: true})
				fc.Deliver("medbox/"+boxID+"/dispensed", ack)
				wg.Wait()
				return res, err
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no command published for box %s", boxID)
	return res, err
}

func TestSendAckTimeout(t *testing.T) {
	fc := infmqtt.NewFakeConnector()
	c := newTestCoordinator(t, fc, 20*time.Millisecond)

	_, err := c.Send(context.Background(), "01", nil)
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout got %v", err)
	}
	if c.InFlight("01") {
		t.Fatalf("in-flight state not cleared after timeout")
	}

	// a late ack must be a no-op: nothing is in flight anymore
	fc.Deliver("medbox/01/dispensed", []byte(`{"success":true}`))
	if c.InFlight("01") {
		t.Fatalf("late ack resurrected in-flight state")
	}
}

func TestSendPublishFailure(t *testing.T) {
	fc := infmqtt.NewFakeConnector()
	fc.FailTopics["medbox/01/dispense"] = true
	c := newTestCoordinator(t, fc, time.Second)

	start := time.Now()
	_, err := c.Send(context.Background(), "01", nil)
	if err == nil {
		t.Fatalf("expected publish error")
	}
	if errors.Is(err, ErrAckTimeout) {
		t.Fatalf("publish failure must not wait for the ack timeout")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("publish failure resolved too slowly")
	}
	if c.InFlight("01") {
		t.Fatalf("in-flight state not cleared after publish failure")
	}
}

func TestAckIgnoresForeignTopics(t *testing.T) {
	fc := infmqtt.NewFakeConnector()
	c := newTestCoordinator(t, fc, 50*time.Millisecond)

	go func() {
		// telemetry and malformed traffic must not resolve the command
		fc.Deliver("medbox/01/levels", []byte(`{"mag1_mm":45}`))
		fc.Deliver("medbox/01", []byte("SUCCESS"))
		fc.Deliver("other/01/dispensed", []byte("SUCCESS"))
	}()
	_, err := c.Send(context.Background(), "01", nil)
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestAckWrongCorrelationIgnored(t *testing.T) {
	fc := infmqtt.NewFakeConnector()
	c := newTestCoordinator(t, fc, 50*time.Millisecond)

	go func() {
		for len(fc.Published()) == 0 {
			time.Sleep(time.Millisecond)
		}
		ack, _ := json.Marshal(Ack{CommandID: "not-the-command", Success: true})
		fc.Deliver("medbox/01/dispensed", ack)
	}()
	_, err := c.Send(context.Background(), "01", nil)
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("mis-correlated ack must not resolve the command, got %v", err)
	}
}

func TestPendingSettleIdempotent(t *testing.T) {
	p := &pending{commandID: "c", done: make(chan bool, 1)}
	p.settle(true)
	p.settle(false) // losing trigger is a no-op
	p.settle(false)
	if v := <-p.done; !v {
		t.Fatalf("first settle must win")
	}
	select {
	case <-p.done:
		t.Fatalf("double resolution")
	default:
	}
}

func TestClearIdempotent(t *testing.T) {
	fc := infmqtt.NewFakeConnector()
	c := newTestCoordinator(t, fc, time.Second)
	p := &pending{commandID: "c", done: make(chan bool, 1)}
	c.mu.Lock()
	c.inflight["01"] = p
	c.mu.Unlock()
	c.clear("01", p)
	c.clear("01", p) // second clear is safe
	if c.InFlight("01") {
		t.Fatalf("expected cleared")
	}
}

func TestParseAck(t *testing.T) {
	cases := []struct {
		payload string
		success bool
		cmdID   string
	}{
		{`{"command_id":"abc","success":true}`, true, "abc"},
		{`{"command_id":"abc","success":false}`, false, "abc"},
		{`{"success":true}`, true, ""},
		{"SUCCESS", true, ""},
		{"dispense DONE", true, ""},
		{"ERROR: jam detected", false, ""},
		{"", false, ""},
	}
	for _, tc := range cases {
		success, cmdID := parseAck([]byte(tc.payload))
		if success != tc.success || cmdID != tc.cmdID {
			t.Errorf("parseAck(%q) = (%v,%q), want (%v,%q)", tc.payload, success, cmdID, tc.success, tc.cmdID)
		}
	}
}

func TestConcurrentSendsOnlyOneProceeds(t *testing.T) {
	fc := infmqtt.NewFakeConnector()
	c := newTestCoordinator(t, fc, 100*time.Millisecond)

	const n = 8
	var wg sync.WaitGroup
	busy := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Send(context.Background(), "01", nil); errors.Is(err, ErrBusy) {
				busy <- err
			}
		}()
	}
	wg.Wait()
	if len(fc.Published()) != n-len(busy) {
		t.Fatalf("%d publishes for %d non-busy calls", len(fc.Published()), n-len(busy))
	}
}
