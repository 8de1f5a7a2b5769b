package ircon

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// fakeMQTT records publishes and exposes the registered handler.
type fakeMQTT struct {
	mu        sync.Mutex
	published []publishedMessage
	handlers  map[string]func(topic string, payload []byte)
	subErr    error
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]func(string, []byte))}
}

func (m *fakeMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMessage{topic, payload, qos, retained})
	return nil
}

func (m *fakeMQTT) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	if m.subErr != nil {
		return m.subErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *fakeMQTT) IsConnected() bool { return true }

func (m *fakeMQTT) deliver(topic string, payload []byte) {
	m.mu.Lock()
	h := m.handlers[CommandSubscribeTopic()]
	m.mu.Unlock()
	h(topic, payload)
}

func (m *fakeMQTT) messagesOn(topic string) []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedMessage
	for _, p := range m.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type recordedStates struct {
	mu     sync.Mutex
	states []map[string]string
}

func (r *recordedStates) RecordState(_ string, state map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func startBridge(t *testing.T, r *Registry, m *fakeMQTT, rec StateRecorder) *Bridge {
	t.Helper()
	b, err := NewBridge(BridgeOptions{Registry: r, MQTT: m, Recorder: rec})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b
}

func lastAck(t *testing.T, m *fakeMQTT, identifier string) AckMessage {
	t.Helper()
	acks := m.messagesOn(AckTopic(identifier))
	if len(acks) == 0 {
		t.Fatalf("no ack published for %s", identifier)
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[len(acks)-1].payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	return ack
}

func TestNewBridgeValidation(t *testing.T) {
	if _, err := NewBridge(BridgeOptions{MQTT: newFakeMQTT()}); err == nil {
		t.Error("NewBridge() without registry should fail")
	}
	if _, err := NewBridge(BridgeOptions{Registry: NewRegistry(RegistryOptions{})}); err == nil {
		t.Error("NewBridge() without MQTT should fail")
	}
}

func TestBridgeStartSubscribeError(t *testing.T) {
	m := newFakeMQTT()
	m.subErr = errors.New("broker down")
	b, err := NewBridge(BridgeOptions{Registry: newTestRegistry(t), MQTT: m})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(t.Context()); err == nil {
		t.Error("Start() should surface the subscribe error")
	}
}

func TestBridgeSetCommand(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestRegistry(t)
	m := newFakeMQTT()
	rec := &recordedStates{}
	startBridge(t, r, m, rec)

	id := dev.identifier()
	cmd := `{"id":"c1","action":"set","values":{"temperature":22,"mode":"cool","fan":"high"}}`
	m.deliver(CommandTopic(id), []byte(cmd))

	dev.waitFor(t, "mode:cool,temperature:22,\n")

	ack := lastAck(t, m, id)
	if ack.Status != AckAccepted || ack.CommandID != "c1" || ack.Protocol != Protocol {
		t.Errorf("ack = %+v", ack)
	}

	states := m.messagesOn(StateTopic(id))
	if len(states) < 2 {
		t.Fatalf("state publishes = %d, want connect + write", len(states))
	}
	last := states[len(states)-1]
	if !last.retained {
		t.Error("state must be retained")
	}
	var msg StateMessage
	if err := json.Unmarshal(last.payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if msg.State["mode"] != "cool" || msg.State["temperature"] != "22" || msg.State["power"] != Sentinel {
		t.Errorf("state = %v", msg.State)
	}
	if !msg.Connected || msg.Device != id {
		t.Errorf("state message = %+v", msg)
	}

	rec.mu.Lock()
	n := len(rec.states)
	rec.mu.Unlock()
	if n != len(states) {
		t.Errorf("recorder saw %d states, MQTT %d", n, len(states))
	}
}

func TestBridgeResetCommand(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestRegistry(t)
	m := newFakeMQTT()
	startBridge(t, r, m, nil)

	id := dev.identifier()
	m.deliver(CommandTopic(id), []byte(`{"action":"set","values":{"power":"on"}}`))
	m.deliver(CommandTopic(id), []byte(`{"action":"reset"}`))

	dev.waitFor(t, "power:on,\nmode:-,\n")
	share, _ := r.Lookup(id)
	if share.State() != UnknownState() {
		t.Errorf("state after reset = %v", share.State().Map())
	}
}

func TestBridgeCommandErrors(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		device   func(t *testing.T) string
		wantCode string
	}{
		{
			name:     "invalid json",
			payload:  `{not json`,
			device:   func(t *testing.T) string { return newFakeDevice(t).identifier() },
			wantCode: ErrCodeInvalidCommand,
		},
		{
			name:     "unknown action",
			payload:  `{"action":"explode"}`,
			device:   func(t *testing.T) string { return newFakeDevice(t).identifier() },
			wantCode: ErrCodeInvalidCommand,
		},
		{
			name:     "unsupported value type",
			payload:  `{"action":"set","values":{"mode":["a"]}}`,
			device:   func(t *testing.T) string { return newFakeDevice(t).identifier() },
			wantCode: ErrCodeInvalidParameters,
		},
		{
			name:     "unreachable device",
			payload:  `{"action":"set","values":{"mode":"cool"}}`,
			device:   closedAddress,
			wantCode: ErrCodeDeviceUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			m := newFakeMQTT()
			startBridge(t, r, m, nil)

			id := tt.device(t)
			m.deliver(CommandTopic(id), []byte(tt.payload))

			ack := lastAck(t, m, id)
			if ack.Status != AckFailed {
				t.Fatalf("ack status = %s, want failed", ack.Status)
			}
			if ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack error = %+v, want code %s", ack.Error, tt.wantCode)
			}
		})
	}
}

func TestBridgeIgnoresUnexpectedTopic(t *testing.T) {
	r := newTestRegistry(t)
	m := newFakeMQTT()
	startBridge(t, r, m, nil)

	m.deliver("graylogic/state/ircon/x", []byte(`{"action":"reset"}`))
	m.deliver("short", nil)

	if r.Len() != 0 {
		t.Error("message on unexpected topic created a share")
	}
}

func TestBridgeStopSuppressesPublishes(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestRegistry(t)
	m := newFakeMQTT()
	b := startBridge(t, r, m, nil)

	b.Stop()
	if err := r.Share(dev.identifier()).Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if n := len(m.messagesOn(StateTopic(dev.identifier()))); n != 0 {
		t.Errorf("published %d states after Stop", n)
	}
}

func TestCommandMessageRow(t *testing.T) {
	var cmd CommandMessage
	payload := `{"action":"set","values":{"angle":null,"power":true,"temperature":21.5,"mode":"auto"}}`
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	row, err := cmd.Row()
	if err != nil {
		t.Fatalf("Row() error = %v", err)
	}

	frame, _ := Encoder{}.Encode(NewStateCache(), row)
	if got, want := string(frame), "mode:auto,temperature:21.5,power:true,\n"; got != want {
		t.Errorf("frame = %q, want %q", got, want)
	}
}

func TestTopicIdentifierEncoding(t *testing.T) {
	tests := []string{
		"10.0.0.5:9000",
		"living/room",
		"a+b#c",
		"100%",
	}
	for _, id := range tests {
		enc := EncodeTopicIdentifier(id)
		for _, c := range []byte{'/', '+', '#'} {
			for i := 0; i < len(enc); i++ {
				if enc[i] == c {
					t.Errorf("EncodeTopicIdentifier(%q) = %q contains %q", id, enc, c)
				}
			}
		}
		if got := DecodeTopicIdentifier(enc); got != id {
			t.Errorf("round trip %q -> %q -> %q", id, enc, got)
		}
	}

	if got := StateTopic("10.0.0.5:9000"); got != "graylogic/state/ircon/10.0.0.5:9000" {
		t.Errorf("StateTopic() = %q", got)
	}
	if got := CommandSubscribeTopic(); got != "graylogic/command/ircon/+" {
		t.Errorf("CommandSubscribeTopic() = %q", got)
	}
}
