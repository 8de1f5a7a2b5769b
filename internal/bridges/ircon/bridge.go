package ircon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Bridge validation errors.
var (
	errNoRegistry = errors.New("registry is required")
	errNoMQTT     = errors.New("MQTT client is required")
)

// minTopicParts is the number of levels in graylogic/{type}/ircon/{identifier}.
const minTopicParts = 4

// MQTTClient is the subset of MQTT operations the bridge needs.
// The infrastructure client satisfies it through a small adapter in main.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// StateRecorder receives every state change, for example to persist it in
// a time-series database. Optional.
type StateRecorder interface {
	RecordState(identifier string, state map[string]string)
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	Registry *Registry
	MQTT     MQTTClient

	// Recorder is optional.
	Recorder StateRecorder

	// QoS for state and ack publishes. Default: 1.
	QoS byte

	// Logger is optional.
	Logger Logger
}

// Bridge connects device shares to MQTT.
//
// It publishes a retained StateMessage whenever a share's state changes and
// turns CommandMessages into share writes and resets. Writes made through
// MQTT follow exactly the same encoding path as table writes.
type Bridge struct {
	registry *Registry
	mqtt     MQTTClient
	recorder StateRecorder
	qos      byte
	logger   Logger

	ctx       context.Context
	ctxCancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// NewBridge creates a bridge. Call Start to begin processing.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Registry == nil {
		return nil, errNoRegistry
	}
	if opts.MQTT == nil {
		return nil, errNoMQTT
	}
	if opts.QoS == 0 {
		opts.QoS = 1
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		registry:  opts.Registry,
		mqtt:      opts.MQTT,
		recorder:  opts.Recorder,
		qos:       opts.QoS,
		logger:    opts.Logger,
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// Start subscribes to command topics and registers for state changes.
// Calling Start twice is a no-op.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	topic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)

	b.registry.AddListener(b.handleStateChange)
	b.started = true

	// Seed retained topics for shares that already exist.
	for _, id := range b.registry.Identifiers() {
		if s, ok := b.registry.Lookup(id); ok {
			b.publishState(id, s.IsConnected(), s.State())
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			b.Stop()
		case <-b.ctx.Done():
		}
	}()

	b.logger.Info("ircon bridge started", "devices", b.registry.Len())
	return nil
}

// Stop cancels in-flight command connects. State changes after Stop are
// no longer published.
func (b *Bridge) Stop() {
	b.ctxCancel()
}

func (b *Bridge) stopped() bool {
	return b.ctx.Err() != nil
}

// handleStateChange is the registry listener.
func (b *Bridge) handleStateChange(identifier string, state State) {
	if b.stopped() {
		return
	}
	connected := false
	if s, ok := b.registry.Lookup(identifier); ok {
		connected = s.IsConnected()
	}
	b.publishState(identifier, connected, state)

	if b.recorder != nil {
		b.recorder.RecordState(identifier, state.Map())
	}
}

func (b *Bridge) publishState(identifier string, connected bool, state State) {
	payload, err := json.Marshal(NewStateMessage(identifier, connected, state))
	if err != nil {
		b.logger.Error("failed to marshal state", "device", identifier, "error", err)
		return
	}
	if err := b.mqtt.Publish(StateTopic(identifier), payload, b.qos, true); err != nil {
		b.logger.Warn("failed to publish state", "device", identifier, "error", err)
	}
}

// handleMQTTMessage processes a message on graylogic/command/ircon/+.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts || parts[1] != "command" || parts[2] != Protocol {
		b.logger.Warn("ignoring message on unexpected topic", "topic", topic)
		return
	}
	identifier := DecodeTopicIdentifier(parts[3])

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("failed to parse command", "device", identifier, "error", err)
		b.publishAck(NewAckError(cmd, identifier, ErrCodeInvalidCommand, err.Error()))
		return
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device", identifier,
		"action", cmd.Action,
	)
	b.publishAck(b.executeCommand(identifier, cmd))
}

// executeCommand applies cmd to the device share, connecting it if needed.
func (b *Bridge) executeCommand(identifier string, cmd CommandMessage) AckMessage {
	var row Row
	switch cmd.Action {
	case ActionSet:
		var err error
		row, err = cmd.Row()
		if err != nil {
			return NewAckError(cmd, identifier, ErrCodeInvalidParameters, err.Error())
		}
	case ActionReset:
	default:
		return NewAckError(cmd, identifier, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown action %q", cmd.Action))
	}

	share := b.registry.Share(identifier)
	if err := share.Connect(b.ctx); err != nil {
		return NewAckError(cmd, identifier, ErrCodeDeviceUnreachable, err.Error())
	}

	if cmd.Action == ActionReset {
		share.Reset()
	} else {
		share.WriteRow(row)
	}
	return NewAckMessage(cmd, identifier, AckAccepted)
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "error", err)
		return
	}
	if err := b.mqtt.Publish(AckTopic(ack.Device), payload, b.qos, false); err != nil {
		b.logger.Warn("failed to publish ack", "device", ack.Device, "error", err)
	}
}
