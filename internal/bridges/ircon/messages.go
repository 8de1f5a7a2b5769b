package ircon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MQTT message types exchanged between the ircon bridge and the rest of
// the system.

// Command actions.
const (
	// ActionSet writes the supplied values to the device.
	ActionSet = "set"

	// ActionReset resets the device state and sends the delete frame.
	ActionReset = "reset"
)

// CommandMessage asks the bridge to change a device's state.
// Topic: graylogic/command/ircon/{identifier}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement. Optional.
	ID string `json:"id,omitempty"`

	// Timestamp is when the command was issued.
	Timestamp time.Time `json:"timestamp"`

	// Action is ActionSet or ActionReset.
	Action string `json:"action"`

	// Values holds attribute values for ActionSet. Strings are sent as is,
	// numbers and booleans are formatted, null means "not supplied".
	//   {"mode": "cool", "temperature": 22}
	Values map[string]any `json:"values,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source,omitempty"`
}

// Row converts the command's values into a row.
// Recognised attributes come first in canonical order, other names follow
// sorted, null values become absent fields.
func (m CommandMessage) Row() (Row, error) {
	values := make(map[string]string, len(m.Values))
	var nulls []string
	for name, v := range m.Values {
		if v == nil {
			nulls = append(nulls, name)
			continue
		}
		s, err := formatValue(v)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", name, err)
		}
		values[name] = s
	}

	row := RowFromValues(values)
	for _, name := range nulls {
		row = append(row, NullField(name))
	}
	return row, nil
}

func formatValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case json.Number:
		return val.String(), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckAccepted means the command was applied and the frame handed to the
	// device socket.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command could not be applied.
	AckFailed AckStatus = "failed"
)

// Error codes for failed commands.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
)

// AckMessage reports the outcome of a command.
// Topic: graylogic/ack/ircon/{identifier}
type AckMessage struct {
	CommandID string    `json:"command_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError carries failure details.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage is published after every device state change.
// Topic: graylogic/state/ircon/{identifier}
// QoS: 1, Retained: Yes
type StateMessage struct {
	Device    string            `json:"device"`
	Timestamp time.Time         `json:"timestamp"`
	Connected bool              `json:"connected"`
	State     map[string]string `json:"state"`
}

// NewAckMessage creates an acknowledgement for cmd.
func NewAckMessage(cmd CommandMessage, device string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Device:    device,
		Status:    status,
		Protocol:  Protocol,
	}
}

// NewAckError creates a failed acknowledgement for cmd.
func NewAckError(cmd CommandMessage, device, code, message string) AckMessage {
	ack := NewAckMessage(cmd, device, AckFailed)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message from a snapshot.
func NewStateMessage(device string, connected bool, state State) StateMessage {
	return StateMessage{
		Device:    device,
		Timestamp: time.Now().UTC(),
		Connected: connected,
		State:     state.Map(),
	}
}

// Topic construction.
const (
	// TopicPrefix is the root of every bridge topic.
	TopicPrefix = "graylogic"

	// Protocol is the protocol segment of every ircon topic.
	Protocol = "ircon"
)

// topicEscaper escapes the characters MQTT reserves in topic names.
var topicEscaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	"+", "%2B",
	"#", "%23",
)

var topicUnescaper = strings.NewReplacer(
	"%2F", "/",
	"%2B", "+",
	"%23", "#",
	"%25", "%",
)

// EncodeTopicIdentifier makes a device identifier safe to use as a single
// topic level.
func EncodeTopicIdentifier(identifier string) string {
	return topicEscaper.Replace(identifier)
}

// DecodeTopicIdentifier reverses EncodeTopicIdentifier.
func DecodeTopicIdentifier(level string) string {
	return topicUnescaper.Replace(level)
}

// StateTopic returns the retained state topic for a device.
// Example: graylogic/state/ircon/10.0.0.5:9000
func StateTopic(identifier string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, EncodeTopicIdentifier(identifier))
}

// CommandTopic returns the command topic for a device.
func CommandTopic(identifier string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, EncodeTopicIdentifier(identifier))
}

// AckTopic returns the acknowledgement topic for a device.
func AckTopic(identifier string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, EncodeTopicIdentifier(identifier))
}

// CommandSubscribeTopic returns the subscription pattern for all commands.
// Example: graylogic/command/ircon/+
func CommandSubscribeTopic() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}
