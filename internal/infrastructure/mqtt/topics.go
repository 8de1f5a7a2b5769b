package mqtt

import "fmt"

// Topic prefixes.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{device}.
const (
	// TopicPrefixBridge is the base for all bridge topics.
	TopicPrefixBridge = "graylogic"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("ircon", "10.0.0.5:9000")
//	// Returns: "graylogic/state/ircon/10.0.0.5:9000"
//
// Device segments are used as given; callers escape identifiers that
// contain MQTT wildcards.
type Topics struct{}

// BridgeState returns the topic for device state updates from a bridge.
func (Topics) BridgeState(protocol, device string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, device)
}

// BridgeCommand returns the topic for commands to a bridge.
func (Topics) BridgeCommand(protocol, device string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, device)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
func (Topics) BridgeAck(protocol, device string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, device)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: graylogic/health/ircon
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// SystemStatus returns the system status topic.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllBridgeCommands returns a pattern matching all commands to one bridge.
//
// Pattern: graylogic/command/{protocol}/+
func (Topics) AllBridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefixBridge, protocol)
}

// AllBridgeStates returns a pattern matching all state updates from one bridge.
//
// Pattern: graylogic/state/{protocol}/+
func (Topics) AllBridgeStates(protocol string) string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefixBridge, protocol)
}
