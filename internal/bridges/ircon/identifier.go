package ircon

import (
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used when a device identifier has no usable port.
const DefaultPort = 8888

// maxPort is the largest valid TCP port.
const maxPort = 65535

// Endpoint is a parsed device identifier.
type Endpoint struct {
	Host string
	Port int
}

// ParseIdentifier splits a "host" or "host:port" identifier on its first
// colon. A missing, zero or unparseable port (including anything that is not
// a positive integer in TCP range) yields defaultPort. A non-positive
// defaultPort falls back to DefaultPort.
//
// ParseIdentifier never fails: any string names some endpoint, and a bad
// host surfaces as ErrOpenFailed when the share connects.
func ParseIdentifier(identifier string, defaultPort int) Endpoint {
	if defaultPort <= 0 || defaultPort > maxPort {
		defaultPort = DefaultPort
	}

	host, portStr, found := strings.Cut(identifier, ":")
	if !found {
		return Endpoint{Host: identifier, Port: defaultPort}
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > maxPort {
		port = defaultPort
	}
	return Endpoint{Host: host, Port: port}
}

// Address returns the endpoint in dialable "host:port" form.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String implements fmt.Stringer.
func (e Endpoint) String() string {
	return e.Address()
}
