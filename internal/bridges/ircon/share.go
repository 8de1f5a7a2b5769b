package ircon

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Dialer opens the stream socket to a device.
// *net.Dialer satisfies it; tests substitute their own.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ShareStats holds per-device transmission statistics.
type ShareStats struct {
	FramesTx     uint64
	BytesTx      uint64
	SendErrors   uint64
	Connects     uint64
	LastActivity time.Time
	Connected    bool
}

// Share is the state shared by every session opened against one device
// identifier: the socket and the attribute cache.
//
// Thread Safety: all methods are safe for concurrent use. Connect, Disconnect
// and each row's encode-and-transmit run under one per-share mutex, so
// frames from concurrent writers never interleave on the wire.
type Share struct {
	identifier string
	endpoint   Endpoint
	dialer     Dialer
	encoder    Encoder
	logger     Logger
	notify     func(identifier string, state State)

	// mu guards conn and serialises transmission.
	mu   sync.Mutex
	conn net.Conn

	// connected mirrors conn != nil for lock-free readers.
	connected atomic.Bool

	cache *StateCache

	framesTx     atomic.Uint64
	bytesTx      atomic.Uint64
	sendErrors   atomic.Uint64
	connects     atomic.Uint64
	lastActivity atomic.Int64
}

// Identifier returns the device identifier the share was created for.
func (s *Share) Identifier() string {
	return s.identifier
}

// Endpoint returns the parsed network endpoint of the device.
func (s *Share) Endpoint() Endpoint {
	return s.endpoint
}

// Connect opens the device socket if it is not already open.
//
// A fresh connection resets every cached attribute to Sentinel. When the
// share is already connected nothing happens and the cache is kept. The
// dial is a single attempt with no timeout of its own; ctx is the only
// bound. On failure the share stays disconnected and ErrOpenFailed is
// returned.
func (s *Share) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}

	conn, err := s.dialer.DialContext(ctx, "tcp", s.endpoint.Address())
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("device connect failed",
			"device", s.identifier,
			"address", s.endpoint.Address(),
			"error", err,
		)
		return fmt.Errorf("%w: %s: %w", ErrOpenFailed, s.identifier, err)
	}

	s.conn = conn
	s.connected.Store(true)
	s.cache.Reset()
	s.connects.Add(1)
	s.touch()
	state := s.cache.Snapshot()
	s.mu.Unlock()

	s.logger.Info("device connected",
		"device", s.identifier,
		"address", s.endpoint.Address(),
	)
	s.publish(state)
	return nil
}

// Disconnect closes the device socket if it is open. The cache is kept, and
// the next Connect dials again.
func (s *Share) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	s.connected.Store(false)

	s.logger.Info("device disconnected", "device", s.identifier)
	if err != nil {
		return fmt.Errorf("closing %s: %w", s.identifier, err)
	}
	return nil
}

// IsConnected reports whether the share currently holds an open socket.
func (s *Share) IsConnected() bool {
	return s.connected.Load()
}

// WriteRow applies a written row to the cache and transmits the encoded
// frame. Transmission errors are not returned: the device protocol has no
// acknowledgement and a failed send is only counted and logged. A share that
// is not connected still updates its cache.
func (s *Share) WriteRow(row Row) {
	s.mu.Lock()
	frame, changed := s.encoder.Encode(s.cache, row)
	s.send(frame)
	state := s.cache.Snapshot()
	s.mu.Unlock()

	if changed {
		s.publish(state)
	}
}

// Reset sets every attribute back to Sentinel and sends the delete frame.
func (s *Share) Reset() {
	s.mu.Lock()
	s.cache.Reset()
	s.send(deleteFrame)
	state := s.cache.Snapshot()
	s.mu.Unlock()

	s.publish(state)
}

// Get returns the cached value of one attribute.
func (s *Share) Get(a Attribute) string {
	return s.cache.Get(a)
}

// State returns a snapshot of the cached attributes.
func (s *Share) State() State {
	return s.cache.Snapshot()
}

// Stats returns transmission statistics for the share.
func (s *Share) Stats() ShareStats {
	var last time.Time
	if ts := s.lastActivity.Load(); ts != 0 {
		last = time.Unix(0, ts)
	}
	return ShareStats{
		FramesTx:     s.framesTx.Load(),
		BytesTx:      s.bytesTx.Load(),
		SendErrors:   s.sendErrors.Load(),
		Connects:     s.connects.Load(),
		LastActivity: last,
		Connected:    s.IsConnected(),
	}
}

// send writes one frame to the socket. Caller must hold s.mu.
func (s *Share) send(frame []byte) {
	if s.conn == nil {
		s.sendErrors.Add(1)
		s.logger.Debug("device frame dropped, not connected", "device", s.identifier)
		return
	}

	n, err := s.conn.Write(frame)
	s.bytesTx.Add(uint64(n)) //nolint:gosec // n is never negative
	if err != nil {
		s.sendErrors.Add(1)
		s.logger.Debug("device send failed", "device", s.identifier, "error", err)
		return
	}
	s.framesTx.Add(1)
	s.touch()
}

func (s *Share) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// publish hands a state snapshot to the registry listeners. It must be
// called without s.mu held.
func (s *Share) publish(state State) {
	if s.notify != nil {
		s.notify(s.identifier, state)
	}
}
