package ircon

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// EstimatedRows is the row count reported to query planners. It is small so
// that the planner treats a device table as cheap to scan.
const EstimatedRows = 2

// SessionState is the lifecycle position of a Session.
type SessionState int

// Session states.
const (
	StateClosed SessionState = iota
	StateOpen
	StateScanning
	StateExhausted
)

// String returns a lower-case name for the state.
func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateScanning:
		return "scanning"
	case StateExhausted:
		return "exhausted"
	default:
		return "closed"
	}
}

// Session is one open/close bounded interaction with a device table.
//
// Sessions are not safe for concurrent use; each table handle owns one.
// Sessions on the same identifier share a single Share.
type Session struct {
	id         string
	identifier string
	registry   *Registry
	share      *Share
	cursor     *Cursor
	state      SessionState
	logger     Logger
}

// NewSession creates a closed session for identifier.
func NewSession(registry *Registry, identifier string) *Session {
	return &Session{
		id:         uuid.NewString(),
		identifier: identifier,
		registry:   registry,
		logger:     registry.opts.Logger,
	}
}

// ID returns a unique id for log correlation.
func (s *Session) ID() string {
	return s.id
}

// Identifier returns the device identifier the session targets.
func (s *Session) Identifier() string {
	return s.identifier
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return s.state
}

// Share returns the device share, or nil before the first successful Open.
func (s *Session) Share() *Share {
	return s.share
}

// Open attaches the session to the device share and connects it if needed.
// On failure the session stays closed and the error wraps ErrOpenFailed.
func (s *Session) Open(ctx context.Context) error {
	share := s.registry.Share(s.identifier)
	if err := share.Connect(ctx); err != nil {
		return err
	}

	s.share = share
	s.cursor = NewCursor(share)
	s.state = StateOpen
	s.logger.Debug("session opened", "session", s.id, "device", s.identifier)
	return nil
}

// Close tears down the device connection. The share and its cache survive,
// and other sessions on the same device lose their socket too.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	s.logger.Debug("session closed", "session", s.id, "device", s.identifier)

	if err := s.share.Disconnect(); err != nil {
		return fmt.Errorf("closing session %s: %w", s.id, err)
	}
	return nil
}

// Write encodes row and sends it to the device.
func (s *Session) Write(row Row) error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	s.share.WriteRow(row)
	return nil
}

// Update behaves exactly like Write with the new row; the old row is not
// consulted because the device protocol carries no diff.
func (s *Session) Update(_, newRow Row) error {
	return s.Write(newRow)
}

// Delete resets the device state and sends the delete frame.
func (s *Session) Delete() error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	s.share.Reset()
	return nil
}

// ScanInit starts a table scan.
func (s *Session) ScanInit() error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	s.cursor.Init()
	s.state = StateScanning
	return nil
}

// ScanNext returns the scan's single row, then ErrEndOfData.
func (s *Session) ScanNext(columns []string) (Row, error) {
	if s.state == StateClosed {
		return nil, ErrSessionClosed
	}
	row, err := s.cursor.Next(columns)
	if err != nil {
		return nil, err
	}
	s.state = StateExhausted
	return row, nil
}

// NewCursor returns an independent cursor over the session's device, for
// table layers that run several scans at once.
func (s *Session) NewCursor() (*Cursor, error) {
	if s.state == StateClosed {
		return nil, ErrSessionClosed
	}
	return NewCursor(s.share), nil
}

// EstimateRows returns the planner row estimate.
func (s *Session) EstimateRows() int {
	return EstimatedRows
}

// ResetAll would delete every row. Not supported.
func (s *Session) ResetAll() error { return ErrNotSupported }

// Truncate is not supported.
func (s *Session) Truncate() error { return ErrNotSupported }

// Rename is not supported.
func (s *Session) Rename(string) error { return ErrNotSupported }

// IndexRead is not supported; device tables have no index.
func (s *Session) IndexRead([]byte) (Row, error) { return nil, ErrNotSupported }

// IndexNext is not supported.
func (s *Session) IndexNext() (Row, error) { return nil, ErrNotSupported }

// IndexPrev is not supported.
func (s *Session) IndexPrev() (Row, error) { return nil, ErrNotSupported }

// IndexFirst is not supported.
func (s *Session) IndexFirst() (Row, error) { return nil, ErrNotSupported }

// IndexLast is not supported.
func (s *Session) IndexLast() (Row, error) { return nil, ErrNotSupported }

// ReadPosition is not supported; rows have no stable position.
func (s *Session) ReadPosition([]byte) (Row, error) { return nil, ErrNotSupported }
