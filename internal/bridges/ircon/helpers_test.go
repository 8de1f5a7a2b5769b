package ircon

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDevice is a TCP listener that records every byte it receives.
type fakeDevice struct {
	ln net.Listener

	mu    sync.Mutex
	buf   []byte
	conns []net.Conn

	accepted atomic.Int32
	wg       sync.WaitGroup
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	d := &fakeDevice{ln: ln}
	d.wg.Add(1)
	go d.serve()

	t.Cleanup(func() {
		ln.Close()
		d.mu.Lock()
		for _, c := range d.conns {
			c.Close()
		}
		d.mu.Unlock()
		d.wg.Wait()
	})
	return d
}

func (d *fakeDevice) serve() {
	defer d.wg.Done()
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.accepted.Add(1)
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.mu.Unlock()

		d.wg.Add(1)
		go d.read(conn)
	}
}

func (d *fakeDevice) read(conn net.Conn) {
	defer d.wg.Done()
	chunk := make([]byte, 512)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			d.mu.Lock()
			d.buf = append(d.buf, chunk[:n]...)
			d.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// identifier returns "127.0.0.1:<port>".
func (d *fakeDevice) identifier() string {
	return d.ln.Addr().String()
}

func (d *fakeDevice) received() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.buf)
}

// waitFor polls until the device has received exactly want.
func (d *fakeDevice) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.received() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("device received %q, want %q", d.received(), want)
}

// waitForLen polls until the device has received at least n bytes.
func (d *fakeDevice) waitForLen(t *testing.T, n int) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := d.received(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("device received %d bytes, want %d", len(d.received()), n)
	return ""
}

// closedAddress returns an address nothing is listening on.
func closedAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// countingDialer counts dial attempts.
type countingDialer struct {
	dials atomic.Int32
	d     net.Dialer
}

func (c *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	c.dials.Add(1)
	return c.d.DialContext(ctx, network, address)
}

// stateRecorder collects listener callbacks.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
	ids    []string
}

func (r *stateRecorder) listen(identifier string, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, identifier)
	r.states = append(r.states, state)
}

func (r *stateRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *stateRecorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return State{}
	}
	return r.states[len(r.states)-1]
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(RegistryOptions{})
	t.Cleanup(r.CloseAll)
	return r
}
