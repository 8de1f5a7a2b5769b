package api

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/ircon-bridge/internal/bridges/ircon"
	"github.com/nerrad567/ircon-bridge/internal/infrastructure/config"
	"github.com/nerrad567/ircon-bridge/internal/infrastructure/logging"
)

// device accepts connections and records received bytes.
type device struct {
	ln  net.Listener
	mu  sync.Mutex
	buf []byte
}

func newDevice(t *testing.T) *device {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &device{ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				chunk := make([]byte, 256)
				for {
					n, err := conn.Read(chunk)
					d.mu.Lock()
					d.buf = append(d.buf, chunk[:n]...)
					d.mu.Unlock()
					if err != nil {
						return
					}
				}
			}()
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return d
}

func (d *device) identifier() string { return d.ln.Addr().String() }

func (d *device) waitFor(t *testing.T, want string) {
	t.Helper()
	var got string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		got = string(d.buf)
		d.mu.Unlock()
		if got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("device received %q, want %q", got, want)
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "discard"}, "test")
}

// testServer returns a Server and an httptest server running its router.
func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	registry := ircon.NewRegistry(ircon.RegistryOptions{})
	t.Cleanup(registry.CloseAll)

	srv, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:   testLogger(),
		Registry: registry,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)
	return srv, ts
}

func do(t *testing.T, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("%s %s: decoding body: %v", method, target, err)
	}
	return resp, decoded
}

func deviceURL(ts *httptest.Server, id, suffix string) string {
	return ts.URL + "/api/v1/devices/" + url.PathEscape(id) + suffix
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{Registry: ircon.NewRegistry(ircon.RegistryOptions{})}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without registry should fail")
	}
}

func TestHealth(t *testing.T) {
	_, ts := testServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	_, ts := testServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestSetAndGetState(t *testing.T) {
	srv, ts := testServer(t)
	dev := newDevice(t)
	id := dev.identifier()

	resp, body := do(t, http.MethodPut, deviceURL(ts, id, "/state"),
		`{"values": {"mode": "heat", "temperature": 22.5, "fan": "high"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d body = %v", resp.StatusCode, body)
	}
	if body["command_id"] == "" || body["connected"] != true {
		t.Errorf("PUT body = %v", body)
	}
	dev.waitFor(t, "mode:heat,temperature:22.5,\n")

	resp, body = do(t, http.MethodGet, deviceURL(ts, id, "/state"), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d", resp.StatusCode)
	}
	state, _ := body["state"].(map[string]any)
	want := map[string]any{
		"mode":        "heat",
		"temperature": "22.5",
		"power":       ircon.Sentinel,
		"angle":       ircon.Sentinel,
	}
	for k, v := range want {
		if state[k] != v {
			t.Errorf("state[%s] = %v, want %v", k, state[k], v)
		}
	}

	if srv.registry.Len() != 1 {
		t.Errorf("registry.Len() = %d, want 1", srv.registry.Len())
	}
}

func TestResetState(t *testing.T) {
	_, ts := testServer(t)
	dev := newDevice(t)
	id := dev.identifier()

	do(t, http.MethodPut, deviceURL(ts, id, "/state"), `{"values": {"mode": "cool", "power": "on"}}`)
	resp, body := do(t, http.MethodDelete, deviceURL(ts, id, "/state"), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status = %d", resp.StatusCode)
	}
	dev.waitFor(t, "mode:cool,power:on,\nmode:-,\n")

	state, _ := body["state"].(map[string]any)
	if state["mode"] != ircon.Sentinel || state["power"] != ircon.Sentinel {
		t.Errorf("state after reset = %v", state)
	}
}

func TestListAndGetDevice(t *testing.T) {
	_, ts := testServer(t)
	dev := newDevice(t)
	id := dev.identifier()

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/devices", "")
	if resp.StatusCode != http.StatusOK || body["count"] != float64(0) {
		t.Fatalf("empty list: %d %v", resp.StatusCode, body)
	}

	do(t, http.MethodPost, deviceURL(ts, id, "/connect"), "")
	do(t, http.MethodPut, deviceURL(ts, id, "/state"), `{"values": {"power": "on"}}`)
	dev.waitFor(t, "power:on,\n")

	_, body = do(t, http.MethodGet, ts.URL+"/api/v1/devices", "")
	if body["count"] != float64(1) {
		t.Fatalf("list = %v", body)
	}

	resp, body = do(t, http.MethodGet, deviceURL(ts, id, ""), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET device status = %d", resp.StatusCode)
	}
	if body["identifier"] != id || body["host"] != "127.0.0.1" || body["connected"] != true {
		t.Errorf("device = %v", body)
	}
	stats, _ := body["stats"].(map[string]any)
	if stats["frames_tx"] != float64(1) || stats["bytes_tx"] != float64(len("power:on,\n")) {
		t.Errorf("stats = %v", stats)
	}

	resp, body = do(t, http.MethodPost, deviceURL(ts, id, "/disconnect"), "")
	if resp.StatusCode != http.StatusOK || body["connected"] != false {
		t.Errorf("disconnect: %d %v", resp.StatusCode, body)
	}
}

func TestErrors(t *testing.T) {
	_, ts := testServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	unreachable := ln.Addr().String()
	ln.Close()

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown device state", http.MethodGet, deviceURL(ts, "10.9.9.9", "/state"), "", http.StatusNotFound, ErrCodeNotFound},
		{"unknown device", http.MethodGet, deviceURL(ts, "10.9.9.9", ""), "", http.StatusNotFound, ErrCodeNotFound},
		{"disconnect unknown", http.MethodPost, deviceURL(ts, "10.9.9.9", "/disconnect"), "", http.StatusNotFound, ErrCodeNotFound},
		{"invalid json", http.MethodPut, deviceURL(ts, "10.9.9.9", "/state"), "{", http.StatusBadRequest, ErrCodeBadRequest},
		{"empty values", http.MethodPut, deviceURL(ts, "10.9.9.9", "/state"), `{"values": {}}`, http.StatusBadRequest, ErrCodeValidation},
		{"unsupported value", http.MethodPut, deviceURL(ts, "10.9.9.9", "/state"), `{"values": {"mode": ["a"]}}`, http.StatusBadRequest, ErrCodeValidation},
		{"unreachable device", http.MethodPut, deviceURL(ts, unreachable, "/state"), `{"values": {"mode": "heat"}}`, http.StatusBadGateway, ErrCodeDeviceUnreachable},
		{"unreachable reset", http.MethodDelete, deviceURL(ts, unreachable, "/state"), "", http.StatusBadGateway, ErrCodeDeviceUnreachable},
		{"no route", http.MethodGet, ts.URL + "/api/v1/nope", "", http.StatusNotFound, ErrCodeNotFound},
		{"wrong method", http.MethodPatch, deviceURL(ts, "x", "/state"), "", http.StatusMethodNotAllowed, ErrCodeMethodNotAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, tt.target, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %v)", resp.StatusCode, tt.wantStatus, body)
			}
			if body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
			}
		})
	}
}

func TestStartAndClose(t *testing.T) {
	srv, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		Logger:   testLogger(),
		Registry: ircon.NewRegistry(ircon.RegistryOptions{}),
		Version:  "test",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := srv.HealthCheck(t.Context()); err == nil {
		t.Error("HealthCheck() before Start() = nil, want error")
	}
	if err := srv.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(t.Context()); err == nil {
		t.Error("second Start() = nil, want error")
	}
	if err := srv.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
