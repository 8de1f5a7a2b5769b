package ircon

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestShareConnectResetsCache(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestRegistry(t)
	s := r.Share(dev.identifier())

	// Cache written while disconnected is discarded by the fresh connect.
	s.WriteRow(Row{NewField("mode", "heat")})
	if s.Get(AttrMode) != "heat" {
		t.Fatalf("disconnected write should still update cache")
	}

	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !s.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if s.State() != UnknownState() {
		t.Errorf("state after connect = %v, want all unknown", s.State().Map())
	}
}

func TestShareConnectIdempotent(t *testing.T) {
	dev := newFakeDevice(t)
	dialer := &countingDialer{}
	r := NewRegistry(RegistryOptions{Dialer: dialer})
	t.Cleanup(r.CloseAll)
	s := r.Share(dev.identifier())

	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	s.WriteRow(Row{NewField("power", "on")})

	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}

	if got := dialer.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
	if s.Get(AttrPower) != "on" {
		t.Error("second Connect on a connected share must keep the cache")
	}
}

func TestShareConcurrentConnectSingleSocket(t *testing.T) {
	dev := newFakeDevice(t)
	dialer := &countingDialer{}
	r := NewRegistry(RegistryOptions{Dialer: dialer})
	t.Cleanup(r.CloseAll)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Share(dev.identifier()).Connect(t.Context()); err != nil {
				t.Errorf("Connect() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := dialer.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestShareConnectFailure(t *testing.T) {
	r := newTestRegistry(t)
	s := r.Share(closedAddress(t))

	err := s.Connect(t.Context())
	if !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("Connect() error = %v, want ErrOpenFailed", err)
	}
	if s.IsConnected() {
		t.Error("share marked connected after failed dial")
	}
	if s.Stats().Connects != 0 {
		t.Error("failed dial counted as a connect")
	}
}

func TestShareDisconnectReconnect(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestRegistry(t)
	s := r.Share(dev.identifier())

	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	s.WriteRow(Row{NewField("mode", "cool")})

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if s.IsConnected() {
		t.Fatal("still connected after Disconnect")
	}
	if s.Get(AttrMode) != "cool" {
		t.Error("Disconnect must keep the cache")
	}
	if err := s.Disconnect(); err != nil {
		t.Errorf("second Disconnect() error = %v", err)
	}

	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	if s.Get(AttrMode) != Sentinel {
		t.Error("reconnect must reset the cache")
	}
	if got := s.Stats().Connects; got != 2 {
		t.Errorf("Connects = %d, want 2", got)
	}
}

func TestShareWriteRowTransmits(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestRegistry(t)
	s := r.Share(dev.identifier())
	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	s.WriteRow(Row{NewField("mode", "cool"), NewField("temperature", "22")})
	s.WriteRow(Row{NewField("fan", "high")})
	s.Reset()

	want := "mode:cool,temperature:22,\n" + "\n" + "mode:-,\n"
	dev.waitFor(t, want)

	stats := s.Stats()
	if stats.FramesTx != 3 {
		t.Errorf("FramesTx = %d, want 3", stats.FramesTx)
	}
	if stats.BytesTx != uint64(len(want)) {
		t.Errorf("BytesTx = %d, want %d", stats.BytesTx, len(want))
	}
	if stats.SendErrors != 0 {
		t.Errorf("SendErrors = %d, want 0", stats.SendErrors)
	}
	if stats.LastActivity.IsZero() || !stats.Connected {
		t.Errorf("stats = %+v", stats)
	}
}

func TestShareWriteWhileDisconnected(t *testing.T) {
	r := newTestRegistry(t)
	s := r.Share("never-connected")

	s.WriteRow(Row{NewField("angle", "15")})
	s.Reset()

	stats := s.Stats()
	if stats.SendErrors != 2 {
		t.Errorf("SendErrors = %d, want 2", stats.SendErrors)
	}
	if stats.FramesTx != 0 {
		t.Errorf("FramesTx = %d, want 0", stats.FramesTx)
	}
	if s.Get(AttrAngle) != Sentinel {
		t.Errorf("angle after reset = %q", s.Get(AttrAngle))
	}
}

func TestShareFramesDoNotInterleave(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestRegistry(t)
	s := r.Share(dev.identifier())
	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	const writers = 10
	const perWriter = 20
	want := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			want[fmt.Sprintf("mode:w%d-%d,power:p%d,", w, i, w)]++
		}
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.WriteRow(Row{
					NewField("mode", fmt.Sprintf("w%d-%d", w, i)),
					NewField("power", fmt.Sprintf("p%d", w)),
				})
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for line := range want {
		total += len(line) + 1
	}
	got := dev.waitForLen(t, total)

	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != writers*perWriter {
		t.Fatalf("received %d frames, want %d", len(lines), writers*perWriter)
	}
	for _, line := range lines {
		if want[line] == 0 {
			t.Errorf("unexpected or interleaved frame %q", line)
			continue
		}
		want[line]--
	}
}
