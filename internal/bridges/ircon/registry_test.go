package ircon

import (
	"sync"
	"testing"
)

func TestRegistryShareGetOrCreate(t *testing.T) {
	r := newTestRegistry(t)

	a := r.Share("10.0.0.5:9000")
	b := r.Share("10.0.0.5:9000")
	c := r.Share("10.0.0.6")

	if a != b {
		t.Error("same identifier returned different shares")
	}
	if a == c {
		t.Error("different identifiers returned the same share")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if a.IsConnected() {
		t.Error("creating a share must not connect it")
	}
	if got := c.Endpoint().Port; got != DefaultPort {
		t.Errorf("default port = %d, want %d", got, DefaultPort)
	}
}

func TestRegistryConcurrentCreate(t *testing.T) {
	r := newTestRegistry(t)

	const n = 50
	shares := make([]*Share, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			shares[i] = r.Share("aircon:9000")
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if shares[i] != shares[0] {
			t.Fatalf("goroutine %d got a different share", i)
		}
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryLookupAndIdentifiers(t *testing.T) {
	r := newTestRegistry(t)

	if _, ok := r.Lookup("missing"); ok {
		t.Error("Lookup() found a share that was never created")
	}

	r.Share("c-host")
	r.Share("a-host:1")
	r.Share("b-host")

	ids := r.Identifiers()
	want := []string{"a-host:1", "b-host", "c-host"}
	if len(ids) != len(want) {
		t.Fatalf("Identifiers() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Identifiers()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}

	if s, ok := r.Lookup("b-host"); !ok || s.Identifier() != "b-host" {
		t.Error("Lookup(b-host) failed")
	}
}

func TestRegistryDefaultPortOption(t *testing.T) {
	r := NewRegistry(RegistryOptions{DefaultPort: 7000})
	if got := r.Share("aircon").Endpoint().Port; got != 7000 {
		t.Errorf("port = %d, want 7000", got)
	}
	if got := r.Share("aircon:abc").Endpoint().Port; got != 7000 {
		t.Errorf("port for bad suffix = %d, want 7000", got)
	}
}

func TestRegistryListeners(t *testing.T) {
	dev := newFakeDevice(t)
	r := newTestRegistry(t)
	rec := &stateRecorder{}
	r.AddListener(rec.listen)
	r.AddListener(nil)

	s := r.Share(dev.identifier())
	if err := s.Connect(t.Context()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("listener calls after connect = %d, want 1", rec.count())
	}

	s.WriteRow(Row{NewField("mode", "cool")})
	if rec.count() != 2 || rec.last().Get(AttrMode) != "cool" {
		t.Fatalf("listener not notified of write: %d", rec.count())
	}

	// An unchanged write does not notify.
	s.WriteRow(Row{NewField("mode", "cool")})
	if rec.count() != 2 {
		t.Errorf("listener called for unchanged write")
	}

	s.Reset()
	if rec.count() != 3 || rec.last() != UnknownState() {
		t.Errorf("listener not notified of reset")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	dev1 := newFakeDevice(t)
	dev2 := newFakeDevice(t)
	r := newTestRegistry(t)

	for _, id := range []string{dev1.identifier(), dev2.identifier()} {
		if err := r.Share(id).Connect(t.Context()); err != nil {
			t.Fatalf("Connect(%s) error = %v", id, err)
		}
	}

	r.CloseAll()

	for _, id := range r.Identifiers() {
		s, _ := r.Lookup(id)
		if s.IsConnected() {
			t.Errorf("%s still connected after CloseAll", id)
		}
	}
	if r.Len() != 2 {
		t.Errorf("CloseAll removed shares: Len() = %d", r.Len())
	}
}
