package ircon

import (
	"net"
	"sort"
	"sync"
)

// StateListener is called after a device's cached state changes: on a fresh
// connection, on a write that changed a value, and on every delete. It runs
// on the caller's goroutine, outside any share lock, and must not block for
// long.
type StateListener func(identifier string, state State)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// DefaultPort is used for identifiers without a usable port.
	// Default: DefaultPort.
	DefaultPort int

	// Match selects write-path column matching. Default: MatchExact.
	Match MatchMode

	// Dialer opens device sockets. Default: a zero net.Dialer (no timeout).
	Dialer Dialer

	// Logger is optional.
	Logger Logger
}

// Registry maps device identifiers to their shares.
//
// Shares are created on first reference and never evicted; the number of
// distinct devices is bounded by configuration.
//
// Thread Safety: all methods are safe for concurrent use. Get-or-create is a
// single critical section, so concurrent openers of one identifier always
// receive the same share.
type Registry struct {
	opts RegistryOptions

	mu     sync.Mutex
	shares map[string]*Share

	listenersMu sync.RWMutex
	listeners   []StateListener
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.DefaultPort <= 0 {
		opts.DefaultPort = DefaultPort
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Registry{
		opts:   opts,
		shares: make(map[string]*Share),
	}
}

// Share returns the share for identifier, creating it on first use.
// Creating a share does not connect it.
func (r *Registry) Share(identifier string) *Share {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.shares[identifier]; ok {
		return s
	}

	s := &Share{
		identifier: identifier,
		endpoint:   ParseIdentifier(identifier, r.opts.DefaultPort),
		dialer:     r.opts.Dialer,
		encoder:    Encoder{Match: r.opts.Match},
		logger:     r.opts.Logger,
		notify:     r.notify,
		cache:      NewStateCache(),
	}
	r.shares[identifier] = s
	r.opts.Logger.Debug("device share created",
		"device", identifier,
		"address", s.endpoint.Address(),
	)
	return s
}

// Lookup returns the share for identifier if one has been created.
func (r *Registry) Lookup(identifier string) (*Share, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shares[identifier]
	return s, ok
}

// Identifiers returns every registered identifier, sorted.
func (r *Registry) Identifiers() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.shares))
	for id := range r.shares {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of registered shares.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shares)
}

// AddListener registers a state change listener.
func (r *Registry) AddListener(l StateListener) {
	if l == nil {
		return
	}
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, l)
	r.listenersMu.Unlock()
}

// CloseAll disconnects every share. Shares stay registered.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	shares := make([]*Share, 0, len(r.shares))
	for _, s := range r.shares {
		shares = append(shares, s)
	}
	r.mu.Unlock()

	for _, s := range shares {
		if err := s.Disconnect(); err != nil {
			r.opts.Logger.Warn("device disconnect failed", "device", s.identifier, "error", err)
		}
	}
}

func (r *Registry) notify(identifier string, state State) {
	r.listenersMu.RLock()
	listeners := r.listeners
	r.listenersMu.RUnlock()

	for _, l := range listeners {
		l(identifier, state)
	}
}
