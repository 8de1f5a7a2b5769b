package ircon

import "sync"

// State is an immutable snapshot of a device's attribute values.
type State struct {
	values [attributeCount]string
}

// UnknownState returns a snapshot with every attribute set to Sentinel.
func UnknownState() State {
	var s State
	for i := range s.values {
		s.values[i] = Sentinel
	}
	return s
}

// Get returns the value of one attribute.
func (s State) Get(a Attribute) string {
	if a < 0 || int(a) >= attributeCount {
		return Sentinel
	}
	return s.values[a]
}

// Map returns the snapshot keyed by attribute name.
func (s State) Map() map[string]string {
	m := make(map[string]string, attributeCount)
	for _, a := range Attributes() {
		m[a.String()] = s.values[a]
	}
	return m
}

// StateCache holds the last known attribute values of one device.
//
// Thread Safety: all methods are safe for concurrent use. Reset is atomic
// with respect to Get and Snapshot.
type StateCache struct {
	mu     sync.RWMutex
	values [attributeCount]string
}

// NewStateCache returns a cache with every attribute set to Sentinel.
func NewStateCache() *StateCache {
	c := &StateCache{}
	c.Reset()
	return c
}

// Get returns the cached value of an attribute.
func (c *StateCache) Get(a Attribute) string {
	if a < 0 || int(a) >= attributeCount {
		return Sentinel
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[a]
}

// Set stores value for an attribute, truncated to MaxValueLength.
// An empty value leaves the cache untouched. It reports whether the cached
// value changed.
func (c *StateCache) Set(a Attribute, value string) bool {
	if value == "" || a < 0 || int(a) >= attributeCount {
		return false
	}
	value = boundValue(value)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values[a] == value {
		return false
	}
	c.values[a] = value
	return true
}

// Reset sets every attribute back to Sentinel.
func (c *StateCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.values {
		c.values[i] = Sentinel
	}
}

// Snapshot returns a consistent copy of all attribute values.
func (c *StateCache) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{values: c.values}
}
