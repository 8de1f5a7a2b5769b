package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/nerrad567/ircon-bridge/internal/sqltable"
)

// Defaults applied by NewBrowser.
const (
	DefaultService = "_ircon._tcp"
	DefaultDomain  = "local."
	DefaultTimeout = 5 * time.Second
)

// TXT record keys understood on advertised devices.
const (
	txtTable   = "table"
	txtColumns = "columns"
)

// Config selects what to browse for.
type Config struct {
	Service    string
	Domain     string
	Timeout    time.Duration
	Interfaces []string
}

// Logger is the logging interface used by the browser.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Entry is one mDNS answer, reduced to the fields discovery uses.
type Entry struct {
	Instance string
	HostName string
	Port     int
	IPv4     []net.IP
	IPv6     []net.IP
	Text     []string
}

func entryFromService(e *zeroconf.ServiceEntry) Entry {
	return Entry{
		Instance: e.Instance,
		HostName: e.HostName,
		Port:     e.Port,
		IPv4:     e.AddrIPv4,
		IPv6:     e.AddrIPv6,
		Text:     e.Text,
	}
}

// Device is an advertised ircon device.
type Device struct {
	Instance  string
	HostName  string
	Port      int
	Addresses []string

	// Table and Columns come from the "table" and "columns" TXT keys.
	Table   string
	Columns []string
}

// Identifier returns the "host:port" identifier used to reach the device.
// The first IPv4 address is preferred over the host name. IPv6 addresses
// are never used: identifiers split host and port on the first colon.
// Returns "" when the device has no usable host.
func (d Device) Identifier() string {
	host := ""
	for _, addr := range d.Addresses {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			host = addr
			break
		}
	}
	if host == "" {
		host = strings.TrimSuffix(d.HostName, ".")
	}
	if host == "" {
		return ""
	}
	if d.Port <= 0 {
		return host
	}
	return host + ":" + strconv.Itoa(d.Port)
}

// TableSpec returns the virtual table declaration for the device. The
// table is named by the TXT "table" key, or by the identifier.
func (d Device) TableSpec() sqltable.TableSpec {
	id := d.Identifier()
	name := d.Table
	if name == "" {
		name = id
	}
	return sqltable.TableSpec{
		Name:       name,
		Identifier: id,
		Columns:    d.Columns,
	}
}

func newDevice(e Entry) Device {
	d := Device{
		Instance: e.Instance,
		HostName: e.HostName,
		Port:     e.Port,
	}
	d.Addresses = mergeAddresses(nil, entryAddresses(e))

	for _, kv := range e.Text {
		key, value, _ := strings.Cut(kv, "=")
		switch strings.ToLower(strings.TrimSpace(key)) {
		case txtTable:
			d.Table = strings.TrimSpace(value)
		case txtColumns:
			for _, col := range strings.Split(value, ",") {
				if col = strings.TrimSpace(col); col != "" {
					d.Columns = append(d.Columns, col)
				}
			}
		}
	}
	return d
}

func entryAddresses(e Entry) []string {
	addrs := make([]string, 0, len(e.IPv4)+len(e.IPv6))
	for _, ip := range e.IPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range e.IPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// mergeAddresses adds new addresses to existing, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops the addresses of a withdrawn entry.
func removeAddresses(addresses []string, e Entry) []string {
	gone := make(map[string]bool)
	for _, addr := range entryAddresses(e) {
		gone[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !gone[addr] {
			result = append(result, addr)
		}
	}
	return result
}

// browseFunc streams entries until ctx is done.
type browseFunc func(ctx context.Context, found, removed chan<- Entry) error

// Browser finds ircon devices advertised over mDNS.
type Browser struct {
	cfg    Config
	logger Logger
	browse browseFunc
}

// NewBrowser creates a Browser. Empty config fields take the package
// defaults. logger may be nil.
func NewBrowser(cfg Config, logger Logger) *Browser {
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = nopLogger{}
	}
	b := &Browser{cfg: cfg, logger: logger}
	b.browse = b.zeroconfBrowse
	return b
}

// Discover browses for the configured timeout and returns the devices
// seen, sorted by instance name. Devices without a usable host are
// skipped. When ctx is cancelled before the timeout the devices found
// so far are returned with ctx's error.
func (b *Browser) Discover(ctx context.Context) ([]Device, error) {
	browseCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	found := make(chan Entry)
	removed := make(chan Entry)
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.browse(browseCtx, found, removed)
	}()

	devices := make(map[string]*Device)
	for {
		select {
		case e := <-found:
			if existing, ok := devices[e.Instance]; ok {
				existing.Addresses = mergeAddresses(existing.Addresses, entryAddresses(e))
				continue
			}
			d := newDevice(e)
			devices[e.Instance] = &d
			b.logger.Debug("mDNS device found", "instance", e.Instance, "addresses", d.Addresses)

		case e := <-removed:
			if existing, ok := devices[e.Instance]; ok {
				existing.Addresses = removeAddresses(existing.Addresses, e)
				if len(existing.Addresses) == 0 {
					delete(devices, e.Instance)
				}
			}

		case err := <-errCh:
			errCh = nil
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("browsing %s: %w", b.cfg.Service, err)
			}

		case <-browseCtx.Done():
			return b.result(devices), ctx.Err()
		}
	}
}

func (b *Browser) result(devices map[string]*Device) []Device {
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.Identifier() == "" {
			b.logger.Warn("mDNS device has no usable address", "instance", d.Instance)
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	b.logger.Info("mDNS discovery finished", "service", b.cfg.Service, "devices", len(out))
	return out
}

func (b *Browser) zeroconfBrowse(ctx context.Context, found, removed chan<- Entry) error {
	entries := make(chan *zeroconf.ServiceEntry)
	gone := make(chan *zeroconf.ServiceEntry)
	go forward(ctx, entries, found)
	go forward(ctx, gone, removed)

	return zeroconf.Browse(ctx, b.cfg.Service, b.cfg.Domain, entries, gone, b.clientOptions()...)
}

func forward(ctx context.Context, in <-chan *zeroconf.ServiceEntry, out chan<- Entry) {
	for {
		select {
		case e, ok := <-in:
			if !ok {
				return
			}
			if e == nil {
				continue
			}
			select {
			case out <- entryFromService(e):
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// clientOptions restricts browsing to the configured interfaces.
// Unknown interface names are logged and ignored.
func (b *Browser) clientOptions() []zeroconf.ClientOption {
	var ifaces []net.Interface
	for _, name := range b.cfg.Interfaces {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			b.logger.Warn("mDNS interface not found", "interface", name, "error", err)
			continue
		}
		ifaces = append(ifaces, *iface)
	}
	if len(ifaces) == 0 {
		return nil
	}
	return []zeroconf.ClientOption{zeroconf.SelectIfaces(ifaces)}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
