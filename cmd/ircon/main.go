// ircon bridge
//
// Exposes ircon devices, line-oriented TCP controllers for air conditioners
// and similar appliances, as SQLite virtual tables. The same devices are
// optionally bridged to MQTT, recorded to InfluxDB, served over HTTP and
// found over mDNS.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/nerrad567/ircon-bridge/internal/api"
	"github.com/nerrad567/ircon-bridge/internal/bridges/ircon"
	"github.com/nerrad567/ircon-bridge/internal/console"
	"github.com/nerrad567/ircon-bridge/internal/discovery"
	"github.com/nerrad567/ircon-bridge/internal/infrastructure/config"
	"github.com/nerrad567/ircon-bridge/internal/infrastructure/database"
	"github.com/nerrad567/ircon-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/ircon-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/ircon-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/ircon-bridge/internal/sqltable"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnv         = "IRCON_CONFIG"

	// driverPrefix names the database/sql drivers carrying the ircon module.
	driverPrefix = "sqlite3_ircon"

	// statsInterval is how often share counters are written to InfluxDB.
	statsInterval = 30 * time.Second
)

const usage = `ircon bridge.

Usage:
  ircon [--config=<path>] [--execute=<sql>] [--daemon]
  ircon -h | --help
  ircon --version

Options:
  -h --help                Show this screen.
  --version                Show version.
  -c --config=<path>       Configuration file (env IRCON_CONFIG) [default: ` + defaultConfigPath + `].
  -e --execute=<sql>       Execute SQL statements and dot-commands, then exit.
  -d --daemon              Never start the interactive console.`

// driverSeq numbers registered drivers. database/sql drivers cannot be
// unregistered and each one is bound to the registry of its run.
var driverSeq atomic.Int64

// parser handles --help and usage errors by printing and exiting.
var parser = docopt.DefaultParser

// options are the parsed command line.
type options struct {
	ConfigPath string
	Execute    string
	Daemon     bool
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs parses argv. An explicit --config wins over IRCON_CONFIG,
// which wins over the default path.
func parseArgs(argv []string) (options, error) {
	parsed, err := parser.ParseArgs(usage, argv, versionString())
	if err != nil {
		return options{}, err
	}

	var opts options
	opts.ConfigPath, _ = parsed.String("--config")
	opts.Execute, _ = parsed.String("--execute")
	opts.Daemon, _ = parsed.Bool("--daemon")

	if opts.ConfigPath == defaultConfigPath || opts.ConfigPath == "" {
		if path := os.Getenv(configEnv); path != "" {
			opts.ConfigPath = path
		} else {
			opts.ConfigPath = defaultConfigPath
		}
	}
	return opts, nil
}

func versionString() string {
	return fmt.Sprintf("ircon %s (commit %s, built %s)", version, commit, date)
}

// run is the application logic, separated from main for testability.
//
// Startup order: config, console terminal, logging, device registry,
// optional MQTT/InfluxDB/API, SQLite with the ircon module, configured
// tables, optional discovery. Shutdown runs the deferred closes in
// reverse.
func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The terminal comes first so log lines are printed above the prompt.
	var term *console.Terminal
	if opts.Execute == "" && !opts.Daemon && console.Interactive() {
		term, err = console.NewTerminal(console.Config{
			Prompt:      cfg.Console.Prompt,
			HistoryFile: cfg.Console.HistoryFile,
		})
		if err != nil {
			return fmt.Errorf("starting console: %w", err)
		}
		defer term.Close()
	}

	log := newLogger(cfg.Logging, term)
	log.Info("starting ircon bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.ConfigPath,
	)

	registry := ircon.NewRegistry(ircon.RegistryOptions{
		DefaultPort: cfg.Bridge.DefaultPort,
		Match:       ircon.ParseMatchMode(cfg.Bridge.MatchMode),
		Logger:      log.With("component", "ircon"),
	})
	defer func() {
		log.Info("closing device connections", "devices", registry.Len())
		registry.CloseAll()
	}()

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			st := influxClient.Stats()
			log.Info("closing InfluxDB connection", "points", st.Points, "write_errors", st.Errors)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", influxClient.Bucket())

		go recordStats(ctx, registry, influxClient, statsInterval)
	}

	// Connect to MQTT and start the bridge (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bridge, bridgeErr := startBridge(ctx, cfg, registry, mqttClient, influxClient, log)
		if bridgeErr != nil {
			return bridgeErr
		}
		defer func() {
			log.Info("stopping ircon bridge")
			bridge.Stop()
		}()
	} else if influxClient != nil {
		// Without the MQTT bridge, state changes go straight to InfluxDB.
		registry.AddListener(func(identifier string, state ircon.State) {
			influxClient.RecordState(identifier, state.Map())
		})
	}

	// Start HTTP API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.With("component", "api"),
			Registry: registry,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := server.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	}

	db, err := openDatabase(cfg, registry, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	createTables(ctx, db, cfg.Devices, log)

	var discover func(ctx context.Context) ([]discovery.Device, error)
	if cfg.Discovery.Enabled {
		browser := discovery.NewBrowser(discovery.Config{
			Service:    cfg.Discovery.Service,
			Domain:     cfg.Discovery.Domain,
			Timeout:    cfg.GetDiscoveryTimeout(),
			Interfaces: cfg.Discovery.Interfaces,
		}, log.With("component", "discovery"))
		discover = browser.Discover

		if cfg.Discovery.CreateTables {
			discoverTables(ctx, db, browser, log)
		}
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete",
		"devices", registry.Len(),
		"vtables", sqltable.Supported(),
	)

	c := console.New(console.Options{
		DB:       db.DB,
		Registry: registry,
		Discover: discover,
		Out:      os.Stdout,
	})

	switch {
	case opts.Execute != "":
		return c.RunScript(ctx, strings.NewReader(opts.Execute))
	case term != nil:
		if err := term.Run(ctx, c); err != nil {
			return fmt.Errorf("console: %w", err)
		}
	default:
		log.Info("waiting for shutdown signal")
		<-ctx.Done()
		log.Info("shutdown signal received, cleaning up")
	}

	log.Info("ircon bridge stopped")
	return nil
}

// newLogger builds the application logger. With a console attached, log
// output goes through the terminal's stderr.
func newLogger(cfg config.LoggingConfig, term *console.Terminal) *logging.Logger {
	w := logging.Output(cfg.Output)
	if term != nil && w != io.Discard {
		w = term.Stderr()
	}
	return logging.NewWithWriter(cfg, version, w)
}

// startBridge wires the registry to MQTT.
func startBridge(ctx context.Context, cfg *config.Config, registry *ircon.Registry,
	mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) (*ircon.Bridge, error) {
	opts := ircon.BridgeOptions{
		Registry: registry,
		MQTT:     &mqttBridgeAdapter{client: mqttClient},
		QoS:      byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0-2
		Logger:   log.With("component", "bridge"),
	}
	// A nil *influxdb.Client must not become a non-nil interface.
	if influxClient != nil {
		opts.Recorder = influxClient
	}

	bridge, err := ircon.NewBridge(opts)
	if err != nil {
		return nil, fmt.Errorf("creating ircon bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting ircon bridge: %w", err)
	}
	return bridge, nil
}

// openDatabase registers the ircon driver and opens the table database.
// Without virtual table support the plain driver is used and device
// tables are unavailable.
func openDatabase(cfg *config.Config, registry *ircon.Registry, log *logging.Logger) (*database.DB, error) {
	driver := fmt.Sprintf("%s_%d", driverPrefix, driverSeq.Add(1))
	err := sqltable.Register(driver, registry, log.With("component", "sqltable"))
	switch {
	case errors.Is(err, sqltable.ErrVTableUnsupported):
		log.Warn("SQLite virtual tables not compiled in, device tables disabled",
			"hint", "build with -tags sqlite_vtable")
		driver = database.DefaultDriver
	case err != nil:
		return nil, fmt.Errorf("registering ircon module: %w", err)
	}

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		DriverName:  driver,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database opened", "path", cfg.Database.Path, "driver", driver)
	return db, nil
}

// createTables declares the configured device tables. A device that is
// unreachable is logged and skipped; its table can be created later from
// the console once the device is up.
func createTables(ctx context.Context, db *database.DB, devices []config.DeviceConfig, log *logging.Logger) {
	if len(devices) == 0 {
		return
	}
	if !sqltable.Supported() {
		log.Warn("ignoring configured devices without virtual table support", "devices", len(devices))
		return
	}

	for _, d := range devices {
		spec := sqltable.TableSpec{
			Name:       d.Table,
			Identifier: d.DeviceIdentifier(),
			Columns:    d.Columns,
		}
		if err := sqltable.EnsureTable(ctx, db.DB, spec); err != nil {
			log.Warn("device table not created", "table", d.Table, "device", spec.Identifier, "error", err)
			continue
		}
		log.Info("device table ready", "table", d.Table, "device", spec.Identifier)
	}
}

// discoverTables browses once at startup and creates a table for every
// device found. Failures are logged; discovery never stops startup.
func discoverTables(ctx context.Context, db *database.DB, browser *discovery.Browser, log *logging.Logger) {
	devices, err := browser.Discover(ctx)
	if err != nil {
		log.Warn("device discovery failed", "error", err)
		return
	}
	if !sqltable.Supported() {
		log.Info("devices discovered", "count", len(devices))
		return
	}
	for _, d := range devices {
		spec := d.TableSpec()
		if err := sqltable.EnsureTable(ctx, db.DB, spec); err != nil {
			log.Warn("discovered device table not created",
				"instance", d.Instance, "device", spec.Identifier, "error", err)
			continue
		}
		log.Info("discovered device table ready", "instance", d.Instance, "table", spec.Name)
	}
}

// recordStats periodically writes share counters to InfluxDB until ctx
// is done.
func recordStats(ctx context.Context, registry *ircon.Registry, influxClient *influxdb.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeStats(registry, influxClient)
		}
	}
}

func writeStats(registry *ircon.Registry, influxClient *influxdb.Client) {
	for _, id := range registry.Identifiers() {
		share, ok := registry.Lookup(id)
		if !ok {
			continue
		}
		st := share.Stats()
		influxClient.WritePoint(influxdb.MeasurementShare,
			map[string]string{"device": id},
			// Counters stay far below MaxInt64.
			map[string]interface{}{
				"connected":   st.Connected,
				"frames_tx":   int64(st.FramesTx),   //nolint:gosec
				"bytes_tx":    int64(st.BytesTx),    //nolint:gosec
				"send_errors": int64(st.SendErrors), //nolint:gosec
				"connects":    int64(st.Connects),   //nolint:gosec
			})
	}
}

// healthCheck verifies the infrastructure connections that are enabled.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (nil if disabled)
//   - influxClient: InfluxDB client to check (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. Bridge handlers do not return errors.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements ircon.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements ircon.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements ircon.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
