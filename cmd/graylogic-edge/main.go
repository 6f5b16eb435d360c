// Gray Logic Edge - Wireless Sensor Node
//
// This is the main entry point for a Gray Logic edge node. The node:
//   - Joins a Wi-Fi network in station mode
//   - Opens an MQTT session to the site broker
//   - Subscribes to every topic and logs what arrives
//   - Reports its IP info on a fixed interval
//
// Configuration is read from configs/edge.yaml, or the path in
// GRAYLOGIC_EDGE_CONFIG or --config. Credentials can be baked in at build
// time so a freshly flashed node runs without a config file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-edge/internal/events"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/mqtt5"
	"github.com/nerrad567/gray-logic-edge/internal/link"
	"github.com/nerrad567/gray-logic-edge/internal/link/sim"
	"github.com/nerrad567/gray-logic-edge/internal/link/wpa"
	"github.com/nerrad567/gray-logic-edge/internal/metrics"
	"github.com/nerrad567/gray-logic-edge/internal/orchestrator"
	"github.com/nerrad567/gray-logic-edge/internal/session"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Build-time credentials. Empty values leave the config untouched.
// Example: go build -ldflags "-X main.wifiSSID=HAL -X main.wifiPassword=..."
var (
	wifiSSID     = ""
	wifiPassword = ""
	mqttUsername = ""
	mqttPassword = ""
)

// Default configuration file path
const defaultConfigPath = "configs/edge.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination for --version and --help output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("graylogic-edge", pflag.ContinueOnError)
	flags.SetOutput(stdout)
	configPath := flags.StringP("config", "c", getConfigPath(), "path to the YAML configuration file")
	showVersion := flags.Bool("version", false, "print version information and exit")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Fprintf(stdout, "graylogic-edge %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}
	if extra := flags.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Edge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(*configPath, config.BuildDefaults{
		WiFiSSID:     wifiSSID,
		WiFiPassword: wifiPassword,
		MQTTUsername: mqttUsername,
		MQTTPassword: mqttPassword,
	})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version).With("node", cfg.Node.ID)
	log.Info("configuration loaded",
		"path", *configPath,
		"driver", cfg.WiFi.Driver,
		"protocol", cfg.MQTT.Protocol,
	)

	driver, restarts, err := newLinkDriver(cfg, log)
	if err != nil {
		return fmt.Errorf("creating link driver: %w", err)
	}
	manager := link.NewManager(driver)
	manager.SetLogger(log.Component("link"))

	policy := events.KeepEmptyPayloads
	if cfg.Events.DropEmptyPayloads {
		policy = events.DropEmptyPayloads
	}

	rt := &orchestrator.Runtime{
		Config:             cfg,
		Logger:             log,
		Link:               manager,
		Transport:          newTransport(cfg, log),
		Handler:            events.NewHandler(log.Component("events"), policy),
		SupervisorRestarts: restarts,
	}

	if cfg.Metrics.Listen != "" {
		rt.Metrics = metrics.New(cfg.Node.ID)
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Node.ID)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		rt.Telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	orch, err := orchestrator.New(rt)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	if err := orch.Run(ctx); err != nil {
		return err
	}

	log.Info("Gray Logic Edge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_EDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_EDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newLinkDriver builds the configured link driver.
//
// Returns:
//   - link.Driver: the driver
//   - func() int: supervisor restart count, or nil when nothing is supervised
//   - error: if the driver settings are invalid
func newLinkDriver(cfg *config.Config, log *logging.Logger) (link.Driver, func() int, error) {
	switch cfg.WiFi.Driver {
	case "sim":
		simCfg := sim.Config{
			Interface:      cfg.WiFi.Interface,
			AssociateAfter: cfg.WiFi.Sim.AssociateAfter,
		}
		if cfg.WiFi.Sim.Address != "" {
			prefix, err := netip.ParsePrefix(cfg.WiFi.Sim.Address)
			if err != nil {
				return nil, nil, fmt.Errorf("wifi.sim.address: %w", err)
			}
			simCfg.Address = prefix
		}
		return sim.New(simCfg), nil, nil

	case "wpa":
		d := wpa.New(wpa.Config{
			Interface:        cfg.WiFi.Interface,
			SupplicantBinary: cfg.WiFi.WPA.SupplicantBinary,
			CLIBinary:        cfg.WiFi.WPA.CLIBinary,
			StateDir:         cfg.WiFi.WPA.StateDir,
			CtrlDir:          cfg.WiFi.WPA.CtrlDir,
			Managed:          cfg.WiFi.WPA.Managed,
		})
		d.SetLogger(log.Component("wpa"))
		restarts := func() int {
			stats, ok := d.SupervisorStats()
			if !ok {
				return 0
			}
			return stats.RestartCount
		}
		return d, restarts, nil

	default:
		return nil, nil, fmt.Errorf("unknown driver %q", cfg.WiFi.Driver)
	}
}

// newTransport builds the broker transport for the configured protocol.
func newTransport(cfg *config.Config, log *logging.Logger) session.Transport {
	tlog := log.Component("mqtt")
	if cfg.MQTT.Protocol == "5" {
		t := mqtt5.New(cfg.MQTT)
		t.SetLogger(tlog)
		return t
	}
	t := mqtt.New(cfg.MQTT)
	t.SetLogger(tlog)
	return t
}
