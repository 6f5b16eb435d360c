package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Station credential capacities. These mirror the fixed-size buffers of the
// station-mode configuration, so values longer than this are rejected before
// they ever reach a driver.
const (
	MaxSSIDLength     = 32
	MaxPasswordLength = 64
)

// Config is the root configuration structure for Gray Logic Edge.
// Values are layered: defaults, build-time values, YAML file, environment.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	WiFi     WiFiConfig     `yaml:"wifi"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Events   EventsConfig   `yaml:"events"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	ID string `yaml:"id"`
}

// WiFiConfig contains station-mode link settings.
type WiFiConfig struct {
	// Driver selects the link driver: "wpa" or "sim".
	Driver    string `yaml:"driver"`
	Interface string `yaml:"interface"`
	SSID      string `yaml:"ssid"`
	Password  string `yaml:"password"`

	// PollInterval is the sleep between association checks.
	PollInterval time.Duration `yaml:"poll_interval"`

	// AssociateTimeout bounds the initial association wait. 0 waits forever.
	AssociateTimeout time.Duration `yaml:"associate_timeout"`

	// Reassociate enables the link supervisor during monitoring.
	Reassociate bool `yaml:"reassociate"`

	WPA WPAConfig `yaml:"wpa"`
	Sim SimConfig `yaml:"sim"`
}

// WPAConfig configures the wpa_supplicant driver.
type WPAConfig struct {
	SupplicantBinary string `yaml:"supplicant_binary"`
	CLIBinary        string `yaml:"cli_binary"`
	StateDir         string `yaml:"state_dir"`
	CtrlDir          string `yaml:"ctrl_dir"`

	// Managed starts and supervises wpa_supplicant. When false an
	// externally run supplicant is expected on CtrlDir.
	Managed bool `yaml:"managed"`
}

// SimConfig configures the simulated link driver.
type SimConfig struct {
	// AssociateAfter is the number of status polls before the link reports associated.
	AssociateAfter int    `yaml:"associate_after"`
	Address        string `yaml:"address"`
}

// MQTTConfig contains broker session settings.
type MQTTConfig struct {
	// Broker is the broker URI, e.g. mqtt://hal.lan or mqtts://broker:8883.
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`

	// Protocol selects the wire protocol: "3.1.1" or "5".
	Protocol string `yaml:"protocol"`

	Auth      MQTTAuthConfig      `yaml:"auth"`
	KeepAlive int                 `yaml:"keep_alive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// EventsConfig controls inbound event handling.
type EventsConfig struct {
	// DropEmptyPayloads silences messages with a zero-length payload
	// (retained-message deletions and keep-alive markers).
	DropEmptyPayloads bool `yaml:"drop_empty_payloads"`
	BufferSize        int  `yaml:"buffer_size"`
}

// MonitorConfig controls the status loop.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	// Listen is the address for /metrics. Empty disables the listener.
	Listen string `yaml:"listen"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// BuildDefaults carries values baked into the binary at link time.
// Empty fields leave the built-in defaults untouched.
type BuildDefaults struct {
	WiFiSSID     string
	WiFiPassword string
	MQTTUsername string
	MQTTPassword string
}

// Load reads configuration and applies overrides.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. Build-time values (ldflags)
//  3. YAML file values, if the file exists
//  4. Environment variables (GRAYLOGIC_EDGE_SECTION_KEY)
//
// A missing file is not an error: a node flashed with build-time
// credentials can run without one.
func Load(path string, build BuildDefaults) (*Config, error) {
	cfg := defaultConfig()
	applyBuildDefaults(cfg, build)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID: "edge-001",
		},
		WiFi: WiFiConfig{
			Driver:           "wpa",
			Interface:        "wlan0",
			PollInterval:     time.Second,
			AssociateTimeout: 2 * time.Minute,
			Reassociate:      true,
			WPA: WPAConfig{
				SupplicantBinary: "/usr/sbin/wpa_supplicant",
				CLIBinary:        "/usr/sbin/wpa_cli",
				StateDir:         "./data/wpa",
				CtrlDir:          "/run/wpa_supplicant",
				Managed:          true,
			},
			Sim: SimConfig{
				AssociateAfter: 2,
				Address:        "192.168.4.20/24",
			},
		},
		MQTT: MQTTConfig{
			Broker:    "mqtt://hal.lan",
			ClientID:  "graylogic-edge",
			Protocol:  "3.1.1",
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Events: EventsConfig{
			DropEmptyPayloads: true,
			BufferSize:        64,
		},
		Monitor: MonitorConfig{
			Interval: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

func applyBuildDefaults(cfg *Config, build BuildDefaults) {
	if build.WiFiSSID != "" {
		cfg.WiFi.SSID = build.WiFiSSID
	}
	if build.WiFiPassword != "" {
		cfg.WiFi.Password = build.WiFiPassword
	}
	if build.MQTTUsername != "" {
		cfg.MQTT.Auth.Username = build.MQTTUsername
	}
	if build.MQTTPassword != "" {
		cfg.MQTT.Auth.Password = build.MQTTPassword
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_EDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// WiFi
	if v := os.Getenv("GRAYLOGIC_EDGE_WIFI_SSID"); v != "" {
		cfg.WiFi.SSID = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_WIFI_PASSWORD"); v != "" {
		cfg.WiFi.Password = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_WIFI_INTERFACE"); v != "" {
		cfg.WiFi.Interface = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_EDGE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_EDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_EDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Credential capacity is not checked here: the link manager
// owns that rule and reports it as a configuration failure of the link.
func (c *Config) Validate() error {
	var errs []string

	if c.Node.ID == "" {
		errs = append(errs, "node.id is required")
	}

	switch c.WiFi.Driver {
	case "wpa", "sim":
	default:
		errs = append(errs, `wifi.driver must be "wpa" or "sim"`)
	}
	if c.WiFi.Driver == "wpa" && c.WiFi.Interface == "" {
		errs = append(errs, "wifi.interface is required for the wpa driver")
	}
	if c.WiFi.PollInterval <= 0 {
		errs = append(errs, "wifi.poll_interval must be positive")
	}
	if c.WiFi.AssociateTimeout < 0 {
		errs = append(errs, "wifi.associate_timeout must not be negative")
	}

	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	} else if u, err := url.Parse(c.MQTT.Broker); err != nil || u.Host == "" {
		errs = append(errs, "mqtt.broker must be a URI with scheme and host")
	}
	switch c.MQTT.Protocol {
	case "3.1.1", "5":
	default:
		errs = append(errs, `mqtt.protocol must be "3.1.1" or "5"`)
	}

	if c.Events.BufferSize < 1 {
		errs = append(errs, "events.buffer_size must be at least 1")
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, "monitor.interval must be positive")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReconnectInitialDelay returns the initial MQTT reconnect delay as a Duration.
func (c MQTTConfig) ReconnectInitialDelay() time.Duration {
	return time.Duration(c.Reconnect.InitialDelay) * time.Second
}

// ReconnectMaxDelay returns the maximum MQTT reconnect delay as a Duration.
func (c MQTTConfig) ReconnectMaxDelay() time.Duration {
	return time.Duration(c.Reconnect.MaxDelay) * time.Second
}

// KeepAliveDuration returns the MQTT keepalive as a Duration.
func (c MQTTConfig) KeepAliveDuration() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}
