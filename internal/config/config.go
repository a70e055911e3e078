// Package config loads and validates the YAML configuration shared by the
// fieldnode and fieldgated binaries. Every field has a usable default so an
// empty file (or no file at all) yields a runnable configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "10s", "2m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full configuration tree. The node and gateway binaries each
// read only their own sections; sharing one file keeps the radio parameters
// (which must match on both ends of the link) in a single place.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Node     NodeConfig    `yaml:"node"`
	Radio    RadioConfig   `yaml:"radio"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Egress   EgressConfig  `yaml:"egress"`
	Uplink   UplinkConfig  `yaml:"uplink"`
}

// NodeConfig drives the sensor node cycle loop and transmit policy.
type NodeConfig struct {
	ID            uint8    `yaml:"id"`
	CycleInterval Duration `yaml:"cycle_interval"`

	// AdaptiveTransmit false means every cycle transmits; the encode and
	// retry path is identical in both modes.
	AdaptiveTransmit  bool    `yaml:"adaptive_transmit"`
	HumidityThreshold float32 `yaml:"humidity_threshold"`
	DistanceThreshold float32 `yaml:"distance_threshold"`
	HeartbeatEvery    uint32  `yaml:"heartbeat_every"`

	MaxAttempts  int      `yaml:"max_attempts"`
	RetryBackoff Duration `yaml:"retry_backoff"`
	StatsEvery   uint32   `yaml:"stats_every"`

	Alerts AlertConfig `yaml:"alerts"`
}

// AlertConfig bounds threshold alerting on the node.
type AlertConfig struct {
	Enabled      bool     `yaml:"enabled"`
	HumidityHigh float32  `yaml:"humidity_high"`
	HumidityLow  float32  `yaml:"humidity_low"`
	DistanceLow  float32  `yaml:"distance_low"`
	Cooldown     Duration `yaml:"cooldown"`
}

// RadioConfig selects the radio driver and the RF parameters. The RF block
// must be byte-identical on node and gateway or they will not hear each
// other.
type RadioConfig struct {
	Driver string `yaml:"driver"` // "loop" | "tcp" | "serial"
	Addr   string `yaml:"addr"`   // tcp: modem bridge address
	Port   string `yaml:"port"`   // serial: device path
	Baud   int    `yaml:"baud"`

	FrequencyMHz    float64 `yaml:"frequency_mhz"`
	BandwidthKHz    float64 `yaml:"bandwidth_khz"`
	SpreadingFactor int     `yaml:"spreading_factor"`
	CodingRate      int     `yaml:"coding_rate"`
	SyncWord        uint8   `yaml:"sync_word"`
	TxPowerDBm      int     `yaml:"tx_power_dbm"`
	PreambleLen     int     `yaml:"preamble_len"`
}

// GatewayConfig drives the collector daemon.
type GatewayConfig struct {
	ID                  string   `yaml:"id"`
	ListenAddr          string   `yaml:"listen_addr"`
	DBPath              string   `yaml:"db_path"`
	PollInterval        Duration `yaml:"poll_interval"`
	StatsInterval       Duration `yaml:"stats_interval"`
	PresenceThresholdCm float32  `yaml:"presence_threshold_cm"`

	// WallClock false marks this gateway as having no synchronized time
	// source; record timestamps then use the boot-relative form.
	WallClock bool `yaml:"wall_clock"`

	// Simulate runs an embedded sensor node over an in-memory radio pair
	// so a development gateway produces live data with no hardware.
	Simulate bool `yaml:"simulate"`
}

// EgressConfig enables the optional record sinks. All disabled is valid.
type EgressConfig struct {
	Line LineEgressConfig `yaml:"line"`
	MQTT MQTTEgressConfig `yaml:"mqtt"`
	NATS NATSEgressConfig `yaml:"nats"`
}

type LineEgressConfig struct {
	Enabled bool `yaml:"enabled"`
}

type MQTTEgressConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type NATSEgressConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// UplinkConfig drives the store-and-forward push to the upstream collector.
type UplinkConfig struct {
	Enabled   bool     `yaml:"enabled"`
	URL       string   `yaml:"url"`
	Interval  Duration `yaml:"interval"`
	BatchSize int      `yaml:"batch_size"`
	Timeout   Duration `yaml:"timeout"`
}

// Default returns the configuration used when a field (or the whole file)
// is absent.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Node: NodeConfig{
			ID:                1,
			CycleInterval:     Duration(10 * time.Second),
			AdaptiveTransmit:  true,
			HumidityThreshold: 5.0,
			DistanceThreshold: 10.0,
			HeartbeatEvery:    10,
			MaxAttempts:       3,
			RetryBackoff:      Duration(100 * time.Millisecond),
			StatsEvery:        10,
			Alerts: AlertConfig{
				Enabled:      true,
				HumidityHigh: 90.0,
				HumidityLow:  10.0,
				DistanceLow:  100.0,
				Cooldown:     Duration(5 * time.Minute),
			},
		},
		Radio: RadioConfig{
			Driver:          "loop",
			Addr:            "127.0.0.1:4403",
			Port:            "/dev/ttyUSB0",
			Baud:            115200,
			FrequencyMHz:    915.0,
			BandwidthKHz:    125.0,
			SpreadingFactor: 9,
			CodingRate:      7,
			SyncWord:        0x12,
			TxPowerDBm:      20,
			PreambleLen:     8,
		},
		Gateway: GatewayConfig{
			ID:                  "gateway-1",
			ListenAddr:          ":8080",
			DBPath:              "fieldgate.db",
			PollInterval:        Duration(50 * time.Millisecond),
			StatsInterval:       Duration(60 * time.Second),
			PresenceThresholdCm: 100.0,
			WallClock:           true,
		},
		Egress: EgressConfig{
			Line: LineEgressConfig{Enabled: true},
			MQTT: MQTTEgressConfig{
				Broker:   "tcp://127.0.0.1:1883",
				Topic:    "fieldgate/records",
				ClientID: "fieldgated",
			},
			NATS: NATSEgressConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "fieldgate.records",
			},
		},
		Uplink: UplinkConfig{
			URL:       "http://127.0.0.1:5000/data",
			Interval:  Duration(30 * time.Second),
			BatchSize: 50,
			Timeout:   Duration(10 * time.Second),
		},
	}
}

// Load reads the YAML file at path on top of the defaults and validates the
// result. An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	switch c.Radio.Driver {
	case "loop", "tcp", "serial":
	default:
		return fmt.Errorf("config: unknown radio driver %q", c.Radio.Driver)
	}
	if c.Radio.SpreadingFactor < 7 || c.Radio.SpreadingFactor > 12 {
		return fmt.Errorf("config: spreading factor %d out of range 7-12", c.Radio.SpreadingFactor)
	}
	if c.Radio.CodingRate < 5 || c.Radio.CodingRate > 8 {
		return fmt.Errorf("config: coding rate %d out of range 5-8", c.Radio.CodingRate)
	}
	if c.Node.HeartbeatEvery == 0 {
		return fmt.Errorf("config: node heartbeat_every must be at least 1")
	}
	if c.Node.MaxAttempts < 1 {
		return fmt.Errorf("config: node max_attempts must be at least 1")
	}
	if c.Node.CycleInterval.Std() <= 0 {
		return fmt.Errorf("config: node cycle_interval must be positive")
	}
	if c.Gateway.ListenAddr == "" {
		return fmt.Errorf("config: gateway listen_addr must not be empty")
	}
	if c.Gateway.PollInterval.Std() <= 0 {
		return fmt.Errorf("config: gateway poll_interval must be positive")
	}
	if c.Uplink.Enabled {
		if c.Uplink.URL == "" {
			return fmt.Errorf("config: uplink enabled without url")
		}
		if c.Uplink.BatchSize < 1 {
			return fmt.Errorf("config: uplink batch_size must be at least 1")
		}
	}
	if c.Egress.MQTT.Enabled && c.Egress.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt egress enabled without broker")
	}
	if c.Egress.NATS.Enabled && c.Egress.NATS.URL == "" {
		return fmt.Errorf("config: nats egress enabled without url")
	}
	return nil
}
