package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "loop", cfg.Radio.Driver)
	assert.Equal(t, uint32(10), cfg.Node.HeartbeatEvery)
	assert.Equal(t, 10*time.Second, cfg.Node.CycleInterval.Std())
	assert.True(t, cfg.Gateway.WallClock)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
node:
  id: 7
  cycle_interval: 2s
  humidity_threshold: 2.5
radio:
  driver: tcp
  addr: "10.0.0.5:4403"
gateway:
  presence_threshold_cm: 80
uplink:
  enabled: true
  url: http://collector:5000/data
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint8(7), cfg.Node.ID)
	assert.Equal(t, 2*time.Second, cfg.Node.CycleInterval.Std())
	assert.Equal(t, float32(2.5), cfg.Node.HumidityThreshold)
	assert.Equal(t, "tcp", cfg.Radio.Driver)
	assert.Equal(t, "10.0.0.5:4403", cfg.Radio.Addr)
	assert.Equal(t, float32(80), cfg.Gateway.PresenceThresholdCm)
	assert.True(t, cfg.Uplink.Enabled)

	// Untouched fields keep their defaults.
	assert.Equal(t, 9, cfg.Radio.SpreadingFactor)
	assert.Equal(t, uint32(10), cfg.Node.HeartbeatEvery)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown radio driver", func(c *Config) { c.Radio.Driver = "carrier-pigeon" }},
		{"spreading factor too low", func(c *Config) { c.Radio.SpreadingFactor = 6 }},
		{"coding rate too high", func(c *Config) { c.Radio.CodingRate = 9 }},
		{"zero heartbeat period", func(c *Config) { c.Node.HeartbeatEvery = 0 }},
		{"zero attempts", func(c *Config) { c.Node.MaxAttempts = 0 }},
		{"empty listen addr", func(c *Config) { c.Gateway.ListenAddr = "" }},
		{"uplink without url", func(c *Config) { c.Uplink.Enabled = true; c.Uplink.URL = "" }},
		{"mqtt without broker", func(c *Config) { c.Egress.MQTT.Enabled = true; c.Egress.MQTT.Broker = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node:\n  cycle_interval: forever\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}
