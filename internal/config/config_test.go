package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Port: 8080,
		InverterModbusTcp: InverterModbusTCPConfig{
			Host:                "192.168.1.10",
			Port:                502,
			UnitId:              247,
			TimeoutMillis:       1000,
			LimiterMode:         "export_pct",
			ReconnectMinSeconds: 1,
			ReconnectMaxSeconds: 60,
		},
		PriceFeed: PriceFeedConfig{
			URL:             "http://tariff.local/price",
			TimeoutMillis:   2000,
			MaxStaleSeconds: 900,
		},
		TelemetryFeed: TelemetryFeedConfig{
			URL:             "http://gateway.local/telemetry",
			TimeoutMillis:   2000,
			MaxStaleSeconds: 120,
		},
		Control: ControlConfig{
			PollIntervalMillis: 5000,
			RatedCapacityW:     10000,
			LimitSmoothing:     0.5,
			MinPctStep:         1,
		},
		Recorder: RecorderConfig{
			DBPath: "sunfence.db",
		},
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.InverterModbusTcp.Host = "" }},
		{"unknown limiter mode", func(c *Config) { c.InverterModbusTcp.LimiterMode = "percent" }},
		{"reconnect max below min", func(c *Config) {
			c.InverterModbusTcp.ReconnectMinSeconds = 10
			c.InverterModbusTcp.ReconnectMaxSeconds = 5
		}},
		{"poll interval too short", func(c *Config) { c.Control.PollIntervalMillis = 100 }},
		{"zero rated capacity", func(c *Config) { c.Control.RatedCapacityW = 0 }},
		{"smoothing above one", func(c *Config) { c.Control.LimitSmoothing = 1.5 }},
		{"smoothing zero", func(c *Config) { c.Control.LimitSmoothing = 0 }},
		{"pct step out of range", func(c *Config) { c.Control.MinPctStep = 120 }},
		{"missing price url", func(c *Config) { c.PriceFeed.URL = "" }},
		{"missing telemetry url", func(c *Config) { c.TelemetryFeed.URL = "" }},
		{"zero staleness bound", func(c *Config) { c.PriceFeed.MaxStaleSeconds = 0 }},
		{"missing db path", func(c *Config) { c.Recorder.DBPath = "" }},
		{"negative auto charge", func(c *Config) { c.Control.AutoChargeW = -100 }},
		{"bad mqtt topic", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.BaseTopic = "bad/topic"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateNormalizesMQTTTopic(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.Enabled = true
	cfg.MQTT.BaseTopic = "SunFence_1"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sunfence_1", cfg.MQTT.BaseTopic)
}

func TestCheckMQTTTopic(t *testing.T) {
	topic, err := CheckMQTTTopic("Sunfence")
	require.NoError(t, err)
	assert.Equal(t, "sunfence", topic)

	_, err = CheckMQTTTopic("a/b")
	assert.Error(t, err)

	_, err = CheckMQTTTopic("")
	assert.Error(t, err)
}
