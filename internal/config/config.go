package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Port     uint `mapstructure:"port"`
	HttpLog  bool `mapstructure:"http_log"`

	InverterModbusTcp InverterModbusTCPConfig `mapstructure:"inverter_modbus_tcp"`
	PriceFeed         PriceFeedConfig         `mapstructure:"price_feed"`
	TelemetryFeed     TelemetryFeedConfig     `mapstructure:"telemetry_feed"`
	Control           ControlConfig           `mapstructure:"control"`
	Recorder          RecorderConfig          `mapstructure:"recorder"`
	MQTT              MQTTConfig              `mapstructure:"mqtt"`
}

type InverterModbusTCPConfig struct {
	Host                    string
	Port                    uint
	UnitId                  uint    `mapstructure:"unit_id"`
	TimeoutMillis           uint32  `mapstructure:"timeout_millis"`
	LimiterMode             string  `mapstructure:"limiter_mode"`
	FullExportDisablesLimit bool    `mapstructure:"full_export_disables_limit"`
	ReconnectMinSeconds     float64 `mapstructure:"reconnect_min_seconds"`
	ReconnectMaxSeconds     float64 `mapstructure:"reconnect_max_seconds"`
}

type PriceFeedConfig struct {
	URL                  string
	TimeoutMillis        uint32  `mapstructure:"timeout_millis"`
	MaxStaleSeconds      uint32  `mapstructure:"max_stale_seconds"`
	ExportCostThresholdC float64 `mapstructure:"export_cost_threshold_c"`
}

type TelemetryFeedConfig struct {
	URL                   string
	TimeoutMillis         uint32 `mapstructure:"timeout_millis"`
	MaxStaleSeconds       uint32 `mapstructure:"max_stale_seconds"`
	PBatPositiveIsCharge  bool   `mapstructure:"pbat_positive_is_charge"`
	PGridPositiveIsImport bool   `mapstructure:"pgrid_positive_is_import"`
}

type ControlConfig struct {
	PollIntervalMillis      uint32  `mapstructure:"poll_interval_millis"`
	RatedCapacityW          float64 `mapstructure:"rated_capacity_w"`
	GridImportBiasW         float64 `mapstructure:"grid_import_bias_w"`
	BatteryIdleThresholdW   float64 `mapstructure:"battery_idle_threshold_w"`
	AutoChargeBelowSoCPct   float64 `mapstructure:"auto_charge_below_soc_pct"`
	AutoChargeW             float64 `mapstructure:"auto_charge_w"`
	AutoChargeMaxW          float64 `mapstructure:"auto_charge_max_w"`
	LimitSmoothing          float64 `mapstructure:"limit_smoothing"`
	MinPctStep              float64 `mapstructure:"min_pct_step"`
	MinSecondsBetweenWrites uint32  `mapstructure:"min_seconds_between_writes"`
}

type RecorderConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type MQTTConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Username  string
	Password  string
	BaseTopic string `mapstructure:"base_topic"`
}

// Validate enforces the bounds the loop depends on. Any error here is fatal
// at startup, before the loop begins.
func (c *Config) Validate() error {
	if c.InverterModbusTcp.Host == "" {
		return errors.New("config param inverter_modbus_tcp.host is required")
	}
	if c.InverterModbusTcp.LimiterMode != "active_pct" && c.InverterModbusTcp.LimiterMode != "export_pct" {
		return fmt.Errorf("config param inverter_modbus_tcp.limiter_mode must be active_pct or export_pct, got %q", c.InverterModbusTcp.LimiterMode)
	}
	if c.InverterModbusTcp.ReconnectMinSeconds <= 0 || c.InverterModbusTcp.ReconnectMaxSeconds < c.InverterModbusTcp.ReconnectMinSeconds {
		return errors.New("config params inverter_modbus_tcp.reconnect_{min,max}_seconds must be > 0 and max >= min")
	}
	if c.Control.PollIntervalMillis < 1000 {
		return errors.New("config param control.poll_interval_millis should be >= 1000")
	}
	if c.Control.RatedCapacityW <= 0 {
		return errors.New("config param control.rated_capacity_w should be > 0")
	}
	if c.Control.LimitSmoothing <= 0 || c.Control.LimitSmoothing > 1 {
		return errors.New("config param control.limit_smoothing should be in (0, 1]")
	}
	if c.Control.MinPctStep < 0 || c.Control.MinPctStep > 100 {
		return errors.New("config param control.min_pct_step should be in [0, 100]")
	}
	if c.Control.AutoChargeW < 0 || c.Control.AutoChargeMaxW < 0 {
		return errors.New("config params control.auto_charge_w and control.auto_charge_max_w should be >= 0")
	}
	if c.PriceFeed.URL == "" || c.TelemetryFeed.URL == "" {
		return errors.New("config params price_feed.url and telemetry_feed.url are required")
	}
	if c.PriceFeed.MaxStaleSeconds == 0 || c.TelemetryFeed.MaxStaleSeconds == 0 {
		return errors.New("config params price_feed.max_stale_seconds and telemetry_feed.max_stale_seconds should be > 0")
	}
	if c.Recorder.DBPath == "" {
		return errors.New("config param recorder.db_path is required")
	}
	if c.MQTT.Enabled {
		topic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
		if err != nil {
			return err
		}
		c.MQTT.BaseTopic = topic
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	if !baseTopicRegexp.MatchString(lowerBaseTopic) {
		return "", errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
