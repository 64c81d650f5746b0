package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logger       LoggerConfig       `yaml:"logger"`
	State        StateConfig        `yaml:"state"`
	Devices      DevicesConfig      `yaml:"devices"`
	Thresholds   ThresholdsConfig   `yaml:"thresholds"`
	RPC          RPCConfig          `yaml:"rpc"`
	Events       EventsConfig       `yaml:"events"`
	Redis        RedisConfig        `yaml:"redis"`
	Watch        WatchConfig        `yaml:"watch"`
	Notification NotificationConfig `yaml:"notification"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// StateConfig durable state configuration. Counters, the ENA baseline and the
// last verdict are persisted under Dir so hysteresis survives process restarts.
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// DeviceConfig a single monitored storage device. BaselineIOPS and
// BaselineThroughputMiBs are the AWS-published ceilings for the volume; a zero
// ceiling means the corresponding check is skipped for this device.
type DeviceConfig struct {
	Name                   string  `yaml:"name"`                     // OS device name, e.g. nvme1n1
	BaselineIOPS           float64 `yaml:"baseline_iops"`            // AWS standard IOPS ceiling
	BaselineThroughputMiBs float64 `yaml:"baseline_throughput_mibs"` // AWS standard throughput ceiling
}

// DevicesConfig monitored devices. Primary is mandatory, Secondary optional.
type DevicesConfig struct {
	Primary   DeviceConfig  `yaml:"primary"`
	Secondary *DeviceConfig `yaml:"secondary,omitempty"`
}

// ThresholdsConfig per-dimension breach thresholds
type ThresholdsConfig struct {
	CPUPct            float64 `yaml:"cpu_pct"`             // CPU usage percentage
	MemPct            float64 `yaml:"mem_pct"`             // memory usage percentage
	DiskUtilPct       float64 `yaml:"disk_util_pct"`       // device utilization percentage
	DiskLatencyMs     float64 `yaml:"disk_latency_ms"`     // device read latency (ms)
	AWSBaselinePct    float64 `yaml:"aws_baseline_pct"`    // utilization vs AWS ceiling
	NetworkUtilPct    float64 `yaml:"network_util_pct"`    // network bandwidth utilization
	ErrorRatePct      float64 `yaml:"error_rate_pct"`      // client-observed error rate
	RPCLatencyMs      float64 `yaml:"rpc_latency_ms"`      // mean RPC latency ceiling (ms)
	RPCSuccessRatePct float64 `yaml:"rpc_success_rate_pct"` // success rate floor
	ConsecutiveCount  int     `yaml:"consecutive_count"`   // breaches in a row before a dimension triggers
}

// RPCConfig node RPC probe configuration
type RPCConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Method         string `yaml:"method"` // JSON-RPC method used as liveness probe
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// EventsConfig external event correlator endpoint. When Endpoint is empty,
// start/end notifications only go to the log.
type EventsConfig struct {
	Endpoint string `yaml:"endpoint"`
	Source   string `yaml:"source"` // source label attached to emitted events
}

// RedisConfig optional verdict mirror. When enabled, every published verdict
// is also written to VerdictKey and announced on Channel.
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	VerdictKey string `yaml:"verdict_key"`
	Channel    string `yaml:"channel"`
}

// WatchConfig serve-mode sampling configuration
type WatchConfig struct {
	MetricFile      string `yaml:"metric_file"` // metric history CSV written by the collector
	ResultDir       string `yaml:"result_dir"`  // directory the load generator drops result artifacts into
	NodeHealthFile  string `yaml:"node_health_file"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// NotificationConfig optional operator webhook for dimension warnings
type NotificationConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	if err := validateAndApplyDefaults(&cfg); err != nil {
		return err
	}

	GlobalConfig = &cfg
	return nil
}

// DefaultThresholds returns the threshold defaults used when the config file
// leaves a value unset or invalid.
func DefaultThresholds() ThresholdsConfig {
	return ThresholdsConfig{
		CPUPct:            90,
		MemPct:            90,
		DiskUtilPct:       90,
		DiskLatencyMs:     10,
		AWSBaselinePct:    90,
		NetworkUtilPct:    90,
		ErrorRatePct:      5,
		RPCLatencyMs:      1000,
		RPCSuccessRatePct: 95,
		ConsecutiveCount:  3,
	}
}

// validateAndApplyDefaults fills in defaults and rejects configurations the
// engine cannot run with.
func validateAndApplyDefaults(cfg *Config) error {
	if cfg.Devices.Primary.Name == "" {
		return fmt.Errorf("devices.primary.name is required")
	}
	if cfg.Devices.Secondary != nil && cfg.Devices.Secondary.Name == "" {
		cfg.Devices.Secondary = nil
	}

	defaults := DefaultThresholds()
	t := &cfg.Thresholds
	if t.CPUPct <= 0 {
		t.CPUPct = defaults.CPUPct
	}
	if t.MemPct <= 0 {
		t.MemPct = defaults.MemPct
	}
	if t.DiskUtilPct <= 0 {
		t.DiskUtilPct = defaults.DiskUtilPct
	}
	if t.DiskLatencyMs <= 0 {
		t.DiskLatencyMs = defaults.DiskLatencyMs
	}
	if t.AWSBaselinePct <= 0 {
		t.AWSBaselinePct = defaults.AWSBaselinePct
	}
	if t.NetworkUtilPct <= 0 {
		t.NetworkUtilPct = defaults.NetworkUtilPct
	}
	if t.ErrorRatePct <= 0 {
		t.ErrorRatePct = defaults.ErrorRatePct
	}
	if t.RPCLatencyMs <= 0 {
		t.RPCLatencyMs = defaults.RPCLatencyMs
	}
	if t.RPCSuccessRatePct <= 0 {
		t.RPCSuccessRatePct = defaults.RPCSuccessRatePct
	}
	if t.ConsecutiveCount <= 0 {
		t.ConsecutiveCount = defaults.ConsecutiveCount
	}

	if cfg.State.Dir == "" {
		cfg.State.Dir = "/tmp/loadsentry"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.RPC.TimeoutSeconds <= 0 {
		cfg.RPC.TimeoutSeconds = 3
	}
	if cfg.RPC.Method == "" {
		cfg.RPC.Method = "eth_blockNumber"
	}
	if cfg.Watch.IntervalSeconds <= 0 {
		cfg.Watch.IntervalSeconds = 10
	}
	if cfg.Events.Source == "" {
		cfg.Events.Source = "loadsentry"
	}
	if cfg.Redis.Enabled {
		if cfg.Redis.VerdictKey == "" {
			cfg.Redis.VerdictKey = "loadsentry:verdict"
		}
		if cfg.Redis.Channel == "" {
			cfg.Redis.Channel = "loadsentry:verdicts"
		}
	}

	return nil
}
