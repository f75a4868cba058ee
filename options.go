package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"curtis-cluster/canlog"
	"curtis-cluster/ecu"
	"curtis-cluster/lighting"

	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "/etc/curtis-cluster/config.yaml"

// Config holds all service configuration.
type Config struct {
	LogLevel int `yaml:"log_level"` // 0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG

	Vehicle  VehicleConfig  `yaml:"vehicle"`
	Lighting LightingConfig `yaml:"lighting"`
	Pins     PinsConfig     `yaml:"pins"`
	IO       IOConfig       `yaml:"io"`
	Source   SourceConfig   `yaml:"source"`
	Redis    RedisConfig    `yaml:"redis"`
	Feed     FeedConfig     `yaml:"feed"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

type VehicleConfig struct {
	BatteryCapacityKWh     float64 `yaml:"battery_capacity_kwh"`
	FullChargeVoltage      float64 `yaml:"full_charge_voltage"`
	GearboxRatio           float64 `yaml:"gearbox_ratio"`            // metres per motor revolution
	DefaultConsumptionWhKm float64 `yaml:"default_consumption_whkm"` // seeds the range estimate
	StaleTimeoutMs         int     `yaml:"stale_timeout_ms"`
}

type LightingConfig struct {
	Enabled             bool `yaml:"enabled"`
	ActiveLow           bool `yaml:"active_low"`
	BlinkIntervalMs     int  `yaml:"blink_interval_ms"`
	SoftTurnSignalMax   int  `yaml:"soft_turn_signal_max"`   // blink cycles
	HardTurnSignalLimit int  `yaml:"hard_turn_signal_limit"` // poll intervals held
	PollIntervalMs      int  `yaml:"poll_interval_ms"`
	DebounceMs          int  `yaml:"debounce_ms"`
}

// PinsConfig uses BCM numbering.
type PinsConfig struct {
	LeftTurnOut     int `yaml:"left_turn_out"`
	RightTurnOut    int `yaml:"right_turn_out"`
	HighbeamOut     int `yaml:"highbeam_out"`
	RunningLightOut int `yaml:"running_light_out"`
	BrakeLightOut   int `yaml:"brake_light_out"`
	HornOut         int `yaml:"horn_out"`

	LeftTurnIn     int `yaml:"left_turn_in"`
	RightTurnIn    int `yaml:"right_turn_in"`
	HighbeamIn     int `yaml:"highbeam_in"`
	RunningLightIn int `yaml:"running_light_in"`
	BrakeLightIn   int `yaml:"brake_light_in"`
	HornIn         int `yaml:"horn_in"`
}

type IOConfig struct {
	Type string `yaml:"type"` // "gpio" or "debug"
}

type SourceConfig struct {
	Type      string `yaml:"type"` // "stdin", "file", "serial" or "can"
	Path      string `yaml:"path"` // log file or serial device
	BaudRate  int    `yaml:"baud_rate"`
	CANDevice string `yaml:"can_device"`
	Replay    bool   `yaml:"replay"`
	Follow    bool   `yaml:"follow"`
}

type RedisConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Addr              string `yaml:"addr"`
	Port              int    `yaml:"port"`
	PublishIntervalMs int    `yaml:"publish_interval_ms"`
}

type FeedConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	IntervalMs int    `yaml:"interval_ms"`
}

type SnapshotConfig struct {
	Path      string `yaml:"path"`
	IntervalS int    `yaml:"interval_s"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	pins := lighting.DefaultPins()
	return &Config{
		LogLevel: int(LogLevelInfo),
		Vehicle: VehicleConfig{
			BatteryCapacityKWh:     ecu.DefaultBatteryCapacity / 3.6e6,
			FullChargeVoltage:      ecu.FullChargeVoltage,
			GearboxRatio:           ecu.GearboxAndWheelRatio,
			DefaultConsumptionWhKm: ecu.DefaultConsumption / 3.6,
			StaleTimeoutMs:         int(ecu.ECUDataTimeout / time.Millisecond),
		},
		Lighting: LightingConfig{
			Enabled:             true,
			ActiveLow:           true,
			BlinkIntervalMs:     int(lighting.DefaultBlinkInterval / time.Millisecond),
			SoftTurnSignalMax:   lighting.DefaultSoftTurnSignalMax,
			HardTurnSignalLimit: lighting.DefaultHardTurnSignalLimit,
			PollIntervalMs:      int(lighting.DefaultPollInterval / time.Millisecond),
			DebounceMs:          int(lighting.DefaultDebounceDelay / time.Millisecond),
		},
		Pins: PinsConfig{
			LeftTurnOut:     pins.Outputs[lighting.LeftTurn],
			RightTurnOut:    pins.Outputs[lighting.RightTurn],
			HighbeamOut:     pins.Outputs[lighting.Highbeam],
			RunningLightOut: pins.Outputs[lighting.RunningLight],
			BrakeLightOut:   pins.Outputs[lighting.BrakeLight],
			HornOut:         pins.Outputs[lighting.Horn],
			LeftTurnIn:      pins.Inputs[lighting.LeftTurnButton],
			RightTurnIn:     pins.Inputs[lighting.RightTurnButton],
			HighbeamIn:      pins.Inputs[lighting.HighbeamSwitch],
			RunningLightIn:  pins.Inputs[lighting.RunningLightSwitch],
			BrakeLightIn:    pins.Inputs[lighting.BrakeSwitch],
			HornIn:          pins.Inputs[lighting.HornButton],
		},
		IO: IOConfig{
			Type: "gpio",
		},
		Source: SourceConfig{
			Type:      "stdin",
			BaudRate:  canlog.DefaultBaudRate,
			CANDevice: "can0",
			Follow:    true,
		},
		Redis: RedisConfig{
			Enabled:           true,
			Addr:              "127.0.0.1",
			Port:              6379,
			PublishIntervalMs: 200,
		},
		Feed: FeedConfig{
			Enabled:    true,
			ListenAddr: ":8080",
			IntervalMs: 100,
		},
		Snapshot: SnapshotConfig{
			Path:      "/var/lib/curtis-cluster/snapshot.cbor",
			IntervalS: 60,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies environment
// variable overrides. A missing file yields the defaults; a broken one is an
// error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: CLUSTER_SOURCE, CLUSTER_CAN_DEVICE, CLUSTER_REDIS_ADDR,
// CLUSTER_LISTEN, CLUSTER_IO, CLUSTER_LOG_LEVEL
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("CLUSTER_SOURCE"); v != "" {
		c.Source.Type = v
	}
	if v := os.Getenv("CLUSTER_CAN_DEVICE"); v != "" {
		c.Source.CANDevice = v
	}
	if v := os.Getenv("CLUSTER_REDIS_ADDR"); v != "" {
		host, port, found := strings.Cut(v, ":")
		c.Redis.Addr = host
		if found {
			n, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("invalid CLUSTER_REDIS_ADDR %q", v)
			}
			c.Redis.Port = n
		}
	}
	if v := os.Getenv("CLUSTER_LISTEN"); v != "" {
		c.Feed.ListenAddr = v
	}
	if v := os.Getenv("CLUSTER_IO"); v != "" {
		c.IO.Type = v
	}
	if v := os.Getenv("CLUSTER_LOG_LEVEL"); v != "" {
		level, err := ParseLogLevel(v)
		if err != nil {
			return fmt.Errorf("CLUSTER_LOG_LEVEL: %w", err)
		}
		c.LogLevel = int(level)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.LogLevel < int(LogLevelNone) || c.LogLevel > int(LogLevelDebug) {
		return fmt.Errorf("invalid log level %d", c.LogLevel)
	}

	switch c.Source.Type {
	case "stdin", "can":
	case "file", "serial":
		if c.Source.Path == "" {
			return fmt.Errorf("source type %q needs a path", c.Source.Type)
		}
	default:
		return fmt.Errorf("invalid source type %q (must be stdin, file, serial or can)", c.Source.Type)
	}

	switch c.IO.Type {
	case "gpio", "debug":
	default:
		return fmt.Errorf("invalid io type %q (must be gpio or debug)", c.IO.Type)
	}

	if c.Vehicle.BatteryCapacityKWh <= 0 {
		return fmt.Errorf("battery capacity must be positive")
	}
	if c.Vehicle.GearboxRatio <= 0 {
		return fmt.Errorf("gearbox ratio must be positive")
	}
	return nil
}

func (c *Config) StoreConfig() ecu.StoreConfig {
	return ecu.StoreConfig{
		BatteryCapacity:    c.Vehicle.BatteryCapacityKWh * 3.6e6,
		FullChargeVoltage:  c.Vehicle.FullChargeVoltage,
		GearboxRatio:       c.Vehicle.GearboxRatio,
		DefaultConsumption: c.Vehicle.DefaultConsumptionWhKm * 3.6,
		StaleTimeout:       time.Duration(c.Vehicle.StaleTimeoutMs) * time.Millisecond,
	}
}

func (c *Config) LightingConfig() lighting.Config {
	return lighting.Config{
		BlinkInterval:       time.Duration(c.Lighting.BlinkIntervalMs) * time.Millisecond,
		SoftTurnSignalMax:   c.Lighting.SoftTurnSignalMax,
		HardTurnSignalLimit: c.Lighting.HardTurnSignalLimit,
		PollInterval:        time.Duration(c.Lighting.PollIntervalMs) * time.Millisecond,
		DebounceDelay:       time.Duration(c.Lighting.DebounceMs) * time.Millisecond,
	}
}

func (c *Config) PinMap() lighting.PinMap {
	return lighting.PinMap{
		Outputs: map[lighting.Output]int{
			lighting.LeftTurn:     c.Pins.LeftTurnOut,
			lighting.RightTurn:    c.Pins.RightTurnOut,
			lighting.Highbeam:     c.Pins.HighbeamOut,
			lighting.RunningLight: c.Pins.RunningLightOut,
			lighting.BrakeLight:   c.Pins.BrakeLightOut,
			lighting.Horn:         c.Pins.HornOut,
		},
		Inputs: map[lighting.Input]int{
			lighting.LeftTurnButton:     c.Pins.LeftTurnIn,
			lighting.RightTurnButton:    c.Pins.RightTurnIn,
			lighting.HighbeamSwitch:     c.Pins.HighbeamIn,
			lighting.RunningLightSwitch: c.Pins.RunningLightIn,
			lighting.BrakeSwitch:        c.Pins.BrakeLightIn,
			lighting.HornButton:         c.Pins.HornIn,
		},
	}
}
