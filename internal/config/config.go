package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Sim       SimConfig       `yaml:"sim"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	UDP       UDPConfig       `yaml:"udp"`
	Capture   CaptureConfig   `yaml:"capture"`
	HTTP      HTTPConfig      `yaml:"http"`
	Indicator IndicatorConfig `yaml:"indicator"`
}

type TransportConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	RxBuffer int    `yaml:"rx_buffer"`
	TxBuffer int    `yaml:"tx_buffer"`
}

type SimConfig struct {
	Tick     time.Duration  `yaml:"tick"`
	MaxTicks uint64         `yaml:"max_ticks"`
	Spawn    SpawnConfig    `yaml:"spawn"`
	Vehicle  VehicleConfig  `yaml:"vehicle"`
	Mixer    MixerConfig    `yaml:"mixer"`
	Firmware FirmwareConfig `yaml:"firmware"`
}

type SpawnConfig struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Z        float64 `yaml:"z"`
	RollDeg  float64 `yaml:"roll_deg"`
	PitchDeg float64 `yaml:"pitch_deg"`
	YawDeg   float64 `yaml:"yaw_deg"`
}

type VehicleConfig struct {
	MassKg      float64    `yaml:"mass_kg"`
	Inertia     [3]float64 `yaml:"inertia"`
	LinearDrag  float64    `yaml:"linear_drag"`
	AngularDrag float64    `yaml:"angular_drag"`
	GroundZ     float64    `yaml:"ground_z"`
}

type MixerConfig struct {
	ThrustCoeff float64 `yaml:"thrust_coeff"`
	TorqueCoeff float64 `yaml:"torque_coeff"`
	ArmM        float64 `yaml:"arm_m"`
}

type FirmwareConfig struct {
	// Kind is "passthrough" or "none".
	Kind     string        `yaml:"kind"`
	Failsafe time.Duration `yaml:"failsafe"`
}

// SensorConfig leaves Fitted and Noise nil when the key is absent so the
// airframe defaults apply.
type SensorConfig struct {
	Fitted *bool    `yaml:"fitted"`
	Noise  *float64 `yaml:"noise"`
}

type SensorsConfig struct {
	Quaternion    SensorConfig `yaml:"quaternion"`
	Gyrometer     SensorConfig `yaml:"gyrometer"`
	Accelerometer SensorConfig `yaml:"accelerometer"`
	Rangefinder   SensorConfig `yaml:"rangefinder"`
	OpticalFlow   SensorConfig `yaml:"optical_flow"`
	Barometer     SensorConfig `yaml:"barometer"`
	// RangefinderMaxM is the rangefinder's maximum distance.
	RangefinderMaxM float64 `yaml:"rangefinder_max_m"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type CaptureConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type HTTPConfig struct {
	Enable   bool   `yaml:"enable"`
	Listen   string `yaml:"listen"`
	LogLines int    `yaml:"log_lines"`
}

type IndicatorConfig struct {
	Enable bool `yaml:"enable"`
	Pin    int  `yaml:"pin"`
}

const (
	FirmwarePassthrough = "passthrough"
	FirmwareNone        = "none"
)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates. Unknown keys are errors.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Transport.Host == "" {
		cfg.Transport.Host = "127.0.0.1"
	}
	if cfg.Transport.Port == 0 {
		cfg.Transport.Port = 5000
	}
	if cfg.Transport.RxBuffer == 0 {
		cfg.Transport.RxBuffer = 4096
	}
	if cfg.Transport.TxBuffer == 0 {
		cfg.Transport.TxBuffer = 4096
	}

	if cfg.Sim.Tick == 0 {
		cfg.Sim.Tick = 10 * time.Millisecond
	}
	v := &cfg.Sim.Vehicle
	if v.MassKg == 0 {
		v.MassKg = 1.0
	}
	if v.Inertia == [3]float64{} {
		v.Inertia = [3]float64{0.01, 0.01, 0.02}
	}
	if v.LinearDrag == 0 {
		v.LinearDrag = 0.1
	}
	if v.AngularDrag == 0 {
		v.AngularDrag = 0.01
	}
	m := &cfg.Sim.Mixer
	if m.ThrustCoeff == 0 {
		m.ThrustCoeff = 5.0
	}
	if m.TorqueCoeff == 0 {
		m.TorqueCoeff = 0.01
	}
	if m.ArmM == 0 {
		m.ArmM = 0.15
	}
	if cfg.Sim.Firmware.Kind == "" {
		cfg.Sim.Firmware.Kind = FirmwarePassthrough
	}
	if cfg.Sim.Firmware.Failsafe == 0 {
		cfg.Sim.Firmware.Failsafe = 500 * time.Millisecond
	}

	if cfg.Sensors.RangefinderMaxM == 0 {
		cfg.Sensors.RangefinderMaxM = 4
	}

	if cfg.UDP.Dest == "" {
		cfg.UDP.Dest = "127.0.0.1:5001"
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = "127.0.0.1:8080"
	}
	if cfg.HTTP.LogLines == 0 {
		cfg.HTTP.LogLines = 2000
	}
}

func (cfg Config) validate() error {
	if cfg.Transport.Port < 0 || cfg.Transport.Port > 65535 {
		return fmt.Errorf("transport.port must be in [0,65535]")
	}
	if cfg.Transport.RxBuffer < 0 || cfg.Transport.TxBuffer < 0 {
		return fmt.Errorf("transport buffers must be > 0")
	}

	if cfg.Sim.Tick < 0 {
		return fmt.Errorf("sim.tick must be > 0")
	}
	v := cfg.Sim.Vehicle
	if v.MassKg < 0 {
		return fmt.Errorf("sim.vehicle.mass_kg must be > 0")
	}
	for _, in := range v.Inertia {
		if in <= 0 {
			return fmt.Errorf("sim.vehicle.inertia must be > 0 on every axis")
		}
	}
	if v.LinearDrag < 0 || v.AngularDrag < 0 {
		return fmt.Errorf("sim.vehicle drag must be >= 0")
	}
	m := cfg.Sim.Mixer
	if m.ThrustCoeff < 0 || m.TorqueCoeff < 0 || m.ArmM < 0 {
		return fmt.Errorf("sim.mixer coefficients must be >= 0")
	}
	switch cfg.Sim.Firmware.Kind {
	case FirmwarePassthrough, FirmwareNone:
	default:
		return fmt.Errorf("sim.firmware.kind must be %q or %q", FirmwarePassthrough, FirmwareNone)
	}
	if cfg.Sim.Firmware.Failsafe < 0 {
		return fmt.Errorf("sim.firmware.failsafe must be >= 0")
	}

	for _, s := range []struct {
		name string
		cfg  SensorConfig
	}{
		{"quaternion", cfg.Sensors.Quaternion},
		{"gyrometer", cfg.Sensors.Gyrometer},
		{"accelerometer", cfg.Sensors.Accelerometer},
		{"rangefinder", cfg.Sensors.Rangefinder},
		{"optical_flow", cfg.Sensors.OpticalFlow},
		{"barometer", cfg.Sensors.Barometer},
	} {
		if s.cfg.Noise != nil && *s.cfg.Noise < 0 {
			return fmt.Errorf("sensors.%s.noise must be >= 0", s.name)
		}
	}
	if cfg.Sensors.RangefinderMaxM < 0 {
		return fmt.Errorf("sensors.rangefinder_max_m must be > 0")
	}

	if cfg.Capture.Enable && cfg.Capture.Path == "" {
		return fmt.Errorf("capture.path is required when capture.enable is true")
	}
	if cfg.HTTP.LogLines < 0 {
		return fmt.Errorf("http.log_lines must be > 0")
	}
	if cfg.Indicator.Enable && cfg.Indicator.Pin <= 0 {
		return fmt.Errorf("indicator.pin is required when indicator.enable is true")
	}
	return nil
}
