package sensors

import "hackflight-sim/internal/noise"

const (
	QuaternionChannels    = 4
	GyrometerChannels     = 3
	AccelerometerChannels = 3
	RangefinderChannels   = 1
	OpticalFlowChannels   = 2
	BarometerChannels     = 1
)

// DefaultNoise matches the simulator's stock noise level for every sensor.
const DefaultNoise = 0.01

// Spec configures one sensor of a Suite.
type Spec struct {
	Fitted bool
	Noise  float64
}

// SuiteConfig selects which sensors a vehicle variant carries and how noisy
// each one is.
type SuiteConfig struct {
	Quaternion    Spec
	Gyrometer     Spec
	Accelerometer Spec
	Rangefinder   Spec
	OpticalFlow   Spec
	Barometer     Spec
}

// DefaultSuiteConfig fits the IMU, quaternion and barometer; rangefinder and
// optical flow are absent on the stock airframe.
func DefaultSuiteConfig() SuiteConfig {
	on := Spec{Fitted: true, Noise: DefaultNoise}
	off := Spec{Fitted: false, Noise: DefaultNoise}
	return SuiteConfig{
		Quaternion:    on,
		Gyrometer:     on,
		Accelerometer: on,
		Rangefinder:   off,
		OpticalFlow:   off,
		Barometer:     on,
	}
}

// Suite is the fixed set of six emulated sensors carried by a vehicle.
type Suite struct {
	Quaternion    *Emulator
	Gyrometer     *Emulator
	Accelerometer *Emulator
	Rangefinder   *Emulator
	OpticalFlow   *Emulator
	Barometer     *Emulator

	cfg SuiteConfig
}

func NewSuite(cfg SuiteConfig) (*Suite, error) {
	return NewSuiteWithInjector(cfg, nil)
}

// NewSuiteWithInjector builds a Suite whose emulators share inj.
func NewSuiteWithInjector(cfg SuiteConfig, inj *noise.Injector) (*Suite, error) {
	s := &Suite{cfg: cfg}
	specs := []struct {
		dst      **Emulator
		name     string
		channels int
		spec     Spec
	}{
		{&s.Quaternion, "quaternion", QuaternionChannels, cfg.Quaternion},
		{&s.Gyrometer, "gyrometer", GyrometerChannels, cfg.Gyrometer},
		{&s.Accelerometer, "accelerometer", AccelerometerChannels, cfg.Accelerometer},
		{&s.Rangefinder, "rangefinder", RangefinderChannels, cfg.Rangefinder},
		{&s.OpticalFlow, "optical_flow", OpticalFlowChannels, cfg.OpticalFlow},
		{&s.Barometer, "barometer", BarometerChannels, cfg.Barometer},
	}
	for _, sp := range specs {
		e, err := newWithInjector(sp.name, ChannelConfig{Channels: sp.channels, Noise: sp.spec.Noise}, inj)
		if err != nil {
			return nil, err
		}
		*sp.dst = e
	}
	return s, nil
}

func (s *Suite) Config() SuiteConfig { return s.cfg }
