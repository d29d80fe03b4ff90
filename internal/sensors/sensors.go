package sensors

import (
	"fmt"

	"hackflight-sim/internal/noise"
)

// ChannelConfig describes one emulated sensor: how many values it reports
// and the standard deviation of the noise added to each.
type ChannelConfig struct {
	Channels int
	Noise    float64
}

// Emulator turns ground-truth values into a noisy reading.
//
// It holds no state between calls; only the injected noise varies.
type Emulator struct {
	name string
	cfg  ChannelConfig
	inj  *noise.Injector
}

func New(name string, cfg ChannelConfig) (*Emulator, error) {
	return newWithInjector(name, cfg, nil)
}

func newWithInjector(name string, cfg ChannelConfig, inj *noise.Injector) (*Emulator, error) {
	if name == "" {
		return nil, fmt.Errorf("sensors: name is required")
	}
	if cfg.Channels < 1 {
		return nil, fmt.Errorf("sensors: %s channels must be >= 1 (got %d)", name, cfg.Channels)
	}
	if cfg.Noise < 0 {
		return nil, fmt.Errorf("sensors: %s noise must be >= 0 (got %v)", name, cfg.Noise)
	}
	if inj == nil {
		inj = &noise.Injector{}
	}
	return &Emulator{name: name, cfg: cfg, inj: inj}, nil
}

func (e *Emulator) Name() string { return e.name }

func (e *Emulator) Config() ChannelConfig { return e.cfg }

// Sample returns a noisy copy of truth. truth must have exactly Channels values.
func (e *Emulator) Sample(truth []float64) []float64 {
	if len(truth) != e.cfg.Channels {
		panic(fmt.Sprintf("sensors: %s sample has %d values, want %d", e.name, len(truth), e.cfg.Channels))
	}
	out := make([]float64, len(truth))
	copy(out, truth)
	e.inj.Apply(out, e.cfg.Noise)
	return out
}
