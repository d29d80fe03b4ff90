package sensors

import (
	"math/rand/v2"
	"strings"
	"testing"

	"hackflight-sim/internal/noise"
)

func TestSample_ZeroNoiseIsExact(t *testing.T) {
	cfg := SuiteConfig{}
	s, err := NewSuite(cfg)
	if err != nil {
		t.Fatalf("NewSuite() error: %v", err)
	}
	for _, e := range []*Emulator{s.Quaternion, s.Gyrometer, s.Accelerometer, s.Rangefinder, s.OpticalFlow, s.Barometer} {
		truth := make([]float64, e.Config().Channels)
		for i := range truth {
			truth[i] = float64(i) + 0.125
		}
		got := e.Sample(truth)
		for i := range truth {
			if got[i] != truth[i] {
				t.Fatalf("%s[%d]=%v want %v", e.Name(), i, got[i], truth[i])
			}
		}
	}
}

func TestSample_DoesNotMutateTruth(t *testing.T) {
	e, err := New("gyro", ChannelConfig{Channels: 3, Noise: 0.5})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	truth := []float64{1, 2, 3}
	_ = e.Sample(truth)
	if truth[0] != 1 || truth[1] != 2 || truth[2] != 3 {
		t.Fatalf("truth mutated: %v", truth)
	}
}

func TestSample_NonZeroNoiseVaries(t *testing.T) {
	e, err := New("baro", ChannelConfig{Channels: 1, Noise: 0.01})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	a := e.Sample([]float64{100})
	b := e.Sample([]float64{100})
	if a[0] == b[0] {
		t.Fatalf("expected varying output, got %v twice", a[0])
	}
}

func TestSample_LengthMismatchPanics(t *testing.T) {
	e, err := New("quat", ChannelConfig{Channels: 4})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic")
		}
		if msg, _ := r.(string); !strings.Contains(msg, "want 4") {
			t.Fatalf("panic=%v", r)
		}
	}()
	_ = e.Sample([]float64{1, 2, 3})
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  ChannelConfig
		want string
	}{
		{"NoChannels", ChannelConfig{Channels: 0}, "sensors: x channels must be >= 1 (got 0)"},
		{"NegativeNoise", ChannelConfig{Channels: 1, Noise: -1}, "sensors: x noise must be >= 0 (got -1)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New("x", tc.cfg)
			if err == nil || err.Error() != tc.want {
				t.Fatalf("err=%v want %q", err, tc.want)
			}
		})
	}
}

func TestNewSuite_ChannelCounts(t *testing.T) {
	s, err := NewSuite(DefaultSuiteConfig())
	if err != nil {
		t.Fatalf("NewSuite() error: %v", err)
	}
	want := map[*Emulator]int{
		s.Quaternion:    4,
		s.Gyrometer:     3,
		s.Accelerometer: 3,
		s.Rangefinder:   1,
		s.OpticalFlow:   2,
		s.Barometer:     1,
	}
	for e, n := range want {
		if e.Config().Channels != n {
			t.Fatalf("%s channels=%d want %d", e.Name(), e.Config().Channels, n)
		}
	}
	if s.Config().Rangefinder.Fitted {
		t.Fatalf("rangefinder should not be fitted by default")
	}
}

func TestNewSuiteWithInjector_Deterministic(t *testing.T) {
	cfg := DefaultSuiteConfig()
	a, _ := NewSuiteWithInjector(cfg, noise.New(rand.NewPCG(3, 4)))
	b, _ := NewSuiteWithInjector(cfg, noise.New(rand.NewPCG(3, 4)))
	ga := a.Gyrometer.Sample([]float64{0, 0, 0})
	gb := b.Gyrometer.Sample([]float64{0, 0, 0})
	for i := range ga {
		if ga[i] != gb[i] {
			t.Fatalf("gyro[%d] %v != %v", i, ga[i], gb[i])
		}
	}
}

func TestNewSuite_RejectsNegativeNoise(t *testing.T) {
	cfg := DefaultSuiteConfig()
	cfg.Barometer.Noise = -0.1
	if _, err := NewSuite(cfg); err == nil {
		t.Fatalf("expected error")
	}
}
