package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"hackflight-sim/internal/board"
	"hackflight-sim/internal/kinematics"
	"hackflight-sim/internal/mixer"
	"hackflight-sim/internal/sensors"
)

func quiet(string, ...any) {}

func uniformThrust(each float64) board.Actuation {
	var a board.Actuation
	for i := range a.Thrust {
		a.Thrust[i] = each
	}
	return a
}

func newVehicle(t *testing.T, z float64) *Vehicle {
	t.Helper()
	v, err := NewVehicle(DefaultVehicleConfig(), kinematics.Sample{Position: kinematics.Vec3{Z: z}, Orientation: kinematics.Identity})
	if err != nil {
		t.Fatalf("NewVehicle() error: %v", err)
	}
	return v
}

func TestNewVehicle_Validates(t *testing.T) {
	cfg := DefaultVehicleConfig()
	cfg.MassKg = 0
	if _, err := NewVehicle(cfg, kinematics.Sample{}); err == nil {
		t.Fatalf("expected error for zero mass")
	}
	cfg = DefaultVehicleConfig()
	cfg.Inertia.Z = -1
	if _, err := NewVehicle(cfg, kinematics.Sample{}); err == nil {
		t.Fatalf("expected error for negative inertia")
	}
}

func TestVehicle_RestsOnGround(t *testing.T) {
	v := newVehicle(t, 0)
	for i := 0; i < 100; i++ {
		v.Apply(board.Actuation{}, 0.01)
	}
	s := v.Sample()
	if s.Position.Z != 0 || !v.OnGround() {
		t.Fatalf("z=%v onGround=%v want resting", s.Position.Z, v.OnGround())
	}
	if math.Abs(s.Time-1) > 1e-9 {
		t.Fatalf("time=%v want 1", s.Time)
	}
}

func TestVehicle_HoverHoldsAltitude(t *testing.T) {
	v := newVehicle(t, 5)
	hover := uniformThrust(v.cfg.MassKg * kinematics.G / 4)
	for i := 0; i < 200; i++ {
		v.Apply(hover, 0.01)
	}
	if z := v.Sample().Position.Z; math.Abs(z-5) > 1e-6 {
		t.Fatalf("z=%v want 5", z)
	}
}

func TestVehicle_ExcessThrustClimbs(t *testing.T) {
	v := newVehicle(t, 0)
	climb := uniformThrust(v.cfg.MassKg * kinematics.G / 2)
	for i := 0; i < 100; i++ {
		v.Apply(climb, 0.01)
	}
	s := v.Sample()
	if s.Position.Z <= 1 {
		t.Fatalf("z=%v want climbing", s.Position.Z)
	}
	if v.OnGround() {
		t.Fatalf("still on ground")
	}
}

func TestVehicle_FreeFallLandsAndStops(t *testing.T) {
	v := newVehicle(t, 1)
	for i := 0; i < 200; i++ {
		v.Apply(board.Actuation{}, 0.01)
	}
	if !v.OnGround() || v.Velocity() != (kinematics.Vec3{}) {
		t.Fatalf("onGround=%v vel=%+v", v.OnGround(), v.Velocity())
	}
}

func TestVehicle_YawTorqueTurns(t *testing.T) {
	v := newVehicle(t, 5)
	a := uniformThrust(v.cfg.MassKg * kinematics.G / 4)
	a.Torques[0] = kinematics.Vec3{Z: 0.01}
	for i := 0; i < 50; i++ {
		v.Apply(a, 0.01)
	}
	if v.BodyRates().Z <= 0 {
		t.Fatalf("yaw rate=%v want > 0", v.BodyRates().Z)
	}
	e := kinematics.EulerFromQuat(v.Sample().Orientation)
	if e.Z <= 0 {
		t.Fatalf("yaw=%v want > 0", e.Z)
	}
	if math.Abs(e.X) > 1e-9 || math.Abs(e.Y) > 1e-9 {
		t.Fatalf("roll=%v pitch=%v want 0", e.X, e.Y)
	}
}

func newBoard(t *testing.T, fw board.Firmware) *board.Board {
	t.Helper()
	suite, err := sensors.NewSuite(sensors.DefaultSuiteConfig())
	if err != nil {
		t.Fatalf("NewSuite() error: %v", err)
	}
	b, err := board.New(board.Config{
		Sensors:  suite,
		Mixer:    mixer.Mixer{ThrustCoeff: 5, TorqueCoeff: 0.01},
		Geometry: mixer.QuadX(0.2),
		Firmware: fw,
	})
	if err != nil {
		t.Fatalf("board.New() error: %v", err)
	}
	return b
}

func TestHost_StepDrivesBoardAndBody(t *testing.T) {
	full := board.FirmwareFunc(func(hw board.Hardware) {
		for i := 0; i < mixer.Rotors; i++ {
			hw.WriteMotor(i, 1)
		}
	})
	b := newBoard(t, full)
	h, err := NewHost(Config{Tick: 10 * time.Millisecond, Logf: quiet}, b)
	if err != nil {
		t.Fatalf("NewHost() error: %v", err)
	}
	var seen []uint64
	h.Observe(func(ti TickInfo) { seen = append(seen, ti.Tick) })
	if err := h.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	var last TickInfo
	for i := 0; i < 50; i++ {
		last = h.Step()
	}
	if len(seen) != 50 || seen[49] != 50 {
		t.Fatalf("observer saw %d ticks", len(seen))
	}
	if last.Actuation.Commands[0] != 1 {
		t.Fatalf("commands=%v want full", last.Actuation.Commands)
	}
	if z := h.Vehicle().Sample().Position.Z; z <= 0 {
		t.Fatalf("z=%v want airborne", z)
	}
	if b.Microseconds() != 500000 {
		t.Fatalf("micros=%d want 500000", b.Microseconds())
	}
	if !last.Derived.Steady || last.Derived.Altitude <= 0 {
		t.Fatalf("derived=%+v", last.Derived)
	}
}

func TestHost_RunStopsAtMaxTicks(t *testing.T) {
	b := newBoard(t, nil)
	h, err := NewHost(Config{Tick: time.Millisecond, MaxTicks: 5, Logf: quiet}, b)
	if err != nil {
		t.Fatalf("NewHost() error: %v", err)
	}
	var stopped bool
	b.OnTeardown(func() { stopped = true })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if h.Ticks() != 5 {
		t.Fatalf("ticks=%d want 5", h.Ticks())
	}
	if !stopped || b.State() != board.ShuttingDown {
		t.Fatalf("board not shut down: state=%v", b.State())
	}
}

func TestHost_RunStopsOnCancel(t *testing.T) {
	b := newBoard(t, nil)
	h, err := NewHost(Config{Tick: time.Millisecond, Logf: quiet}, b)
	if err != nil {
		t.Fatalf("NewHost() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if b.State() != board.ShuttingDown {
		t.Fatalf("state=%v want shutting_down", b.State())
	}
}

func TestNewHost_RequiresBoard(t *testing.T) {
	if _, err := NewHost(Config{}, nil); err == nil {
		t.Fatalf("expected error")
	}
}
