package mixer

import (
	"math"
	"testing"

	"hackflight-sim/internal/kinematics"
)

var testMixer = Mixer{ThrustCoeff: 4, TorqueCoeff: 0.02}

func TestMix_ZeroCommandsZeroForces(t *testing.T) {
	g := QuadX(0.1)
	out := testMixer.MixGeometry([Rotors]float64{}, g)
	for i, v := range out {
		if v != (kinematics.Vec3{}) {
			t.Fatalf("rotor %d torque=%v want zero", i, v)
		}
	}
}

func TestMix_YawFollowsSpin(t *testing.T) {
	g := QuadX(0.1)
	out := testMixer.Mix([Rotors]float64{1, 0, 0, 0}, [Rotors]int{+1, -1, -1, +1}, g.Positions)
	if out[0].Z <= 0 {
		t.Fatalf("rotor 0 yaw torque=%v want positive", out[0].Z)
	}

	out = testMixer.Mix([Rotors]float64{0, 1, 0, 0}, [Rotors]int{+1, -1, -1, +1}, g.Positions)
	if out[1].Z >= 0 {
		t.Fatalf("rotor 1 yaw torque=%v want negative", out[1].Z)
	}
}

func TestMix_LeverArm(t *testing.T) {
	// A rotor on the +Y (left) arm pushing up lifts the left side: positive X moment.
	pos := [Rotors]kinematics.Vec3{{Y: 0.2}}
	out := testMixer.Mix([Rotors]float64{1}, [Rotors]int{}, pos)
	if math.Abs(out[0].X-0.2*4) > 1e-12 {
		t.Fatalf("roll torque=%v want %v", out[0].X, 0.8)
	}
	// Front rotor (+X) pushing up pitches the nose up: negative Y moment.
	pos = [Rotors]kinematics.Vec3{{X: 0.2}}
	out = testMixer.Mix([Rotors]float64{1}, [Rotors]int{}, pos)
	if math.Abs(out[0].Y+0.8) > 1e-12 {
		t.Fatalf("pitch torque=%v want -0.8", out[0].Y)
	}
}

func TestMix_BalancedHoverHasNoNetTorque(t *testing.T) {
	out := testMixer.MixGeometry([Rotors]float64{0.5, 0.5, 0.5, 0.5}, QuadX(0.1))
	net := Sum(out)
	if math.Abs(net.X) > 1e-12 || math.Abs(net.Y) > 1e-12 || math.Abs(net.Z) > 1e-12 {
		t.Fatalf("net torque=%v want zero", net)
	}
}

func TestThrust_Monotonic(t *testing.T) {
	prev := -1.0
	for c := 0.0; c <= 1.0; c += 0.05 {
		th := testMixer.Thrust(c)
		if th < prev {
			t.Fatalf("thrust(%v)=%v < previous %v", c, th, prev)
		}
		prev = th
	}
	if got := testMixer.Thrusts([Rotors]float64{1, 0.5, 0, 0}); got[0] != 4 || got[1] != 1 || got[2] != 0 {
		t.Fatalf("thrusts=%v", got)
	}
}
