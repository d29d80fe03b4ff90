package mixer

import (
	"hackflight-sim/internal/kinematics"
)

// Rotors is the number of motors on the airframe.
const Rotors = 4

// Geometry describes the rotor layout in the body frame (X forward, Y left, Z up).
type Geometry struct {
	// Spins is +1 for rotors whose reaction torque is positive about body Z.
	Spins     [Rotors]int
	Positions [Rotors]kinematics.Vec3
}

// QuadX returns the Hackflight quad-X layout: rear-right, front-right,
// rear-left, front-left, with spin directions +1, -1, -1, +1.
func QuadX(arm float64) Geometry {
	return Geometry{
		Spins: [Rotors]int{+1, -1, -1, +1},
		Positions: [Rotors]kinematics.Vec3{
			{X: -arm, Y: -arm},
			{X: +arm, Y: -arm},
			{X: -arm, Y: +arm},
			{X: +arm, Y: +arm},
		},
	}
}

// Mixer converts motor commands into rotor forces and torques.
type Mixer struct {
	ThrustCoeff float64 // N at full command
	TorqueCoeff float64 // N*m of reaction torque per N of thrust
}

// Thrust is the rotor lift (N) for a command in [0,1].
// It grows with the square of the command the way propeller thrust grows with RPM.
func (m Mixer) Thrust(cmd float64) float64 {
	return m.ThrustCoeff * cmd * cmd
}

// Thrusts applies Thrust to every command.
func (m Mixer) Thrusts(cmds [Rotors]float64) [Rotors]float64 {
	var out [Rotors]float64
	for i, c := range cmds {
		out[i] = m.Thrust(c)
	}
	return out
}

// Mix returns each rotor's torque about the body origin: the lever-arm
// moment of its thrust plus its reaction torque about Z, signed by spin.
//
// Commands are not clamped.
func (m Mixer) Mix(cmds [Rotors]float64, spins [Rotors]int, positions [Rotors]kinematics.Vec3) [Rotors]kinematics.Vec3 {
	var out [Rotors]kinematics.Vec3
	for i := 0; i < Rotors; i++ {
		t := m.Thrust(cmds[i])
		lift := kinematics.Vec3{Z: t}
		torque := positions[i].Cross(lift)
		torque.Z += float64(spins[i]) * m.TorqueCoeff * t
		out[i] = torque
	}
	return out
}

// MixGeometry is Mix with the spins and positions taken from g.
func (m Mixer) MixGeometry(cmds [Rotors]float64, g Geometry) [Rotors]kinematics.Vec3 {
	return m.Mix(cmds, g.Spins, g.Positions)
}

// Sum adds per-rotor vectors.
func Sum(v [Rotors]kinematics.Vec3) kinematics.Vec3 {
	var s kinematics.Vec3
	for _, x := range v {
		s = s.Add(x)
	}
	return s
}
