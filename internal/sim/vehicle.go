package sim

import (
	"fmt"

	"hackflight-sim/internal/board"
	"hackflight-sim/internal/kinematics"
	"hackflight-sim/internal/mixer"
)

// VehicleConfig describes the rigid body the rotors act on.
type VehicleConfig struct {
	MassKg float64
	// Inertia is the diagonal of the body inertia tensor, kg m^2.
	Inertia kinematics.Vec3
	// LinearDrag and AngularDrag are simple viscous damping coefficients.
	LinearDrag  float64
	AngularDrag float64
	// GroundZ is the world height of the ground plane.
	GroundZ float64
}

func DefaultVehicleConfig() VehicleConfig {
	return VehicleConfig{
		MassKg:      1.0,
		Inertia:     kinematics.Vec3{X: 0.01, Y: 0.01, Z: 0.02},
		LinearDrag:  0.1,
		AngularDrag: 0.01,
	}
}

func (c VehicleConfig) validate() error {
	if !(c.MassKg > 0) {
		return fmt.Errorf("sim: mass must be > 0 (got %v)", c.MassKg)
	}
	if !(c.Inertia.X > 0 && c.Inertia.Y > 0 && c.Inertia.Z > 0) {
		return fmt.Errorf("sim: inertia must be > 0 on every axis (got %+v)", c.Inertia)
	}
	if c.LinearDrag < 0 || c.AngularDrag < 0 {
		return fmt.Errorf("sim: drag must be >= 0")
	}
	return nil
}

// Vehicle integrates rotor thrust and torque into a pose. World Z is up.
type Vehicle struct {
	cfg VehicleConfig

	pos   kinematics.Vec3
	vel   kinematics.Vec3
	q     kinematics.Quat
	omega kinematics.Vec3 // body rates, rad/s
	t     float64

	onGround bool
}

func NewVehicle(cfg VehicleConfig, spawn kinematics.Sample) (*Vehicle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	v := &Vehicle{cfg: cfg}
	v.Reset(spawn)
	return v, nil
}

// Reset places the vehicle at rest at spawn.
func (v *Vehicle) Reset(spawn kinematics.Sample) {
	v.pos = spawn.Position
	v.q = spawn.Orientation.Normalize()
	v.vel = kinematics.Vec3{}
	v.omega = kinematics.Vec3{}
	v.t = spawn.Time
	v.clampGround()
}

// Sample returns the current ground-truth pose.
func (v *Vehicle) Sample() kinematics.Sample {
	return kinematics.Sample{Position: v.pos, Orientation: v.q, Time: v.t}
}

func (v *Vehicle) Velocity() kinematics.Vec3 { return v.vel }

// BodyRates returns the true angular velocity in the body frame.
func (v *Vehicle) BodyRates() kinematics.Vec3 { return v.omega }

func (v *Vehicle) OnGround() bool { return v.onGround }

// Apply advances the body by dt under actuation a using semi-implicit Euler.
func (v *Vehicle) Apply(a board.Actuation, dt float64) {
	if !(dt > 0) {
		panic(fmt.Sprintf("sim: step duration must be > 0 (got %v)", dt))
	}
	var thrust float64
	for _, f := range a.Thrust {
		thrust += f
	}
	force := v.q.Rotate(kinematics.Vec3{Z: thrust}).
		Sub(kinematics.Vec3{Z: v.cfg.MassKg * kinematics.G}).
		Sub(v.vel.Scale(v.cfg.LinearDrag))
	v.vel = v.vel.Add(force.Scale(dt / v.cfg.MassKg))
	v.pos = v.pos.Add(v.vel.Scale(dt))

	in := v.cfg.Inertia
	tau := mixer.Sum(a.Torques).
		Sub(v.omega.Cross(kinematics.Vec3{X: in.X * v.omega.X, Y: in.Y * v.omega.Y, Z: in.Z * v.omega.Z})).
		Sub(v.omega.Scale(v.cfg.AngularDrag))
	v.omega = v.omega.Add(kinematics.Vec3{X: tau.X / in.X, Y: tau.Y / in.Y, Z: tau.Z / in.Z}.Scale(dt))

	// q' = q + 0.5 * q (x) (0, omega) * dt
	dq := v.q.Mul(kinematics.Quat{X: v.omega.X, Y: v.omega.Y, Z: v.omega.Z})
	v.q = kinematics.Quat{
		W: v.q.W + 0.5*dq.W*dt,
		X: v.q.X + 0.5*dq.X*dt,
		Y: v.q.Y + 0.5*dq.Y*dt,
		Z: v.q.Z + 0.5*dq.Z*dt,
	}.Normalize()

	v.t += dt
	v.clampGround()
}

// clampGround keeps the body on or above the ground plane. Resting on the
// ground kills velocity and rotation.
func (v *Vehicle) clampGround() {
	v.onGround = false
	if v.pos.Z > v.cfg.GroundZ {
		return
	}
	v.pos.Z = v.cfg.GroundZ
	v.onGround = true
	if v.vel.Z < 0 {
		v.vel = kinematics.Vec3{}
		v.omega = kinematics.Vec3{}
	}
}
