package kinematics

import (
	"fmt"
	"math"
)

// G is standard gravity in m/s^2.
const G = 9.80665

// Sample is one ground-truth pose reported by the simulation host.
type Sample struct {
	Position    Vec3
	Orientation Quat
	Time        float64 // seconds, monotonic
}

// Derived holds the quantities sensors are built from.
type Derived struct {
	Euler           Vec3 // roll, pitch, yaw (rad)
	AngularVelocity Vec3 // rad/s, Euler rates
	Velocity        Vec3 // world frame, m/s

	// VerticalAccel is proper (non-gravitational) acceleration along world Z, m/s^2.
	// World Z points up, so the gravity term enters as +G: a vehicle at rest reads
	// +G and one in free fall reads 0.
	VerticalAccel float64
	Altitude      float64 // metres above the ground reference
	VerticalSpeed float64 // m/s
	AltitudeMSL   float64 // metres, world Z

	Steady bool
}

// History is the one-step memory needed for finite differences.
// The zero value is Uninitialized.
type History struct {
	prev      Sample
	prevEuler Vec3
	prevAlt   float64
	prevVz    float64
	havePrev  bool
	haveVz    bool

	ground     float64
	haveGround bool
}

// Steady reports whether a previous sample has been recorded.
func (h History) Steady() bool { return h.havePrev }

// Ground returns the ground reference altitude and whether it is set.
func (h History) Ground() (float64, bool) { return h.ground, h.haveGround }

// NewHistory returns an Uninitialized history whose altitude reference is ground.
func NewHistory(ground float64) History {
	return History{ground: ground, haveGround: true}
}

// Derive computes the kinematic state for cur given the previous tick's
// history and the tick duration, and returns the history for the next tick.
//
// On the first tick angular velocity, vertical speed and vertical
// acceleration are zero. dt must be > 0.
func Derive(h History, cur Sample, dt float64) (Derived, History) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		panic(fmt.Sprintf("kinematics: tick duration must be > 0 (got %v)", dt))
	}
	if !h.haveGround {
		h.ground = cur.Position.Z
		h.haveGround = true
	}

	euler := EulerFromQuat(cur.Orientation)
	d := Derived{
		Euler:       euler,
		Altitude:    cur.Position.Z - h.ground,
		AltitudeMSL: cur.Position.Z,
	}

	next := h
	next.prev = cur
	next.prevEuler = euler
	next.prevAlt = d.Altitude
	next.havePrev = true

	if !h.havePrev {
		return d, next
	}

	d.Steady = true
	d.AngularVelocity = Vec3{
		X: wrapPi(euler.X-h.prevEuler.X) / dt,
		Y: wrapPi(euler.Y-h.prevEuler.Y) / dt,
		Z: wrapPi(euler.Z-h.prevEuler.Z) / dt,
	}
	d.Velocity = cur.Position.Sub(h.prev.Position).Scale(1 / dt)
	d.VerticalSpeed = (d.Altitude - h.prevAlt) / dt

	kinematic := 0.0
	if h.haveVz {
		kinematic = (d.VerticalSpeed - h.prevVz) / dt
	}
	d.VerticalAccel = kinematic + G

	next.prevVz = d.VerticalSpeed
	next.haveVz = true
	return d, next
}

// Sampler owns the History for one vehicle.
type Sampler struct {
	h    History
	last Derived
}

// Reset starts a new flight: the sampler returns to Uninitialized and the
// ground reference is taken from spawn.
func (s *Sampler) Reset(spawn Sample) {
	s.h = NewHistory(spawn.Position.Z)
	s.last = Derived{}
}

// Record derives the state for cur and advances the history.
func (s *Sampler) Record(cur Sample, dt float64) Derived {
	s.last, s.h = Derive(s.h, cur, dt)
	return s.last
}

func (s *Sampler) Last() Derived { return s.last }

func (s *Sampler) History() History { return s.h }

func (s *Sampler) Steady() bool { return s.h.Steady() }
