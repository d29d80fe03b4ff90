package board

import (
	"fmt"
	"math"

	"hackflight-sim/internal/kinematics"
	"hackflight-sim/internal/mixer"
	"hackflight-sim/internal/sensors"
)

// Hardware is what flight-control firmware sees: sensors, motors, a serial
// port and a clock. Getters report ok=false for sensors the vehicle does not
// carry.
type Hardware interface {
	Quaternion() ([4]float64, bool)
	Gyrometer() ([3]float64, bool)
	Accelerometer() ([3]float64, bool)
	Barometer() (pressurePa float64, ok bool)
	OpticalFlow() (x, y float64, ok bool)
	Rangefinder() (distanceM float64, ok bool)

	WriteMotor(index int, value float64)

	SerialAvailableBytes() int
	SerialReadByte() byte
	SerialWriteByte(c byte)

	Microseconds() uint64
}

// Firmware is run once per tick against the board.
type Firmware interface {
	Step(hw Hardware)
}

// FirmwareFunc adapts a function to Firmware.
type FirmwareFunc func(hw Hardware)

func (f FirmwareFunc) Step(hw Hardware) { f(hw) }

// Serial is the byte transport behind the board's serial port.
// *transport.Server satisfies it.
type Serial interface {
	Drain(p []byte) int
	WriteByte(c byte) error
	Stop()
}

// PeerReporter is implemented by serials that know about their peer. The
// board drops unread input when the peer goes away or is replaced, and
// reports written bytes to the tap only while a peer is connected.
type PeerReporter interface {
	Peer() (session uint64, connected bool)
}

// SerialTap observes the bytes exchanged each tick.
type SerialTap interface {
	SerialRx(p []byte)
	SerialTx(p []byte)
}

// Taps fans serial traffic out to every non-nil tap.
func Taps(taps ...SerialTap) SerialTap {
	var out multiTap
	for _, t := range taps {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

type multiTap []SerialTap

func (m multiTap) SerialRx(p []byte) {
	for _, t := range m {
		t.SerialRx(p)
	}
}

func (m multiTap) SerialTx(p []byte) {
	for _, t := range m {
		t.SerialTx(p)
	}
}

// State is the board lifecycle.
type State int

const (
	Idle State = iota
	Armed
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case ShuttingDown:
		return "shutting_down"
	default:
		return "idle"
	}
}

// Actuation is the result of one tick: what the vehicle body should feel.
type Actuation struct {
	Commands [mixer.Rotors]float64
	Thrust   [mixer.Rotors]float64
	Torques  [mixer.Rotors]kinematics.Vec3
}

type Config struct {
	Sensors  *sensors.Suite
	Mixer    mixer.Mixer
	Geometry mixer.Geometry

	Serial   Serial
	Firmware Firmware
	Tap      SerialTap

	// RangefinderMaxM is the longest distance the rangefinder reports. Default 4 m.
	RangefinderMaxM float64
	// SerialBuffer bounds the received bytes the board holds for the firmware,
	// unread leftovers included. Default 1024.
	SerialBuffer int
}

// Board is the simulated flight controller.
//
// The host calls Activate once, Update every tick and Deactivate at the end.
// Not safe for concurrent use: every method runs on the simulation goroutine.
type Board struct {
	cfg   Config
	state State

	sampler kinematics.Sampler
	sample  kinematics.Sample
	derived kinematics.Derived

	motors [mixer.Rotors]float64
	micros uint64
	ticks  uint64

	rxBuf     []byte
	rx        []byte
	rxPos     int
	rxSession uint64
	tx        []byte

	teardown []func()
}

func New(cfg Config) (*Board, error) {
	if cfg.Sensors == nil {
		return nil, fmt.Errorf("board: sensors are required")
	}
	if cfg.RangefinderMaxM <= 0 {
		cfg.RangefinderMaxM = 4
	}
	if cfg.SerialBuffer <= 0 {
		cfg.SerialBuffer = 1024
	}
	return &Board{
		cfg:   cfg,
		rxBuf: make([]byte, cfg.SerialBuffer),
	}, nil
}

// OnTeardown registers fn to run when the board shuts down. Callbacks run in
// reverse registration order, after the serial transport has stopped.
func (b *Board) OnTeardown(fn func()) {
	if fn != nil {
		b.teardown = append(b.teardown, fn)
	}
}

func (b *Board) State() State { return b.state }

// Ticks returns the number of updates processed while armed.
func (b *Board) Ticks() uint64 { return b.ticks }

// Derived returns the kinematic state computed on the last tick.
func (b *Board) Derived() kinematics.Derived { return b.derived }

// Activate arms the board at the spawn pose. The ground reference and clock
// restart from here.
func (b *Board) Activate(spawn kinematics.Sample) error {
	if b.state != Idle {
		return fmt.Errorf("board: cannot activate while %s", b.state)
	}
	b.sampler.Reset(spawn)
	b.sample = spawn
	b.derived = kinematics.Derived{}
	b.motors = [mixer.Rotors]float64{}
	b.micros = 0
	b.ticks = 0
	b.rx = nil
	b.rxPos = 0
	b.rxSession = 0
	b.state = Armed
	return nil
}

// Deactivate stops the serial transport and runs the teardown callbacks.
// Repeated calls do nothing.
func (b *Board) Deactivate() {
	if b.state == ShuttingDown {
		return
	}
	b.state = ShuttingDown
	if b.cfg.Serial != nil {
		b.cfg.Serial.Stop()
	}
	b.rx = nil
	b.rxPos = 0
	for i := len(b.teardown) - 1; i >= 0; i-- {
		b.teardown[i]()
	}
}

// Update runs one tick: it records the new pose, drains serial input, steps
// the firmware and mixes the motor commands it wrote. Outside the Armed
// state it returns a zero Actuation.
func (b *Board) Update(sample kinematics.Sample, dt float64) Actuation {
	if b.state != Armed {
		return Actuation{}
	}
	b.derived = b.sampler.Record(sample, dt)
	b.sample = sample
	b.micros += uint64(math.Round(dt * 1e6))
	b.ticks++

	// Bytes the firmware left unread stay ahead of the new ones.
	kept := 0
	if b.peerChanged() {
		b.rx = nil
	} else {
		kept = copy(b.rxBuf, b.rx[b.rxPos:])
	}
	n := kept
	if b.cfg.Serial != nil {
		n += b.cfg.Serial.Drain(b.rxBuf[kept:])
	}
	b.rx = b.rxBuf[:n]
	b.rxPos = 0
	if b.cfg.Tap != nil && n > kept {
		b.cfg.Tap.SerialRx(b.rx[kept:])
	}
	b.tx = b.tx[:0]

	if b.cfg.Firmware != nil {
		b.cfg.Firmware.Step(b)
	}

	if b.cfg.Tap != nil && len(b.tx) > 0 {
		b.cfg.Tap.SerialTx(b.tx)
	}

	a := Actuation{Commands: b.motors}
	a.Thrust = b.cfg.Mixer.Thrusts(b.motors)
	a.Torques = b.cfg.Mixer.MixGeometry(b.motors, b.cfg.Geometry)
	b.motors = [mixer.Rotors]float64{}
	return a
}

func (b *Board) armed() bool { return b.state == Armed }

// peerChanged reports whether unread input belongs to a peer that is gone.
func (b *Board) peerChanged() bool {
	p, ok := b.cfg.Serial.(PeerReporter)
	if !ok {
		return false
	}
	session, connected := p.Peer()
	changed := !connected || session != b.rxSession
	b.rxSession = session
	return changed
}

// connected reports whether written bytes can reach a peer.
func (b *Board) connected() bool {
	if b.cfg.Serial == nil {
		return false
	}
	p, ok := b.cfg.Serial.(PeerReporter)
	if !ok {
		return true
	}
	_, connected := p.Peer()
	return connected
}

func (b *Board) Quaternion() ([4]float64, bool) {
	if !b.armed() || !b.cfg.Sensors.Config().Quaternion.Fitted {
		return [4]float64{}, false
	}
	q := b.sample.Orientation.Array()
	return to4(b.cfg.Sensors.Quaternion.Sample(q[:])), true
}

// Gyrometer reports body rates in rad/s.
func (b *Board) Gyrometer() ([3]float64, bool) {
	if !b.armed() || !b.cfg.Sensors.Config().Gyrometer.Fitted {
		return [3]float64{}, false
	}
	w := b.derived.AngularVelocity.Array()
	return to3(b.cfg.Sensors.Gyrometer.Sample(w[:])), true
}

// Accelerometer reports proper acceleration in g, body frame.
func (b *Board) Accelerometer() ([3]float64, bool) {
	if !b.armed() || !b.cfg.Sensors.Config().Accelerometer.Fitted {
		return [3]float64{}, false
	}
	world := kinematics.Vec3{Z: b.derived.VerticalAccel}
	body := b.sample.Orientation.Conj().Rotate(world).Scale(1 / kinematics.G).Array()
	return to3(b.cfg.Sensors.Accelerometer.Sample(body[:])), true
}

// Barometer reports static pressure in pascals.
func (b *Board) Barometer() (float64, bool) {
	if !b.armed() || !b.cfg.Sensors.Config().Barometer.Fitted {
		return 0, false
	}
	p := kinematics.PressureAt(b.derived.AltitudeMSL)
	return b.cfg.Sensors.Barometer.Sample([]float64{p})[0], true
}

// OpticalFlow reports horizontal velocity in the heading frame (forward, left), m/s.
func (b *Board) OpticalFlow() (float64, float64, bool) {
	if !b.armed() || !b.cfg.Sensors.Config().OpticalFlow.Fitted {
		return 0, 0, false
	}
	yaw := b.derived.Euler.Z
	v := b.derived.Velocity
	c, s := math.Cos(yaw), math.Sin(yaw)
	flow := b.cfg.Sensors.OpticalFlow.Sample([]float64{c*v.X + s*v.Y, -s*v.X + c*v.Y})
	return flow[0], flow[1], true
}

// Rangefinder reports the slant distance to the ground along body -Z.
// It is unavailable when tilted past 90 degrees or beyond its maximum range.
func (b *Board) Rangefinder() (float64, bool) {
	if !b.armed() || !b.cfg.Sensors.Config().Rangefinder.Fitted {
		return 0, false
	}
	tilt := math.Cos(b.derived.Euler.X) * math.Cos(b.derived.Euler.Y)
	if tilt <= 0 {
		return 0, false
	}
	d := b.derived.Altitude / tilt
	if d < 0 || d > b.cfg.RangefinderMaxM {
		return 0, false
	}
	return b.cfg.Sensors.Rangefinder.Sample([]float64{d})[0], true
}

// WriteMotor sets motor index to value for this tick. An index outside 0..3
// or a value outside [0,1] is a firmware bug and panics.
func (b *Board) WriteMotor(index int, value float64) {
	if index < 0 || index >= mixer.Rotors {
		panic(fmt.Sprintf("board: motor index %d out of range", index))
	}
	if !(value >= 0 && value <= 1) {
		panic(fmt.Sprintf("board: motor %d value %v out of range [0,1]", index, value))
	}
	if !b.armed() {
		return
	}
	b.motors[index] = value
}

// SerialAvailableBytes returns the received bytes the firmware has not read,
// including any left over from earlier ticks.
func (b *Board) SerialAvailableBytes() int {
	return len(b.rx) - b.rxPos
}

// SerialReadByte pops the next received byte. Calling it with nothing
// available panics.
func (b *Board) SerialReadByte() byte {
	if b.rxPos >= len(b.rx) {
		panic("board: serial read with no bytes available")
	}
	c := b.rx[b.rxPos]
	b.rxPos++
	return c
}

// SerialWriteByte sends c to the ground station, if one is connected. Only
// bytes handed to a connected transport reach the tap; bytes the transport
// later drops on a full queue show up in its TxDropped counter.
func (b *Board) SerialWriteByte(c byte) {
	if !b.armed() || !b.connected() {
		return
	}
	if err := b.cfg.Serial.WriteByte(c); err != nil {
		return
	}
	b.tx = append(b.tx, c)
}

// Microseconds is simulation time since activation.
func (b *Board) Microseconds() uint64 { return b.micros }

func to3(v []float64) [3]float64 { return [3]float64{v[0], v[1], v[2]} }

func to4(v []float64) [4]float64 { return [4]float64{v[0], v[1], v[2], v[3]} }
