// Package firmware holds the flight-control programs that run on the
// simulated board.
package firmware

import (
	"encoding/binary"
	"log"
	"math"

	"hackflight-sim/internal/board"
	"hackflight-sim/internal/kinematics"
	"hackflight-sim/internal/mixer"
	"hackflight-sim/internal/msp"
)

// PWM range used by MSP motor commands.
const (
	PWMMin = 1000
	PWMMax = 2000
)

type PassthroughConfig struct {
	// FailsafeMicros cuts the motors when no SET_MOTOR has arrived for this
	// long. Zero disables the failsafe.
	FailsafeMicros uint64

	Logf func(format string, args ...any)
}

// Passthrough is a minimal MSP responder: it reports sensor readings to the
// ground station and drives the motors with whatever SET_MOTOR last asked for.
// There is no stabilisation loop.
type Passthrough struct {
	cfg    PassthroughConfig
	parser msp.Parser

	motors      [mixer.Rotors]float64
	lastSetAt   uint64
	haveSet     bool
	failsafe    bool
	baroRef     float64
	haveBaroRef bool
	lastAlt     float64
	lastAltAt   uint64
	vario       float64

	frames  uint64
	unknown uint64
}

func NewPassthrough(cfg PassthroughConfig) *Passthrough {
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Passthrough{cfg: cfg}
}

// Frames returns the count of well-formed requests handled.
func (p *Passthrough) Frames() uint64 { return p.frames }

// Unknown returns the count of requests answered with an error frame.
func (p *Passthrough) Unknown() uint64 { return p.unknown }

// ParseErrors returns the count of requests dropped for a bad checksum.
func (p *Passthrough) ParseErrors() uint64 { return p.parser.Errors() }

// Motors returns the motor demand currently applied, in [0,1].
func (p *Passthrough) Motors() [mixer.Rotors]float64 { return p.motors }

func (p *Passthrough) Step(hw board.Hardware) {
	now := hw.Microseconds()
	p.trackAltitude(hw, now)

	for hw.SerialAvailableBytes() > 0 {
		m, ok, _ := p.parser.Feed(hw.SerialReadByte())
		if !ok || m.Direction != msp.ToBoard {
			continue
		}
		p.frames++
		p.handle(hw, m, now)
	}

	if p.cfg.FailsafeMicros > 0 && p.haveSet && now-p.lastSetAt > p.cfg.FailsafeMicros {
		if !p.failsafe {
			p.cfg.Logf("firmware: no motor command for %dus, cutting motors", now-p.lastSetAt)
			p.failsafe = true
		}
		p.motors = [mixer.Rotors]float64{}
	}
	for i, v := range p.motors {
		hw.WriteMotor(i, v)
	}
}

func (p *Passthrough) handle(hw board.Hardware, m msp.Message, now uint64) {
	var payload []byte
	switch m.Command {
	case msp.CmdRawIMU:
		payload = p.rawIMU(hw)
	case msp.CmdAttitude:
		payload = p.attitude(hw)
	case msp.CmdAltitude:
		payload = p.altitude()
	case msp.CmdSonar:
		payload = p.sonar(hw)
	case msp.CmdMotor:
		payload = p.motorPWM()
	case msp.CmdSetMotor:
		p.setMotors(m.Payload, now)
		payload = []byte{}
	default:
		p.unknown++
		send(hw, msp.Error, m.Command, nil)
		return
	}
	send(hw, msp.FromBoard, m.Command, payload)
}

func send(hw board.Hardware, dir msp.Direction, cmd uint8, payload []byte) {
	frame, err := msp.Encode(dir, cmd, payload)
	if err != nil {
		return
	}
	for _, c := range frame {
		hw.SerialWriteByte(c)
	}
}

// rawIMU: accelerometer in milli-g, gyro in 0.1 deg/s, magnetometer zero.
func (p *Passthrough) rawIMU(hw board.Hardware) []byte {
	out := make([]byte, 18)
	if acc, ok := hw.Accelerometer(); ok {
		for i, v := range acc {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(sat16(v*1000)))
		}
	}
	if gyro, ok := hw.Gyrometer(); ok {
		for i, v := range gyro {
			binary.LittleEndian.PutUint16(out[6+2*i:], uint16(sat16(deg(v)*10)))
		}
	}
	return out
}

// attitude: roll and pitch in 0.1 deg, heading in whole degrees [0,360).
func (p *Passthrough) attitude(hw board.Hardware) []byte {
	out := make([]byte, 6)
	q, ok := hw.Quaternion()
	if !ok {
		return out
	}
	e := kinematics.EulerFromQuat(kinematics.Quat{W: q[0], X: q[1], Y: q[2], Z: q[3]}.Normalize())
	heading := math.Mod(deg(e.Z)+360, 360)
	binary.LittleEndian.PutUint16(out[0:], uint16(sat16(deg(e.X)*10)))
	binary.LittleEndian.PutUint16(out[2:], uint16(sat16(deg(e.Y)*10)))
	binary.LittleEndian.PutUint16(out[4:], uint16(sat16(math.Floor(heading))))
	return out
}

// altitude: barometric altitude above the first reading in cm, vario in cm/s.
func (p *Passthrough) altitude() []byte {
	out := make([]byte, 6)
	binary.LittleEndian.PutUint32(out[0:], uint32(sat32(p.lastAlt*100)))
	binary.LittleEndian.PutUint16(out[4:], uint16(sat16(p.vario*100)))
	return out
}

// sonar: rangefinder distance in cm, -1 when unavailable.
func (p *Passthrough) sonar(hw board.Hardware) []byte {
	out := make([]byte, 4)
	cm := int32(-1)
	if d, ok := hw.Rangefinder(); ok {
		cm = sat32(d * 100)
	}
	binary.LittleEndian.PutUint32(out, uint32(cm))
	return out
}

// motorPWM reports eight channels; the unused four read zero.
func (p *Passthrough) motorPWM() []byte {
	out := make([]byte, 16)
	for i, v := range p.motors {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(PWMMin+math.Round(v*(PWMMax-PWMMin))))
	}
	return out
}

func (p *Passthrough) setMotors(payload []byte, now uint64) {
	for i := 0; i < mixer.Rotors && 2*i+1 < len(payload); i++ {
		pwm := float64(binary.LittleEndian.Uint16(payload[2*i:]))
		p.motors[i] = (math.Min(math.Max(pwm, PWMMin), PWMMax) - PWMMin) / (PWMMax - PWMMin)
	}
	p.lastSetAt = now
	p.haveSet = true
	if p.failsafe {
		p.cfg.Logf("firmware: motor commands resumed")
		p.failsafe = false
	}
}

func (p *Passthrough) trackAltitude(hw board.Hardware, now uint64) {
	pa, ok := hw.Barometer()
	if !ok {
		return
	}
	alt := kinematics.AltitudeAt(pa)
	if !p.haveBaroRef {
		p.baroRef = alt
		p.haveBaroRef = true
		p.lastAltAt = now
	}
	rel := alt - p.baroRef
	if now > p.lastAltAt {
		p.vario = (rel - p.lastAlt) / (float64(now-p.lastAltAt) / 1e6)
	}
	p.lastAlt = rel
	p.lastAltAt = now
}

func deg(rad float64) float64 { return rad * 180 / math.Pi }

func sat16(v float64) int16 {
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
}

func sat32(v float64) int32 {
	return int32(math.Max(math.MinInt32, math.Min(math.MaxInt32, math.Round(v))))
}
