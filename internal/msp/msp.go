package msp

import (
	"errors"
	"fmt"
)

// MultiWii Serial Protocol v1 framing:
//
//	'$' 'M' <dir> <size> <cmd> <payload...> <checksum>
//
// where checksum is the XOR of size, cmd and every payload byte.

// Direction is the third header byte.
type Direction byte

const (
	ToBoard   Direction = '<'
	FromBoard Direction = '>'
	Error     Direction = '!'
)

func (d Direction) valid() bool { return d == ToBoard || d == FromBoard || d == Error }

// Command IDs used by the simulator.
const (
	CmdSonar    uint8 = 58
	CmdRawIMU   uint8 = 102
	CmdMotor    uint8 = 104
	CmdAttitude uint8 = 108
	CmdAltitude uint8 = 109
	CmdSetMotor uint8 = 214
)

// MaxPayload is the largest payload a v1 frame can carry.
const MaxPayload = 255

var ErrChecksum = errors.New("msp: checksum mismatch")

// Message is one decoded frame.
type Message struct {
	Direction Direction
	Command   uint8
	Payload   []byte
}

// Encode frames payload for cmd in the given direction.
func Encode(dir Direction, cmd uint8, payload []byte) ([]byte, error) {
	if !dir.valid() {
		return nil, fmt.Errorf("msp: invalid direction 0x%02x", byte(dir))
	}
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("msp: payload too large: %d", len(payload))
	}
	out := make([]byte, 0, len(payload)+6)
	out = append(out, '$', 'M', byte(dir), byte(len(payload)), cmd)
	out = append(out, payload...)
	out = append(out, checksum(byte(len(payload)), cmd, payload))
	return out, nil
}

// Request frames a board-bound message.
func Request(cmd uint8, payload []byte) ([]byte, error) { return Encode(ToBoard, cmd, payload) }

// Reply frames a ground-bound message.
func Reply(cmd uint8, payload []byte) ([]byte, error) { return Encode(FromBoard, cmd, payload) }

func checksum(size, cmd byte, payload []byte) byte {
	c := size ^ cmd
	for _, b := range payload {
		c ^= b
	}
	return c
}
