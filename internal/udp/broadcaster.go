package udp

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Broadcaster sends datagrams to a single destination.
type Broadcaster struct {
	dest string
	conn udpConn
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Broadcaster{dest: dest, conn: conn}, nil
}

func (b *Broadcaster) Dest() string { return b.dest }

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := b.conn.Write(payload)
	return err
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// StateSize is the length of an encoded vehicle state datagram.
const StateSize = 11 * 8

// State is one tick of vehicle state as sent to visualisation clients.
type State struct {
	Time       float64
	Gyro       [3]float64
	Quaternion [4]float64
	Position   [3]float64
}

// AppendState appends s as little-endian float64s in the order time, gyro,
// quaternion (w,x,y,z), position.
func AppendState(dst []byte, s State) []byte {
	put := func(v float64) { dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v)) }
	put(s.Time)
	for _, v := range s.Gyro {
		put(v)
	}
	for _, v := range s.Quaternion {
		put(v)
	}
	for _, v := range s.Position {
		put(v)
	}
	return dst
}

// DecodeState parses a datagram produced by AppendState.
func DecodeState(p []byte) (State, error) {
	if len(p) != StateSize {
		return State{}, fmt.Errorf("udp: state datagram is %d bytes, want %d", len(p), StateSize)
	}
	next := func() float64 {
		v := math.Float64frombits(binary.LittleEndian.Uint64(p))
		p = p[8:]
		return v
	}
	var s State
	s.Time = next()
	for i := range s.Gyro {
		s.Gyro[i] = next()
	}
	for i := range s.Quaternion {
		s.Quaternion[i] = next()
	}
	for i := range s.Position {
		s.Position[i] = next()
	}
	return s, nil
}

// StateSender encodes and sends vehicle state, reusing one buffer.
type StateSender struct {
	b   *Broadcaster
	buf []byte
}

func NewStateSender(b *Broadcaster) *StateSender {
	return &StateSender{b: b, buf: make([]byte, 0, StateSize)}
}

func (s *StateSender) Send(st State) error {
	s.buf = AppendState(s.buf[:0], st)
	return s.b.Send(s.buf)
}
