package web

import (
	"math"
	"sync/atomic"
	"time"

	"hackflight-sim/internal/sim"
	"hackflight-sim/internal/transport"
)

type Status struct {
	startUnixNano int64
	lastTickNano  int64
	ticks         uint64
	boardState    atomic.Value // string
	tick          atomic.Value // string
	vehicle       atomic.Value // VehicleSnapshot
	transport     atomic.Value // func() transport.Snapshot
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.boardState.Store("")
	s.tick.Store("")
	s.vehicle.Store(VehicleSnapshot{})
	s.transport.Store(func() transport.Snapshot { return transport.Snapshot{} })
	return s
}

// VehicleSnapshot is a UI-friendly view of the last tick. Angles are in degrees.
type VehicleSnapshot struct {
	SimTimeSec    float64    `json:"sim_time_sec"`
	RollDeg       float64    `json:"roll_deg"`
	PitchDeg      float64    `json:"pitch_deg"`
	YawDeg        float64    `json:"yaw_deg"`
	AltitudeM     float64    `json:"altitude_m"`
	VerticalSpeed float64    `json:"vertical_speed_mps"`
	Position      [3]float64 `json:"position_m"`
	Motors        [4]float64 `json:"motors"`
}

// SetStatic records values fixed for the life of the process.
func (s *Status) SetStatic(tick time.Duration, snap func() transport.Snapshot) {
	if tick > 0 {
		s.tick.Store(tick.String())
	}
	if snap != nil {
		s.transport.Store(snap)
	}
}

func (s *Status) SetBoardState(state string) { s.boardState.Store(state) }

// MarkTick publishes the outcome of one tick. Called on the simulation goroutine.
func (s *Status) MarkTick(nowUTC time.Time, ti sim.TickInfo) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastTickNano, nowUTC.UnixNano())
	atomic.StoreUint64(&s.ticks, ti.Tick)

	deg := func(r float64) float64 { return r * 180 / math.Pi }
	s.vehicle.Store(VehicleSnapshot{
		SimTimeSec:    ti.Sample.Time,
		RollDeg:       deg(ti.Derived.Euler.X),
		PitchDeg:      deg(ti.Derived.Euler.Y),
		YawDeg:        deg(ti.Derived.Euler.Z),
		AltitudeM:     ti.Derived.Altitude,
		VerticalSpeed: ti.Derived.VerticalSpeed,
		Position:      ti.Sample.Position.Array(),
		Motors:        ti.Actuation.Commands,
	})
}

type StatusSnapshot struct {
	Service     string             `json:"service"`
	NowUTC      string             `json:"now_utc"`
	UptimeSec   int64              `json:"uptime_sec"`
	Board       string             `json:"board"`
	Tick        string             `json:"tick"`
	Ticks       uint64             `json:"ticks"`
	LastTickUTC string             `json:"last_tick_utc,omitempty"`
	Vehicle     VehicleSnapshot    `json:"vehicle"`
	Transport   transport.Snapshot `json:"transport"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	lastTick := atomic.LoadInt64(&s.lastTickNano)

	snap := StatusSnapshot{
		Service:   "hfsim",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Board:     s.boardState.Load().(string),
		Tick:      s.tick.Load().(string),
		Ticks:     atomic.LoadUint64(&s.ticks),
		Vehicle:   s.vehicle.Load().(VehicleSnapshot),
		Transport: s.transport.Load().(func() transport.Snapshot)(),
	}
	if lastTick != 0 {
		snap.LastTickUTC = time.Unix(0, lastTick).UTC().Format(time.RFC3339Nano)
	}
	return snap
}
