package sim

import (
	"context"
	"fmt"
	"log"
	"time"

	"hackflight-sim/internal/board"
	"hackflight-sim/internal/kinematics"
)

// TickInfo is what observers see after every tick.
type TickInfo struct {
	Tick      uint64
	Sample    kinematics.Sample
	Derived   kinematics.Derived
	BodyRates kinematics.Vec3
	Actuation board.Actuation
	// Elapsed is the wall time spent computing the tick.
	Elapsed time.Duration
}

// Observer is called on the simulation goroutine after each tick and must not block.
type Observer func(TickInfo)

type Config struct {
	// Tick is the simulation step. Default 10ms.
	Tick    time.Duration
	Vehicle VehicleConfig
	Spawn   kinematics.Sample
	// MaxTicks stops Run after this many ticks. Zero runs until the context ends.
	MaxTicks uint64

	Logf func(format string, args ...any)
}

// Host owns the physics and drives the board once per tick.
type Host struct {
	cfg       Config
	board     *board.Board
	vehicle   *Vehicle
	observers []Observer
	ticks     uint64
	now       func() time.Time
}

func NewHost(cfg Config, b *board.Board) (*Host, error) {
	if b == nil {
		return nil, fmt.Errorf("sim: board is required")
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Millisecond
	}
	if cfg.Vehicle == (VehicleConfig{}) {
		cfg.Vehicle = DefaultVehicleConfig()
	}
	if cfg.Spawn.Orientation == (kinematics.Quat{}) {
		cfg.Spawn.Orientation = kinematics.Identity
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	v, err := NewVehicle(cfg.Vehicle, cfg.Spawn)
	if err != nil {
		return nil, err
	}
	return &Host{cfg: cfg, board: b, vehicle: v, now: time.Now}, nil
}

// Observe registers fn to run after every tick.
func (h *Host) Observe(fn Observer) {
	if fn != nil {
		h.observers = append(h.observers, fn)
	}
}

func (h *Host) Vehicle() *Vehicle { return h.vehicle }

func (h *Host) Ticks() uint64 { return h.ticks }

// Start arms the board at the spawn pose.
func (h *Host) Start() error {
	h.vehicle.Reset(h.cfg.Spawn)
	return h.board.Activate(h.vehicle.Sample())
}

// Step advances the simulation by one tick without waiting on the wall clock.
func (h *Host) Step() TickInfo {
	start := h.now()
	dt := h.cfg.Tick.Seconds()

	sample := h.vehicle.Sample()
	act := h.board.Update(sample, dt)
	h.vehicle.Apply(act, dt)
	h.ticks++

	info := TickInfo{
		Tick:      h.ticks,
		Sample:    sample,
		Derived:   h.board.Derived(),
		BodyRates: h.vehicle.BodyRates(),
		Actuation: act,
		Elapsed:   h.now().Sub(start),
	}
	for _, fn := range h.observers {
		fn(info)
	}
	return info
}

// Run arms the board and ticks at the configured rate until ctx is done or
// MaxTicks is reached. The board is deactivated on return.
func (h *Host) Run(ctx context.Context) error {
	if err := h.Start(); err != nil {
		return err
	}
	defer h.board.Deactivate()

	h.cfg.Logf("sim: running at %s per tick", h.cfg.Tick)
	ticker := time.NewTicker(h.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.cfg.Logf("sim: stopped after %d ticks", h.ticks)
			return nil
		case <-ticker.C:
			h.Step()
			if h.cfg.MaxTicks > 0 && h.ticks >= h.cfg.MaxTicks {
				h.cfg.Logf("sim: reached %d ticks", h.ticks)
				return nil
			}
		}
	}
}
