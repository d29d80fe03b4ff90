package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hackflight-sim/internal/board"
	"hackflight-sim/internal/capture"
	"hackflight-sim/internal/config"
	"hackflight-sim/internal/firmware"
	"hackflight-sim/internal/indicator"
	"hackflight-sim/internal/kinematics"
	"hackflight-sim/internal/mixer"
	"hackflight-sim/internal/observability"
	"hackflight-sim/internal/sensors"
	"hackflight-sim/internal/sim"
	"hackflight-sim/internal/transport"
	"hackflight-sim/internal/udp"
	"hackflight-sim/internal/web"
)

// runtime wires every service around one board for the life of the process.
type runtime struct {
	cfg config.Config

	srv     *transport.Server
	board   *board.Board
	host    *sim.Host
	fw      *firmware.Passthrough
	metrics *observability.Collector
	status  *web.Status
	logs    *web.LogBuffer

	udp     *udp.Broadcaster
	state   *udp.StateSender
	udpErrs uint64

	capture *capture.Writer
	led     *indicator.LED
}

func newRuntime(cfg config.Config, reg prometheus.Registerer, logs *web.LogBuffer) (rt *runtime, err error) {
	rt = &runtime{cfg: cfg, logs: logs, status: web.NewStatus()}
	partial := rt
	defer func() {
		if err == nil {
			return
		}
		if partial.board != nil {
			partial.board.Deactivate()
		} else {
			partial.release()
		}
	}()

	suite, err := sensors.NewSuite(suiteConfig(cfg.Sensors))
	if err != nil {
		return nil, err
	}

	rt.metrics, err = observability.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}

	if cfg.Capture.Enable {
		rt.capture, err = capture.Create(cfg.Capture.Path)
		if err != nil {
			return nil, fmt.Errorf("capture init failed: %w", err)
		}
	}
	if cfg.UDP.Enable {
		rt.udp, err = udp.NewBroadcaster(cfg.UDP.Dest)
		if err != nil {
			return nil, fmt.Errorf("udp init failed: %w", err)
		}
		rt.state = udp.NewStateSender(rt.udp)
	}
	rt.led, err = indicator.Open(indicator.Config{Enable: cfg.Indicator.Enable, Pin: cfg.Indicator.Pin})
	if err != nil {
		// A missing LED should not stop the simulator.
		log.Printf("indicator init failed: %v", err)
		rt.led, _ = indicator.Open(indicator.Config{})
	}

	var fw board.Firmware
	if cfg.Sim.Firmware.Kind == config.FirmwarePassthrough {
		rt.fw = firmware.NewPassthrough(firmware.PassthroughConfig{
			FailsafeMicros: uint64(cfg.Sim.Firmware.Failsafe / time.Microsecond),
		})
		fw = rt.fw
	}

	rt.srv, err = transport.Listen(transport.Config{
		Host:     cfg.Transport.Host,
		Port:     cfg.Transport.Port,
		RxBuffer: cfg.Transport.RxBuffer,
		TxBuffer: cfg.Transport.TxBuffer,
	})
	if err != nil {
		return nil, err
	}
	if err := rt.metrics.WatchTransport(rt.srv.Snapshot); err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}

	taps := []board.SerialTap{rt.metrics}
	if rt.capture != nil {
		taps = append(taps, rt.capture)
	}
	rt.board, err = board.New(board.Config{
		Sensors:         suite,
		Mixer:           mixer.Mixer{ThrustCoeff: cfg.Sim.Mixer.ThrustCoeff, TorqueCoeff: cfg.Sim.Mixer.TorqueCoeff},
		Geometry:        mixer.QuadX(cfg.Sim.Mixer.ArmM),
		Serial:          rt.srv,
		Firmware:        fw,
		Tap:             board.Taps(taps...),
		RangefinderMaxM: cfg.Sensors.RangefinderMaxM,
	})
	if err != nil {
		return nil, err
	}
	rt.board.OnTeardown(rt.release)
	rt.board.OnTeardown(func() {
		rt.led.Set(false)
		rt.metrics.SetArmed(false)
		rt.status.SetBoardState(board.ShuttingDown.String())
	})

	rt.host, err = sim.NewHost(sim.Config{
		Tick:     cfg.Sim.Tick,
		Vehicle:  vehicleConfig(cfg.Sim.Vehicle),
		Spawn:    spawnSample(cfg.Sim.Spawn),
		MaxTicks: cfg.Sim.MaxTicks,
	}, rt.board)
	if err != nil {
		return nil, err
	}
	rt.host.Observe(rt.onTick)

	rt.status.SetStatic(cfg.Sim.Tick, rt.srv.Snapshot)
	rt.status.SetBoardState(rt.board.State().String())
	return rt, nil
}

func (rt *runtime) onTick(ti sim.TickInfo) {
	armed := rt.board.State() == board.Armed
	rt.led.Set(armed)
	rt.metrics.SetArmed(armed)
	rt.metrics.ObserveTick(ti)
	rt.status.SetBoardState(rt.board.State().String())
	rt.status.MarkTick(time.Time{}, ti)

	if rt.state == nil {
		return
	}
	err := rt.state.Send(udp.State{
		Time:       ti.Sample.Time,
		Gyro:       ti.BodyRates.Array(),
		Quaternion: ti.Sample.Orientation.Array(),
		Position:   ti.Sample.Position.Array(),
	})
	if err != nil {
		rt.udpErrs++
		if rt.udpErrs == 1 {
			log.Printf("udp: state send to %s failed: %v", rt.udp.Dest(), err)
		}
	}
}

// run serves HTTP when enabled and drives the simulation until ctx is done.
func (rt *runtime) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if rt.cfg.HTTP.Enable {
		h := web.Handler(rt.status, rt.logs, rt.metrics.Handler())
		go func() {
			log.Printf("http: listening on %s", rt.cfg.HTTP.Listen)
			if err := web.Serve(ctx, rt.cfg.HTTP.Listen, h); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("http: server stopped: %v", err)
			}
		}()
	}

	return rt.host.Run(ctx)
}

// release closes the services the board does not own. Safe to call twice.
func (rt *runtime) release() {
	if rt.srv != nil && rt.board == nil {
		rt.srv.Stop()
	}
	if rt.capture != nil {
		if err := rt.capture.Close(); err != nil {
			log.Printf("capture: close failed: %v", err)
		}
	}
	if rt.udp != nil {
		_ = rt.udp.Close()
		rt.udp = nil
		rt.state = nil
	}
	if rt.led != nil {
		_ = rt.led.Close()
	}
}

func suiteConfig(c config.SensorsConfig) sensors.SuiteConfig {
	s := sensors.DefaultSuiteConfig()
	apply := func(dst *sensors.Spec, src config.SensorConfig) {
		if src.Fitted != nil {
			dst.Fitted = *src.Fitted
		}
		if src.Noise != nil {
			dst.Noise = *src.Noise
		}
	}
	apply(&s.Quaternion, c.Quaternion)
	apply(&s.Gyrometer, c.Gyrometer)
	apply(&s.Accelerometer, c.Accelerometer)
	apply(&s.Rangefinder, c.Rangefinder)
	apply(&s.OpticalFlow, c.OpticalFlow)
	apply(&s.Barometer, c.Barometer)
	return s
}

func vehicleConfig(c config.VehicleConfig) sim.VehicleConfig {
	return sim.VehicleConfig{
		MassKg:      c.MassKg,
		Inertia:     kinematics.Vec3{X: c.Inertia[0], Y: c.Inertia[1], Z: c.Inertia[2]},
		LinearDrag:  c.LinearDrag,
		AngularDrag: c.AngularDrag,
		GroundZ:     c.GroundZ,
	}
}

func spawnSample(c config.SpawnConfig) kinematics.Sample {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	return kinematics.Sample{
		Position:    kinematics.Vec3{X: c.X, Y: c.Y, Z: c.Z},
		Orientation: kinematics.QuatFromEuler(kinematics.Vec3{X: rad(c.RollDeg), Y: rad(c.PitchDeg), Z: rad(c.YawDeg)}),
	}
}
