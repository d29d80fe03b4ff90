// Package observability exposes simulator health as Prometheus metrics.
package observability

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hackflight-sim/internal/mixer"
	"hackflight-sim/internal/sim"
	"hackflight-sim/internal/transport"
)

// Collector bundles the simulator's metrics. ObserveTick, SerialRx and
// SerialTx run on the simulation goroutine; scrapes may happen concurrently.
type Collector struct {
	gatherer prometheus.Gatherer
	reg      prometheus.Registerer

	Ticks        prometheus.Counter
	TickDuration prometheus.Histogram
	SerialBytes  *prometheus.CounterVec
	Motor        *prometheus.GaugeVec
	Altitude     prometheus.Gauge
	Armed        prometheus.Gauge
}

// NewCollector registers metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hfsim_ticks_total",
		Help: "Simulation ticks processed.",
	}), "hfsim_ticks_total")
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hfsim_tick_duration_seconds",
		Help:    "Wall time spent computing one tick.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "hfsim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}
	serial, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hfsim_serial_bytes_total",
		Help: "Serial bytes exchanged with the firmware, labeled by direction.",
	}, []string{"direction"}), "hfsim_serial_bytes_total")
	if err != nil {
		return nil, err
	}
	motor, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hfsim_motor_command",
		Help: "Last motor command in [0,1], labeled by motor index.",
	}, []string{"motor"}), "hfsim_motor_command")
	if err != nil {
		return nil, err
	}
	alt, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hfsim_altitude_meters",
		Help: "Vehicle altitude above the spawn ground reference.",
	}), "hfsim_altitude_meters")
	if err != nil {
		return nil, err
	}
	armed, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hfsim_board_armed",
		Help: "1 while the board is armed.",
	}), "hfsim_board_armed")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:     gatherer,
		reg:          reg,
		Ticks:        ticks,
		TickDuration: duration,
		SerialBytes:  serial,
		Motor:        motor,
		Altitude:     alt,
		Armed:        armed,
	}, nil
}

func (c *Collector) ObserveTick(ti sim.TickInfo) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDuration.Observe(ti.Elapsed.Seconds())
	for i := 0; i < mixer.Rotors; i++ {
		c.Motor.WithLabelValues(strconv.Itoa(i)).Set(ti.Actuation.Commands[i])
	}
	c.Altitude.Set(ti.Derived.Altitude)
}

func (c *Collector) SerialRx(p []byte) {
	if c != nil {
		c.SerialBytes.WithLabelValues("rx").Add(float64(len(p)))
	}
}

func (c *Collector) SerialTx(p []byte) {
	if c != nil {
		c.SerialBytes.WithLabelValues("tx").Add(float64(len(p)))
	}
}

func (c *Collector) SetArmed(armed bool) {
	if c == nil {
		return
	}
	if armed {
		c.Armed.Set(1)
	} else {
		c.Armed.Set(0)
	}
}

// WatchTransport exports transport counters read from snap at scrape time.
func (c *Collector) WatchTransport(snap func() transport.Snapshot) error {
	funcs := []struct {
		name, help string
		counter    bool
		value      func(transport.Snapshot) float64
	}{
		{"hfsim_transport_rx_bytes_total", "Bytes received from ground stations.", true,
			func(s transport.Snapshot) float64 { return float64(s.RxBytes) }},
		{"hfsim_transport_tx_bytes_total", "Bytes sent to ground stations.", true,
			func(s transport.Snapshot) float64 { return float64(s.TxBytes) }},
		{"hfsim_transport_dropped_bytes_total", "Bytes dropped on full or busy queues.", true,
			func(s transport.Snapshot) float64 { return float64(s.RxDropped + s.TxDropped) }},
		{"hfsim_transport_connections_total", "Ground station connections accepted.", true,
			func(s transport.Snapshot) float64 { return float64(s.Connections) }},
		{"hfsim_transport_rejected_total", "Connections refused while a peer was attached.", true,
			func(s transport.Snapshot) float64 { return float64(s.Rejected) }},
		{"hfsim_transport_connected", "1 while a ground station is attached.", false,
			func(s transport.Snapshot) float64 {
				if s.State == transport.Connected.String() {
					return 1
				}
				return 0
			}},
	}
	for _, f := range funcs {
		value := f.value
		fn := func() float64 { return value(snap()) }
		var col prometheus.Collector
		if f.counter {
			col = prometheus.NewCounterFunc(prometheus.CounterOpts{Name: f.name, Help: f.help}, fn)
		} else {
			col = prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: f.name, Help: f.help}, fn)
		}
		if err := c.reg.Register(col); err != nil {
			return fmt.Errorf("register %s: %w", f.name, err)
		}
	}
	return nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// register adds col to reg, returning the already registered collector when
// one with the same descriptor exists.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
