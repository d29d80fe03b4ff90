// Package indicator drives a status LED that is lit while the board is armed.
package indicator

import (
	"fmt"
	"log"
	"sync"
)

type line interface {
	SetValue(v int) error
	Close() error
}

var openLineFn = openLine

type Config struct {
	Enable bool
	// Pin is BCM GPIO numbering.
	Pin int
}

// LED is safe for concurrent use. A disabled LED accepts every call and does nothing.
type LED struct {
	mu   sync.Mutex
	line line
	on   bool
}

// Open claims the GPIO line when cfg.Enable is set.
func Open(cfg Config) (*LED, error) {
	if !cfg.Enable {
		return &LED{}, nil
	}
	if cfg.Pin <= 0 {
		return nil, fmt.Errorf("indicator: invalid gpio pin %d", cfg.Pin)
	}
	l, err := openLineFn(cfg.Pin)
	if err != nil {
		return nil, err
	}
	return &LED{line: l}, nil
}

func (d *LED) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.line != nil
}

// Set lights the LED when armed is true. Only changes reach the GPIO line.
func (d *LED) Set(armed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.line == nil || d.on == armed {
		return
	}
	v := 0
	if armed {
		v = 1
	}
	if err := d.line.SetValue(v); err != nil {
		log.Printf("indicator: set %d failed: %v", v, err)
		return
	}
	d.on = armed
}

// Close turns the LED off and releases the line.
func (d *LED) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.line == nil {
		return nil
	}
	_ = d.line.SetValue(0)
	err := d.line.Close()
	d.line = nil
	d.on = false
	return err
}
