// Package capture records and replays the serial traffic between the board
// and the ground station.
package capture

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Log format: line-oriented text.
//
// - Blank lines and lines starting with '#' are ignored.
// - Line "START" resets the origin.
// - Data lines are <t_ns>,<rx|tx>,<hex> where t_ns is nanoseconds since START,
//   rx is ground station to board and tx is board to ground station.

type Direction string

const (
	Rx Direction = "rx"
	Tx Direction = "tx"
)

type Record struct {
	At        time.Duration
	Direction Direction
	Data      []byte
}

// IsStart reports whether r is a START marker.
func (r Record) IsStart() bool { return r.Data == nil }

func ReadAll(r io.Reader) ([]Record, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{})
			continue
		}

		fields := strings.SplitN(line, ",", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("capture: invalid line (want t_ns,dir,hex): %q", line)
		}
		tsStr := strings.TrimSpace(fields[0])
		dir := Direction(strings.TrimSpace(fields[1]))
		hexStr := strings.ReplaceAll(strings.TrimSpace(fields[2]), " ", "")

		tsNs, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("capture: invalid timestamp %q: %w", tsStr, err)
		}
		if tsNs < 0 {
			return nil, fmt.Errorf("capture: invalid timestamp (negative): %d", tsNs)
		}
		if dir != Rx && dir != Tx {
			return nil, fmt.Errorf("capture: invalid direction %q", dir)
		}
		b, err := hex.DecodeString(hexStr)
		if err != nil {
			return nil, fmt.Errorf("capture: invalid hex payload: %w", err)
		}
		if len(b) == 0 {
			return nil, fmt.Errorf("capture: empty payload: %q", line)
		}
		recs = append(recs, Record{At: time.Duration(tsNs), Direction: dir, Data: b})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// ReadFile reads a capture log from path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAll(f)
}

// Writer appends serial traffic to a capture log. It satisfies board.SerialTap.
// Not safe for concurrent use.
type Writer struct {
	c      io.Closer
	w      *bufio.Writer
	now    func() time.Time
	start  time.Time
	closed bool
	err    error

	rxBytes uint64
	txBytes uint64
}

// Create opens path for writing and emits a START marker.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, time.Now)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.c = f
	return w, nil
}

// NewWriter writes to dst using now as the clock. A nil now uses time.Now.
func NewWriter(dst io.Writer, now func() time.Time) (*Writer, error) {
	if now == nil {
		now = time.Now
	}
	bw := bufio.NewWriterSize(dst, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		return nil, err
	}
	return &Writer{w: bw, now: now, start: now()}, nil
}

// Write records data in direction dir, stamped with the writer's clock.
func (ww *Writer) Write(dir Direction, data []byte) error {
	if ww.closed {
		return errors.New("capture: writer is closed")
	}
	if len(data) == 0 {
		return nil
	}
	d := ww.now().Sub(ww.start)
	if d < 0 {
		d = 0
	}
	if _, err := fmt.Fprintf(ww.w, "%d,%s,%s\n", d.Nanoseconds(), dir, hex.EncodeToString(data)); err != nil {
		return err
	}
	if dir == Rx {
		ww.rxBytes += uint64(len(data))
	} else {
		ww.txBytes += uint64(len(data))
	}
	return nil
}

// SerialRx records bytes received by the board. The first write error is
// kept and reported by Close.
func (ww *Writer) SerialRx(p []byte) { ww.tap(Rx, p) }

// SerialTx records bytes sent by the board.
func (ww *Writer) SerialTx(p []byte) { ww.tap(Tx, p) }

func (ww *Writer) tap(dir Direction, p []byte) {
	if ww.err != nil || ww.closed {
		return
	}
	if err := ww.Write(dir, p); err != nil {
		ww.err = err
		log.Printf("capture: write failed, recording stopped: %v", err)
	}
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	log.Printf("capture: closed (rx %s, tx %s)", humanize.Bytes(ww.rxBytes), humanize.Bytes(ww.txBytes))
	err := ww.w.Flush()
	if ww.c != nil {
		if cerr := ww.c.Close(); err == nil {
			err = cerr
		}
	}
	if err == nil {
		err = ww.err
	}
	return err
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Play replays records of direction dir with their relative timing and calls
// cb for each. START markers reset the origin.
//
// speed: 1.0 = real time, 2.0 = twice as fast.
func Play(records []Record, dir Direction, speed float64, loop bool, sleeper Sleeper, cb func(data []byte) error) error {
	if speed <= 0 {
		return fmt.Errorf("capture: speed must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("capture: callback is nil")
	}
	if len(records) == 0 {
		return errors.New("capture: no records")
	}

	for {
		var origin, lastAt time.Duration
		haveLast := false
		played := 0

		for _, r := range records {
			if r.IsStart() {
				origin = r.At
				lastAt = 0
				haveLast = false
				continue
			}
			if r.Direction != dir {
				continue
			}
			at := r.At - origin
			if at < 0 {
				at = 0
			}
			if haveLast {
				if wait := time.Duration(float64(at-lastAt) / speed); wait > 0 {
					sleeper.Sleep(wait)
				}
			}
			if err := cb(r.Data); err != nil {
				return err
			}
			lastAt = at
			haveLast = true
			played++
		}

		if played == 0 {
			return fmt.Errorf("capture: no %s records", dir)
		}
		if !loop {
			return nil
		}
	}
}
