// Command hfsim-replay plays the ground-station side of a serial capture
// back into a running simulator, or summarises a capture.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"hackflight-sim/internal/capture"
)

func main() {
	var (
		path    string
		addr    string
		speed   float64
		loop    bool
		summary bool
	)
	flag.StringVar(&path, "capture", "", "Path to serial capture log")
	flag.StringVar(&addr, "addr", "127.0.0.1:5000", "Simulator serial address")
	flag.Float64Var(&speed, "speed", 1, "Playback speed multiplier")
	flag.BoolVar(&loop, "loop", false, "Replay forever")
	flag.BoolVar(&summary, "summary", false, "Print a summary of the capture and exit")
	flag.Parse()

	if path == "" {
		log.Fatalf("-capture is required")
	}
	if summary {
		if err := printSummary(os.Stdout, path); err != nil {
			log.Fatalf("summary failed: %v", err)
		}
		return
	}

	recs, err := capture.ReadFile(path)
	if err != nil {
		log.Fatalf("capture read failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := replay(ctx, addr, recs, speed, loop, os.Stdout); err != nil && ctx.Err() == nil {
		log.Fatalf("replay failed: %v", err)
	}
}

// replay dials addr, writes the capture's rx bytes and copies whatever the
// simulator sends back to out.
func replay(ctx context.Context, addr string, recs []capture.Record, speed float64, loop bool, out io.Writer) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	recvDone := make(chan int64, 1)
	go func() {
		n, _ := io.Copy(hexDumper{out}, conn)
		recvDone <- n
	}()

	var sent uint64
	err = capture.Play(recs, capture.Rx, speed, loop, nil, func(data []byte) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Write(data)
		sent += uint64(n)
		return err
	})
	if err != nil {
		return err
	}

	// Give the simulator a moment to answer the last request.
	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	got := <-recvDone
	log.Printf("replay: sent %s, received %s", humanize.Bytes(sent), humanize.Bytes(uint64(got)))
	return nil
}

type hexDumper struct{ w io.Writer }

func (h hexDumper) Write(p []byte) (int, error) {
	if _, err := fmt.Fprintf(h.w, "% x\n", p); err != nil {
		return 0, err
	}
	return len(p), nil
}
