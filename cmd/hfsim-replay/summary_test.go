package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hackflight-sim/internal/capture"
	"hackflight-sim/internal/msp"
)

func frame(t *testing.T, dir msp.Direction, cmd uint8) []byte {
	t.Helper()
	b, err := msp.Encode(dir, cmd, nil)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	return b
}

func TestSummarize(t *testing.T) {
	att := frame(t, msp.ToBoard, msp.CmdAttitude)
	reply := frame(t, msp.FromBoard, msp.CmdAttitude)
	bad := append([]byte(nil), att...)
	bad[len(bad)-1] ^= 0xFF

	recs := []capture.Record{
		{},
		{At: 0, Direction: capture.Rx, Data: att[:3]},
		{At: 10 * time.Millisecond, Direction: capture.Rx, Data: att[3:]},
		{At: 20 * time.Millisecond, Direction: capture.Tx, Data: reply},
		{At: 30 * time.Millisecond, Direction: capture.Rx, Data: bad},
		{},
		{At: time.Second, Direction: capture.Rx, Data: frame(t, msp.ToBoard, msp.CmdRawIMU)},
	}
	s := summarize(recs)
	if s.Segments != 2 {
		t.Fatalf("segments=%d want 2", s.Segments)
	}
	if s.Records[capture.Rx] != 4 || s.Records[capture.Tx] != 1 {
		t.Fatalf("records=%v", s.Records)
	}
	if s.Frames[capture.Rx][msp.CmdAttitude] != 1 || s.Frames[capture.Rx][msp.CmdRawIMU] != 1 || s.Frames[capture.Tx][msp.CmdAttitude] != 1 {
		t.Fatalf("frames=%v", s.Frames)
	}
	if s.BadFrames[capture.Rx] != 1 {
		t.Fatalf("bad frames=%v", s.BadFrames)
	}
	if s.MaxDuration != time.Second {
		t.Fatalf("max duration=%s want 1s", s.MaxDuration)
	}
}

func TestPrintSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial.log")
	req := frame(t, msp.ToBoard, msp.CmdMotor)
	contents := "START\n0,rx," + hexOf(req) + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	var out bytes.Buffer
	if err := printSummary(&out, path); err != nil {
		t.Fatalf("printSummary() error: %v", err)
	}
	for _, want := range []string{"segments: 1", "rx: 1 records, 6 B, 0 bad frames", "cmd 104: 1"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("summary missing %q:\n%s", want, out.String())
		}
	}
	if err := printSummary(&out, " "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func hexOf(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, 2*len(b))
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0x0f])
	}
	return string(out)
}

func TestReplay_SendsRxBytes(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer ln.Close()

	got := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 64)
		var all []byte
		for len(all) < 5 {
			n, err := c.Read(buf)
			if err != nil {
				break
			}
			all = append(all, buf[:n]...)
		}
		_, _ = c.Write([]byte{0xAA})
		got <- all
	}()

	recs := []capture.Record{
		{},
		{At: 0, Direction: capture.Rx, Data: []byte{1, 2, 3}},
		{At: time.Millisecond, Direction: capture.Tx, Data: []byte{9}},
		{At: 2 * time.Millisecond, Direction: capture.Rx, Data: []byte{4, 5}},
	}
	var out bytes.Buffer
	if err := replay(context.Background(), ln.Addr().String(), recs, 10, false, &out); err != nil {
		t.Fatalf("replay() error: %v", err)
	}
	select {
	case b := <-got:
		if string(b) != "\x01\x02\x03\x04\x05" {
			t.Fatalf("server got % x", b)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server never received bytes")
	}
}
