package msp

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncode_Layout(t *testing.T) {
	got, err := Request(CmdAttitude, nil)
	if err != nil {
		t.Fatalf("Request() error: %v", err)
	}
	want := []byte{0x24, 0x4D, 0x3C, 0x00, 0x6C, 0x6C}
	if !bytes.Equal(got, want) {
		t.Fatalf("frame=% x want % x", got, want)
	}
}

func TestEncode_Checksum(t *testing.T) {
	got, err := Reply(CmdMotor, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("Reply() error: %v", err)
	}
	wantSum := byte(2) ^ CmdMotor ^ 0x01 ^ 0x02
	if got[len(got)-1] != wantSum {
		t.Fatalf("checksum=0x%02x want 0x%02x", got[len(got)-1], wantSum)
	}
	if got[2] != '>' {
		t.Fatalf("direction=%q want '>'", got[2])
	}
}

func TestEncode_Rejects(t *testing.T) {
	if _, err := Encode(ToBoard, 1, make([]byte, 256)); err == nil {
		t.Fatalf("expected payload size error")
	}
	if _, err := Encode(Direction('x'), 1, nil); err == nil {
		t.Fatalf("expected direction error")
	}
}

func TestParser_RoundTripSplitAcrossReads(t *testing.T) {
	frame, _ := Reply(CmdAttitude, []byte{0x10, 0x00, 0xF0, 0xFF, 0x5A, 0x00})
	var p Parser

	// Feed the frame in uneven chunks, as a socket would deliver it.
	var msgs []Message
	for _, chunk := range [][]byte{frame[:2], frame[2:5], frame[5:9], frame[9:]} {
		msgs = append(msgs, p.FeedAll(chunk)...)
		if len(msgs) == 0 && !p.Pending() {
			t.Fatalf("parser dropped partial frame")
		}
	}
	if len(msgs) != 1 {
		t.Fatalf("messages=%d want 1", len(msgs))
	}
	m := msgs[0]
	if m.Direction != FromBoard || m.Command != CmdAttitude {
		t.Fatalf("message=%+v", m)
	}
	if !bytes.Equal(m.Payload, []byte{0x10, 0x00, 0xF0, 0xFF, 0x5A, 0x00}) {
		t.Fatalf("payload=% x", m.Payload)
	}
}

func TestParser_SkipsGarbageAndResyncs(t *testing.T) {
	frame, _ := Request(CmdRawIMU, nil)
	stream := append([]byte{0x00, 'x', '$', 'Q', '$'}, frame[1:]...)
	var p Parser
	msgs := p.FeedAll(stream)
	if len(msgs) != 1 || msgs[0].Command != CmdRawIMU {
		t.Fatalf("messages=%+v", msgs)
	}
	if p.Skipped() != 3 {
		t.Fatalf("skipped=%d want 3", p.Skipped())
	}
}

func TestParser_ChecksumMismatch(t *testing.T) {
	frame, _ := Request(CmdSetMotor, []byte{1, 2, 3})
	frame[len(frame)-1] ^= 0xFF

	var p Parser
	var gotErr error
	for _, b := range frame {
		if _, ok, err := p.Feed(b); ok {
			t.Fatalf("corrupt frame accepted")
		} else if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, ErrChecksum) {
		t.Fatalf("err=%v want ErrChecksum", gotErr)
	}
	if p.Errors() != 1 || p.Pending() {
		t.Fatalf("errors=%d pending=%v", p.Errors(), p.Pending())
	}

	// The next good frame still decodes.
	good, _ := Request(CmdMotor, nil)
	if msgs := p.FeedAll(good); len(msgs) != 1 {
		t.Fatalf("messages=%d want 1 after error", len(msgs))
	}
}

func TestParser_BackToBackFrames(t *testing.T) {
	a, _ := Request(CmdAttitude, nil)
	b, _ := Request(CmdAltitude, nil)
	var p Parser
	msgs := p.FeedAll(append(a, b...))
	if len(msgs) != 2 || msgs[0].Command != CmdAttitude || msgs[1].Command != CmdAltitude {
		t.Fatalf("messages=%+v", msgs)
	}
}
