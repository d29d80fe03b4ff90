package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hackflight-sim/internal/board"
	"hackflight-sim/internal/kinematics"
	"hackflight-sim/internal/sim"
	"hackflight-sim/internal/transport"
)

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestAPIStatus(t *testing.T) {
	st := NewStatus()
	st.SetStatic(10*time.Millisecond, func() transport.Snapshot {
		return transport.Snapshot{Addr: "127.0.0.1:5000", State: "listening"}
	})
	st.SetBoardState(board.Armed.String())
	st.MarkTick(time.Time{}, sim.TickInfo{
		Tick:      7,
		Sample:    kinematics.Sample{Position: kinematics.Vec3{Z: 3}, Time: 0.07},
		Derived:   kinematics.Derived{Euler: kinematics.Vec3{X: 0.5}, Altitude: 3},
		Actuation: board.Actuation{Commands: [4]float64{0.5, 0.5, 0.5, 0.5}},
	})

	ts := httptest.NewServer(Handler(st, nil, nil))
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	var snap StatusSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snap.Service != "hfsim" || snap.Board != "armed" || snap.Tick != "10ms" || snap.Ticks != 7 {
		t.Fatalf("snap=%+v", snap)
	}
	if snap.Transport.Addr != "127.0.0.1:5000" {
		t.Fatalf("transport addr=%q", snap.Transport.Addr)
	}
	if snap.Vehicle.AltitudeM != 3 || snap.Vehicle.Motors[2] != 0.5 {
		t.Fatalf("vehicle=%+v", snap.Vehicle)
	}
	if r := snap.Vehicle.RollDeg; r < 28.64 || r > 28.65 {
		t.Fatalf("roll_deg=%v", r)
	}
	if snap.LastTickUTC == "" {
		t.Fatalf("last_tick_utc empty")
	}
}

func TestAPIStatus_MethodNotAllowed(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil, nil))
	defer ts.Close()
	resp, err := http.Post(ts.URL+"/api/status", "text/plain", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
}

func TestMetricsAndRoot(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "hfsim_ticks_total 1")
	})
	ts := httptest.NewServer(Handler(NewStatus(), nil, metrics))
	defer ts.Close()

	if _, body := get(t, ts.URL+"/metrics"); !strings.Contains(string(body), "hfsim_ticks_total") {
		t.Fatalf("metrics body=%q", body)
	}
	if resp, _ := get(t, ts.URL+"/"); resp.StatusCode != http.StatusOK {
		t.Fatalf("root status=%d", resp.StatusCode)
	}
	if resp, _ := get(t, ts.URL+"/nope"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", resp.StatusCode)
	}
	if resp, _ := get(t, ts.URL+"/api/logs"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("logs without buffer status=%d", resp.StatusCode)
	}
}

func TestLogBuffer(t *testing.T) {
	b := NewLogBuffer(2)
	_, _ = b.Write([]byte("one\ntw"))
	_, _ = b.Write([]byte("o\nthree\n"))
	lines, dropped := b.Snapshot(10)
	if strings.Join(lines, ",") != "two,three" || dropped != 1 {
		t.Fatalf("lines=%v dropped=%d", lines, dropped)
	}

	ts := httptest.NewServer(Handler(NewStatus(), b, nil))
	defer ts.Close()

	_, body := get(t, ts.URL+"/api/logs?tail=1")
	var resp LogsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Lines) != 1 || resp.Lines[0] != "three" {
		t.Fatalf("lines=%v", resp.Lines)
	}
	if _, body := get(t, ts.URL+"/api/logs?format=text"); string(body) != "[dropped=1]\ntwo\nthree\n" {
		t.Fatalf("text body=%q", body)
	}
	if r, _ := get(t, ts.URL+"/api/logs?tail=0"); r.StatusCode != http.StatusBadRequest {
		t.Fatalf("tail=0 status=%d", r.StatusCode)
	}
}
