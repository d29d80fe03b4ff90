package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"hackflight-sim/internal/capture"
	"hackflight-sim/internal/msp"
)

type captureSummary struct {
	Segments    int
	Records     map[capture.Direction]int
	Bytes       map[capture.Direction]uint64
	Frames      map[capture.Direction]map[uint8]int
	BadFrames   map[capture.Direction]uint64
	MaxDuration time.Duration
}

func summarize(records []capture.Record) captureSummary {
	s := captureSummary{
		Records:   map[capture.Direction]int{},
		Bytes:     map[capture.Direction]uint64{},
		Frames:    map[capture.Direction]map[uint8]int{capture.Rx: {}, capture.Tx: {}},
		BadFrames: map[capture.Direction]uint64{},
	}
	parsers := map[capture.Direction]*msp.Parser{capture.Rx: {}, capture.Tx: {}}

	var origin time.Duration
	hasData := false
	for _, r := range records {
		if r.IsStart() {
			s.Segments++
			origin = r.At
			parsers[capture.Rx].Reset()
			parsers[capture.Tx].Reset()
			continue
		}
		hasData = true
		s.Records[r.Direction]++
		s.Bytes[r.Direction] += uint64(len(r.Data))
		if at := r.At - origin; at > s.MaxDuration {
			s.MaxDuration = at
		}
		for _, m := range parsers[r.Direction].FeedAll(r.Data) {
			s.Frames[r.Direction][m.Command]++
		}
	}
	for dir, p := range parsers {
		s.BadFrames[dir] = p.Errors()
	}
	if s.Segments == 0 && hasData {
		s.Segments = 1
	}
	return s
}

func printSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	recs, err := capture.ReadFile(path)
	if err != nil {
		return err
	}
	s := summarize(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	for _, dir := range []capture.Direction{capture.Rx, capture.Tx} {
		fmt.Fprintf(w, "%s: %d records, %s, %d bad frames\n", dir, s.Records[dir], humanize.Bytes(s.Bytes[dir]), s.BadFrames[dir])
		cmds := make([]int, 0, len(s.Frames[dir]))
		for c := range s.Frames[dir] {
			cmds = append(cmds, int(c))
		}
		sort.Ints(cmds)
		for _, c := range cmds {
			fmt.Fprintf(w, "  cmd %d: %d\n", c, s.Frames[dir][uint8(c)])
		}
	}
	return nil
}
