// Package logsink implements the bounded, drop-oldest log queue the
// attitude core enqueues records into and a background writer drains
// to a CSV-equivalent file, per the multi-writer log sink policy: the
// core must never block on the writer.
package logsink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/arobi/flightcore/internal/obslog"
)

// Entry is one control-cycle log record.
type Entry struct {
	Loop                   uint64
	Roll, Pitch, Yaw       float64
	DRoll, DPitch, DYaw    float64
	U                      [4]float64
	Esc                    [4]float64
	BatteryVolts           float64
}

// Sink is a fixed-capacity, single-reader/multi-writer queue: when
// full, Enqueue drops the oldest pending entry rather than blocking.
type Sink struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
}

// NewSink creates a sink with the given bounded capacity.
func NewSink(capacity int) *Sink {
	if capacity <= 0 {
		capacity = 1
	}
	return &Sink{cap: capacity}
}

// Enqueue adds an entry, dropping the oldest if the queue is full.
func (s *Sink) Enqueue(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) >= s.cap {
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, e)
}

func (s *Sink) drain() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil
	}
	out := s.entries
	s.entries = nil
	return out
}

// Writer drains a Sink to a CSV-equivalent writer on a fixed cadence,
// run as a goroutine until ctx is cancelled.
type Writer struct {
	sink *Sink
	w    *csv.Writer
	out  io.Closer
}

// NewFileWriter opens (or creates) path for append and wraps it as a
// CSV writer, writing a header if the file is new.
func NewFileWriter(sink *Sink, path string) (*Writer, error) {
	info, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logsink: open %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if statErr != nil || info.Size() == 0 {
		w.Write([]string{
			"loop", "roll", "pitch", "yaw", "droll", "dpitch", "dyaw",
			"u0", "u1", "u2", "u3", "esc0", "esc1", "esc2", "esc3", "v_batt",
		})
		w.Flush()
	}

	return &Writer{sink: sink, w: w, out: f}, nil
}

// Run drains the sink on the given period until ctx is done.
func (w *Writer) Run(ctx context.Context, period time.Duration) {
	defer w.out.Close()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.flushAll()
			return
		case <-ticker.C:
			w.flushAll()
		}
	}
}

func (w *Writer) flushAll() {
	entries := w.sink.drain()
	for _, e := range entries {
		record := []string{
			strconv.FormatUint(e.Loop, 10),
			formatFloat(e.Roll), formatFloat(e.Pitch), formatFloat(e.Yaw),
			formatFloat(e.DRoll), formatFloat(e.DPitch), formatFloat(e.DYaw),
			formatFloat(e.U[0]), formatFloat(e.U[1]), formatFloat(e.U[2]), formatFloat(e.U[3]),
			formatFloat(e.Esc[0]), formatFloat(e.Esc[1]), formatFloat(e.Esc[2]), formatFloat(e.Esc[3]),
			formatFloat(e.BatteryVolts),
		}
		if err := w.w.Write(record); err != nil {
			obslog.Logger.WithError(err).Warn("logsink: failed to write record")
		}
	}
	w.w.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
