package canlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"curtis-cluster/ecu"
)

const DefaultPollInterval = 100 * time.Millisecond

var (
	// ErrSkipLine marks blank lines and comments.
	ErrSkipLine = errors.New("skip line")

	// ErrUnparsableLine marks lines that are not "(<ts>) <bus> <frame>".
	ErrUnparsableLine = errors.New("unparsable line")
)

// Line is one candump log entry.
type Line struct {
	Timestamp float64 // seconds, as recorded
	Bus       string
	Frame     ecu.RawFrame
}

// Time converts the recorded timestamp to a time.Time.
func (l Line) Time() time.Time {
	sec, frac := math.Modf(l.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// ParseLine parses a candump -l style line such as
// "(1436509053.650713) can0 1A6#0A00E803000000A0".
func ParseLine(s string) (Line, error) {
	l := strings.TrimSpace(s)
	if l == "" || strings.HasPrefix(l, "#") {
		return Line{}, ErrSkipLine
	}
	if !strings.HasPrefix(l, "(") {
		return Line{}, fmt.Errorf("%w: %q", ErrUnparsableLine, l)
	}

	fields := strings.Fields(l)
	if len(fields) < 3 {
		return Line{}, fmt.Errorf("%w: %q", ErrUnparsableLine, l)
	}

	stamp := strings.TrimSuffix(strings.TrimPrefix(fields[0], "("), ")")
	ts, err := strconv.ParseFloat(stamp, 64)
	if err != nil {
		return Line{}, fmt.Errorf("%w: bad timestamp %q", ErrUnparsableLine, fields[0])
	}

	return Line{
		Timestamp: ts,
		Bus:       fields[1],
		Frame:     ecu.ParseRawFrame(fields[2]),
	}, nil
}

type ReaderConfig struct {
	// Replay sleeps for the recorded gap between lines
	Replay bool

	// Follow keeps polling at end of input instead of returning
	Follow bool

	PollInterval time.Duration
}

// Stats counts what a Reader has seen.
type Stats struct {
	Lines      int
	Frames     int
	Skipped    int
	Unparsable int
	Unknown    int
	Malformed  int
}

// Reader feeds log lines into a frame handler. Bad lines and frames are
// logged and skipped.
type Reader struct {
	src     io.Reader
	handler ecu.FrameHandler
	log     ecu.Logger
	cfg     ReaderConfig

	mu    sync.Mutex
	stats Stats

	lastStamp float64
	haveStamp bool
}

func NewReader(src io.Reader, handler ecu.FrameHandler, cfg ReaderConfig, logger ecu.Logger) *Reader {
	if logger == nil {
		logger = ecu.NopLogger{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Reader{
		src:     src,
		handler: handler,
		log:     logger,
		cfg:     cfg,
	}
}

// Run reads until ctx is cancelled, or until end of input when not
// following. Only read errors other than EOF are returned.
func (r *Reader) Run(ctx context.Context) error {
	br := bufio.NewReader(r.src)
	var partial strings.Builder

	for {
		if ctx.Err() != nil {
			return nil
		}

		chunk, err := br.ReadString('\n')
		partial.WriteString(chunk)

		switch {
		case err == nil:
			line := partial.String()
			partial.Reset()
			if !r.handleLine(ctx, line) {
				return nil
			}

		case errors.Is(err, io.EOF):
			if !r.cfg.Follow {
				if partial.Len() > 0 {
					r.handleLine(ctx, partial.String())
				}
				return nil
			}
			if !sleep(ctx, r.cfg.PollInterval) {
				return nil
			}

		default:
			return fmt.Errorf("failed to read log: %w", err)
		}
	}
}

// handleLine returns false if ctx was cancelled during a replay wait.
func (r *Reader) handleLine(ctx context.Context, s string) bool {
	line, err := ParseLine(s)
	r.count(func(st *Stats) { st.Lines++ })

	if errors.Is(err, ErrSkipLine) {
		r.count(func(st *Stats) { st.Skipped++ })
		return true
	}
	if err != nil {
		r.count(func(st *Stats) { st.Unparsable++ })
		r.log.Warn("Unparsable line: %v", err)
		return true
	}

	if r.cfg.Replay && r.haveStamp {
		gap := time.Duration((line.Timestamp - r.lastStamp) * float64(time.Second))
		if gap > 0 && !sleep(ctx, gap) {
			return false
		}
	}
	r.lastStamp = line.Timestamp
	r.haveStamp = true

	err = r.handler.HandleFrame(line.Frame, line.Time())
	switch {
	case err == nil:
		r.count(func(st *Stats) { st.Frames++ })
	case errors.Is(err, ecu.ErrUnknownFrame):
		r.count(func(st *Stats) { st.Unknown++ })
		r.log.Debug("Unknown CAN data: %v", err)
	default:
		r.count(func(st *Stats) { st.Malformed++ })
		r.log.Warn("Error handling CAN frame: %v", err)
	}
	return true
}

func (r *Reader) count(f func(*Stats)) {
	r.mu.Lock()
	f(&r.stats)
	r.mu.Unlock()
}

func (r *Reader) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// sleep waits for d and returns false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
