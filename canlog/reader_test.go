package canlog

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"curtis-cluster/ecu"

	"github.com/brutella/can"
)

type recordedFrame struct {
	frame ecu.RawFrame
	now   time.Time
}

// recorder is a FrameHandler that keeps every frame and decodes it the way
// the store does.
type recorder struct {
	mu     sync.Mutex
	frames []recordedFrame
}

func (r *recorder) HandleFrame(frame ecu.RawFrame, now time.Time) error {
	r.mu.Lock()
	r.frames = append(r.frames, recordedFrame{frame, now})
	r.mu.Unlock()

	_, err := ecu.Decode(frame)
	if errors.Is(err, ecu.ErrSeparator) {
		return nil
	}
	return err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestParseLine(t *testing.T) {
	line, err := ParseLine("(1436509053.650713) can0 1A6#0A00E803000000A0\n")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if line.Bus != "can0" {
		t.Errorf("bus: got %q", line.Bus)
	}
	if line.Frame.ID != ecu.FrameM1 || line.Frame.Payload != "0A00E803000000A0" {
		t.Errorf("frame: got %+v", line.Frame)
	}
	if line.Time().Unix() != 1436509053 {
		t.Errorf("time: got %v", line.Time())
	}
	if ms := line.Time().Nanosecond() / 1e6; ms != 650 {
		t.Errorf("time fraction: got %d ms", ms)
	}
}

func TestParseLine_Errors(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{"", ErrSkipLine},
		{"   \n", ErrSkipLine},
		{"# comment", ErrSkipLine},
		{"1A6#0000", ErrUnparsableLine},
		{"(123.4) can0", ErrUnparsableLine},
		{"(abc) can0 1A6#00", ErrUnparsableLine},
	}

	for _, tt := range tests {
		if _, err := ParseLine(tt.line); !errors.Is(err, tt.want) {
			t.Errorf("ParseLine(%q): expected %v, got %v", tt.line, tt.want, err)
		}
	}
}

const sampleLog = `# recorded on the bench
(100.000) can0 1A6#0A00E803000000A0
(100.010) can0 2A6#C8006400050000C8

garbage line
(100.020) can0 3A6#0000
(100.030) can0 5A6#00
(100.040) can0 726#05
(100.050) can0 4A6#0000000000001405`

func TestReader_SkipsBadInput(t *testing.T) {
	rec := &recorder{}
	r := NewReader(strings.NewReader(sampleLog), rec, ReaderConfig{}, nil)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	st := r.Stats()
	if st.Lines != 9 {
		t.Errorf("lines: expected 9, got %d", st.Lines)
	}
	if st.Skipped != 2 || st.Unparsable != 1 {
		t.Errorf("skipped/unparsable: got %d/%d", st.Skipped, st.Unparsable)
	}
	if st.Unknown != 1 || st.Malformed != 1 {
		t.Errorf("unknown/malformed: got %d/%d", st.Unknown, st.Malformed)
	}
	// 1A6, 2A6, 726 and the unterminated last 4A6 line
	if st.Frames != 4 {
		t.Errorf("frames: expected 4, got %d", st.Frames)
	}
	if rec.frames[0].now.Unix() != 100 {
		t.Errorf("frames should carry the recorded timestamp, got %v", rec.frames[0].now)
	}
}

func TestReader_ReplayKeepsTiming(t *testing.T) {
	log := "(10.00) can0 726#00\n(10.05) can0 726#00\n(10.10) can0 726#00\n"
	rec := &recorder{}
	r := NewReader(strings.NewReader(log), rec, ReaderConfig{Replay: true}, nil)

	start := time.Now()
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("replay finished too fast: %v", elapsed)
	}
	if rec.count() != 3 {
		t.Errorf("expected 3 frames, got %d", rec.count())
	}
}

func TestReader_FollowPicksUpAppendedLines(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	rec := &recorder{}
	r := NewReader(pr, rec, ReaderConfig{Follow: true, PollInterval: time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	io.WriteString(pw, "(1.0) can0 726#")
	io.WriteString(pw, "00\n(1.1) can0 726#00\n")

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 frames, got %d", rec.count())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	pw.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestReader_FeedsStore(t *testing.T) {
	store := ecu.NewStore(ecu.DefaultStoreConfig(), nil)
	r := NewReader(strings.NewReader(sampleLog), store, ReaderConfig{}, nil)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	reading := store.Read()
	if reading.RPM != 1000 {
		t.Errorf("rpm: expected 1000, got %d", reading.RPM)
	}
	if reading.ContactorState != "Closed (When Main Enable = On)" {
		t.Errorf("contactor: got %q", reading.ContactorState)
	}
	if reading.DCDC != 13 {
		t.Errorf("dcdc: expected 13, got %f", reading.DCDC)
	}
}

func TestRawFrameFromCAN(t *testing.T) {
	frame := can.Frame{ID: 0x2A6, Length: 3, Data: [8]uint8{0xC8, 0x00, 0x0F}}
	raw := RawFrameFromCAN(frame)

	if raw.ID != ecu.FrameM2 || raw.Prefix != "2A6" || raw.Payload != "C8000F" {
		t.Errorf("unexpected raw frame %+v", raw)
	}
}
