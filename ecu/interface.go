package ecu

import "time"

// TelemetryReader is the read side of the store, used by the IPC publishers
// and the renderer feed.
type TelemetryReader interface {
	// Read returns every renderer value taken under one lock
	Read() Reading

	// GetSpeed returns the current speed in km/h
	GetSpeed() float64

	// GetStateOfCharge returns remaining energy over capacity
	GetStateOfCharge() float64

	// GetRange returns the estimated range in metres
	GetRange() float64

	// GetErrorCode returns the last controller fault code
	GetErrorCode() uint8

	// IsDataStale returns true if no frames arrived recently
	IsDataStale() bool
}

// FrameHandler consumes raw frames from a log or bus source.
type FrameHandler interface {
	HandleFrame(frame RawFrame, now time.Time) error
}

var (
	_ TelemetryReader = (*Store)(nil)
	_ FrameHandler    = (*Store)(nil)
)
