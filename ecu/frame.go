package ecu

import (
	"errors"
	"fmt"
	"strings"
)

// FrameID identifies one of the Curtis broadcast frames.
type FrameID int

const (
	FrameUnknown FrameID = iota
	FrameM1
	FrameM2
	FrameM3
	FrameM4
	FrameSeparator
)

const (
	// Curtis CAN IDs as written in candump logs
	M1Prefix        = "1A6"
	M2Prefix        = "2A6"
	M3Prefix        = "3A6"
	M4Prefix        = "4A6"
	SeparatorPrefix = "726"
)

var (
	// ErrUnknownFrame is returned for frames outside the Curtis set.
	ErrUnknownFrame = errors.New("unknown CAN data")

	// ErrSeparator marks the 0x726 frame. It carries no telemetry.
	ErrSeparator = errors.New("separator frame")
)

func (id FrameID) String() string {
	switch id {
	case FrameM1:
		return "1A6"
	case FrameM2:
		return "2A6"
	case FrameM3:
		return "3A6"
	case FrameM4:
		return "4A6"
	case FrameSeparator:
		return "726"
	default:
		return "unknown"
	}
}

// RawFrame is one CAN frame as it appears in a log: an id and the data
// bytes rendered as hex ASCII.
type RawFrame struct {
	ID      FrameID
	Prefix  string
	Payload string
}

// frameIDForPrefix matches on the leading three characters.
func frameIDForPrefix(data string) FrameID {
	switch {
	case strings.HasPrefix(data, M1Prefix):
		return FrameM1
	case strings.HasPrefix(data, M2Prefix):
		return FrameM2
	case strings.HasPrefix(data, M3Prefix):
		return FrameM3
	case strings.HasPrefix(data, M4Prefix):
		return FrameM4
	case strings.HasPrefix(data, SeparatorPrefix):
		return FrameSeparator
	default:
		return FrameUnknown
	}
}

// ParseRawFrame splits a candump data field such as "1A6#0A00E803..." into
// a RawFrame. Anything without a recognised prefix is FrameUnknown.
func ParseRawFrame(data string) RawFrame {
	prefix, payload, _ := strings.Cut(data, "#")
	return RawFrame{
		ID:      frameIDForPrefix(data),
		Prefix:  prefix,
		Payload: payload,
	}
}

// Decode runs the decoder that matches the frame id.
func Decode(frame RawFrame) (Message, error) {
	switch frame.ID {
	case FrameM1:
		return DecodeMotor(frame.Payload)
	case FrameM2:
		return DecodePower(frame.Payload)
	case FrameM3:
		return DecodeOdometer(frame.Payload)
	case FrameM4:
		return DecodeAux(frame.Payload)
	case FrameSeparator:
		return nil, ErrSeparator
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, frame.Prefix)
	}
}
