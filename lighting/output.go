package lighting

import (
	"errors"
	"fmt"
)

// OutputSink is the pin-level I/O backend: real GPIO or an in-memory stand-in.
type OutputSink interface {
	Setup(inputs, outputs []int) error
	Output(pin int, high bool) error
	Input(pin int) (bool, error)
	Cleanup() error
}

// Output is a logical relay.
type Output int

const (
	LeftTurn Output = iota
	RightTurn
	Highbeam
	RunningLight
	BrakeLight
	Horn
)

func (o Output) String() string {
	switch o {
	case LeftTurn:
		return "left-turn"
	case RightTurn:
		return "right-turn"
	case Highbeam:
		return "highbeam"
	case RunningLight:
		return "running-light"
	case BrakeLight:
		return "brake-light"
	case Horn:
		return "horn"
	default:
		return fmt.Sprintf("output-%d", int(o))
	}
}

// Input is a logical button or switch.
type Input int

const (
	LeftTurnButton Input = iota
	RightTurnButton
	HighbeamSwitch
	RunningLightSwitch
	BrakeSwitch
	HornButton
)

func (i Input) String() string {
	switch i {
	case LeftTurnButton:
		return "left-turn-button"
	case RightTurnButton:
		return "right-turn-button"
	case HighbeamSwitch:
		return "highbeam-switch"
	case RunningLightSwitch:
		return "running-light-switch"
	case BrakeSwitch:
		return "brake-switch"
	case HornButton:
		return "horn-button"
	default:
		return fmt.Sprintf("input-%d", int(i))
	}
}

// PinMap assigns BCM pin numbers to the logical inputs and outputs.
type PinMap struct {
	Outputs map[Output]int
	Inputs  map[Input]int
}

// DefaultPins is the relay board wiring in BCM numbering.
func DefaultPins() PinMap {
	return PinMap{
		Outputs: map[Output]int{
			LeftTurn:     6,
			RightTurn:    13,
			Highbeam:     19,
			RunningLight: 26,
			BrakeLight:   12,
			Horn:         16,
		},
		Inputs: map[Input]int{
			LeftTurnButton:     5,
			RightTurnButton:    25,
			HighbeamSwitch:     24,
			RunningLightSwitch: 23,
			BrakeSwitch:        22,
			HornButton:         27,
		},
	}
}

var ErrUnmappedPin = errors.New("no pin mapped")

// RelayDriver turns logical on/off commands into pin levels. The relay board
// is active-low unless configured otherwise: on means the pin is driven low.
type RelayDriver struct {
	sink      OutputSink
	pins      PinMap
	activeLow bool
	log       Logger
}

// NewRelayDriver sets up every mapped pin and drives all outputs off.
func NewRelayDriver(sink OutputSink, pins PinMap, activeLow bool, logger Logger) (*RelayDriver, error) {
	if logger == nil {
		logger = NopLogger{}
	}

	inputs := make([]int, 0, len(pins.Inputs))
	for _, pin := range pins.Inputs {
		inputs = append(inputs, pin)
	}
	outputs := make([]int, 0, len(pins.Outputs))
	for _, pin := range pins.Outputs {
		outputs = append(outputs, pin)
	}

	if err := sink.Setup(inputs, outputs); err != nil {
		return nil, fmt.Errorf("failed to set up pins: %w", err)
	}

	d := &RelayDriver{
		sink:      sink,
		pins:      pins,
		activeLow: activeLow,
		log:       logger,
	}
	if err := d.AllOff(); err != nil {
		return nil, err
	}
	return d, nil
}

// Set switches a logical output.
func (d *RelayDriver) Set(out Output, on bool) error {
	pin, ok := d.pins.Outputs[out]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnmappedPin, out)
	}

	level := on
	if d.activeLow {
		level = !on
	}

	d.log.Debug("Relay %s -> %v (pin %d high=%v)", out, on, pin, level)
	return d.sink.Output(pin, level)
}

// Read returns true while a button or switch is pressed (pin high).
func (d *RelayDriver) Read(in Input) (bool, error) {
	pin, ok := d.pins.Inputs[in]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnmappedPin, in)
	}
	return d.sink.Input(pin)
}

// AllOff drives every mapped output to off. All outputs are attempted even
// if one fails.
func (d *RelayDriver) AllOff() error {
	var errs []error
	for out := range d.pins.Outputs {
		if err := d.Set(out, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close drives all outputs off and releases the sink.
func (d *RelayDriver) Close() error {
	offErr := d.AllOff()
	return errors.Join(offErr, d.sink.Cleanup())
}
