package lighting

import (
	"fmt"
	"sync"
)

// DebugSink keeps pin levels in memory and logs every change. Inputs start
// low, as with the pull-downs on the real board, and can be driven with
// SetInput.
type DebugSink struct {
	mu      sync.Mutex
	log     Logger
	inputs  map[int]bool
	outputs map[int]bool
	writes  map[int]int
}

func NewDebugSink(logger Logger) *DebugSink {
	if logger == nil {
		logger = NopLogger{}
	}
	return &DebugSink{
		log:     logger,
		inputs:  make(map[int]bool),
		outputs: make(map[int]bool),
		writes:  make(map[int]int),
	}
}

func (s *DebugSink) Setup(inputs, outputs []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pin := range inputs {
		if _, ok := s.inputs[pin]; ok {
			s.log.Warn("Pin %d is already set up as input", pin)
			continue
		}
		s.inputs[pin] = false
	}
	for _, pin := range outputs {
		if _, ok := s.inputs[pin]; ok {
			return fmt.Errorf("pin %d is already an input", pin)
		}
		s.outputs[pin] = false
	}
	return nil
}

func (s *DebugSink) Output(pin int, high bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.outputs[pin]
	if !ok {
		return fmt.Errorf("pin %d is not an output pin", pin)
	}
	s.log.Debug("Changed pin %d from %v to %v", pin, prev, high)
	s.outputs[pin] = high
	s.writes[pin]++
	return nil
}

func (s *DebugSink) Input(pin int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.inputs[pin]
	if !ok {
		return false, fmt.Errorf("pin %d is not an input pin", pin)
	}
	return v, nil
}

func (s *DebugSink) Cleanup() error {
	s.log.Debug("Cleaning up debug pins")
	return nil
}

// SetInput drives a simulated input pin.
func (s *DebugSink) SetInput(pin int, high bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[pin] = high
}

// Level returns the last level written to an output pin.
func (s *DebugSink) Level(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[pin]
}

// Writes returns how many times an output pin was written.
func (s *DebugSink) Writes(pin int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[pin]
}
