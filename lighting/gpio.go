package lighting

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// GPIOSink drives the Raspberry Pi header through /dev/gpiomem. Pins are BCM
// numbers.
type GPIOSink struct {
	mu     sync.Mutex
	opened bool
}

func NewGPIOSink() *GPIOSink {
	return &GPIOSink{}
}

func (g *GPIOSink) Setup(inputs, outputs []int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.opened {
		if err := rpio.Open(); err != nil {
			return fmt.Errorf("failed to open GPIO: %w", err)
		}
		g.opened = true
	}

	for _, pin := range inputs {
		p := rpio.Pin(pin)
		p.Input()
		p.PullDown()
	}
	for _, pin := range outputs {
		rpio.Pin(pin).Output()
	}
	return nil
}

func (g *GPIOSink) Output(pin int, high bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.opened {
		return fmt.Errorf("GPIO not open")
	}
	state := rpio.Low
	if high {
		state = rpio.High
	}
	rpio.Pin(pin).Write(state)
	return nil
}

func (g *GPIOSink) Input(pin int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.opened {
		return false, fmt.Errorf("GPIO not open")
	}
	return rpio.Pin(pin).Read() == rpio.High, nil
}

func (g *GPIOSink) Cleanup() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.opened {
		return nil
	}
	g.opened = false
	return rpio.Close()
}
