package lighting

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultBlinkInterval = 500 * time.Millisecond

	// Blink cycles before a soft turn signal switches itself off
	DefaultSoftTurnSignalMax = 20

	// Poll iterations a turn button must be held for a hard turn signal
	DefaultHardTurnSignalLimit = 10

	DefaultPollInterval  = 100 * time.Millisecond
	DefaultDebounceDelay = 20 * time.Millisecond
)

type Config struct {
	BlinkInterval       time.Duration
	SoftTurnSignalMax   int
	HardTurnSignalLimit int
	PollInterval        time.Duration
	DebounceDelay       time.Duration
}

func DefaultConfig() Config {
	return Config{
		BlinkInterval:       DefaultBlinkInterval,
		SoftTurnSignalMax:   DefaultSoftTurnSignalMax,
		HardTurnSignalLimit: DefaultHardTurnSignalLimit,
		PollInterval:        DefaultPollInterval,
		DebounceDelay:       DefaultDebounceDelay,
	}
}

// State is a copy of the lighting state. Active means a side is blinking;
// Lamp is whether that side's lamp is lit right now.
type State struct {
	LeftActive   bool `json:"leftActive"`
	RightActive  bool `json:"rightActive"`
	LeftLamp     bool `json:"leftLamp"`
	RightLamp    bool `json:"rightLamp"`
	Warning      bool `json:"warning"`
	HardOverride bool `json:"hardOverride"`
	Highbeam     bool `json:"highbeam"`
	RunningLight bool `json:"runningLight"`
	Brake        bool `json:"brake"`
	Horn         bool `json:"horn"`
	CycleCount   int  `json:"cycleCount"`
}

// Controller owns the turn signal state machine and the steady outputs.
// Buttons, remote commands and the blink loop all go through it.
type Controller struct {
	mu     sync.Mutex
	log    Logger
	relays *RelayDriver
	cfg    Config
	state  State
	closed bool
}

func NewController(relays *RelayDriver, cfg Config, logger Logger) *Controller {
	if logger == nil {
		logger = NopLogger{}
	}
	if cfg.BlinkInterval <= 0 {
		cfg.BlinkInterval = DefaultBlinkInterval
	}
	return &Controller{
		log:    logger,
		relays: relays,
		cfg:    cfg,
	}
}

// set writes an output and logs failures. Must be called with the lock held.
func (c *Controller) set(out Output, on bool) {
	if c.closed {
		return
	}
	if err := c.relays.Set(out, on); err != nil {
		c.log.Warn("Failed to set %s: %v", out, err)
	}
}

func (c *Controller) activateLeft() {
	c.state.LeftActive = true
	c.state.CycleCount = 0
	if c.state.LeftLamp {
		c.set(LeftTurn, false)
	}
	// The first tick switches the lamp on
	c.state.LeftLamp = false
}

func (c *Controller) activateRight() {
	c.state.RightActive = true
	c.state.CycleCount = 0
	if c.state.RightLamp {
		c.set(RightTurn, false)
	}
	c.state.RightLamp = false
}

func (c *Controller) deactivateLeft() {
	wasOn := c.state.LeftActive || c.state.LeftLamp
	c.state.LeftActive = false
	c.state.LeftLamp = false
	if wasOn {
		c.set(LeftTurn, false)
	}
}

func (c *Controller) deactivateRight() {
	wasOn := c.state.RightActive || c.state.RightLamp
	c.state.RightActive = false
	c.state.RightLamp = false
	if wasOn {
		c.set(RightTurn, false)
	}
}

// ToggleLeft switches the left signal on or off. The right side is always
// cancelled. Ignored while warning lights are on.
func (c *Controller) ToggleLeft() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Warning {
		c.log.Debug("Left turn ignored, warning active")
		return
	}

	c.deactivateRight()
	c.state.HardOverride = false
	if c.state.LeftActive {
		c.deactivateLeft()
	} else {
		c.activateLeft()
	}
	c.log.Debug("Left turn signal: %v", c.state.LeftActive)
}

// ToggleRight mirrors ToggleLeft.
func (c *Controller) ToggleRight() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Warning {
		c.log.Debug("Right turn ignored, warning active")
		return
	}

	c.deactivateLeft()
	c.state.HardOverride = false
	if c.state.RightActive {
		c.deactivateRight()
	} else {
		c.activateRight()
	}
	c.log.Debug("Right turn signal: %v", c.state.RightActive)
}

// ToggleWarning switches the hazard lights. Turning them on blinks both
// sides with hard override; turning them off clears both sides.
func (c *Controller) ToggleWarning() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Warning {
		c.state.Warning = true
		c.state.HardOverride = true
		c.activateLeft()
		c.activateRight()
	} else {
		c.state.Warning = false
		c.state.HardOverride = false
		c.deactivateLeft()
		c.deactivateRight()
	}
	c.log.Info("Warning lights: %v", c.state.Warning)
}

// SetHardOverride marks the current turn signal as held (no soft shutoff).
// Warning mode keeps its own override.
func (c *Controller) SetHardOverride(hard bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Warning {
		return
	}
	c.state.HardOverride = hard
}

func (c *Controller) SetHighbeam(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSteady(Highbeam, &c.state.Highbeam, on)
}

func (c *Controller) ToggleHighbeam() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSteady(Highbeam, &c.state.Highbeam, !c.state.Highbeam)
}

func (c *Controller) SetRunningLight(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSteady(RunningLight, &c.state.RunningLight, on)
}

func (c *Controller) SetBrake(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSteady(BrakeLight, &c.state.Brake, on)
}

func (c *Controller) SetHorn(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSteady(Horn, &c.state.Horn, on)
}

// setSteady only touches the relay when the requested state differs.
func (c *Controller) setSteady(out Output, current *bool, on bool) {
	if *current == on {
		return
	}
	*current = on
	c.log.Debug("%s: %v", out, on)
	c.set(out, on)
}

// Tick advances the blink state machine by one interval.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || (!c.state.LeftActive && !c.state.RightActive) {
		return
	}

	if c.state.LeftActive {
		c.state.LeftLamp = !c.state.LeftLamp
		c.set(LeftTurn, c.state.LeftLamp)
	}
	if c.state.RightActive {
		c.state.RightLamp = !c.state.RightLamp
		c.set(RightTurn, c.state.RightLamp)
	}

	if !c.state.HardOverride && c.state.CycleCount > c.cfg.SoftTurnSignalMax {
		c.log.Debug("Turn signal timed out after %d cycles", c.state.CycleCount)
		c.deactivateLeft()
		c.deactivateRight()
		return
	}

	c.state.CycleCount++
}

// Run blinks the turn signals until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.BlinkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Shutdown drives every output off and releases the sink. Later calls do
// nothing.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.state = State{}

	c.log.Info("Lighting shutdown, all outputs off")
	return c.relays.Close()
}
