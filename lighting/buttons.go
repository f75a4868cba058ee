package lighting

import (
	"context"
	"time"
)

// Poller samples the handlebar buttons and feeds the controller. Brake and
// horn follow their buttons with a two-sample debounce. Highbeam and running
// light follow switch edges only, so a remote toggle sticks until the switch
// moves. Turn buttons toggle on press, then the hold time decides between a
// soft and a hard turn signal.
type Poller struct {
	ctrl   *Controller
	relays *RelayDriver
	log    Logger
	cfg    Config

	switches map[Input]bool
}

func NewPoller(ctrl *Controller, relays *RelayDriver, cfg Config, logger Logger) *Poller {
	if logger == nil {
		logger = NopLogger{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Poller{
		ctrl:     ctrl,
		relays:   relays,
		log:      logger,
		cfg:      cfg,
		switches: make(map[Input]bool),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("Button poller started (interval %v)", p.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("Button poller stopped")
			return
		default:
		}

		p.poll(ctx)

		if !sleep(ctx, p.cfg.PollInterval) {
			p.log.Info("Button poller stopped")
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if on, ok := p.debounced(ctx, BrakeSwitch); ok {
		p.ctrl.SetBrake(on)
	}
	if on, changed := p.edge(HighbeamSwitch); changed {
		p.ctrl.SetHighbeam(on)
	}
	if on, changed := p.edge(RunningLightSwitch); changed {
		p.ctrl.SetRunningLight(on)
	}
	if on, ok := p.debounced(ctx, HornButton); ok {
		p.ctrl.SetHorn(on)
	}

	if p.pressed(LeftTurnButton) {
		p.ctrl.ToggleLeft()
		held := p.waitForRelease(ctx, LeftTurnButton)
		p.ctrl.SetHardOverride(held > p.cfg.HardTurnSignalLimit)
	}
	if p.pressed(RightTurnButton) {
		p.ctrl.ToggleRight()
		held := p.waitForRelease(ctx, RightTurnButton)
		p.ctrl.SetHardOverride(held > p.cfg.HardTurnSignalLimit)
	}
}

func (p *Poller) pressed(in Input) bool {
	on, err := p.relays.Read(in)
	if err != nil {
		p.log.Warn("Failed to read %s: %v", in, err)
		return false
	}
	return on
}

// debounced reads twice with a short delay. ok is false when the samples
// disagree or a read fails.
func (p *Poller) debounced(ctx context.Context, in Input) (on bool, ok bool) {
	first, err := p.relays.Read(in)
	if err != nil {
		p.log.Warn("Failed to read %s: %v", in, err)
		return false, false
	}
	if !sleep(ctx, p.cfg.DebounceDelay) {
		return false, false
	}
	second, err := p.relays.Read(in)
	if err != nil {
		p.log.Warn("Failed to read %s: %v", in, err)
		return false, false
	}
	return second, first == second
}

// edge reports the switch level and whether it moved since the last poll.
// The first successful read always counts as a change.
func (p *Poller) edge(in Input) (on bool, changed bool) {
	on, err := p.relays.Read(in)
	if err != nil {
		p.log.Warn("Failed to read %s: %v", in, err)
		return false, false
	}
	last, seen := p.switches[in]
	p.switches[in] = on
	return on, !seen || last != on
}

// waitForRelease blocks while the button is held and returns the number of
// poll intervals it stayed down. It gives up early on shutdown.
func (p *Poller) waitForRelease(ctx context.Context, in Input) int {
	count := 0
	for p.pressed(in) {
		count++
		if !sleep(ctx, p.cfg.PollInterval) {
			break
		}
	}
	return count
}

// sleep waits for d and returns false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
