package main

import (
	"errors"
	"fmt"
	"strings"

	"curtis-cluster/ecu"
	"curtis-cluster/lighting"
)

// Remote commands, mirroring the dashboard's touch actions.
const (
	CommandToggleLeft     = "toggle-left"
	CommandToggleRight    = "toggle-right"
	CommandToggleWarning  = "toggle-warning"
	CommandToggleHighbeam = "toggle-highbeam"
	CommandResetSoC       = "reset-soc"
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrLightingOffline = errors.New("lighting is disabled")
)

// Commander dispatches commands from Redis and the WebSocket feed.
type Commander struct {
	log    *LeveledLogger
	lights *lighting.Controller // nil when lighting is disabled
	store  *ecu.Store
}

func NewCommander(logger *LeveledLogger, lights *lighting.Controller, store *ecu.Store) *Commander {
	return &Commander{
		log:    logger,
		lights: lights,
		store:  store,
	}
}

func (c *Commander) Execute(cmd string) error {
	cmd = strings.ToLower(strings.TrimSpace(cmd))

	if cmd == CommandResetSoC {
		c.store.ResetEnergy()
		return nil
	}

	var action func()
	switch cmd {
	case CommandToggleLeft:
		action = c.lights.ToggleLeft
	case CommandToggleRight:
		action = c.lights.ToggleRight
	case CommandToggleWarning:
		action = c.lights.ToggleWarning
	case CommandToggleHighbeam:
		action = c.lights.ToggleHighbeam
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	if c.lights == nil {
		return fmt.Errorf("%s: %w", cmd, ErrLightingOffline)
	}
	c.log.Debug("Executing command %s", cmd)
	action()
	return nil
}
