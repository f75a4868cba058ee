package main

import (
	"fmt"

	"curtis-cluster/ecu"
	"curtis-cluster/lighting"
)

// RedisTelemetry is the "cluster" hash as seen by other services.
// Values are formatted once here so publishers stay dumb.
type RedisTelemetry struct {
	Speed          string
	RPM            int16
	MotorPower     string
	BatteryCurrent string
	Voltage        string
	MotorTemp      string
	ControllerTemp string
	Contactor      string
	ErrorCode      uint8
	Odometer       string
	Distance       string
	SoC            string
	Range          string
	Consumption    string
	Stale          bool
}

func NewRedisTelemetry(r ecu.Reading) RedisTelemetry {
	return RedisTelemetry{
		Speed:          fmt.Sprintf("%.1f", r.Speed),
		RPM:            r.RPM,
		MotorPower:     fmt.Sprintf("%.1f", r.MotorPower),
		BatteryCurrent: fmt.Sprintf("%.1f", r.BatteryCurrent),
		Voltage:        fmt.Sprintf("%.2f", r.Voltage),
		MotorTemp:      fmt.Sprintf("%.1f", r.MotorTemp),
		ControllerTemp: fmt.Sprintf("%.1f", r.ControllerTemp),
		Contactor:      r.ContactorState,
		ErrorCode:      r.ErrorCode,
		Odometer:       fmt.Sprintf("%.1f", r.Odometer),
		Distance:       fmt.Sprintf("%.0f", r.Distance),
		SoC:            fmt.Sprintf("%.1f", r.StateOfCharge*100),
		Range:          fmt.Sprintf("%.1f", r.Range/1000),
		Consumption:    fmt.Sprintf("%.1f", r.AverageConsumption/3.6),
		Stale:          r.Stale,
	}
}

func (t RedisTelemetry) fields() map[string]interface{} {
	return map[string]interface{}{
		"speed":           t.Speed,
		"rpm":             t.RPM,
		"motor:power":     t.MotorPower,
		"battery:current": t.BatteryCurrent,
		"voltage":         t.Voltage,
		"motor:temp":      t.MotorTemp,
		"controller:temp": t.ControllerTemp,
		"contactor":       t.Contactor,
		"error-code":      t.ErrorCode,
		"odometer":        t.Odometer,
		"trip":            t.Distance,
		"soc":             t.SoC,
		"range":           t.Range,
		"consumption":     t.Consumption,
		"data":            onOff(!t.Stale, "fresh", "stale"),
	}
}

// RedisLights is the "cluster:lights" hash.
type RedisLights struct {
	Blinker  string // off, left, right, both
	Highbeam bool
	Running  bool
	Brake    bool
	Horn     bool
	Hold     bool
}

func NewRedisLights(s lighting.State) RedisLights {
	blinker := "off"
	switch {
	case s.Warning:
		blinker = "both"
	case s.LeftActive:
		blinker = "left"
	case s.RightActive:
		blinker = "right"
	}
	return RedisLights{
		Blinker:  blinker,
		Highbeam: s.Highbeam,
		Running:  s.RunningLight,
		Brake:    s.Brake,
		Horn:     s.Horn,
		Hold:     s.HardOverride,
	}
}

func (l RedisLights) fields() map[string]interface{} {
	return map[string]interface{}{
		"blinker":  l.Blinker,
		"highbeam": onOff(l.Highbeam, "on", "off"),
		"running":  onOff(l.Running, "on", "off"),
		"brake":    onOff(l.Brake, "on", "off"),
		"horn":     onOff(l.Horn, "on", "off"),
		"hold":     onOff(l.Hold, "hard", "soft"),
	}
}

func onOff(b bool, on, off string) string {
	return map[bool]string{true: on, false: off}[b]
}
