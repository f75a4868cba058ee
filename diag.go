package main

import (
	"context"
	"sync"

	"curtis-cluster/ecu"

	"github.com/go-redis/redis/v8"
)

const (
	diagGroupName           = "cluster"
	diagFaultSetKey         = "cluster:fault"
	diagEventStream         = "events:faults"
	diagEventStreamMaxLen   = 1000
	diagNotificationChannel = "cluster"
)

// Diag turns the controller's single error code into fault set/clear events.
// With a nil client it only logs.
type Diag struct {
	log     *LeveledLogger
	redis   *redis.Client
	mu      sync.Mutex
	current ecu.Fault
	ctx     context.Context
}

func NewDiag(logger *LeveledLogger, redis *redis.Client) *Diag {
	return &Diag{
		log:   logger,
		redis: redis,
		ctx:   context.Background(),
	}
}

func (d *Diag) Destroy() {}

// SetFaultCode records the code from the latest M3 frame. A change clears the
// previous fault and raises the new one.
func (d *Diag) SetFaultCode(code uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fault := ecu.Fault(code)
	if fault == d.current {
		return
	}

	if d.current != ecu.FaultNone {
		d.log.Info("Fault cleared: code=%d, description=%s", d.current, ecu.GetFaultDescription(d.current))
		d.reportFaultAbsent(d.current)
	}

	d.current = fault
	if fault == ecu.FaultNone {
		return
	}

	config, ok := ecu.GetFaultConfig(fault)
	if !ok {
		config = ecu.FaultConfig{Code: fault, Description: ecu.GetFaultDescription(fault), Severity: ecu.SeverityWarning}
	}
	if config.Severity == ecu.SeverityCritical {
		d.log.Error("Fault set: code=%d, description=%s", fault, config.Description)
	} else {
		d.log.Warn("Fault set: code=%d, description=%s", fault, config.Description)
	}
	d.reportFaultPresent(fault, config)
}

func (d *Diag) Current() ecu.Fault {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *Diag) reportFaultPresent(fault ecu.Fault, config ecu.FaultConfig) {
	if d.redis == nil {
		return
	}

	pipe := d.redis.Pipeline()

	pipe.SAdd(d.ctx, diagFaultSetKey, uint32(fault))

	pipe.XAdd(d.ctx, &redis.XAddArgs{
		Stream: diagEventStream,
		MaxLen: diagEventStreamMaxLen,
		Values: map[string]interface{}{
			"group":       diagGroupName,
			"code":        uint32(fault),
			"description": config.Description,
		},
	})

	pipe.Publish(d.ctx, diagNotificationChannel, "fault")

	if _, err := pipe.Exec(d.ctx); err != nil {
		d.log.Error("Failed to report fault present: %v", err)
	}
}

func (d *Diag) reportFaultAbsent(fault ecu.Fault) {
	if d.redis == nil {
		return
	}

	pipe := d.redis.Pipeline()

	pipe.SRem(d.ctx, diagFaultSetKey, uint32(fault))

	pipe.XAdd(d.ctx, &redis.XAddArgs{
		Stream: diagEventStream,
		MaxLen: diagEventStreamMaxLen,
		Values: map[string]interface{}{
			"group": diagGroupName,
			"code":  -int32(fault),
		},
	})

	pipe.Publish(d.ctx, diagNotificationChannel, "fault")

	if _, err := pipe.Exec(d.ctx); err != nil {
		d.log.Error("Failed to report fault absent: %v", err)
	}
}
