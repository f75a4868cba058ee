package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

const (
	ipcTelemetryKey     = "cluster"
	ipcLightsKey        = "cluster:lights"
	ipcTelemetryChannel = "cluster telemetry"
	ipcLightsChannel    = "cluster lights"
)

type IPCTx struct {
	log   *LeveledLogger
	redis *redis.Client
	mu    sync.Mutex
	ctx   context.Context

	lastLights RedisLights
	sentLights bool
}

func NewIPCTx(logger *LeveledLogger, redis *redis.Client) *IPCTx {
	return &IPCTx{
		log:   logger,
		redis: redis,
		ctx:   context.Background(),
	}
}

func (tx *IPCTx) Destroy() {}

func (tx *IPCTx) SendTelemetry(data RedisTelemetry) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	pipe := tx.redis.Pipeline()
	pipe.HSet(tx.ctx, ipcTelemetryKey, data.fields())
	pipe.Publish(tx.ctx, ipcTelemetryChannel, nil)

	if _, err := pipe.Exec(tx.ctx); err != nil {
		return fmt.Errorf("failed to send telemetry: %w", err)
	}
	return nil
}

// SendLights only writes when the published view changed; blinking lamps
// would otherwise publish on every tick.
func (tx *IPCTx) SendLights(data RedisLights) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.sentLights && data == tx.lastLights {
		return nil
	}

	pipe := tx.redis.Pipeline()
	pipe.HSet(tx.ctx, ipcLightsKey, data.fields())
	pipe.Publish(tx.ctx, ipcLightsChannel, data.Blinker)

	if _, err := pipe.Exec(tx.ctx); err != nil {
		return fmt.Errorf("failed to send lights: %w", err)
	}

	tx.lastLights = data
	tx.sentLights = true
	return nil
}
