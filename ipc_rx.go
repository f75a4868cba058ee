package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

const ipcCommandChannel = "cluster:command"

type IPCRx struct {
	log       *LeveledLogger
	redis     *redis.Client
	commander *Commander
	onFatal   func(error)
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc

	commandSubscription *redis.PubSub
}

// NewIPCRx subscribes to the command channel. onFatal is called once if the
// Redis client goes away underneath the subscription.
func NewIPCRx(logger *LeveledLogger, redis *redis.Client, commander *Commander, onFatal func(error)) *IPCRx {
	ctx, cancel := context.WithCancel(context.Background())

	rx := &IPCRx{
		log:       logger,
		redis:     redis,
		commander: commander,
		onFatal:   onFatal,
		ctx:       ctx,
		cancel:    cancel,
	}

	rx.commandSubscription = rx.redis.Subscribe(rx.ctx, ipcCommandChannel)
	go rx.handleCommandSubscription()

	return rx
}

func (rx *IPCRx) handleCommandSubscription() {
	rx.log.Info("Starting command subscription handler")

	for {
		msg, err := rx.commandSubscription.Receive(rx.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// Closed client: stop the service so it shuts down cleanly and
			// systemd restarts it
			if err.Error() == "redis: client is closed" {
				if rx.ctx.Err() != nil {
					return
				}
				rx.log.Error("Redis connection lost on command subscription")
				if rx.onFatal != nil {
					rx.onFatal(fmt.Errorf("command subscription: %w", err))
				}
				return
			}
			rx.log.Error("Command subscription error: %v", err)
			continue
		}

		switch m := msg.(type) {
		case *redis.Message:
			rx.log.Debug("Command received: channel=%s, payload=%s", m.Channel, m.Payload)
			if err := rx.commander.Execute(m.Payload); err != nil {
				rx.log.Warn("Command %q rejected: %v", m.Payload, err)
			}

		case *redis.Subscription:
			rx.log.Debug("Command subscription event: %s %s", m.Channel, m.Kind)
		}
	}
}

func (rx *IPCRx) Destroy() {
	rx.mu.Lock()
	defer rx.mu.Unlock()

	if rx.cancel != nil {
		rx.cancel()
	}

	if rx.commandSubscription != nil {
		rx.commandSubscription.Close()
	}
}
