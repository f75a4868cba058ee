package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"curtis-cluster/canlog"
	"curtis-cluster/ecu"
	"curtis-cluster/lighting"

	"github.com/go-redis/redis/v8"
)

const (
	ClusterAppRedisHealthInterval = 30 * time.Second
	ClusterAppRedisConnectTimeout = 5 * time.Second
	ClusterAppShutdownTimeout     = 3 * time.Second
)

// source is either a log reader or the live bus.
type source interface {
	Run(ctx context.Context) error
}

type ClusterApp struct {
	log     *LeveledLogger
	cfg     *Config
	redis   *redis.Client
	ipcRx   *IPCRx
	ipcTx   *IPCTx
	diag    *Diag
	store   *ecu.Store
	lights  *lighting.Controller
	outputs lighting.OutputSink
	poller  *lighting.Poller
	feed    *FeedServer
	cmd     *Commander
	source  source
	closer  io.Closer
	fatal   chan error
	mu      sync.Mutex
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewClusterApp(cfg *Config, logger *LeveledLogger) (*ClusterApp, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &ClusterApp{
		log:    logger,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		fatal:  make(chan error, 1),
	}

	if err := app.init(); err != nil {
		app.Destroy()
		return nil, err
	}
	return app, nil
}

func (app *ClusterApp) init() error {
	cfg := app.cfg

	app.store = ecu.NewStore(cfg.StoreConfig(), app.log)
	app.loadSnapshot()
	app.log.Info("Telemetry store initialized (SoC %.1f%%)", app.store.GetStateOfCharge()*100)

	if cfg.Redis.Enabled {
		if err := app.connectRedis(); err != nil {
			return err
		}
		app.ipcTx = NewIPCTx(app.log, app.redis)
		app.log.Info("IPC TX component initialized")
	}

	app.diag = NewDiag(app.log, app.redis)
	app.log.Info("Diagnostics component initialized")

	if cfg.Lighting.Enabled {
		if err := app.initLighting(); err != nil {
			return err
		}
	}

	app.cmd = NewCommander(app.log, app.lights, app.store)

	if app.redis != nil {
		app.ipcRx = NewIPCRx(app.log, app.redis, app.cmd, app.fail)
		app.log.Info("IPC RX component initialized")
	}

	if cfg.Feed.Enabled {
		interval := time.Duration(cfg.Feed.IntervalMs) * time.Millisecond
		app.feed = NewFeedServer(app.log, cfg.Feed.ListenAddr, interval, app.store, app.lights, app.cmd)
	}

	src, err := app.openSource()
	if err != nil {
		return err
	}
	app.source = src

	app.start()
	return nil
}

func (app *ClusterApp) connectRedis() error {
	addr := fmt.Sprintf("%s:%d", app.cfg.Redis.Addr, app.cfg.Redis.Port)

	app.redis = redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	connectCtx, connectCancel := context.WithTimeout(app.ctx, ClusterAppRedisConnectTimeout)
	defer connectCancel()

	app.log.Info("Connecting to Redis at %s...", addr)
	if err := app.redis.Ping(connectCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	app.log.Info("Successfully connected to Redis")
	return nil
}

func (app *ClusterApp) initLighting() error {
	var sink lighting.OutputSink
	switch app.cfg.IO.Type {
	case "debug":
		sink = lighting.NewDebugSink(app.log)
	default:
		sink = lighting.NewGPIOSink()
	}

	app.outputs = sink

	relays, err := lighting.NewRelayDriver(sink, app.cfg.PinMap(), app.cfg.Lighting.ActiveLow, app.log)
	if err != nil {
		return fmt.Errorf("failed to initialize relays: %w", err)
	}

	lcfg := app.cfg.LightingConfig()
	app.lights = lighting.NewController(relays, lcfg, app.log)
	app.poller = lighting.NewPoller(app.lights, relays, lcfg, app.log)
	app.log.Info("Lighting component initialized (%s outputs)", app.cfg.IO.Type)
	return nil
}

func (app *ClusterApp) openSource() (source, error) {
	sc := app.cfg.Source
	handler := &frameHandler{app: app}
	rcfg := canlog.ReaderConfig{Replay: sc.Replay, Follow: sc.Follow}

	switch sc.Type {
	case "can":
		bus, err := canlog.NewBusSource(sc.CANDevice, handler, app.log)
		if err != nil {
			return nil, err
		}
		return bus, nil

	case "serial":
		port, err := canlog.OpenSerial(sc.Path, sc.BaudRate)
		if err != nil {
			return nil, err
		}
		app.closer = port
		app.log.Info("Reading CAN log from serial %s", port)
		return canlog.NewReader(port, handler, rcfg, app.log), nil

	case "file":
		f, err := os.Open(sc.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open log: %w", err)
		}
		app.closer = f
		app.log.Info("Reading CAN log from %s (replay=%v, follow=%v)", sc.Path, sc.Replay, sc.Follow)
		return canlog.NewReader(f, handler, rcfg, app.log), nil

	default:
		app.log.Info("Reading CAN log from stdin")
		return canlog.NewReader(os.Stdin, handler, rcfg, app.log), nil
	}
}

func (app *ClusterApp) start() {
	app.goRun("source", func(ctx context.Context) {
		if err := app.source.Run(ctx); err != nil {
			app.log.Error("CAN source stopped: %v", err)
			return
		}
		app.log.Info("CAN source finished")
	})

	if app.lights != nil {
		app.goRun("blink", app.lights.Run)
		app.goRun("buttons", app.poller.Run)
	}

	if app.feed != nil {
		app.goRun("feed", func(ctx context.Context) {
			if err := app.feed.Run(ctx); err != nil {
				app.log.Error("Renderer feed stopped: %v", err)
			}
		})
	}

	if app.ipcTx != nil {
		app.goRun("publish", app.publishLoop)
		app.goRun("redis-health", app.redisHealthCheck)
	}

	if app.cfg.Snapshot.Path != "" && app.cfg.Snapshot.IntervalS > 0 {
		app.goRun("snapshot", app.snapshotLoop)
	}
}

// Fatal delivers errors that need the service to stop and restart.
func (app *ClusterApp) Fatal() <-chan error {
	return app.fatal
}

// fail reports an unrecoverable error. Only the first one is kept.
func (app *ClusterApp) fail(err error) {
	select {
	case app.fatal <- err:
	default:
	}
}

func (app *ClusterApp) goRun(name string, f func(ctx context.Context)) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		f(app.ctx)
		app.log.Debug("%s task exited", name)
	}()
}

// waitTasks gives background tasks a bounded time to exit. A reader blocked
// on stdin cannot be interrupted and is abandoned.
func (app *ClusterApp) waitTasks() {
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ClusterAppShutdownTimeout):
		app.log.Warn("Background tasks still running after %v", ClusterAppShutdownTimeout)
	}
}

// Frame handler for CAN frames from any source
type frameHandler struct {
	app *ClusterApp
}

func (h *frameHandler) HandleFrame(frame ecu.RawFrame, now time.Time) error {
	if err := h.app.store.HandleFrame(frame, now); err != nil {
		return err
	}

	if frame.ID == ecu.FrameM3 {
		h.app.diag.SetFaultCode(h.app.store.GetErrorCode())
	}
	return nil
}

func (app *ClusterApp) publishLoop(ctx context.Context) {
	interval := time.Duration(app.cfg.Redis.PublishIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.ipcTx.SendTelemetry(NewRedisTelemetry(app.store.Read())); err != nil {
				app.log.Warn("%v", err)
			}
			if app.lights != nil {
				if err := app.ipcTx.SendLights(NewRedisLights(app.lights.State())); err != nil {
					app.log.Warn("%v", err)
				}
			}
		}
	}
}

func (app *ClusterApp) redisHealthCheck(ctx context.Context) {
	ticker := time.NewTicker(ClusterAppRedisHealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := app.redis.Ping(pingCtx).Err(); err != nil {
				app.log.Warn("Redis health check failed: %v", err)
			}
			cancel()
		}
	}
}

func (app *ClusterApp) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(app.cfg.Snapshot.IntervalS) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.saveSnapshot()
		}
	}
}

func (app *ClusterApp) loadSnapshot() {
	path := app.cfg.Snapshot.Path
	if path == "" {
		return
	}

	err := app.store.LoadSnapshot(path)
	switch {
	case err == nil:
		app.log.Info("Restored snapshot from %s", path)
	case errors.Is(err, fs.ErrNotExist):
		app.log.Info("No snapshot at %s, cold start", path)
	default:
		app.log.Warn("Ignoring snapshot %s: %v", path, err)
	}
}

func (app *ClusterApp) saveSnapshot() {
	path := app.cfg.Snapshot.Path
	if path == "" || app.store == nil {
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		app.log.Error("Failed to create snapshot dir: %v", err)
		return
	}
	if err := app.store.SaveSnapshot(path); err != nil {
		app.log.Error("Failed to save snapshot: %v", err)
		return
	}
	app.log.Debug("Snapshot saved to %s", path)
}

func (app *ClusterApp) Destroy() {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.log.Info("Shutting down cluster application...")

	if app.cancel != nil {
		app.cancel()
	}

	if app.closer != nil {
		if err := app.closer.Close(); err != nil {
			app.log.Warn("Error closing CAN source: %v", err)
		}
	}

	app.waitTasks()

	if app.lights != nil {
		if err := app.lights.Shutdown(); err != nil {
			app.log.Error("Lighting shutdown error: %v", err)
		} else {
			app.log.Info("Lighting shutdown complete")
		}
	}

	app.saveSnapshot()

	if app.ipcRx != nil {
		app.ipcRx.Destroy()
		app.log.Info("IPC RX shutdown complete")
	}

	if app.diag != nil {
		app.diag.Destroy()
		app.log.Info("Diagnostics shutdown complete")
	}

	if app.ipcTx != nil {
		app.ipcTx.Destroy()
		app.log.Info("IPC TX shutdown complete")
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Error("Error closing Redis connection: %v", err)
		} else {
			app.log.Info("Redis connection closed")
		}
	}

	app.log.Info("Cluster application shutdown complete")
}
