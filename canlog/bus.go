package canlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"curtis-cluster/ecu"

	"github.com/brutella/can"
)

// BusSource reads Curtis frames live from a SocketCAN interface.
type BusSource struct {
	device  string
	bus     *can.Bus
	handler ecu.FrameHandler
	log     ecu.Logger
}

func NewBusSource(device string, handler ecu.FrameHandler, logger ecu.Logger) (*BusSource, error) {
	if logger == nil {
		logger = ecu.NopLogger{}
	}
	bus, err := can.NewBusForInterfaceWithName(device)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize CAN bus: %w", err)
	}
	return &BusSource{
		device:  device,
		bus:     bus,
		handler: handler,
		log:     logger,
	}, nil
}

// Handle implements can.Handler.
func (b *BusSource) Handle(frame can.Frame) {
	ecu.LogCAN(b.log, "RX", frame.ID, frame.Data[:], frame.Length)

	err := b.handler.HandleFrame(RawFrameFromCAN(frame), time.Now())
	switch {
	case err == nil:
	case errors.Is(err, ecu.ErrUnknownFrame):
		b.log.Debug("Unknown CAN data: %v", err)
	default:
		b.log.Warn("Error handling CAN frame: %v", err)
	}
}

// Run publishes bus frames to the handler until ctx is cancelled.
func (b *BusSource) Run(ctx context.Context) error {
	b.bus.Subscribe(b)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.bus.ConnectAndPublish()
	}()
	b.log.Info("Listening on CAN interface %s", b.device)

	select {
	case <-ctx.Done():
		if err := b.bus.Disconnect(); err != nil {
			b.log.Warn("Error disconnecting CAN bus: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("CAN bus publish error: %w", err)
		}
		return nil
	}
}

// RawFrameFromCAN renders a CAN frame the way candump logs it, so bus and
// log input share one decoding path.
func RawFrameFromCAN(frame can.Frame) ecu.RawFrame {
	n := int(frame.Length)
	if n > len(frame.Data) {
		n = len(frame.Data)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%03X#", frame.ID)
	for _, d := range frame.Data[:n] {
		fmt.Fprintf(&b, "%02X", d)
	}
	return ecu.ParseRawFrame(b.String())
}
