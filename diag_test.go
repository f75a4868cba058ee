package main

import (
	"testing"
	"time"

	"curtis-cluster/ecu"
)

func TestDiag_TracksCurrentFault(t *testing.T) {
	d := NewDiag(newTestLogger(), nil)

	tests := []struct {
		code uint8
		want ecu.Fault
	}{
		{0, ecu.FaultNone},
		{uint8(ecu.FaultUndervoltageCutback), ecu.FaultUndervoltageCutback},
		{uint8(ecu.FaultUndervoltageCutback), ecu.FaultUndervoltageCutback},
		{uint8(ecu.FaultEncoder), ecu.FaultEncoder},
		{200, ecu.Fault(200)}, // not in the table, still tracked
		{0, ecu.FaultNone},
	}

	for i, tt := range tests {
		d.SetFaultCode(tt.code)
		if got := d.Current(); got != tt.want {
			t.Errorf("step %d: expected fault %d, got %d", i, tt.want, got)
		}
	}
}

func TestFrameHandler_ReportsFaults(t *testing.T) {
	app := &ClusterApp{
		log:   newTestLogger(),
		store: ecu.NewStore(ecu.DefaultStoreConfig(), nil),
	}
	app.diag = NewDiag(app.log, nil)
	h := &frameHandler{app: app}

	// error byte 0x25 = 37, motor open
	if err := h.HandleFrame(ecu.ParseRawFrame("3A6#2500000000000000"), time.Unix(100, 0)); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}
	if got := app.diag.Current(); got != ecu.FaultMotorOpen {
		t.Errorf("expected motor open fault, got %d", got)
	}

	if err := h.HandleFrame(ecu.ParseRawFrame("3A6#ZZ"), time.Unix(100, 0)); err == nil {
		t.Error("expected decode error")
	}
	if got := app.diag.Current(); got != ecu.FaultMotorOpen {
		t.Errorf("bad frame must not change the fault, got %d", got)
	}
}
