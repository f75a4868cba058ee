package ecu

import (
	"errors"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct{}

func (l *testLogger) Debug(format string, v ...interface{}) {}
func (l *testLogger) Info(format string, v ...interface{})  {}
func (l *testLogger) Warn(format string, v ...interface{})  {}
func (l *testLogger) Error(format string, v ...interface{}) {}
func (l *testLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {
}

func newTestStore() *Store {
	return NewStore(DefaultStoreConfig(), &testLogger{})
}

func motorFrame(rpm, voltage int) RawFrame {
	return ParseRawFrame("1A6#" + motorPayload(0, rpm, 0, voltage))
}

func powerFrame(powerRaw int) RawFrame {
	return ParseRawFrame("2A6#" + powerPayload(0, 0, 5, 0, powerRaw))
}

func expectedSpeed(rpm float64) float64 {
	return GearboxAndWheelRatio * rpm / 60
}

// --- speed and distance ---

func TestStore_StationaryDistance(t *testing.T) {
	s := newTestStore()
	start := time.Unix(1000, 0)

	for _, dt := range []time.Duration{0, time.Second, 10 * time.Second} {
		if err := s.HandleFrame(motorFrame(0, 100*64), start.Add(dt)); err != nil {
			t.Fatalf("HandleFrame: %v", err)
		}
	}

	if d := s.GetDistance(); d != 0 {
		t.Errorf("expected 0 distance while stationary, got %f", d)
	}
}

func TestStore_TrapezoidDistance(t *testing.T) {
	s := newTestStore()
	start := time.Unix(1000, 0)

	s.HandleFrame(motorFrame(100, 100*64), start)
	s.HandleFrame(motorFrame(200, 100*64), start.Add(time.Second))

	expected := (expectedSpeed(100) + expectedSpeed(200)) / 2 * 1.0
	if d := s.GetDistance(); !almostEqual(d, expected) {
		t.Errorf("expected distance %f, got %f", expected, d)
	}
	if v := s.GetSpeed(); !almostEqual(v, expectedSpeed(200)*3.6) {
		t.Errorf("expected speed %f km/h, got %f", expectedSpeed(200)*3.6, v)
	}
}

func TestStore_FirstFrameDoesNotIntegrate(t *testing.T) {
	s := newTestStore()
	s.HandleFrame(motorFrame(3000, 100*64), time.Unix(1000, 0))

	if d := s.GetDistance(); d != 0 {
		t.Errorf("expected no distance from a single frame, got %f", d)
	}
}

func TestStore_NonPositiveDtSkipsIntegration(t *testing.T) {
	s := newTestStore()
	now := time.Unix(1000, 0)

	s.HandleFrame(motorFrame(1000, 100*64), now)
	s.HandleFrame(motorFrame(1000, 100*64), now)
	s.HandleFrame(motorFrame(1000, 100*64), now.Add(-time.Second))

	if d := s.GetDistance(); d != 0 {
		t.Errorf("expected 0 distance for non-positive dt, got %f", d)
	}
}

func TestStore_LowRPMIsStationary(t *testing.T) {
	s := newTestStore()
	s.HandleFrame(motorFrame(1, 100*64), time.Unix(1000, 0))
	if v := s.GetSpeed(); v != 0 {
		t.Errorf("expected 0 speed at 1 RPM, got %f", v)
	}
}

// --- energy ---

func TestStore_FullChargeReset(t *testing.T) {
	s := newTestStore()
	start := time.Unix(1000, 0)

	// drain 15 kJ
	s.HandleFrame(powerFrame(100), start)
	s.HandleFrame(powerFrame(200), start.Add(time.Second))
	if e := s.GetEnergyRemaining(); e >= DefaultBatteryCapacity {
		t.Fatalf("expected energy below capacity, got %f", e)
	}

	s.HandleFrame(motorFrame(0, 168*64), start.Add(2*time.Second))
	if e := s.GetEnergyRemaining(); e != DefaultBatteryCapacity {
		t.Errorf("expected reset to %f, got %f", DefaultBatteryCapacity, e)
	}
	if soc := s.GetStateOfCharge(); soc != 1 {
		t.Errorf("expected SoC 1, got %f", soc)
	}
}

func TestStore_BelowFullChargeNoReset(t *testing.T) {
	s := newTestStore()
	start := time.Unix(1000, 0)

	s.HandleFrame(powerFrame(100), start)
	s.HandleFrame(powerFrame(100), start.Add(time.Second))
	// 167.984 V
	s.HandleFrame(motorFrame(0, 168*64-1), start.Add(2*time.Second))

	if e := s.GetEnergyRemaining(); e == DefaultBatteryCapacity {
		t.Errorf("energy reset below full charge voltage")
	}
}

func TestStore_PowerIntegration(t *testing.T) {
	s := newTestStore()
	start := time.Unix(1000, 0)

	// 10 kW then 20 kW
	s.HandleFrame(powerFrame(100), start)
	s.HandleFrame(powerFrame(200), start.Add(2*time.Second))

	// (10 kW + 20 kW) / 2 * 2 s
	expected := DefaultBatteryCapacity - 30000
	if e := s.GetEnergyRemaining(); !almostEqual(e, expected) {
		t.Errorf("expected %f J remaining, got %f", expected, e)
	}
	if s.energyRate != 15000 {
		t.Errorf("expected energy rate 15000 W, got %f", s.energyRate)
	}
	if p := s.GetMotorPower(); !almostEqual(p, 20) {
		t.Errorf("expected 20 kW, got %f", p)
	}
}

func TestStore_ResetEnergy(t *testing.T) {
	s := newTestStore()
	start := time.Unix(1000, 0)
	s.HandleFrame(powerFrame(100), start)
	s.HandleFrame(powerFrame(100), start.Add(time.Second))

	s.ResetEnergy()
	if soc := s.GetStateOfCharge(); soc != 1 {
		t.Errorf("expected SoC 1 after reset, got %f", soc)
	}
}

// --- range ---

func TestStore_RangeFromSeed(t *testing.T) {
	s := newTestStore()
	expected := DefaultBatteryCapacity / DefaultConsumption
	if r := s.GetRange(); !almostEqual(r, expected) {
		t.Errorf("expected range %f, got %f", expected, r)
	}
}

func TestStore_RangeFallback(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.DefaultConsumption = 0
	s := NewStore(cfg, &testLogger{})

	if r := s.GetRange(); r != RangeFallback {
		t.Errorf("expected fallback %f, got %f", RangeFallback, r)
	}
}

// --- clamping and direct fields ---

func TestStore_ClampedGetters(t *testing.T) {
	s := newTestStore()
	now := time.Unix(1000, 0)

	s.ApplyMotor(MotorTelemetry{MotorRMSCurrent: -1, BatteryCurrent: -20, DCCapacitorVoltage: 100}, now)
	s.ApplyPower(PowerTelemetry{MotorTemp: -5, ControllerTemp: -3, MotorPower: -2000}, now)
	s.ApplyOdometer(OdometerTelemetry{Odometer: -1}, now)
	s.ApplyAux(AuxTelemetry{DCDC: -0.5}, now)

	getters := map[string]func() float64{
		"rms current":     s.GetRMSCurrent,
		"battery current": s.GetBatteryCurrent,
		"motor temp":      s.GetMotorTemp,
		"controller temp": s.GetControllerTemp,
		"motor power":     s.GetMotorPower,
		"odometer":        s.GetOdometer,
		"dcdc":            s.GetDCDC,
	}
	for name, get := range getters {
		if v := get(); v != 0 {
			t.Errorf("%s: expected clamp to 0, got %f", name, v)
		}
	}
}

func TestStore_DirectOverwrite(t *testing.T) {
	s := newTestStore()
	now := time.Unix(1000, 0)

	s.ApplyOdometer(OdometerTelemetry{ErrorCode: 38, Odometer: 1234.5}, now)
	s.ApplyAux(AuxTelemetry{TimeToSpeed1: -4, TimeToSpeed2: 7, DCDC: 13.8}, now)

	r := s.Read()
	if r.ErrorCode != 38 || r.Odometer != 1234.5 {
		t.Errorf("unexpected odometer fields: %+v", r)
	}
	if r.TimeToSpeed1 != -4 || r.TimeToSpeed2 != 7 || r.DCDC != 13.8 {
		t.Errorf("unexpected aux fields: %+v", r)
	}
}

// --- frame handling ---

func TestStore_MalformedFrameLeavesState(t *testing.T) {
	s := newTestStore()
	now := time.Unix(1000, 0)
	s.HandleFrame(motorFrame(3000, 100*64), now)

	err := s.HandleFrame(ParseRawFrame("1A6#0A00"), now.Add(time.Second))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if rpm := s.GetRPM(); rpm != 3000 {
		t.Errorf("expected RPM unchanged at 3000, got %d", rpm)
	}
}

func TestStore_SeparatorAndUnknown(t *testing.T) {
	s := newTestStore()
	now := time.Unix(1000, 0)

	if err := s.HandleFrame(ParseRawFrame("726#00"), now); err != nil {
		t.Errorf("separator should be accepted, got %v", err)
	}
	if err := s.HandleFrame(ParseRawFrame("123#00"), now); !errors.Is(err, ErrUnknownFrame) {
		t.Errorf("expected ErrUnknownFrame, got %v", err)
	}
}

func TestStore_StaleData(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.StaleTimeout = 20 * time.Millisecond
	s := NewStore(cfg, &testLogger{})

	if !s.IsDataStale() {
		t.Error("expected stale before any frame")
	}

	s.HandleFrame(motorFrame(0, 100*64), time.Unix(1000, 0))
	if s.IsDataStale() {
		t.Error("expected fresh data right after a frame")
	}

	time.Sleep(40 * time.Millisecond)
	if !s.IsDataStale() {
		t.Error("expected stale after timeout")
	}
}

func TestStore_ConsumptionFedWhileMoving(t *testing.T) {
	s := newTestStore()
	start := time.Unix(1000, 0)

	s.HandleFrame(powerFrame(100), start)
	s.HandleFrame(powerFrame(100), start.Add(time.Second))

	// 2000 RPM is about 15.1 m/s, feed two seconds of 100 ms steps
	for i := 0; i <= 20; i++ {
		s.HandleFrame(motorFrame(2000, 100*64), start.Add(time.Duration(i)*100*time.Millisecond))
	}

	if len(s.consumption.seconds) == 0 {
		t.Fatal("expected per-second consumption entries")
	}
	sec := s.consumption.seconds[0]
	// 10 kW energy rate
	if !almostEqual(sec.Energy/sec.Distance, 10000/expectedSpeed(2000)) {
		t.Errorf("unexpected per-second consumption %f J/m", sec.Energy/sec.Distance)
	}
}
