package ecu

import (
	"fmt"
	"strconv"
)

// Message is one decoded Curtis frame.
type Message interface {
	FrameID() FrameID
}

// MotorTelemetry is the 0x1A6 frame.
type MotorTelemetry struct {
	MotorRMSCurrent    float64 // A
	ActualSpeed        int16   // motor RPM
	BatteryCurrent     float64 // A, negative while regenerating
	DCCapacitorVoltage float64 // V
}

// PowerTelemetry is the 0x2A6 frame.
type PowerTelemetry struct {
	MotorTemp      float64 // °C
	ControllerTemp float64 // °C
	ContactorCode  uint8
	ContactorState string
	Status         uint8
	MotorPower     float64 // W
}

// OdometerTelemetry is the 0x3A6 frame.
type OdometerTelemetry struct {
	ErrorCode           uint8
	VehicleAcceleration float64
	Odometer            float64
}

// AuxTelemetry is the 0x4A6 frame.
type AuxTelemetry struct {
	TimeToSpeed1 int16
	TimeToSpeed2 int16
	DCDC         float64
}

func (MotorTelemetry) FrameID() FrameID    { return FrameM1 }
func (PowerTelemetry) FrameID() FrameID    { return FrameM2 }
func (OdometerTelemetry) FrameID() FrameID { return FrameM3 }
func (AuxTelemetry) FrameID() FrameID      { return FrameM4 }

const (
	// Raw motor power is 0.1 kW per bit.
	MotorPowerScale = 100.0

	voltageScale      = 64.0
	currentScale      = 10.0
	temperatureScale  = 10.0
	accelerationScale = 1000.0
	odometerScale     = 10.0
	dcdcScale         = 100.0
)

var contactorStates = [...]string{
	"Open",
	"Precharge",
	"Weld Check",
	"Closing Delay",
	"Missing Check",
	"Closed (When Main Enable = On)",
	"Delay",
	"Arc Check",
	"Open Delay",
	"Fault",
	"Closed (When Main Enable = Off)",
}

// ContactorStateLabel returns the controller's name for a main contactor
// state code.
func ContactorStateLabel(code uint8) string {
	if int(code) >= len(contactorStates) {
		return "Unknown State! " + strconv.Itoa(int(code))
	}
	return contactorStates[code]
}

// DecodeError reports which field of which frame failed to decode.
type DecodeError struct {
	Frame FrameID
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %s: %v", e.Frame, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// fieldReader collects the first codec failure so the decoders below read
// as a flat list of fields.
type fieldReader struct {
	frame   FrameID
	payload string
	err     error
}

func (r *fieldReader) unsigned(name string, offset, length int) uint64 {
	if r.err != nil {
		return 0
	}
	v, err := ParseUnsigned(r.payload, offset, length)
	if err != nil {
		r.err = &DecodeError{Frame: r.frame, Field: name, Err: err}
	}
	return v
}

func (r *fieldReader) signed(name string, offset, length int) int16 {
	if r.err != nil {
		return 0
	}
	v, err := ParseSigned(r.payload, offset, length)
	if err != nil {
		r.err = &DecodeError{Frame: r.frame, Field: name, Err: err}
	}
	return v
}

func DecodeMotor(payload string) (MotorTelemetry, error) {
	r := fieldReader{frame: FrameM1, payload: payload}
	msg := MotorTelemetry{
		MotorRMSCurrent:    float64(r.unsigned("motor_rms_current", 0, 16)) / currentScale,
		ActualSpeed:        r.signed("actual_speed", 16, 16),
		BatteryCurrent:     float64(r.signed("battery_current", 32, 16)) / currentScale,
		DCCapacitorVoltage: float64(r.unsigned("dc_capacitor_voltage", 48, 16)) / voltageScale,
	}
	if r.err != nil {
		return MotorTelemetry{}, r.err
	}
	return msg, nil
}

func DecodePower(payload string) (PowerTelemetry, error) {
	r := fieldReader{frame: FrameM2, payload: payload}
	msg := PowerTelemetry{
		MotorTemp:      float64(r.signed("motor_temp", 0, 16)) / temperatureScale,
		ControllerTemp: float64(r.signed("controller_temp", 16, 16)) / temperatureScale,
		ContactorCode:  uint8(r.unsigned("contactor_state", 32, 8)),
		Status:         uint8(r.unsigned("status", 40, 8)),
		MotorPower:     float64(r.signed("motor_power", 48, 16)) * MotorPowerScale,
	}
	if r.err != nil {
		return PowerTelemetry{}, r.err
	}
	msg.ContactorState = ContactorStateLabel(msg.ContactorCode)
	return msg, nil
}

func DecodeOdometer(payload string) (OdometerTelemetry, error) {
	r := fieldReader{frame: FrameM3, payload: payload}
	msg := OdometerTelemetry{
		ErrorCode:           uint8(r.unsigned("error_code", 0, 8)),
		VehicleAcceleration: float64(r.signed("vehicle_acceleration", 16, 16)) / accelerationScale,
		Odometer:            float64(r.unsigned("odometer", 32, 32)) / odometerScale,
	}
	if r.err != nil {
		return OdometerTelemetry{}, r.err
	}
	return msg, nil
}

func DecodeAux(payload string) (AuxTelemetry, error) {
	r := fieldReader{frame: FrameM4, payload: payload}
	msg := AuxTelemetry{
		TimeToSpeed1: r.signed("time_to_speed_1", 0, 16),
		TimeToSpeed2: r.signed("time_to_speed_2", 16, 16),
		DCDC:         float64(r.unsigned("dcdc", 48, 16)) / dcdcScale,
	}
	if r.err != nil {
		return AuxTelemetry{}, r.err
	}
	return msg, nil
}
