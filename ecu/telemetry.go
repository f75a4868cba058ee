package ecu

import (
	"errors"
	"math"
	"sync"
	"time"
)

const (
	// (motor cogwheel / rear wheel) * rear wheel circumference, metres per
	// motor revolution
	GearboxAndWheelRatio = (32.0 / 144.0) * 2.038

	// Pack voltage at which the battery is taken to be full
	FullChargeVoltage = 168.0

	// 16 kWh in joules
	DefaultBatteryCapacity = 16 * 3.6e6

	// 150 Wh/km in J/m
	DefaultConsumption = 540.0

	// Reported by Range when no consumption figure is available, in metres
	RangeFallback = 999000.0

	// Below this RPM the vehicle counts as standing still
	MinRPM = 1.0

	// Timeout for stale ECU data (if no frames received in this time, data is considered stale)
	ECUDataTimeout = 2 * time.Second

	msToKmh = 3.6
)

// StoreConfig holds the vehicle constants used for integration.
type StoreConfig struct {
	BatteryCapacity    float64       // J
	FullChargeVoltage  float64       // V
	GearboxRatio       float64       // m per motor revolution
	DefaultConsumption float64       // J/m
	StaleTimeout       time.Duration // no frames for this long marks data stale
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		BatteryCapacity:    DefaultBatteryCapacity,
		FullChargeVoltage:  FullChargeVoltage,
		GearboxRatio:       GearboxAndWheelRatio,
		DefaultConsumption: DefaultConsumption,
		StaleTimeout:       ECUDataTimeout,
	}
}

// Store is the authoritative telemetry state. Every frame is applied under
// a single exclusive lock, so readers never observe half of an update.
type Store struct {
	mu     sync.RWMutex
	logger Logger
	cfg    StoreConfig

	motor    MotorTelemetry
	power    PowerTelemetry
	odometer OdometerTelemetry
	aux      AuxTelemetry

	speed         float64 // m/s
	lastSpeedTime time.Time
	distance      float64 // m since start

	lastPowerTime   time.Time
	energyRemaining float64 // J
	energyRate      float64 // W

	consumption   *Aggregator
	lastFrameTime time.Time
}

func NewStore(cfg StoreConfig, logger Logger) *Store {
	if logger == nil {
		logger = NopLogger{}
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = ECUDataTimeout
	}
	return &Store{
		logger:          logger,
		cfg:             cfg,
		energyRemaining: cfg.BatteryCapacity,
		consumption:     NewAggregator(cfg.DefaultConsumption),
	}
}

// HandleFrame decodes a raw frame and applies it. A frame that fails to
// decode leaves the state untouched. The separator frame is accepted and
// ignored.
func (s *Store) HandleFrame(frame RawFrame, now time.Time) error {
	msg, err := Decode(frame)
	if errors.Is(err, ErrSeparator) {
		return nil
	}
	if err != nil {
		return err
	}
	s.Apply(msg, now)
	return nil
}

// Apply applies one decoded message atomically.
func (s *Store) Apply(msg Message, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateFrameTimestamp()

	switch m := msg.(type) {
	case MotorTelemetry:
		s.applyMotor(m, now)
	case PowerTelemetry:
		s.applyPower(m, now)
	case OdometerTelemetry:
		s.odometer = m
	case AuxTelemetry:
		s.aux = m
	}
}

func (s *Store) ApplyMotor(msg MotorTelemetry, now time.Time) { s.Apply(msg, now) }

func (s *Store) ApplyPower(msg PowerTelemetry, now time.Time) { s.Apply(msg, now) }

func (s *Store) ApplyOdometer(msg OdometerTelemetry, now time.Time) { s.Apply(msg, now) }

func (s *Store) ApplyAux(msg AuxTelemetry, now time.Time) { s.Apply(msg, now) }

func (s *Store) applyMotor(msg MotorTelemetry, now time.Time) {
	s.motor = msg

	if msg.DCCapacitorVoltage >= s.cfg.FullChargeVoltage {
		if s.energyRemaining != s.cfg.BatteryCapacity {
			s.logger.Debug("Capacitor voltage %.1f V, battery reset to full", msg.DCCapacitorVoltage)
		}
		s.energyRemaining = s.cfg.BatteryCapacity
	}

	speed := s.speedFromRPM(float64(msg.ActualSpeed))

	if !s.lastSpeedTime.IsZero() {
		dt := now.Sub(s.lastSpeedTime).Seconds()
		if dt > 0 {
			increment := (s.speed + speed) / 2 * dt
			s.distance += increment
			s.consumption.Append(now, speed, Sample{
				Energy:   s.energyRate * dt,
				Distance: increment,
			})
		}
	}

	s.lastSpeedTime = now
	s.speed = speed
}

func (s *Store) applyPower(msg PowerTelemetry, now time.Time) {
	prevPower := s.power.MotorPower
	s.power = msg

	if !s.lastPowerTime.IsZero() {
		dt := now.Sub(s.lastPowerTime).Seconds()
		if dt > 0 {
			energy := (prevPower + msg.MotorPower) / 2 * dt
			s.energyRemaining -= energy
			s.energyRate = energy / dt
		}
	}

	s.lastPowerTime = now
}

// speedFromRPM converts motor RPM to linear speed in m/s.
func (s *Store) speedFromRPM(rpm float64) float64 {
	if rpm <= MinRPM {
		return 0
	}
	return s.cfg.GearboxRatio * rpm / 60
}

// updateFrameTimestamp records the last received frame. Caller holds the lock.
func (s *Store) updateFrameTimestamp() {
	s.lastFrameTime = time.Now()
}

// IsDataStale returns true if no frames have been received within the timeout period
func (s *Store) IsDataStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isDataStale()
}

func (s *Store) isDataStale() bool {
	return s.lastFrameTime.IsZero() || time.Since(s.lastFrameTime) > s.cfg.StaleTimeout
}

// ResetEnergy marks the battery as full.
func (s *Store) ResetEnergy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("State of charge reset to full (%.0f J)", s.cfg.BatteryCapacity)
	s.energyRemaining = s.cfg.BatteryCapacity
}

// Implement getters

// GetSpeed returns the vehicle speed in km/h
func (s *Store) GetSpeed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speed * msToKmh
}

func (s *Store) GetRPM() int16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.motor.ActualSpeed
}

// GetMotorPower returns motor power in kW
func (s *Store) GetMotorPower() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return math.Max(s.power.MotorPower/1000, 0)
}

func (s *Store) GetRMSCurrent() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return math.Max(s.motor.MotorRMSCurrent, 0)
}

func (s *Store) GetBatteryCurrent() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return math.Max(s.motor.BatteryCurrent, 0)
}

func (s *Store) GetVoltage() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.motor.DCCapacitorVoltage
}

func (s *Store) GetMotorTemp() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return math.Max(s.power.MotorTemp, 0)
}

func (s *Store) GetControllerTemp() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return math.Max(s.power.ControllerTemp, 0)
}

func (s *Store) GetContactorState() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.power.ContactorState
}

func (s *Store) GetOdometer() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return math.Max(s.odometer.Odometer, 0)
}

func (s *Store) GetErrorCode() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.odometer.ErrorCode
}

func (s *Store) GetDCDC() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return math.Max(s.aux.DCDC, 0)
}

// GetDistance returns the distance integrated since start in metres
func (s *Store) GetDistance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distance
}

func (s *Store) GetEnergyRemaining() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.energyRemaining
}

func (s *Store) GetStateOfCharge() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateOfCharge()
}

func (s *Store) stateOfCharge() float64 {
	if s.cfg.BatteryCapacity <= 0 {
		return 0
	}
	return s.energyRemaining / s.cfg.BatteryCapacity
}

// GetRange returns the estimated remaining range in metres.
func (s *Store) GetRange() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rangeEstimate()
}

func (s *Store) rangeEstimate() float64 {
	avg := s.consumption.AverageConsumption()
	if avg <= 0 {
		return RangeFallback
	}
	return s.energyRemaining / avg
}

// GetAverageConsumption returns the moving average consumption in J/m.
func (s *Store) GetAverageConsumption() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumption.AverageConsumption()
}

// GetLatestConsumption returns the last minute's consumption in J/m.
func (s *Store) GetLatestConsumption() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consumption.LatestConsumption()
}

// Reading is a consistent copy of everything a renderer shows.
type Reading struct {
	Speed              float64 `json:"speed"`              // km/h
	RPM                int16   `json:"rpm"`
	MotorPower         float64 `json:"motorPower"`         // kW
	RMSCurrent         float64 `json:"rmsCurrent"`         // A
	BatteryCurrent     float64 `json:"batteryCurrent"`     // A
	Voltage            float64 `json:"voltage"`            // V
	MotorTemp          float64 `json:"motorTemp"`          // °C
	ControllerTemp     float64 `json:"controllerTemp"`     // °C
	ContactorState     string  `json:"contactorState"`
	Status             uint8   `json:"status"`
	ErrorCode          uint8   `json:"errorCode"`
	Acceleration       float64 `json:"acceleration"`
	Odometer           float64 `json:"odometer"`
	TimeToSpeed1       int16   `json:"timeToSpeed1"`
	TimeToSpeed2       int16   `json:"timeToSpeed2"`
	DCDC               float64 `json:"dcdc"`
	Distance           float64 `json:"distance"`           // m
	EnergyRemaining    float64 `json:"energyRemaining"`    // J
	StateOfCharge      float64 `json:"stateOfCharge"`      // 0..1
	Range              float64 `json:"range"`              // m
	AverageConsumption float64 `json:"averageConsumption"` // J/m
	Stale              bool    `json:"stale"`
}

// Read returns a Reading taken under one lock.
func (s *Store) Read() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Reading{
		Speed:              s.speed * msToKmh,
		RPM:                s.motor.ActualSpeed,
		MotorPower:         math.Max(s.power.MotorPower/1000, 0),
		RMSCurrent:         math.Max(s.motor.MotorRMSCurrent, 0),
		BatteryCurrent:     math.Max(s.motor.BatteryCurrent, 0),
		Voltage:            s.motor.DCCapacitorVoltage,
		MotorTemp:          math.Max(s.power.MotorTemp, 0),
		ControllerTemp:     math.Max(s.power.ControllerTemp, 0),
		ContactorState:     s.power.ContactorState,
		Status:             s.power.Status,
		ErrorCode:          s.odometer.ErrorCode,
		Acceleration:       s.odometer.VehicleAcceleration,
		Odometer:           math.Max(s.odometer.Odometer, 0),
		TimeToSpeed1:       s.aux.TimeToSpeed1,
		TimeToSpeed2:       s.aux.TimeToSpeed2,
		DCDC:               math.Max(s.aux.DCDC, 0),
		Distance:           s.distance,
		EnergyRemaining:    s.energyRemaining,
		StateOfCharge:      s.stateOfCharge(),
		Range:              s.rangeEstimate(),
		AverageConsumption: s.consumption.AverageConsumption(),
		Stale:              s.isDataStale(),
	}
}
