package ecu

// Fault is a Curtis controller fault code as carried in the 0x3A6 error byte.
type Fault uint8

const (
	FaultNone                      Fault = 0
	FaultControllerOvercurrent     Fault = 12
	FaultCurrentSensor             Fault = 13
	FaultPrechargeFailed           Fault = 14
	FaultControllerSevereUndertemp Fault = 15
	FaultControllerSevereOvertemp  Fault = 16
	FaultSevereUndervoltage        Fault = 17
	FaultSevereOvervoltage         Fault = 18
	FaultControllerOvertempCutback Fault = 22
	FaultUndervoltageCutback       Fault = 23
	FaultOvervoltageCutback        Fault = 24
	FaultSupply5VFailure           Fault = 25
	FaultMotorTempHotCutback       Fault = 28
	FaultMotorTempSensor           Fault = 29
	FaultMainOpenShort             Fault = 31
	FaultEncoder                   Fault = 36
	FaultMotorOpen                 Fault = 37
	FaultMainContactorWelded       Fault = 38
	FaultMainContactorDidNotClose  Fault = 39
	FaultThrottleWiperHigh         Fault = 41
	FaultThrottleWiperLow          Fault = 42
	FaultEEPROM                    Fault = 46
	FaultHPDSequencing             Fault = 47
	FaultParameterChange           Fault = 49
	FaultStallDetected             Fault = 73
)

type FaultSeverity int

const (
	SeverityWarning FaultSeverity = iota
	SeverityCritical
)

type FaultConfig struct {
	Code        Fault
	Description string
	Severity    FaultSeverity
}

var faultConfigs = map[Fault]FaultConfig{
	FaultControllerOvercurrent:     {FaultControllerOvercurrent, "Controller overcurrent", SeverityCritical},
	FaultCurrentSensor:             {FaultCurrentSensor, "Current sensor fault", SeverityCritical},
	FaultPrechargeFailed:           {FaultPrechargeFailed, "Precharge failed", SeverityCritical},
	FaultControllerSevereUndertemp: {FaultControllerSevereUndertemp, "Controller severe undertemp", SeverityCritical},
	FaultControllerSevereOvertemp:  {FaultControllerSevereOvertemp, "Controller severe overtemp", SeverityCritical},
	FaultSevereUndervoltage:        {FaultSevereUndervoltage, "Severe undervoltage", SeverityCritical},
	FaultSevereOvervoltage:         {FaultSevereOvervoltage, "Severe overvoltage", SeverityCritical},
	FaultControllerOvertempCutback: {FaultControllerOvertempCutback, "Controller overtemp cutback", SeverityWarning},
	FaultUndervoltageCutback:       {FaultUndervoltageCutback, "Undervoltage cutback", SeverityWarning},
	FaultOvervoltageCutback:        {FaultOvervoltageCutback, "Overvoltage cutback", SeverityWarning},
	FaultSupply5VFailure:           {FaultSupply5VFailure, "+5V supply failure", SeverityCritical},
	FaultMotorTempHotCutback:       {FaultMotorTempHotCutback, "Motor temp hot cutback", SeverityWarning},
	FaultMotorTempSensor:           {FaultMotorTempSensor, "Motor temp sensor fault", SeverityWarning},
	FaultMainOpenShort:             {FaultMainOpenShort, "Main contactor driver open/short", SeverityCritical},
	FaultEncoder:                   {FaultEncoder, "Encoder fault", SeverityCritical},
	FaultMotorOpen:                 {FaultMotorOpen, "Motor open", SeverityCritical},
	FaultMainContactorWelded:       {FaultMainContactorWelded, "Main contactor welded", SeverityCritical},
	FaultMainContactorDidNotClose:  {FaultMainContactorDidNotClose, "Main contactor did not close", SeverityCritical},
	FaultThrottleWiperHigh:         {FaultThrottleWiperHigh, "Throttle wiper high", SeverityCritical},
	FaultThrottleWiperLow:          {FaultThrottleWiperLow, "Throttle wiper low", SeverityCritical},
	FaultEEPROM:                    {FaultEEPROM, "EEPROM failure", SeverityCritical},
	FaultHPDSequencing:             {FaultHPDSequencing, "HPD/sequencing fault", SeverityWarning},
	FaultParameterChange:           {FaultParameterChange, "Parameter change fault", SeverityWarning},
	FaultStallDetected:             {FaultStallDetected, "Stall detected", SeverityCritical},
}

// GetFaultConfig looks up a known fault. Codes outside the table are still
// reported by the caller, just without a description.
func GetFaultConfig(fault Fault) (FaultConfig, bool) {
	config, ok := faultConfigs[fault]
	return config, ok
}

// GetFaultDescription returns a human-readable description of a fault code
func GetFaultDescription(fault Fault) string {
	if fault == FaultNone {
		return "No fault"
	}
	if config, ok := faultConfigs[fault]; ok {
		return config.Description
	}
	return "Unknown fault"
}
