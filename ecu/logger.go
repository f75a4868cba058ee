package ecu

// Logger interface for ECU logging
type Logger interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	DebugCAN(direction string, id uint32, data []byte, length uint8)
}

// NopLogger discards everything. Used by offline decoding and tests.
type NopLogger struct{}

func (NopLogger) Debug(format string, v ...interface{})                           {}
func (NopLogger) Info(format string, v ...interface{})                            {}
func (NopLogger) Warn(format string, v ...interface{})                            {}
func (NopLogger) Error(format string, v ...interface{})                           {}
func (NopLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {}

// LogCAN logs CAN frame if logger supports DebugCAN
func LogCAN(logger Logger, direction string, id uint32, data []byte, length uint8) {
	if logger != nil {
		logger.DebugCAN(direction, id, data, length)
	}
}
