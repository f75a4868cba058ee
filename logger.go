package main

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"curtis-cluster/ecu"
	"curtis-cluster/lighting"
)

type LogLevel int

const (
	LogLevelNone  LogLevel = 0
	LogLevelError LogLevel = 1
	LogLevelWarn  LogLevel = 2
	LogLevelInfo  LogLevel = 3
	LogLevelDebug LogLevel = 4
)

var logLevelNames = map[string]LogLevel{
	"none":  LogLevelNone,
	"error": LogLevelError,
	"warn":  LogLevelWarn,
	"info":  LogLevelInfo,
	"debug": LogLevelDebug,
}

func (l LogLevel) String() string {
	for name, level := range logLevelNames {
		if level == l {
			return name
		}
	}
	return strconv.Itoa(int(l))
}

// ParseLogLevel accepts a level name or its number (0=NONE .. 4=DEBUG).
func ParseLogLevel(s string) (LogLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if level, ok := logLevelNames[s]; ok {
		return level, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < int(LogLevelNone) || n > int(LogLevelDebug) {
		return LogLevelNone, fmt.Errorf("invalid log level %q", s)
	}
	return LogLevel(n), nil
}

// LeveledLogger wraps a standard logger with log level filtering
type LeveledLogger struct {
	logger   *log.Logger
	logLevel LogLevel
}

// NewLeveledLogger creates a new leveled logger
func NewLeveledLogger(logger *log.Logger, level LogLevel) *LeveledLogger {
	return &LeveledLogger{
		logger:   logger,
		logLevel: level,
	}
}

func (l *LeveledLogger) logf(level LogLevel, tag, format string, v ...interface{}) {
	if l.logLevel >= level {
		l.logger.Printf("["+tag+"] "+format, v...)
	}
}

func (l *LeveledLogger) Debug(format string, v ...interface{}) {
	l.logf(LogLevelDebug, "DEBUG", format, v...)
}

func (l *LeveledLogger) Info(format string, v ...interface{}) {
	l.logf(LogLevelInfo, "INFO", format, v...)
}

func (l *LeveledLogger) Warn(format string, v ...interface{}) {
	l.logf(LogLevelWarn, "WARN", format, v...)
}

func (l *LeveledLogger) Error(format string, v ...interface{}) {
	l.logf(LogLevelError, "ERROR", format, v...)
}

// Printf provides compatibility with standard logger - logs at INFO level
func (l *LeveledLogger) Printf(format string, v ...interface{}) {
	l.Info(format, v...)
}

// Fatalf logs a fatal error and exits
func (l *LeveledLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatalf("[FATAL] "+format, v...)
}

func (l *LeveledLogger) SetLevel(level LogLevel) {
	l.logLevel = level
}

func (l *LeveledLogger) GetLevel() LogLevel {
	return l.logLevel
}

// DebugCAN logs CAN frame details at DEBUG level with formatting
func (l *LeveledLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {
	if l.logLevel < LogLevelDebug {
		return
	}
	var sb strings.Builder
	for i := 0; i < int(length) && i < len(data) && i < 8; i++ {
		fmt.Fprintf(&sb, "%02X ", data[i])
	}
	l.logger.Printf("[DEBUG] CAN %s: ID=0x%03X Len=%d Data=[%s]", direction, id, length, sb.String())
}

var (
	_ ecu.Logger      = (*LeveledLogger)(nil)
	_ lighting.Logger = (*LeveledLogger)(nil)
)
