// Package logger provides leveled logging with a text or JSON format.
package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	default:
		return "error"
	}
}

// Logger provides leveled logging in either text or JSON line format.
type Logger struct {
	level  Level
	json   bool
	logger *log.Logger
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format.
func Init(level string, format string) {
	var l Level
	switch strings.ToLower(level) {
	case "debug":
		l = DebugLevel
	case "info":
		l = InfoLevel
	case "warn":
		l = WarnLevel
	case "error":
		l = ErrorLevel
	default:
		l = InfoLevel
	}

	jsonFormat := strings.ToLower(format) == "json"
	flags := 0
	if !jsonFormat {
		flags = log.LstdFlags | log.Lmicroseconds
	}

	defaultLogger = &Logger{
		level:  l,
		json:   jsonFormat,
		logger: log.New(os.Stderr, "", flags),
	}
}

type line struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"msg"`
}

func (lg *Logger) output(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if lg.json {
		data, err := json.Marshal(line{
			Time:    time.Now().Format(time.RFC3339Nano),
			Level:   level.String(),
			Message: msg,
		})
		if err != nil {
			return
		}
		_ = lg.logger.Output(3, string(data))
		return
	}
	_ = lg.logger.Output(3, fmt.Sprintf("[%s] %s", strings.ToUpper(level.String()), msg))
}

func Debug(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= DebugLevel {
		defaultLogger.output(DebugLevel, format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= InfoLevel {
		defaultLogger.output(InfoLevel, format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= WarnLevel {
		defaultLogger.output(WarnLevel, format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= ErrorLevel {
		defaultLogger.output(ErrorLevel, format, args...)
	}
}

func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.output(ErrorLevel, format, args...)
	}
	os.Exit(1)
}
