package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once

	mu     sync.RWMutex
	sugar  *zap.SugaredLogger
	atomic = zap.NewAtomicLevel()
)

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		currentLevel = levelFromEnv()
		atomic.SetLevel(currentLevel.zapLevel())
	})
}

func levelFromEnv() LogLevel {
	// DEBUG wins over LOG_LEVEL
	if debug := os.Getenv("DEBUG"); debug != "" {
		switch strings.ToLower(debug) {
		case "1", "true", "yes", "on":
			return LevelDebug
		}
	}

	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return LevelInfo
	}
	return level
}

// ParseLevel converts a level name to a LogLevel. An empty string is info.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// newLogger builds the zap logger used by the package-level functions.
// LOG_FORMAT=json selects the production JSON encoder.
func newLogger() *zap.SugaredLogger {
	var config zap.Config
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.Encoding = "console"
		config.Development = false
	}

	config.Level = atomic
	config.DisableStacktrace = true
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	logger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fall back to a bare logger rather than running without one
		logger = zap.NewExample()
	}
	return logger.Sugar()
}

func logger() *zap.SugaredLogger {
	initLevel()

	mu.RLock()
	l := sugar
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if sugar == nil {
		sugar = newLogger()
	}
	return sugar
}

// SetOutput replaces the underlying zap core. Passing nil restores the default logger.
// Intended for tests that want to observe log output.
func SetOutput(core zapcore.Core) {
	mu.Lock()
	defer mu.Unlock()
	if core == nil {
		sugar = nil
		return
	}
	sugar = zap.New(core, zap.AddCallerSkip(1)).Sugar()
}

// SetLevel overrides the level derived from the environment
func SetLevel(level LogLevel) {
	initLevel()
	mu.Lock()
	currentLevel = level
	mu.Unlock()
	atomic.SetLevel(level.zapLevel())
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Sync flushes buffered log entries
func Sync() {
	_ = logger().Sync()
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	if GetLevel() <= LevelDebug {
		logger().Debugf(format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if GetLevel() <= LevelInfo {
		logger().Infof(format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if GetLevel() <= LevelWarn {
		logger().Warnf(format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if GetLevel() <= LevelError {
		logger().Errorf(format, args...)
	}
}

// Infow logs a message with structured key-value pairs
func Infow(msg string, keysAndValues ...interface{}) {
	if GetLevel() <= LevelInfo {
		logger().Infow(msg, keysAndValues...)
	}
}

// Warnw logs a warning with structured key-value pairs
func Warnw(msg string, keysAndValues ...interface{}) {
	if GetLevel() <= LevelWarn {
		logger().Warnw(msg, keysAndValues...)
	}
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	logger().Fatalf(format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
