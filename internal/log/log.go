package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LoggerConfigurator is a data structure used to configure the logger from
// the application configuration.
type LoggerConfigurator struct {
	Writer            io.Writer
	Level             string
	TimeFormatTempl   string
	CallerFormatTempl string
}

// NewLogConfigurator creates a new LoggerConfigurator.
func NewLogConfigurator(w io.Writer, level string) *LoggerConfigurator {
	return &LoggerConfigurator{
		Writer: w,
		Level:  level,
	}
}

// Output returns the log writer instance.
func (config *LoggerConfigurator) Output() io.Writer {
	return config.Writer
}

// LogLevel returns the log level.
func (config *LoggerConfigurator) LogLevel() string {
	return config.Level
}

// TimestampFormat returns the log timestamp format.
func (config *LoggerConfigurator) TimestampFormat() string {
	return config.TimeFormatTempl
}

// CallerFormat returns the log caller format template.
func (config *LoggerConfigurator) CallerFormat() string {
	return config.CallerFormatTempl
}

// Level is the logging level.
type Level int

const (
	// DEBUG level for developer information
	DEBUG Level = iota - 1
	// INFO level for state and status
	INFO
	// WARN level for possible issues
	WARN
	// ERROR level for errors
	ERROR
	// FATAL level for unrecoverable errors that stop the process.
	FATAL
)

// String returns an upper case string representation of the log level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return fmt.Sprintf("Level(%d)", l)
	}
}

// PaddedString returns a five character upper case representation of the log level
func (l Level) PaddedString() string {
	s := l.String()
	if len(s) < 5 {
		s += strings.Repeat(" ", 5-len(s))
	}
	return s
}

// UnmarshalText converts a slice of characters to a Level
func (l *Level) UnmarshalText(text []byte) bool {
	switch strings.TrimSpace(string(bytes.ToUpper(text))) {
	case "DEBUG":
		*l = DEBUG
	case "INFO", "":
		*l = INFO
	case "WARN", "WARNING":
		*l = WARN
	case "ERROR":
		*l = ERROR
	case "FATAL":
		*l = FATAL
	default:
		return false
	}
	return true
}

// CoreLogger implements logging. Handlers log from the timer goroutine, the
// input reader and the dispatch loop, so writes are serialised.
type CoreLogger struct {
	mu              sync.Mutex
	level           Level
	writer          io.Writer
	timestampFormat string
	callerFormat    string
}

var (
	defaultLogger *CoreLogger
	defaultOnce   sync.Once
)

// TerminateFunc defines logic for termination of fatal log messages.
var TerminateFunc = terminate

// Configurator has methods to fetch the logger configuration values.
type Configurator interface {
	LogLevel() string
	Output() io.Writer
	TimestampFormat() string
	CallerFormat() string
}

// New creates a new logger using default settings.
// Standard error, INFO level, timestamping and file:line reporting
func New() *CoreLogger {
	return &CoreLogger{
		level:           INFO,
		writer:          os.Stderr,
		timestampFormat: "01-02 15:04:05.000 ",
		callerFormat:    " %16.16s:%03d - ",
	}
}

// GetDefaultLogger returns the default logger implementation.
func GetDefaultLogger() *CoreLogger {
	defaultOnce.Do(func() {
		defaultLogger = New()
	})
	return defaultLogger
}

func (c *CoreLogger) log(level Level, format string, args []interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if level < c.level {
		return
	}

	// log -> Infof -> caller
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file = "???"
		line = 0
	} else {
		file = filepath.Base(file)
	}

	var msg string
	if format == "" {
		msg = fmt.Sprint(args...)
	} else {
		msg = fmt.Sprintf(format, args...)
	}

	var b strings.Builder
	b.WriteString(time.Now().Format(c.timestampFormat))
	b.WriteString(level.PaddedString())
	_, _ = fmt.Fprintf(&b, c.callerFormat, file, line)
	b.WriteString(msg)
	b.WriteString("\n")
	_, _ = io.WriteString(c.writer, b.String())
}

// Replaceable termination logic for testing fatal errors
func terminate() {
	os.Exit(1)
}

// Setup configures the logger. Empty configuration values keep the current
// settings.
func (c *CoreLogger) Setup(config Configurator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level.UnmarshalText([]byte(config.LogLevel()))
	if w := config.Output(); w != nil {
		c.writer = w
	}
	if f := config.TimestampFormat(); f != "" {
		c.timestampFormat = f
	}
	if f := config.CallerFormat(); f != "" {
		c.callerFormat = f
	}
}

// SetOutput sets the io.Writer to which all future log messages will be written.
func (c *CoreLogger) SetOutput(w io.Writer) {
	c.mu.Lock()
	c.writer = w
	c.mu.Unlock()
}

// SetLogLevel sets a filter on the minimum level of messages that will be logged.
func (c *CoreLogger) SetLogLevel(level Level) {
	c.mu.Lock()
	c.level = level
	c.mu.Unlock()
}

// GetLogLevel gets the current log level.
func (c *CoreLogger) GetLogLevel() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

func (c *CoreLogger) Debugf(format string, args ...interface{}) { c.log(DEBUG, format, args) }
func (c *CoreLogger) Infof(format string, args ...interface{})  { c.log(INFO, format, args) }
func (c *CoreLogger) Warnf(format string, args ...interface{})  { c.log(WARN, format, args) }
func (c *CoreLogger) Errorf(format string, args ...interface{}) { c.log(ERROR, format, args) }

// Fatalf logs a formatted message at FATAL level and then terminates.
func (c *CoreLogger) Fatalf(format string, args ...interface{}) {
	c.log(FATAL, format, args)
	TerminateFunc()
}

// *************************************************************
// Package level functions fall through to the default logger.

// Setup is optionally called to configure the default logger. If it is not
// called, the default logger writes INFO and above to standard error.
func Setup(config Configurator) {
	GetDefaultLogger().Setup(config)
}

// SetOutput sets the writer of the default logger.
func SetOutput(w io.Writer) {
	GetDefaultLogger().SetOutput(w)
}

// SetLogLevel sets the level of the default logger.
func SetLogLevel(level Level) {
	GetDefaultLogger().SetLogLevel(level)
}

// GetLogLevel gets the log level of the default logger.
func GetLogLevel() Level {
	return GetDefaultLogger().GetLogLevel()
}

func Debugf(format string, args ...interface{}) { GetDefaultLogger().log(DEBUG, format, args) }
func Infof(format string, args ...interface{})  { GetDefaultLogger().log(INFO, format, args) }
func Warnf(format string, args ...interface{})  { GetDefaultLogger().log(WARN, format, args) }
func Errorf(format string, args ...interface{}) { GetDefaultLogger().log(ERROR, format, args) }

// Fatalf logs a formatted message at FATAL level and then terminates.
func Fatalf(format string, args ...interface{}) {
	GetDefaultLogger().log(FATAL, format, args)
	TerminateFunc()
}

// Logger is the subset of CoreLogger the services depend on.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
