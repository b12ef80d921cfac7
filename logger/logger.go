// Package logger is the coordinator-wide leveled logger: colorized
// console output plus an optional plain-text file sink, shared by
// every package via a lazily-initialized package-level default whose
// minimum level defaults to INFO, overridable via RENDERFARM_LOG_LEVEL.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// ANSI color codes for console output; the file sink never gets these.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// LogLevel orders the four severities this package supports.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// envLevel is the name of the environment variable renderfarmd reads to
// pick its default minimum log level, following the same
// RENDERFARM_-prefixed convention as config's env overrides.
const envLevel = "RENDERFARM_LOG_LEVEL"

// ParseLevel maps a level name (case-insensitive: debug/info/warn/error)
// to a LogLevel. It returns ok=false for anything else, leaving the
// caller's existing level untouched.
func ParseLevel(name string) (level LogLevel, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG, true
	case "INFO":
		return INFO, true
	case "WARN", "WARNING":
		return WARN, true
	case "ERROR":
		return ERROR, true
	default:
		return 0, false
	}
}

// defaultLevel is INFO unless RENDERFARM_LOG_LEVEL names a different
// level: a long-running coordinator process is noisier at DEBUG than a
// production deployment wants by default.
func defaultLevel() LogLevel {
	if level, ok := ParseLevel(os.Getenv(envLevel)); ok {
		return level
	}
	return INFO
}

type Logger struct {
	debugLogger        *log.Logger
	infoLogger         *log.Logger
	warnLogger         *log.Logger
	errorLogger        *log.Logger
	debugLoggerNoColor *log.Logger
	infoLoggerNoColor  *log.Logger
	warnLoggerNoColor  *log.Logger
	errorLoggerNoColor *log.Logger
	file               *os.File
	consoleOutput      io.Writer
	fileOutput         io.Writer
	minLevel           LogLevel
}

var (
	defaultLogger *Logger
	once          sync.Once
	mu            sync.Mutex
)

// ensureInitialized lazily stands up a console-only default logger the
// first time any package-level log function is called without an
// explicit Init, so a package that just imports logger can log
// immediately.
func ensureInitialized() {
	once.Do(func() {
		defaultLogger = &Logger{
			consoleOutput: os.Stdout,
			minLevel:      defaultLevel(),
		}
		defaultLogger.setupLoggers()
	})
}

// Init replaces the default logger with one writing to filename (if
// non-empty), the console (if console is true), or both, with its
// minimum level taken from RENDERFARM_LOG_LEVEL (INFO if unset or
// unrecognized). Call it once at process startup before any other
// goroutine logs.
func Init(filename string, console bool) error {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
	}

	defaultLogger = &Logger{
		minLevel: defaultLevel(),
	}

	if filename != "" {
		file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defaultLogger.file = file
		defaultLogger.fileOutput = file
	}

	if console {
		defaultLogger.consoleOutput = os.Stdout
	}

	if defaultLogger.fileOutput == nil && defaultLogger.consoleOutput == nil {
		return fmt.Errorf("no output destination specified")
	}

	defaultLogger.setupLoggers()
	return nil
}

// SetLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR)
// Messages below this level will not be logged
func SetLevel(level LogLevel) {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.minLevel = level
}

func (l *Logger) setupLoggers() {
	flags := log.Ldate | log.Ltime | log.Lshortfile

	if l.consoleOutput != nil {
		l.debugLogger = log.New(l.consoleOutput, colorGray+"[DEBUG] "+colorReset, flags)
		l.infoLogger = log.New(l.consoleOutput, colorReset+"[INFO]  "+colorReset, flags)
		l.warnLogger = log.New(l.consoleOutput, colorYellow+"[WARN]  "+colorReset, flags)
		l.errorLogger = log.New(l.consoleOutput, colorRed+"[ERROR] "+colorReset, flags)
	}

	if l.fileOutput != nil {
		l.debugLoggerNoColor = log.New(l.fileOutput, "[DEBUG] ", flags)
		l.infoLoggerNoColor = log.New(l.fileOutput, "[INFO]  ", flags)
		l.warnLoggerNoColor = log.New(l.fileOutput, "[WARN]  ", flags)
		l.errorLoggerNoColor = log.New(l.fileOutput, "[ERROR] ", flags)
	}
}

// Close closes the log file if one is open.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
		defaultLogger.file = nil
		defaultLogger.fileOutput = nil
	}
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return level >= l.minLevel
}

func (l *Logger) output(level LogLevel, colorLogger, noColorLogger *log.Logger, msg string) {
	if !l.shouldLog(level) {
		return
	}

	// Log to console with colors
	if l.consoleOutput != nil && colorLogger != nil {
		colorLogger.Output(3, msg)
	}

	// Log to file without colors
	if l.fileOutput != nil && noColorLogger != nil {
		noColorLogger.Output(3, msg)
	}
}

// Debug logs a debug message
func Debug(v ...interface{}) {
	ensureInitialized()
	msg := fmt.Sprint(v...)
	defaultLogger.output(DEBUG, defaultLogger.debugLogger, defaultLogger.debugLoggerNoColor, msg)
}

// Debugf logs a formatted debug message
func Debugf(format string, v ...interface{}) {
	ensureInitialized()
	msg := fmt.Sprintf(format, v...)
	defaultLogger.output(DEBUG, defaultLogger.debugLogger, defaultLogger.debugLoggerNoColor, msg)
}

// Info logs an info message
func Info(v ...interface{}) {
	ensureInitialized()
	msg := fmt.Sprint(v...)
	defaultLogger.output(INFO, defaultLogger.infoLogger, defaultLogger.infoLoggerNoColor, msg)
}

// Infof logs a formatted info message
func Infof(format string, v ...interface{}) {
	ensureInitialized()
	msg := fmt.Sprintf(format, v...)
	defaultLogger.output(INFO, defaultLogger.infoLogger, defaultLogger.infoLoggerNoColor, msg)
}

// Warn logs a warning message
func Warn(v ...interface{}) {
	ensureInitialized()
	msg := fmt.Sprint(v...)
	defaultLogger.output(WARN, defaultLogger.warnLogger, defaultLogger.warnLoggerNoColor, msg)
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...interface{}) {
	ensureInitialized()
	msg := fmt.Sprintf(format, v...)
	defaultLogger.output(WARN, defaultLogger.warnLogger, defaultLogger.warnLoggerNoColor, msg)
}

// Error logs an error message
func Error(v ...interface{}) {
	ensureInitialized()
	msg := fmt.Sprint(v...)
	defaultLogger.output(ERROR, defaultLogger.errorLogger, defaultLogger.errorLoggerNoColor, msg)
}

// Errorf logs a formatted error message
func Errorf(format string, v ...interface{}) {
	ensureInitialized()
	msg := fmt.Sprintf(format, v...)
	defaultLogger.output(ERROR, defaultLogger.errorLogger, defaultLogger.errorLoggerNoColor, msg)
}

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) {
	ensureInitialized()
	msg := fmt.Sprint(v...)
	defaultLogger.output(ERROR, defaultLogger.errorLogger, defaultLogger.errorLoggerNoColor, msg)
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	ensureInitialized()
	msg := fmt.Sprintf(format, v...)
	defaultLogger.output(ERROR, defaultLogger.errorLogger, defaultLogger.errorLoggerNoColor, msg)
	os.Exit(1)
}
