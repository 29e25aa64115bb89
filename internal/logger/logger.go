// Package logger provides centralized logging for CompaSSH.
//
// Output goes to stderr, never stdout: in proxy mode stdout carries the
// relayed SSH byte stream.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the process-wide logger.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool
	// File is an optional append-only log file.
	File string
	// Output replaces stderr as the console destination.
	Output io.Writer
}

var (
	logMutex sync.Mutex
	logFile  *os.File
	logPath  string
	log      = newLogger(os.Stderr, nil, zerolog.WarnLevel)
)

func newLogger(console io.Writer, file io.Writer, level zerolog.Level) zerolog.Logger {
	var w io.Writer = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	if file != nil {
		w = zerolog.MultiLevelWriter(w, file)
	}
	return zerolog.New(w).With().Timestamp().Str("app", "compassh").Logger().Level(level)
}

// Init initializes the logger. LOG_LEVEL in the environment overrides the
// level derived from opts.Verbose.
func Init(opts Options) error {
	logMutex.Lock()
	defer logMutex.Unlock()

	level := zerolog.WarnLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(env)); err == nil {
			level = l
		}
	}

	console := opts.Output
	if console == nil {
		console = os.Stderr
	}

	closeFileUnsafe()
	var file io.Writer
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log = newLogger(console, nil, level)
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		logPath = opts.File
		file = f
	}

	log = newLogger(console, file, level)
	return nil
}

// Close closes the log file
func Close() {
	logMutex.Lock()
	defer logMutex.Unlock()
	closeFileUnsafe()
}

func closeFileUnsafe() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
		logPath = ""
	}
}

func current() zerolog.Logger {
	logMutex.Lock()
	defer logMutex.Unlock()
	return log
}

// Log writes a message at the given level.
func Log(level zerolog.Level, format string, args ...interface{}) {
	l := current()
	l.WithLevel(level).Msgf(format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	Log(zerolog.InfoLevel, format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	Log(zerolog.ErrorLevel, format, args...)
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	Log(zerolog.DebugLevel, format, args...)
}

// Warning logs a warning message
func Warning(format string, args ...interface{}) {
	Log(zerolog.WarnLevel, format, args...)
}

// Connection logs a tunnel or relay event. Tagged so it can be filtered.
func Connection(format string, args ...interface{}) {
	l := current()
	l.Info().Str("event", "conn").Msgf(format, args...)
}

// GetLogPath returns the path to the log file
func GetLogPath() string {
	logMutex.Lock()
	defer logMutex.Unlock()
	return logPath
}
