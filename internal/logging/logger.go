// Package logging provides the process-wide logger for staten.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// FileName is the log file created inside the log directory.
const FileName = "staten.log"

// Logger wraps the standard logger with optional file output.
type Logger struct {
	*log.Logger
	file *os.File
	mu   sync.Mutex
}

var (
	defaultLogger *Logger
	once          sync.Once
	debugEnabled  atomic.Bool
)

func init() {
	debugEnabled.Store(os.Getenv("STATEN_DEBUG") == "true" || os.Getenv("DEBUG") == "true")
}

// Initialize mirrors log output to <logDir>/staten.log. The stderr stream is kept
// so that CLI users still see warnings; stdout is left to command output.
func Initialize(logDir string) error {
	var initErr error
	once.Do(func() {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}

		logPath := filepath.Join(logDir, FileName)
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			initErr = fmt.Errorf("failed to open log file: %w", err)
			return
		}

		multiWriter := io.MultiWriter(os.Stderr, file)
		defaultLogger = &Logger{
			Logger: log.New(multiWriter, "", log.LstdFlags|log.Lshortfile),
			file:   file,
		}
		log.SetOutput(multiWriter)
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	})
	return initErr
}

// SetOutput redirects logging, mainly for tests and the stdio MCP server where
// stdout belongs to the protocol.
func SetOutput(w io.Writer) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.SetOutput(w)
		defaultLogger.mu.Unlock()
	}
	log.SetOutput(w)
}

// Detach stops writing to stderr, for full-screen terminal UIs. Output goes
// to the log file when one is open and is dropped otherwise.
func Detach() {
	var w io.Writer = io.Discard
	if defaultLogger != nil && defaultLogger.file != nil {
		w = defaultLogger.file
	}
	SetOutput(w)
}

// SetDebug toggles Debugf output.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether Debugf writes anything.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Close closes the log file.
func Close() error {
	if defaultLogger != nil && defaultLogger.file != nil {
		return defaultLogger.file.Close()
	}
	return nil
}

func output(msg string) {
	if defaultLogger != nil {
		_ = defaultLogger.Output(3, msg)
		return
	}
	_ = log.Output(3, msg)
}

// Printf logs a formatted message without a level tag.
func Printf(format string, v ...interface{}) {
	output(fmt.Sprintf(format, v...))
}

// Infof logs an info message.
func Infof(format string, v ...interface{}) {
	output("[INFO] " + fmt.Sprintf(format, v...))
}

// Warnf logs a warning message.
func Warnf(format string, v ...interface{}) {
	output("[WARN] " + fmt.Sprintf(format, v...))
}

// Errorf logs an error message.
func Errorf(format string, v ...interface{}) {
	output("[ERROR] " + fmt.Sprintf(format, v...))
}

// Debugf logs a debug message when debug output is enabled.
func Debugf(format string, v ...interface{}) {
	if !debugEnabled.Load() {
		return
	}
	output("[DEBUG] " + fmt.Sprintf(format, v...))
}
