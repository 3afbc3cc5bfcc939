// Package logging provides structured logging with console, file and
// in-memory history output.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ParseLevel maps a config string onto a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LogEntry is one record kept in the in-memory history
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Data      string `json:"data,omitempty"`
}

// Logger wraps zerolog with optional file output and log history
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
	mu      sync.RWMutex
	history []LogEntry
	maxHist int
	onLog   func(LogEntry) // callback for streaming entries to bridge clients
}

// Config holds logger configuration
type Config struct {
	Dir        string   // Directory for log files; empty disables file output
	Level      LogLevel // Minimum log level (default: info)
	MaxHistory int      // Max entries to keep in memory (default: 500)
	Console    bool     // Also log to console (default: true)
	JSON       bool     // Write raw JSON to the console instead of pretty output

	// Out overrides the console writer, mostly for tests.
	Out io.Writer
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		MaxHistory: 500,
		Console:    true,
	}
}

// New creates a new Logger
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 500
	}

	var (
		writers []io.Writer
		file    *os.File
		logPath string
	)

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logPath = filepath.Join(cfg.Dir, fmt.Sprintf("avatarmotion_%s.log", time.Now().Format("2006-01-02")))

		var err error
		file, err = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)
	}

	if cfg.Console {
		out := cfg.Out
		if out == nil {
			out = os.Stderr
		}
		if cfg.JSON {
			writers = append(writers, out)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
		}
	}

	logger := &Logger{
		file:    file,
		logPath: logPath,
		history: make([]LogEntry, 0, cfg.MaxHistory),
		maxHist: cfg.MaxHistory,
	}

	// History sees every record, including those written through
	// Component and Zerolog loggers.
	writers = append([]io.Writer{historyWriter{logger}}, writers...)

	logger.zlog = zerolog.New(io.MultiWriter(writers...)).Level(cfg.Level.zerolog()).With().
		Timestamp().
		Str("app", "avatarmotion").
		Logger()

	logger.Debug("logging", "Logger initialized", map[string]interface{}{
		"logFile": logPath,
		"level":   string(cfg.Level),
	})

	return logger, nil
}

// SetOnLog sets a callback for real-time log streaming
func (l *Logger) SetOnLog(fn func(LogEntry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLog = fn
}

func (l *Logger) addToHistory(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, entry)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}

	if l.onLog != nil {
		go l.onLog(entry)
	}
}

// GetHistory returns up to limit of the most recent entries; limit <= 0
// returns everything kept.
func (l *Logger) GetHistory(limit int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}

	result := make([]LogEntry, limit)
	copy(result, l.history[len(l.history)-limit:])
	return result
}

// GetLogPath returns the current log file path, empty without file output
func (l *Logger) GetLogPath() string {
	return l.logPath
}

// Close closes the log file
func (l *Logger) Close() error {
	l.Debug("logging", "Logger shutting down", nil)
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// historyWriter turns each JSON record zerolog emits into a LogEntry.
type historyWriter struct {
	l *Logger
}

func (w historyWriter) Write(p []byte) (int, error) {
	var rec map[string]interface{}
	if err := json.Unmarshal(p, &rec); err != nil {
		return len(p), nil
	}
	w.l.addToHistory(entryFromRecord(rec))
	return len(p), nil
}

var reservedFields = map[string]bool{
	zerolog.TimestampFieldName: true,
	zerolog.LevelFieldName:     true,
	zerolog.MessageFieldName:   true,
	zerolog.ErrorFieldName:     true,
	"component":                true,
	"app":                      true,
}

func entryFromRecord(rec map[string]interface{}) LogEntry {
	str := func(k string) string {
		v, _ := rec[k].(string)
		return v
	}

	data := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		if !reservedFields[k] {
			data[k] = v
		}
	}
	text := formatData(data)
	if e, ok := rec[zerolog.ErrorFieldName]; ok {
		if text != "" {
			text += ", "
		}
		text += fmt.Sprintf("error=%v", e)
	}

	return LogEntry{
		Timestamp: time.Now().Format("15:04:05.000"),
		Level:     str(zerolog.LevelFieldName),
		Component: str("component"),
		Message:   str(zerolog.MessageFieldName),
		Data:      text,
	}
}

// formatData renders data as sorted k=v pairs
func formatData(data map[string]interface{}) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, ", ")
}

func (l *Logger) log(level LogLevel, component, msg string, err error, data map[string]interface{}) {
	var event *zerolog.Event
	switch level {
	case LevelDebug:
		event = l.zlog.Debug()
	case LevelWarn:
		event = l.zlog.Warn()
	case LevelError:
		event = l.zlog.Error()
	default:
		event = l.zlog.Info()
	}
	if event == nil {
		return
	}

	event = event.Str("component", component)
	if err != nil {
		event = event.Err(err)
	}
	for k, v := range data {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Debug logs a debug message
func (l *Logger) Debug(component, msg string, data map[string]interface{}) {
	l.log(LevelDebug, component, msg, nil, data)
}

// Info logs an info message
func (l *Logger) Info(component, msg string, data map[string]interface{}) {
	l.log(LevelInfo, component, msg, nil, data)
}

// Warn logs a warning message
func (l *Logger) Warn(component, msg string, data map[string]interface{}) {
	l.log(LevelWarn, component, msg, nil, data)
}

// Error logs an error message
func (l *Logger) Error(component, msg string, err error, data map[string]interface{}) {
	l.log(LevelError, component, msg, err, data)
}

// Component returns a zerolog.Logger with the component field set.
// Packages take this instead of the wrapper.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}
