package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents logging severity using slog levels
type Level slog.Level

const (
	DebugLevel Level = Level(slog.LevelDebug)
	InfoLevel  Level = Level(slog.LevelInfo)
	WarnLevel  Level = Level(slog.LevelWarn)
	ErrorLevel Level = Level(slog.LevelError)
	FatalLevel Level = Level(slog.LevelError + 4)
)

const timeFormat = "2006-01-02T15:04:05.000-07:00"

// Config mirrors the [logging] section of the application config
type Config struct {
	Enabled         bool
	Directory       string
	FilenamePattern string
	Level           string
	MaxFiles        int
	MaxSizeMB       int
	ConsoleOutput   bool
}

// EnhancedLogger wraps slog.Logger with size and daily file rotation
type EnhancedLogger struct {
	*slog.Logger
	config   Config
	console  io.Writer
	file     *os.File
	fileName string
	fileSize int64
	mu       sync.Mutex
}

var (
	globalLogger *EnhancedLogger
	globalMu     sync.Mutex
)

// Initialize replaces the global logger with one built from config
func Initialize(config Config) error {
	l, err := NewEnhancedLogger(config)
	if err != nil {
		return err
	}
	SetGlobal(l)
	return nil
}

// SetGlobal installs l as the global logger and closes the previous one
func SetGlobal(l *EnhancedLogger) {
	globalMu.Lock()
	prev := globalLogger
	globalLogger = l
	globalMu.Unlock()

	if prev != nil && prev != l {
		prev.Close()
	}
}

// Get returns the global logger, creating a console logger on first use
func Get() *EnhancedLogger {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger == nil {
		globalLogger = NewWithWriter(os.Stdout, "info")
	}
	return globalLogger
}

// NewWithWriter creates a logger that writes only to w
func NewWithWriter(w io.Writer, level string) *EnhancedLogger {
	l := &EnhancedLogger{
		config:  Config{Level: level, ConsoleOutput: true},
		console: w,
	}
	l.Logger = slog.New(newHandler(l, parseLogLevel(level)))
	return l
}

// NewEnhancedLogger creates a new logger with the given configuration
func NewEnhancedLogger(config Config) (*EnhancedLogger, error) {
	if config.Enabled && config.FilenamePattern != "" {
		if err := ValidateFilenamePattern(config.FilenamePattern); err != nil {
			return nil, fmt.Errorf("invalid filename pattern: %w", err)
		}
	}

	l := &EnhancedLogger{config: config}

	if config.ConsoleOutput || !config.Enabled {
		l.console = os.Stdout
	}

	if config.Enabled {
		if err := os.MkdirAll(logDirectory(config.Directory), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		if err := l.openLogFile(); err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
	}

	l.Logger = slog.New(newHandler(l, parseLogLevel(config.Level)))

	l.Debug("Logger initialized",
		slog.String("log_file", l.fileName),
		slog.String("level", config.Level),
		slog.Bool("console", l.console != nil))

	return l, nil
}

func newHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(timeFormat))
			}
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok {
					return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", filepath.Base(source.File), source.Line))
				}
			}
			return a
		},
	})
}

// openLogFile opens the file named by the current pattern (caller holds mu or owns l)
func (l *EnhancedLogger) openLogFile() error {
	path := filepath.Join(logDirectory(l.config.Directory), generateLogFilename(l.config.FilenamePattern, time.Now()))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	l.file = file
	l.fileName = path
	l.fileSize = info.Size()
	return nil
}

func logDirectory(dir string) string {
	if strings.TrimSpace(dir) == "" {
		return "logs"
	}
	return filepath.Clean(dir)
}

// generateLogFilename expands YYYY, YY, MM, DD and HH tokens
func generateLogFilename(pattern string, now time.Time) string {
	if pattern == "" {
		pattern = "farmersaid-YYYYMMDD.log"
	}

	r := strings.NewReplacer(
		"YYYY", fmt.Sprintf("%04d", now.Year()),
		"YY", fmt.Sprintf("%02d", now.Year()%100),
		"MM", fmt.Sprintf("%02d", now.Month()),
		"DD", fmt.Sprintf("%02d", now.Day()),
		"HH", fmt.Sprintf("%02d", now.Hour()),
	)
	return r.Replace(pattern)
}

func parseLogLevel(level string) slog.Level {
	lvl, err := ParseLevel(level)
	if err != nil || lvl == FatalLevel {
		return slog.LevelInfo
	}
	return slog.Level(lvl)
}

// rotateIfNeeded rotates on size or when the pattern yields a new name (caller holds mu)
func (l *EnhancedLogger) rotateIfNeeded() error {
	if l.file == nil {
		return nil
	}

	maxSize := int64(l.config.MaxSizeMB) * 1024 * 1024
	sizeExceeded := maxSize > 0 && l.fileSize >= maxSize
	nameChanged := filepath.Base(l.fileName) != generateLogFilename(l.config.FilenamePattern, time.Now())
	if !sizeExceeded && !nameChanged {
		return nil
	}

	l.file.Close()

	if sizeExceeded {
		ext := filepath.Ext(l.fileName)
		archived := fmt.Sprintf("%s-%s%s", strings.TrimSuffix(l.fileName, ext), time.Now().Format("20060102-150405"), ext)
		if err := os.Rename(l.fileName, archived); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to archive log file: %v\n", err)
		}
	}

	if err := l.openLogFile(); err != nil {
		l.file = nil
		return err
	}

	if l.config.MaxFiles > 0 {
		go cleanOldFiles(filepath.Dir(l.fileName), l.config.FilenamePattern, l.config.MaxFiles)
	}
	return nil
}

// cleanOldFiles keeps the newest keep files matching pattern
func cleanOldFiles(dir, pattern string, keep int) {
	glob := strings.NewReplacer("YYYY", "*", "YY", "*", "MM", "*", "DD", "*", "HH", "*").Replace(pattern)
	ext := filepath.Ext(glob)
	glob = strings.TrimSuffix(glob, ext) + "*" + ext

	matches, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil || len(matches) <= keep {
		return
	}

	type entry struct {
		path    string
		modTime time.Time
	}
	files := make([]entry, 0, len(matches))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil {
			files = append(files, entry{m, info.ModTime()})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	for _, f := range files[min(keep, len(files)):] {
		os.Remove(f.path)
	}
}

// Write implements io.Writer for the slog handler
func (l *EnhancedLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.console != nil {
		if _, err := l.console.Write(p); err != nil && l.file == nil {
			return 0, err
		}
	}

	if l.file == nil {
		return len(p), nil
	}

	n, err := l.file.Write(p)
	l.fileSize += int64(n)
	if err != nil {
		return n, err
	}

	if err := l.rotateIfNeeded(); err != nil {
		fmt.Fprintf(os.Stderr, "Log rotation error: %v\n", err)
	}
	return len(p), nil
}

// Close closes the log file
func (l *EnhancedLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// FileName returns the active log file path, if any
func (l *EnhancedLogger) FileName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fileName
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	Get().Debug(fmt.Sprintf(format, args...))
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	Get().Info(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	Get().Warn(fmt.Sprintf(format, args...))
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	Get().Error(fmt.Sprintf(format, args...))
}

// Fatal logs a fatal message and exits
func Fatal(format string, args ...interface{}) {
	Get().Error(fmt.Sprintf(format, args...))
	Get().Close()
	os.Exit(1)
}

// redactURL drops the query string, which carries API keys for several upstreams
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}

// LogAPIRequest logs the start of an upstream request
func LogAPIRequest(source, method, rawURL string) {
	Get().LogAttrs(context.Background(), slog.LevelDebug, "API request started",
		slog.Group("request",
			slog.String("source", source),
			slog.String("method", method),
			slog.String("url", redactURL(rawURL)),
			slog.String("type", "api_request"),
		),
	)
}

// LogAPIResponse logs an upstream response
func LogAPIResponse(source, method, rawURL string, statusCode int, duration time.Duration, bodySize int) {
	level := slog.LevelDebug
	if statusCode >= 400 {
		level = slog.LevelWarn
	}

	Get().LogAttrs(context.Background(), level, "API request completed",
		slog.Group("request",
			slog.String("source", source),
			slog.String("method", method),
			slog.String("url", redactURL(rawURL)),
			slog.Int("status_code", statusCode),
			slog.Duration("duration", duration),
			slog.Int("body_size", bodySize),
			slog.String("type", "api_response"),
		),
	)
}

// LogOperationStart logs the beginning of an operation and returns a completion function
func LogOperationStart(operation string, details map[string]any) func(error) {
	startTime := time.Now()

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("type", "operation_start"),
	}
	if len(details) > 0 {
		attrs = append(attrs, slog.Group("details", sortedFields(details)...))
	}

	Get().LogAttrs(context.Background(), slog.LevelDebug, "Operation started", attrs...)

	return func(err error) {
		level := slog.LevelInfo
		message := "Operation completed"

		done := []slog.Attr{
			slog.String("operation", operation),
			slog.String("type", "operation_complete"),
			slog.Duration("duration", time.Since(startTime)),
			slog.Bool("success", err == nil),
		}
		if err != nil {
			level = slog.LevelError
			message = "Operation failed"
			done = append(done, slog.String("error", err.Error()))
		}

		Get().LogAttrs(context.Background(), level, message, done...)
	}
}

// LogStructuredError logs an error with caller location and context fields
func LogStructuredError(err error, ctxFields map[string]any) {
	attrs := []slog.Attr{
		slog.String("error", err.Error()),
		slog.String("type", "structured_error"),
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		attrs = append(attrs, slog.String("source", fmt.Sprintf("%s:%d", filepath.Base(file), line)))
	}
	if len(ctxFields) > 0 {
		attrs = append(attrs, slog.Group("context", sortedFields(ctxFields)...))
	}

	Get().LogAttrs(context.Background(), slog.LevelError, "Error occurred", attrs...)
}

// LogWithFields logs a message with custom structured fields
func LogWithFields(level Level, message string, fields map[string]any) {
	slogLevel := slog.Level(level)
	if level == FatalLevel {
		slogLevel = slog.LevelError
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(fields))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}

	Get().LogAttrs(context.Background(), slogLevel, message, attrs...)

	if level == FatalLevel {
		os.Exit(1)
	}
}

// sortedFields flattens a map into key/value pairs in key order
func sortedFields(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]any, 0, len(fields)*2)
	for _, k := range keys {
		out = append(out, k, fields[k])
	}
	return out
}

// ParseLevel converts a string to a log level
func ParseLevel(levelStr string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", levelStr)
	}
}
