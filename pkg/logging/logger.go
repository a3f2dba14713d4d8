/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logger.go
Description: Logging system for fanalyzer. Provides structured logging with timestamped
files and multiple output formats, plus helpers that log the life of files and
analyzers. Per-delivery entries (gaps, events) go through an async queue. A Logger
doubles as an engine reporter.
*/

package logging

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kleascm/fanalyzer/pkg/core"
	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warn"
	LogLevelError   LogLevel = "error"
	LogLevelFatal   LogLevel = "fatal"
)

// LogFormat represents the logging format
type LogFormat string

const (
	LogFormatJSON   LogFormat = "json"
	LogFormatText   LogFormat = "text"
	LogFormatCustom LogFormat = "custom"
)

// logFilePrefix names every log file this package writes
const logFilePrefix = "fanalyzer_"

// LoggerConfig holds the configuration for the logger
type LoggerConfig struct {
	Level     LogLevel  `json:"level" mapstructure:"level"`
	Format    LogFormat `json:"format" mapstructure:"format"`
	OutputDir string    `json:"output_dir" mapstructure:"output_dir"` // Empty logs to the console only
	MaxFiles  int       `json:"max_files" mapstructure:"max_files"`
	MaxSize   int64     `json:"max_size" mapstructure:"max_size"` // in bytes
	Timestamp bool      `json:"timestamp" mapstructure:"timestamp"`
	Caller    bool      `json:"caller" mapstructure:"caller"`
	Colors    bool      `json:"colors" mapstructure:"colors"`
	Compress  bool      `json:"compress" mapstructure:"compress"`

	SyslogEnabled bool   `json:"syslog_enabled" mapstructure:"syslog_enabled"`
	SyslogNetwork string `json:"syslog_network" mapstructure:"syslog_network"`
	SyslogAddress string `json:"syslog_address" mapstructure:"syslog_address"`

	// Console receives log lines next to the log file; defaults to stdout
	Console io.Writer `json:"-" mapstructure:"-"`
}

// DefaultLoggerConfig returns the configuration used when none is given
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:     LogLevelInfo,
		Format:    LogFormatText,
		OutputDir: "./logs",
		MaxFiles:  10,
		MaxSize:   100 * 1024 * 1024, // 100MB
		Timestamp: true,
		Caller:    false,
		Colors:    true,
	}
}

// Validate checks the LoggerConfig for invalid or missing values.
func (c *LoggerConfig) Validate() error {
	if c.OutputDir != "" {
		if c.MaxFiles <= 0 {
			return fmt.Errorf("max_files must be positive")
		}
		if c.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive")
		}
	}
	switch c.Format {
	case LogFormatJSON, LogFormatText, LogFormatCustom:
		// ok
	default:
		return fmt.Errorf("unsupported log format: %s", c.Format)
	}
	switch c.Level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError, LogLevelFatal:
		// ok
	default:
		return fmt.Errorf("unsupported log level: %s", c.Level)
	}
	return nil
}

type logEntry struct {
	level  logrus.Level
	msg    string
	fields logrus.Fields
}

// logQueueSize bounds the entries waiting for the background writer
const logQueueSize = 1024

// Logger provides logging for the analysis engine
type Logger struct {
	config     *LoggerConfig
	logger     *logrus.Logger
	console    io.Writer
	fileHandle *rotatingFile
	manager    *LogManager
	filePath   string
	startTime  time.Time

	// Queue for entries logged once per delivery; written synchronously after Close
	logQueue  chan logEntry
	quit      chan struct{}
	drained   sync.WaitGroup
	queueMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewLogger creates a new logger instance
func NewLogger(config *LoggerConfig) (*Logger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l := &Logger{
		config:    config,
		logger:    logrus.New(),
		startTime: time.Now(),
		logQueue:  make(chan logEntry, logQueueSize),
		quit:      make(chan struct{}),
	}

	if err := l.setup(); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	l.drained.Add(1)
	go l.runLogQueue()

	return l, nil
}

// setup configures the logger with the given configuration
func (l *Logger) setup() error {
	level, err := logrus.ParseLevel(string(l.config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.logger.SetLevel(level)
	l.logger.SetReportCaller(l.config.Caller)

	if err := l.setFormatter(); err != nil {
		return err
	}

	console := l.config.Console
	if console == nil {
		console = os.Stdout
	}
	l.console = console
	l.logger.SetOutput(console)

	if err := l.setupFileOutput(console); err != nil {
		return err
	}

	if l.config.SyslogEnabled {
		writer, err := syslog.Dial(l.config.SyslogNetwork, l.config.SyslogAddress, syslog.LOG_INFO|syslog.LOG_USER, "fanalyzer")
		if err != nil {
			return fmt.Errorf("failed to connect to syslog: %w", err)
		}
		l.logger.SetOutput(io.MultiWriter(l.logger.Out, writer))
	}

	return nil
}

// setFormatter configures the log formatter
func (l *Logger) setFormatter() error {
	switch l.config.Format {
	case LogFormatJSON:
		l.logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := filepath.Base(f.File)
				return "", fmt.Sprintf("%s:%d", filename, f.Line)
			},
		})

	case LogFormatText:
		l.logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   l.config.Timestamp,
			TimestampFormat: time.RFC3339,
			ForceColors:     l.config.Colors,
			DisableColors:   !l.config.Colors,
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := filepath.Base(f.File)
				return "", fmt.Sprintf("%s:%d", filename, f.Line)
			},
		})

	case LogFormatCustom:
		l.logger.SetFormatter(&AnalysisFormatter{
			CustomFormatter: CustomFormatter{
				Timestamp: l.config.Timestamp,
				Caller:    l.config.Caller,
				Colors:    l.config.Colors,
			},
		})

	default:
		return fmt.Errorf("unsupported log format: %s", l.config.Format)
	}

	return nil
}

// setupFileOutput opens a timestamped log file next to the console output
func (l *Logger) setupFileOutput(console io.Writer) error {
	if l.config.OutputDir == "" {
		return nil
	}

	if err := os.MkdirAll(l.config.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// Generate filename with timestamp
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	path := filepath.Join(l.config.OutputDir, fmt.Sprintf("%s%s.log", logFilePrefix, timestamp))

	manager := NewLogManager(l.config.OutputDir, l.config.MaxFiles, l.config.MaxSize, l.config.Compress)
	file, err := openRotatingFile(path, l.config.MaxSize, manager)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.manager = manager
	l.fileHandle = file
	l.filePath = path
	l.logger.SetOutput(io.MultiWriter(console, file))

	l.logger.WithFields(logrus.Fields{
		"start_time": l.startTime.Format(time.RFC3339),
		"log_file":   path,
		"level":      l.config.Level,
		"format":     l.config.Format,
	}).Info("fanalyzer logging system initialized")

	return nil
}

// runLogQueue flushes log entries from the queue in a background goroutine
func (l *Logger) runLogQueue() {
	defer l.drained.Done()
	for {
		select {
		case entry := <-l.logQueue:
			l.logger.WithFields(entry.fields).Log(entry.level, entry.msg)
		case <-l.quit:
			for {
				select {
				case entry := <-l.logQueue:
					l.logger.WithFields(entry.fields).Log(entry.level, entry.msg)
				default:
					return
				}
			}
		}
	}
}

// enqueue hands an entry to the background writer. Entries below the
// configured level are dropped here; after Close they are written directly.
func (l *Logger) enqueue(level logrus.Level, msg string, fields logrus.Fields) {
	if !l.logger.IsLevelEnabled(level) {
		return
	}

	l.queueMu.RLock()
	defer l.queueMu.RUnlock()
	if l.closed {
		l.logger.WithFields(fields).Log(level, msg)
		return
	}
	l.logQueue <- logEntry{level: level, msg: msg, fields: fields}
}

// Analysis-specific logging methods

// LogAttach logs an analyzer joining a file
func (l *Logger) LogAttach(fileID string, tag interfaces.Tag) {
	l.logger.WithFields(logrus.Fields{
		"file":     fileID,
		"analyzer": tag.String(),
	}).Debug("Analyzer attached")
}

// LogAttachFailed logs an analyzer that could not join a file
func (l *Logger) LogAttachFailed(fileID string, tag interfaces.Tag, err error) {
	l.logger.WithFields(logrus.Fields{
		"file":     fileID,
		"analyzer": tag.String(),
		"error":    err.Error(),
	}).Debug("Analyzer not attached")
}

// LogDetach logs an analyzer leaving a file
func (l *Logger) LogDetach(fileID string, tag interfaces.Tag, reason core.DetachReason) {
	entry := l.logger.WithFields(logrus.Fields{
		"file":     fileID,
		"analyzer": tag.String(),
		"reason":   string(reason),
	})
	if reason == core.DetachPanic {
		entry.Warn("Analyzer detached")
		return
	}
	entry.Debug("Analyzer detached")
}

// LogGap logs content that will never be delivered
func (l *Logger) LogGap(fileID string, offset, length uint64) {
	l.enqueue(logrus.DebugLevel, "Undelivered data", logrus.Fields{
		"file":   fileID,
		"offset": offset,
		"length": humanize.IBytes(length),
	})
}

// LogEvent logs an analyzer result
func (l *Logger) LogEvent(event interfaces.Event) {
	fields := logrus.Fields{
		"file":     event.FileID,
		"analyzer": event.Tag.String(),
		"event":    event.Name,
	}
	for k, v := range event.Fields {
		fields[k] = v
	}
	l.enqueue(logrus.InfoLevel, "Analyzer event", fields)
}

// LogFileSummary logs the final state of a file
func (l *Logger) LogFileSummary(info core.FileInfo) {
	fields := logrus.Fields{
		"file":      info.ID,
		"name":      info.Name,
		"seen":      humanize.IBytes(info.SeenBytes),
		"missing":   humanize.IBytes(info.MissingBytes),
		"analyzers": len(info.Analyzers),
		"eof":       info.EndOfFile,
	}
	if !info.Finished.IsZero() {
		fields["duration"] = info.Finished.Sub(info.Started)
	}
	if info.OverflowBytes > 0 {
		fields["overflow"] = humanize.IBytes(info.OverflowBytes)
	}
	l.logger.WithFields(fields).Info("File finished")
}

// LogStats logs engine statistics
func (l *Logger) LogStats(stats core.Stats) {
	fields := logrus.Fields{
		"files":           stats.Files,
		"attached":        stats.Attached,
		"attach_failures": stats.AttachFailures,
		"events":          stats.Events,
		"seen":            humanize.IBytes(uint64(stats.SeenBytes)),
		"missing":         humanize.IBytes(uint64(stats.MissingBytes)),
		"uptime":          time.Since(l.startTime),
	}
	if n := l.Rotations(); n > 0 {
		fields["log_rotations"] = n
	}
	l.logger.WithFields(fields).Info("Statistics update")
}

// Reporter hooks, so a Logger can be handed to the engine directly

// OnFileOpened logs the new file
func (l *Logger) OnFileOpened(info core.FileInfo) {
	l.logger.WithFields(logrus.Fields{
		"file":   info.ID,
		"name":   info.Name,
		"source": info.Source,
	}).Debug("File opened")
}

// OnAnalyzerAttached logs the attachment
func (l *Logger) OnAnalyzerAttached(fileID string, tag interfaces.Tag) {
	l.LogAttach(fileID, tag)
}

// OnAttachFailed logs the rejected attachment
func (l *Logger) OnAttachFailed(fileID string, tag interfaces.Tag, err error) {
	l.LogAttachFailed(fileID, tag, err)
}

// OnAnalyzerDetached logs the detachment
func (l *Logger) OnAnalyzerDetached(fileID string, tag interfaces.Tag, reason core.DetachReason) {
	l.LogDetach(fileID, tag, reason)
}

// OnEvent logs analyzer results
func (l *Logger) OnEvent(event interfaces.Event) {
	l.LogEvent(event)
}

// OnUndelivered logs the missing range
func (l *Logger) OnUndelivered(fileID string, offset, length uint64) {
	l.LogGap(fileID, offset, length)
}

// OnFileClosed logs the file summary
func (l *Logger) OnFileClosed(info core.FileInfo) {
	l.LogFileSummary(info)
}

// Close flushes queued entries, closes the log file and prunes old files
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.queueMu.Lock()
		l.closed = true
		close(l.quit)
		l.queueMu.Unlock()
		l.drained.Wait()

		if l.fileHandle == nil {
			return
		}
		l.logger.SetOutput(l.console)
		l.fileHandle.Close()

		manager := l.manager
		if rerr := manager.RotateLogs(); rerr != nil {
			err = fmt.Errorf("failed to rotate log files: %w", rerr)
			return
		}
		if cerr := manager.CleanupOldLogs(); cerr != nil {
			err = fmt.Errorf("failed to cleanup log files: %w", cerr)
		}
	})
	return err
}

// GetLogger returns the underlying logrus logger
func (l *Logger) GetLogger() *logrus.Logger {
	return l.logger
}

// FilePath returns the current log file, empty when logging to the console only
func (l *Logger) FilePath() string {
	return l.filePath
}

// Rotations returns how often the log file was rotated during this run
func (l *Logger) Rotations() int64 {
	if l.manager == nil {
		return 0
	}
	return l.manager.Rotations()
}
