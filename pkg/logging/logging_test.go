/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logging_test.go
Description: Tests for the logging system: configuration, formatters, the reporter
hooks, log file management and log analysis.
*/

package logging_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kleascm/fanalyzer/pkg/core"
	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/kleascm/fanalyzer/pkg/logging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Logger must be usable wherever the engine takes a reporter
var _ core.Reporter = (*logging.Logger)(nil)

func newTestLogger(t *testing.T, format logging.LogFormat) (*logging.Logger, *bytes.Buffer) {
	console := &bytes.Buffer{}
	logger, err := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.LogLevelDebug,
		Format:    format,
		OutputDir: t.TempDir(),
		MaxFiles:  5,
		MaxSize:   1024 * 1024,
		Timestamp: true,
		Colors:    false,
		Console:   console,
	})
	require.NoError(t, err)
	return logger, console
}

// TestLoggerConfigValidate tests configuration checks
func TestLoggerConfigValidate(t *testing.T) {
	assert.NoError(t, logging.DefaultLoggerConfig().Validate())

	consoleOnly := &logging.LoggerConfig{Level: logging.LogLevelInfo, Format: logging.LogFormatText}
	assert.NoError(t, consoleOnly.Validate())

	bad := logging.DefaultLoggerConfig()
	bad.Format = "xml"
	assert.Error(t, bad.Validate())

	bad = logging.DefaultLoggerConfig()
	bad.Level = "loud"
	assert.Error(t, bad.Validate())

	bad = logging.DefaultLoggerConfig()
	bad.MaxFiles = 0
	assert.Error(t, bad.Validate())

	_, err := logging.NewLogger(bad)
	assert.Error(t, err)
}

// TestLogFormats tests that every format writes to console and file
func TestLogFormats(t *testing.T) {
	for _, format := range []logging.LogFormat{logging.LogFormatText, logging.LogFormatJSON, logging.LogFormatCustom} {
		t.Run(string(format), func(t *testing.T) {
			logger, console := newTestLogger(t, format)
			logger.GetLogger().WithField("test_key", "test_value").Info("Test message")
			require.NoError(t, logger.Close())

			assert.Contains(t, console.String(), "Test message")
			content, err := os.ReadFile(logger.FilePath())
			require.NoError(t, err)
			assert.Contains(t, string(content), "test_value")
		})
	}
}

// TestLoggerReporterHooks tests the analysis logging helpers
func TestLoggerReporterHooks(t *testing.T) {
	logger, console := newTestLogger(t, logging.LogFormatCustom)

	logger.OnFileOpened(core.FileInfo{ID: "f1", Name: "a.bin"})
	logger.OnAnalyzerAttached("f1", interfaces.TagHash)
	logger.OnAttachFailed("f1", interfaces.Tag(99), errors.New("no analyzer registered for tag"))
	logger.OnUndelivered("f1", 10, 2048)
	logger.OnEvent(interfaces.Event{FileID: "f1", Tag: interfaces.TagHash, Name: "file_hash", Fields: map[string]interface{}{"hash": "abc"}})
	logger.OnAnalyzerDetached("f1", interfaces.TagHash, core.DetachEOF)
	logger.OnFileClosed(core.FileInfo{
		ID:           "f1",
		Name:         "a.bin",
		SeenBytes:    4096,
		MissingBytes: 2048,
		EndOfFile:    true,
		Started:      time.Now().Add(-time.Second),
		Finished:     time.Now(),
	})
	logger.LogStats(core.Stats{Files: 1, SeenBytes: 4096})
	require.NoError(t, logger.Close())

	out := console.String()
	assert.Contains(t, out, "[FILE] File opened")
	assert.Contains(t, out, "[ATTACH] Analyzer attached")
	assert.Contains(t, out, "[ATTACH] Analyzer not attached")
	assert.Contains(t, out, "[GAP] Undelivered data")
	assert.Contains(t, out, "length=2.0 KiB")
	assert.Contains(t, out, "[EVENT] Analyzer event")
	assert.Contains(t, out, "hash=abc")
	assert.Contains(t, out, "[DETACH] Analyzer detached")
	assert.Contains(t, out, "[FILE] File finished")
	assert.Contains(t, out, "seen=4.0 KiB")
	assert.Contains(t, out, "[STATS] Statistics update")
}

// TestLoggerCloseFlushesQueue tests that queued gap and event entries survive
// Close and that logging after Close neither blocks nor is lost
func TestLoggerCloseFlushesQueue(t *testing.T) {
	logger, console := newTestLogger(t, logging.LogFormatText)
	for i := 0; i < 100; i++ {
		logger.OnEvent(interfaces.Event{FileID: "f1", Tag: interfaces.TagDataEvent, Name: "file_chunk", Fields: map[string]interface{}{"n": i}})
		logger.OnUndelivered("f1", uint64(i), 1)
	}
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	out := console.String()
	assert.Equal(t, 100, strings.Count(out, "Analyzer event"))
	assert.Equal(t, 100, strings.Count(out, "Undelivered data"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			logger.OnEvent(interfaces.Event{FileID: "f2", Tag: interfaces.TagHash, Name: "file_hash"})
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("logging after Close blocked")
	}
	assert.Equal(t, 2100, strings.Count(console.String(), "Analyzer event"))
}

// TestLoggerQueueRespectsLevel tests that entries below the level are not queued
func TestLoggerQueueRespectsLevel(t *testing.T) {
	console := &bytes.Buffer{}
	logger, err := logging.NewLogger(&logging.LoggerConfig{
		Level:   logging.LogLevelInfo,
		Format:  logging.LogFormatText,
		Console: console,
	})
	require.NoError(t, err)

	logger.OnUndelivered("f1", 0, 10)
	logger.OnEvent(interfaces.Event{FileID: "f1", Tag: interfaces.TagHash, Name: "file_hash"})
	require.NoError(t, logger.Close())

	assert.NotContains(t, console.String(), "Undelivered data")
	assert.Contains(t, console.String(), "Analyzer event")
}

// TestCustomFormatter tests the custom formatter
func TestCustomFormatter(t *testing.T) {
	formatter := &logging.CustomFormatter{Timestamp: false, Colors: false}
	entry := &logrus.Entry{
		Level:   logrus.InfoLevel,
		Message: "Test message",
		Time:    time.Now(),
		Data: logrus.Fields{
			"b":        2,
			"a":        "one",
			"duration": 1500 * time.Millisecond,
			"payload":  bytes.Repeat([]byte{1}, 32),
		},
	}

	out, err := formatter.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "INFO Test message a=one b=2 duration=1.5s payload=[32 bytes]\n", string(out))
}

// TestAnalysisFormatter tests category prefixes
func TestAnalysisFormatter(t *testing.T) {
	formatter := &logging.AnalysisFormatter{CustomFormatter: logging.CustomFormatter{}}
	entry := &logrus.Entry{Level: logrus.WarnLevel, Message: "Analyzer detached", Data: logrus.Fields{}}

	out, err := formatter.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "WARNING [DETACH] Analyzer detached\n", string(out))

	assert.Equal(t, "GAP", logging.Category("Undelivered data"))
	assert.Equal(t, "ENGINE", logging.Category("Analysis engine initialized"))
	assert.Equal(t, "", logging.Category("something else"))
}

// TestLogManager tests log rotation, cleanup and stats
func TestLogManager(t *testing.T) {
	logDir := t.TempDir()
	names := []string{
		"fanalyzer_2024-01-01_10-00-00.log",
		"fanalyzer_2024-01-01_11-00-00.log",
		"fanalyzer_2024-01-01_12-00-00.log",
		"fanalyzer_2024-01-01_13-00-00.log",
	}
	for i, name := range names {
		path := filepath.Join(logDir, name)
		require.NoError(t, os.WriteFile(path, []byte("line\n"), 0644))
		stamp := time.Now().Add(time.Duration(i-len(names)) * time.Hour)
		require.NoError(t, os.Chtimes(path, stamp, stamp))
	}

	manager := logging.NewLogManager(logDir, 3, 1024, false)
	require.NoError(t, manager.CleanupOldLogs())

	files, err := filepath.Glob(filepath.Join(logDir, "fanalyzer_*.log"))
	require.NoError(t, err)
	assert.Len(t, files, 3)
	assert.NoFileExists(t, filepath.Join(logDir, names[0]), "oldest file removed")

	stats, err := manager.GetLogStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, int64(15), stats.TotalSize)

	// Oversized files are rotated and compressed
	big := filepath.Join(logDir, "fanalyzer_2024-01-02_10-00-00.log")
	require.NoError(t, os.WriteFile(big, bytes.Repeat([]byte("x"), 2048), 0644))
	compressing := logging.NewLogManager(logDir, 10, 1024, true)
	require.NoError(t, compressing.RotateLogs())
	assert.NoFileExists(t, big)

	stats, err = compressing.GetLogStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CompressedFiles)
	assert.Equal(t, 1, stats.RotatedFiles)
	assert.Equal(t, int64(1), stats.Rotations)

	// The file being written is left alone
	active := filepath.Join(logDir, "fanalyzer_2024-01-03_10-00-00.log")
	require.NoError(t, os.WriteFile(active, bytes.Repeat([]byte("y"), 2048), 0644))
	compressing.Protect(active)
	require.NoError(t, compressing.RotateLogs())
	assert.FileExists(t, active)

	pruning := logging.NewLogManager(logDir, 1, 1024, false)
	pruning.Protect(active)
	require.NoError(t, pruning.CleanupOldLogs())
	files, err = filepath.Glob(filepath.Join(logDir, "fanalyzer_*"))
	require.NoError(t, err)
	assert.Equal(t, []string{active}, files)
}

// TestLoggerRotatesDuringRun tests that a growing log file is rotated while the
// logger writes it and that the analyzer still reads every rotated entry
func TestLoggerRotatesDuringRun(t *testing.T) {
	logDir := t.TempDir()
	console := &bytes.Buffer{}
	logger, err := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.LogLevelInfo,
		Format:    logging.LogFormatText,
		OutputDir: logDir,
		MaxFiles:  100,
		MaxSize:   1024,
		Compress:  true,
		Console:   console,
	})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		logger.OnFileClosed(core.FileInfo{ID: "f1", Name: "capture.bin", SeenBytes: uint64(i)})
	}
	assert.Positive(t, logger.Rotations())

	logger.LogStats(core.Stats{Files: 50})
	assert.Contains(t, console.String(), "log_rotations=")

	stats, err := logging.NewLogManager(logDir, 100, 1024, true).GetLogStats()
	require.NoError(t, err)
	assert.Positive(t, stats.CompressedFiles)
	assert.Equal(t, stats.RotatedFiles, stats.CompressedFiles)

	current, err := os.Stat(logger.FilePath())
	require.NoError(t, err)
	assert.LessOrEqual(t, current.Size(), int64(1024))

	require.NoError(t, logger.Close())

	analysis, err := logging.NewLogAnalyzer(logDir).AnalyzeLogs()
	require.NoError(t, err)
	assert.Equal(t, int64(50), analysis.FileCount)
	assert.Greater(t, analysis.LogFiles, 1)
}

// TestLogAnalyzer tests log analysis
func TestLogAnalyzer(t *testing.T) {
	logDir := t.TempDir()
	lines := []string{
		"2024-01-01 10:00:01.000 DEBUG [ATTACH] Analyzer attached analyzer=HASH file=f1",
		"2024-01-01 10:00:01.000 DEBUG [ATTACH] Analyzer not attached analyzer=TAG(99) file=f1",
		"2024-01-01 10:00:02.000 WARNING [DETACH] Analyzer detached analyzer=HASH reason=panic",
		"2024-01-01 10:00:03.000 INFO [EVENT] Analyzer event event=file_hash",
		"2024-01-01 10:00:04.000 DEBUG [GAP] Undelivered data offset=10 length=4.0 KiB",
		"2024-01-01 10:00:05.000 INFO [FILE] File finished file=f1",
		"2024-01-01 10:00:06.000 ERROR Analyzer panicked: boom",
	}
	path := filepath.Join(logDir, "fanalyzer_2024-01-01_10-00-00.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))

	analysis, err := logging.NewLogAnalyzer(logDir).AnalyzeLogs()
	require.NoError(t, err)

	assert.Equal(t, 1, analysis.LogFiles)
	assert.Equal(t, int64(7), analysis.TotalLines)
	assert.Equal(t, int64(3), analysis.DebugCount)
	assert.Equal(t, int64(2), analysis.InfoCount)
	assert.Equal(t, int64(1), analysis.WarningCount)
	assert.Equal(t, int64(1), analysis.ErrorCount)
	assert.Equal(t, int64(1), analysis.AttachCount)
	assert.Equal(t, int64(1), analysis.AttachFailureCount)
	assert.Equal(t, int64(1), analysis.DetachCount)
	assert.Equal(t, int64(1), analysis.EventCount)
	assert.Equal(t, int64(1), analysis.GapCount)
	assert.Equal(t, int64(1), analysis.FileCount)

	summary := analysis.GetLogSummary()
	assert.Contains(t, summary, "Log Analysis Summary")
	assert.Contains(t, summary, "Total Lines: 7")
}
