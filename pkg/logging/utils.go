/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Log file management for fanalyzer. Rotates the file a Logger writes once
it outgrows its size limit, compresses and prunes rotated files and summarizes log
content: levels plus file and analyzer activity.
*/

package logging

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LogManager rotates, compresses and prunes the log files a Logger writes into
// one directory. A running Logger rotates its own file through its manager.
type LogManager struct {
	logDir   string
	maxFiles int
	maxSize  int64
	compress bool

	mu        sync.Mutex
	active    string // never rotated or pruned by a sweep
	rotations atomic.Int64
}

// NewLogManager creates a new log manager
func NewLogManager(logDir string, maxFiles int, maxSize int64, compress bool) *LogManager {
	return &LogManager{
		logDir:   logDir,
		maxFiles: maxFiles,
		maxSize:  maxSize,
		compress: compress,
	}
}

// Protect marks path as the file currently written; empty clears it
func (lm *LogManager) Protect(path string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.active = path
}

func (lm *LogManager) protected() string {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.active
}

// Rotations returns how many files this manager has rotated
func (lm *LogManager) Rotations() int64 {
	return lm.rotations.Load()
}

// logFile is one file of the log directory
type logFile struct {
	path       string
	size       int64
	modTime    time.Time
	rotated    bool // carries a rotation stamp after .log
	compressed bool
}

// list returns the log files of the directory, current and rotated
func (lm *LogManager) list() ([]logFile, error) {
	paths, err := filepath.Glob(filepath.Join(lm.logDir, logFilePrefix+"*.log*"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob log files: %w", err)
	}

	files := make([]logFile, 0, len(paths))
	for _, path := range paths {
		stat, err := os.Stat(path)
		if err != nil || !stat.Mode().IsRegular() {
			continue
		}
		files = append(files, logFile{
			path:       path,
			size:       stat.Size(),
			modTime:    stat.ModTime(),
			rotated:    !strings.HasSuffix(path, ".log"),
			compressed: strings.HasSuffix(path, ".gz"),
		})
	}
	return files, nil
}

// RotateLogs rotates every current log file past the size limit except the
// protected one
func (lm *LogManager) RotateLogs() error {
	files, err := lm.list()
	if err != nil {
		return err
	}

	active := lm.protected()
	for _, f := range files {
		if f.rotated || f.path == active || f.size < lm.maxSize {
			continue
		}
		if _, err := lm.Rotate(f.path); err != nil {
			return fmt.Errorf("failed to rotate file %s: %w", f.path, err)
		}
	}
	return nil
}

// Rotate moves path aside under a timestamped name, compressed when configured,
// and returns where it went
func (lm *LogManager) Rotate(path string) (string, error) {
	rotated := fmt.Sprintf("%s.%s", path, time.Now().Format("2006-01-02_15-04-05.000000000"))
	if err := os.Rename(path, rotated); err != nil {
		return "", err
	}
	lm.rotations.Add(1)

	if !lm.compress {
		return rotated, nil
	}
	return compressFile(rotated)
}

// compressFile gzips path next to itself and removes the original
func compressFile(path string) (string, error) {
	source, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer source.Close()

	compressedPath := path + ".gz"
	compressed, err := os.Create(compressedPath)
	if err != nil {
		return "", err
	}

	gz := gzip.NewWriter(compressed)
	_, err = io.Copy(gz, source)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := compressed.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(compressedPath)
		return "", err
	}

	source.Close()
	return compressedPath, os.Remove(path)
}

// CleanupOldLogs keeps the newest maxFiles log files, the protected one included
func (lm *LogManager) CleanupOldLogs() error {
	files, err := lm.list()
	if err != nil {
		return err
	}

	active := lm.protected()
	keep := lm.maxFiles
	candidates := files[:0]
	for _, f := range files {
		if f.path == active {
			keep--
			continue
		}
		candidates = append(candidates, f)
	}
	if keep < 0 {
		keep = 0
	}
	if len(candidates) <= keep {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.Before(candidates[j].modTime)
	})
	for _, f := range candidates[:len(candidates)-keep] {
		if err := os.Remove(f.path); err != nil {
			return fmt.Errorf("failed to remove file %s: %w", f.path, err)
		}
	}
	return nil
}

// GetLogStats returns statistics about log files
func (lm *LogManager) GetLogStats() (*LogStats, error) {
	files, err := lm.list()
	if err != nil {
		return nil, err
	}

	stats := &LogStats{
		TotalFiles: len(files),
		ActiveFile: lm.protected(),
		Rotations:  lm.Rotations(),
	}
	for _, f := range files {
		stats.TotalSize += f.size
		if stats.OldestFile.IsZero() || f.modTime.Before(stats.OldestFile) {
			stats.OldestFile = f.modTime
		}
		if f.modTime.After(stats.NewestFile) {
			stats.NewestFile = f.modTime
		}
		if f.rotated {
			stats.RotatedFiles++
		}
		if f.compressed {
			stats.CompressedFiles++
		} else {
			stats.UncompressedFiles++
		}
	}
	return stats, nil
}

// LogStats holds statistics about log files
type LogStats struct {
	TotalFiles        int       `json:"total_files"`
	TotalSize         int64     `json:"total_size"`
	CompressedFiles   int       `json:"compressed_files"`
	UncompressedFiles int       `json:"uncompressed_files"`
	RotatedFiles      int       `json:"rotated_files"`
	Rotations         int64     `json:"rotations"` // by this manager
	ActiveFile        string    `json:"active_file,omitempty"`
	OldestFile        time.Time `json:"oldest_file"`
	NewestFile        time.Time `json:"newest_file"`
}

// rotatingFile is the file behind a Logger. A write that would take it past
// maxSize rotates it through the manager first and starts a fresh file.
type rotatingFile struct {
	path    string
	file    *os.File
	size    int64
	maxSize int64
	manager *LogManager
}

func openRotatingFile(path string, maxSize int64, manager *LogManager) (*rotatingFile, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	manager.Protect(path)
	return &rotatingFile{path: path, file: file, size: stat.Size(), maxSize: maxSize, manager: manager}, nil
}

// Write is serialized by the logrus logger that owns the file
func (r *rotatingFile) Write(p []byte) (int, error) {
	if r.file == nil {
		return 0, os.ErrClosed
	}
	if r.maxSize > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log file: %w", err)
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil
	if _, err := r.manager.Rotate(r.path); err != nil {
		return err
	}
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	r.file = file
	r.size = 0
	if err := r.manager.CleanupOldLogs(); err != nil {
		return err
	}
	return nil
}

// Close closes the file and releases its protection
func (r *rotatingFile) Close() error {
	r.manager.Protect("")
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// LogAnalyzer provides log analysis capabilities
type LogAnalyzer struct {
	logDir string
}

// NewLogAnalyzer creates a new log analyzer
func NewLogAnalyzer(logDir string) *LogAnalyzer {
	return &LogAnalyzer{
		logDir: logDir,
	}
}

// AnalyzeLogs analyzes current, rotated and compressed log files
func (la *LogAnalyzer) AnalyzeLogs() (*LogAnalysis, error) {
	files, err := NewLogManager(la.logDir, 0, 0, false).list()
	if err != nil {
		return nil, err
	}

	analysis := &LogAnalysis{
		StartTime: time.Now(),
		LogFiles:  len(files),
	}

	for _, f := range files {
		if err := la.analyzeFile(f, analysis); err != nil {
			return nil, fmt.Errorf("failed to analyze file %s: %w", f.path, err)
		}
	}

	return analysis, nil
}

// analyzeFile analyzes a single log file
func (la *LogAnalyzer) analyzeFile(f logFile, analysis *LogAnalysis) error {
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file
	if f.compressed {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		la.analyzeLine(scanner.Text(), analysis)
	}
	return scanner.Err()
}

// analyzeLine analyzes a single log line
func (la *LogAnalyzer) analyzeLine(line string, analysis *LogAnalysis) {
	analysis.TotalLines++

	// Count log levels
	switch {
	case containsLevel(line, "debug", "DEBU"):
		analysis.DebugCount++
	case containsLevel(line, "info", "INFO"):
		analysis.InfoCount++
	case containsLevel(line, "warning", "WARN"):
		analysis.WarningCount++
	case containsLevel(line, "error", "ERRO"):
		analysis.ErrorCount++
	case containsLevel(line, "fatal", "FATA"):
		analysis.FatalCount++
	}

	// Count analysis activity
	switch {
	case strings.Contains(line, "Analyzer attached"):
		analysis.AttachCount++
	case strings.Contains(line, "Analyzer not attached"):
		analysis.AttachFailureCount++
	case strings.Contains(line, "Analyzer detached"):
		analysis.DetachCount++
	case strings.Contains(line, "Analyzer event"):
		analysis.EventCount++
	case strings.Contains(line, "Undelivered data"):
		analysis.GapCount++
	case strings.Contains(line, "File finished"):
		analysis.FileCount++
	}
}

// containsLevel matches text, JSON and custom formatted level markers
func containsLevel(line, name, short string) bool {
	return strings.Contains(line, `"level":"`+name+`"`) ||
		strings.Contains(line, "level="+name) ||
		strings.Contains(line, strings.ToUpper(name)) ||
		strings.Contains(line, short+"[")
}

// LogAnalysis holds the results of log analysis
type LogAnalysis struct {
	StartTime          time.Time `json:"start_time"`
	LogFiles           int       `json:"log_files"`
	TotalLines         int64     `json:"total_lines"`
	DebugCount         int64     `json:"debug_count"`
	InfoCount          int64     `json:"info_count"`
	WarningCount       int64     `json:"warning_count"`
	ErrorCount         int64     `json:"error_count"`
	FatalCount         int64     `json:"fatal_count"`
	FileCount          int64     `json:"file_count"`
	AttachCount        int64     `json:"attach_count"`
	AttachFailureCount int64     `json:"attach_failure_count"`
	DetachCount        int64     `json:"detach_count"`
	EventCount         int64     `json:"event_count"`
	GapCount           int64     `json:"gap_count"`
}

// GetLogSummary returns a summary of the log analysis
func (la *LogAnalysis) GetLogSummary() string {
	return fmt.Sprintf(
		"Log Analysis Summary:\n"+
			"  Files: %d\n"+
			"  Total Lines: %d\n"+
			"  Debug: %d\n"+
			"  Info: %d\n"+
			"  Warning: %d\n"+
			"  Error: %d\n"+
			"  Fatal: %d\n"+
			"  Analyzed Files: %d\n"+
			"  Attached: %d\n"+
			"  Attach Failures: %d\n"+
			"  Detached: %d\n"+
			"  Events: %d\n"+
			"  Gaps: %d",
		la.LogFiles, la.TotalLines, la.DebugCount, la.InfoCount,
		la.WarningCount, la.ErrorCount, la.FatalCount, la.FileCount,
		la.AttachCount, la.AttachFailureCount, la.DetachCount, la.EventCount, la.GapCount,
	)
}
