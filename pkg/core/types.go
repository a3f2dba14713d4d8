/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: types.go
Description: Core types for the fanalyzer host. Defines the engine configuration,
the input sources files are read from, per-file summaries and the engine statistics
updated concurrently by the worker pool.
*/

package core

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/kleascm/fanalyzer/pkg/interfaces"
)

// Config contains all configuration parameters for the engine
// Supports both command-line flags and configuration files
type Config struct {
	// Execution configuration
	Workers     int    `json:"workers" mapstructure:"workers"`           // Number of files processed in parallel
	ChunkSize   uint64 `json:"chunk_size" mapstructure:"chunk_size"`     // Bytes read per delivery
	BufferLimit uint64 `json:"buffer_limit" mapstructure:"buffer_limit"` // Reassembly buffer per file (0 = unlimited)

	// Analyzers attached to every file
	Analyzers []AnalyzerSpec `json:"analyzers" mapstructure:"analyzers"`

	// Delivery simulation, for exercising analyzers against lossy captures
	Shuffle   bool  `json:"shuffle" mapstructure:"shuffle"`       // Deliver chunks out of order
	Seed      int64 `json:"seed" mapstructure:"seed"`             // Shuffle seed (0 = time based)
	DropEvery int   `json:"drop_every" mapstructure:"drop_every"` // Turn every Nth chunk into a gap (0 = never)

	// Logging configuration
	LogLevel string `json:"log_level" mapstructure:"log_level"` // Logging level (debug, info, warn, error)
	LogFile  string `json:"log_file" mapstructure:"log_file"`   // Log file path
	JSONLogs bool   `json:"json_logs" mapstructure:"json_logs"` // Use JSON log format
}

// AnalyzerSpec is one configured analyzer: its tag plus tunables
type AnalyzerSpec struct {
	Tag  string                 `json:"tag" mapstructure:"tag"`
	Args map[string]interface{} `json:"args" mapstructure:"args"`
}

// DefaultConfig returns the configuration used when nothing is specified
func DefaultConfig() *Config {
	return &Config{
		Workers:     0,
		ChunkSize:   64 * 1024,
		BufferLimit: 16 * 1024 * 1024,
		LogLevel:    "info",
	}
}

// Source is one file to analyze
type Source struct {
	Name   string    // File name
	Origin string    // Where it came from (path, connection, ...)
	Size   uint64    // Expected size, 0 if unknown
	Reader io.Reader // Content
}

// DetachReason says why an analyzer left its file
type DetachReason string

const (
	DetachChunk   DetachReason = "chunk"   // DeliverChunk returned false
	DetachStream  DetachReason = "stream"  // DeliverStream returned false
	DetachGap     DetachReason = "gap"     // Undelivered returned false
	DetachEOF     DetachReason = "eof"     // EndOfFile was delivered
	DetachRemoved DetachReason = "removed" // RemoveAnalyzer
	DetachClosed  DetachReason = "closed"  // File discarded before EOF
	DetachPanic   DetachReason = "panic"   // Analyzer panicked during delivery
)

// FileInfo summarizes a file for reporters
type FileInfo struct {
	ID            string           `json:"id" yaml:"id"`
	Name          string           `json:"name" yaml:"name"`
	Source        string           `json:"source" yaml:"source"`
	TotalBytes    uint64           `json:"total_bytes" yaml:"total_bytes"`
	SeenBytes     uint64           `json:"seen_bytes" yaml:"seen_bytes"`
	MissingBytes  uint64           `json:"missing_bytes" yaml:"missing_bytes"`
	OverflowBytes uint64           `json:"overflow_bytes" yaml:"overflow_bytes"`
	Analyzers     []interfaces.Tag `json:"analyzers" yaml:"analyzers"`
	EndOfFile     bool             `json:"end_of_file" yaml:"end_of_file"`
	Started       time.Time        `json:"started" yaml:"started"`
	Finished      time.Time        `json:"finished,omitempty" yaml:"finished,omitempty"`
}

// Stats tracks engine statistics
// Uses atomic operations for thread-safe updates
type Stats struct {
	Files          int64     `json:"files" yaml:"files"`                     // Files opened
	Attached       int64     `json:"attached" yaml:"attached"`               // Analyzers attached
	AttachFailures int64     `json:"attach_failures" yaml:"attach_failures"` // Attach attempts rejected
	Detached       int64     `json:"detached" yaml:"detached"`               // Analyzers detached
	Events         int64     `json:"events" yaml:"events"`                   // Analyzer events emitted
	SeenBytes      int64     `json:"seen_bytes" yaml:"seen_bytes"`           // Bytes streamed to analyzers
	MissingBytes   int64     `json:"missing_bytes" yaml:"missing_bytes"`     // Bytes reported undelivered
	StartTime      time.Time `json:"start_time" yaml:"start_time"`           // When the engine started
}

// IncrementFiles atomically increments the file counter
func (s *Stats) IncrementFiles() {
	atomic.AddInt64(&s.Files, 1)
}

// IncrementAttached atomically increments the attach counter
func (s *Stats) IncrementAttached() {
	atomic.AddInt64(&s.Attached, 1)
}

// IncrementAttachFailures atomically increments the attach failure counter
func (s *Stats) IncrementAttachFailures() {
	atomic.AddInt64(&s.AttachFailures, 1)
}

// IncrementDetached atomically increments the detach counter
func (s *Stats) IncrementDetached() {
	atomic.AddInt64(&s.Detached, 1)
}

// IncrementEvents atomically increments the event counter
func (s *Stats) IncrementEvents() {
	atomic.AddInt64(&s.Events, 1)
}

// AddBytes atomically adds delivered and missing byte counts
func (s *Stats) AddBytes(seen, missing uint64) {
	atomic.AddInt64(&s.SeenBytes, int64(seen))
	atomic.AddInt64(&s.MissingBytes, int64(missing))
}

// Snapshot returns a consistent copy of the counters
func (s *Stats) Snapshot() Stats {
	return Stats{
		Files:          atomic.LoadInt64(&s.Files),
		Attached:       atomic.LoadInt64(&s.Attached),
		AttachFailures: atomic.LoadInt64(&s.AttachFailures),
		Detached:       atomic.LoadInt64(&s.Detached),
		Events:         atomic.LoadInt64(&s.Events),
		SeenBytes:      atomic.LoadInt64(&s.SeenBytes),
		MissingBytes:   atomic.LoadInt64(&s.MissingBytes),
		StartTime:      s.StartTime,
	}
}
