/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: engine.go
Description: Main analysis engine for fanalyzer. Owns the analyzer registry, the
configured analyzer args and the worker pool; opens a File per source, attaches the
configured analyzers to it and fans sources out over the workers.
*/

package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/kleascm/fanalyzer/pkg/registry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Engine drives files through their analyzers
type Engine struct {
	config   *Config
	registry *registry.Registry
	stats    *Stats
	logger   *logrus.Logger
	logFile  *os.File // opened for Config.LogFile, closed by Close

	// Args built from the configured analyzers; the engine holds the creator reference
	args []*interfaces.Args

	// Worker management
	workers    []*Worker
	workerPool chan *Worker

	// Open files
	files map[string]*File

	// Tags already reported as unregistered
	unknownTags map[interfaces.Tag]bool

	reporters   []Reporter
	initialized bool
	closed      bool
	mu          sync.RWMutex
}

// NewEngine creates a new engine bound to a registry
func NewEngine(reg *registry.Registry) *Engine {
	return &Engine{
		registry: reg,
		stats: &Stats{
			StartTime: time.Now(),
		},
		logger:      logrus.New(),
		files:       make(map[string]*File),
		unknownTags: make(map[interfaces.Tag]bool),
	}
}

// SetLogger replaces the engine logger
func (e *Engine) SetLogger(logger *logrus.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
}

// Logger returns the engine logger
func (e *Engine) Logger() *logrus.Logger {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.logger
}

// AddReporter registers a Reporter for telemetry and results.
func (e *Engine) AddReporter(reporter Reporter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reporters = append(e.reporters, reporter)
}

// Registry returns the registry analyzers are built from
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Initialize sets up the engine with the given configuration.
// The registry is sealed: no analyzer variant can be added once files flow.
func (e *Engine) Initialize(config *Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return fmt.Errorf("engine already initialized")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultConfig().ChunkSize
	}
	e.config = config

	if err := e.setupLogging(); err != nil {
		return err
	}
	e.registry.Seal()

	for _, spec := range config.Analyzers {
		tag, err := interfaces.ParseTag(spec.Tag)
		if err != nil {
			e.releaseArgs()
			e.closeLogFile()
			return fmt.Errorf("invalid analyzer configuration: %w", err)
		}
		args := interfaces.NewArgs(tag, spec.Args)
		if err := e.registry.Validate(args); err != nil {
			if !errors.Is(err, registry.ErrUnregisteredTag) {
				args.Unref()
				e.releaseArgs()
				e.closeLogFile()
				return err
			}
			// Kept: attaching it fails per file and is reported once
			e.logger.Warnf("Configured analyzer %s is not registered", tag)
		}
		e.args = append(e.args, args)
	}

	e.initializeWorkers()
	e.initialized = true

	e.logger.WithFields(logrus.Fields{
		"analyzers": len(e.args),
		"workers":   len(e.workers),
	}).Info("Analysis engine initialized")
	return nil
}

// setupLogging configures the logging system based on configuration
func (e *Engine) setupLogging() error {
	level, err := logrus.ParseLevel(e.config.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	e.logger.SetLevel(level)

	if e.config.LogFile != "" {
		file, err := os.OpenFile(e.config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		e.logFile = file
		e.logger.SetOutput(file)
	}

	if e.config.JSONLogs {
		e.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

// initializeWorkers creates the worker pool
func (e *Engine) initializeWorkers() {
	numWorkers := e.config.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	e.workers = make([]*Worker, numWorkers)
	e.workerPool = make(chan *Worker, numWorkers)

	for i := 0; i < numWorkers; i++ {
		worker := NewWorker(i, e, e.logger)
		e.workers[i] = worker
		e.workerPool <- worker
	}
}

func (e *Engine) chunkSize() int {
	if e.config == nil || e.config.ChunkSize == 0 {
		return int(DefaultConfig().ChunkSize)
	}
	return int(e.config.ChunkSize)
}

// NewFile opens a file and attaches the configured analyzers to it
func (e *Engine) NewFile(cfg FileConfig) *File {
	e.mu.RLock()
	if cfg.BufferLimit == 0 && e.config != nil {
		cfg.BufferLimit = e.config.BufferLimit
	}
	reporters := append([]Reporter{&engineReporter{engine: e}}, e.reporters...)
	logger := e.logger
	e.mu.RUnlock()

	file := NewFile(e.registry, cfg, reporters...)
	file.SetLogger(logger)

	e.mu.Lock()
	e.files[file.ID()] = file
	e.mu.Unlock()

	e.AttachConfigured(file)
	return file
}

// AttachConfigured attaches every configured analyzer to file
func (e *Engine) AttachConfigured(file *File) {
	e.mu.RLock()
	args := append([]*interfaces.Args(nil), e.args...)
	e.mu.RUnlock()

	for _, a := range args {
		file.AddAnalyzer(a)
	}
}

// File returns an open file by ID
func (e *Engine) File(id string) (*File, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.files[id]
	return f, ok
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	delete(e.files, id)
	e.mu.Unlock()
}

// ProcessSource runs one source on the next free worker
func (e *Engine) ProcessSource(ctx context.Context, src Source) (FileInfo, error) {
	e.mu.RLock()
	ready := e.initialized && !e.closed
	e.mu.RUnlock()
	if !ready {
		return FileInfo{}, fmt.Errorf("engine is not initialized")
	}

	var worker *Worker
	select {
	case worker = <-e.workerPool:
	case <-ctx.Done():
		return FileInfo{}, ctx.Err()
	}
	defer func() { e.workerPool <- worker }()

	return worker.Process(ctx, src)
}

// Run processes every source over the worker pool and returns their summaries
// in source order. A failing source does not stop the others; all failures
// are joined in the returned error.
func (e *Engine) Run(ctx context.Context, sources []Source) ([]FileInfo, error) {
	e.mu.RLock()
	ready := e.initialized && !e.closed
	numWorkers := len(e.workers)
	e.mu.RUnlock()
	if !ready {
		return nil, fmt.Errorf("engine is not initialized")
	}

	results := make([]FileInfo, len(sources))
	failures := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(numWorkers)
	for i, src := range sources {
		g.Go(func() error {
			info, err := e.ProcessSource(ctx, src)
			results[i] = info
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", src.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(failures...)
}

// GetStats returns current engine statistics
func (e *Engine) GetStats() Stats {
	return e.stats.Snapshot()
}

// GetWorkers returns the worker pool
func (e *Engine) GetWorkers() []*Worker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*Worker(nil), e.workers...)
}

// Close discards open files and releases the configured args
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	open := make([]*File, 0, len(e.files))
	for _, f := range e.files {
		open = append(open, f)
	}
	e.files = make(map[string]*File)
	e.mu.Unlock()

	for _, f := range open {
		f.Close()
	}

	e.mu.Lock()
	e.releaseArgs()
	e.mu.Unlock()

	e.logger.Info("Analysis engine stopped")
	return e.closeLogFile()
}

// closeLogFile closes the engine's own log file and points the logger back at stderr
func (e *Engine) closeLogFile() error {
	if e.logFile == nil {
		return nil
	}
	e.logger.SetOutput(os.Stderr)
	err := e.logFile.Close()
	e.logFile = nil
	return err
}

func (e *Engine) releaseArgs() {
	for _, a := range e.args {
		a.Unref()
	}
	e.args = nil
}

// reportAttachFailure logs a failed attach. Unregistered tags are logged
// once per engine; every other failure each time it happens.
func (e *Engine) reportAttachFailure(fileID string, tag interfaces.Tag, err error) {
	e.stats.IncrementAttachFailures()

	if IsUnregistered(err) {
		e.mu.Lock()
		seen := e.unknownTags[tag]
		e.unknownTags[tag] = true
		logger := e.logger
		e.mu.Unlock()
		if !seen {
			logger.WithField("analyzer", tag.String()).Warn("Analyzer not registered, files proceed without it")
		}
		return
	}

	e.Logger().WithFields(logrus.Fields{
		"file":     fileID,
		"analyzer": tag.String(),
	}).Warnf("Failed to attach analyzer: %v", err)
}

// engineReporter keeps engine statistics up to date
type engineReporter struct {
	engine *Engine
}

func (r *engineReporter) OnFileOpened(info FileInfo) {
	r.engine.stats.IncrementFiles()
}

func (r *engineReporter) OnAnalyzerAttached(fileID string, tag interfaces.Tag) {
	r.engine.stats.IncrementAttached()
}

func (r *engineReporter) OnAttachFailed(fileID string, tag interfaces.Tag, err error) {
	r.engine.reportAttachFailure(fileID, tag, err)
}

func (r *engineReporter) OnAnalyzerDetached(fileID string, tag interfaces.Tag, reason DetachReason) {
	r.engine.stats.IncrementDetached()
}

func (r *engineReporter) OnUndelivered(fileID string, offset, length uint64) {}

func (r *engineReporter) OnEvent(event interfaces.Event) {
	r.engine.stats.IncrementEvents()
}

func (r *engineReporter) OnFileClosed(info FileInfo) {
	r.engine.stats.AddBytes(info.SeenBytes, info.MissingBytes)
}
