/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: worker.go
Description: Worker implementation for parallel file processing in fanalyzer.
A worker reads one source at a time, cuts it into chunks and feeds them to the
source's File, optionally reordering chunks and turning some into gaps to reproduce
what a lossy capture hands to the analyzers.
*/

package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// chunk is one read of a source
type chunk struct {
	offset uint64
	data   []byte
}

// Worker represents a single worker in the engine's pool
// Handles reading sources and delivering them to their files
type Worker struct {
	ID     int            // Unique worker identifier
	engine *Engine        // Owning engine
	logger *logrus.Logger // Worker-specific logger

	// Performance tracking
	files     int64     // Number of files processed
	bytes     uint64    // Number of bytes read
	startTime time.Time // When worker started

	mu sync.RWMutex // Thread safety
}

// NewWorker creates a new worker instance
func NewWorker(id int, engine *Engine, logger *logrus.Logger) *Worker {
	return &Worker{
		ID:        id,
		engine:    engine,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Process reads a source to the end and runs it through a new File.
// On cancellation the file is discarded without EndOfFile.
func (w *Worker) Process(ctx context.Context, src Source) (FileInfo, error) {
	file := w.engine.NewFile(FileConfig{
		Name:   src.Name,
		Source: src.Origin,
	})
	if src.Size > 0 {
		file.SetTotalBytes(src.Size)
	}

	fields := logrus.Fields{"worker": w.ID, "file": file.ID(), "name": src.Name}
	w.logger.WithFields(fields).Debug("Processing source")

	cfg := w.engine.config
	var err error
	if cfg.Shuffle || cfg.DropEvery > 0 {
		err = w.deliverSimulated(ctx, file, src)
	} else {
		err = w.deliverSequential(ctx, file, src)
	}
	if err != nil {
		file.Close()
		w.engine.forget(file.ID())
		w.logger.WithFields(fields).Errorf("Processing failed: %v", err)
		return file.Info(), err
	}

	file.EndOfFile()
	w.engine.forget(file.ID())
	info := file.Info()

	w.mu.Lock()
	w.files++
	w.bytes += info.SeenBytes
	w.mu.Unlock()

	w.logger.WithFields(fields).WithField("seen", info.SeenBytes).Debug("Source processed")
	return info, nil
}

// deliverSequential streams the source in read order
func (w *Worker) deliverSequential(ctx context.Context, file *File, src Source) error {
	buf := make([]byte, w.engine.chunkSize())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Reader.Read(buf)
		if n > 0 {
			file.DataInStream(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", src.Name, err)
		}
		if file.Done() {
			return nil
		}
	}
}

// deliverSimulated reads the whole source first, then delivers its chunks
// shuffled and/or with every Nth chunk reported as a gap
func (w *Worker) deliverSimulated(ctx context.Context, file *File, src Source) error {
	chunks, err := readChunks(src.Reader, w.engine.chunkSize())
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src.Name, err)
	}

	cfg := w.engine.config
	if cfg.Shuffle {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(chunks), func(i, j int) { chunks[i], chunks[j] = chunks[j], chunks[i] })
	}

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cfg.DropEvery > 0 && (i+1)%cfg.DropEvery == 0 {
			file.Gap(c.offset, uint64(len(c.data)))
			continue
		}
		file.DataIn(c.data, c.offset)
	}
	return nil
}

func readChunks(r io.Reader, size int) ([]chunk, error) {
	var chunks []chunk
	var offset uint64
	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunks = append(chunks, chunk{offset: offset, data: buf[:n]})
			offset += uint64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return chunks, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// GetStats returns worker performance statistics
func (w *Worker) GetStats() map[string]interface{} {
	w.mu.RLock()
	defer w.mu.RUnlock()

	stats := make(map[string]interface{})
	stats["id"] = w.ID
	stats["files"] = w.files
	stats["bytes"] = w.bytes
	stats["start_time"] = w.startTime
	stats["uptime"] = time.Since(w.startTime)

	uptime := time.Since(w.startTime).Seconds()
	if uptime > 0 {
		stats["bytes_per_second"] = float64(w.bytes) / uptime
	}

	return stats
}
