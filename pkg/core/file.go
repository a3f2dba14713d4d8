/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: file.go
Description: File host for fanalyzer. A File owns the analyzers attached to one content
stream and drives them: chunks go to every analyzer as they arrive, the contiguous
stream is rebuilt through the reassembler, gaps become Undelivered calls in stream
order, and analyzers that return false are detached and destroyed on the spot.
*/

package core

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/kleascm/fanalyzer/pkg/registry"
	"github.com/sirupsen/logrus"
)

// FileConfig describes a new file
type FileConfig struct {
	ID          string // Generated when empty
	Name        string
	Source      string
	TotalBytes  uint64 // 0 when unknown
	BufferLimit uint64 // Reassembly buffer limit, 0 = unlimited
}

type attachment struct {
	analyzer interfaces.Analyzer
	key      string
}

// File is the ownership context of the analyzers attached to one file.
// All methods are safe for concurrent use; analyzer calls are serialized.
type File struct {
	id         string
	name       string
	source     string
	totalBytes atomic.Uint64

	registry  *registry.Registry
	reporters []Reporter
	logger    *logrus.Logger

	mu          sync.Mutex
	analyzers   []attachment
	reassembler *Reassembler

	streamOffset  uint64
	seenBytes     uint64
	missingBytes  uint64
	overflowBytes uint64

	started  time.Time
	finished time.Time
	attached []interfaces.Tag
	eof      bool
	done     bool
}

// NewFile creates a file bound to a registry. Reporters are told about
// everything that happens to it.
func NewFile(reg *registry.Registry, cfg FileConfig, reporters ...Reporter) *File {
	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	f := &File{
		id:          id,
		name:        cfg.Name,
		source:      cfg.Source,
		registry:    reg,
		reporters:   reporters,
		logger:      logrus.StandardLogger(),
		reassembler: NewReassembler(cfg.BufferLimit),
		started:     time.Now(),
	}
	f.totalBytes.Store(cfg.TotalBytes)

	info := f.info()
	for _, r := range f.reporters {
		r.OnFileOpened(info)
	}
	return f
}

// SetLogger replaces the logger used for delivery diagnostics
func (f *File) SetLogger(logger *logrus.Logger) {
	f.mu.Lock()
	f.logger = logger
	f.mu.Unlock()
}

// ID returns the file identifier
func (f *File) ID() string { return f.id }

// Name returns the file name
func (f *File) Name() string { return f.name }

// Source returns where the file came from
func (f *File) Source() string { return f.source }

// TotalBytes returns the expected size, 0 if unknown
func (f *File) TotalBytes() uint64 { return f.totalBytes.Load() }

// SetTotalBytes records the expected size once it becomes known
func (f *File) SetTotalBytes(n uint64) { f.totalBytes.Store(n) }

// Emit forwards an analyzer event to the reporters
func (f *File) Emit(event interfaces.Event) {
	if event.FileID == "" {
		event.FileID = f.id
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	for _, r := range f.reporters {
		r.OnEvent(event)
	}
}

// AddAnalyzer attaches the analyzer selected by args. Attaching args equal
// to those of an attached analyzer is a no-op that succeeds. Malformed args,
// unregistered tags and failing constructors are reported and leave the file
// without that analyzer.
func (f *File) AddAnalyzer(args *interfaces.Args) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	tag, err := interfaces.ArgsTag(args)
	if err != nil {
		f.attachFailed(tag, err)
		return false
	}
	if f.done {
		f.attachFailed(tag, fmt.Errorf("file %s is finished", f.id))
		return false
	}

	key := args.Key()
	for _, at := range f.analyzers {
		if at.key == key {
			return true
		}
	}

	analyzer, err := f.registry.Instantiate(args, f)
	if err != nil {
		f.attachFailed(tag, err)
		return false
	}

	f.analyzers = append(f.analyzers, attachment{analyzer: analyzer, key: key})
	f.attached = append(f.attached, tag)
	for _, r := range f.reporters {
		r.OnAnalyzerAttached(f.id, tag)
	}
	return true
}

// RemoveAnalyzer detaches and destroys every analyzer with the given tag
func (f *File) RemoveAnalyzer(tag interfaces.Tag) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := false
	kept := f.analyzers[:0]
	var gone []attachment
	for _, at := range f.analyzers {
		if at.analyzer.Tag() == tag {
			gone = append(gone, at)
			removed = true
			continue
		}
		kept = append(kept, at)
	}
	f.analyzers = kept
	for _, at := range gone {
		f.detach(at, DetachRemoved)
	}
	return removed
}

// Analyzers returns the tags of the analyzers currently attached
func (f *File) Analyzers() []interfaces.Tag {
	f.mu.Lock()
	defer f.mu.Unlock()

	tags := make([]interfaces.Tag, 0, len(f.analyzers))
	for _, at := range f.analyzers {
		tags = append(tags, at.analyzer.Tag())
	}
	return tags
}

// DataIn delivers a span of file data found at offset
func (f *File) DataIn(data []byte, offset uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done || len(data) == 0 {
		return
	}

	f.each(DetachChunk, func(a interfaces.Analyzer) bool {
		return a.DeliverChunk(data, offset)
	})
	f.ingest(data, offset)
}

// DataInStream delivers the next span of sequential file data
func (f *File) DataInStream(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done || len(data) == 0 {
		return
	}

	offset := f.streamOffset
	f.each(DetachChunk, func(a interfaces.Analyzer) bool {
		return a.DeliverChunk(data, offset)
	})
	f.ingest(data, offset)
}

// Gap reports that [offset, offset+length) of the file will never arrive
func (f *File) Gap(offset, length uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done || length == 0 {
		return
	}

	length = clampLength(offset, length)
	end := offset + length
	if end <= f.streamOffset {
		return
	}
	if offset < f.streamOffset {
		offset = f.streamOffset
		length = end - offset
	}
	if offset > f.streamOffset {
		f.reassembler.InsertGap(offset, length, f.streamOffset)
		return
	}
	f.undelivered(offset, length)
	f.drain()
}

// EndOfFile flushes buffered data, delivers EndOfFile to every remaining
// analyzer exactly once and destroys them all.
func (f *File) EndOfFile() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done {
		return
	}

	// Whatever the reassembler still holds is behind a hole that will not fill
	for {
		first, ok := f.reassembler.First()
		if !ok {
			break
		}
		if first.offset > f.streamOffset {
			f.undelivered(f.streamOffset, first.offset-f.streamOffset)
		}
		f.drain()
	}
	if total := f.totalBytes.Load(); total > f.streamOffset {
		f.undelivered(f.streamOffset, total-f.streamOffset)
	}

	remaining := f.analyzers
	f.analyzers = nil
	for _, at := range remaining {
		f.call(at.analyzer, "EndOfFile", func(a interfaces.Analyzer) bool { return a.EndOfFile() })
		f.detach(at, DetachEOF)
	}

	f.eof = true
	f.finish()
}

// Close discards the file. Analyzers still attached are destroyed without EndOfFile.
func (f *File) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done {
		return
	}

	remaining := f.analyzers
	f.analyzers = nil
	for _, at := range remaining {
		f.detach(at, DetachClosed)
	}
	f.finish()
}

// Done reports whether the file was finished or discarded
func (f *File) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Info returns the current summary of the file
func (f *File) Info() FileInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info()
}

func (f *File) info() FileInfo {
	return FileInfo{
		ID:            f.id,
		Name:          f.name,
		Source:        f.source,
		TotalBytes:    f.totalBytes.Load(),
		SeenBytes:     f.seenBytes,
		MissingBytes:  f.missingBytes,
		OverflowBytes: f.overflowBytes,
		Analyzers:     append([]interfaces.Tag(nil), f.attached...),
		EndOfFile:     f.eof,
		Started:       f.started,
		Finished:      f.finished,
	}
}

func (f *File) finish() {
	f.done = true
	f.finished = time.Now()
	info := f.info()
	for _, r := range f.reporters {
		r.OnFileClosed(info)
	}
}

// ingest moves data at offset into the stream, directly when it continues
// the stream and through the reassembler otherwise
func (f *File) ingest(data []byte, offset uint64) {
	data = data[:clampLength(offset, uint64(len(data)))]
	end := offset + uint64(len(data))
	if end <= f.streamOffset {
		return
	}
	if offset < f.streamOffset {
		data = data[f.streamOffset-offset:]
		offset = f.streamOffset
	}

	if offset == f.streamOffset {
		f.stream(data)
		f.drain()
		return
	}

	f.reassembler.Insert(offset, data, f.streamOffset)
	for f.reassembler.Overflowing() {
		first, ok := f.reassembler.First()
		if !ok {
			break
		}
		hole := first.offset - f.streamOffset
		f.overflowBytes += hole
		f.logger.WithFields(logrus.Fields{
			"file":   f.id,
			"offset": f.streamOffset,
			"length": hole,
		}).Debug("Reassembly buffer full, skipping hole")
		f.undelivered(f.streamOffset, hole)
		f.drain()
	}
}

// drain streams every buffered segment that continues the stream
func (f *File) drain() {
	for {
		seg, ok := f.reassembler.Next(f.streamOffset)
		if !ok {
			return
		}
		if seg.isGap() {
			f.undelivered(seg.offset, seg.gap)
			continue
		}
		f.stream(seg.data)
	}
}

func (f *File) stream(data []byte) {
	f.each(DetachStream, func(a interfaces.Analyzer) bool {
		return a.DeliverStream(data)
	})
	f.streamOffset += uint64(len(data))
	f.seenBytes += uint64(len(data))
}

func (f *File) undelivered(offset, length uint64) {
	if length == 0 {
		return
	}
	f.each(DetachGap, func(a interfaces.Analyzer) bool {
		return a.Undelivered(offset, length)
	})
	for _, r := range f.reporters {
		r.OnUndelivered(f.id, offset, length)
	}
	f.missingBytes += length
	if end := offset + length; end > f.streamOffset {
		f.streamOffset = end
	}
}

// clampLength shortens length so that offset+length does not pass the end
// of the offset space
func clampLength(offset, length uint64) uint64 {
	if room := math.MaxUint64 - offset; length > room {
		return room
	}
	return length
}

// each runs one delivery over every attached analyzer and detaches those
// that answered false
func (f *File) each(reason DetachReason, deliver func(a interfaces.Analyzer) bool) {
	if len(f.analyzers) == 0 {
		return
	}

	kept := f.analyzers[:0]
	var finished []attachment
	var panicked []attachment
	for _, at := range f.analyzers {
		ok, recovered := f.guard(at.analyzer, string(reason), deliver)
		switch {
		case recovered:
			panicked = append(panicked, at)
		case ok:
			kept = append(kept, at)
		default:
			finished = append(finished, at)
		}
	}
	f.analyzers = kept

	for _, at := range finished {
		f.detach(at, reason)
	}
	for _, at := range panicked {
		f.detach(at, DetachPanic)
	}
}

// call runs a delivery whose result does not matter
func (f *File) call(a interfaces.Analyzer, op string, deliver func(a interfaces.Analyzer) bool) {
	f.guard(a, op, deliver)
}

// guard runs a delivery, turning a panic into a detach
func (f *File) guard(a interfaces.Analyzer, op string, deliver func(a interfaces.Analyzer) bool) (ok bool, recovered bool) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.WithFields(logrus.Fields{
				"file":     f.id,
				"analyzer": a.Tag().String(),
				"op":       op,
			}).Errorf("Analyzer panicked: %v", r)
			ok, recovered = false, true
		}
	}()
	return deliver(a), false
}

func (f *File) detach(at attachment, reason DetachReason) {
	tag := at.analyzer.Tag()
	if err := interfaces.Destroy(at.analyzer); err != nil {
		f.logger.WithFields(logrus.Fields{
			"file":     f.id,
			"analyzer": tag.String(),
		}).Warnf("Analyzer teardown failed: %v", err)
	}
	for _, r := range f.reporters {
		r.OnAnalyzerDetached(f.id, tag, reason)
	}
}

func (f *File) attachFailed(tag interfaces.Tag, err error) {
	for _, r := range f.reporters {
		r.OnAttachFailed(f.id, tag, err)
	}
}

// IsUnregistered reports whether an attach error came from an unknown tag
func IsUnregistered(err error) bool {
	return errors.Is(err, registry.ErrUnregisteredTag)
}
