/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reporter.go
Description: Reporter interface and the in-memory reporter for fanalyzer telemetry and results.
Reporters observe the life of files and analyzers and receive the events analyzers
emit; they are the result channel the analyzer contract itself does not carry.
*/

package core

import (
	"sync"

	"github.com/kleascm/fanalyzer/pkg/interfaces"
)

// Reporter defines the interface for telemetry and reporting hooks.
// Hooks run on the goroutine driving the file and must not call back into it.
type Reporter interface {
	// OnFileOpened is called when a file starts
	OnFileOpened(info FileInfo)
	// OnAnalyzerAttached is called after an analyzer joins a file
	OnAnalyzerAttached(fileID string, tag interfaces.Tag)
	// OnAttachFailed is called when an analyzer could not be attached
	OnAttachFailed(fileID string, tag interfaces.Tag, err error)
	// OnAnalyzerDetached is called after an analyzer left a file and was destroyed
	OnAnalyzerDetached(fileID string, tag interfaces.Tag, reason DetachReason)
	// OnUndelivered is called for every range reported as missing, in stream order
	OnUndelivered(fileID string, offset, length uint64)
	// OnEvent is called for every analyzer event
	OnEvent(event interfaces.Event)
	// OnFileClosed is called once the file is finished or discarded
	OnFileClosed(info FileInfo)
}

// CollectingReporter keeps everything it is told, per file
type CollectingReporter struct {
	mu       sync.Mutex
	files    map[string]*FileRecord
	order    []string
	failures []AttachFailure
}

// FileRecord is what a CollectingReporter knows about one file
type FileRecord struct {
	Info     FileInfo                        `json:"info" yaml:"info"`
	Events   []interfaces.Event              `json:"events" yaml:"events"`
	Detached map[interfaces.Tag]DetachReason `json:"detached" yaml:"detached"`
	Gaps     []Gap                           `json:"gaps,omitempty" yaml:"gaps,omitempty"`
}

// Gap is a range of a file that was never delivered
type Gap struct {
	Offset uint64 `json:"offset" yaml:"offset"`
	Length uint64 `json:"length" yaml:"length"`
}

// AttachFailure records a rejected attachment
type AttachFailure struct {
	FileID string
	Tag    interfaces.Tag
	Err    error
}

// NewCollectingReporter creates an empty CollectingReporter
func NewCollectingReporter() *CollectingReporter {
	return &CollectingReporter{files: make(map[string]*FileRecord)}
}

func (r *CollectingReporter) record(fileID string) *FileRecord {
	rec, ok := r.files[fileID]
	if !ok {
		rec = &FileRecord{Info: FileInfo{ID: fileID}, Detached: make(map[interfaces.Tag]DetachReason)}
		r.files[fileID] = rec
		r.order = append(r.order, fileID)
	}
	return rec
}

// OnFileOpened records the file
func (r *CollectingReporter) OnFileOpened(info FileInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(info.ID).Info = info
}

// OnAnalyzerAttached is ignored; the final FileInfo lists attached analyzers
func (r *CollectingReporter) OnAnalyzerAttached(fileID string, tag interfaces.Tag) {}

// OnAttachFailed records the failure
func (r *CollectingReporter) OnAttachFailed(fileID string, tag interfaces.Tag, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, AttachFailure{FileID: fileID, Tag: tag, Err: err})
}

// OnAnalyzerDetached records why the analyzer left
func (r *CollectingReporter) OnAnalyzerDetached(fileID string, tag interfaces.Tag, reason DetachReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(fileID).Detached[tag] = reason
}

// OnUndelivered records the missing range
func (r *CollectingReporter) OnUndelivered(fileID string, offset, length uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.record(fileID)
	rec.Gaps = append(rec.Gaps, Gap{Offset: offset, Length: length})
}

// OnEvent records the event
func (r *CollectingReporter) OnEvent(event interfaces.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.record(event.FileID)
	rec.Events = append(rec.Events, event)
}

// OnFileClosed records the final summary
func (r *CollectingReporter) OnFileClosed(info FileInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(info.ID).Info = info
}

// Records returns a copy of every file record in the order files were first seen
func (r *CollectingReporter) Records() []FileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]FileRecord, 0, len(r.order))
	for _, id := range r.order {
		rec := r.files[id]
		cp := FileRecord{
			Info:     rec.Info,
			Events:   append([]interfaces.Event(nil), rec.Events...),
			Detached: make(map[interfaces.Tag]DetachReason, len(rec.Detached)),
			Gaps:     append([]Gap(nil), rec.Gaps...),
		}
		for k, v := range rec.Detached {
			cp.Detached[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// Record returns the record of one file
func (r *CollectingReporter) Record(fileID string) (FileRecord, bool) {
	for _, rec := range r.Records() {
		if rec.Info.ID == fileID {
			return rec, true
		}
	}
	return FileRecord{}, false
}

// Events returns all events of one file with the given name
func (r *CollectingReporter) Events(fileID, name string) []interfaces.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.files[fileID]
	if !ok {
		return nil
	}
	var out []interfaces.Event
	for _, ev := range rec.Events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// Failures returns the rejected attachments
func (r *CollectingReporter) Failures() []AttachFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AttachFailure(nil), r.failures...)
}
