/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: interfaces.go
Description: Shared interfaces for fanalyzer. Defines the contract every file content
analyzer satisfies and the narrow view of the owning file an analyzer may use. Kept in
its own package so the registry, the host and the analyzers never import each other.
*/

package interfaces

import (
	"time"
)

// Event is a result reported by an analyzer through its file.
// This is the only way an analyzer says what it found; the boolean returned by
// the delivery methods only says whether it wants more input.
type Event struct {
	FileID string                 `json:"file_id" yaml:"file_id"`
	Tag    Tag                    `json:"tag" yaml:"tag"`
	Name   string                 `json:"name" yaml:"name"`
	Fields map[string]interface{} `json:"fields,omitempty" yaml:"fields,omitempty"`
	Time   time.Time              `json:"time" yaml:"time"`
}

// File is the view of the owning file an analyzer is given.
// It is a lookup relation only: analyzers never close or retain it past their own lifetime.
type File interface {
	// ID returns the unique identifier of the file
	ID() string

	// Source describes where the file came from (connection, path, ...)
	Source() string

	// Name returns the file name if known
	Name() string

	// TotalBytes returns the expected file size, or 0 when unknown
	TotalBytes() uint64

	// Emit publishes an analyzer result
	Emit(event Event)
}

// Analyzer is the contract every file content analyzer implements.
// Each delivery method returns true while the analyzer wants more input and
// false once it is done or invalid; the owning file stops calling it and
// destroys it after the first false. Calls into one instance are never concurrent.
// Data slices are only valid for the duration of the call.
type Analyzer interface {
	// DeliverChunk receives a span of file data at an absolute offset.
	// Spans may arrive out of order and may overlap.
	DeliverChunk(data []byte, offset uint64) bool

	// DeliverStream receives the next contiguous span of file data
	DeliverStream(data []byte) bool

	// EndOfFile signals that no further data will arrive. Delivered at most once.
	EndOfFile() bool

	// Undelivered signals that [offset, offset+length) will never be delivered
	Undelivered(offset, length uint64) bool

	// Tag returns the analyzer variant
	Tag() Tag

	// Args returns the shared configuration record
	Args() *Args

	// GetFile returns the file the analyzer is attached to
	GetFile() File

	releaseArgs()
}

// Teardowner is implemented by analyzers holding resources beyond their args
type Teardowner interface {
	Teardown() error
}
