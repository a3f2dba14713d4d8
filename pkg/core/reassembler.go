/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reassembler.go
Description: Offset-keyed segment buffer for fanalyzer files. Holds data and gap
segments that arrived ahead of the stream position until the stream catches up,
trimming overlaps so every byte offset is delivered at most once.
*/

package core

import (
	"sort"
)

// segment is a buffered span of file data, or a known gap when data is nil
type segment struct {
	offset uint64
	data   []byte
	gap    uint64
}

func (s segment) length() uint64 {
	if s.data != nil {
		return uint64(len(s.data))
	}
	return s.gap
}

func (s segment) end() uint64 {
	return s.offset + s.length()
}

func (s segment) isGap() bool {
	return s.data == nil
}

// trimFront drops everything before pos
func (s segment) trimFront(pos uint64) segment {
	if pos <= s.offset {
		return s
	}
	cut := pos - s.offset
	if s.isGap() {
		s.gap -= cut
	} else {
		s.data = s.data[cut:]
	}
	s.offset = pos
	return s
}

// slice returns the part of s in [from, to)
func (s segment) slice(from, to uint64) segment {
	out := segment{offset: from}
	if s.isGap() {
		out.gap = to - from
		return out
	}
	out.data = s.data[from-s.offset : to-s.offset]
	return out
}

// Reassembler buffers out-of-order segments. Earlier arrivals win on overlap.
// It is not safe for concurrent use; the owning File serializes access.
type Reassembler struct {
	segments []segment // sorted by offset, non-overlapping
	buffered uint64    // data bytes held, gaps excluded
	limit    uint64    // 0 means unlimited
}

// NewReassembler creates a reassembler holding at most limit data bytes
func NewReassembler(limit uint64) *Reassembler {
	return &Reassembler{limit: limit}
}

// Insert buffers data at offset. Bytes before pos (the stream position) and
// bytes already buffered are dropped. The data is copied.
func (r *Reassembler) Insert(offset uint64, data []byte, pos uint64) {
	if len(data) == 0 {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	r.insert(segment{offset: offset, data: buf}, pos)
}

// InsertGap records that [offset, offset+length) will never arrive
func (r *Reassembler) InsertGap(offset, length, pos uint64) {
	if length == 0 {
		return
	}
	r.insert(segment{offset: offset, gap: length}, pos)
}

func (r *Reassembler) insert(seg segment, pos uint64) {
	if seg.end() <= pos {
		return
	}
	seg = seg.trimFront(pos)

	// Collect the parts of seg not covered by existing segments
	var pieces []segment
	cursor := seg.offset
	for _, existing := range r.segments {
		if existing.end() <= cursor {
			continue
		}
		if existing.offset >= seg.end() {
			break
		}
		if existing.offset > cursor {
			pieces = append(pieces, seg.slice(cursor, existing.offset))
		}
		cursor = existing.end()
		if cursor >= seg.end() {
			break
		}
	}
	if cursor < seg.end() {
		pieces = append(pieces, seg.slice(cursor, seg.end()))
	}

	for _, p := range pieces {
		r.segments = append(r.segments, p)
		if !p.isGap() {
			r.buffered += uint64(len(p.data))
		}
	}
	sort.Slice(r.segments, func(i, j int) bool { return r.segments[i].offset < r.segments[j].offset })
}

// Next removes and returns the segment that continues the stream at pos.
// Segments lying entirely before pos are discarded on the way.
func (r *Reassembler) Next(pos uint64) (segment, bool) {
	for len(r.segments) > 0 {
		first := r.segments[0]
		if first.offset > pos {
			return segment{}, false
		}
		r.segments = r.segments[1:]
		if !first.isGap() {
			r.buffered -= uint64(len(first.data))
		}
		if first.end() <= pos {
			continue
		}
		return first.trimFront(pos), true
	}
	return segment{}, false
}

// First returns the earliest buffered segment without removing it
func (r *Reassembler) First() (segment, bool) {
	if len(r.segments) == 0 {
		return segment{}, false
	}
	return r.segments[0], true
}

// Buffered returns the number of data bytes held
func (r *Reassembler) Buffered() uint64 {
	return r.buffered
}

// Overflowing reports whether more data is held than the limit allows
func (r *Reassembler) Overflowing() bool {
	return r.limit > 0 && r.buffered > r.limit
}

// Len returns the number of buffered segments
func (r *Reassembler) Len() int {
	return len(r.segments)
}
