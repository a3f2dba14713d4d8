/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reassembler_test.go
Description: Tests for the reassembly buffer: ordering, overlap trimming, gaps and
the buffer limit.
*/

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainAll(r *Reassembler, pos uint64) ([]segment, uint64) {
	var out []segment
	for {
		seg, ok := r.Next(pos)
		if !ok {
			return out, pos
		}
		out = append(out, seg)
		pos = seg.end()
	}
}

// TestReassemblerOrdering tests that segments come out in offset order
func TestReassemblerOrdering(t *testing.T) {
	r := NewReassembler(0)
	r.Insert(6, []byte("ghi"), 0)
	r.Insert(3, []byte("def"), 0)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, uint64(6), r.Buffered())

	_, ok := r.Next(0)
	assert.False(t, ok, "nothing continues offset 0 yet")

	r.Insert(0, []byte("abc"), 0)
	segs, pos := drainAll(r, 0)
	require.Len(t, segs, 3)
	assert.Equal(t, uint64(9), pos)
	assert.Equal(t, "abc", string(segs[0].data))
	assert.Equal(t, "def", string(segs[1].data))
	assert.Equal(t, "ghi", string(segs[2].data))
	assert.Equal(t, uint64(0), r.Buffered())
}

// TestReassemblerOverlap tests that earlier arrivals win
func TestReassemblerOverlap(t *testing.T) {
	r := NewReassembler(0)
	r.Insert(2, []byte("CDEF"), 0)
	r.Insert(0, []byte("abcdefgh"), 0)

	segs, pos := drainAll(r, 0)
	assert.Equal(t, uint64(8), pos)
	var got string
	for _, s := range segs {
		got += string(s.data)
	}
	assert.Equal(t, "abCDEFgh", got)
}

// TestReassemblerCopiesData tests that callers may reuse their buffers
func TestReassemblerCopiesData(t *testing.T) {
	r := NewReassembler(0)
	buf := []byte("xyz")
	r.Insert(5, buf, 0)
	copy(buf, "!!!")

	seg, ok := r.First()
	require.True(t, ok)
	assert.Equal(t, "xyz", string(seg.data))
}

// TestReassemblerStalePosition tests that data behind the stream is dropped
func TestReassemblerStalePosition(t *testing.T) {
	r := NewReassembler(0)
	r.Insert(0, []byte("abc"), 5)
	assert.Equal(t, 0, r.Len())

	r.Insert(3, []byte("defgh"), 5)
	seg, ok := r.Next(5)
	require.True(t, ok)
	assert.Equal(t, uint64(5), seg.offset)
	assert.Equal(t, "gh", string(seg.data))
}

// TestReassemblerGaps tests gap segments
func TestReassemblerGaps(t *testing.T) {
	r := NewReassembler(0)
	r.InsertGap(4, 4, 0)
	r.Insert(6, []byte("zz"), 0)
	r.Insert(8, []byte("ij"), 0)

	assert.Equal(t, uint64(2), r.Buffered(), "gaps and covered data do not count")

	segs, pos := drainAll(r, 4)
	require.Len(t, segs, 2)
	assert.True(t, segs[0].isGap())
	assert.Equal(t, uint64(4), segs[0].gap)
	assert.Equal(t, "ij", string(segs[1].data))
	assert.Equal(t, uint64(10), pos)
}

// TestReassemblerLimit tests overflow detection
func TestReassemblerLimit(t *testing.T) {
	r := NewReassembler(4)
	r.Insert(10, []byte("abc"), 0)
	assert.False(t, r.Overflowing())
	r.Insert(20, []byte("de"), 0)
	assert.True(t, r.Overflowing())

	unlimited := NewReassembler(0)
	unlimited.Insert(10, make([]byte, 1<<20), 0)
	assert.False(t, unlimited.Overflowing())
}
