/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: file_test.go
Description: Tests for the File host. A recording analyzer checks the delivery
sequence each analyzer sees: stream order, gaps, a single end of file and no calls
after it asked to stop.
*/

package core_test

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/kleascm/fanalyzer/pkg/core"
	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/kleascm/fanalyzer/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder logs every call it receives
type recorder struct {
	*interfaces.Base

	calls     []string
	chunks    []string
	stream    []byte
	gaps      [][2]uint64
	eofs      int
	teardowns int
	stopped   bool
	late      int // calls received after returning false

	stopAfter int  // stop once this many stream bytes arrived
	stopOnGap bool // stop on the first gap
	explode   bool // panic on stream delivery
}

func (r *recorder) result(keep bool) bool {
	if !keep {
		r.stopped = true
	}
	return keep
}

func (r *recorder) enter(call string) {
	if r.stopped {
		r.late++
	}
	r.calls = append(r.calls, call)
}

func (r *recorder) DeliverChunk(data []byte, offset uint64) bool {
	r.enter("chunk")
	r.chunks = append(r.chunks, fmt.Sprintf("%d:%s", offset, data))
	return r.result(true)
}

func (r *recorder) DeliverStream(data []byte) bool {
	r.enter("stream")
	if r.explode {
		panic("stream exploded")
	}
	r.stream = append(r.stream, data...)
	return r.result(r.stopAfter == 0 || len(r.stream) < r.stopAfter)
}

func (r *recorder) Undelivered(offset, length uint64) bool {
	r.enter("gap")
	r.gaps = append(r.gaps, [2]uint64{offset, length})
	return r.result(!r.stopOnGap)
}

func (r *recorder) EndOfFile() bool {
	r.enter("eof")
	r.eofs++
	return r.result(false)
}

func (r *recorder) Teardown() error {
	r.teardowns++
	return nil
}

// recorders builds a registry whose HASH and EXTRACT tags create recorders
type recorders struct {
	mu  sync.Mutex
	all []*recorder
}

func (rs *recorders) new(args *interfaces.Args, file interfaces.File) (interfaces.Analyzer, error) {
	if args.Bool("fail", false) {
		return nil, fmt.Errorf("refusing to build")
	}
	base, err := interfaces.NewBase(args, file)
	if err != nil {
		return nil, err
	}
	r := &recorder{
		Base:      base,
		stopAfter: int(args.Int("stop_after", 0)),
		stopOnGap: args.Bool("stop_on_gap", false),
		explode:   args.Bool("explode", false),
	}
	rs.mu.Lock()
	rs.all = append(rs.all, r)
	rs.mu.Unlock()
	return r, nil
}

func (rs *recorders) get(i int) *recorder {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.all[i]
}

func newRecorderRegistry(t *testing.T) (*registry.Registry, *recorders) {
	rs := &recorders{}
	reg := registry.New()
	require.NoError(t, reg.Register(registry.Entry{Tag: interfaces.TagHash, New: rs.new}))
	require.NoError(t, reg.Register(registry.Entry{Tag: interfaces.TagExtract, New: rs.new}))
	return reg, rs
}

func newTestFile(t *testing.T, cfg core.FileConfig) (*core.File, *recorders, *core.CollectingReporter) {
	reg, rs := newRecorderRegistry(t)
	collector := core.NewCollectingReporter()
	return core.NewFile(reg, cfg, collector), rs, collector
}

// TestFileSequentialStream tests plain sequential delivery
func TestFileSequentialStream(t *testing.T) {
	file, rs, collector := newTestFile(t, core.FileConfig{Name: "a.txt"})
	args := interfaces.NewArgs(interfaces.TagHash, nil)
	require.True(t, file.AddAnalyzer(args))
	assert.Equal(t, int32(2), args.Refs())

	file.DataInStream([]byte("abc"))
	file.DataInStream([]byte("def"))
	file.EndOfFile()

	r := rs.get(0)
	assert.Equal(t, "abcdef", string(r.stream))
	assert.Equal(t, []string{"0:abc", "3:def"}, r.chunks)
	assert.Equal(t, []string{"chunk", "stream", "chunk", "stream", "eof"}, r.calls)
	assert.Equal(t, 1, r.eofs)
	assert.Equal(t, 1, r.teardowns)
	assert.Equal(t, int32(1), args.Refs())

	info := file.Info()
	assert.True(t, info.EndOfFile)
	assert.Equal(t, uint64(6), info.SeenBytes)
	assert.Zero(t, info.MissingBytes)
	assert.True(t, file.Done())

	rec, ok := collector.Record(file.ID())
	require.True(t, ok)
	assert.Equal(t, core.DetachEOF, rec.Detached[interfaces.TagHash])

	// Nothing reaches a finished file
	file.DataInStream([]byte("ghi"))
	file.EndOfFile()
	assert.Equal(t, 1, r.eofs)
	assert.Zero(t, r.late)
}

// TestFileOutOfOrder tests that chunks arrive as sent and the stream in order
func TestFileOutOfOrder(t *testing.T) {
	file, rs, _ := newTestFile(t, core.FileConfig{})
	require.True(t, file.AddAnalyzer(interfaces.NewArgs(interfaces.TagHash, nil)))

	file.DataIn([]byte("def"), 3)
	r := rs.get(0)
	assert.Empty(t, r.stream)

	file.DataIn([]byte("abc"), 0)
	file.DataIn([]byte("cdefg"), 2) // overlaps both
	file.EndOfFile()

	assert.Equal(t, []string{"3:def", "0:abc", "2:cdefg"}, r.chunks)
	assert.Equal(t, "abcdefg", string(r.stream))
	assert.Empty(t, r.gaps)
	assert.Equal(t, uint64(7), file.Info().SeenBytes)
}

// TestFileGapBeforeData tests a chunk at 10 followed by a gap covering [0, 10)
func TestFileGapBeforeData(t *testing.T) {
	file, rs, _ := newTestFile(t, core.FileConfig{})
	require.True(t, file.AddAnalyzer(interfaces.NewArgs(interfaces.TagHash, nil)))

	file.DataIn([]byte("0123456789"), 10)
	file.Gap(0, 10)
	file.EndOfFile()

	r := rs.get(0)
	assert.Equal(t, []string{"10:0123456789"}, r.chunks)
	assert.Equal(t, [][2]uint64{{0, 10}}, r.gaps)
	assert.Equal(t, []string{"chunk", "gap", "stream", "eof"}, r.calls)

	info := file.Info()
	assert.Equal(t, uint64(10), info.SeenBytes)
	assert.Equal(t, uint64(10), info.MissingBytes)
}

// TestFileAheadOfStreamGap tests that queued gaps are delivered in stream order
func TestFileAheadOfStreamGap(t *testing.T) {
	file, rs, _ := newTestFile(t, core.FileConfig{})
	require.True(t, file.AddAnalyzer(interfaces.NewArgs(interfaces.TagHash, nil)))

	file.Gap(3, 2)
	file.DataIn([]byte("fg"), 5)
	file.DataIn([]byte("abc"), 0)
	file.EndOfFile()

	r := rs.get(0)
	assert.Equal(t, "abcfg", string(r.stream))
	assert.Equal(t, [][2]uint64{{3, 2}}, r.gaps)
	assert.Equal(t, []string{"chunk", "chunk", "stream", "gap", "stream", "eof"}, r.calls)
}

// TestFileGapToEndOfOffsetSpace tests that a gap reaching past the largest
// offset is clamped instead of wrapping around
func TestFileGapToEndOfOffsetSpace(t *testing.T) {
	file, rs, _ := newTestFile(t, core.FileConfig{})
	require.True(t, file.AddAnalyzer(interfaces.NewArgs(interfaces.TagHash, nil)))

	file.DataInStream([]byte("abc"))
	file.Gap(3, math.MaxUint64)
	file.DataIn([]byte("late"), 10)
	file.EndOfFile()

	r := rs.get(0)
	assert.Equal(t, "abc", string(r.stream))
	assert.Equal(t, [][2]uint64{{3, math.MaxUint64 - 3}}, r.gaps)

	info := file.Info()
	assert.Equal(t, uint64(3), info.SeenBytes)
	assert.Equal(t, uint64(math.MaxUint64-3), info.MissingBytes)
}

// TestFileStopIsFinal tests that an analyzer returning false is never called again
func TestFileStopIsFinal(t *testing.T) {
	file, rs, collector := newTestFile(t, core.FileConfig{})
	stopping := interfaces.NewArgs(interfaces.TagHash, map[string]interface{}{"stop_after": 3})
	steady := interfaces.NewArgs(interfaces.TagExtract, nil)
	require.True(t, file.AddAnalyzer(stopping))
	require.True(t, file.AddAnalyzer(steady))

	file.DataInStream([]byte("abc"))
	assert.Equal(t, []interfaces.Tag{interfaces.TagExtract}, file.Analyzers())
	assert.Equal(t, int32(1), stopping.Refs())

	file.DataInStream([]byte("def"))
	file.Gap(6, 4)
	file.EndOfFile()

	first, second := rs.get(0), rs.get(1)
	assert.Equal(t, "abc", string(first.stream))
	assert.Zero(t, first.late)
	assert.Zero(t, first.eofs)
	assert.Equal(t, 1, first.teardowns)

	assert.Equal(t, "abcdef", string(second.stream))
	assert.Equal(t, 1, second.eofs)
	assert.Equal(t, 1, second.teardowns)

	rec, _ := collector.Record(file.ID())
	assert.Equal(t, core.DetachStream, rec.Detached[interfaces.TagHash])
	assert.Equal(t, core.DetachEOF, rec.Detached[interfaces.TagExtract])
}

// TestFileStopOnGap tests detaching from an Undelivered call
func TestFileStopOnGap(t *testing.T) {
	file, rs, collector := newTestFile(t, core.FileConfig{})
	require.True(t, file.AddAnalyzer(interfaces.NewArgs(interfaces.TagHash, map[string]interface{}{"stop_on_gap": true})))

	file.Gap(0, 5)
	file.DataIn([]byte("fghij"), 5)
	file.EndOfFile()

	r := rs.get(0)
	assert.Equal(t, []string{"gap"}, r.calls)
	rec, _ := collector.Record(file.ID())
	assert.Equal(t, core.DetachGap, rec.Detached[interfaces.TagHash])
}

// TestFileEndOfFileFlush tests that holes and missing tail bytes become gaps
func TestFileEndOfFileFlush(t *testing.T) {
	file, rs, _ := newTestFile(t, core.FileConfig{TotalBytes: 20})
	require.True(t, file.AddAnalyzer(interfaces.NewArgs(interfaces.TagHash, nil)))

	file.DataIn([]byte("abc"), 0)
	file.DataIn([]byte("xyz"), 10)
	file.EndOfFile()

	r := rs.get(0)
	assert.Equal(t, "abcxyz", string(r.stream))
	assert.Equal(t, [][2]uint64{{3, 7}, {13, 7}}, r.gaps)
	assert.Equal(t, "eof", r.calls[len(r.calls)-1])

	info := file.Info()
	assert.Equal(t, uint64(6), info.SeenBytes)
	assert.Equal(t, uint64(14), info.MissingBytes)
}

// TestFileBufferOverflow tests that a full reassembly buffer turns the hole into a gap
func TestFileBufferOverflow(t *testing.T) {
	file, rs, _ := newTestFile(t, core.FileConfig{BufferLimit: 4})
	require.True(t, file.AddAnalyzer(interfaces.NewArgs(interfaces.TagHash, nil)))

	file.DataIn([]byte("klm"), 10)
	r := rs.get(0)
	assert.Empty(t, r.gaps)

	file.DataIn([]byte("uv"), 20)
	assert.Equal(t, [][2]uint64{{0, 10}}, r.gaps)
	assert.Equal(t, "klm", string(r.stream))

	file.EndOfFile()
	assert.Equal(t, [][2]uint64{{0, 10}, {13, 7}}, r.gaps)
	assert.Equal(t, "klmuv", string(r.stream))

	info := file.Info()
	assert.Equal(t, uint64(10), info.OverflowBytes)
	assert.Equal(t, uint64(17), info.MissingBytes)
}

// TestFileAttachRules tests duplicates, unknown tags and failing constructors
func TestFileAttachRules(t *testing.T) {
	file, rs, collector := newTestFile(t, core.FileConfig{})

	args := interfaces.NewArgs(interfaces.TagHash, nil)
	same := interfaces.NewArgs(interfaces.TagHash, nil)
	require.True(t, file.AddAnalyzer(args))
	require.True(t, file.AddAnalyzer(same))
	assert.Equal(t, int32(1), same.Refs(), "duplicate config is not instantiated")
	assert.Len(t, rs.all, 1)

	unknown := interfaces.NewArgs(interfaces.Tag(99), nil)
	assert.False(t, file.AddAnalyzer(unknown))
	assert.Equal(t, int32(1), unknown.Refs())

	assert.False(t, file.AddAnalyzer(interfaces.NewArgs(interfaces.TagNone, nil)))
	assert.False(t, file.AddAnalyzer(interfaces.NewArgs(interfaces.TagExtract, map[string]interface{}{"fail": true})))

	failures := collector.Failures()
	require.Len(t, failures, 3)
	assert.True(t, core.IsUnregistered(failures[0].Err))
	assert.Equal(t, interfaces.Tag(99), failures[0].Tag)
	assert.ErrorIs(t, failures[1].Err, interfaces.ErrMissingTag)
	assert.ErrorContains(t, failures[2].Err, "refusing to build")

	// The file carries on with what did attach
	file.DataInStream([]byte("ok"))
	file.EndOfFile()
	assert.Equal(t, "ok", string(rs.get(0).stream))
	assert.Equal(t, []interfaces.Tag{interfaces.TagHash}, file.Info().Analyzers)

	assert.False(t, file.AddAnalyzer(interfaces.NewArgs(interfaces.TagExtract, nil)), "finished files take no analyzers")
}

// TestFileRemoveAnalyzer tests explicit detachment
func TestFileRemoveAnalyzer(t *testing.T) {
	file, rs, collector := newTestFile(t, core.FileConfig{})
	args := interfaces.NewArgs(interfaces.TagHash, nil)
	require.True(t, file.AddAnalyzer(args))

	assert.True(t, file.RemoveAnalyzer(interfaces.TagHash))
	assert.False(t, file.RemoveAnalyzer(interfaces.TagHash))
	assert.Equal(t, int32(1), args.Refs())
	assert.Equal(t, 1, rs.get(0).teardowns)

	file.DataInStream([]byte("abc"))
	file.EndOfFile()
	assert.Empty(t, rs.get(0).calls)

	rec, _ := collector.Record(file.ID())
	assert.Equal(t, core.DetachRemoved, rec.Detached[interfaces.TagHash])
}

// TestFileClose tests discarding a file before end of file
func TestFileClose(t *testing.T) {
	file, rs, collector := newTestFile(t, core.FileConfig{})
	args := interfaces.NewArgs(interfaces.TagHash, nil)
	require.True(t, file.AddAnalyzer(args))

	file.DataInStream([]byte("abc"))
	file.Close()
	file.Close()
	file.EndOfFile()

	r := rs.get(0)
	assert.Zero(t, r.eofs)
	assert.Equal(t, 1, r.teardowns)
	assert.Equal(t, int32(1), args.Refs())
	assert.False(t, file.Info().EndOfFile)

	rec, _ := collector.Record(file.ID())
	assert.Equal(t, core.DetachClosed, rec.Detached[interfaces.TagHash])
}

// TestFileAnalyzerPanic tests that a panicking analyzer is detached and released
func TestFileAnalyzerPanic(t *testing.T) {
	file, rs, collector := newTestFile(t, core.FileConfig{})
	bad := interfaces.NewArgs(interfaces.TagHash, map[string]interface{}{"explode": true})
	good := interfaces.NewArgs(interfaces.TagExtract, nil)
	require.True(t, file.AddAnalyzer(bad))
	require.True(t, file.AddAnalyzer(good))

	assert.NotPanics(t, func() { file.DataInStream([]byte("abc")) })
	file.EndOfFile()

	assert.Equal(t, int32(1), bad.Refs())
	assert.Equal(t, 1, rs.get(0).teardowns)
	assert.Equal(t, "abc", string(rs.get(1).stream))

	rec, _ := collector.Record(file.ID())
	assert.Equal(t, core.DetachPanic, rec.Detached[interfaces.TagHash])
}

// TestFileEmit tests that analyzer events reach the reporters
func TestFileEmit(t *testing.T) {
	file, _, collector := newTestFile(t, core.FileConfig{ID: "fixed"})
	assert.Equal(t, "fixed", file.ID())

	file.Emit(interfaces.Event{Tag: interfaces.TagHash, Name: "file_hash"})
	events := collector.Events("fixed", "file_hash")
	require.Len(t, events, 1)
	assert.Equal(t, "fixed", events[0].FileID)
	assert.False(t, events[0].Time.IsZero())
}
