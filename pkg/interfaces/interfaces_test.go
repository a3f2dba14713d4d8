/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: interfaces_test.go
Description: Tests for the analyzer contract: tag parsing, args reference counting,
tag extraction and the Base analyzer defaults and destruction.
*/

package interfaces_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFile struct {
	events []interfaces.Event
}

func (f *stubFile) ID() string                  { return "file-1" }
func (f *stubFile) Source() string              { return "test" }
func (f *stubFile) Name() string                { return "sample.bin" }
func (f *stubFile) TotalBytes() uint64          { return 0 }
func (f *stubFile) Emit(event interfaces.Event) { f.events = append(f.events, event) }

type plainAnalyzer struct {
	*interfaces.Base
}

type teardownAnalyzer struct {
	*interfaces.Base
	calls   int
	err     error
	explode bool
}

func (a *teardownAnalyzer) Teardown() error {
	a.calls++
	if a.explode {
		panic("boom")
	}
	return a.err
}

// TestParseTag tests tag names, numbers and rejects
func TestParseTag(t *testing.T) {
	tag, err := interfaces.ParseTag("hash")
	require.NoError(t, err)
	assert.Equal(t, interfaces.TagHash, tag)

	tag, err = interfaces.ParseTag("data-event")
	require.NoError(t, err)
	assert.Equal(t, interfaces.TagDataEvent, tag)

	tag, err = interfaces.ParseTag("99")
	require.NoError(t, err)
	assert.Equal(t, interfaces.Tag(99), tag)
	assert.Equal(t, "TAG(99)", tag.String())

	for _, bad := range []string{"", "0", "-3", "nope", "none"} {
		_, err := interfaces.ParseTag(bad)
		assert.Error(t, err, bad)
	}
}

// TestTagJSON tests that tags render by name
func TestTagJSON(t *testing.T) {
	out, err := json.Marshal(map[string]interfaces.Tag{"tag": interfaces.TagExtract})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tag":"EXTRACT"}`, string(out))

	var back struct{ Tag interfaces.Tag }
	require.NoError(t, json.Unmarshal([]byte(`{"Tag":"mime"}`), &back))
	assert.Equal(t, interfaces.TagMIME, back.Tag)
}

// TestArgsTag tests tag extraction from args records
func TestArgsTag(t *testing.T) {
	tag, err := interfaces.ArgsTag(interfaces.NewArgs(interfaces.TagHash, nil))
	require.NoError(t, err)
	assert.Equal(t, interfaces.TagHash, tag)

	_, err = interfaces.ArgsTag(nil)
	assert.ErrorIs(t, err, interfaces.ErrMissingTag)

	_, err = interfaces.ArgsTag(interfaces.NewArgs(interfaces.TagNone, nil))
	assert.ErrorIs(t, err, interfaces.ErrMissingTag)

	_, err = interfaces.ArgsTag(interfaces.NewArgsFromMap(map[string]interface{}{"algorithm": "md5"}))
	assert.ErrorIs(t, err, interfaces.ErrMissingTag)

	_, err = interfaces.ArgsTag(interfaces.NewArgsFromMap(map[string]interface{}{"tag": 1.5}))
	assert.ErrorIs(t, err, interfaces.ErrMissingTag)

	tag, err = interfaces.ArgsTag(interfaces.NewArgsFromMap(map[string]interface{}{"tag": "EXTRACT", "dir": "/tmp"}))
	require.NoError(t, err)
	assert.Equal(t, interfaces.TagExtract, tag)

	tag, err = interfaces.ArgsTag(interfaces.NewArgsFromMap(map[string]interface{}{"tag": float64(99)}))
	require.NoError(t, err)
	assert.Equal(t, interfaces.Tag(99), tag)
}

// TestArgsFields tests the tunable getters
func TestArgsFields(t *testing.T) {
	args := interfaces.NewArgsFromMap(map[string]interface{}{
		"tag":      "extract",
		"dir":      "/tmp/out",
		"compress": "true",
		"limit":    "10 KiB",
		"count":    float64(3),
		"names":    []interface{}{"a", "b"},
		"patterns": map[string]interface{}{"pdf": "%PDF"},
	})

	_, hasTag := args.Lookup("tag")
	assert.False(t, hasTag)
	assert.NotContains(t, args.Fields(), "tag")

	assert.Equal(t, "/tmp/out", args.String("dir", ""))
	assert.Equal(t, "x", args.String("missing", "x"))
	assert.True(t, args.Bool("compress", false))
	assert.Equal(t, int64(3), args.Int("count", 0))

	limit, err := args.Bytes("limit", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10*1024), limit)

	def, err := args.Bytes("absent", 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), def)

	assert.Equal(t, []string{"a", "b"}, args.StringSlice("names"))
	assert.Equal(t, map[string]string{"pdf": "%PDF"}, args.StringMap("patterns"))

	bad := interfaces.NewArgs(interfaces.TagExtract, map[string]interface{}{"limit": -1})
	_, err = bad.Bytes("limit", 0)
	assert.Error(t, err)
}

// TestArgsKey tests that equal records share a key
func TestArgsKey(t *testing.T) {
	a := interfaces.NewArgs(interfaces.TagHash, map[string]interface{}{"algorithm": "md5"})
	b := interfaces.NewArgsFromMap(map[string]interface{}{"tag": "HASH", "algorithm": "md5"})
	c := interfaces.NewArgs(interfaces.TagHash, map[string]interface{}{"algorithm": "sha1"})
	d := interfaces.NewArgs(interfaces.TagExtract, map[string]interface{}{"algorithm": "md5"})

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.NotEqual(t, a.Key(), d.Key())
}

// TestArgsRefcount tests reference counting
func TestArgsRefcount(t *testing.T) {
	args := interfaces.NewArgs(interfaces.TagHash, nil)
	assert.Equal(t, int32(1), args.Refs())

	assert.Same(t, args, args.Ref())
	assert.Equal(t, int32(2), args.Refs())
	assert.Equal(t, int32(1), args.Unref())
	assert.Equal(t, int32(0), args.Unref())
	assert.Panics(t, func() { args.Unref() })
}

// TestBaseDefaults tests the default analyzer behavior
func TestBaseDefaults(t *testing.T) {
	file := &stubFile{}
	args := interfaces.NewArgs(interfaces.TagHash, nil)

	base, err := interfaces.NewBase(args, file)
	require.NoError(t, err)
	a := &plainAnalyzer{Base: base}

	assert.Equal(t, int32(2), args.Refs())
	assert.Equal(t, interfaces.TagHash, a.Tag())
	assert.Same(t, args, a.Args())
	assert.Equal(t, interfaces.File(file), a.GetFile())

	assert.True(t, a.DeliverChunk([]byte("abc"), 0))
	assert.True(t, a.DeliverStream([]byte("abc")))
	assert.True(t, a.Undelivered(0, 10))
	assert.True(t, a.EndOfFile())

	a.Emit("seen", map[string]interface{}{"n": 1})
	require.Len(t, file.events, 1)
	assert.Equal(t, "file-1", file.events[0].FileID)
	assert.Equal(t, interfaces.TagHash, file.events[0].Tag)

	require.NoError(t, interfaces.Destroy(a))
	assert.Equal(t, int32(1), args.Refs())

	// A second destroy must not release again
	require.NoError(t, interfaces.Destroy(a))
	assert.Equal(t, int32(1), args.Refs())
}

// TestNewBaseRejectsMissingTag tests that malformed args take no reference
func TestNewBaseRejectsMissingTag(t *testing.T) {
	args := interfaces.NewArgs(interfaces.TagNone, nil)
	_, err := interfaces.NewBase(args, &stubFile{})
	assert.ErrorIs(t, err, interfaces.ErrMissingTag)
	assert.Equal(t, int32(1), args.Refs())
}

// TestDestroyTeardown tests teardown errors and panics
func TestDestroyTeardown(t *testing.T) {
	args := interfaces.NewArgs(interfaces.TagExtract, nil)

	base, err := interfaces.NewBase(args, &stubFile{})
	require.NoError(t, err)
	failing := &teardownAnalyzer{Base: base, err: errors.New("disk full")}
	assert.EqualError(t, interfaces.Destroy(failing), "disk full")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, int32(1), args.Refs())

	base, err = interfaces.NewBase(args, &stubFile{})
	require.NoError(t, err)
	panicking := &teardownAnalyzer{Base: base, explode: true}
	err = interfaces.Destroy(panicking)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, int32(1), args.Refs())
}
