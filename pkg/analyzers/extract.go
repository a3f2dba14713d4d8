/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: extract.go
Description: EXTRACT analyzer for fanalyzer. Writes the sequential content of a file to
disk, optionally lz4 compressed and capped at a size limit. Missing ranges become holes
so offsets in the extracted file match the original.
*/

package analyzers

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/pierrec/lz4/v4"
)

const (
	// EventExtractionLimit is emitted when the size limit cuts extraction short
	EventExtractionLimit = "file_extraction_limit"
	// EventFileExtracted is emitted when the extracted file is complete
	EventFileExtracted = "file_extracted"
	// EventExtractionError is emitted when writing fails
	EventExtractionError = "file_extraction_error"

	// DefaultExtractDir is used when no dir is configured
	DefaultExtractDir = "extract_files"

	// MaxCompressedFill bounds the zeros written for one gap in compressed output
	MaxCompressedFill = 16 * 1024 * 1024
)

var zeros = make([]byte, 32*1024)

// ExtractAnalyzer writes file content to disk
type ExtractAnalyzer struct {
	*interfaces.Base
	path    string
	out     *os.File
	buf     *bufio.Writer
	lz      *lz4.Writer
	w       io.Writer
	limit   uint64
	written uint64
	stopped bool
	closed  bool
}

// NewExtractAnalyzer builds an EXTRACT analyzer.
// Args: dir, filename (default: file id), limit (size, 0 = none), compress (bool).
func NewExtractAnalyzer(args *interfaces.Args, file interfaces.File) (interfaces.Analyzer, error) {
	limit, err := args.Bytes("limit", 0)
	if err != nil {
		return nil, err
	}

	dir := args.String("dir", DefaultExtractDir)
	name := args.String("filename", "")
	if name == "" {
		name = file.ID()
	}
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("extract filename %q must not contain a path", name)
	}
	compress := args.Bool("compress", false)
	if compress {
		name += ".lz4"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create extract directory: %w", err)
	}
	path := filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create extract file: %w", err)
	}

	base, err := interfaces.NewBase(args, file)
	if err != nil {
		out.Close()
		os.Remove(path)
		return nil, err
	}

	e := &ExtractAnalyzer{
		Base:  base,
		path:  path,
		out:   out,
		buf:   bufio.NewWriter(out),
		limit: limit,
	}
	e.w = e.buf
	if compress {
		e.lz = lz4.NewWriter(e.buf)
		e.w = e.lz
	}
	return e, nil
}

// Path returns where content is written
func (e *ExtractAnalyzer) Path() string {
	return e.path
}

// DeliverStream appends data to the extracted file
func (e *ExtractAnalyzer) DeliverStream(data []byte) bool {
	return e.write(data)
}

// Undelivered leaves a hole for the missing range. Plain output skips ahead and
// ends up sparse; compressed output is zero filled up to MaxCompressedFill.
func (e *ExtractAnalyzer) Undelivered(offset, length uint64) bool {
	if length == 0 || !e.active() {
		return e.active()
	}

	n, keep := e.allow(length)
	if e.lz != nil {
		if n > MaxCompressedFill {
			e.fail(fmt.Errorf("gap of %s at offset %d exceeds the compressed fill limit of %s",
				humanize.IBytes(length), offset, humanize.IBytes(MaxCompressedFill)))
			return false
		}
		for n > 0 {
			step := uint64(len(zeros))
			if n < step {
				step = n
			}
			if !e.put(zeros[:step]) {
				return false
			}
			n -= step
		}
	} else if n > 0 {
		if err := e.skip(n); err != nil {
			e.fail(err)
			return false
		}
	}

	if !keep {
		e.limitReached()
	}
	return keep
}

// EndOfFile completes the extracted file
func (e *ExtractAnalyzer) EndOfFile() bool {
	if e.closed {
		return false
	}
	if err := e.close(); err != nil {
		e.fail(err)
		return false
	}
	e.Emit(EventFileExtracted, map[string]interface{}{
		"path":  e.path,
		"bytes": e.written,
	})
	return false
}

// Teardown closes the extracted file if the analyzer did not reach EOF
func (e *ExtractAnalyzer) Teardown() error {
	return e.close()
}

func (e *ExtractAnalyzer) write(data []byte) bool {
	if len(data) == 0 || !e.active() {
		return e.active()
	}

	n, keep := e.allow(uint64(len(data)))
	if !e.put(data[:n]) {
		return false
	}
	if !keep {
		e.limitReached()
	}
	return keep
}

// active reports whether the analyzer still takes data
func (e *ExtractAnalyzer) active() bool {
	return !e.closed && !e.stopped
}

// allow returns how much of n fits under the limit and whether more may follow
func (e *ExtractAnalyzer) allow(n uint64) (uint64, bool) {
	if e.limit == 0 {
		return n, true
	}
	if room := e.limit - e.written; n > room {
		return room, false
	}
	return n, true
}

func (e *ExtractAnalyzer) put(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	if _, err := e.w.Write(data); err != nil {
		e.fail(err)
		return false
	}
	e.written += uint64(len(data))
	return true
}

// skip moves the plain output past n missing bytes without writing them
func (e *ExtractAnalyzer) skip(n uint64) error {
	if n > math.MaxInt64 {
		return fmt.Errorf("gap of %d bytes is too large", n)
	}
	if err := e.buf.Flush(); err != nil {
		return err
	}
	if _, err := e.out.Seek(int64(n), io.SeekCurrent); err != nil {
		return err
	}
	e.written += n
	return nil
}

func (e *ExtractAnalyzer) limitReached() {
	e.stopped = true
	e.Emit(EventExtractionLimit, map[string]interface{}{
		"path":  e.path,
		"limit": e.limit,
		"human": humanize.IBytes(e.limit),
	})
}

func (e *ExtractAnalyzer) fail(err error) {
	e.stopped = true
	e.Emit(EventExtractionError, map[string]interface{}{
		"path":  e.path,
		"error": err.Error(),
	})
}

func (e *ExtractAnalyzer) close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if e.lz != nil {
		if err := e.lz.Close(); err != nil {
			firstErr = err
		}
	}
	if err := e.buf.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if e.lz == nil && firstErr == nil {
		// A trailing hole only exists once the file is extended to cover it
		if err := e.out.Truncate(int64(e.written)); err != nil {
			firstErr = err
		}
	}
	if err := e.out.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
