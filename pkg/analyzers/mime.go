/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: mime.go
Description: MIME analyzer for fanalyzer. Buffers the beginning of a file and
classifies it: content type sniffing plus language and binary detection through enry.
*/

package analyzers

import (
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/src-d/enry/v2"
)

// EventFileMIME is emitted once with the file classification
const EventFileMIME = "file_mime"

const (
	// DefaultBOFSize is how much of a file is buffered for classification
	DefaultBOFSize = 4 * 1024
	// MaxBOFSize bounds the classification buffer
	MaxBOFSize = 16 * 1024 * 1024
)

// MIMEAnalyzer classifies the beginning of a file
type MIMEAnalyzer struct {
	*interfaces.Base
	bof  []byte
	size int
	done bool
}

// NewMIMEAnalyzer builds a MIME analyzer. Args: bof_size (size, default 4KiB, at most 16MiB).
func NewMIMEAnalyzer(args *interfaces.Args, file interfaces.File) (interfaces.Analyzer, error) {
	size, err := args.Bytes("bof_size", DefaultBOFSize)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		size = DefaultBOFSize
	}
	if size > MaxBOFSize {
		return nil, fmt.Errorf("bof_size %s exceeds the maximum of %s",
			humanize.IBytes(size), humanize.IBytes(MaxBOFSize))
	}

	base, err := interfaces.NewBase(args, file)
	if err != nil {
		return nil, err
	}
	return &MIMEAnalyzer{
		Base: base,
		bof:  make([]byte, 0, size),
		size: int(size),
	}, nil
}

// DeliverStream fills the BOF buffer and classifies once it is full
func (m *MIMEAnalyzer) DeliverStream(data []byte) bool {
	if m.done || len(data) == 0 {
		return !m.done
	}
	room := m.size - len(m.bof)
	if len(data) > room {
		data = data[:room]
	}
	m.bof = append(m.bof, data...)
	if len(m.bof) < m.size {
		return true
	}
	m.classify()
	return false
}

// Undelivered classifies what arrived before the gap
func (m *MIMEAnalyzer) Undelivered(offset, length uint64) bool {
	if length == 0 {
		return !m.done
	}
	m.classify()
	return false
}

// EndOfFile classifies a file shorter than the BOF buffer
func (m *MIMEAnalyzer) EndOfFile() bool {
	m.classify()
	return false
}

func (m *MIMEAnalyzer) classify() {
	if m.done {
		return
	}
	m.done = true
	if len(m.bof) == 0 {
		return
	}

	name := m.GetFile().Name()
	fields := map[string]interface{}{
		"mime":   http.DetectContentType(m.bof),
		"binary": enry.IsBinary(m.bof),
		"bytes":  len(m.bof),
	}
	if lang := enry.GetLanguage(name, m.bof); lang != "" {
		fields["language"] = lang
	}
	m.Emit(EventFileMIME, fields)
}
