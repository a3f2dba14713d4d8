/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: signature.go
Description: SIGNATURE analyzer for fanalyzer. Matches named regular expressions
against the first window of a file and reports each pattern at most once. Matches
never span a gap.
*/

package analyzers

import (
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/kleascm/fanalyzer/pkg/interfaces"
)

// EventSignatureMatch is emitted for the first match of each pattern
const EventSignatureMatch = "signature_match"

// DefaultSignatureWindow bounds how much of a file is scanned
const DefaultSignatureWindow = 64 * 1024

type signature struct {
	name    string
	pattern *regexp.Regexp
	matched bool
}

// SignatureAnalyzer scans file content for known patterns
type SignatureAnalyzer struct {
	*interfaces.Base
	signatures []*signature
	window     uint64

	buf       []byte // content since the last gap
	bufOffset uint64 // file offset of buf[0]
	pos       uint64 // stream position
	remaining int
}

// NewSignatureAnalyzer builds a SIGNATURE analyzer.
// Args: patterns (name -> regexp, required), window (size, default 64KiB).
func NewSignatureAnalyzer(args *interfaces.Args, file interfaces.File) (interfaces.Analyzer, error) {
	patterns := args.StringMap("patterns")
	if len(patterns) == 0 {
		return nil, fmt.Errorf("signature analyzer needs at least one pattern")
	}
	window, err := args.Bytes("window", DefaultSignatureWindow)
	if err != nil {
		return nil, err
	}
	if window == 0 {
		window = DefaultSignatureWindow
	}

	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	sigs := make([]*signature, 0, len(names))
	for _, name := range names {
		re, err := regexp.Compile(patterns[name])
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", name, err)
		}
		sigs = append(sigs, &signature{name: name, pattern: re})
	}

	base, err := interfaces.NewBase(args, file)
	if err != nil {
		return nil, err
	}
	return &SignatureAnalyzer{
		Base:       base,
		signatures: sigs,
		window:     window,
		remaining:  len(sigs),
	}, nil
}

// DeliverStream scans the content seen since the last gap
func (s *SignatureAnalyzer) DeliverStream(data []byte) bool {
	if len(data) == 0 || !s.active() {
		return s.active()
	}
	if room := s.window - s.pos; uint64(len(data)) > room {
		data = data[:room]
	}
	s.buf = append(s.buf, data...)
	s.pos += uint64(len(data))

	s.scan()
	return s.active()
}

// Undelivered drops the carried content so no match spans the gap
func (s *SignatureAnalyzer) Undelivered(offset, length uint64) bool {
	if length == 0 || !s.active() {
		return s.active()
	}
	s.buf = s.buf[:0]
	s.pos = offset + length
	if s.pos < offset {
		s.pos = math.MaxUint64
	}
	s.bufOffset = s.pos
	return s.active()
}

// active reports whether unmatched patterns remain inside the window
func (s *SignatureAnalyzer) active() bool {
	return s.remaining > 0 && s.pos < s.window
}

func (s *SignatureAnalyzer) scan() {
	for _, sig := range s.signatures {
		if sig.matched {
			continue
		}
		loc := sig.pattern.FindIndex(s.buf)
		if loc == nil {
			continue
		}
		sig.matched = true
		s.remaining--
		s.Emit(EventSignatureMatch, map[string]interface{}{
			"name":   sig.name,
			"offset": s.bufOffset + uint64(loc[0]),
			"length": loc[1] - loc[0],
		})
	}
}
