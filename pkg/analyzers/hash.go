/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: hash.go
Description: HASH analyzer for fanalyzer. Digests the sequential content of a file and
reports the digest at end of file. A digest over incomplete content is meaningless, so
the analyzer gives up on the first gap.
*/

package analyzers

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/kleascm/fanalyzer/pkg/interfaces"
)

// EventFileHash is emitted with the digest of a complete file
const EventFileHash = "file_hash"

// HashAnalyzer computes a digest of the file stream
type HashAnalyzer struct {
	*interfaces.Base
	kind   string
	digest hash.Hash
	bytes  uint64
	done   bool
}

func newHashFunc(kind string) (hash.Hash, error) {
	switch kind {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", kind)
	}
}

// NewHashAnalyzer builds a HASH analyzer. Args: algorithm (md5, sha1, sha256).
func NewHashAnalyzer(args *interfaces.Args, file interfaces.File) (interfaces.Analyzer, error) {
	kind := strings.ToLower(args.String("algorithm", "md5"))
	digest, err := newHashFunc(kind)
	if err != nil {
		return nil, err
	}

	base, err := interfaces.NewBase(args, file)
	if err != nil {
		return nil, err
	}
	return &HashAnalyzer{Base: base, kind: kind, digest: digest}, nil
}

// DeliverStream feeds the digest
func (h *HashAnalyzer) DeliverStream(data []byte) bool {
	if h.done || len(data) == 0 {
		return !h.done
	}
	h.digest.Write(data)
	h.bytes += uint64(len(data))
	return true
}

// Undelivered abandons the digest
func (h *HashAnalyzer) Undelivered(offset, length uint64) bool {
	if length == 0 {
		return !h.done
	}
	h.done = true
	return false
}

// EndOfFile reports the digest
func (h *HashAnalyzer) EndOfFile() bool {
	if h.done {
		return false
	}
	h.done = true
	h.Emit(EventFileHash, map[string]interface{}{
		"kind":  h.kind,
		"hash":  hex.EncodeToString(h.digest.Sum(nil)),
		"bytes": h.bytes,
	})
	return false
}
