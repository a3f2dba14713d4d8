/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: tag.go
Description: Analyzer tags for fanalyzer. A tag selects which analyzer variant is
attached to a file and is the key the instantiator registry dispatches on.
*/

package interfaces

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag identifies an analyzer variant
type Tag int

const (
	TagNone Tag = iota
	TagHash
	TagExtract
	TagDataEvent
	TagMIME
	TagSignature
	TagHTML
)

var tagNames = map[Tag]string{
	TagNone:      "NONE",
	TagHash:      "HASH",
	TagExtract:   "EXTRACT",
	TagDataEvent: "DATA_EVENT",
	TagMIME:      "MIME",
	TagSignature: "SIGNATURE",
	TagHTML:      "HTML",
}

// String returns the canonical name of the tag
func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TAG(%d)", int(t))
}

// Tags returns every known tag except TagNone, in numeric order
func Tags() []Tag {
	return []Tag{TagHash, TagExtract, TagDataEvent, TagMIME, TagSignature, TagHTML}
}

// ParseTag resolves a tag from its name (case-insensitive, '-' and '_' are
// interchangeable) or from its decimal value.
// Numbers are accepted as-is so that configuration may refer to tags which
// only a custom registry knows about.
func ParseTag(s string) (Tag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TagNone, fmt.Errorf("empty analyzer tag")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return TagNone, fmt.Errorf("invalid analyzer tag %d", n)
		}
		return Tag(n), nil
	}

	name := strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	for tag, tagName := range tagNames {
		if tag != TagNone && tagName == name {
			return tag, nil
		}
	}
	return TagNone, fmt.Errorf("unknown analyzer tag %q", s)
}

// MarshalText renders the tag by name in JSON and YAML output
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts anything ParseTag accepts
func (t *Tag) UnmarshalText(text []byte) error {
	parsed, err := ParseTag(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
