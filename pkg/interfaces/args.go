/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: args.go
Description: Analyzer arguments for fanalyzer. Args is the shared, reference-counted
configuration record handed to an analyzer at attach time. Only the tag field has a
meaning to the contract; every other field is a variant-specific tunable.
*/

package interfaces

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// TagField is the name of the required field carrying the analyzer tag
const TagField = "tag"

// ErrMissingTag is returned by ArgsTag for a config without a well-formed tag field
var ErrMissingTag = errors.New("analyzer args carry no tag")

// Args is an immutable analyzer configuration record shared by its creator
// and every analyzer built from it. Lifetime is tracked by an atomic
// reference count: the creator holds the first reference, each attached
// analyzer holds one more until it is destroyed.
type Args struct {
	refs   atomic.Int32
	tag    Tag
	hasTag bool
	fields map[string]interface{}
}

// NewArgs creates an Args for the given tag. The caller owns the returned reference.
func NewArgs(tag Tag, fields map[string]interface{}) *Args {
	a := &Args{
		tag:    tag,
		hasTag: tag != TagNone,
		fields: make(map[string]interface{}, len(fields)),
	}
	for k, v := range fields {
		if k == TagField {
			continue
		}
		a.fields[k] = v
	}
	a.refs.Store(1)
	return a
}

// NewArgsFromMap builds an Args from a raw configuration record such as one
// decoded from YAML or JSON. The tag entry may be a Tag, a name or a number.
// A record without a usable tag still yields an Args, which ArgsTag rejects.
func NewArgsFromMap(record map[string]interface{}) *Args {
	tag := TagNone
	if raw, ok := record[TagField]; ok {
		if t, err := tagFromValue(raw); err == nil {
			tag = t
		}
	}
	return NewArgs(tag, record)
}

func tagFromValue(v interface{}) (Tag, error) {
	switch t := v.(type) {
	case Tag:
		return t, nil
	case string:
		return ParseTag(t)
	case int:
		return Tag(t), nil
	case int64:
		return Tag(t), nil
	case float64:
		if t != math.Trunc(t) {
			return TagNone, fmt.Errorf("tag %v is not an integer", t)
		}
		return Tag(int(t)), nil
	default:
		return TagNone, fmt.Errorf("unsupported tag type %T", v)
	}
}

// ArgsTag extracts the analyzer tag from an args record. It never guesses:
// a nil record or one without a tag yields ErrMissingTag.
func ArgsTag(args *Args) (Tag, error) {
	if args == nil || !args.hasTag || args.tag == TagNone {
		return TagNone, ErrMissingTag
	}
	return args.tag, nil
}

// Ref takes one more reference on the args and returns it
func (a *Args) Ref() *Args {
	a.refs.Add(1)
	return a
}

// Unref drops one reference and returns how many remain.
// Dropping more references than were taken is a programming error.
func (a *Args) Unref() int32 {
	n := a.refs.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("interfaces: args for %s released more times than referenced", a.tag))
	}
	return n
}

// Refs reports the current reference count
func (a *Args) Refs() int32 {
	return a.refs.Load()
}

// Lookup returns a raw tunable
func (a *Args) Lookup(name string) (interface{}, bool) {
	v, ok := a.fields[name]
	return v, ok
}

// Fields returns a copy of the tunables, without the tag
func (a *Args) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(a.fields))
	for k, v := range a.fields {
		out[k] = v
	}
	return out
}

// Key returns a stable identity for the record: two args with the same tag
// and the same tunables have the same key.
func (a *Args) Key() string {
	body, err := json.Marshal(a.fields)
	if err != nil {
		// Unencodable values fall back to a sorted %v rendering
		keys := make([]string, 0, len(a.fields))
		for k := range a.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		body = []byte(fmt.Sprint(keys))
		for _, k := range keys {
			body = append(body, fmt.Sprintf("|%s=%v", k, a.fields[k])...)
		}
	}
	return a.tag.String() + ":" + string(body)
}

// String returns a string tunable or def
func (a *Args) String(name, def string) string {
	if v, ok := a.fields[name].(string); ok {
		return v
	}
	return def
}

// Bool returns a boolean tunable or def
func (a *Args) Bool(name string, def bool) bool {
	switch v := a.fields[name].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Int returns an integer tunable or def
func (a *Args) Int(name string, def int64) int64 {
	switch v := a.fields[name].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v)
		}
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// Bytes returns a size tunable. Strings are parsed as human sizes ("10MB", "4 KiB").
func (a *Args) Bytes(name string, def uint64) (uint64, error) {
	v, ok := a.fields[name]
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		if t < 0 {
			return 0, fmt.Errorf("%s: negative size %d", name, t)
		}
		return uint64(t), nil
	case int64:
		if t < 0 {
			return 0, fmt.Errorf("%s: negative size %d", name, t)
		}
		return uint64(t), nil
	case uint64:
		return t, nil
	case float64:
		if t < 0 {
			return 0, fmt.Errorf("%s: negative size %v", name, t)
		}
		return uint64(t), nil
	case string:
		n, err := humanize.ParseBytes(t)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s: unsupported size type %T", name, v)
	}
}

// StringSlice returns a list tunable
func (a *Args) StringSlice(name string) []string {
	switch v := a.fields[name].(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// StringMap returns a map tunable
func (a *Args) StringMap(name string) map[string]string {
	switch v := a.fields[name].(type) {
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = fmt.Sprint(s)
		}
		return out
	}
	return nil
}
