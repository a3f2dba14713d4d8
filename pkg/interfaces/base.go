/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: base.go
Description: Base analyzer for fanalyzer. Concrete analyzers embed *Base to get the
identity accessors, the default no-op delivery methods and the args release hook.
*/

package interfaces

import (
	"fmt"
	"sync"
)

// Base carries the identity shared by every analyzer: its tag, a counted
// reference to its args and the back-reference to its file.
type Base struct {
	tag  Tag
	args *Args
	file File

	release sync.Once
}

// NewBase derives the tag from args, takes a reference on args and records the file.
// It fails only for malformed args; nothing is referenced in that case.
func NewBase(args *Args, file File) (*Base, error) {
	tag, err := ArgsTag(args)
	if err != nil {
		return nil, err
	}
	return &Base{
		tag:  tag,
		args: args.Ref(),
		file: file,
	}, nil
}

// DeliverChunk ignores chunked data
func (b *Base) DeliverChunk(data []byte, offset uint64) bool { return true }

// DeliverStream ignores sequential data
func (b *Base) DeliverStream(data []byte) bool { return true }

// EndOfFile has nothing to finalize
func (b *Base) EndOfFile() bool { return true }

// Undelivered ignores missing data
func (b *Base) Undelivered(offset, length uint64) bool { return true }

// Tag returns the analyzer tag
func (b *Base) Tag() Tag { return b.tag }

// Args returns the analyzer args
func (b *Base) Args() *Args { return b.args }

// GetFile returns the owning file
func (b *Base) GetFile() File { return b.file }

// Emit publishes an event for this analyzer on its file
func (b *Base) Emit(name string, fields map[string]interface{}) {
	if b.file == nil {
		return
	}
	b.file.Emit(Event{
		FileID: b.file.ID(),
		Tag:    b.tag,
		Name:   name,
		Fields: fields,
	})
}

func (b *Base) releaseArgs() {
	b.release.Do(func() {
		if b.args != nil {
			b.args.Unref()
		}
	})
}

// Destroy tears an analyzer down. The args reference is released exactly
// once whatever the teardown does, including panicking; a panic is returned
// as an error.
func Destroy(a Analyzer) (err error) {
	defer a.releaseArgs()

	t, ok := a.(Teardowner)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("teardown of %s analyzer panicked: %v", a.Tag(), r)
		}
	}()
	return t.Teardown()
}
