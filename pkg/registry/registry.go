/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: registry.go
Description: Instantiator registry for fanalyzer. Maps analyzer tags to the
constructors that build them. Analyzer packages register at init time; the host
seals the registry before the first file is processed and only looks tags up after.
*/

package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kleascm/fanalyzer/pkg/interfaces"
)

var (
	// ErrUnregisteredTag is returned when no instantiator exists for a tag
	ErrUnregisteredTag = errors.New("no analyzer registered for tag")

	// ErrDuplicateTag is returned when a tag is registered twice
	ErrDuplicateTag = errors.New("analyzer tag already registered")

	// ErrRegistrySealed is returned when registering after Seal
	ErrRegistrySealed = errors.New("analyzer registry is sealed")
)

// Instantiator builds an analyzer of one variant for a file.
// Ownership of the returned analyzer passes to the caller.
type Instantiator func(args *interfaces.Args, file interfaces.File) (interfaces.Analyzer, error)

// Entry describes one registered analyzer variant
type Entry struct {
	Tag         interfaces.Tag
	Description string
	New         Instantiator
	Schema      string // JSON schema for the variant's tunables, optional
}

// Registry maps tags to instantiators. It never holds analyzer instances.
type Registry struct {
	mu      sync.RWMutex
	entries map[interfaces.Tag]Entry
	sealed  bool
}

// Default is the process-wide registry analyzer packages register into
var Default = New()

// New creates an empty registry
func New() *Registry {
	return &Registry{
		entries: make(map[interfaces.Tag]Entry),
	}
}

// Register adds an entry. Registering a tag twice, or after Seal, fails.
func (r *Registry) Register(entry Entry) error {
	if entry.Tag == interfaces.TagNone {
		return fmt.Errorf("cannot register %s: %w", entry.Tag, interfaces.ErrMissingTag)
	}
	if entry.New == nil {
		return fmt.Errorf("cannot register %s: nil instantiator", entry.Tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("cannot register %s: %w", entry.Tag, ErrRegistrySealed)
	}
	if _, exists := r.entries[entry.Tag]; exists {
		return fmt.Errorf("%s: %w", entry.Tag, ErrDuplicateTag)
	}
	r.entries[entry.Tag] = entry
	return nil
}

// MustRegister is Register for init functions
func (r *Registry) MustRegister(entry Entry) {
	if err := r.Register(entry); err != nil {
		panic(err)
	}
}

// Seal forbids further registration
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the instantiator for a tag
func (r *Registry) Lookup(tag interfaces.Tag) (Instantiator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[tag]
	if !ok {
		return nil, false
	}
	return entry.New, true
}

// Entry returns the full registration for a tag
func (r *Registry) Entry(tag interfaces.Tag) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[tag]
	return entry, ok
}

// Entries returns all registrations ordered by tag
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Instantiate builds the analyzer selected by the tag in args.
// Malformed args yield interfaces.ErrMissingTag, unknown tags ErrUnregisteredTag.
func (r *Registry) Instantiate(args *interfaces.Args, file interfaces.File) (interfaces.Analyzer, error) {
	tag, err := interfaces.ArgsTag(args)
	if err != nil {
		return nil, err
	}

	newAnalyzer, ok := r.Lookup(tag)
	if !ok {
		return nil, fmt.Errorf("%s: %w", tag, ErrUnregisteredTag)
	}

	analyzer, err := build(tag, newAnalyzer, args, file)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate %s analyzer: %w", tag, err)
	}
	if analyzer == nil {
		return nil, fmt.Errorf("instantiator for %s returned no analyzer", tag)
	}
	if analyzer.Tag() != tag {
		// Built but never attached
		err := fmt.Errorf("instantiator for %s built a %s analyzer", tag, analyzer.Tag())
		return nil, errors.Join(err, interfaces.Destroy(analyzer))
	}
	return analyzer, nil
}

// build runs an instantiator, turning a panic into an error
func build(tag interfaces.Tag, newAnalyzer Instantiator, args *interfaces.Args, file interfaces.File) (a interfaces.Analyzer, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, err = nil, fmt.Errorf("%s instantiator panicked: %v", tag, r)
		}
	}()
	return newAnalyzer(args, file)
}
