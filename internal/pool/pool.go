// Package pool implements the named object store that backs one partition
// of the dependency registry.
//
// A Pool is not synchronized. The registry's policy router decides whether a
// pool needs a lock and holds it around every call.
package pool

import (
	"cmp"
	"errors"
	"reflect"
	"slices"
	"sort"
)

// AnyType disables the type check in Lookup.
const AnyType = -1

// Entry is one named object owned by a Pool.
type Entry struct {
	Name string

	// Type is the runtime type id the value was stored with.
	Type int

	Value any

	// Persistent entries survive a Drain and are handed back to the caller.
	Persistent bool
}

// ReleaseFunc destroys the value of an entry that leaves the pool.
type ReleaseFunc func(Entry) error

// Result classifies a Lookup.
type Result int

const (
	Missing Result = iota
	Mismatch
	Found
)

// String returns the outcome name used in logs and metrics.
func (r Result) String() string {
	switch r {
	case Missing:
		return "miss"
	case Mismatch:
		return "mismatch"
	case Found:
		return "hit"
	default:
		return "unknown"
	}
}

// Pool maps names to owned entries.
type Pool struct {
	slots   map[string]*slot
	release ReleaseFunc
	seq     uint64
}

// New creates an empty pool. release is called for every value the pool
// gives up, either on overwrite or on teardown. It may be nil.
func New(release ReleaseFunc) *Pool {
	return &Pool{
		slots:   make(map[string]*slot),
		release: release,
	}
}

// Get returns the entry stored under name.
func (p *Pool) Get(name string) (Entry, bool) {
	s, ok := p.slots[name]
	if !ok {
		return Entry{}, false
	}
	return s.entry, true
}

// Lookup returns the entry stored under name if its type matches typ.
// AnyType matches every entry.
func (p *Pool) Lookup(name string, typ int) (Entry, Result) {
	s, ok := p.slots[name]
	if !ok {
		return Entry{}, Missing
	}
	if typ != AnyType && s.entry.Type != typ {
		return Entry{}, Mismatch
	}
	return s.entry, Found
}

// Store inserts e, or overwrites the entry of the same name. An overwritten
// value is released before e becomes visible, unless another name still
// holds it. e is stored even if releasing the old value fails; the release
// error is returned.
func (p *Pool) Store(e Entry) error {
	if s, ok := p.slots[e.Name]; ok {
		release := p.release
		if p.heldElsewhere(e.Name, s.entry.Value) {
			release = nil
		}
		return s.assign(e, release)
	}
	p.insert(e)
	return nil
}

// heldElsewhere reports whether a name other than name stores v.
func (p *Pool) heldElsewhere(name string, v any) bool {
	for other, s := range p.slots {
		if other != name && sameValue(s.entry.Value, v) {
			return true
		}
	}
	return false
}

// StoreIfAbsent inserts e unless an entry of the same name exists. It returns
// the entry that is stored under the name afterwards and whether it is e.
func (p *Pool) StoreIfAbsent(e Entry) (Entry, bool) {
	if s, ok := p.slots[e.Name]; ok {
		return s.entry, false
	}
	p.insert(e)
	return e, true
}

func (p *Pool) insert(e Entry) {
	p.seq++
	p.slots[e.Name] = &slot{entry: e, seq: p.seq}
}

// Len returns the number of entries.
func (p *Pool) Len() int {
	return len(p.slots)
}

// Names returns the stored names in sorted order.
func (p *Pool) Names() []string {
	names := make([]string, 0, len(p.slots))
	for name := range p.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FreeAll releases every entry and empties the pool.
func (p *Pool) FreeAll() error {
	_, err := p.Drain(nil)
	return err
}

// Drain empties the pool. Entries for which keep reports true are returned
// to the caller without being released, all others are released in reverse
// insertion order. A value stored under several names is released once.
// Release errors are joined.
func (p *Pool) Drain(keep func(Entry) bool) ([]Entry, error) {
	slots := make([]*slot, 0, len(p.slots))
	for _, s := range p.slots {
		slots = append(slots, s)
	}
	slices.SortFunc(slots, func(a, b *slot) int {
		return cmp.Compare(a.seq, b.seq)
	})
	p.slots = make(map[string]*slot)

	var kept, dropped []Entry
	for _, s := range slots {
		if keep != nil && keep(s.entry) {
			kept = append(kept, s.entry)
			continue
		}
		dropped = append(dropped, s.entry)
	}

	released, err := releaseAll(dropped, p.release)

	// A kept value that was also stored under a released name has already
	// been destroyed; do not hand it back.
	kept = slices.DeleteFunc(kept, func(e Entry) bool {
		return released.contains(e.Value)
	})
	return kept, err
}

// ReleaseAll releases entries in reverse order, calling release once per
// distinct value. Release errors are joined.
func ReleaseAll(entries []Entry, release ReleaseFunc) error {
	_, err := releaseAll(entries, release)
	return err
}

func releaseAll(entries []Entry, release ReleaseFunc) (*identitySet, error) {
	released := newIdentitySet()
	if release == nil {
		return released, nil
	}

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Value == nil || !released.add(e.Value) {
			continue
		}
		if err := release(e); err != nil {
			errs = append(errs, err)
		}
	}
	return released, errors.Join(errs...)
}

// identitySet tracks comparable values by identity. Values whose dynamic
// type is not comparable are always treated as new.
type identitySet struct {
	seen map[any]struct{}
}

func newIdentitySet() *identitySet {
	return &identitySet{seen: make(map[any]struct{})}
}

func (s *identitySet) add(v any) bool {
	if !isComparable(v) {
		return true
	}
	if _, ok := s.seen[v]; ok {
		return false
	}
	s.seen[v] = struct{}{}
	return true
}

func (s *identitySet) contains(v any) bool {
	if !isComparable(v) {
		return false
	}
	_, ok := s.seen[v]
	return ok
}

func isComparable(v any) bool {
	return v != nil && reflect.TypeOf(v).Comparable()
}
