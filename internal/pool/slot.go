package pool

// slot is a single-owner cell. Assigning to it releases whatever it held
// before through release, so callers cannot leak an overwritten value.
type slot struct {
	entry Entry
	seq   uint64
}

func (s *slot) assign(e Entry, release ReleaseFunc) error {
	old := s.entry
	var err error
	if release != nil && old.Value != nil && !sameValue(old.Value, e.Value) {
		err = release(old)
	}
	s.entry = e
	return err
}

// sameValue reports whether a and b are the identical comparable value.
// Storing an object over itself must not destroy it.
func sameValue(a, b any) bool {
	if !isComparable(a) || !isComparable(b) {
		return false
	}
	return a == b
}
