package loop

// Callback is a per-frame function registered with a Loop. Identity is the
// pointer: adding the same *Callback twice keeps a single registration.
type Callback struct {
	fn   func()
	name string
}

// NewCallback wraps fn so it can be added to and removed from a Loop.
func NewCallback(fn func()) *Callback {
	return &Callback{fn: fn}
}

// Named is NewCallback with a label used in panic logs.
func Named(name string, fn func()) *Callback {
	return &Callback{fn: fn, name: name}
}

// Name returns the callback label, or "" if none was given.
func (c *Callback) Name() string {
	return c.name
}

type entry struct {
	cb  *Callback
	seq uint64
}

// callbackSet is an insertion-ordered set with O(1) add and remove.
// Removal only drops the map entry; stale slice entries are compacted when
// the next snapshot is taken.
type callbackSet struct {
	seq     uint64
	live    map[*Callback]uint64
	entries []entry
}

func newCallbackSet() callbackSet {
	return callbackSet{live: make(map[*Callback]uint64)}
}

func (s *callbackSet) add(cb *Callback) {
	if _, ok := s.live[cb]; ok {
		return
	}
	s.seq++
	s.live[cb] = s.seq
	s.entries = append(s.entries, entry{cb: cb, seq: s.seq})
}

func (s *callbackSet) remove(cb *Callback) {
	delete(s.live, cb)
}

func (s *callbackSet) has(cb *Callback) bool {
	_, ok := s.live[cb]
	return ok
}

// current reports whether e is still the registration it was when the
// snapshot was taken. A callback removed and re-added mid-tick is not.
func (s *callbackSet) current(e entry) bool {
	return s.live[e.cb] == e.seq
}

func (s *callbackSet) len() int {
	return len(s.live)
}

// snapshot compacts the backing slice and returns a copy of the live entries.
func (s *callbackSet) snapshot() []entry {
	n := 0
	for _, e := range s.entries {
		if s.current(e) {
			s.entries[n] = e
			n++
		}
	}
	clear(s.entries[n:])
	s.entries = s.entries[:n]
	out := make([]entry, n)
	copy(out, s.entries)
	return out
}
