package dwtypes

// TypeTable is the addr-keyed arena that owns every Type entry for the
// lifetime of one pipeline run. Entries are created during ingestion
// and cycle-breaking; they are deleted only by the Finalizer.
//
// Go's map iteration order is randomized, but the Cycle Breaker's
// tie-break policy is specified in terms of "deterministic iteration
// order of the type table". Order tracks first-insertion order
// explicitly so that two runs over the same input cut the same cycles
// at the same points.
type TypeTable struct {
	entries map[Addr]*Type
	order   []Addr
}

// NewTypeTable creates an empty table seeded with the reserved void
// type at VoidAddr, matching the ingestor's invariant that void always
// exists before any DIE is processed.
func NewTypeTable() *TypeTable {
	t := &TypeTable{entries: make(map[Addr]*Type)}
	void := NewType(VoidAddr, MetaBase)
	void.Name = "void"
	t.Insert(void)
	return t
}

// Insert adds or overwrites the entry at e.Addr, recording insertion
// order the first time an addr is seen.
func (t *TypeTable) Insert(e *Type) {
	if _, ok := t.entries[e.Addr]; !ok {
		t.order = append(t.order, e.Addr)
	}
	t.entries[e.Addr] = e
}

// Get returns the entry at addr, or nil if none exists.
func (t *TypeTable) Get(addr Addr) *Type {
	return t.entries[addr]
}

// Has reports whether addr is present.
func (t *TypeTable) Has(addr Addr) bool {
	_, ok := t.entries[addr]
	return ok
}

// Delete removes the entry at addr. The addr is left in the order
// slice (Range skips addrs no longer present) so that iterators
// holding a snapshot of order remain valid.
func (t *TypeTable) Delete(addr Addr) {
	delete(t.entries, addr)
}

// Len returns the number of live entries.
func (t *TypeTable) Len() int {
	return len(t.entries)
}

// Range calls fn for every live entry in insertion order. fn may
// delete or insert entries in the table; Range iterates over a
// snapshot of the order slice taken at call time, so newly inserted
// entries are not visited by this call.
func (t *TypeTable) Range(fn func(*Type)) {
	order := t.order
	for _, addr := range order {
		if e, ok := t.entries[addr]; ok {
			fn(e)
		}
	}
}

// Addrs returns a snapshot of every live addr in insertion order.
func (t *TypeTable) Addrs() []Addr {
	out := make([]Addr, 0, len(t.entries))
	for _, addr := range t.order {
		if _, ok := t.entries[addr]; ok {
			out = append(out, addr)
		}
	}
	return out
}

// SubprogramTable is the addr-keyed arena for Subprogram entries.
type SubprogramTable struct {
	entries map[Addr]*Subprogram
	order   []Addr
}

// NewSubprogramTable creates an empty table.
func NewSubprogramTable() *SubprogramTable {
	return &SubprogramTable{entries: make(map[Addr]*Subprogram)}
}

// Insert adds or overwrites the entry at s.Addr.
func (t *SubprogramTable) Insert(s *Subprogram) {
	if _, ok := t.entries[s.Addr]; !ok {
		t.order = append(t.order, s.Addr)
	}
	t.entries[s.Addr] = s
}

// Get returns the entry at addr, or nil if none exists.
func (t *SubprogramTable) Get(addr Addr) *Subprogram {
	return t.entries[addr]
}

// Delete removes the entry at addr.
func (t *SubprogramTable) Delete(addr Addr) {
	delete(t.entries, addr)
}

// Len returns the number of live entries.
func (t *SubprogramTable) Len() int {
	return len(t.entries)
}

// Range calls fn for every live entry in insertion order.
func (t *SubprogramTable) Range(fn func(*Subprogram)) {
	order := t.order
	for _, addr := range order {
		if s, ok := t.entries[addr]; ok {
			fn(s)
		}
	}
}
