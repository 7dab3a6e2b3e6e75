// Package dwtypes holds the shared data model for the type-graph
// canonicalization pipeline: the type and subprogram tables, the
// common-param tagged variant, and the per-run context threaded through
// every phase.
//
// Every cross-entry reference in this package is an integer Addr, the
// same discipline the ingested DWARF uses: there are no pointer fields
// between entries, so entries can be created, redirected, and deleted
// without tracking back-references or reference counts.
package dwtypes

import "fmt"

// Addr is a stable integer identifier for a table entry, derived from
// a DIE offset. Placeholders live in a disjoint range flagged by
// PlaceholderFlag.
type Addr int64

// NoAddr marks the absence of an edge.
const NoAddr Addr = -1

// PlaceholderFlag distinguishes placeholder addrs from real DIE
// offsets. A placeholder standing in for the type at addr a lives at
// a | PlaceholderFlag.
const PlaceholderFlag Addr = 1 << 62

// IsPlaceholderAddr reports whether addr was synthesized by the cycle
// breaker rather than read off a DIE.
func IsPlaceholderAddr(a Addr) bool {
	return a&PlaceholderFlag != 0
}

// VoidAddr is the fixed addr of the sentinel void type that pointer,
// qualifier, reference and enumeration entries default their Type
// edge to before the full DIE stream has been seen.
const VoidAddr Addr = 0

// MetaType enumerates the kind of a Type entry.
type MetaType int

const (
	MetaBase MetaType = iota
	MetaUnspecified
	MetaTypedef
	MetaConst
	MetaVolatile
	MetaRestrict
	MetaPointer
	MetaPtrToMember
	MetaReference
	MetaRValueReference
	MetaArray
	MetaStructure
	MetaClass
	MetaUnion
	MetaEnumeration
	MetaSubroutine
	MetaPlaceholder
)

var metaTypeNames = map[MetaType]string{
	MetaBase:            "base",
	MetaUnspecified:      "unspecified",
	MetaTypedef:          "typedef",
	MetaConst:            "const",
	MetaVolatile:         "volatile",
	MetaRestrict:         "restrict",
	MetaPointer:          "pointer",
	MetaPtrToMember:      "ptr_to_member",
	MetaReference:        "reference",
	MetaRValueReference:  "rvalue_reference",
	MetaArray:            "array",
	MetaStructure:        "structure",
	MetaClass:            "class",
	MetaUnion:            "union",
	MetaEnumeration:      "enumeration",
	MetaSubroutine:       "subroutine",
	MetaPlaceholder:      "placeholder",
}

func (m MetaType) String() string {
	if s, ok := metaTypeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("meta_type(%d)", int(m))
}

// PointerLike reports whether m is one of the edge kinds the cycle
// breaker is allowed to cut: pointer, pointer-to-member, reference and
// rvalue reference.
func (m MetaType) PointerLike() bool {
	switch m {
	case MetaPointer, MetaPtrToMember, MetaReference, MetaRValueReference:
		return true
	}
	return false
}

// Transit reports whether m is a const/volatile/restrict qualifier
// wrapper, the only meta types the Transit Namer touches.
func (m MetaType) Transit() bool {
	switch m {
	case MetaConst, MetaVolatile, MetaRestrict:
		return true
	}
	return false
}

// TransitToken is the qualifier keyword the Transit Namer concatenates
// into a synthesized name.
func (m MetaType) TransitToken() string {
	switch m {
	case MetaConst:
		return "const"
	case MetaVolatile:
		return "volatile"
	case MetaRestrict:
		return "restrict"
	}
	return ""
}

// ParamKind identifies which of the three mutually exclusive slots a
// Type entry's Params list represents. A type locks into one kind on
// the first append.
type ParamKind int

const (
	ParamNone ParamKind = iota
	ParamMembers
	ParamValues
	ParamParams
)

// CommonParam is the uniform record used for struct/union/class
// members, enumerator values, and subroutine formal parameters.
type CommonParam struct {
	Name        string
	LinkageName string
	// Value is a type Addr for members and params, or a literal
	// enumerator integer for values.
	Value    Addr
	Offset   int64
	External bool
}

// SymbolName returns the linkage name when present, else Name.
func (p CommonParam) SymbolName() string {
	if p.LinkageName != "" {
		return p.LinkageName
	}
	return p.Name
}

// unknownName is the sentinel used for names that were never set by
// ingestion. It round-trips through the pipeline distinctly from the
// empty string, which marks "no name at all" in some contexts.
const unknownName = "<unknown>"

// UnknownName returns the sentinel used for names ingestion never set.
func UnknownName() string { return unknownName }

// Type is one entry in the Types table: a base type, a qualifier, a
// pointer, a struct/union/class/enum, a subroutine signature, or a
// placeholder standing in for a cycle-cut target.
type Type struct {
	Addr        Addr
	MetaType    MetaType
	Name        string
	LinkageName string
	Declaration bool

	// Type is the single out-edge used by typedef, qualifier,
	// pointer, array and enumeration (base type) entries.
	Type Addr

	ParamKind ParamKind
	Params    []CommonParam

	// RealType is valid only for placeholders: the addr of the type
	// this placeholder stands in for.
	RealType Addr

	// ReplacedBy is non-negative once this entry has been subsumed
	// by another during merging.
	ReplacedBy Addr

	// Chosen is true iff this entry is a surviving canonical
	// representative.
	Chosen bool

	// Visited is cycle-breaker scratch: the addr of the DFS root
	// this entry was last visited from, or NoAddr.
	Visited Addr
	// ToLoopHead marks types reachable only through a just-cut edge:
	// if revisited, they are known to have already been subjected to
	// a cycle break.
	ToLoopHead bool

	// Sig caches the recursive signature computed by the partition
	// engine so repeated lookups during fixed-point iteration don't
	// re-hash unchanged subtrees.
	Sig string

	// mergeSet is the partition engine's current merge-set
	// membership for this type.
	mergeSet *MergeSet
}

// NewType constructs a Type entry at addr with the given meta type,
// applying the same defaulting the ingestor relies on: pointer-family,
// qualifier, reference and enumeration entries default Type to void so
// the "every out-edge has a target" invariant holds before the whole
// DIE stream has been consumed.
func NewType(addr Addr, meta MetaType) *Type {
	t := &Type{
		Addr:       addr,
		MetaType:   meta,
		Name:       unknownName,
		Type:       NoAddr,
		RealType:   NoAddr,
		ReplacedBy: NoAddr,
		Visited:    NoAddr,
	}
	switch meta {
	case MetaPointer, MetaPtrToMember, MetaReference, MetaRValueReference,
		MetaConst, MetaVolatile, MetaRestrict, MetaEnumeration:
		t.Type = VoidAddr
	}
	return t
}

// SymbolName returns the linkage name when present, else Name.
func (t *Type) SymbolName() string {
	if t.LinkageName != "" {
		return t.LinkageName
	}
	return t.Name
}

// Named reports whether t carries a real (non-sentinel) name.
func (t *Type) Named() bool {
	n := t.SymbolName()
	return n != "" && n != unknownName
}

// ChooseParams locks this type's common-param slot to kind. Calling it
// again with a different kind after the slot has already been chosen
// is a fatal schema violation: the DWARF producer attached two
// different kinds of children (say, both members and enumerators) to
// the same DIE, which should never happen.
func (t *Type) ChooseParams(kind ParamKind) error {
	if t.ParamKind == ParamNone {
		t.ParamKind = kind
		return nil
	}
	if t.ParamKind != kind {
		return fmt.Errorf("type %#x: params already chosen as %v, cannot add %v", t.Addr, t.ParamKind, kind)
	}
	return nil
}

// MergeSetOf returns this type's current merge-set membership, or nil
// if it isn't participating in partitioning.
func (t *Type) MergeSetOf() *MergeSet {
	return t.mergeSet
}

// SetMergeSet records this type's current merge-set membership.
func (t *Type) SetMergeSet(s *MergeSet) {
	t.mergeSet = s
}

// MergeSet is a partition class of types believed to be structurally
// equivalent at some refinement stage of the Partition Engine.
type MergeSet struct {
	Members map[Addr]struct{}
}

// NewMergeSet creates an empty merge-set.
func NewMergeSet() *MergeSet {
	return &MergeSet{Members: make(map[Addr]struct{})}
}

// Add puts addr in the merge-set.
func (s *MergeSet) Add(addr Addr) {
	s.Members[addr] = struct{}{}
}

// Subprogram is one entry in the Subprograms table.
type Subprogram struct {
	Addr          Addr
	Name          string
	LinkageName   string
	Origin        Addr
	Specification Addr
	Calls         []Addr
	CallNames     []string

	// Inlined marks an entry that came from a DW_TAG_inlined_subroutine
	// DIE. Only inlined non-original entries are dropped once their
	// calls are reattached to their origin; out-of-line non-original
	// definitions (e.g. template instantiations carrying
	// abstract_origin) stay in the table so addresses that reference
	// them directly still resolve.
	Inlined bool
}

// NewSubprogram constructs a Subprogram entry at addr.
func NewSubprogram(addr Addr) *Subprogram {
	return &Subprogram{
		Addr:          addr,
		Name:          unknownName,
		Origin:        NoAddr,
		Specification: NoAddr,
	}
}

// SymbolName returns the linkage name when present, else Name.
func (s *Subprogram) SymbolName() string {
	if s.LinkageName != "" {
		return s.LinkageName
	}
	return s.Name
}

// IsOriginal reports whether this subprogram is a concrete definition
// rather than an inlined or abstract copy deferring to another entry
// via Origin.
func (s *Subprogram) IsOriginal() bool {
	return s.Origin == NoAddr
}

// AddCall appends callee to s.Calls if it isn't already present.
func (s *Subprogram) AddCall(callee Addr) {
	for _, c := range s.Calls {
		if c == callee {
			return
		}
	}
	s.Calls = append(s.Calls, callee)
}
