// Package ingest linearizes a stream of DIE records into the two flat
// tables the rest of the pipeline operates on. It is the DIE Ingestor
// component: the only phase that consumes the external DWARF-decoding
// contract instead of the type/subprogram tables already built.
package ingest

import (
	"fmt"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
)

// Tag identifies the DWARF kind of a DIE record. The ingestor only
// needs to distinguish the handful of tag families the algorithm
// branches on; everything else is an opaque marker that still
// participates in depth tracking.
type Tag int

const (
	TagUnknown Tag = iota

	TagArrayType
	TagBaseType
	TagConstType
	TagEnumerationType
	TagPointerType
	TagPtrToMemberType
	TagReferenceType
	TagRestrictType
	TagRvalueReferenceType
	TagStructureType
	TagClassType
	TagSubroutineType
	TagTypedef
	TagUnionType
	TagVolatileType
	TagUnspecifiedType

	TagSubprogram
	TagInlinedSubroutine

	TagGNUCallSite
	TagCallSite

	TagMember
	TagEnumerator
	TagFormalParameter
	TagNamespace
)

var typeTagMeta = map[Tag]dwtypes.MetaType{
	TagArrayType:           dwtypes.MetaArray,
	TagBaseType:            dwtypes.MetaBase,
	TagConstType:           dwtypes.MetaConst,
	TagEnumerationType:     dwtypes.MetaEnumeration,
	TagPointerType:         dwtypes.MetaPointer,
	TagPtrToMemberType:     dwtypes.MetaPtrToMember,
	TagReferenceType:       dwtypes.MetaReference,
	TagRestrictType:        dwtypes.MetaRestrict,
	TagRvalueReferenceType: dwtypes.MetaRValueReference,
	TagStructureType:       dwtypes.MetaStructure,
	TagClassType:           dwtypes.MetaClass,
	TagSubroutineType:      dwtypes.MetaSubroutine,
	TagTypedef:             dwtypes.MetaTypedef,
	TagUnionType:           dwtypes.MetaUnion,
	TagVolatileType:        dwtypes.MetaVolatile,
	TagUnspecifiedType:     dwtypes.MetaUnspecified,
}

func isTypeTag(tag Tag) bool {
	_, ok := typeTagMeta[tag]
	return ok
}

func isSubprogramTag(tag Tag) bool {
	return tag == TagSubprogram || tag == TagInlinedSubroutine
}

func isCallSiteTag(tag Tag) bool {
	return tag == TagGNUCallSite || tag == TagCallSite || tag == TagInlinedSubroutine
}

// Attrs is the permissively-typed attribute bag attached to a Record.
// Values are either string, dwtypes.Addr (already converted from a
// compilation-unit-relative offset to file-absolute), int64, or bool.
type Attrs map[string]interface{}

func (a Attrs) str(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (a Attrs) addr(key string) (dwtypes.Addr, bool) {
	v, ok := a[key]
	if !ok {
		return dwtypes.NoAddr, false
	}
	switch x := v.(type) {
	case dwtypes.Addr:
		return x, true
	case int64:
		return dwtypes.Addr(x), true
	case uint64:
		return dwtypes.Addr(x), true
	}
	return dwtypes.NoAddr, false
}

func (a Attrs) int64(key string) (int64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	case dwtypes.Addr:
		return int64(x), true
	}
	return 0, false
}

func (a Attrs) bool(key string) bool {
	v, ok := a[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Well-known attribute names, shared with a DIE-record producer such
// as internal/diesrc.
const (
	AttrName           = "name"
	AttrLinkageName    = "linkage_name"
	AttrType           = "type"
	AttrAbstractOrigin = "abstract_origin"
	AttrCallOrigin     = "call_origin"
	AttrSpecification  = "specification"
	AttrDataMemberLoc  = "data_member_location"
	AttrConstValue     = "const_value"
	AttrExternal       = "external"
	AttrDeclaration    = "declaration"
)

// Record is one DIE in the pre-order tree traversal the ingestor
// requires: Depth gives this DIE's nesting level, and every DIE with
// children is eventually followed by one whose Depth has dropped back
// to its own.
type Record struct {
	Depth     uint
	Offset    dwtypes.Addr
	Tag       Tag
	Attrs     Attrs
	HasChildren bool
}

// stackEntry is one level of the ingestor's depth-indexed stack. It
// holds whichever of the three entity kinds is open at this depth: at
// most one of typ, subp and ns is set, and an opaque marker frame has
// none of them set.
type stackEntry struct {
	typ  *dwtypes.Type
	subp *dwtypes.Subprogram
	ns   string // namespace name, empty if this frame isn't a namespace
}

// Ingestor accumulates DIE records into a Context, one Ingest call per
// record. The entity stack persists across calls and is trimmed to
// each record's Depth, and the tables accumulate across every
// compilation unit fed to it.
type Ingestor struct {
	ctx   *dwtypes.Context
	stack []stackEntry

	flyweight map[string]string
}

// New creates an Ingestor writing into ctx.
func New(ctx *dwtypes.Context) *Ingestor {
	return &Ingestor{ctx: ctx, flyweight: make(map[string]string)}
}

// intern deduplicates name strings the way the original's small
// flyweight table does, so that repeated identical names across
// millions of DIEs share one backing string.
func (ing *Ingestor) intern(s string) string {
	if v, ok := ing.flyweight[s]; ok {
		return v
	}
	ing.flyweight[s] = s
	return s
}

// Ingest consumes one DIE record. Records for a single compilation
// unit (or a sequence of them sharing one address space) must arrive
// in valid pre-order: every record's Depth must be reachable by
// popping the current stack down to it.
func (ing *Ingestor) Ingest(r Record) error {
	if int(r.Depth) > len(ing.stack) {
		return fmt.Errorf("ingest: depth underflow at offset %#x: depth %d with stack height %d", r.Offset, r.Depth, len(ing.stack))
	}
	ing.stack = ing.stack[:r.Depth]

	switch {
	case isSubprogramTag(r.Tag):
		return ing.ingestSubprogram(r)
	case isTypeTag(r.Tag):
		return ing.ingestType(r)
	case r.Tag == TagMember:
		return ing.ingestCommonParam(r, dwtypes.ParamMembers)
	case r.Tag == TagEnumerator:
		return ing.ingestCommonParam(r, dwtypes.ParamValues)
	case r.Tag == TagFormalParameter:
		return ing.ingestFormalParameter(r)
	case r.Tag == TagNamespace:
		return ing.ingestNamespace(r)
	case isCallSiteTag(r.Tag):
		return ing.ingestCallSite(r)
	default:
		// Unknown tags become opaque stack markers so depth tracking
		// survives even for DIE kinds the ingestor doesn't model.
		if r.HasChildren {
			ing.stack = append(ing.stack, stackEntry{})
		}
		return nil
	}
}

func (ing *Ingestor) findEnclosingSubprogram() *dwtypes.Subprogram {
	for i := len(ing.stack) - 1; i >= 0; i-- {
		if ing.stack[i].subp != nil {
			return ing.stack[i].subp
		}
	}
	return nil
}

func (ing *Ingestor) findEnclosingType() *dwtypes.Type {
	for i := len(ing.stack) - 1; i >= 0; i-- {
		if ing.stack[i].typ != nil {
			return ing.stack[i].typ
		}
	}
	return nil
}

// prependNamespace qualifies name with the nearest enclosing
// struct/class or namespace scope, as "NS::name".
func (ing *Ingestor) prependNamespace(name string) string {
	for i := len(ing.stack) - 1; i >= 0; i-- {
		e := ing.stack[i]
		if e.typ != nil && (e.typ.MetaType == dwtypes.MetaStructure || e.typ.MetaType == dwtypes.MetaClass) {
			return e.typ.Name + "::" + name
		}
		if e.ns != "" {
			return e.ns + "::" + name
		}
	}
	return name
}

func (ing *Ingestor) ingestType(r Record) error {
	meta := typeTagMeta[r.Tag]
	t := dwtypes.NewType(r.Offset, meta)

	if name, ok := r.Attrs.str(AttrName); ok {
		t.Name = ing.intern(ing.prependNamespace(name))
	}
	if ln, ok := r.Attrs.str(AttrLinkageName); ok {
		t.LinkageName = ing.intern(ln)
	}
	if to, ok := r.Attrs.addr(AttrType); ok {
		t.Type = to
	}
	if r.Attrs.bool(AttrDeclaration) {
		t.Declaration = true
	}

	ing.ctx.Types.Insert(t)
	if r.HasChildren {
		ing.stack = append(ing.stack, stackEntry{typ: t})
	}
	return nil
}

func (ing *Ingestor) ingestSubprogram(r Record) error {
	s := dwtypes.NewSubprogram(r.Offset)
	s.Inlined = r.Tag == TagInlinedSubroutine

	if name, ok := r.Attrs.str(AttrName); ok {
		s.Name = ing.intern(ing.prependNamespace(name))
	}
	if ln, ok := r.Attrs.str(AttrLinkageName); ok {
		s.LinkageName = ing.intern(ln)
	}
	if origin, ok := r.Attrs.addr(AttrAbstractOrigin); ok {
		s.Origin = origin
	}
	if spec, ok := r.Attrs.addr(AttrSpecification); ok {
		s.Specification = spec
	}
	if origin, ok := r.Attrs.addr(AttrCallOrigin); ok {
		s.Origin = origin
		if caller := ing.findEnclosingSubprogram(); caller != nil {
			caller.AddCall(origin)
		}
	}

	ing.ctx.Subprograms.Insert(s)
	if r.HasChildren {
		ing.stack = append(ing.stack, stackEntry{subp: s})
	}
	return nil
}

func (ing *Ingestor) ingestCommonParam(r Record, kind dwtypes.ParamKind) error {
	enclosing := ing.findEnclosingType()
	if enclosing == nil {
		return fmt.Errorf("ingest: %v at offset %#x has no enclosing type", r.Tag, r.Offset)
	}
	if err := enclosing.ChooseParams(kind); err != nil {
		return err
	}

	p := dwtypes.CommonParam{Value: dwtypes.NoAddr}
	if name, ok := r.Attrs.str(AttrName); ok {
		p.Name = ing.intern(name)
	}
	if ln, ok := r.Attrs.str(AttrLinkageName); ok {
		p.LinkageName = ing.intern(ln)
	}
	switch kind {
	case dwtypes.ParamMembers:
		if to, ok := r.Attrs.addr(AttrType); ok {
			p.Value = to
		}
		if off, ok := r.Attrs.int64(AttrDataMemberLoc); ok {
			p.Offset = off
		}
		if r.Attrs.bool(AttrExternal) {
			p.External = true
		}
	case dwtypes.ParamValues:
		if v, ok := r.Attrs.int64(AttrConstValue); ok {
			p.Value = dwtypes.Addr(v)
		}
	}
	enclosing.Params = append(enclosing.Params, p)

	if r.HasChildren {
		ing.stack = append(ing.stack, stackEntry{})
	}
	return nil
}

func (ing *Ingestor) ingestFormalParameter(r Record) error {
	enclosing := ing.findEnclosingType()
	if enclosing == nil || enclosing.MetaType != dwtypes.MetaSubroutine {
		if r.HasChildren {
			ing.stack = append(ing.stack, stackEntry{})
		}
		return nil
	}
	if err := enclosing.ChooseParams(dwtypes.ParamParams); err != nil {
		return err
	}
	p := dwtypes.CommonParam{Value: dwtypes.NoAddr}
	if to, ok := r.Attrs.addr(AttrType); ok {
		p.Value = to
	}
	p.Name = fmt.Sprintf("%d", len(enclosing.Params))
	enclosing.Params = append(enclosing.Params, p)

	if r.HasChildren {
		ing.stack = append(ing.stack, stackEntry{})
	}
	return nil
}

func (ing *Ingestor) ingestNamespace(r Record) error {
	name := ""
	if n, ok := r.Attrs.str(AttrName); ok {
		name = ing.intern(n)
	}
	if r.HasChildren {
		ing.stack = append(ing.stack, stackEntry{ns: name})
	}
	return nil
}

func (ing *Ingestor) ingestCallSite(r Record) error {
	if origin, ok := r.Attrs.addr(AttrAbstractOrigin); ok {
		if caller := ing.findEnclosingSubprogram(); caller != nil {
			caller.AddCall(origin)
		}
	}
	if origin, ok := r.Attrs.addr(AttrCallOrigin); ok {
		if caller := ing.findEnclosingSubprogram(); caller != nil {
			caller.AddCall(origin)
		}
	}
	if r.HasChildren {
		ing.stack = append(ing.stack, stackEntry{})
	}
	return nil
}

// Finish performs the end-of-stream fixups described in §4.1: call
// edges recorded against a non-original inlined subprogram (a
// DW_TAG_inlined_subroutine copy deferring to another definition via
// abstract_origin) are moved onto that origin, and the inlined entry
// itself is dropped since it carries no information the resolver or
// sink needs once its calls have been reattached. Non-original entries
// that are NOT inlined copies — out-of-line concrete definitions such
// as template instantiations that merely carry abstract_origin — are
// left in the table, since addresses elsewhere in the DWARF stream may
// reference them directly and the reference resolver's origin-chain
// walk still needs them to exist. Subprograms that remain unnamed get
// a unique synthetic name derived from their address. Finish must be
// called once after the entire DIE stream (across all compilation
// units) has been ingested.
func (ing *Ingestor) Finish() error {
	var toDelete []dwtypes.Addr

	ing.ctx.Subprograms.Range(func(s *dwtypes.Subprogram) {
		if !s.IsOriginal() {
			origin := ing.resolveOriginal(s.Origin)
			if origin != nil {
				for _, call := range s.Calls {
					origin.AddCall(call)
				}
			}
			if s.Inlined {
				toDelete = append(toDelete, s.Addr)
			}
			return
		}
		if s.Name == dwtypes.UnknownName() {
			s.Name = fmt.Sprintf("%s%x", s.Name, s.Addr)
		}
	})

	for _, addr := range toDelete {
		ing.ctx.Subprograms.Delete(addr)
	}
	return nil
}

// resolveOriginal walks origin chains until an original subprogram is
// reached, tolerating a missing link by returning nil (non-fatal per
// the resolver's failure model).
func (ing *Ingestor) resolveOriginal(addr dwtypes.Addr) *dwtypes.Subprogram {
	seen := map[dwtypes.Addr]struct{}{}
	for {
		s := ing.ctx.Subprograms.Get(addr)
		if s == nil {
			return nil
		}
		if s.IsOriginal() {
			return s
		}
		if _, ok := seen[addr]; ok {
			return nil // origin cycle; treat as unresolved
		}
		seen[addr] = struct{}{}
		addr = s.Origin
	}
}
