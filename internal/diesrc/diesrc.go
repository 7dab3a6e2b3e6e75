// Package diesrc adapts the standard library's ELF/Mach-O/PE and
// debug/dwarf decoders into the flat (depth, tag, attributes) DIE
// record stream internal/ingest consumes. It is a thin translation
// layer, not a general-purpose DWARF toolkit: it understands exactly
// the handful of tags and attributes the ingestor cares about and
// passes everything else through as an opaque, depth-tracked marker.
package diesrc

import (
	"debug/dwarf"
	"debug/elf"
	"debug/macho"
	"debug/pe"

	"github.com/pkg/errors"

	"github.com/ThinkerYzu/trace-dwarf/internal/ingest"
)

// Open locates and returns the DWARF data embedded in the binary at
// path, trying ELF, then Mach-O, then PE, the same probing order the
// teacher's heap-dump reader uses since none of the three container
// formats can be distinguished without attempting to parse them.
func Open(path string) (*dwarf.Data, error) {
	if e, err := elf.Open(path); err == nil {
		defer e.Close()
		if d, err := e.DWARF(); err == nil {
			return d, nil
		}
	}
	if m, err := macho.Open(path); err == nil {
		defer m.Close()
		if d, err := m.DWARF(); err == nil {
			return d, nil
		}
	}
	if p, err := pe.Open(path); err == nil {
		defer p.Close()
		if d, err := p.DWARF(); err == nil {
			return d, nil
		}
	}
	return nil, errors.Errorf("diesrc: %s: no ELF, Mach-O or PE DWARF info found", path)
}

var tagTable = map[dwarf.Tag]ingest.Tag{
	dwarf.TagArrayType:           ingest.TagArrayType,
	dwarf.TagBaseType:            ingest.TagBaseType,
	dwarf.TagConstType:           ingest.TagConstType,
	dwarf.TagEnumerationType:     ingest.TagEnumerationType,
	dwarf.TagPointerType:         ingest.TagPointerType,
	dwarf.TagPtrToMemberType:     ingest.TagPtrToMemberType,
	dwarf.TagReferenceType:       ingest.TagReferenceType,
	dwarf.TagRestrictType:        ingest.TagRestrictType,
	dwarf.TagRvalueReferenceType: ingest.TagRvalueReferenceType,
	dwarf.TagStructType:          ingest.TagStructureType,
	dwarf.TagClassType:           ingest.TagClassType,
	dwarf.TagSubroutineType:      ingest.TagSubroutineType,
	dwarf.TagTypedef:             ingest.TagTypedef,
	dwarf.TagUnionType:           ingest.TagUnionType,
	dwarf.TagVolatileType:        ingest.TagVolatileType,
	dwarf.TagUnspecifiedType:     ingest.TagUnspecifiedType,

	dwarf.TagSubprogram:        ingest.TagSubprogram,
	dwarf.TagInlinedSubroutine: ingest.TagInlinedSubroutine,
	dwarf.TagCallSite:          ingest.TagCallSite,
	// DW_TAG_GNU_call_site: the pre-DWARF5 GNU extension tag.
	// debug/dwarf only defines dwarf.TagCallSite (the standardized
	// DWARF5 successor); older producers emit the same construct
	// under this raw numeric tag instead, so it's keyed directly.
	dwarf.Tag(0x4109): ingest.TagGNUCallSite,

	dwarf.TagMember:           ingest.TagMember,
	dwarf.TagEnumerator:       ingest.TagEnumerator,
	dwarf.TagFormalParameter:  ingest.TagFormalParameter,
	dwarf.TagNamespace:        ingest.TagNamespace,
}

// Walk decodes every compilation unit in d in pre-order and calls fn
// once per DIE, synthesizing the depth-tracking ingest.Record shape
// internal/ingest expects. debug/dwarf.Reader.Next returns a
// zero-Tag, Children-less entry to mark the end of a DIE's children,
// exactly like the sibling-terminator the original tool's DIE walker
// watches for, so depth bookkeeping here only ever needs a simple
// counter.
func Walk(d *dwarf.Data, fn func(ingest.Record) error) error {
	r := d.Reader()
	depth := uint(0)
	for {
		e, err := r.Next()
		if err != nil {
			return errors.Wrap(err, "diesrc: reading DIE stream")
		}
		if e == nil {
			return nil
		}
		if e.Tag == 0 {
			if depth == 0 {
				return errors.New("diesrc: end-of-children marker at depth 0")
			}
			depth--
			continue
		}

		rec := ingest.Record{
			Depth:       depth,
			Offset:      ingest.Addr(e.Offset),
			Tag:         tagTable[e.Tag],
			Attrs:       attrsOf(e),
			HasChildren: e.Children,
		}
		if err := fn(rec); err != nil {
			return err
		}
		if e.Children {
			depth++
		}
	}
}

func attrsOf(e *dwarf.Entry) ingest.Attrs {
	a := make(ingest.Attrs, len(e.Field))
	if v, ok := e.Val(dwarf.AttrName).(string); ok {
		a[ingest.AttrName] = v
	}
	if v, ok := e.Val(dwarf.AttrLinkageName).(string); ok {
		a[ingest.AttrLinkageName] = v
	}
	if v, ok := e.Val(dwarf.AttrType).(dwarf.Offset); ok {
		a[ingest.AttrType] = ingest.Addr(v)
	}
	if v, ok := e.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset); ok {
		a[ingest.AttrAbstractOrigin] = ingest.Addr(v)
	}
	if v, ok := e.Val(dwarf.AttrSpecification).(dwarf.Offset); ok {
		a[ingest.AttrSpecification] = ingest.Addr(v)
	}
	if v, ok := e.Val(dwarf.AttrCallOrigin).(dwarf.Offset); ok {
		a[ingest.AttrCallOrigin] = ingest.Addr(v)
	}
	if v, ok := e.Val(dwarf.AttrDataMemberLoc).(int64); ok {
		a[ingest.AttrDataMemberLoc] = v
	}
	if v, ok := e.Val(dwarf.AttrConstValue).(int64); ok {
		a[ingest.AttrConstValue] = v
	}
	if v, ok := e.Val(dwarf.AttrExternal).(bool); ok {
		a[ingest.AttrExternal] = v
	}
	if v, ok := e.Val(dwarf.AttrDeclaration).(bool); ok {
		a[ingest.AttrDeclaration] = v
	}
	return a
}
