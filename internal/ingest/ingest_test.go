package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
)

func newTestIngestor() (*Ingestor, *dwtypes.Context) {
	ctx := dwtypes.NewContext(nil)
	return New(ctx), ctx
}

func TestIngestBaseType(t *testing.T) {
	ing, ctx := newTestIngestor()
	require.NoError(t, ing.Ingest(Record{
		Depth: 0, Offset: 0x10, Tag: TagBaseType,
		Attrs: Attrs{AttrName: "int"},
	}))
	typ := ctx.Types.Get(0x10)
	require.NotNil(t, typ)
	assert.Equal(t, dwtypes.MetaBase, typ.MetaType)
	assert.Equal(t, "int", typ.Name)
}

func TestIngestStructureWithMembers(t *testing.T) {
	ing, ctx := newTestIngestor()
	require.NoError(t, ing.Ingest(Record{Depth: 0, Offset: 0x20, Tag: TagBaseType, Attrs: Attrs{AttrName: "int"}}))
	require.NoError(t, ing.Ingest(Record{
		Depth: 0, Offset: 0x30, Tag: TagStructureType, HasChildren: true,
		Attrs: Attrs{AttrName: "point"},
	}))
	require.NoError(t, ing.Ingest(Record{
		Depth: 1, Offset: 0x31, Tag: TagMember,
		Attrs: Attrs{AttrName: "x", AttrType: dwtypes.Addr(0x20), AttrDataMemberLoc: int64(0)},
	}))
	require.NoError(t, ing.Ingest(Record{
		Depth: 1, Offset: 0x32, Tag: TagMember,
		Attrs: Attrs{AttrName: "y", AttrType: dwtypes.Addr(0x20), AttrDataMemberLoc: int64(8)},
	}))

	point := ctx.Types.Get(0x30)
	require.NotNil(t, point)
	assert.Equal(t, dwtypes.ParamMembers, point.ParamKind)
	require.Len(t, point.Params, 2)
	assert.Equal(t, "x", point.Params[0].Name)
	assert.Equal(t, int64(8), point.Params[1].Offset)
}

func TestIngestNamespacePrependsStructureNames(t *testing.T) {
	ing, ctx := newTestIngestor()
	require.NoError(t, ing.Ingest(Record{
		Depth: 0, Offset: 0x40, Tag: TagNamespace, HasChildren: true,
		Attrs: Attrs{AttrName: "ns"},
	}))
	require.NoError(t, ing.Ingest(Record{
		Depth: 1, Offset: 0x41, Tag: TagStructureType,
		Attrs: Attrs{AttrName: "widget"},
	}))
	widget := ctx.Types.Get(0x41)
	require.NotNil(t, widget)
	assert.Equal(t, "ns::widget", widget.Name)
}

func TestIngestSubprogramCallSite(t *testing.T) {
	ing, ctx := newTestIngestor()
	require.NoError(t, ing.Ingest(Record{
		Depth: 0, Offset: 0x50, Tag: TagSubprogram, HasChildren: true,
		Attrs: Attrs{AttrName: "caller"},
	}))
	require.NoError(t, ing.Ingest(Record{
		Depth: 1, Offset: 0x51, Tag: TagGNUCallSite,
		Attrs: Attrs{AttrAbstractOrigin: dwtypes.Addr(0x99)},
	}))
	caller := ctx.Subprograms.Get(0x50)
	require.NotNil(t, caller)
	assert.Equal(t, []dwtypes.Addr{0x99}, caller.Calls)
}

func TestFinishNamesUnnamedSubprogramsFromAddr(t *testing.T) {
	ing, ctx := newTestIngestor()
	require.NoError(t, ing.Ingest(Record{Depth: 0, Offset: 0x60, Tag: TagSubprogram}))
	require.NoError(t, ing.Finish())
	subp := ctx.Subprograms.Get(0x60)
	require.NotNil(t, subp)
	assert.Equal(t, "<unknown>60", subp.Name)
}

func TestFinishRedirectsCallsFromNonOriginalToOrigin(t *testing.T) {
	ing, ctx := newTestIngestor()
	require.NoError(t, ing.Ingest(Record{
		Depth: 0, Offset: 0x70, Tag: TagSubprogram, HasChildren: true,
		Attrs: Attrs{AttrName: "original"},
	}))
	require.NoError(t, ing.Ingest(Record{
		Depth: 1, Offset: 0x71, Tag: TagInlinedSubroutine,
		Attrs: Attrs{AttrAbstractOrigin: dwtypes.Addr(0x70)},
	}))
	inlinedCopy := ctx.Subprograms.Get(0x71)
	require.NotNil(t, inlinedCopy)
	inlinedCopy.AddCall(0x999)

	require.NoError(t, ing.Finish())

	original := ctx.Subprograms.Get(0x70)
	require.NotNil(t, original)
	assert.Contains(t, original.Calls, dwtypes.Addr(0x999))
	assert.Nil(t, ctx.Subprograms.Get(0x71))
}

func TestFinishKeepsOutOfLineNonOriginalSubprogram(t *testing.T) {
	ing, ctx := newTestIngestor()
	require.NoError(t, ing.Ingest(Record{
		Depth: 0, Offset: 0x70, Tag: TagSubprogram, HasChildren: true,
		Attrs: Attrs{AttrName: "original"},
	}))
	require.NoError(t, ing.Ingest(Record{
		Depth: 1, Offset: 0x71, Tag: TagSubprogram,
		Attrs: Attrs{AttrAbstractOrigin: dwtypes.Addr(0x70)},
	}))
	concreteCopy := ctx.Subprograms.Get(0x71)
	require.NotNil(t, concreteCopy)
	concreteCopy.AddCall(0x999)

	require.NoError(t, ing.Finish())

	original := ctx.Subprograms.Get(0x70)
	require.NotNil(t, original)
	assert.Contains(t, original.Calls, dwtypes.Addr(0x999))

	concreteCopy = ctx.Subprograms.Get(0x71)
	require.NotNil(t, concreteCopy, "out-of-line non-original definitions must survive so direct references to them still resolve")
}

func TestIngestDepthUnderflowIsAnError(t *testing.T) {
	ing, _ := newTestIngestor()
	err := ing.Ingest(Record{Depth: 3, Offset: 0x80, Tag: TagBaseType})
	assert.Error(t, err)
}
