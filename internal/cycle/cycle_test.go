package cycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
)

func newCtx() *dwtypes.Context {
	return dwtypes.NewContext(dwtypes.NopLogger())
}

// A -> ptr -> B -> ptr -> A, a two-node named struct cycle through
// pointer fields: the classic linked-list-node shape.
func twoNodeCycle() *dwtypes.Context {
	ctx := newCtx()

	a := dwtypes.NewType(1, dwtypes.MetaStructure)
	a.Name = "node_a"
	ctx.Types.Insert(a)

	aPtr := dwtypes.NewType(2, dwtypes.MetaPointer)
	aPtr.Type = 3
	ctx.Types.Insert(aPtr)

	b := dwtypes.NewType(3, dwtypes.MetaStructure)
	b.Name = "node_b"
	ctx.Types.Insert(b)

	bPtr := dwtypes.NewType(4, dwtypes.MetaPointer)
	bPtr.Type = 1
	ctx.Types.Insert(bPtr)

	_ = a.ChooseParams(dwtypes.ParamMembers)
	a.Params = []dwtypes.CommonParam{{Name: "next", Value: 2}}
	_ = b.ChooseParams(dwtypes.ParamMembers)
	b.Params = []dwtypes.CommonParam{{Name: "next", Value: 4}}

	return ctx
}

func TestRunBreaksTwoNodeCycle(t *testing.T) {
	ctx := twoNodeCycle()

	Run(ctx)

	require.NoError(t, CheckAcyclic(ctx))
	assert.NotEmpty(t, ctx.PlaceholderNames)
}

func TestRunIsNoOpOnAcyclicGraph(t *testing.T) {
	ctx := newCtx()
	base := dwtypes.NewType(1, dwtypes.MetaBase)
	base.Name = "int"
	ctx.Types.Insert(base)

	ptr := dwtypes.NewType(2, dwtypes.MetaPointer)
	ptr.Type = 1
	ctx.Types.Insert(ptr)

	Run(ctx)

	assert.Empty(t, ctx.PlaceholderNames)
	assert.Equal(t, dwtypes.Addr(1), ptr.Type)
	require.NoError(t, CheckAcyclic(ctx))
}

func TestCreatePlaceholderIsIdempotent(t *testing.T) {
	ctx := newCtx()
	real := dwtypes.NewType(10, dwtypes.MetaStructure)
	real.Name = "thing"
	ctx.Types.Insert(real)

	first := createPlaceholder(10, ctx.Types)
	second := createPlaceholder(10, ctx.Types)
	assert.Equal(t, first, second)
	assert.True(t, dwtypes.IsPlaceholderAddr(first))
}
