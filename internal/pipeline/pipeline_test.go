package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
)

// buildSplitTranslationUnitGraph mimics what two translation units
// defining the same linked-list node type independently would look
// like once the DIE Ingestor alone has run: two structurally
// identical "node" structs, each with a self-referencing pointer
// member, never yet merged or cycle-broken.
func buildSplitTranslationUnitGraph(t *testing.T) *dwtypes.Context {
	t.Helper()
	ctx := dwtypes.NewContext(dwtypes.NopLogger())

	mkNode := func(addr dwtypes.Addr) {
		node := dwtypes.NewType(addr, dwtypes.MetaStructure)
		node.Name = "node"
		ctx.Types.Insert(node)

		ptr := dwtypes.NewType(addr+1, dwtypes.MetaPointer)
		ptr.Type = addr
		ctx.Types.Insert(ptr)

		require.NoError(t, node.ChooseParams(dwtypes.ParamMembers))
		node.Params = []dwtypes.CommonParam{{Name: "next", Value: addr + 1}}
	}
	mkNode(1)
	mkNode(10)

	intT := dwtypes.NewType(100, dwtypes.MetaBase)
	intT.Name = "int"
	ctx.Types.Insert(intT)

	subp := dwtypes.NewSubprogram(200)
	subp.Name = "main"
	ctx.Subprograms.Insert(subp)

	return ctx
}

func TestRunEndToEndMergesDuplicateStructAcrossTranslationUnits(t *testing.T) {
	ctx := buildSplitTranslationUnitGraph(t)

	require.NoError(t, Run(ctx))

	node1 := ctx.Types.Get(1)
	node10 := ctx.Types.Get(10)
	require.NotNil(t, node1, "the lowest-addr representative should survive finalization")
	assert.Nil(t, node10, "the non-representative copy should be deleted by the finalizer")
	assert.True(t, node1.Chosen)
}

func TestRunChoosesBaseTypeOnAlreadyAcyclicInput(t *testing.T) {
	ctx := dwtypes.NewContext(dwtypes.NopLogger())
	intT := dwtypes.NewType(1, dwtypes.MetaBase)
	intT.Name = "int"
	ctx.Types.Insert(intT)

	require.NoError(t, Run(ctx))
	assert.True(t, ctx.Types.Get(1).Chosen)
}
