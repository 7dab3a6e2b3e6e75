package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThinkerYzu/trace-dwarf/internal/cycle"
	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
)

// buildDuplicatedNodeGraph simulates what the Cycle Breaker leaves
// behind for two translation units that each define their own
// (structurally identical) linked-list node type sharing a name: two
// struct entries, each with a pointer member cut to a placeholder
// during cycle breaking.
func buildDuplicatedNodeGraph(t *testing.T) *dwtypes.Context {
	t.Helper()
	ctx := dwtypes.NewContext(dwtypes.NopLogger())

	mk := func(addr dwtypes.Addr) *dwtypes.Type {
		node := dwtypes.NewType(addr, dwtypes.MetaStructure)
		node.Name = "node"
		ctx.Types.Insert(node)

		ptr := dwtypes.NewType(addr+1, dwtypes.MetaPointer)
		ptr.Type = addr
		ctx.Types.Insert(ptr)

		require.NoError(t, node.ChooseParams(dwtypes.ParamMembers))
		node.Params = []dwtypes.CommonParam{{Name: "next", Value: addr + 1}}
		return node
	}
	mk(1)
	mk(10)

	cycle.Run(ctx)
	require.NoError(t, cycle.CheckAcyclic(ctx))
	return ctx
}

func TestSeedPopulatesOneMergeSetPerPlaceholderName(t *testing.T) {
	ctx := buildDuplicatedNodeGraph(t)
	seed(ctx)
	require.Len(t, ctx.MergeSets, 1)
	assert.Len(t, ctx.MergeSets[0].Members, 2)
}

func TestRunElectsDeterministicLowestAddrRepresentative(t *testing.T) {
	ctx := buildDuplicatedNodeGraph(t)
	require.NoError(t, Run(ctx))

	node1 := ctx.Types.Get(1)
	node10 := ctx.Types.Get(10)
	require.NotNil(t, node1)
	require.NotNil(t, node10)

	assert.True(t, node1.Chosen)
	assert.Equal(t, dwtypes.Addr(1), node10.ReplacedBy)
}

func TestRecursiveSignatureOfBaseTypeIsItsName(t *testing.T) {
	ctx := dwtypes.NewContext(nil)
	base := dwtypes.NewType(1, dwtypes.MetaBase)
	base.Name = "int"
	ctx.Types.Insert(base)

	sig, err := recursiveSignature(base, ctx.Types, 0)
	require.NoError(t, err)
	assert.Equal(t, "int", sig)
}

func TestRecursiveSignatureMemoizesOnStructType(t *testing.T) {
	ctx := dwtypes.NewContext(nil)
	s := dwtypes.NewType(1, dwtypes.MetaStructure)
	s.Name = "widget"
	ctx.Types.Insert(s)

	sig1, err := recursiveSignature(s, ctx.Types, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Sig)

	sig2, err := recursiveSignature(s, ctx.Types, 0)
	require.NoError(t, err)
	assert.Equal(t, sig1, sig2)
}

func TestRecursiveSignatureDiffersByMemberName(t *testing.T) {
	ctx := dwtypes.NewContext(nil)
	intT := dwtypes.NewType(1, dwtypes.MetaBase)
	intT.Name = "int"
	ctx.Types.Insert(intT)

	s1 := dwtypes.NewType(2, dwtypes.MetaStructure)
	s1.Name = "pair"
	require.NoError(t, s1.ChooseParams(dwtypes.ParamMembers))
	s1.Params = []dwtypes.CommonParam{{Name: "a", Value: 1}}
	ctx.Types.Insert(s1)

	s2 := dwtypes.NewType(3, dwtypes.MetaStructure)
	s2.Name = "pair"
	require.NoError(t, s2.ChooseParams(dwtypes.ParamMembers))
	s2.Params = []dwtypes.CommonParam{{Name: "b", Value: 1}}
	ctx.Types.Insert(s2)

	sig1, err := recursiveSignature(s1, ctx.Types, 0)
	require.NoError(t, err)
	sig2, err := recursiveSignature(s2, ctx.Types, 0)
	require.NoError(t, err)
	assert.NotEqual(t, sig1, sig2)
}
