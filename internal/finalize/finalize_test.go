package finalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
)

func TestRunRedirectsPlaceholderPastReplacement(t *testing.T) {
	ctx := dwtypes.NewContext(dwtypes.NopLogger())
	rep := dwtypes.NewType(1, dwtypes.MetaStructure)
	rep.Name = "node"
	rep.Chosen = true
	ctx.Types.Insert(rep)

	replaced := dwtypes.NewType(10, dwtypes.MetaStructure)
	replaced.Name = "node"
	replaced.ReplacedBy = 1
	ctx.Types.Insert(replaced)

	ph := dwtypes.NewType(dwtypes.Addr(10)|dwtypes.PlaceholderFlag, dwtypes.MetaPlaceholder)
	ph.RealType = 10
	ph.Chosen = true
	ctx.Types.Insert(ph)

	Run(ctx)

	assert.Equal(t, dwtypes.Addr(1), ph.RealType)
	assert.Nil(t, ctx.Types.Get(10))
	assert.NotNil(t, ctx.Types.Get(1))
}

func TestRunDeletesReplacedTypesOnly(t *testing.T) {
	ctx := dwtypes.NewContext(dwtypes.NopLogger())
	chosen := dwtypes.NewType(1, dwtypes.MetaBase)
	chosen.Name = "int"
	chosen.Chosen = true
	ctx.Types.Insert(chosen)

	replaced := dwtypes.NewType(2, dwtypes.MetaBase)
	replaced.Name = "int"
	replaced.ReplacedBy = 1
	ctx.Types.Insert(replaced)

	Run(ctx)

	require.NotNil(t, ctx.Types.Get(1))
	assert.Nil(t, ctx.Types.Get(2))
}
