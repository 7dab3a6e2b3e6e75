package transit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
)

func TestRunNamesSingleQualifier(t *testing.T) {
	ctx := dwtypes.NewContext(nil)
	base := dwtypes.NewType(1, dwtypes.MetaBase)
	base.Name = "int"
	ctx.Types.Insert(base)

	c := dwtypes.NewType(2, dwtypes.MetaConst)
	c.Type = 1
	ctx.Types.Insert(c)

	Run(ctx)

	assert.Equal(t, "const int", c.Name)
	assert.Equal(t, "const int", c.LinkageName)
}

func TestRunChainsMultipleQualifiers(t *testing.T) {
	ctx := dwtypes.NewContext(nil)
	base := dwtypes.NewType(1, dwtypes.MetaBase)
	base.Name = "char"
	ctx.Types.Insert(base)

	volatile := dwtypes.NewType(2, dwtypes.MetaVolatile)
	volatile.Type = 1
	ctx.Types.Insert(volatile)

	c := dwtypes.NewType(3, dwtypes.MetaConst)
	c.Type = 2
	ctx.Types.Insert(c)

	Run(ctx)

	assert.Equal(t, "const volatile char", c.Name)
	assert.Equal(t, "volatile char", volatile.Name)
}

func TestRunLeavesAlreadyNamedQualifierAlone(t *testing.T) {
	ctx := dwtypes.NewContext(nil)
	base := dwtypes.NewType(1, dwtypes.MetaBase)
	base.Name = "int"
	ctx.Types.Insert(base)

	c := dwtypes.NewType(2, dwtypes.MetaConst)
	c.Type = 1
	c.Name = "cint_t"
	ctx.Types.Insert(c)

	Run(ctx)

	require.Equal(t, "cint_t", c.Name)
}
