package dwtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTypeDefaultsPointerFamilyToVoid(t *testing.T) {
	for _, meta := range []MetaType{MetaPointer, MetaPtrToMember, MetaReference, MetaRValueReference, MetaConst, MetaVolatile, MetaRestrict, MetaEnumeration} {
		typ := NewType(42, meta)
		assert.Equal(t, VoidAddr, typ.Type, "meta %v should default to void", meta)
	}
	base := NewType(42, MetaBase)
	assert.Equal(t, NoAddr, base.Type)
}

func TestTypeNamed(t *testing.T) {
	typ := NewType(1, MetaBase)
	assert.False(t, typ.Named())
	typ.Name = "int"
	assert.True(t, typ.Named())
}

func TestSymbolNamePrefersLinkageName(t *testing.T) {
	typ := NewType(1, MetaStructure)
	typ.Name = "Foo"
	assert.Equal(t, "Foo", typ.SymbolName())
	typ.LinkageName = "_ZN3FooE"
	assert.Equal(t, "_ZN3FooE", typ.SymbolName())
}

func TestChooseParamsLocksKind(t *testing.T) {
	typ := NewType(1, MetaStructure)
	require.NoError(t, typ.ChooseParams(ParamMembers))
	require.NoError(t, typ.ChooseParams(ParamMembers))
	err := typ.ChooseParams(ParamValues)
	assert.Error(t, err)
}

func TestIsPlaceholderAddr(t *testing.T) {
	assert.False(t, IsPlaceholderAddr(Addr(0x1000)))
	assert.True(t, IsPlaceholderAddr(Addr(0x1000)|PlaceholderFlag))
}

func TestSubprogramIsOriginal(t *testing.T) {
	s := NewSubprogram(1)
	assert.True(t, s.IsOriginal())
	s.Origin = 2
	assert.False(t, s.IsOriginal())
}

func TestSubprogramAddCallDeduplicates(t *testing.T) {
	s := NewSubprogram(1)
	s.AddCall(5)
	s.AddCall(5)
	s.AddCall(6)
	assert.Equal(t, []Addr{5, 6}, s.Calls)
}

func TestMergeSetOfRoundTrips(t *testing.T) {
	typ := NewType(1, MetaStructure)
	assert.Nil(t, typ.MergeSetOf())
	ms := NewMergeSet()
	typ.SetMergeSet(ms)
	assert.Same(t, ms, typ.MergeSetOf())
}
