package sink

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
)

func TestPersistWritesSymbolsCallsTypesAndMembers(t *testing.T) {
	ctx := dwtypes.NewContext(dwtypes.NopLogger())

	intT := dwtypes.NewType(1, dwtypes.MetaBase)
	intT.Name = "int"
	intT.Chosen = true
	ctx.Types.Insert(intT)

	point := dwtypes.NewType(2, dwtypes.MetaStructure)
	point.Name = "point"
	point.Chosen = true
	require.NoError(t, point.ChooseParams(dwtypes.ParamMembers))
	point.Params = []dwtypes.CommonParam{{Name: "x", Value: 1, Offset: 0}}
	ctx.Types.Insert(point)

	caller := dwtypes.NewSubprogram(100)
	caller.Name = "main"
	caller.CallNames = []string{"helper"}
	ctx.Subprograms.Insert(caller)

	callee := dwtypes.NewSubprogram(200)
	callee.Name = "helper"
	ctx.Subprograms.Insert(callee)

	dbPath := filepath.Join(t.TempDir(), "out.sqlite3")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Persist(ctx))

	var symbolCount int
	require.NoError(t, store.db.QueryRow(`select count(*) from symbols`).Scan(&symbolCount))
	assert.Equal(t, 2, symbolCount)

	var callCount int
	require.NoError(t, store.db.QueryRow(`select count(*) from calls`).Scan(&callCount))
	assert.Equal(t, 1, callCount)

	var typeCount int
	require.NoError(t, store.db.QueryRow(`select count(*) from types`).Scan(&typeCount))
	assert.Equal(t, 2, typeCount)

	var memberName string
	require.NoError(t, store.db.QueryRow(`select name from members where type_id = ?`, store.typeIDs[2]).Scan(&memberName))
	assert.Equal(t, "x", memberName)
}

func TestPersistResolvesPlaceholdersToRealTypeID(t *testing.T) {
	ctx := dwtypes.NewContext(dwtypes.NopLogger())

	node := dwtypes.NewType(1, dwtypes.MetaStructure)
	node.Name = "node"
	node.Chosen = true
	ctx.Types.Insert(node)

	ph := dwtypes.NewType(dwtypes.Addr(1)|dwtypes.PlaceholderFlag, dwtypes.MetaPlaceholder)
	ph.RealType = 1
	ctx.Types.Insert(ph)

	ptr := dwtypes.NewType(2, dwtypes.MetaPointer)
	ptr.Type = ph.Addr
	ptr.Chosen = true
	ctx.Types.Insert(ptr)

	dbPath := filepath.Join(t.TempDir(), "out.sqlite3")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Persist(ctx))

	var typeOfPtr int64
	require.NoError(t, store.db.QueryRow(`select type from members where type_id = ?`, store.typeIDs[2]).Scan(&typeOfPtr))
	assert.Equal(t, store.typeIDs[1], typeOfPtr)
}
