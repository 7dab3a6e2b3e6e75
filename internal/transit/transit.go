// Package transit implements the Transit Namer phase: it gives
// const/volatile/restrict qualifier chains a synthesized name built
// from the qualifier keywords and the name of the first non-transit,
// named type the chain points at.
package transit

import (
	"strings"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
)

// Run synthesizes names for every transit (qualifier) type that
// doesn't already have one.
func Run(ctx *dwtypes.Context) {
	ctx.Types.Range(func(t *dwtypes.Type) {
		if !t.MetaType.Transit() {
			return
		}
		name, ok := chainName(ctx, t)
		if !ok {
			return
		}
		t.Name = name
		t.LinkageName = name
	})
}

// chainName follows cur's Type edge through as many transit wrappers
// as necessary to reach a named, non-transit type, building up the
// qualifier-keyword prefix as it goes. A wrapper in the chain that
// already carries a name (including one synthesized earlier in this
// pass) ends the walk, and its name is used as the terminal name. The
// type is left unnamed if the chain bottoms out without ever finding
// a name.
func chainName(ctx *dwtypes.Context, root *dwtypes.Type) (string, bool) {
	var tokens []string
	cur := root
	for cur.MetaType.Transit() {
		if cur.Named() {
			break
		}
		tokens = append(tokens, cur.MetaType.TransitToken())
		next := ctx.Types.Get(cur.Type)
		if next == nil {
			return "", false
		}
		cur = next
	}
	if !cur.Named() {
		return "", false
	}
	tokens = append(tokens, cur.SymbolName())
	return strings.Join(tokens, " "), true
}
