// Package merge implements the Acyclic Merger phase: bottom-up, it
// canonicalizes every type whose out-edges have already resolved to
// chosen (or placeholder) targets, collapsing structurally identical
// types onto one chosen representative by shallow signature.
package merge

import (
	"fmt"
	"strings"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
)

// Run bootstraps base/unspecified types and placeholders as
// automatically chosen, then repeatedly sweeps the remaining types:
// a type becomes eligible for signature comparison only once every
// out-edge it carries points at a chosen type (resolving any that now
// point at a replaced type to their replacement first). The sweep
// repeats until a full pass makes no further replacements or new
// choices.
func Run(ctx *dwtypes.Context) error {
	chosenBySig := make(map[string]dwtypes.Addr)

	ctx.Types.Range(func(t *dwtypes.Type) {
		if t.Chosen || t.ReplacedBy >= 0 {
			return
		}
		switch t.MetaType {
		case dwtypes.MetaBase, dwtypes.MetaUnspecified:
			name := t.SymbolName()
			if rep, ok := chosenBySig[name]; ok {
				t.ReplacedBy = rep
			} else {
				chosenBySig[name] = t.Addr
				t.Chosen = true
			}
		case dwtypes.MetaPlaceholder:
			t.Chosen = true
		}
	})

	for {
		replacing, choosing := 0, 0
		var rangeErr error
		ctx.Types.Range(func(t *dwtypes.Type) {
			if rangeErr != nil {
				return
			}
			if t.ReplacedBy >= 0 {
				return
			}
			_, stillPartitioning := ctx.TypeMergeSets[t.Addr]
			if t.Chosen && !stillPartitioning {
				return
			}

			chosenCnt, shouldChosen := 0, 0

			if t.Type != dwtypes.NoAddr {
				backing := ctx.Types.Get(t.Type)
				if backing.ReplacedBy >= 0 {
					t.Type = backing.ReplacedBy
					replacing++
					backing = ctx.Types.Get(t.Type)
				}
				if backing.Chosen {
					chosenCnt++
				}
				shouldChosen++
			}

			switch t.ParamKind {
			case dwtypes.ParamMembers, dwtypes.ParamParams:
				for i := range t.Params {
					backing := ctx.Types.Get(t.Params[i].Value)
					if backing.ReplacedBy >= 0 {
						t.Params[i].Value = backing.ReplacedBy
						replacing++
						backing = ctx.Types.Get(t.Params[i].Value)
					}
					if backing.Chosen {
						chosenCnt++
					}
					shouldChosen++
				}
			}

			if chosenCnt == shouldChosen && !t.Chosen {
				sig, err := shallowSignature(t, ctx.Types)
				if err != nil {
					rangeErr = err
					return
				}
				if rep, ok := chosenBySig[sig]; ok {
					t.ReplacedBy = rep
					replacing++
				} else {
					chosenBySig[sig] = t.Addr
					t.Chosen = true
					choosing++
				}
			}
		})
		if rangeErr != nil {
			return rangeErr
		}
		ctx.Log.Debugw("acyclic merger round", "replacing", replacing, "choosing", choosing)
		if replacing+choosing == 0 {
			return nil
		}
	}
}

// shallowSignature is make_signature's direct counterpart: unlike the
// Partition Engine's recursiveSignature, it never descends past a
// single edge — pointer-family edges contribute only their target's
// addr (or, through a placeholder, its name), since by the time this
// runs every target is either already chosen or a placeholder, so one
// level is enough to distinguish structurally different types.
func shallowSignature(t *dwtypes.Type, types *dwtypes.TypeTable) (string, error) {
	switch t.MetaType {
	case dwtypes.MetaPlaceholder, dwtypes.MetaBase, dwtypes.MetaUnspecified:
		return t.SymbolName(), nil
	}
	if t.MetaType.PointerLike() {
		target := types.Get(t.Type)
		if target == nil {
			return "", fmt.Errorf("merge: type %#x has dangling type edge %#x", t.Addr, t.Type)
		}
		if target.MetaType == dwtypes.MetaPlaceholder {
			return "<pointer>:" + target.SymbolName(), nil
		}
		return fmt.Sprintf("<pointer>:%#x", t.Type), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", t.MetaType, t.SymbolName())
	if t.Type != dwtypes.NoAddr {
		fmt.Fprintf(&b, " %#x", t.Type)
	}
	switch t.ParamKind {
	case dwtypes.ParamMembers:
		b.WriteString(" {")
		for i, m := range t.Params {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%s:%#x", m.SymbolName(), m.Value)
		}
		b.WriteByte('}')
	case dwtypes.ParamValues:
		b.WriteString(" {")
		for i, v := range t.Params {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%s:%d", v.SymbolName(), v.Value)
		}
		b.WriteByte('}')
	case dwtypes.ParamParams:
		b.WriteByte('(')
		for i, p := range t.Params {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%#x", p.Value)
		}
		b.WriteByte(')')
	}
	return b.String(), nil
}
